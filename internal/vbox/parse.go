package vbox

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

var vmListLine = regexp.MustCompile(`^"(.*)"\s+\{([0-9a-fA-F-]+)\}$`)

type listedVM struct {
	Name string
	UUID string
}

// parseVMList parses `list vms` / `list runningvms` output.
func parseVMList(out string) []listedVM {
	var vms []listedVM
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		match := vmListLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if match == nil {
			continue
		}
		vms = append(vms, listedVM{Name: match[1], UUID: match[2]})
	}
	return vms
}

// parseMachineReadable parses --machinereadable output: key=value lines where
// either side may be double quoted.
func parseMachineReadable(out string) map[string]string {
	values := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := splitMachineReadable(line)
		if !ok {
			continue
		}
		values[key] = value
	}
	return values
}

var (
	adapterKey    = regexp.MustCompile(`^(?:nic|natnet)([1-8])$`)
	forwardingKey = regexp.MustCompile(`^Forwarding\(\d+\)$`)
)

// parseForwardings groups the NAT port forwarding rules of showvminfo
// output by one-based adapter number. Forwarding(N) numbering restarts for
// every NAT adapter, so a rule belongs to the adapter whose keys precede it.
func parseForwardings(out string) map[int][]string {
	rules := make(map[int][]string)
	adapter := 0
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, ok := splitMachineReadable(strings.TrimSpace(scanner.Text()))
		if !ok {
			continue
		}
		if match := adapterKey.FindStringSubmatch(key); match != nil {
			adapter, _ = strconv.Atoi(match[1])
			continue
		}
		if adapter > 0 && forwardingKey.MatchString(key) {
			rules[adapter] = append(rules[adapter], value)
		}
	}
	return rules
}

func splitMachineReadable(line string) (string, string, bool) {
	var key string
	rest := line
	if strings.HasPrefix(line, `"`) {
		end := strings.Index(line[1:], `"`)
		if end < 0 {
			return "", "", false
		}
		key = line[1 : end+1]
		rest = line[end+2:]
		if !strings.HasPrefix(rest, "=") {
			return "", "", false
		}
		rest = rest[1:]
	} else {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return "", "", false
		}
		key, rest = k, v
	}
	return strings.TrimSpace(key), unquote(strings.TrimSpace(rest)), true
}

func unquote(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value[1 : len(value)-1]
	}
	return value
}

// parseColonBlocks parses human-readable listings made of "Key:   value"
// lines grouped into blank-line separated blocks.
func parseColonBlocks(out string) []map[string]string {
	var (
		blocks  []map[string]string
		current map[string]string
	)
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, current)
		}
		current = nil
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if current == nil {
			current = make(map[string]string)
		}
		current[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	flush()
	return blocks
}

// parseColonPairs flattens a single-block colon listing.
func parseColonPairs(out string) map[string]string {
	merged := make(map[string]string)
	for _, block := range parseColonBlocks(out) {
		for k, v := range block {
			merged[k] = v
		}
	}
	return merged
}

func atoi(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

// leadingInt parses values such as "2048 MBytes".
func leadingInt(value string) int {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	return atoi(fields[0])
}
