package vbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// OSType is one guest OS type known to VirtualBox.
type OSType struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	FamilyID    string `json:"family_id,omitempty"`
	Family      string `json:"family,omitempty"`
	Is64Bit     bool   `json:"64_bit"`
}

// ExtPack is an installed extension pack.
type ExtPack struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Usable  bool   `json:"usable"`
	Why     string `json:"why_unusable,omitempty"`
}

// Metric is one sample of `metrics query`.
type Metric struct {
	Object string `json:"object"`
	Name   string `json:"name"`
	Value  string `json:"value"`
}

// Version reports the VirtualBox version string.
func (m *Manager) Version(ctx context.Context) (string, error) {
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HostInfo returns the key/value pairs of `list hostinfo`.
func (m *Manager) HostInfo(ctx context.Context) (map[string]string, error) {
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "list", "hostinfo")
	if err != nil {
		return nil, err
	}
	return parseColonPairs(out), nil
}

func (m *Manager) OSTypes(ctx context.Context) ([]OSType, error) {
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "list", "ostypes")
	if err != nil {
		return nil, err
	}
	var types []OSType
	for _, b := range parseColonBlocks(out) {
		if b["ID"] == "" {
			continue
		}
		types = append(types, OSType{
			ID:          b["ID"],
			Description: b["Description"],
			FamilyID:    b["Family ID"],
			Family:      b["Family Desc"],
			Is64Bit:     strings.EqualFold(b["64 bit"], "true"),
		})
	}
	return types, nil
}

func (m *Manager) ExtPacks(ctx context.Context) ([]ExtPack, error) {
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "list", "extpacks")
	if err != nil {
		return nil, err
	}
	var packs []ExtPack
	for _, b := range parseColonBlocks(out) {
		var name string
		for key, value := range b {
			if strings.HasPrefix(key, "Pack no.") {
				name = value
			}
		}
		if name == "" {
			continue
		}
		packs = append(packs, ExtPack{
			Name:    name,
			Version: b["Version"],
			Usable:  strings.EqualFold(b["Usable"], "true"),
			Why:     b["Why unusable"],
		})
	}
	return packs, nil
}

// Metrics queries the performance counters VirtualBox collects for a
// machine. Collection must have been enabled with `metrics setup`.
func (m *Manager) Metrics(ctx context.Context, vmName string) ([]Metric, error) {
	if err := requireName("vm name", vmName); err != nil {
		return nil, err
	}
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "metrics", "query", vmName)
	if err != nil {
		return nil, err
	}
	return parseMetrics(out), nil
}

// parseMetrics reads the three-column table printed by `metrics query`,
// skipping the header and its dashed underline.
func parseMetrics(out string) []Metric {
	var metrics []Metric
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if fields[0] == "Object" || strings.HasPrefix(fields[0], "---") {
			continue
		}
		metrics = append(metrics, Metric{
			Object: fields[0],
			Name:   fields[1],
			Value:  strings.Join(fields[2:], " "),
		})
	}
	return metrics
}

// Screenshot writes a PNG of the machine's display to path and returns the
// absolute location.
func (m *Manager) Screenshot(ctx context.Context, vmName, path string) (string, error) {
	if err := requireName("vm name", vmName); err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(os.TempDir(), vmName+"-screenshot.png")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", vmerr.Wrap(vmerr.CodeValidation, "vbox.screenshot", err)
	}
	if _, err := m.exec(ctx, 0, vmerr.CodeInvalidState, "controlvm", vmName, "screenshotpng", abs); err != nil {
		return "", err
	}
	return abs, nil
}
