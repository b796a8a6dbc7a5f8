// Package hyperv manages Hyper-V virtual machines by running PowerShell
// cmdlets and decoding their JSON output.
package hyperv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// RunFunc executes a PowerShell binary with args.
type RunFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// VM is the subset of Get-VM output reported to callers.
type VM struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	Status         string `json:"status,omitempty"`
	ID             string `json:"id,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	MemoryAssigned int64  `json:"memory_assigned_bytes"`
	ProcessorCount int    `json:"processor_count"`
}

// rawVM mirrors the calculated-property projection in vmSelect.
type rawVM struct {
	Name           string `json:"Name"`
	State          string `json:"State"`
	Status         string `json:"Status"`
	ID             string `json:"Id"`
	Uptime         int64  `json:"Uptime"`
	MemoryAssigned int64  `json:"MemoryAssigned"`
	ProcessorCount int    `json:"ProcessorCount"`
}

const vmSelect = "Select-Object Name," +
	"@{n='State';e={$_.State.ToString()}}," +
	"Status," +
	"@{n='Id';e={$_.Id.ToString()}}," +
	"@{n='Uptime';e={[int64]$_.Uptime.TotalSeconds}}," +
	"MemoryAssigned,ProcessorCount | ConvertTo-Json -Compress"

type Driver struct {
	PowerShell   string
	Timeout      time.Duration
	Logger       *slog.Logger
	PollInterval time.Duration

	run RunFunc
}

func NewDriver(timeout time.Duration, logger *slog.Logger) *Driver {
	return &Driver{
		PowerShell:   "powershell",
		Timeout:      timeout,
		Logger:       logging.Ensure(logger).With("component", "hyperv"),
		PollInterval: 2 * time.Second,
		run:          execRun,
	}
}

// WithRunner replaces the PowerShell runner.
func (d *Driver) WithRunner(run RunFunc) *Driver {
	d.run = run
	return d
}

// quote renders s as a single-quoted PowerShell literal. PowerShell closes
// such a literal on any of the single-quote characters, so each is doubled.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		if isSingleQuote(r) {
			b.WriteRune(r)
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}

func isSingleQuote(r rune) bool {
	switch r {
	case '\'', '\u2018', '\u2019', '\u201A', '\u201B':
		return true
	}
	return false
}

func (d *Driver) script(ctx context.Context, op, script string) ([]byte, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := d.run
	if run == nil {
		run = execRun
	}
	d.Logger.Debug("running powershell", "op", op)
	stdout, stderr, err := run(ctx, d.PowerShell, "-NoProfile", "-NonInteractive", "-Command", script)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, vmerr.New(vmerr.CodeTimeout, op, "powershell timed out after %s", timeout)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, vmerr.New(vmerr.CodeUnsupported, op, "powershell is not available on this host")
		}
		detail := strings.TrimSpace(string(stderr))
		code := vmerr.CodeCommandFailed
		if strings.Contains(detail, "unable to find a virtual machine") || strings.Contains(detail, "ObjectNotFound") {
			code = vmerr.CodeVMNotFound
		}
		return nil, &vmerr.Error{Code: code, Op: op, Message: firstLine(detail), Err: err}
	}
	return stdout, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// decodeVMs accepts either a single JSON object or an array, since
// ConvertTo-Json collapses one-element pipelines to a bare object.
func decodeVMs(data []byte) ([]VM, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []VM{}, nil
	}
	var raws []rawVM
	if data[0] == '{' {
		var one rawVM
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode Get-VM output: %w", err)
		}
		raws = []rawVM{one}
	} else if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode Get-VM output: %w", err)
	}
	vms := make([]VM, 0, len(raws))
	for _, r := range raws {
		vms = append(vms, VM{
			Name:           r.Name,
			State:          r.State,
			Status:         r.Status,
			ID:             r.ID,
			UptimeSeconds:  r.Uptime,
			MemoryAssigned: r.MemoryAssigned,
			ProcessorCount: r.ProcessorCount,
		})
	}
	return vms, nil
}

func (d *Driver) List(ctx context.Context) ([]VM, error) {
	out, err := d.script(ctx, "hyperv.list", "Get-VM | "+vmSelect)
	if err != nil {
		return nil, err
	}
	vms, err := decodeVMs(out)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.CodeCommandFailed, "hyperv.list", err)
	}
	return vms, nil
}

func (d *Driver) Get(ctx context.Context, name string) (VM, error) {
	if strings.TrimSpace(name) == "" {
		return VM{}, vmerr.Validation("vm name is required")
	}
	out, err := d.script(ctx, "hyperv.get", "Get-VM -Name "+quote(name)+" -ErrorAction Stop | "+vmSelect)
	if err != nil {
		return VM{}, err
	}
	vms, err := decodeVMs(out)
	if err != nil {
		return VM{}, vmerr.Wrap(vmerr.CodeCommandFailed, "hyperv.get", err)
	}
	if len(vms) == 0 {
		return VM{}, vmerr.New(vmerr.CodeVMNotFound, "hyperv.get", "Hyper-V VM '%s' not found", name)
	}
	return vms[0], nil
}

func (d *Driver) Start(ctx context.Context, name string, wait bool) (VM, error) {
	if strings.TrimSpace(name) == "" {
		return VM{}, vmerr.Validation("vm name is required")
	}
	if _, err := d.script(ctx, "hyperv.start", "Start-VM -Name "+quote(name)+" -ErrorAction Stop"); err != nil {
		return VM{}, err
	}
	if wait {
		return d.waitFor(ctx, name, "Running")
	}
	return d.Get(ctx, name)
}

// Stop shuts a VM down through the guest. force turns it off immediately.
func (d *Driver) Stop(ctx context.Context, name string, force, wait bool) (VM, error) {
	if strings.TrimSpace(name) == "" {
		return VM{}, vmerr.Validation("vm name is required")
	}
	script := "Stop-VM -Name " + quote(name) + " -ErrorAction Stop"
	if force {
		script += " -TurnOff"
	} else {
		script += " -Force"
	}
	if _, err := d.script(ctx, "hyperv.stop", script); err != nil {
		return VM{}, err
	}
	if wait {
		return d.waitFor(ctx, name, "Off")
	}
	return d.Get(ctx, name)
}

func (d *Driver) waitFor(ctx context.Context, name, state string) (VM, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	interval := d.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		current, err := d.Get(ctx, name)
		if err != nil {
			return VM{}, err
		}
		if strings.EqualFold(current.State, state) {
			return current, nil
		}
		if time.Now().After(deadline) {
			return current, vmerr.New(vmerr.CodeTimeout, "hyperv.wait", "VM '%s' did not reach state %s within %s", name, state, timeout)
		}
		select {
		case <-ctx.Done():
			return current, vmerr.Wrap(vmerr.CodeTimeout, "hyperv.wait", ctx.Err())
		case <-time.After(interval):
		}
	}
}
