package vbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

var (
	settingsFileLine = regexp.MustCompile(`Settings file:\s*'([^']+)'`)
	uuidLine         = regexp.MustCompile(`(?m)^UUID:\s*([0-9a-fA-F-]+)`)
)

func normalizeState(raw string) vm.State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "poweroff", "powered off":
		return vm.StatePoweredOff
	case "running":
		return vm.StateRunning
	case "paused":
		return vm.StatePaused
	case "saved":
		return vm.StateSaved
	case "starting", "restoring":
		return vm.StateStarting
	case "stopping":
		return vm.StateStopping
	case "aborted", "aborted-saved":
		return vm.StateAborted
	default:
		return vm.StateUnknown
	}
}

// ListVMs lists registered machines. With long set, every machine is also
// inspected for state, OS type and resources.
func (m *Manager) ListVMs(ctx context.Context, long bool) ([]vm.Summary, error) {
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "list", "vms")
	if err != nil {
		return nil, err
	}
	runningOut, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "list", "runningvms")
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool)
	for _, r := range parseVMList(runningOut) {
		running[r.UUID] = true
	}

	listed := parseVMList(out)
	summaries := make([]vm.Summary, 0, len(listed))
	for _, l := range listed {
		s := vm.Summary{Name: l.Name, UUID: l.UUID, Running: running[l.UUID]}
		if s.Running {
			s.State = vm.StateRunning
		}
		if long {
			details, err := m.VMInfo(ctx, l.UUID)
			if err != nil {
				m.logger().Warn("inspect vm failed", "vm", l.Name, "error", err)
			} else {
				s.State = details.State
				s.OSType = details.OSType
				s.MemoryMB = details.MemoryMB
				s.CPUs = details.CPUs
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// VMInfo returns the machine-readable description of a machine.
func (m *Manager) VMInfo(ctx context.Context, name string) (vm.Details, error) {
	if err := requireName("vm name", name); err != nil {
		return vm.Details{}, err
	}
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "showvminfo", name, "--machinereadable")
	if err != nil {
		return vm.Details{}, err
	}
	props := parseMachineReadable(out)
	return vm.Details{
		Name:       props["name"],
		UUID:       props["UUID"],
		State:      normalizeState(props["VMState"]),
		OSType:     props["ostype"],
		MemoryMB:   atoi(props["memory"]),
		CPUs:       atoi(props["cpus"]),
		VRAMMB:     atoi(props["vram"]),
		Properties: props,
	}, nil
}

// VMState reports the current state of a machine.
func (m *Manager) VMState(ctx context.Context, name string) (vm.State, error) {
	details, err := m.VMInfo(ctx, name)
	if err != nil {
		return vm.StateUnknown, err
	}
	return details.State, nil
}

// CreateVM registers a machine, sizes it, and attaches a fresh VDI disk on
// a SATA controller. A failure after registration unregisters the
// half-built machine again.
func (m *Manager) CreateVM(ctx context.Context, opts vm.CreateOptions) (vm.Details, error) {
	if opts.NetworkType == "" {
		opts.NetworkType = "nat"
	}
	if err := opts.Validate(); err != nil {
		return vm.Details{}, err
	}

	logger := m.logger().With("vm", opts.Name)
	createArgs := []string{"createvm", "--name", opts.Name, "--ostype", opts.OSType, "--register"}
	if opts.BaseFolder != "" {
		createArgs = append(createArgs, "--basefolder", opts.BaseFolder)
	}
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, createArgs...)
	if err != nil {
		return vm.Details{}, err
	}
	logger.Info("registered vm")

	details := vm.Details{
		Name:     opts.Name,
		State:    vm.StatePoweredOff,
		OSType:   opts.OSType,
		MemoryMB: opts.MemoryMB,
		CPUs:     opts.CPUs,
		VRAMMB:   128,
	}
	if match := uuidLine.FindStringSubmatch(out); match != nil {
		details.UUID = match[1]
	}

	diskPath := opts.Name + "_disk.vdi"
	switch {
	case opts.BaseFolder != "":
		diskPath = filepath.Join(opts.BaseFolder, opts.Name, diskPath)
	default:
		if match := settingsFileLine.FindStringSubmatch(out); match != nil {
			diskPath = filepath.Join(filepath.Dir(match[1]), diskPath)
		}
	}

	steps := [][]string{
		{"modifyvm", opts.Name,
			"--memory", strconv.Itoa(opts.MemoryMB),
			"--cpus", strconv.Itoa(opts.CPUs),
			"--graphicscontroller", "vmsvga",
			"--vram", "128",
			"--nic1", opts.NetworkType},
		{"createmedium", "disk", "--filename", diskPath, "--size", strconv.Itoa(opts.DiskSizeGB * 1024), "--format", "VDI"},
		{"storagectl", opts.Name, "--name", "SATA", "--add", "sata"},
		{"storageattach", opts.Name, "--storagectl", "SATA", "--port", "0", "--device", "0", "--type", "hdd", "--medium", diskPath},
	}
	for _, step := range steps {
		if _, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, step...); err != nil {
			logger.Error("create step failed, unregistering", "step", step[0], "error", err)
			if _, cleanupErr := m.exec(context.WithoutCancel(ctx), 0, vmerr.CodeCommandFailed, "unregistervm", opts.Name, "--delete"); cleanupErr != nil {
				return vm.Details{}, errors.Join(err, fmt.Errorf("cleanup vm %s: %w", opts.Name, cleanupErr))
			}
			return vm.Details{}, err
		}
	}
	details.Properties = map[string]string{"disk_path": diskPath}
	logger.Info("vm created", "disk", diskPath)
	return details, nil
}

// StartVM boots a machine. An empty start type means headless.
func (m *Manager) StartVM(ctx context.Context, name, startType string) error {
	if err := requireName("vm name", name); err != nil {
		return err
	}
	if startType == "" {
		startType = "headless"
	}
	if !slices.Contains(vm.StartTypes, startType) {
		return vmerr.Validation("start type %q not one of %s", startType, strings.Join(vm.StartTypes, ", "))
	}
	_, err := m.exec(ctx, m.Timeouts.Start, vmerr.CodeInvalidState, "startvm", name, "--type", startType)
	return err
}

// StopVM powers a machine off. Without Force an ACPI shutdown is requested;
// Wait then polls until the guest reaches poweroff or the timeout passes.
func (m *Manager) StopVM(ctx context.Context, name string, opts vm.StopOptions) error {
	if err := requireName("vm name", name); err != nil {
		return err
	}
	if opts.Force {
		_, err := m.exec(ctx, m.Timeouts.Stop, vmerr.CodeInvalidState, "controlvm", name, "poweroff")
		return err
	}
	if _, err := m.exec(ctx, m.Timeouts.Stop, vmerr.CodeInvalidState, "controlvm", name, "acpipowerbutton"); err != nil {
		return err
	}
	if !opts.Wait {
		return nil
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.timeout(m.Timeouts.Stop)
	}
	return m.waitForState(ctx, name, vm.StatePoweredOff, timeout)
}

func (m *Manager) waitForState(ctx context.Context, name string, want vm.State, timeout time.Duration) error {
	interval := m.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := m.VMState(ctx, name)
		if err != nil {
			return err
		}
		if state == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return vmerr.Wrap(vmerr.CodeTimeout, "vbox.wait", ctx.Err())
		case <-deadline.C:
			return vmerr.New(vmerr.CodeTimeout, "vbox.wait", "vm %s did not reach %s within %s (last state %s)", name, want, timeout, state)
		case <-ticker.C:
		}
	}
}

// DeleteVM unregisters a machine, powering it off first. Unless keepFiles is
// set its disks and settings are deleted as well.
func (m *Manager) DeleteVM(ctx context.Context, name string, keepFiles bool) error {
	state, err := m.VMState(ctx, name)
	if err != nil {
		return err
	}
	if state == vm.StateRunning || state == vm.StatePaused || state == vm.StateStarting {
		m.logger().Info("powering off vm before delete", "vm", name, "state", state)
		if _, err := m.exec(ctx, m.Timeouts.Stop, vmerr.CodeInvalidState, "controlvm", name, "poweroff"); err != nil {
			return err
		}
	}
	args := []string{"unregistervm", name}
	if !keepFiles {
		args = append(args, "--delete")
	}
	_, err = m.exec(ctx, 0, vmerr.CodeCommandFailed, args...)
	return err
}

// CloneVM clones a machine and registers the copy. A linked clone without
// an explicit snapshot gets one taken first.
func (m *Manager) CloneVM(ctx context.Context, opts vm.CloneOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.Mode == vm.CloneLinked && opts.Snapshot == "" {
		opts.Snapshot = "base-for-" + opts.Name
		if err := m.TakeSnapshot(ctx, opts.Source, opts.Snapshot, "base snapshot for linked clone "+opts.Name, false); err != nil {
			return err
		}
	}

	args := []string{"clonevm", opts.Source, "--name", opts.Name, "--register"}
	if opts.BaseFolder != "" {
		args = append(args, "--basefolder", opts.BaseFolder)
	}
	if opts.Snapshot != "" {
		args = append(args, "--snapshot", opts.Snapshot)
	}
	if opts.Mode == vm.CloneAll {
		args = append(args, "--mode", "all")
	}
	var options []string
	if opts.Mode == vm.CloneLinked {
		options = append(options, "link")
	}
	if opts.KeepMACs {
		options = append(options, "KeepAllMACs", "KeepNATMACs")
	}
	if len(options) > 0 {
		args = append(args, "--options="+strings.Join(options, ","))
	}
	_, err := m.exec(ctx, m.Timeouts.Snapshot, vmerr.CodeCommandFailed, args...)
	return err
}

func (m *Manager) PauseVM(ctx context.Context, name string) error {
	return m.control(ctx, name, "pause")
}

func (m *Manager) ResumeVM(ctx context.Context, name string) error {
	return m.control(ctx, name, "resume")
}

func (m *Manager) ResetVM(ctx context.Context, name string) error {
	return m.control(ctx, name, "reset")
}

func (m *Manager) control(ctx context.Context, name, verb string) error {
	if err := requireName("vm name", name); err != nil {
		return err
	}
	_, err := m.exec(ctx, 0, vmerr.CodeInvalidState, "controlvm", name, verb)
	return err
}

// ModifyVM changes memory and CPU count. Zero values are left untouched.
func (m *Manager) ModifyVM(ctx context.Context, name string, memoryMB, cpus int) error {
	if err := requireName("vm name", name); err != nil {
		return err
	}
	args := []string{"modifyvm", name}
	if memoryMB > 0 {
		if memoryMB < vm.MinMemoryMB {
			return vmerr.Validation("memory must be at least %d MB, got %d", vm.MinMemoryMB, memoryMB)
		}
		args = append(args, "--memory", strconv.Itoa(memoryMB))
	}
	if cpus > 0 {
		if cpus > vm.MaxCPUs {
			return vmerr.Validation("cpus must be between %d and %d, got %d", vm.MinCPUs, vm.MaxCPUs, cpus)
		}
		args = append(args, "--cpus", strconv.Itoa(cpus))
	}
	if len(args) == 2 {
		return nil
	}
	_, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, args...)
	return err
}
