package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cochaviz/virtmcp/internal/hostinfo"
	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// fakeHypervisor records calls as "<method> <args>" and fails the method
// named in failOn.
type fakeHypervisor struct {
	calls   []string
	failOn  string
	failErr error
	vms     []vm.Summary
	snaps   []vm.Snapshot
	stopped vm.StopOptions
	cloned  vm.CloneOptions
	created vm.CreateOptions
}

func (f *fakeHypervisor) record(method string, args ...any) error {
	parts := []string{method}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	f.calls = append(f.calls, strings.Join(parts, " "))
	if method == f.failOn {
		if f.failErr != nil {
			return f.failErr
		}
		return vmerr.New(vmerr.CodeCommandFailed, "fake."+method, "failed")
	}
	return nil
}

func (f *fakeHypervisor) Name() string { return "fake" }

func (f *fakeHypervisor) ListVMs(_ context.Context, long bool) ([]vm.Summary, error) {
	return f.vms, f.record("list", long)
}

func (f *fakeHypervisor) VMInfo(_ context.Context, name string) (vm.Details, error) {
	return vm.Details{Name: name, State: vm.StateRunning}, f.record("info", name)
}

func (f *fakeHypervisor) CreateVM(_ context.Context, opts vm.CreateOptions) (vm.Details, error) {
	f.created = opts
	return vm.Details{Name: opts.Name, OSType: opts.OSType, MemoryMB: opts.MemoryMB, CPUs: opts.CPUs}, f.record("create", opts.Name)
}

func (f *fakeHypervisor) StartVM(_ context.Context, name, startType string) error {
	return f.record("start", name, startType)
}

func (f *fakeHypervisor) StopVM(_ context.Context, name string, opts vm.StopOptions) error {
	f.stopped = opts
	return f.record("stop", name)
}

func (f *fakeHypervisor) DeleteVM(_ context.Context, name string, keepFiles bool) error {
	return f.record("delete", name, keepFiles)
}

func (f *fakeHypervisor) CloneVM(_ context.Context, opts vm.CloneOptions) error {
	f.cloned = opts
	return f.record("clone", opts.Source, opts.Name)
}

func (f *fakeHypervisor) PauseVM(_ context.Context, name string) error {
	return f.record("pause", name)
}

func (f *fakeHypervisor) ResumeVM(_ context.Context, name string) error {
	return f.record("resume", name)
}

func (f *fakeHypervisor) ResetVM(_ context.Context, name string) error {
	return f.record("reset", name)
}

func (f *fakeHypervisor) TakeSnapshot(_ context.Context, vmName, name, description string, live bool) error {
	return f.record("snapshot", vmName, name, description, live)
}

func (f *fakeHypervisor) RestoreSnapshot(_ context.Context, vmName, name string) error {
	return f.record("restore", vmName, name)
}

func (f *fakeHypervisor) DeleteSnapshot(_ context.Context, vmName, name string) error {
	return f.record("delete-snapshot", vmName, name)
}

func (f *fakeHypervisor) ListSnapshots(_ context.Context, vmName string) ([]vm.Snapshot, error) {
	return f.snaps, f.record("list-snapshots", vmName)
}

var fakeHost = HostFacts{
	Collect: func(context.Context) (hostinfo.Info, error) {
		return hostinfo.Info{Hostname: "lab", OS: "linux", Arch: "amd64", CPUs: 8}, nil
	},
	Interfaces: func(context.Context) ([]hostinfo.Interface, error) {
		return []hostinfo.Interface{{Name: "eth0", Type: "device", Up: true}, {Name: "lo", Type: "device", Up: true}}, nil
	},
}
