package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/media"
	"github.com/cochaviz/virtmcp/internal/vbox"
	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

type fakeMachines struct {
	calls    []string
	adapters []vbox.Adapter
	state    vm.State
	stateErr error
	failOn   string
}

func (f *fakeMachines) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	f.calls = append(f.calls, call)
	if f.failOn != "" && strings.HasPrefix(call, f.failOn) {
		return vmerr.New(vmerr.CodeCommandFailed, "fake", "%s failed", call)
	}
	return nil
}

func (f *fakeMachines) CloneVM(_ context.Context, o vm.CloneOptions) error {
	return f.record("clone %s %s snapshot=%s base=%t keepmacs=%t", o.Source, o.Name, o.Snapshot, o.BaseFolder != "", o.KeepMACs)
}

func (f *fakeMachines) ModifyVM(_ context.Context, name string, memoryMB, cpus int) error {
	return f.record("modify %s %d %d", name, memoryMB, cpus)
}

func (f *fakeMachines) ListAdapters(_ context.Context, name string) ([]vbox.Adapter, error) {
	return f.adapters, f.record("adapters %s", name)
}

func (f *fakeMachines) ConfigureAdapter(_ context.Context, name string, slot int, networkType, attachment string) error {
	return f.record("nic %s %d %s %s", name, slot, networkType, attachment)
}

func (f *fakeMachines) CreateController(_ context.Context, name, controller, kind string) error {
	return f.record("controller %s %s %s", name, controller, kind)
}

func (f *fakeMachines) MountISO(_ context.Context, name string, slot vbox.Slot, iso string) error {
	return f.record("mount %s %s %s", name, slot.Controller, filepath.Base(iso))
}

func (f *fakeMachines) StartVM(_ context.Context, name, startType string) error {
	return f.record("start %s %s", name, startType)
}

func (f *fakeMachines) VMState(_ context.Context, name string) (vm.State, error) {
	_ = f.record("state %s", name)
	return f.state, f.stateErr
}

func (f *fakeMachines) DeleteVM(_ context.Context, name string, keepFiles bool) error {
	return f.record("delete %s keep=%t", name, keepFiles)
}

func newTestDriver(t *testing.T, machines *fakeMachines) *VBoxDriver {
	t.Helper()
	d := NewVBoxDriver(machines, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.newID = func() string { return "0123abcd-0000-4000-8000-000000000000" }
	d.now = func() time.Time { return time.Unix(1700000000, 0) }
	return d
}

func TestAcquireClonesAndConfigures(t *testing.T) {
	share := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(share, "sample.txt"), []byte("hello"), 0o644))

	machines := &fakeMachines{adapters: []vbox.Adapter{{Slot: 0, Type: "nat"}, {Slot: 2, Type: "bridged"}}}
	d := newTestDriver(t, machines)

	lease, err := d.Acquire(context.Background(), LeaseSpecification{
		SourceVM:       "base",
		Snapshot:       "clean",
		MemoryMB:       1024,
		CPUs:           2,
		IsolateNetwork: true,
		ShareDir:       share,
	})
	require.NoError(t, err)

	assert.Equal(t, "sandbox-0123abcd", lease.Name)
	assert.Equal(t, StatePending, lease.State)
	assert.Equal(t, "sandbox-0123abcd", lease.Network)
	assert.Equal(t, []string{
		"clone base sandbox-0123abcd snapshot=clean base=true keepmacs=true",
		"modify sandbox-0123abcd 1024 2",
		"adapters sandbox-0123abcd",
		"nic sandbox-0123abcd 0 internal sandbox-0123abcd",
		"nic sandbox-0123abcd 2 internal sandbox-0123abcd",
		"controller sandbox-0123abcd SandboxShare ide",
		"mount sandbox-0123abcd SandboxShare share.iso",
	}, machines.calls)

	img, err := media.ListISO(lease.ShareISO)
	require.NoError(t, err)
	assert.Equal(t, "SHARE_0123ABCD", img.Label)
	assert.NoDirExists(t, filepath.Join(lease.RunDir, "share_data"))
}

func TestAcquireIsolatesEveryAdapterSlot(t *testing.T) {
	machines := &fakeMachines{adapters: []vbox.Adapter{{Slot: 0, Type: "nat"}, {Slot: 5, Type: "bridged"}, {Slot: 7, Type: "hostonly"}}}
	d := newTestDriver(t, machines)

	lease, err := d.Acquire(context.Background(), LeaseSpecification{SourceVM: "base", IsolateNetwork: true})
	require.NoError(t, err)
	assert.Equal(t, "sandbox-0123abcd", lease.Network)
	assert.Contains(t, machines.calls, "nic sandbox-0123abcd 5 internal sandbox-0123abcd")
	assert.Contains(t, machines.calls, "nic sandbox-0123abcd 7 internal sandbox-0123abcd")
}

func TestAcquireWithoutOptionsOnlyClones(t *testing.T) {
	machines := &fakeMachines{}
	d := newTestDriver(t, machines)
	lease, err := d.Acquire(context.Background(), LeaseSpecification{SourceVM: "base", Name: "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", lease.Name)
	assert.Equal(t, []string{"clone base custom snapshot= base=true keepmacs=true"}, machines.calls)
	assert.DirExists(t, lease.RunDir)
}

func TestAcquireDeletesCloneOnFailure(t *testing.T) {
	machines := &fakeMachines{failOn: "modify"}
	d := newTestDriver(t, machines)
	_, err := d.Acquire(context.Background(), LeaseSpecification{SourceVM: "base", MemoryMB: 512})
	require.Error(t, err)
	assert.Equal(t, "delete sandbox-0123abcd keep=false", machines.calls[len(machines.calls)-1])
	assert.NoDirExists(t, filepath.Join(d.BaseDir, "runs", "0123abcd-0000-4000-8000-000000000000"))
}

func TestAcquireValidatesSpecification(t *testing.T) {
	machines := &fakeMachines{}
	d := newTestDriver(t, machines)
	_, err := d.Acquire(context.Background(), LeaseSpecification{})
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(err))
	_, err = d.Acquire(context.Background(), LeaseSpecification{SourceVM: "base", CPUs: 64})
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(err))
	_, err = d.Acquire(context.Background(), LeaseSpecification{SourceVM: "base", StartType: "vnc"})
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(err))
	assert.Empty(t, machines.calls)
}

func TestStartMarksRunning(t *testing.T) {
	machines := &fakeMachines{}
	d := newTestDriver(t, machines)
	lease, err := d.Start(context.Background(), Lease{ID: "1", Name: "sandbox-1", Specification: LeaseSpecification{StartType: "gui"}})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, lease.State)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), lease.StartTime)
	assert.Equal(t, []string{"start sandbox-1 gui"}, machines.calls)
}

func TestDestroyRefusesRunningWithoutForce(t *testing.T) {
	machines := &fakeMachines{state: vm.StateRunning}
	d := newTestDriver(t, machines)
	runDir := t.TempDir()
	lease := Lease{ID: "1", Name: "sandbox-1", RunDir: runDir}

	err := d.Destroy(context.Background(), lease, false)
	assert.Equal(t, vmerr.CodeInvalidState, vmerr.CodeOf(err))
	assert.DirExists(t, runDir)

	require.NoError(t, d.Destroy(context.Background(), lease, true))
	assert.Equal(t, "delete sandbox-1 keep=false", machines.calls[len(machines.calls)-1])
	assert.NoDirExists(t, runDir)
}

func TestDestroyToleratesMissingMachine(t *testing.T) {
	machines := &fakeMachines{stateErr: vmerr.New(vmerr.CodeVMNotFound, "vbox.showvminfo", "gone")}
	d := newTestDriver(t, machines)
	require.NoError(t, d.Destroy(context.Background(), Lease{ID: "1", Name: "sandbox-1"}, false))
	assert.Equal(t, []string{"state sandbox-1"}, machines.calls)
}
