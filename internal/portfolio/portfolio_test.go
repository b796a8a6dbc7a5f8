package portfolio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestListGetAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "web.yaml", `
name: web-lab
description: two web servers
version: 2.1.0
targets:
  - vm_name: web-1
    snapshot: clean
  - vm_name: web-2
    start_type: gui
`)
	writeFile(t, dir, "analysis.yml", `
targets:
  - vm_name: flare
`)
	writeFile(t, dir, "notes.txt", "ignored")

	m := NewManager(dir, nil)
	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "analysis", list[0].Name)
	assert.Equal(t, "1.0.0", list[0].Version)
	assert.Equal(t, "web-lab", list[1].Name)

	p, err := m.Get("web-lab")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", p.Version)
	assert.Equal(t, []Target{{VMName: "web-1", Snapshot: "clean"}, {VMName: "web-2", StartType: "gui"}}, p.Targets)

	_, err = m.Get("missing")
	assert.Equal(t, vmerr.CodePortfolio, vmerr.CodeOf(err))
	assert.Contains(t, err.Error(), "analysis, web-lab")
}

func TestCacheUntilReload(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)
	list, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	writeFile(t, dir, "a.yaml", "targets: [{vm_name: a}]\n")
	list, err = m.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = m.Get("a")
	assert.NoError(t, err)
}

func TestInvalidPortfolios(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "targets: [{snapshot: x}]\n")
	_, err := NewManager(dir, nil).List()
	assert.Equal(t, vmerr.CodePortfolio, vmerr.CodeOf(err))

	dir = t.TempDir()
	writeFile(t, dir, "one.yaml", "name: same\n")
	writeFile(t, dir, "two.yaml", "name: same\n")
	_, err = NewManager(dir, nil).List()
	assert.Contains(t, err.Error(), "defined in both")

	dir = t.TempDir()
	writeFile(t, dir, "broken.yaml", "targets: [\n")
	_, err = NewManager(dir, nil).List()
	assert.Equal(t, vmerr.CodePortfolio, vmerr.CodeOf(err))
}

func TestMissingDirectoryIsEmpty(t *testing.T) {
	list, err := NewManager(filepath.Join(t.TempDir(), "absent"), nil).List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

type recordingMachines struct {
	calls   []string
	failVM  string
	failErr error
}

func (r *recordingMachines) RestoreSnapshot(_ context.Context, vmName, name string) error {
	r.calls = append(r.calls, "restore "+vmName+" "+name)
	return nil
}

func (r *recordingMachines) StartVM(_ context.Context, name, startType string) error {
	r.calls = append(r.calls, "start "+name+" "+startType)
	if name == r.failVM {
		return r.failErr
	}
	return nil
}

func TestApplyRestoresThenStarts(t *testing.T) {
	m := &recordingMachines{}
	p := Portfolio{Targets: []Target{{VMName: "a", Snapshot: "clean"}, {VMName: "b", StartType: "gui"}}}
	results, err := Apply(context.Background(), m, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"restore a clean", "start a ", "start b gui"}, m.calls)
	assert.Equal(t, []TargetResult{{VMName: "a", Restored: true, Started: true}, {VMName: "b", Started: true}}, results)
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	m := &recordingMachines{failVM: "a", failErr: vmerr.New(vmerr.CodeVMNotFound, "vbox.startvm", "no such vm")}
	p := Portfolio{Targets: []Target{{VMName: "a"}, {VMName: "b"}}}
	results, err := Apply(context.Background(), m, p)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "VM_NOT_FOUND", results[0].ErrorCode)
	assert.Equal(t, []string{"start a "}, m.calls)
}
