package tools

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/portfolio"
	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

func newTestSet(h *fakeHypervisor) *Set {
	deps := Deps{
		Host: fakeHost,
		Defaults: Defaults{
			OSType:      "Ubuntu_64",
			MemoryMB:    2048,
			CPUs:        2,
			DiskGB:      20,
			VMFolder:    "/vms",
			StopTimeout: time.Minute,
		},
	}
	if h != nil {
		deps.Hypervisor = h
	}
	return New(deps)
}

func call(t *testing.T, s *Set, tool string, args map[string]any) Result {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return s.Call(context.Background(), tool, raw)
}

func TestEveryToolRejectsUnknownAction(t *testing.T) {
	s := newTestSet(&fakeHypervisor{})
	for _, spec := range s.Specs() {
		r := call(t, s, spec.Name, map[string]any{"action": "explode"})
		assert.False(t, r.Success, spec.Name)
		assert.Equal(t, string(vmerr.CodeInvalidAction), r.ErrorCode, spec.Name)
		assert.Contains(t, r.Error, "Invalid action 'explode' for "+spec.Name, spec.Name)
		assert.Len(t, r.AvailableActions, len(spec.Actions), spec.Name)
		for _, a := range spec.Actions {
			assert.Equal(t, a.Description, r.AvailableActions[a.Name], spec.Name)
		}
	}
}

func TestMissingActionIsInvalidAction(t *testing.T) {
	r := call(t, newTestSet(nil), "vm_management", map[string]any{})
	assert.Equal(t, string(vmerr.CodeInvalidAction), r.ErrorCode)
	assert.Contains(t, r.Error, "action is required for vm_management")
}

func TestRequiredParameters(t *testing.T) {
	s := newTestSet(&fakeHypervisor{})
	cases := []struct {
		tool, action, param string
	}{
		{"vm_management", "start", "vm_name"},
		{"vm_management", "clone", "vm_name"},
		{"snapshot_management", "list", "vm_name"},
		{"discovery_management", "info", "tool_name"},
		{"sandbox_management", "generate_config", "sandbox_name"},
	}
	for _, c := range cases {
		r := call(t, s, c.tool, map[string]any{"action": c.action})
		assert.Equal(t, string(vmerr.CodeValidation), r.ErrorCode, c.tool+" "+c.action)
		assert.Equal(t, c.param+" is required for "+c.action+" action", r.Error)
	}

	r := call(t, s, "snapshot_management", map[string]any{"action": "create", "vm_name": "alpha"})
	assert.Equal(t, "snapshot_name is required for create action", r.Error)
	r = call(t, s, "vm_management", map[string]any{"action": "clone", "vm_name": "alpha"})
	assert.Equal(t, "new_name is required for clone action", r.Error)
}

func TestUnconfiguredBackends(t *testing.T) {
	s := newTestSet(nil)
	for tool, action := range map[string]string{
		"vm_management":        "list",
		"network_management":   "list_networks",
		"storage_management":   "list_disks",
		"system_management":    "vbox_version",
		"hyperv_management":    "list",
		"portfolio_management": "list",
		"sandbox_management":   "list_vm_sandboxes",
	} {
		r := call(t, s, tool, map[string]any{"action": action})
		assert.Equal(t, string(vmerr.CodeConfiguration), r.ErrorCode, tool)
		assert.Contains(t, r.Error, "is not configured on this server", tool)
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	h := &fakeHypervisor{}
	r := call(t, newTestSet(h), "vm_management", map[string]any{"action": "create", "vm_name": "alpha", "memory_mb": 4096})
	require.True(t, r.Success, r.Error)
	assert.Equal(t, vm.CreateOptions{
		Name:        "alpha",
		OSType:      "Ubuntu_64",
		MemoryMB:    4096,
		CPUs:        2,
		DiskSizeGB:  20,
		NetworkType: "nat",
		BaseFolder:  "/vms",
	}, h.created)
}

func TestCreateValidatesBeforeCalling(t *testing.T) {
	h := &fakeHypervisor{}
	r := call(t, newTestSet(h), "vm_management", map[string]any{"action": "create", "vm_name": "alpha", "cpus": 64})
	assert.Equal(t, string(vmerr.CodeValidation), r.ErrorCode)
	assert.Empty(t, h.calls)
}

func TestStopOptions(t *testing.T) {
	h := &fakeHypervisor{}
	s := newTestSet(h)

	r := call(t, s, "vm_management", map[string]any{"action": "stop", "vm_name": "alpha", "wait": true, "timeout_seconds": 5})
	require.True(t, r.Success)
	assert.Equal(t, vm.StopOptions{Wait: true, Timeout: 5 * time.Second}, h.stopped)

	r = call(t, s, "vm_management", map[string]any{"action": "stop", "vm_name": "alpha", "force": true})
	require.True(t, r.Success)
	assert.Equal(t, vm.StopOptions{Force: true, Timeout: time.Minute}, h.stopped)
	assert.Equal(t, "powered off alpha", r.Message)
}

func TestBackendErrorCodeIsReported(t *testing.T) {
	h := &fakeHypervisor{failOn: "start", failErr: vmerr.New(vmerr.CodeVMNotFound, "vbox.startvm", "machine not found")}
	r := call(t, newTestSet(h), "vm_management", map[string]any{"action": "start", "vm_name": "ghost"})
	assert.False(t, r.Success)
	assert.Equal(t, "VM_NOT_FOUND", r.ErrorCode)
	assert.Equal(t, "vbox.startvm: machine not found", r.Error)
	assert.Equal(t, "start", r.Action)
}

func TestControlVerbsAndSnapshots(t *testing.T) {
	h := &fakeHypervisor{}
	s := newTestSet(h)
	for _, action := range []string{"pause", "resume", "reset"} {
		require.True(t, call(t, s, "vm_management", map[string]any{"action": action, "vm_name": "alpha"}).Success)
	}
	require.True(t, call(t, s, "snapshot_management", map[string]any{
		"action": "create", "vm_name": "alpha", "snapshot_name": "clean", "description": "fresh install",
	}).Success)
	require.True(t, call(t, s, "snapshot_management", map[string]any{"action": "restore", "vm_name": "alpha", "snapshot_name": "clean"}).Success)

	assert.Equal(t, []string{
		"pause alpha",
		"resume alpha",
		"reset alpha",
		"snapshot alpha clean fresh install false",
		"restore alpha clean",
	}, h.calls)
}

func TestGranularNamesFixTheAction(t *testing.T) {
	h := &fakeHypervisor{}
	s := newTestSet(h)

	r := call(t, s, "start_vm", map[string]any{"vm_name": "alpha", "start_type": "gui"})
	require.True(t, r.Success, r.Error)
	assert.Equal(t, "start", r.Action)
	assert.Equal(t, []string{"start alpha gui"}, h.calls)

	tool, action, found := s.Granular("list_snapshots")
	assert.True(t, found)
	assert.Equal(t, "snapshot_management", tool)
	assert.Equal(t, "list", action)
}

func TestGranularNamesAreUnique(t *testing.T) {
	seen := map[string]string{}
	for _, spec := range newTestSet(nil).Specs() {
		for _, a := range spec.Actions {
			prev, dup := seen[a.Granular]
			assert.False(t, dup, "%s used by %s and %s", a.Granular, prev, spec.Name)
			seen[a.Granular] = spec.Name
		}
	}
}

func TestUnknownToolAndBadArguments(t *testing.T) {
	s := newTestSet(nil)
	r := s.Call(context.Background(), "teleport", nil)
	assert.Equal(t, string(vmerr.CodeInvalidAction), r.ErrorCode)

	r = s.Call(context.Background(), "vm_management", json.RawMessage(`{"action": 5}`))
	assert.Equal(t, string(vmerr.CodeValidation), r.ErrorCode)
}

func TestSchemasRequireOnlyAction(t *testing.T) {
	for _, spec := range newTestSet(nil).Specs() {
		require.NotNil(t, spec.InputSchema, spec.Name)
		assert.Equal(t, "object", spec.InputSchema.Type, spec.Name)
		assert.Equal(t, []string{"action"}, spec.InputSchema.Required, spec.Name)
		assert.Contains(t, spec.InputSchema.Properties, "action", spec.Name)

		stripped := WithoutAction(spec.InputSchema)
		assert.NotContains(t, stripped.Properties, "action", spec.Name)
		assert.Empty(t, stripped.Required, spec.Name)
		assert.Contains(t, spec.InputSchema.Properties, "action", "original schema must be untouched")
	}
}

func TestHostInfoWithoutVirtualBox(t *testing.T) {
	r := call(t, newTestSet(nil), "system_management", map[string]any{"action": "host_info"})
	require.True(t, r.Success, r.Error)
	data := r.Data.(map[string]any)
	assert.Contains(t, data, "host")
	assert.NotContains(t, data, "virtualbox")
	assert.Equal(t, "lab (linux/amd64)", r.Message)
}

func TestListHostInterfaces(t *testing.T) {
	r := call(t, newTestSet(nil), "network_management", map[string]any{"action": "list_host_interfaces"})
	require.True(t, r.Success, r.Error)
	assert.Equal(t, "found 2 host interfaces", r.Message)
}

func TestDiscovery(t *testing.T) {
	s := newTestSet(nil)

	r := call(t, s, "discovery_management", map[string]any{"action": "list"})
	require.True(t, r.Success)
	assert.Equal(t, 11, r.Data.(map[string]any)["count"])

	r = call(t, s, "discovery_management", map[string]any{"action": "list", "category": "snapshot"})
	tools := r.Data.(map[string]any)["tools"].([]toolSummary)
	require.Len(t, tools, 1)
	assert.Equal(t, "snapshot_management", tools[0].Name)

	r = call(t, s, "discovery_management", map[string]any{"action": "list", "search": "port_forward"})
	tools = r.Data.(map[string]any)["tools"].([]toolSummary)
	require.Len(t, tools, 1)
	assert.Equal(t, "network_management", tools[0].Name)

	r = call(t, s, "discovery_management", map[string]any{"action": "info", "tool_name": "vm_management"})
	require.True(t, r.Success)
	spec := r.Data.(Spec)
	assert.Nil(t, spec.InputSchema)
	assert.Len(t, spec.Actions, 10)

	r = call(t, s, "discovery_management", map[string]any{"action": "schema", "tool_name": "vm_management"})
	require.True(t, r.Success)
	assert.NotNil(t, r.Data.(map[string]any)["input_schema"])

	r = call(t, s, "discovery_management", map[string]any{"action": "schema", "tool_name": "nope"})
	assert.Equal(t, string(vmerr.CodeValidation), r.ErrorCode)
	assert.Contains(t, r.Error, "vm_management")
}

func TestGenerateConfig(t *testing.T) {
	s := newTestSet(nil)
	share := t.TempDir()
	out := filepath.Join(t.TempDir(), "nested", "lab.wsb")

	r := call(t, s, "sandbox_management", map[string]any{
		"action":         "generate_config",
		"sandbox_name":   "lab",
		"networking":     false,
		"mapped_folders": []map[string]any{{"host_path": share, "read_only": true}},
		"logon_commands": []string{`cmd /c echo "a & b" > <out>`},
		"output_path":    out,
	})
	require.True(t, r.Success, r.Error)
	doc := r.Data.(map[string]any)["xml"].(string)

	var parsed struct {
		Networking string   `xml:"Networking"`
		Commands   []string `xml:"LogonCommand>Command"`
	}
	require.NoError(t, xml.Unmarshal([]byte(doc), &parsed))
	assert.Equal(t, "Disable", parsed.Networking)
	assert.Equal(t, []string{`cmd /c echo "a & b" > <out>`}, parsed.Commands)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, doc, string(written))
}

func TestGenerateConfigRejectsMissingFolder(t *testing.T) {
	out := filepath.Join(t.TempDir(), "lab.wsb")
	r := call(t, newTestSet(nil), "sandbox_management", map[string]any{
		"action":         "generate_config",
		"sandbox_name":   "lab",
		"mapped_folders": []map[string]any{{"host_path": "relative/dir"}},
		"output_path":    out,
	})
	assert.Equal(t, string(vmerr.CodeValidation), r.ErrorCode)
	assert.NoFileExists(t, out)
}

type staticPortfolios struct {
	p portfolio.Portfolio
}

func (s staticPortfolios) List() ([]portfolio.Portfolio, error) {
	return []portfolio.Portfolio{s.p}, nil
}
func (s staticPortfolios) Reload() (int, error) { return 1, nil }

func (s staticPortfolios) Get(name string) (portfolio.Portfolio, error) {
	if name != s.p.Name {
		return portfolio.Portfolio{}, vmerr.New(vmerr.CodePortfolio, "portfolio.get", "portfolio %q not found", name)
	}
	return s.p, nil
}

func TestApplyPortfolio(t *testing.T) {
	h := &fakeHypervisor{}
	s := New(Deps{
		Hypervisor: h,
		Host:       fakeHost,
		Portfolios: staticPortfolios{p: portfolio.Portfolio{
			Name:    "lab",
			Targets: []portfolio.Target{{VMName: "dc", Snapshot: "clean"}, {VMName: "ws"}},
		}},
	})

	r := call(t, s, "portfolio_management", map[string]any{"action": "apply", "portfolio_name": "lab"})
	require.True(t, r.Success, r.Error)
	assert.Equal(t, []string{"restore dc clean", "start dc ", "start ws "}, h.calls)

	r = call(t, s, "portfolio_management", map[string]any{"action": "get", "portfolio_name": "other"})
	assert.Equal(t, string(vmerr.CodePortfolio), r.ErrorCode)

	h.failOn = "start"
	r = call(t, s, "portfolio_management", map[string]any{"action": "apply", "portfolio_name": "lab"})
	assert.False(t, r.Success)
	assert.Len(t, r.Data.(map[string]any)["targets"], 1)
}
