package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cochaviz/virtmcp/internal/sandbox"
	"github.com/cochaviz/virtmcp/internal/vmerr"
	"github.com/cochaviz/virtmcp/internal/winsandbox"
)

// SandboxArgs are the sandbox_management parameters. Windows Sandbox and VM
// sandbox actions share the structure.
type SandboxArgs struct {
	Action string `json:"action" jsonschema:"operation to perform, see available actions"`

	SandboxName   string                    `json:"sandbox_name,omitempty" jsonschema:"Windows Sandbox name, or the machine name of a VM sandbox"`
	MemoryMB      int                       `json:"memory_mb,omitempty" jsonschema:"memory in MB (Windows Sandbox default 4096)"`
	VGPU          *bool                     `json:"vgpu,omitempty" jsonschema:"Windows Sandbox: enable the virtual GPU (default true)"`
	Networking    *bool                     `json:"networking,omitempty" jsonschema:"Windows Sandbox: enable networking (default true)"`
	MappedFolders []winsandbox.MappedFolder `json:"mapped_folders,omitempty" jsonschema:"Windows Sandbox: host folders shared with the sandbox"`
	LogonCommands []string                  `json:"logon_commands,omitempty" jsonschema:"Windows Sandbox: commands run at logon"`
	OutputPath    string                    `json:"output_path,omitempty" jsonschema:"generate_config: also write the document to this absolute path"`
	Launch        bool                      `json:"launch,omitempty" jsonschema:"create_windows_sandbox: start WindowsSandbox.exe after writing the file"`

	SandboxID      string `json:"sandbox_id,omitempty" jsonschema:"id of an existing sandbox (stop, remove, destroy)"`
	SourceVM       string `json:"source_vm,omitempty" jsonschema:"create_vm_sandbox: machine to clone"`
	Snapshot       string `json:"snapshot,omitempty" jsonschema:"create_vm_sandbox: snapshot of the source to clone from"`
	CPUs           int    `json:"cpus,omitempty" jsonschema:"create_vm_sandbox: number of virtual CPUs"`
	IsolateNetwork bool   `json:"isolate_network,omitempty" jsonschema:"create_vm_sandbox: attach every adapter to a private internal network"`
	ShareDir       string `json:"share_dir,omitempty" jsonschema:"create_vm_sandbox: host directory mounted into the clone as an ISO"`
	StartType      string `json:"start_type,omitempty" jsonschema:"create_vm_sandbox: headless, gui, sdl or separate"`
	NoStart        bool   `json:"no_start,omitempty" jsonschema:"create_vm_sandbox: only clone and configure, do not start"`
	Force          bool   `json:"force,omitempty" jsonschema:"destroy_vm_sandbox: destroy even while running"`
}

func (a *SandboxArgs) SetAction(action string) { a.Action = action }

var sandboxActions = []Action{
	{Name: "generate_config", Description: "Render a Windows Sandbox .wsb document", Granular: "generate_sandbox_config"},
	{Name: "create_windows_sandbox", Description: "Write a .wsb file and optionally launch Windows Sandbox", Granular: "create_windows_sandbox"},
	{Name: "list_windows_sandboxes", Description: "List tracked Windows Sandboxes", Granular: "list_windows_sandboxes"},
	{Name: "stop_windows_sandbox", Description: "Stop a launched Windows Sandbox", Granular: "stop_windows_sandbox"},
	{Name: "remove_windows_sandbox", Description: "Delete a Windows Sandbox file and its record", Granular: "remove_windows_sandbox"},
	{Name: "create_vm_sandbox", Description: "Clone a source VM into a disposable sandbox", Granular: "create_vm_sandbox"},
	{Name: "destroy_vm_sandbox", Description: "Destroy a VM sandbox and its files", Granular: "destroy_vm_sandbox"},
	{Name: "list_vm_sandboxes", Description: "List VM sandboxes", Granular: "list_vm_sandboxes"},
}

func sandboxTool(deps Deps) Definition[SandboxArgs] {
	const name = "sandbox_management"
	return Definition[SandboxArgs]{
		Name:        name,
		Category:    "sandbox",
		Description: "Sandboxes: Windows Sandbox configuration and sessions, and disposable VirtualBox clones.",
		Actions:     sandboxActions,
		Handle: func(ctx context.Context, in SandboxArgs) Result {
			if r, valid := checkAction(name, in.Action, sandboxActions); !valid {
				return r
			}
			switch in.Action {
			case "generate_config":
				return generateConfig(in)
			case "create_windows_sandbox", "list_windows_sandboxes", "stop_windows_sandbox", "remove_windows_sandbox":
				if deps.WindowsSandboxes == nil {
					return unavailable(in.Action, "Windows Sandbox tracking")
				}
				return windowsSandboxDispatch(ctx, deps.WindowsSandboxes, in)
			default:
				if deps.VMSandboxes == nil {
					return unavailable(in.Action, "VM sandboxes")
				}
				return vmSandboxDispatch(ctx, deps.VMSandboxes, in)
			}
		},
	}
}

func (a SandboxArgs) windowsConfig() winsandbox.SandboxConfig {
	return winsandbox.SandboxConfig{
		Name:          a.SandboxName,
		MemoryMB:      a.MemoryMB,
		VGPU:          a.VGPU,
		Networking:    a.Networking,
		MappedFolders: a.MappedFolders,
		LogonCommands: a.LogonCommands,
	}
}

func generateConfig(in SandboxArgs) Result {
	if blank(in.SandboxName) {
		return required("sandbox_name", in.Action)
	}
	doc, err := winsandbox.RenderXML(in.windowsConfig())
	if err != nil {
		return fail(in.Action, err)
	}
	data := map[string]any{"sandbox_name": in.SandboxName, "xml": string(doc)}
	if !blank(in.OutputPath) {
		if !filepath.IsAbs(in.OutputPath) {
			return invalid(in.Action, "output_path must be absolute, got %q", in.OutputPath)
		}
		if err := writeConfig(in.OutputPath, doc); err != nil {
			return fail(in.Action, err)
		}
		data["output_path"] = in.OutputPath
	}
	return ok(in.Action, fmt.Sprintf("generated configuration for %s", in.SandboxName), data)
}

func writeConfig(path string, doc []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.write", err)
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.write", err)
	}
	return nil
}

func windowsSandboxDispatch(ctx context.Context, w WindowsSandboxes, in SandboxArgs) Result {
	switch in.Action {
	case "create_windows_sandbox":
		if blank(in.SandboxName) {
			return required("sandbox_name", in.Action)
		}
		rec, err := w.Create(ctx, in.windowsConfig(), in.Launch)
		if err != nil {
			return fail(in.Action, err)
		}
		msg := fmt.Sprintf("wrote %s", rec.WSBPath)
		if in.Launch {
			msg = fmt.Sprintf("launched %s from %s", rec.Name, rec.WSBPath)
		}
		return ok(in.Action, msg, rec)

	case "list_windows_sandboxes":
		recs, err := w.List(ctx)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("tracking %d Windows Sandboxes", len(recs)), map[string]any{"count": len(recs), "sandboxes": recs})

	case "stop_windows_sandbox":
		if blank(in.SandboxID) {
			return required("sandbox_id", in.Action)
		}
		rec, err := w.Stop(ctx, in.SandboxID)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("stopped %s", rec.Name), rec)

	case "remove_windows_sandbox":
		if blank(in.SandboxID) {
			return required("sandbox_id", in.Action)
		}
		if err := w.Remove(ctx, in.SandboxID); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("removed %s", in.SandboxID), map[string]any{"sandbox_id": in.SandboxID})
	}
	return unhandled(in.Action)
}

func vmSandboxDispatch(ctx context.Context, s VMSandboxes, in SandboxArgs) Result {
	switch in.Action {
	case "create_vm_sandbox":
		if blank(in.SourceVM) {
			return required("source_vm", in.Action)
		}
		spec := sandbox.LeaseSpecification{
			SourceVM:       in.SourceVM,
			Snapshot:       in.Snapshot,
			Name:           in.SandboxName,
			MemoryMB:       in.MemoryMB,
			CPUs:           in.CPUs,
			IsolateNetwork: in.IsolateNetwork,
			ShareDir:       in.ShareDir,
			StartType:      in.StartType,
		}
		lease, err := s.Create(ctx, spec, !in.NoStart)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("sandbox %s cloned from %s", lease.Name, in.SourceVM), lease)

	case "destroy_vm_sandbox":
		if blank(in.SandboxID) {
			return required("sandbox_id", in.Action)
		}
		if err := s.Destroy(ctx, in.SandboxID, in.Force); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("destroyed sandbox %s", in.SandboxID), map[string]any{"sandbox_id": in.SandboxID})

	case "list_vm_sandboxes":
		leases, err := s.List(ctx)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("%d VM sandboxes", len(leases)), map[string]any{"count": len(leases), "sandboxes": leases})
	}
	return unhandled(in.Action)
}
