package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vbox"
)

// SystemArgs are the system_management parameters.
type SystemArgs struct {
	Action     string `json:"action" jsonschema:"operation to perform: host_info, vbox_version, ostypes, extpacks, metrics or screenshot"`
	VMName     string `json:"vm_name,omitempty" jsonschema:"metrics and screenshot: virtual machine to query"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"screenshot: where to write the PNG (default a temporary file)"`
	Family     string `json:"family,omitempty" jsonschema:"ostypes: only return types whose family contains this text"`
}

func (a *SystemArgs) SetAction(action string) { a.Action = action }

var systemActions = []Action{
	{Name: "host_info", Description: "Describe the host: OS, CPUs, memory, interfaces and VirtualBox host data", Granular: "get_host_info"},
	{Name: "vbox_version", Description: "Report the VirtualBox version", Granular: "get_vbox_version"},
	{Name: "ostypes", Description: "List the guest OS types VirtualBox knows", Granular: "list_ostypes"},
	{Name: "extpacks", Description: "List installed extension packs", Granular: "list_extpacks"},
	{Name: "metrics", Description: "Query performance metrics of a virtual machine", Granular: "get_vm_metrics"},
	{Name: "screenshot", Description: "Save a PNG of a running machine's display", Granular: "take_screenshot"},
}

func systemTool(deps Deps) Definition[SystemArgs] {
	const name = "system_management"
	return Definition[SystemArgs]{
		Name:        name,
		Category:    "system",
		Description: "Host and hypervisor information: host facts, VirtualBox version, OS types, extension packs, metrics and screenshots.",
		Actions:     systemActions,
		Handle: func(ctx context.Context, in SystemArgs) Result {
			if r, valid := checkAction(name, in.Action, systemActions); !valid {
				return r
			}
			if in.Action == "host_info" {
				return hostInfo(ctx, deps, in.Action)
			}
			if deps.System == nil {
				return unavailable(in.Action, "VirtualBox")
			}
			return systemDispatch(ctx, deps.System, in)
		},
	}
}

func hostInfo(ctx context.Context, deps Deps, action string) Result {
	info, err := deps.Host.Collect(ctx)
	if err != nil {
		return fail(action, err)
	}
	data := map[string]any{"host": info}
	if deps.System != nil {
		if props, err := deps.System.HostInfo(ctx); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("virtualbox host info: %v", err))
			data["host"] = info
		} else {
			data["virtualbox"] = props
		}
	}
	return ok(action, fmt.Sprintf("%s (%s/%s)", info.Hostname, info.OS, info.Arch), data)
}

func systemDispatch(ctx context.Context, s System, in SystemArgs) Result {
	switch in.Action {
	case "vbox_version":
		version, err := s.Version(ctx)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "VirtualBox "+version, map[string]any{"version": version})

	case "ostypes":
		types, err := s.OSTypes(ctx)
		if err != nil {
			return fail(in.Action, err)
		}
		if !blank(in.Family) {
			needle := strings.ToLower(in.Family)
			types = slices.DeleteFunc(types, func(t vbox.OSType) bool {
				return !strings.Contains(strings.ToLower(t.Family), needle) &&
					!strings.Contains(strings.ToLower(t.FamilyID), needle)
			})
		}
		return ok(in.Action, fmt.Sprintf("found %d OS types", len(types)), map[string]any{"count": len(types), "os_types": types})

	case "extpacks":
		packs, err := s.ExtPacks(ctx)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("found %d extension packs", len(packs)), map[string]any{"extension_packs": packs})

	case "metrics":
		if blank(in.VMName) {
			return required("vm_name", in.Action)
		}
		metrics, err := s.Metrics(ctx, in.VMName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "", map[string]any{"vm_name": in.VMName, "metrics": metrics})

	case "screenshot":
		if blank(in.VMName) {
			return required("vm_name", in.Action)
		}
		path, err := s.Screenshot(ctx, in.VMName, in.OutputPath)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("saved screenshot of %s to %s", in.VMName, path), map[string]any{"vm_name": in.VMName, "path": path})
	}
	return unhandled(in.Action)
}
