package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cochaviz/virtmcp/internal/vm"
)

// VMArgs are the vm_management parameters.
type VMArgs struct {
	Action         string `json:"action" jsonschema:"operation to perform: list, create, start, stop, delete, clone, reset, pause, resume or info"`
	VMName         string `json:"vm_name,omitempty" jsonschema:"name or UUID of the virtual machine (source machine for clone)"`
	Long           bool   `json:"long,omitempty" jsonschema:"list: include state, memory, cpus and os type for every machine"`
	OSType         string `json:"os_type,omitempty" jsonschema:"create: guest OS type identifier such as Ubuntu_64"`
	MemoryMB       int    `json:"memory_mb,omitempty" jsonschema:"create: memory in MB (at least 128)"`
	CPUs           int    `json:"cpus,omitempty" jsonschema:"create: number of virtual CPUs (1 to 32)"`
	DiskSizeGB     int    `json:"disk_size_gb,omitempty" jsonschema:"create: size of the primary disk in GB"`
	NetworkType    string `json:"network_type,omitempty" jsonschema:"create: first adapter type (nat, bridged, intnet, hostonly or none)"`
	BaseFolder     string `json:"base_folder,omitempty" jsonschema:"create and clone: folder the machine files are placed in"`
	StartType      string `json:"start_type,omitempty" jsonschema:"start: headless, gui, sdl or separate (default headless)"`
	Force          bool   `json:"force,omitempty" jsonschema:"stop: power off immediately instead of an ACPI shutdown"`
	Wait           bool   `json:"wait,omitempty" jsonschema:"stop: wait until the machine reports poweroff"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"stop: how long to wait for poweroff"`
	KeepFiles      bool   `json:"keep_files,omitempty" jsonschema:"delete: unregister only and keep the disk files"`
	NewName        string `json:"new_name,omitempty" jsonschema:"clone: name of the new machine"`
	CloneMode      string `json:"clone_mode,omitempty" jsonschema:"clone: full, linked or all (default full)"`
	SnapshotName   string `json:"snapshot_name,omitempty" jsonschema:"clone: snapshot to clone from"`
}

func (a *VMArgs) SetAction(action string) { a.Action = action }

var vmActions = []Action{
	{Name: "list", Description: "List registered virtual machines", Granular: "list_vms"},
	{Name: "create", Description: "Create a VM with a disk and a first network adapter", Granular: "create_vm"},
	{Name: "start", Description: "Start a virtual machine", Granular: "start_vm"},
	{Name: "stop", Description: "Shut down or power off a virtual machine", Granular: "stop_vm"},
	{Name: "delete", Description: "Unregister a virtual machine and delete its files", Granular: "delete_vm"},
	{Name: "clone", Description: "Clone a virtual machine", Granular: "clone_vm"},
	{Name: "reset", Description: "Hard reset a running virtual machine", Granular: "reset_vm"},
	{Name: "pause", Description: "Pause a running virtual machine", Granular: "pause_vm"},
	{Name: "resume", Description: "Resume a paused virtual machine", Granular: "resume_vm"},
	{Name: "info", Description: "Show the configuration and state of a virtual machine", Granular: "get_vm_info"},
}

func vmTool(deps Deps) Definition[VMArgs] {
	const name = "vm_management"
	return Definition[VMArgs]{
		Name:        name,
		Category:    "vm",
		Description: "Virtual machine lifecycle: list, create, start, stop, delete, clone, reset, pause, resume and inspect machines.",
		Actions:     vmActions,
		Handle: func(ctx context.Context, in VMArgs) Result {
			if r, valid := checkAction(name, in.Action, vmActions); !valid {
				return r
			}
			if deps.Hypervisor == nil {
				return unavailable(in.Action, "a hypervisor")
			}
			return vmDispatch(ctx, deps, in)
		},
	}
}

func vmDispatch(ctx context.Context, deps Deps, in VMArgs) Result {
	h := deps.Hypervisor
	if in.Action != "list" && blank(in.VMName) {
		return required("vm_name", in.Action)
	}

	switch in.Action {
	case "list":
		vms, err := h.ListVMs(ctx, in.Long)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("found %d virtual machines", len(vms)), map[string]any{
			"hypervisor": h.Name(),
			"count":      len(vms),
			"vms":        vms,
		})

	case "info":
		details, err := h.VMInfo(ctx, in.VMName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "", details)

	case "create":
		opts := vm.CreateOptions{
			Name:        in.VMName,
			OSType:      orDefault(in.OSType, deps.Defaults.OSType),
			MemoryMB:    orDefaultInt(in.MemoryMB, deps.Defaults.MemoryMB),
			CPUs:        orDefaultInt(in.CPUs, deps.Defaults.CPUs),
			DiskSizeGB:  orDefaultInt(in.DiskSizeGB, deps.Defaults.DiskGB),
			NetworkType: orDefault(in.NetworkType, "nat"),
			BaseFolder:  orDefault(in.BaseFolder, deps.Defaults.VMFolder),
		}
		if err := opts.Validate(); err != nil {
			return fail(in.Action, err)
		}
		details, err := h.CreateVM(ctx, opts)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("created %s", in.VMName), details)

	case "start":
		startType := orDefault(in.StartType, "headless")
		if err := h.StartVM(ctx, in.VMName, startType); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("started %s", in.VMName), map[string]any{"vm_name": in.VMName, "start_type": startType})

	case "stop":
		timeout := deps.Defaults.StopTimeout
		if in.TimeoutSeconds < 0 {
			return invalid(in.Action, "timeout_seconds must not be negative")
		}
		if in.TimeoutSeconds > 0 {
			timeout = time.Duration(in.TimeoutSeconds) * time.Second
		}
		if err := h.StopVM(ctx, in.VMName, vm.StopOptions{Force: in.Force, Wait: in.Wait, Timeout: timeout}); err != nil {
			return fail(in.Action, err)
		}
		msg := fmt.Sprintf("sent ACPI shutdown to %s", in.VMName)
		if in.Force {
			msg = fmt.Sprintf("powered off %s", in.VMName)
		} else if in.Wait {
			msg = fmt.Sprintf("%s shut down", in.VMName)
		}
		return ok(in.Action, msg, map[string]any{"vm_name": in.VMName, "force": in.Force})

	case "delete":
		if err := h.DeleteVM(ctx, in.VMName, in.KeepFiles); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("deleted %s", in.VMName), map[string]any{"vm_name": in.VMName, "files_kept": in.KeepFiles})

	case "clone":
		if blank(in.NewName) {
			return required("new_name", in.Action)
		}
		opts := vm.CloneOptions{
			Source:     in.VMName,
			Name:       in.NewName,
			Mode:       vm.CloneMode(in.CloneMode),
			Snapshot:   in.SnapshotName,
			BaseFolder: in.BaseFolder,
		}
		if err := opts.Validate(); err != nil {
			return fail(in.Action, err)
		}
		if err := h.CloneVM(ctx, opts); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("cloned %s to %s", in.VMName, in.NewName), map[string]any{
			"source": in.VMName,
			"name":   in.NewName,
			"mode":   orDefault(in.CloneMode, string(vm.CloneFull)),
		})

	case "pause", "resume", "reset":
		control := map[string]func(context.Context, string) error{
			"pause":  h.PauseVM,
			"resume": h.ResumeVM,
			"reset":  h.ResetVM,
		}[in.Action]
		if err := control(ctx, in.VMName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("%s %s", pastTense[in.Action], in.VMName), map[string]any{"vm_name": in.VMName})
	}
	return unhandled(in.Action)
}

var pastTense = map[string]string{"pause": "paused", "resume": "resumed", "reset": "reset"}

func orDefault(value, fallback string) string {
	if blank(value) {
		return fallback
	}
	return value
}

func orDefaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
