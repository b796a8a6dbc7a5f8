package tools

import (
	"context"
	"fmt"
)

// HyperVArgs are the hyperv_management parameters.
type HyperVArgs struct {
	Action string `json:"action" jsonschema:"operation to perform: list, get, start or stop"`
	VMName string `json:"vm_name,omitempty" jsonschema:"name of the Hyper-V virtual machine"`
	Force  bool   `json:"force,omitempty" jsonschema:"stop: turn the machine off instead of a guest shutdown"`
	Wait   bool   `json:"wait,omitempty" jsonschema:"start and stop: wait until the machine reaches the new state"`
}

func (a *HyperVArgs) SetAction(action string) { a.Action = action }

var hypervActions = []Action{
	{Name: "list", Description: "List Hyper-V virtual machines", Granular: "list_hyperv_vms"},
	{Name: "get", Description: "Show one Hyper-V virtual machine", Granular: "get_hyperv_vm"},
	{Name: "start", Description: "Start a Hyper-V virtual machine", Granular: "start_hyperv_vm"},
	{Name: "stop", Description: "Stop a Hyper-V virtual machine", Granular: "stop_hyperv_vm"},
}

func hypervTool(deps Deps) Definition[HyperVArgs] {
	const name = "hyperv_management"
	return Definition[HyperVArgs]{
		Name:        name,
		Category:    "hyperv",
		Description: "Hyper-V virtual machines on Windows hosts: list, get, start and stop.",
		Actions:     hypervActions,
		Handle: func(ctx context.Context, in HyperVArgs) Result {
			if r, valid := checkAction(name, in.Action, hypervActions); !valid {
				return r
			}
			if deps.HyperV == nil {
				return unavailable(in.Action, "Hyper-V")
			}
			if in.Action != "list" && blank(in.VMName) {
				return required("vm_name", in.Action)
			}
			h := deps.HyperV
			switch in.Action {
			case "list":
				vms, err := h.List(ctx)
				if err != nil {
					return fail(in.Action, err)
				}
				return ok(in.Action, fmt.Sprintf("found %d Hyper-V machines", len(vms)), map[string]any{"count": len(vms), "vms": vms})
			case "get":
				got, err := h.Get(ctx, in.VMName)
				if err != nil {
					return fail(in.Action, err)
				}
				return ok(in.Action, "", got)
			case "start":
				got, err := h.Start(ctx, in.VMName, in.Wait)
				if err != nil {
					return fail(in.Action, err)
				}
				return ok(in.Action, fmt.Sprintf("started %s", in.VMName), got)
			case "stop":
				got, err := h.Stop(ctx, in.VMName, in.Force, in.Wait)
				if err != nil {
					return fail(in.Action, err)
				}
				return ok(in.Action, fmt.Sprintf("stopped %s", in.VMName), got)
			}
			return unhandled(in.Action)
		},
	}
}
