package tools

import (
	"context"
	"fmt"
)

// SnapshotArgs are the snapshot_management parameters.
type SnapshotArgs struct {
	Action       string `json:"action" jsonschema:"operation to perform: list, create, restore or delete"`
	VMName       string `json:"vm_name,omitempty" jsonschema:"name or UUID of the virtual machine"`
	SnapshotName string `json:"snapshot_name,omitempty" jsonschema:"name of the snapshot (create, restore, delete)"`
	Description  string `json:"description,omitempty" jsonschema:"create: free text stored with the snapshot"`
	Live         bool   `json:"live,omitempty" jsonschema:"create: take the snapshot without pausing a running machine"`
}

func (a *SnapshotArgs) SetAction(action string) { a.Action = action }

var snapshotActions = []Action{
	{Name: "list", Description: "List the snapshots of a virtual machine", Granular: "list_snapshots"},
	{Name: "create", Description: "Take a snapshot of a virtual machine", Granular: "create_snapshot"},
	{Name: "restore", Description: "Restore a virtual machine to a snapshot", Granular: "restore_snapshot"},
	{Name: "delete", Description: "Delete a snapshot", Granular: "delete_snapshot"},
}

func snapshotTool(deps Deps) Definition[SnapshotArgs] {
	const name = "snapshot_management"
	return Definition[SnapshotArgs]{
		Name:        name,
		Category:    "snapshot",
		Description: "Snapshot management: list, create, restore and delete virtual machine snapshots.",
		Actions:     snapshotActions,
		Handle: func(ctx context.Context, in SnapshotArgs) Result {
			if r, valid := checkAction(name, in.Action, snapshotActions); !valid {
				return r
			}
			if deps.Hypervisor == nil {
				return unavailable(in.Action, "a hypervisor")
			}
			if blank(in.VMName) {
				return required("vm_name", in.Action)
			}
			if in.Action != "list" && blank(in.SnapshotName) {
				return required("snapshot_name", in.Action)
			}
			return snapshotDispatch(ctx, deps.Hypervisor, in)
		},
	}
}

func snapshotDispatch(ctx context.Context, h Hypervisor, in SnapshotArgs) Result {
	data := map[string]any{"vm_name": in.VMName, "snapshot_name": in.SnapshotName}
	switch in.Action {
	case "list":
		snaps, err := h.ListSnapshots(ctx, in.VMName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("%s has %d snapshots", in.VMName, len(snaps)), map[string]any{
			"vm_name":   in.VMName,
			"count":     len(snaps),
			"snapshots": snaps,
		})
	case "create":
		if err := h.TakeSnapshot(ctx, in.VMName, in.SnapshotName, in.Description, in.Live); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("took snapshot %s of %s", in.SnapshotName, in.VMName), data)
	case "restore":
		if err := h.RestoreSnapshot(ctx, in.VMName, in.SnapshotName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("restored %s to %s", in.VMName, in.SnapshotName), data)
	case "delete":
		if err := h.DeleteSnapshot(ctx, in.VMName, in.SnapshotName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("deleted snapshot %s of %s", in.SnapshotName, in.VMName), data)
	}
	return unhandled(in.Action)
}
