package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cochaviz/virtmcp/internal/backup"
)

// BackupArgs are the backup_management parameters.
type BackupArgs struct {
	Action        string `json:"action" jsonschema:"operation to perform: create, list, get, restore, delete or cleanup"`
	VMName        string `json:"vm_name,omitempty" jsonschema:"create: machine to export; list and cleanup: only this machine's backups"`
	BackupID      string `json:"backup_id,omitempty" jsonschema:"get, restore and delete: id of the backup"`
	Description   string `json:"description,omitempty" jsonschema:"create: free text stored with the backup"`
	NewName       string `json:"new_name,omitempty" jsonschema:"restore: register the machine under this name instead of the original one"`
	OlderThanDays int    `json:"older_than_days,omitempty" jsonschema:"cleanup: delete backups older than this many days"`
	Keep          int    `json:"keep,omitempty" jsonschema:"cleanup: keep at most this many of the newest backups"`
}

func (a *BackupArgs) SetAction(action string) { a.Action = action }

var backupActions = []Action{
	{Name: "create", Description: "Export a powered-off virtual machine to an OVA backup", Granular: "create_backup"},
	{Name: "list", Description: "List backups, newest first", Granular: "list_backups"},
	{Name: "get", Description: "Show one backup", Granular: "get_backup"},
	{Name: "restore", Description: "Import a virtual machine from a backup", Granular: "restore_backup"},
	{Name: "delete", Description: "Delete a backup and its archive", Granular: "delete_backup"},
	{Name: "cleanup", Description: "Delete backups by age or keep only the newest ones", Granular: "cleanup_backups"},
}

func backupTool(deps Deps) Definition[BackupArgs] {
	const name = "backup_management"
	return Definition[BackupArgs]{
		Name:        name,
		Category:    "backup",
		Description: "Backups: export virtual machines to OVA archives, restore them and prune old archives.",
		Actions:     backupActions,
		Handle: func(ctx context.Context, in BackupArgs) Result {
			if r, valid := checkAction(name, in.Action, backupActions); !valid {
				return r
			}
			if deps.Backups == nil {
				return unavailable(in.Action, "VirtualBox backups")
			}
			switch in.Action {
			case "create":
				if blank(in.VMName) {
					return required("vm_name", in.Action)
				}
			case "get", "restore", "delete":
				if blank(in.BackupID) {
					return required("backup_id", in.Action)
				}
			case "cleanup":
				if in.OlderThanDays < 0 || in.Keep < 0 {
					return invalid(in.Action, "older_than_days and keep must not be negative")
				}
				if in.OlderThanDays == 0 && in.Keep == 0 {
					return invalid(in.Action, "older_than_days or keep is required for cleanup action")
				}
			}
			return backupDispatch(ctx, deps.Backups, in)
		},
	}
}

func backupDispatch(ctx context.Context, b Backups, in BackupArgs) Result {
	switch in.Action {
	case "create":
		created, err := b.Create(ctx, in.VMName, in.Description)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("backed up %s as %s", in.VMName, created.ID), created)
	case "list":
		list, err := b.List(ctx, in.VMName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("found %d backups", len(list)), map[string]any{"count": len(list), "backups": list})
	case "get":
		got, err := b.Get(ctx, in.BackupID)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "", got)
	case "restore":
		restored, err := b.Restore(ctx, in.BackupID, in.NewName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("restored %s from backup %s", restored, in.BackupID), map[string]any{
			"backup_id": in.BackupID,
			"vm_name":   restored,
		})
	case "delete":
		if err := b.Delete(ctx, in.BackupID); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("deleted backup %s", in.BackupID), map[string]any{"backup_id": in.BackupID})
	case "cleanup":
		report, err := b.Cleanup(ctx, backup.Policy{
			VMName:    in.VMName,
			OlderThan: time.Duration(in.OlderThanDays) * 24 * time.Hour,
			Keep:      in.Keep,
		})
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("deleted %d backups", len(report.Deleted)), report)
	}
	return unhandled(in.Action)
}
