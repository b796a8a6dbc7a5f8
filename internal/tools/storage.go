package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cochaviz/virtmcp/internal/media"
	"github.com/cochaviz/virtmcp/internal/vbox"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// StorageArgs are the storage_management parameters.
type StorageArgs struct {
	Action         string `json:"action" jsonschema:"operation to perform, see available actions"`
	VMName         string `json:"vm_name,omitempty" jsonschema:"virtual machine the controller or medium belongs to"`
	ControllerName string `json:"controller_name,omitempty" jsonschema:"storage controller name (default SATA for attach and mount)"`
	ControllerType string `json:"controller_type,omitempty" jsonschema:"create_controller: ide, sata, scsi, sas, usb or pcie"`
	Port           int    `json:"port,omitempty" jsonschema:"controller port (default 0)"`
	Device         int    `json:"device,omitempty" jsonschema:"controller device (default 0)"`
	DiskPath       string `json:"disk_path,omitempty" jsonschema:"path of a virtual disk file"`
	SizeGB         int    `json:"size_gb,omitempty" jsonschema:"create_disk and resize_disk: size in GB"`
	Format         string `json:"format,omitempty" jsonschema:"create_disk: VDI, VMDK, VHD or RAW (default VDI)"`
	Variant        string `json:"variant,omitempty" jsonschema:"create_disk: Standard, Fixed, Split2G, Stream or ESX (default Standard)"`
	ISOPath        string `json:"iso_path,omitempty" jsonschema:"path of an ISO image"`
	SourceDir      string `json:"source_dir,omitempty" jsonschema:"create_iso: directory whose contents go into the image"`
	Label          string `json:"label,omitempty" jsonschema:"create_iso: volume label"`
}

func (a *StorageArgs) SetAction(action string) { a.Action = action }

var storageActions = []Action{
	{Name: "list_controllers", Description: "List the storage controllers of a virtual machine", Granular: "list_storage_controllers"},
	{Name: "create_controller", Description: "Add a storage controller", Granular: "create_storage_controller"},
	{Name: "remove_controller", Description: "Remove a storage controller", Granular: "remove_storage_controller"},
	{Name: "list_disks", Description: "List the media attached to a virtual machine", Granular: "list_disks"},
	{Name: "create_disk", Description: "Create a virtual disk file", Granular: "create_disk"},
	{Name: "attach_disk", Description: "Attach a disk to a controller port", Granular: "attach_disk"},
	{Name: "detach_disk", Description: "Detach the medium at a controller port", Granular: "detach_disk"},
	{Name: "disk_info", Description: "Show the properties of a virtual disk", Granular: "get_disk_info"},
	{Name: "resize_disk", Description: "Grow a virtual disk", Granular: "resize_disk"},
	{Name: "delete_disk", Description: "Close and delete a virtual disk", Granular: "delete_disk"},
	{Name: "mount_iso", Description: "Insert an ISO image into a DVD drive", Granular: "mount_iso"},
	{Name: "unmount_iso", Description: "Eject the medium from a DVD drive", Granular: "unmount_iso"},
	{Name: "create_iso", Description: "Build an ISO 9660 image from a directory", Granular: "create_iso"},
	{Name: "inspect_iso", Description: "List the files inside an ISO image", Granular: "inspect_iso"},
}

func storageTool(deps Deps) Definition[StorageArgs] {
	const name = "storage_management"
	return Definition[StorageArgs]{
		Name:        name,
		Category:    "storage",
		Description: "Storage: controllers, virtual disks, DVD media and ISO images.",
		Actions:     storageActions,
		Handle: func(ctx context.Context, in StorageArgs) Result {
			if r, valid := checkAction(name, in.Action, storageActions); !valid {
				return r
			}
			switch in.Action {
			case "create_iso", "inspect_iso":
				return isoDispatch(in)
			}
			if deps.Storage == nil {
				return unavailable(in.Action, "VirtualBox storage")
			}
			return storageDispatch(ctx, deps.Storage, in)
		},
	}
}

var storageNeedsVM = map[string]bool{
	"list_controllers": true, "create_controller": true, "remove_controller": true,
	"list_disks": true, "attach_disk": true, "detach_disk": true,
	"mount_iso": true, "unmount_iso": true,
}

var storageNeedsDisk = map[string]bool{
	"create_disk": true, "attach_disk": true, "disk_info": true,
	"resize_disk": true, "delete_disk": true,
}

func storageDispatch(ctx context.Context, s Storage, in StorageArgs) Result {
	if storageNeedsVM[in.Action] && blank(in.VMName) {
		return required("vm_name", in.Action)
	}
	if storageNeedsDisk[in.Action] && blank(in.DiskPath) {
		return required("disk_path", in.Action)
	}
	slot := vbox.Slot{Controller: in.ControllerName, Port: in.Port, Device: in.Device}

	switch in.Action {
	case "list_controllers":
		controllers, err := s.ListControllers(ctx, in.VMName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "", map[string]any{"vm_name": in.VMName, "controllers": controllers})

	case "create_controller":
		if blank(in.ControllerName) {
			return required("controller_name", in.Action)
		}
		if blank(in.ControllerType) {
			return required("controller_type", in.Action)
		}
		if err := s.CreateController(ctx, in.VMName, in.ControllerName, in.ControllerType); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("added %s controller %s to %s", in.ControllerType, in.ControllerName, in.VMName), map[string]any{
			"vm_name":         in.VMName,
			"controller_name": in.ControllerName,
			"controller_type": in.ControllerType,
		})

	case "remove_controller":
		if blank(in.ControllerName) {
			return required("controller_name", in.Action)
		}
		if err := s.RemoveController(ctx, in.VMName, in.ControllerName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("removed controller %s from %s", in.ControllerName, in.VMName), map[string]any{
			"vm_name":         in.VMName,
			"controller_name": in.ControllerName,
		})

	case "list_disks":
		disks, err := s.ListDisks(ctx, in.VMName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "", map[string]any{"vm_name": in.VMName, "disks": disks})

	case "create_disk":
		if in.SizeGB == 0 {
			return required("size_gb", in.Action)
		}
		info, err := s.CreateDisk(ctx, vbox.DiskOptions{Path: in.DiskPath, SizeGB: in.SizeGB, Format: in.Format, Variant: in.Variant})
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("created %d GB disk %s", in.SizeGB, in.DiskPath), info)

	case "attach_disk":
		if err := s.AttachDisk(ctx, in.VMName, slot, in.DiskPath); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("attached %s to %s", in.DiskPath, in.VMName), slotData(in))

	case "detach_disk":
		if err := s.DetachDisk(ctx, in.VMName, slot); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("detached medium from %s", in.VMName), slotData(in))

	case "disk_info":
		info, err := s.DiskInfo(ctx, in.DiskPath)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "", info)

	case "resize_disk":
		if in.SizeGB == 0 {
			return required("size_gb", in.Action)
		}
		if err := s.ResizeDisk(ctx, in.DiskPath, in.SizeGB); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("resized %s to %d GB", in.DiskPath, in.SizeGB), map[string]any{"disk_path": in.DiskPath, "size_gb": in.SizeGB})

	case "delete_disk":
		if err := s.DeleteDisk(ctx, in.DiskPath); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("deleted %s", in.DiskPath), map[string]any{"disk_path": in.DiskPath})

	case "mount_iso":
		if blank(in.ISOPath) {
			return required("iso_path", in.Action)
		}
		if err := s.MountISO(ctx, in.VMName, slot, in.ISOPath); err != nil {
			return fail(in.Action, err)
		}
		data := slotData(in)
		data["iso_path"] = in.ISOPath
		return ok(in.Action, fmt.Sprintf("mounted %s in %s", in.ISOPath, in.VMName), data)

	case "unmount_iso":
		if err := s.UnmountISO(ctx, in.VMName, slot); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("ejected medium from %s", in.VMName), slotData(in))
	}
	return unhandled(in.Action)
}

func slotData(in StorageArgs) map[string]any {
	return map[string]any{
		"vm_name":    in.VMName,
		"controller": orDefault(in.ControllerName, "SATA"),
		"port":       in.Port,
		"device":     in.Device,
	}
}

func isoDispatch(in StorageArgs) Result {
	if blank(in.ISOPath) {
		return required("iso_path", in.Action)
	}
	if in.Action == "inspect_iso" {
		image, err := media.ListISO(in.ISOPath)
		if err != nil {
			return fail(in.Action, vmerr.Wrap(vmerr.CodeStorage, "media.inspect", err))
		}
		return ok(in.Action, fmt.Sprintf("%s holds %d entries", in.ISOPath, len(image.Entries)), image)
	}

	if blank(in.SourceDir) {
		return required("source_dir", in.Action)
	}
	if !filepath.IsAbs(in.ISOPath) {
		return fail(in.Action, vmerr.Validation("iso_path must be absolute, got %q", in.ISOPath))
	}
	label := media.SanitizeLabel(orDefault(in.Label, filepath.Base(in.SourceDir)))
	if err := media.BuildISO(in.SourceDir, in.ISOPath, label); err != nil {
		return fail(in.Action, vmerr.Wrap(vmerr.CodeStorage, "media.build", err))
	}
	return ok(in.Action, fmt.Sprintf("wrote %s", in.ISOPath), map[string]any{
		"iso_path":   in.ISOPath,
		"source_dir": in.SourceDir,
		"label":      label,
	})
}
