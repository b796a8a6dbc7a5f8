package vbox

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

var (
	ControllerTypes = []string{"ide", "sata", "scsi", "sas", "usb", "pcie"}
	DiskFormats     = []string{"VDI", "VMDK", "VHD", "RAW"}
	DiskVariants    = []string{"Standard", "Fixed", "Split2G", "Stream", "ESX"}
)

// Controller is a storage controller of a machine.
type Controller struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Instance     int    `json:"instance"`
	MaxPortCount int    `json:"max_port_count"`
	PortCount    int    `json:"port_count"`
	Bootable     bool   `json:"bootable"`
}

// Attachment is a medium attached to a controller port.
type Attachment struct {
	Controller string `json:"controller"`
	Port       int    `json:"port"`
	Device     int    `json:"device"`
	Medium     string `json:"medium"`
	UUID       string `json:"uuid,omitempty"`
}

// MediumInfo is the parsed output of showmediuminfo.
type MediumInfo struct {
	UUID       string            `json:"uuid"`
	Location   string            `json:"location"`
	Format     string            `json:"format"`
	Variant    string            `json:"variant,omitempty"`
	State      string            `json:"state,omitempty"`
	CapacityMB int               `json:"capacity_mb"`
	SizeMB     int               `json:"size_on_disk_mb"`
	InUseBy    string            `json:"in_use_by,omitempty"`
	Properties map[string]string `json:"properties"`
}

// DiskOptions describes a virtual disk to create.
type DiskOptions struct {
	Path    string
	SizeGB  int
	Format  string
	Variant string
}

func (o *DiskOptions) normalize() error {
	if strings.TrimSpace(o.Path) == "" {
		return vmerr.Validation("disk path is required")
	}
	if o.SizeGB < 1 {
		return vmerr.Validation("disk size must be at least 1 GB, got %d", o.SizeGB)
	}
	if o.Format == "" {
		o.Format = "VDI"
	}
	o.Format = strings.ToUpper(o.Format)
	if !slices.Contains(DiskFormats, o.Format) {
		return vmerr.Validation("disk format %q not one of %s", o.Format, strings.Join(DiskFormats, ", "))
	}
	if o.Variant == "" {
		o.Variant = "Standard"
	}
	idx := slices.IndexFunc(DiskVariants, func(v string) bool { return strings.EqualFold(v, o.Variant) })
	if idx < 0 {
		return vmerr.Validation("disk variant %q not one of %s", o.Variant, strings.Join(DiskVariants, ", "))
	}
	o.Variant = DiskVariants[idx]
	return nil
}

// ListControllers reads the storage controllers from showvminfo.
func (m *Manager) ListControllers(ctx context.Context, vmName string) ([]Controller, error) {
	details, err := m.VMInfo(ctx, vmName)
	if err != nil {
		return nil, err
	}
	return parseControllers(details.Properties), nil
}

func parseControllers(props map[string]string) []Controller {
	var controllers []Controller
	for i := 0; ; i++ {
		n := strconv.Itoa(i)
		name, ok := props["storagecontrollername"+n]
		if !ok {
			break
		}
		controllers = append(controllers, Controller{
			Name:         name,
			Type:         props["storagecontrollertype"+n],
			Instance:     atoi(props["storagecontrollerinstance"+n]),
			MaxPortCount: atoi(props["storagecontrollermaxportcount"+n]),
			PortCount:    atoi(props["storagecontrollerportcount"+n]),
			Bootable:     props["storagecontrollerbootable"+n] == "on",
		})
	}
	return controllers
}

func (m *Manager) CreateController(ctx context.Context, vmName, name, controllerType string) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	if err := requireName("controller name", name); err != nil {
		return err
	}
	controllerType = strings.ToLower(controllerType)
	if !slices.Contains(ControllerTypes, controllerType) {
		return vmerr.Validation("controller type %q not one of %s", controllerType, strings.Join(ControllerTypes, ", "))
	}
	_, err := m.exec(ctx, 0, vmerr.CodeStorage, "storagectl", vmName, "--name", name, "--add", controllerType)
	return err
}

func (m *Manager) RemoveController(ctx context.Context, vmName, name string) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	if err := requireName("controller name", name); err != nil {
		return err
	}
	_, err := m.exec(ctx, 0, vmerr.CodeStorage, "storagectl", vmName, "--name", name, "--remove")
	return err
}

// ListDisks reports every medium attached to the machine's controllers.
func (m *Manager) ListDisks(ctx context.Context, vmName string) ([]Attachment, error) {
	details, err := m.VMInfo(ctx, vmName)
	if err != nil {
		return nil, err
	}
	return parseAttachments(details.Properties), nil
}

// parseAttachments reads keys of the form "<controller>-<port>-<device>".
func parseAttachments(props map[string]string) []Attachment {
	var attachments []Attachment
	for _, c := range parseControllers(props) {
		prefix := c.Name + "-"
		for key, value := range props {
			rest, ok := strings.CutPrefix(key, prefix)
			if !ok {
				continue
			}
			portText, deviceText, ok := strings.Cut(rest, "-")
			if !ok {
				continue
			}
			port, err1 := strconv.Atoi(portText)
			device, err2 := strconv.Atoi(deviceText)
			if err1 != nil || err2 != nil {
				continue
			}
			if value == "none" || value == "" {
				continue
			}
			attachments = append(attachments, Attachment{
				Controller: c.Name,
				Port:       port,
				Device:     device,
				Medium:     value,
				UUID:       props[fmt.Sprintf("%sImageUUID-%d-%d", prefix, port, device)],
			})
		}
	}
	slices.SortFunc(attachments, func(a, b Attachment) int {
		if a.Controller != b.Controller {
			return strings.Compare(a.Controller, b.Controller)
		}
		if a.Port != b.Port {
			return a.Port - b.Port
		}
		return a.Device - b.Device
	})
	return attachments
}

// CreateDisk creates a standalone virtual disk image.
func (m *Manager) CreateDisk(ctx context.Context, opts DiskOptions) (MediumInfo, error) {
	if err := opts.normalize(); err != nil {
		return MediumInfo{}, err
	}
	if _, err := os.Stat(opts.Path); err == nil {
		return MediumInfo{}, vmerr.New(vmerr.CodeStorage, "vbox.createmedium", "disk %s already exists", opts.Path)
	}
	_, err := m.exec(ctx, 0, vmerr.CodeStorage,
		"createmedium", "disk",
		"--filename", opts.Path,
		"--size", strconv.Itoa(opts.SizeGB*1024),
		"--format", opts.Format,
		"--variant", opts.Variant,
	)
	if err != nil {
		return MediumInfo{}, err
	}
	return MediumInfo{
		Location:   opts.Path,
		Format:     opts.Format,
		Variant:    opts.Variant,
		CapacityMB: opts.SizeGB * 1024,
	}, nil
}

func (m *Manager) DiskInfo(ctx context.Context, path string) (MediumInfo, error) {
	if err := requireName("disk path", path); err != nil {
		return MediumInfo{}, err
	}
	out, err := m.exec(ctx, 0, vmerr.CodeStorage, "showmediuminfo", "disk", path)
	if err != nil {
		return MediumInfo{}, err
	}
	props := parseColonPairs(out)
	return MediumInfo{
		UUID:       props["UUID"],
		Location:   props["Location"],
		Format:     props["Storage format"],
		Variant:    props["Format variant"],
		State:      props["State"],
		CapacityMB: leadingInt(props["Capacity"]),
		SizeMB:     leadingInt(props["Size on disk"]),
		InUseBy:    props["In use by VMs"],
		Properties: props,
	}, nil
}

// ResizeDisk grows a disk to sizeGB. VirtualBox cannot shrink images.
func (m *Manager) ResizeDisk(ctx context.Context, path string, sizeGB int) error {
	if err := requireName("disk path", path); err != nil {
		return err
	}
	if sizeGB < 1 {
		return vmerr.Validation("disk size must be at least 1 GB, got %d", sizeGB)
	}
	_, err := m.exec(ctx, 0, vmerr.CodeStorage, "modifymedium", "disk", path, "--resize", strconv.Itoa(sizeGB*1024))
	return err
}

// DeleteDisk unregisters a disk and deletes its file.
func (m *Manager) DeleteDisk(ctx context.Context, path string) error {
	if err := requireName("disk path", path); err != nil {
		return err
	}
	_, err := m.exec(ctx, 0, vmerr.CodeStorage, "closemedium", "disk", path, "--delete")
	return err
}

// Slot addresses a controller port. An empty controller means "SATA".
type Slot struct {
	Controller string
	Port       int
	Device     int
}

func (s Slot) args(vmName string) []string {
	controller := s.Controller
	if controller == "" {
		controller = "SATA"
	}
	return []string{"storageattach", vmName,
		"--storagectl", controller,
		"--port", strconv.Itoa(s.Port),
		"--device", strconv.Itoa(s.Device),
	}
}

func (m *Manager) AttachDisk(ctx context.Context, vmName string, slot Slot, path string) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	if err := requireName("disk path", path); err != nil {
		return err
	}
	args := append(slot.args(vmName), "--type", "hdd", "--medium", path)
	_, err := m.exec(ctx, 0, vmerr.CodeStorage, args...)
	return err
}

func (m *Manager) DetachDisk(ctx context.Context, vmName string, slot Slot) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	args := append(slot.args(vmName), "--medium", "none")
	_, err := m.exec(ctx, 0, vmerr.CodeStorage, args...)
	return err
}

// MountISO inserts an ISO image into a DVD drive at slot.
func (m *Manager) MountISO(ctx context.Context, vmName string, slot Slot, isoPath string) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	if err := requireName("iso path", isoPath); err != nil {
		return err
	}
	if _, err := os.Stat(isoPath); err != nil {
		return vmerr.New(vmerr.CodeValidation, "vbox.storageattach", "iso %s: %v", isoPath, err)
	}
	args := append(slot.args(vmName), "--type", "dvddrive", "--medium", isoPath)
	_, err := m.exec(ctx, 0, vmerr.CodeStorage, args...)
	return err
}

// UnmountISO ejects the medium from the DVD drive at slot.
func (m *Manager) UnmountISO(ctx context.Context, vmName string, slot Slot) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	args := append(slot.args(vmName), "--type", "dvddrive", "--medium", "emptydrive")
	_, err := m.exec(ctx, 0, vmerr.CodeStorage, args...)
	return err
}
