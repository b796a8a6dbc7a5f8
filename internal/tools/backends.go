package tools

import (
	"context"

	"github.com/cochaviz/virtmcp/internal/backup"
	"github.com/cochaviz/virtmcp/internal/hostinfo"
	"github.com/cochaviz/virtmcp/internal/hyperv"
	"github.com/cochaviz/virtmcp/internal/portfolio"
	"github.com/cochaviz/virtmcp/internal/sandbox"
	"github.com/cochaviz/virtmcp/internal/templates"
	"github.com/cochaviz/virtmcp/internal/vbox"
	"github.com/cochaviz/virtmcp/internal/virt"
	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/winsandbox"
)

// Hypervisor is the lifecycle and snapshot surface shared by the
// VirtualBox and libvirt drivers.
type Hypervisor interface {
	Name() string
	ListVMs(ctx context.Context, long bool) ([]vm.Summary, error)
	VMInfo(ctx context.Context, name string) (vm.Details, error)
	CreateVM(ctx context.Context, opts vm.CreateOptions) (vm.Details, error)
	StartVM(ctx context.Context, name, startType string) error
	StopVM(ctx context.Context, name string, opts vm.StopOptions) error
	DeleteVM(ctx context.Context, name string, keepFiles bool) error
	CloneVM(ctx context.Context, opts vm.CloneOptions) error
	PauseVM(ctx context.Context, name string) error
	ResumeVM(ctx context.Context, name string) error
	ResetVM(ctx context.Context, name string) error

	TakeSnapshot(ctx context.Context, vmName, name, description string, live bool) error
	RestoreSnapshot(ctx context.Context, vmName, name string) error
	DeleteSnapshot(ctx context.Context, vmName, name string) error
	ListSnapshots(ctx context.Context, vmName string) ([]vm.Snapshot, error)
}

var (
	_ Hypervisor = (*vbox.Manager)(nil)
	_ Hypervisor = (*virt.LibvirtDriver)(nil)
)

// Networks is the VirtualBox network surface.
type Networks interface {
	ListHostOnlyNetworks(ctx context.Context) ([]vbox.HostOnlyNetwork, error)
	CreateHostOnlyNetwork(ctx context.Context, ip, netmask string) (string, error)
	ConfigureHostOnlyNetwork(ctx context.Context, name, ip, netmask string) error
	RemoveHostOnlyNetwork(ctx context.Context, name string) error
	ListBridgedInterfaces(ctx context.Context) ([]vbox.BridgedInterface, error)
	ListNATNetworks(ctx context.Context) ([]vbox.NATNetwork, error)
	CreateNATNetwork(ctx context.Context, name, cidr string, dhcp bool) error
	RemoveNATNetwork(ctx context.Context, name string) error
	ListAdapters(ctx context.Context, vmName string) ([]vbox.Adapter, error)
	ConfigureAdapter(ctx context.Context, vmName string, slot int, networkType, attachment string) error
	AddPortForward(ctx context.Context, vmName string, slot int, rule vbox.PortForward) error
	RemovePortForward(ctx context.Context, vmName string, slot int, name string) error
}

// LibvirtNetworks lists the virtual networks of a libvirt host.
type LibvirtNetworks interface {
	ListNetworks(ctx context.Context) ([]virt.Network, error)
}

// Storage is the VirtualBox storage surface.
type Storage interface {
	ListControllers(ctx context.Context, vmName string) ([]vbox.Controller, error)
	CreateController(ctx context.Context, vmName, name, controllerType string) error
	RemoveController(ctx context.Context, vmName, name string) error
	ListDisks(ctx context.Context, vmName string) ([]vbox.Attachment, error)
	CreateDisk(ctx context.Context, opts vbox.DiskOptions) (vbox.MediumInfo, error)
	DiskInfo(ctx context.Context, path string) (vbox.MediumInfo, error)
	ResizeDisk(ctx context.Context, path string, sizeGB int) error
	DeleteDisk(ctx context.Context, path string) error
	AttachDisk(ctx context.Context, vmName string, slot vbox.Slot, path string) error
	DetachDisk(ctx context.Context, vmName string, slot vbox.Slot) error
	MountISO(ctx context.Context, vmName string, slot vbox.Slot, isoPath string) error
	UnmountISO(ctx context.Context, vmName string, slot vbox.Slot) error
}

// System is the VirtualBox host and diagnostics surface.
type System interface {
	Version(ctx context.Context) (string, error)
	HostInfo(ctx context.Context) (map[string]string, error)
	OSTypes(ctx context.Context) ([]vbox.OSType, error)
	ExtPacks(ctx context.Context) ([]vbox.ExtPack, error)
	Metrics(ctx context.Context, vmName string) ([]vbox.Metric, error)
	Screenshot(ctx context.Context, vmName, path string) (string, error)
}

var (
	_ Networks = (*vbox.Manager)(nil)
	_ Storage  = (*vbox.Manager)(nil)
	_ System   = (*vbox.Manager)(nil)
)

// HyperV is the Hyper-V driver surface.
type HyperV interface {
	List(ctx context.Context) ([]hyperv.VM, error)
	Get(ctx context.Context, name string) (hyperv.VM, error)
	Start(ctx context.Context, name string, wait bool) (hyperv.VM, error)
	Stop(ctx context.Context, name string, force, wait bool) (hyperv.VM, error)
}

var _ HyperV = (*hyperv.Driver)(nil)

type WindowsSandboxes interface {
	Create(ctx context.Context, cfg winsandbox.SandboxConfig, launch bool) (winsandbox.Record, error)
	List(ctx context.Context) ([]winsandbox.Record, error)
	Stop(ctx context.Context, id string) (winsandbox.Record, error)
	Remove(ctx context.Context, id string) error
}

type VMSandboxes interface {
	Create(ctx context.Context, spec sandbox.LeaseSpecification, start bool) (sandbox.Lease, error)
	List(ctx context.Context) ([]sandbox.Lease, error)
	Destroy(ctx context.Context, id string, force bool) error
}

var (
	_ WindowsSandboxes = (*winsandbox.Manager)(nil)
	_ VMSandboxes      = (*sandbox.Service)(nil)
)

type Portfolios interface {
	List() ([]portfolio.Portfolio, error)
	Get(name string) (portfolio.Portfolio, error)
	Reload() (int, error)
}

var _ Portfolios = (*portfolio.Manager)(nil)

// Backups is the VM backup surface.
type Backups interface {
	Create(ctx context.Context, vmName, description string) (backup.Backup, error)
	List(ctx context.Context, vmName string) ([]backup.Backup, error)
	Get(ctx context.Context, id string) (backup.Backup, error)
	Restore(ctx context.Context, id, newName string) (string, error)
	Delete(ctx context.Context, id string) error
	Cleanup(ctx context.Context, p backup.Policy) (backup.CleanupReport, error)
}

type Templates interface {
	List() ([]templates.Template, error)
	Get(name string) (templates.Template, error)
	Create(t templates.Template) error
	Delete(name string) error
}

var (
	_ Backups   = (*backup.Manager)(nil)
	_ Templates = (*templates.Catalog)(nil)
)

// HostFacts collects host facts.
type HostFacts struct {
	Collect    func(ctx context.Context) (hostinfo.Info, error)
	Interfaces func(ctx context.Context) ([]hostinfo.Interface, error)
}

// DefaultHostFacts reads the real host.
var DefaultHostFacts = HostFacts{Collect: hostinfo.Collect, Interfaces: hostinfo.Interfaces}
