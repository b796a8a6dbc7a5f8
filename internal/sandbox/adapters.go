package sandbox

import (
	"context"

	"github.com/cochaviz/virtmcp/internal/vbox"
	"github.com/cochaviz/virtmcp/internal/vm"
)

// Driver describes the contract sandbox adapters must satisfy so the
// service and worker stay independent from hypervisor details.
type Driver interface {
	Acquire(ctx context.Context, spec LeaseSpecification) (Lease, error)
	Start(ctx context.Context, lease Lease) (Lease, error)
	Destroy(ctx context.Context, lease Lease, force bool) error
}

// Machines is the subset of the VirtualBox manager the VBoxDriver uses.
type Machines interface {
	CloneVM(ctx context.Context, opts vm.CloneOptions) error
	ModifyVM(ctx context.Context, name string, memoryMB, cpus int) error
	ListAdapters(ctx context.Context, vmName string) ([]vbox.Adapter, error)
	ConfigureAdapter(ctx context.Context, vmName string, slot int, networkType, attachment string) error
	CreateController(ctx context.Context, vmName, name, controllerType string) error
	MountISO(ctx context.Context, vmName string, slot vbox.Slot, isoPath string) error
	StartVM(ctx context.Context, name, startType string) error
	VMState(ctx context.Context, name string) (vm.State, error)
	DeleteVM(ctx context.Context, name string, keepFiles bool) error
}

var _ Machines = (*vbox.Manager)(nil)
