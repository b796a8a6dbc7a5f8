package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/media"
	"github.com/cochaviz/virtmcp/internal/vbox"
	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// ShareController is the IDE controller added to hold the share ISO.
const ShareController = "SandboxShare"

// VBoxDriver acquires sandboxes by cloning a registered VirtualBox machine.
type VBoxDriver struct {
	Machines Machines
	BaseDir  string
	Logger   *slog.Logger

	newID func() string
	now   func() time.Time
}

func NewVBoxDriver(machines Machines, baseDir string, logger *slog.Logger) *VBoxDriver {
	return &VBoxDriver{
		Machines: machines,
		BaseDir:  baseDir,
		Logger:   logging.Ensure(logger).With("component", "sandbox"),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

var _ Driver = (*VBoxDriver)(nil)

// Acquire clones the source machine, applies resource limits, isolates its
// network when requested and attaches the share image. A failure after the
// clone is registered deletes the clone again.
func (d *VBoxDriver) Acquire(ctx context.Context, spec LeaseSpecification) (Lease, error) {
	if err := spec.Validate(); err != nil {
		return Lease{}, err
	}
	if d.BaseDir == "" {
		return Lease{}, vmerr.New(vmerr.CodeConfiguration, "sandbox.acquire", "sandbox base directory is not configured")
	}

	id := d.newID()
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	lease := Lease{
		ID:            id,
		Name:          spec.Name,
		Specification: spec,
		State:         StatePending,
		RunDir:        filepath.Join(d.BaseDir, "runs", id),
		Metadata:      map[string]any{"source_vm": spec.SourceVM},
	}
	if lease.Name == "" {
		lease.Name = NamePrefix + short
	}
	logger := d.Logger.With("lease", id, "vm", lease.Name)

	if err := os.MkdirAll(lease.RunDir, 0o755); err != nil {
		return Lease{}, vmerr.Wrap(vmerr.CodeSandbox, "sandbox.acquire", fmt.Errorf("create run directory: %w", err))
	}

	clone := vm.CloneOptions{
		Source:     spec.SourceVM,
		Name:       lease.Name,
		Snapshot:   spec.Snapshot,
		BaseFolder: d.BaseDir,
		KeepMACs:   true,
	}
	if err := d.Machines.CloneVM(ctx, clone); err != nil {
		return Lease{}, errors.Join(err, os.RemoveAll(lease.RunDir))
	}
	logger.Info("sandbox cloned", "source", spec.SourceVM, "snapshot", spec.Snapshot)

	if err := d.configure(ctx, &lease, short); err != nil {
		logger.Warn("sandbox configuration failed, deleting clone", "error", err)
		cleanupErr := d.Machines.DeleteVM(context.WithoutCancel(ctx), lease.Name, false)
		return Lease{}, errors.Join(err, cleanupErr, os.RemoveAll(lease.RunDir))
	}
	return lease, nil
}

func (d *VBoxDriver) configure(ctx context.Context, lease *Lease, short string) error {
	spec := lease.Specification
	if spec.MemoryMB > 0 || spec.CPUs > 0 {
		if err := d.Machines.ModifyVM(ctx, lease.Name, spec.MemoryMB, spec.CPUs); err != nil {
			return err
		}
	}

	if spec.IsolateNetwork {
		network := NamePrefix + short
		adapters, err := d.Machines.ListAdapters(ctx, lease.Name)
		if err != nil {
			return err
		}
		for _, a := range adapters {
			if err := d.Machines.ConfigureAdapter(ctx, lease.Name, a.Slot, "internal", network); err != nil {
				return err
			}
		}
		lease.Network = network
	}

	if spec.ShareDir != "" {
		iso, err := prepareShareDisk(lease.RunDir, spec.ShareDir, media.SanitizeLabel("share", short))
		if err != nil {
			return vmerr.Wrap(vmerr.CodeSandbox, "sandbox.share", err)
		}
		if err := d.Machines.CreateController(ctx, lease.Name, ShareController, "ide"); err != nil {
			return err
		}
		if err := d.Machines.MountISO(ctx, lease.Name, vbox.Slot{Controller: ShareController}, iso); err != nil {
			return err
		}
		lease.ShareISO = iso
	}
	return nil
}

func (d *VBoxDriver) Start(ctx context.Context, lease Lease) (Lease, error) {
	if err := d.Machines.StartVM(ctx, lease.Name, lease.Specification.StartType); err != nil {
		return lease, err
	}
	lease.State = StateRunning
	lease.StartTime = d.now().UTC()
	d.Logger.Info("sandbox started", "lease", lease.ID, "vm", lease.Name)
	return lease, nil
}

// Destroy refuses to remove a running sandbox unless force is set. The
// clone is powered off and unregistered with its files, and the run
// directory is removed. A clone that is already gone is not an error.
func (d *VBoxDriver) Destroy(ctx context.Context, lease Lease, force bool) error {
	if lease.Name == "" {
		return vmerr.Validation("sandbox lease has no machine name")
	}
	state, err := d.Machines.VMState(ctx, lease.Name)
	switch {
	case vmerr.Is(err, vmerr.CodeVMNotFound):
		d.Logger.Warn("sandbox machine already gone", "lease", lease.ID, "vm", lease.Name)
	case err != nil:
		return err
	default:
		active := state == vm.StateRunning || state == vm.StatePaused || state == vm.StateStarting
		if active && !force {
			return vmerr.New(vmerr.CodeInvalidState, "sandbox.destroy", "sandbox %s is %s; use force to destroy it", lease.Name, state)
		}
		if err := d.Machines.DeleteVM(ctx, lease.Name, false); err != nil {
			return err
		}
	}
	if lease.RunDir != "" {
		if err := os.RemoveAll(lease.RunDir); err != nil {
			return vmerr.Wrap(vmerr.CodeSandbox, "sandbox.destroy", fmt.Errorf("remove run directory: %w", err))
		}
	}
	d.Logger.Info("sandbox destroyed", "lease", lease.ID, "vm", lease.Name)
	return nil
}
