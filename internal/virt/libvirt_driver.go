// Package virt drives QEMU/KVM domains through libvirt. It implements the
// same lifecycle and snapshot operations as the VirtualBox manager so the
// vm_management and snapshot_management tools can target either hypervisor.
package virt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	libvirt "libvirt.org/go/libvirt"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

const DefaultConnectionURI = "qemu:///system"

type LibvirtDriver struct {
	ConnectionURI string
	Logger        *slog.Logger
	StopTimeout   time.Duration

	pollInterval time.Duration
}

func NewLibvirtDriver(uri string, stopTimeout time.Duration, logger *slog.Logger) *LibvirtDriver {
	if strings.TrimSpace(uri) == "" {
		uri = DefaultConnectionURI
	}
	return &LibvirtDriver{
		ConnectionURI: uri,
		Logger:        logging.Ensure(logger).With("component", "libvirt"),
		StopTimeout:   stopTimeout,
		pollInterval:  time.Second,
	}
}

func (d *LibvirtDriver) Name() string {
	return "libvirt"
}

func (d *LibvirtDriver) logger() *slog.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *LibvirtDriver) connect() (*libvirt.Connect, error) {
	conn, err := libvirt.NewConnect(d.ConnectionURI)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.CodeConfiguration, "libvirt.connect", fmt.Errorf("open libvirt connection %s: %w", d.ConnectionURI, err))
	}
	return conn, nil
}

// withDomain opens a connection, looks up name and hands the domain to fn.
func (d *LibvirtDriver) withDomain(op, name string, fn func(*libvirt.Domain) error) error {
	if strings.TrimSpace(name) == "" {
		return vmerr.Validation("vm name is required")
	}
	conn, err := d.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	domain, err := conn.LookupDomainByName(name)
	if err != nil {
		return classify(op, err)
	}
	defer domain.Free()
	return fn(domain)
}

func (d *LibvirtDriver) ListVMs(ctx context.Context, long bool) ([]vm.Summary, error) {
	conn, err := d.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	domains, err := conn.ListAllDomains(0)
	if err != nil {
		return nil, classify("libvirt.list", err)
	}
	summaries := make([]vm.Summary, 0, len(domains))
	for i := range domains {
		domain := &domains[i]
		details, err := describe(domain)
		domain.Free()
		if err != nil {
			d.logger().Warn("inspect domain failed", "error", err)
			continue
		}
		s := vm.Summary{
			Name:    details.Name,
			UUID:    details.UUID,
			State:   details.State,
			Running: details.State == vm.StateRunning,
		}
		if long {
			s.OSType = details.OSType
			s.MemoryMB = details.MemoryMB
			s.CPUs = details.CPUs
		}
		summaries = append(summaries, s)
	}
	slices.SortFunc(summaries, func(a, b vm.Summary) int { return strings.Compare(a.Name, b.Name) })
	return summaries, nil
}

func (d *LibvirtDriver) VMInfo(ctx context.Context, name string) (vm.Details, error) {
	var details vm.Details
	err := d.withDomain("libvirt.info", name, func(domain *libvirt.Domain) error {
		var err error
		details, err = describe(domain)
		return err
	})
	return details, err
}

func describe(domain *libvirt.Domain) (vm.Details, error) {
	name, err := domain.GetName()
	if err != nil {
		return vm.Details{}, classify("libvirt.info", err)
	}
	uuid, err := domain.GetUUIDString()
	if err != nil {
		return vm.Details{}, classify("libvirt.info", err)
	}
	info, err := domain.GetInfo()
	if err != nil {
		return vm.Details{}, classify("libvirt.info", err)
	}
	osType, _ := domain.GetOSType()
	return vm.Details{
		Name:     name,
		UUID:     uuid,
		State:    mapState(info.State),
		OSType:   osType,
		MemoryMB: int(info.MaxMem / 1024),
		CPUs:     int(info.NrVirtCpu),
		Properties: map[string]string{
			"driver":       "libvirt",
			"cpu_time_ns":  fmt.Sprint(info.CpuTime),
			"memory_kib":   fmt.Sprint(info.Memory),
			"max_mem_kib":  fmt.Sprint(info.MaxMem),
			"domain_state": stateLabel(info.State),
		},
	}, nil
}

// CreateVM is not offered for libvirt: domains are defined from images by
// external tooling.
func (d *LibvirtDriver) CreateVM(ctx context.Context, opts vm.CreateOptions) (vm.Details, error) {
	return vm.Details{}, vmerr.New(vmerr.CodeUnsupported, "libvirt.create", "creating domains is not supported by the libvirt driver")
}

func (d *LibvirtDriver) CloneVM(ctx context.Context, opts vm.CloneOptions) error {
	return vmerr.New(vmerr.CodeUnsupported, "libvirt.clone", "cloning domains is not supported by the libvirt driver")
}

// StartVM boots a defined domain. The start type only matters to VirtualBox.
func (d *LibvirtDriver) StartVM(ctx context.Context, name, startType string) error {
	return d.withDomain("libvirt.start", name, func(domain *libvirt.Domain) error {
		if err := domain.Create(); err != nil {
			return classify("libvirt.start", err)
		}
		d.logger().Info("domain started", "domain", name)
		return nil
	})
}

func (d *LibvirtDriver) StopVM(ctx context.Context, name string, opts vm.StopOptions) error {
	return d.withDomain("libvirt.stop", name, func(domain *libvirt.Domain) error {
		if opts.Force {
			if err := domain.Destroy(); err != nil {
				return classify("libvirt.stop", err)
			}
			return nil
		}
		if err := domain.Shutdown(); err != nil {
			return classify("libvirt.stop", err)
		}
		if !opts.Wait {
			return nil
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = d.StopTimeout
		}
		if timeout <= 0 {
			timeout = time.Minute
		}
		return d.waitForShutoff(ctx, domain, name, timeout)
	})
}

func (d *LibvirtDriver) waitForShutoff(ctx context.Context, domain *libvirt.Domain, name string, timeout time.Duration) error {
	interval := d.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		state, _, err := domain.GetState()
		if err != nil {
			return classify("libvirt.wait", err)
		}
		if mapState(state) == vm.StatePoweredOff {
			return nil
		}
		select {
		case <-ctx.Done():
			return vmerr.Wrap(vmerr.CodeTimeout, "libvirt.wait", ctx.Err())
		case <-deadline.C:
			return vmerr.New(vmerr.CodeTimeout, "libvirt.wait", "domain %s did not shut off within %s", name, timeout)
		case <-ticker.C:
		}
	}
}

// DeleteVM destroys a running domain and undefines it. Storage volumes are
// left alone; keepFiles has no effect for libvirt.
func (d *LibvirtDriver) DeleteVM(ctx context.Context, name string, keepFiles bool) error {
	return d.withDomain("libvirt.delete", name, func(domain *libvirt.Domain) error {
		active, err := domain.IsActive()
		if err != nil {
			return classify("libvirt.delete", err)
		}
		if active {
			if err := domain.Destroy(); err != nil {
				return classify("libvirt.delete", err)
			}
		}
		flags := libvirt.DOMAIN_UNDEFINE_MANAGED_SAVE | libvirt.DOMAIN_UNDEFINE_SNAPSHOTS_METADATA | libvirt.DOMAIN_UNDEFINE_NVRAM
		if err := domain.UndefineFlags(flags); err != nil {
			return classify("libvirt.delete", err)
		}
		return nil
	})
}

func (d *LibvirtDriver) PauseVM(ctx context.Context, name string) error {
	return d.withDomain("libvirt.pause", name, func(domain *libvirt.Domain) error {
		return classify("libvirt.pause", domain.Suspend())
	})
}

func (d *LibvirtDriver) ResumeVM(ctx context.Context, name string) error {
	return d.withDomain("libvirt.resume", name, func(domain *libvirt.Domain) error {
		return classify("libvirt.resume", domain.Resume())
	})
}

func (d *LibvirtDriver) ResetVM(ctx context.Context, name string) error {
	return d.withDomain("libvirt.reset", name, func(domain *libvirt.Domain) error {
		return classify("libvirt.reset", domain.Reset(0))
	})
}

func mapState(state libvirt.DomainState) vm.State {
	switch state {
	case libvirt.DOMAIN_RUNNING, libvirt.DOMAIN_BLOCKED:
		return vm.StateRunning
	case libvirt.DOMAIN_PAUSED, libvirt.DOMAIN_PMSUSPENDED:
		return vm.StatePaused
	case libvirt.DOMAIN_SHUTDOWN:
		return vm.StateStopping
	case libvirt.DOMAIN_SHUTOFF:
		return vm.StatePoweredOff
	case libvirt.DOMAIN_CRASHED:
		return vm.StateAborted
	default:
		return vm.StateUnknown
	}
}

func stateLabel(state libvirt.DomainState) string {
	switch state {
	case libvirt.DOMAIN_RUNNING:
		return "running"
	case libvirt.DOMAIN_BLOCKED:
		return "blocked"
	case libvirt.DOMAIN_PAUSED:
		return "paused"
	case libvirt.DOMAIN_SHUTDOWN:
		return "shutdown"
	case libvirt.DOMAIN_SHUTOFF:
		return "shutoff"
	case libvirt.DOMAIN_CRASHED:
		return "crashed"
	case libvirt.DOMAIN_PMSUSPENDED:
		return "pmsuspended"
	default:
		return "nostate"
	}
}

// classify maps libvirt error numbers onto error categories. A nil err
// yields nil.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var libErr libvirt.Error
	if !errors.As(err, &libErr) {
		return vmerr.Wrap(vmerr.CodeCommandFailed, op, err)
	}
	code := vmerr.CodeCommandFailed
	switch libErr.Code {
	case libvirt.ERR_NO_DOMAIN:
		code = vmerr.CodeVMNotFound
	case libvirt.ERR_NO_DOMAIN_SNAPSHOT:
		code = vmerr.CodeSnapshot
	case libvirt.ERR_OPERATION_INVALID:
		code = vmerr.CodeInvalidState
	case libvirt.ERR_OPERATION_TIMEOUT:
		code = vmerr.CodeTimeout
	case libvirt.ERR_INVALID_ARG:
		code = vmerr.CodeValidation
	}
	return &vmerr.Error{Code: code, Op: op, Message: libErr.Message, Err: err}
}

func isInLibvirtErrors(err error, codes ...libvirt.ErrorNumber) bool {
	if err == nil {
		return false
	}
	var libErr libvirt.Error
	if !errors.As(err, &libErr) {
		return false
	}
	return slices.Contains(codes, libErr.Code)
}
