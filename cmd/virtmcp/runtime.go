package main

import (
	"errors"
	"log/slog"
	goruntime "runtime"

	"github.com/cochaviz/virtmcp/internal/backup"
	"github.com/cochaviz/virtmcp/internal/config"
	"github.com/cochaviz/virtmcp/internal/hyperv"
	"github.com/cochaviz/virtmcp/internal/portfolio"
	"github.com/cochaviz/virtmcp/internal/sandbox"
	"github.com/cochaviz/virtmcp/internal/store"
	"github.com/cochaviz/virtmcp/internal/templates"
	"github.com/cochaviz/virtmcp/internal/tools"
	"github.com/cochaviz/virtmcp/internal/vbox"
	"github.com/cochaviz/virtmcp/internal/virt"
	"github.com/cochaviz/virtmcp/internal/winsandbox"
)

// backends holds everything a tool set was built from.
type backends struct {
	store      *store.Store
	vbox       *vbox.Manager
	portfolios *portfolio.Manager
	templates  *templates.Catalog
	backups    *backup.Manager
	sandboxes  *sandbox.Service
	vmDriver   *sandbox.VBoxDriver
	tools      *tools.Set
}

func (b *backends) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}

// openBackends wires the configured hypervisors to a tool set. Missing
// optional backends are logged and left unset so the tools that need them
// report CONFIGURATION_ERROR.
func openBackends(cfg config.Config, logger *slog.Logger) (*backends, error) {
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	b := &backends{
		store:      db,
		portfolios: portfolio.NewManager(cfg.PortfolioDir, logger),
		templates:  templates.NewCatalog(cfg.TemplateFile, logger),
	}

	deps := tools.Deps{
		Portfolios:       b.portfolios,
		Templates:        b.templates,
		WindowsSandboxes: winsandbox.NewManager(cfg.SandboxDir, winsandbox.ExecLauncher{}, db, logger),
		Defaults: tools.Defaults{
			OSType:      cfg.DefaultOSType,
			MemoryMB:    cfg.DefaultMemoryMB,
			CPUs:        cfg.DefaultCPUs,
			DiskGB:      cfg.DefaultDiskGB,
			VMFolder:    cfg.DefaultVMFolder,
			StopTimeout: cfg.VMStopTimeout(),
		},
		Logger: logger,
	}

	if path, err := cfg.ResolveVBoxManage(); err != nil {
		logger.Warn("VirtualBox tools disabled", "error", err)
	} else {
		b.vbox = vbox.NewManager(path, vbox.Timeouts{
			Command:   cfg.CommandTimeout(),
			Start:     cfg.VMStartTimeout(),
			Stop:      cfg.VMStopTimeout(),
			Snapshot:  cfg.SnapshotTimeout(),
			Appliance: cfg.BackupTimeout(),
		}, logger)
		b.vmDriver = sandbox.NewVBoxDriver(b.vbox, cfg.VMSandboxDir, logger)
		b.sandboxes = sandbox.NewService(b.vmDriver, db, logger)
		b.backups = backup.NewManager(cfg.BackupDir, b.vbox, db, logger)

		deps.Hypervisor = b.vbox
		deps.Networks = b.vbox
		deps.Storage = b.vbox
		deps.System = b.vbox
		deps.VMSandboxes = b.sandboxes
		deps.Backups = b.backups
	}

	if cfg.Hypervisor == config.HypervisorLibvirt {
		driver := virt.NewLibvirtDriver(cfg.LibvirtURI, cfg.VMStopTimeout(), logger)
		deps.Hypervisor = driver
		deps.LibvirtNetworks = driver
		logger.Debug("using libvirt for vm and snapshot tools", "uri", cfg.LibvirtURI)
	}

	if goruntime.GOOS == "windows" {
		deps.HyperV = hyperv.NewDriver(cfg.CommandTimeout(), logger)
	}

	b.tools = tools.New(deps)
	return b, nil
}

// requireVBox reports why VirtualBox-only commands cannot run.
func (b *backends) requireVBox() error {
	if b.vbox == nil {
		return errors.New("VBoxManage not found: install VirtualBox or set vboxmanage_path")
	}
	return nil
}
