package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// Defaults fill in parameters a caller left out.
type Defaults struct {
	OSType      string
	MemoryMB    int
	CPUs        int
	DiskGB      int
	VMFolder    string
	StopTimeout time.Duration
}

// Deps are the backends the tools dispatch to. Nil backends make the
// actions that need them report CONFIGURATION_ERROR.
type Deps struct {
	Hypervisor       Hypervisor
	Networks         Networks
	LibvirtNetworks  LibvirtNetworks
	Storage          Storage
	System           System
	Host             HostFacts
	HyperV           HyperV
	WindowsSandboxes WindowsSandboxes
	VMSandboxes      VMSandboxes
	Portfolios       Portfolios
	Backups          Backups
	Templates        Templates
	Defaults         Defaults
	Logger           *slog.Logger
}

// Set holds every tool definition.
type Set struct {
	VM        Definition[VMArgs]
	Snapshot  Definition[SnapshotArgs]
	Network   Definition[NetworkArgs]
	Storage   Definition[StorageArgs]
	System    Definition[SystemArgs]
	HyperV    Definition[HyperVArgs]
	Sandbox   Definition[SandboxArgs]
	Portfolio Definition[PortfolioArgs]
	Backup    Definition[BackupArgs]
	Template  Definition[TemplateArgs]
	Discovery Definition[DiscoveryArgs]

	logger   *slog.Logger
	specs    []Spec
	invokers map[string]invoker
	granular map[string]granularTarget
}

type granularTarget struct {
	tool   string
	action string
}

// New wires the tool definitions to deps.
func New(deps Deps) *Set {
	deps.Logger = logging.Ensure(deps.Logger).With("component", "tools")
	if deps.Host.Collect == nil || deps.Host.Interfaces == nil {
		deps.Host = DefaultHostFacts
	}
	s := &Set{
		logger:    deps.Logger,
		VM:        vmTool(deps),
		Snapshot:  snapshotTool(deps),
		Network:   networkTool(deps),
		Storage:   storageTool(deps),
		System:    systemTool(deps),
		HyperV:    hypervTool(deps),
		Sandbox:   sandboxTool(deps),
		Portfolio: portfolioTool(deps),
		Backup:    backupTool(deps),
		Template:  templateTool(deps),
	}
	s.Discovery = discoveryTool(s.Specs)
	s.specs = []Spec{
		s.VM.Spec(),
		s.Snapshot.Spec(),
		s.Network.Spec(),
		s.Storage.Spec(),
		s.System.Spec(),
		s.HyperV.Spec(),
		s.Sandbox.Spec(),
		s.Portfolio.Spec(),
		s.Backup.Spec(),
		s.Template.Spec(),
		s.Discovery.Spec(),
	}

	s.invokers = map[string]invoker{
		s.VM.Name:        invokerFor(s.VM),
		s.Snapshot.Name:  invokerFor(s.Snapshot),
		s.Network.Name:   invokerFor(s.Network),
		s.Storage.Name:   invokerFor(s.Storage),
		s.System.Name:    invokerFor(s.System),
		s.HyperV.Name:    invokerFor(s.HyperV),
		s.Sandbox.Name:   invokerFor(s.Sandbox),
		s.Portfolio.Name: invokerFor(s.Portfolio),
		s.Backup.Name:    invokerFor(s.Backup),
		s.Template.Name:  invokerFor(s.Template),
		s.Discovery.Name: invokerFor(s.Discovery),
	}
	s.granular = map[string]granularTarget{}
	for _, spec := range s.specs {
		for _, a := range spec.Actions {
			s.granular[a.Granular] = granularTarget{tool: spec.Name, action: a.Name}
		}
	}
	return s
}

// Specs describes every portmanteau tool, schemas included.
func (s *Set) Specs() []Spec {
	return slices.Clone(s.specs)
}

// Granular reports the tool and action a granular tool name stands for.
func (s *Set) Granular(name string) (tool, action string, found bool) {
	t, found := s.granular[name]
	return t.tool, t.action, found
}

// Call dispatches raw JSON arguments to the named tool. Granular tool names
// are accepted as well.
func (s *Set) Call(ctx context.Context, name string, raw json.RawMessage) Result {
	if inv, ok := s.invokers[name]; ok {
		return inv(ctx, raw, "")
	}
	if target, ok := s.granular[name]; ok {
		s.logger.Debug("granular call", "tool", target.tool, "action", target.action)
		return s.invokers[target.tool](ctx, raw, target.action)
	}
	s.logger.Warn("unknown tool", "tool", name)
	return fail("", vmerr.New(vmerr.CodeInvalidAction, "tools.call", "unknown tool %q", name))
}
