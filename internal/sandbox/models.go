// Package sandbox manages disposable VirtualBox machines cloned from a
// prepared source VM. A lease owns one clone from acquisition until it is
// destroyed.
package sandbox

import (
	"slices"
	"strings"
	"time"

	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

type State = string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// NamePrefix is prepended to generated sandbox machine names and internal
// network names.
const NamePrefix = "sandbox-"

// LeaseSpecification describes the sandbox to acquire.
type LeaseSpecification struct {
	SourceVM string `json:"source_vm" yaml:"source_vm"`
	Snapshot string `json:"snapshot,omitempty" yaml:"snapshot"`
	Name     string `json:"name,omitempty" yaml:"name"` // generated from the lease id when empty

	MemoryMB int `json:"memory_mb,omitempty" yaml:"memory_mb"`
	CPUs     int `json:"cpus,omitempty" yaml:"cpus"`

	IsolateNetwork bool   `json:"isolate_network" yaml:"isolate_network"`
	ShareDir       string `json:"share_dir,omitempty" yaml:"share_dir"` // mirrored into a read-only ISO
	StartType      string `json:"start_type,omitempty" yaml:"start_type"`
}

func (s LeaseSpecification) Validate() error {
	if strings.TrimSpace(s.SourceVM) == "" {
		return vmerr.Validation("source vm is required")
	}
	if s.MemoryMB != 0 && s.MemoryMB < vm.MinMemoryMB {
		return vmerr.Validation("memory must be at least %d MB, got %d", vm.MinMemoryMB, s.MemoryMB)
	}
	if s.CPUs != 0 && (s.CPUs < vm.MinCPUs || s.CPUs > vm.MaxCPUs) {
		return vmerr.Validation("cpus must be between %d and %d, got %d", vm.MinCPUs, vm.MaxCPUs, s.CPUs)
	}
	if s.StartType != "" && !slices.Contains(vm.StartTypes, s.StartType) {
		return vmerr.Validation("start type %q not one of %s", s.StartType, strings.Join(vm.StartTypes, ", "))
	}
	return nil
}

// Lease is an acquired sandbox machine.
type Lease struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time,omitzero"`
	EndTime   time.Time `json:"end_time,omitzero"`

	Specification LeaseSpecification `json:"specification"`
	State         State              `json:"state"`

	RunDir   string         `json:"run_dir,omitempty"`
	Network  string         `json:"network,omitempty"`   // internal network when isolated
	ShareISO string         `json:"share_iso,omitempty"` // attached share image
	Metadata map[string]any `json:"metadata,omitempty"`
}
