// Package vm holds the hypervisor-neutral models shared by the VirtualBox,
// libvirt and Hyper-V drivers.
package vm

import (
	"slices"
	"strings"
	"time"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// State is a normalised machine state.
type State string

const (
	StatePoweredOff State = "poweroff"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateSaved      State = "saved"
	StateStarting   State = "starting"
	StateStopping   State = "stopping"
	StateAborted    State = "aborted"
	StateUnknown    State = "unknown"
)

// Summary is one row of a machine listing.
type Summary struct {
	Name     string `json:"name"`
	UUID     string `json:"uuid"`
	State    State  `json:"state,omitempty"`
	Running  bool   `json:"running"`
	OSType   string `json:"os_type,omitempty"`
	MemoryMB int    `json:"memory_mb,omitempty"`
	CPUs     int    `json:"cpus,omitempty"`
}

// Details describes a single machine. Properties carries the raw
// driver-specific key/value output.
type Details struct {
	Name       string            `json:"name"`
	UUID       string            `json:"uuid"`
	State      State             `json:"state"`
	OSType     string            `json:"os_type,omitempty"`
	MemoryMB   int               `json:"memory_mb,omitempty"`
	CPUs       int               `json:"cpus,omitempty"`
	VRAMMB     int               `json:"vram_mb,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Snapshot is one entry of a machine's snapshot tree.
type Snapshot struct {
	Name        string    `json:"name"`
	UUID        string    `json:"uuid,omitempty"`
	Description string    `json:"description,omitempty"`
	Parent      string    `json:"parent,omitempty"`
	Current     bool      `json:"current"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

const (
	MinMemoryMB = 128
	MinCPUs     = 1
	MaxCPUs     = 32
	MinDiskGB   = 1
)

// NetworkTypes accepted for a freshly created machine's first adapter.
var NetworkTypes = []string{"nat", "bridged", "intnet", "hostonly", "none"}

// StartTypes accepted by StartVM.
var StartTypes = []string{"headless", "gui", "sdl", "separate"}

// CreateOptions describes a machine to create.
type CreateOptions struct {
	Name        string
	OSType      string
	MemoryMB    int
	CPUs        int
	DiskSizeGB  int
	NetworkType string
	BaseFolder  string
}

// Validate enforces the creation limits.
func (o CreateOptions) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return vmerr.Validation("vm name is required")
	}
	if strings.TrimSpace(o.OSType) == "" {
		return vmerr.Validation("os type is required")
	}
	if o.MemoryMB < MinMemoryMB {
		return vmerr.Validation("memory must be at least %d MB, got %d", MinMemoryMB, o.MemoryMB)
	}
	if o.CPUs < MinCPUs || o.CPUs > MaxCPUs {
		return vmerr.Validation("cpus must be between %d and %d, got %d", MinCPUs, MaxCPUs, o.CPUs)
	}
	if o.DiskSizeGB < MinDiskGB {
		return vmerr.Validation("disk size must be at least %d GB, got %d", MinDiskGB, o.DiskSizeGB)
	}
	if o.NetworkType != "" && !slices.Contains(NetworkTypes, o.NetworkType) {
		return vmerr.Validation("network type %q not one of %s", o.NetworkType, strings.Join(NetworkTypes, ", "))
	}
	return nil
}

// StopOptions controls how a machine is stopped.
type StopOptions struct {
	Force   bool
	Wait    bool
	Timeout time.Duration
}

// CloneMode selects how much of the source is copied.
type CloneMode string

const (
	CloneFull   CloneMode = "full"
	CloneLinked CloneMode = "linked"
	CloneAll    CloneMode = "all"
)

// CloneOptions describes a clone request.
type CloneOptions struct {
	Source     string
	Name       string
	Mode       CloneMode
	Snapshot   string
	BaseFolder string
	KeepMACs   bool
}

// Validate checks the clone request.
func (o CloneOptions) Validate() error {
	if strings.TrimSpace(o.Source) == "" {
		return vmerr.Validation("source vm is required")
	}
	if strings.TrimSpace(o.Name) == "" {
		return vmerr.Validation("new vm name is required")
	}
	switch o.Mode {
	case "", CloneFull, CloneLinked, CloneAll:
	default:
		return vmerr.Validation("clone mode %q not one of full, linked, all", o.Mode)
	}
	return nil
}
