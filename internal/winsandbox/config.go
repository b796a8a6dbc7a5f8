// Package winsandbox generates Windows Sandbox (.wsb) configuration files
// and tracks the sandboxes launched from them.
package winsandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

const (
	DefaultMemoryMB = 4096
	MinMemoryMB     = 1024
	MaxMemoryMB     = 32768
)

// MappedFolder shares a host directory with the sandbox. HostPath must be
// absolute and exist when the configuration is generated.
type MappedFolder struct {
	HostPath    string `json:"host_path" yaml:"host_path"`
	SandboxPath string `json:"sandbox_path,omitempty" yaml:"sandbox_path,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty" yaml:"read_only,omitempty"`
}

// SandboxConfig describes one Windows Sandbox session. Nil VGPU and
// Networking mean enabled.
type SandboxConfig struct {
	Name          string         `json:"name" yaml:"name"`
	MemoryMB      int            `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
	VGPU          *bool          `json:"vgpu,omitempty" yaml:"vgpu,omitempty"`
	Networking    *bool          `json:"networking,omitempty" yaml:"networking,omitempty"`
	MappedFolders []MappedFolder `json:"mapped_folders,omitempty" yaml:"mapped_folders,omitempty"`
	LogonCommands []string       `json:"logon_commands,omitempty" yaml:"logon_commands,omitempty"`
}

// Normalize trims the name and fills defaults.
func (c SandboxConfig) Normalize() SandboxConfig {
	c.Name = strings.TrimSpace(c.Name)
	if c.MemoryMB == 0 {
		c.MemoryMB = DefaultMemoryMB
	}
	return c
}

// Validate checks a normalised configuration. Host folders are checked
// against the filesystem.
func (c SandboxConfig) Validate() error {
	if c.Name == "" {
		return vmerr.Validation("sandbox name cannot be empty")
	}
	if c.MemoryMB < MinMemoryMB || c.MemoryMB > MaxMemoryMB {
		return vmerr.Validation("memory_mb must be between %d and %d, got %d", MinMemoryMB, MaxMemoryMB, c.MemoryMB)
	}
	for i, f := range c.MappedFolders {
		if err := f.Validate(); err != nil {
			return vmerr.Validation("mapped folder %d: %v", i, err)
		}
	}
	for i, cmd := range c.LogonCommands {
		if strings.TrimSpace(cmd) == "" {
			return vmerr.Validation("logon command %d is empty", i)
		}
	}
	return nil
}

func (f MappedFolder) Validate() error {
	if strings.TrimSpace(f.HostPath) == "" {
		return vmerr.Validation("host path is required")
	}
	if !filepath.IsAbs(f.HostPath) {
		return vmerr.Validation("host path must be absolute: %s", f.HostPath)
	}
	if _, err := os.Stat(f.HostPath); err != nil {
		return vmerr.Validation("host path does not exist: %s", f.HostPath)
	}
	return nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}
