// Package config loads the server configuration from a YAML or TOML file,
// applies environment overrides and fills in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const appName = "virtmcp"

const (
	ToolModeProduction = "production"
	ToolModeAll        = "all"

	HypervisorVirtualBox = "virtualbox"
	HypervisorLibvirt    = "libvirt"

	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// Config is the complete runtime configuration. Timeouts are whole seconds.
type Config struct {
	VBoxManagePath string `yaml:"vboxmanage_path" toml:"vboxmanage_path"`

	CommandTimeoutSeconds  int `yaml:"command_timeout" toml:"command_timeout"`
	VMStartTimeoutSeconds  int `yaml:"vm_start_timeout" toml:"vm_start_timeout"`
	VMStopTimeoutSeconds   int `yaml:"vm_stop_timeout" toml:"vm_stop_timeout"`
	SnapshotTimeoutSeconds int `yaml:"snapshot_timeout" toml:"snapshot_timeout"`
	BackupTimeoutSeconds   int `yaml:"backup_timeout" toml:"backup_timeout"`

	DefaultMemoryMB int    `yaml:"default_memory_mb" toml:"default_memory_mb"`
	DefaultCPUs     int    `yaml:"default_cpus" toml:"default_cpus"`
	DefaultDiskGB   int    `yaml:"default_disk_gb" toml:"default_disk_gb"`
	DefaultOSType   string `yaml:"default_os_type" toml:"default_os_type"`
	DefaultVMFolder string `yaml:"default_vm_folder" toml:"default_vm_folder"`

	ToolMode   string `yaml:"tool_mode" toml:"tool_mode"`
	Hypervisor string `yaml:"hypervisor" toml:"hypervisor"`
	LibvirtURI string `yaml:"libvirt_uri" toml:"libvirt_uri"`

	Transport string `yaml:"transport" toml:"transport"`
	Host      string `yaml:"host" toml:"host"`
	Port      int    `yaml:"port" toml:"port"`
	APIKey    string `yaml:"api_key" toml:"api_key"`

	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`

	SandboxDir   string `yaml:"sandbox_dir" toml:"sandbox_dir"`
	VMSandboxDir string `yaml:"vm_sandbox_dir" toml:"vm_sandbox_dir"`
	PortfolioDir string `yaml:"portfolio_dir" toml:"portfolio_dir"`
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	BackupDir    string `yaml:"backup_dir" toml:"backup_dir"`
	TemplateFile string `yaml:"template_file" toml:"template_file"`
}

// ConfigDir is the directory holding the default configuration file.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// DataDir is the directory holding the database, the backups and the VM
// sandbox folders.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// DefaultPath is the configuration file used when none is given.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		CommandTimeoutSeconds:  60,
		VMStartTimeoutSeconds:  120,
		VMStopTimeoutSeconds:   60,
		SnapshotTimeoutSeconds: 180,
		BackupTimeoutSeconds:   1800,
		DefaultMemoryMB:        2048,
		DefaultCPUs:            2,
		DefaultDiskGB:          20,
		DefaultOSType:          "Ubuntu_64",
		DefaultVMFolder:        filepath.Join(home, "VirtualBox VMs"),
		ToolMode:               ToolModeProduction,
		Hypervisor:             HypervisorVirtualBox,
		LibvirtURI:             "qemu:///system",
		Transport:              TransportStdio,
		Host:                   "127.0.0.1",
		Port:                   8000,
		LogLevel:               "info",
		LogFormat:              "cli",
		SandboxDir:             filepath.Join(os.TempDir(), "virtualization-mcp_sandboxes"),
		VMSandboxDir:           filepath.Join(DataDir(), "vm-sandboxes"),
		PortfolioDir:           filepath.Join(ConfigDir(), "portfolios"),
		DatabasePath:           filepath.Join(DataDir(), "virtmcp.db"),
		BackupDir:              filepath.Join(DataDir(), "backups"),
		TemplateFile:           filepath.Join(ConfigDir(), "templates.yaml"),
	}
}

// Load reads path (or the default location when path is empty), overlays the
// environment and validates the result. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode toml config %s: %w", path, err)
		}
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode yaml config %s: %w", path, err)
	}
	return nil
}

// Marshal encodes cfg in the format implied by path's extension.
func Marshal(path string, cfg Config) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Marshal(cfg)
	}
	return yaml.Marshal(cfg)
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
			return
		}
		*dst = n
	}

	str("VBOX_MANAGE_PATH", &cfg.VBoxManagePath)
	num("COMMAND_TIMEOUT", &cfg.CommandTimeoutSeconds)
	num("VM_START_TIMEOUT", &cfg.VMStartTimeoutSeconds)
	num("VM_STOP_TIMEOUT", &cfg.VMStopTimeoutSeconds)
	num("SNAPSHOT_TIMEOUT", &cfg.SnapshotTimeoutSeconds)
	num("BACKUP_TIMEOUT", &cfg.BackupTimeoutSeconds)
	num("DEFAULT_MEMORY_MB", &cfg.DefaultMemoryMB)
	num("DEFAULT_DISK_GB", &cfg.DefaultDiskGB)
	str("DEFAULT_OS_TYPE", &cfg.DefaultOSType)
	str("DEFAULT_VM_FOLDER", &cfg.DefaultVMFolder)
	str("TOOL_MODE", &cfg.ToolMode)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("HOST", &cfg.Host)
	num("PORT", &cfg.Port)
	str("API_KEY", &cfg.APIKey)
	str("VIRTMCP_HYPERVISOR", &cfg.Hypervisor)
	str("VIRTMCP_LIBVIRT_URI", &cfg.LibvirtURI)
	str("VIRTMCP_TRANSPORT", &cfg.Transport)
	str("VIRTMCP_DATABASE", &cfg.DatabasePath)
	str("VIRTMCP_PORTFOLIO_DIR", &cfg.PortfolioDir)
	str("VIRTMCP_BACKUP_DIR", &cfg.BackupDir)
	str("VIRTMCP_TEMPLATE_FILE", &cfg.TemplateFile)

	cfg.ToolMode = strings.ToLower(cfg.ToolMode)
	cfg.Hypervisor = strings.ToLower(cfg.Hypervisor)
	cfg.Transport = strings.ToLower(cfg.Transport)
	return errors.Join(errs...)
}

// Validate checks enumerations and numeric ranges.
func (c Config) Validate() error {
	var errs []error
	switch c.ToolMode {
	case ToolModeProduction, ToolModeAll:
	default:
		errs = append(errs, fmt.Errorf("unknown tool mode %q", c.ToolMode))
	}
	switch c.Hypervisor {
	case HypervisorVirtualBox, HypervisorLibvirt:
	default:
		errs = append(errs, fmt.Errorf("unknown hypervisor %q", c.Hypervisor))
	}
	switch c.Transport {
	case TransportStdio, TransportHTTP, TransportSSE:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	timeouts := map[string]int{
		"command_timeout":  c.CommandTimeoutSeconds,
		"vm_start_timeout": c.VMStartTimeoutSeconds,
		"vm_stop_timeout":  c.VMStopTimeoutSeconds,
		"snapshot_timeout": c.SnapshotTimeoutSeconds,
		"backup_timeout":   c.BackupTimeoutSeconds,
	}
	for _, name := range []string{"command_timeout", "vm_start_timeout", "vm_stop_timeout", "snapshot_timeout", "backup_timeout"} {
		if timeouts[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, timeouts[name]))
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DefaultMemoryMB < 128 {
		errs = append(errs, fmt.Errorf("default_memory_mb must be at least 128, got %d", c.DefaultMemoryMB))
	}
	return errors.Join(errs...)
}

// AllTools reports whether granular per-action tools should be registered.
func (c Config) AllTools() bool {
	return c.ToolMode == ToolModeAll
}

func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

func (c Config) VMStartTimeout() time.Duration {
	return time.Duration(c.VMStartTimeoutSeconds) * time.Second
}

func (c Config) VMStopTimeout() time.Duration {
	return time.Duration(c.VMStopTimeoutSeconds) * time.Second
}

func (c Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.SnapshotTimeoutSeconds) * time.Second
}

func (c Config) BackupTimeout() time.Duration {
	return time.Duration(c.BackupTimeoutSeconds) * time.Second
}

// Addr is the listen address for the HTTP transports.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var lookPath = exec.LookPath

// ResolveVBoxManage locates the VBoxManage executable: the configured path,
// then PATH, then the platform install location.
func (c Config) ResolveVBoxManage() (string, error) {
	if p := strings.TrimSpace(c.VBoxManagePath); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("configured VBoxManage %s: %w", p, err)
		}
		return p, nil
	}

	name := "VBoxManage"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if p, err := lookPath(name); err == nil {
		return p, nil
	}

	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{`C:\Program Files\Oracle\VirtualBox\VBoxManage.exe`}
	case "darwin":
		candidates = []string{"/Applications/VirtualBox.app/Contents/MacOS/VBoxManage", "/usr/local/bin/VBoxManage"}
	default:
		candidates = []string{"/usr/bin/VBoxManage", "/usr/local/bin/VBoxManage"}
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.New("VBoxManage not found: install VirtualBox or set VBOX_MANAGE_PATH")
}
