// Package templates keeps a catalogue of machine templates in one YAML
// file and turns them into creation options.
package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// Template is a preconfigured machine. Zero numeric fields take the
// server defaults when a machine is created from it.
type Template struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	OSType      string `yaml:"os_type" json:"os_type"`
	MemoryMB    int    `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	CPUs        int    `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	DiskSizeGB  int    `yaml:"disk_size_gb,omitempty" json:"disk_size_gb,omitempty"`
	NetworkType string `yaml:"network_type,omitempty" json:"network_type,omitempty"`
}

// Validate checks the required fields and, when set, the machine limits.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return vmerr.Validation("template name is required")
	}
	if strings.TrimSpace(t.OSType) == "" {
		return vmerr.Validation("template %s: os_type is required", t.Name)
	}
	if t.MemoryMB != 0 && t.MemoryMB < vm.MinMemoryMB {
		return vmerr.Validation("template %s: memory must be at least %d MB, got %d", t.Name, vm.MinMemoryMB, t.MemoryMB)
	}
	if t.CPUs != 0 && (t.CPUs < vm.MinCPUs || t.CPUs > vm.MaxCPUs) {
		return vmerr.Validation("template %s: cpus must be between %d and %d, got %d", t.Name, vm.MinCPUs, vm.MaxCPUs, t.CPUs)
	}
	if t.DiskSizeGB < 0 {
		return vmerr.Validation("template %s: disk size must not be negative", t.Name)
	}
	if t.NetworkType != "" && !slices.Contains(vm.NetworkTypes, t.NetworkType) {
		return vmerr.Validation("template %s: network type %q not one of %s", t.Name, t.NetworkType, strings.Join(vm.NetworkTypes, ", "))
	}
	return nil
}

// Options overlays the template on base and names the machine vmName.
func (t Template) Options(vmName string, base vm.CreateOptions) vm.CreateOptions {
	opts := base
	opts.Name = vmName
	opts.OSType = t.OSType
	if t.MemoryMB != 0 {
		opts.MemoryMB = t.MemoryMB
	}
	if t.CPUs != 0 {
		opts.CPUs = t.CPUs
	}
	if t.DiskSizeGB != 0 {
		opts.DiskSizeGB = t.DiskSizeGB
	}
	if t.NetworkType != "" {
		opts.NetworkType = t.NetworkType
	}
	return opts
}

// Catalog reads and writes the template file at Path. The file holds a
// YAML list of templates; a missing file is an empty catalogue.
type Catalog struct {
	Path   string
	Logger *slog.Logger

	mu     sync.Mutex
	cache  []Template
	loaded bool
}

func NewCatalog(path string, logger *slog.Logger) *Catalog {
	return &Catalog{
		Path:   path,
		Logger: logging.Ensure(logger).With("component", "templates"),
	}
}

// List returns the templates in file order.
func (c *Catalog) List() ([]Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	return slices.Clone(c.cache), nil
}

func (c *Catalog) Get(name string) (Template, error) {
	if strings.TrimSpace(name) == "" {
		return Template{}, vmerr.Validation("template name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return Template{}, err
	}
	idx := c.index(name)
	if idx < 0 {
		names := make([]string, len(c.cache))
		for i, t := range c.cache {
			names[i] = t.Name
		}
		available := strings.Join(names, ", ")
		if available == "" {
			available = "none"
		}
		return Template{}, vmerr.New(vmerr.CodeTemplate, "templates.get", "template %q not found; available templates: %s", name, available)
	}
	return c.cache[idx], nil
}

// Create validates t and appends it to the file.
func (c *Catalog) Create(t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	if c.index(t.Name) >= 0 {
		return vmerr.New(vmerr.CodeTemplate, "templates.create", "template %q already exists", t.Name)
	}
	next := append(slices.Clone(c.cache), t)
	if err := c.write(next); err != nil {
		return err
	}
	c.Logger.Info("created template", "name", t.Name)
	return nil
}

func (c *Catalog) Delete(name string) error {
	if strings.TrimSpace(name) == "" {
		return vmerr.Validation("template name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	idx := c.index(name)
	if idx < 0 {
		return vmerr.New(vmerr.CodeTemplate, "templates.delete", "template %q not found", name)
	}
	if err := c.write(slices.Delete(slices.Clone(c.cache), idx, idx+1)); err != nil {
		return err
	}
	c.Logger.Info("deleted template", "name", name)
	return nil
}

func (c *Catalog) index(name string) int {
	return slices.IndexFunc(c.cache, func(t Template) bool { return t.Name == name })
}

func (c *Catalog) ensureLoaded() error {
	if c.loaded {
		return nil
	}
	list, err := load(c.Path)
	if err != nil {
		return err
	}
	c.cache = list
	c.loaded = true
	c.Logger.Debug("templates loaded", "path", c.Path, "count", len(list))
	return nil
}

func load(path string) ([]Template, error) {
	if strings.TrimSpace(path) == "" {
		return []Template{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Template{}, nil
	}
	if err != nil {
		return nil, vmerr.Wrap(vmerr.CodeTemplate, "templates.load", err)
	}
	list := []Template{}
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, vmerr.Wrap(vmerr.CodeTemplate, "templates.load", fmt.Errorf("parse template file %s: %w", path, err))
	}
	seen := map[string]bool{}
	for i, t := range list {
		if err := t.Validate(); err != nil {
			return nil, vmerr.Wrap(vmerr.CodeTemplate, "templates.load", fmt.Errorf("%s: entry %d: %w", path, i, err))
		}
		if seen[t.Name] {
			return nil, vmerr.New(vmerr.CodeTemplate, "templates.load", "%s: template %q defined twice", path, t.Name)
		}
		seen[t.Name] = true
	}
	return list, nil
}

// write replaces the file with list and refreshes the cache. The file is
// swapped in by rename so readers never see a partial catalogue.
func (c *Catalog) write(list []Template) error {
	if strings.TrimSpace(c.Path) == "" {
		return vmerr.New(vmerr.CodeConfiguration, "templates.write", "template file is not configured")
	}
	data, err := yaml.Marshal(list)
	if err != nil {
		return vmerr.Wrap(vmerr.CodeTemplate, "templates.write", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return vmerr.Wrap(vmerr.CodeTemplate, "templates.write", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.Path), ".templates-*.yaml")
	if err != nil {
		return vmerr.Wrap(vmerr.CodeTemplate, "templates.write", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return vmerr.Wrap(vmerr.CodeTemplate, "templates.write", err)
	}
	if err := tmp.Close(); err != nil {
		return vmerr.Wrap(vmerr.CodeTemplate, "templates.write", err)
	}
	if err := os.Rename(tmp.Name(), c.Path); err != nil {
		return vmerr.Wrap(vmerr.CodeTemplate, "templates.write", err)
	}
	c.cache = list
	return nil
}
