// Package portfolio loads named collections of VM targets from YAML files
// and applies them to a hypervisor.
package portfolio

import (
	"context"
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
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

const defaultVersion = "1.0.0"

// Target is one machine of a portfolio. Snapshot is restored before the
// machine is started when set.
type Target struct {
	VMName    string `yaml:"vm_name" json:"vm_name"`
	Snapshot  string `yaml:"snapshot,omitempty" json:"snapshot,omitempty"`
	StartType string `yaml:"start_type,omitempty" json:"start_type,omitempty"`
}

type Portfolio struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string   `yaml:"version,omitempty" json:"version"`
	Targets     []Target `yaml:"targets" json:"targets"`
	Path        string   `yaml:"-" json:"path"`
}

// Manager reads *.yaml and *.yml files from Dir. Results are cached until
// Reload is called.
type Manager struct {
	Dir    string
	Logger *slog.Logger

	mu     sync.Mutex
	cache  map[string]Portfolio
	loaded bool
}

func NewManager(dir string, logger *slog.Logger) *Manager {
	return &Manager{
		Dir:    dir,
		Logger: logging.Ensure(logger).With("component", "portfolio"),
	}
}

// List returns every portfolio sorted by name.
func (m *Manager) List() ([]Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]Portfolio, 0, len(m.cache))
	for _, p := range m.cache {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Portfolio) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Get returns the named portfolio. Unknown names yield a PORTFOLIO_ERROR
// listing the available ones.
func (m *Manager) Get(name string) (Portfolio, error) {
	if strings.TrimSpace(name) == "" {
		return Portfolio{}, vmerr.Validation("portfolio name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return Portfolio{}, err
	}
	p, ok := m.cache[name]
	if !ok {
		names := make([]string, 0, len(m.cache))
		for n := range m.cache {
			names = append(names, n)
		}
		slices.Sort(names)
		available := strings.Join(names, ", ")
		if available == "" {
			available = "none"
		}
		return Portfolio{}, vmerr.New(vmerr.CodePortfolio, "portfolio.get", "portfolio %q not found; available portfolios: %s", name, available)
	}
	return p, nil
}

// Reload drops the cache and reads the directory again. It returns the
// number of portfolios loaded.
func (m *Manager) Reload() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.cache = nil
	if err := m.ensureLoaded(); err != nil {
		return 0, err
	}
	return len(m.cache), nil
}

func (m *Manager) ensureLoaded() error {
	if m.loaded {
		return nil
	}
	cache, err := loadDir(m.Dir)
	if err != nil {
		return err
	}
	m.cache = cache
	m.loaded = true
	m.Logger.Debug("portfolios loaded", "dir", m.Dir, "count", len(cache))
	return nil
}

func loadDir(dir string) (map[string]Portfolio, error) {
	cache := map[string]Portfolio{}
	if strings.TrimSpace(dir) == "" {
		return cache, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return cache, nil
	}
	if err != nil {
		return nil, vmerr.Wrap(vmerr.CodePortfolio, "portfolio.load", fmt.Errorf("read portfolio directory: %w", err))
	}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := cache[p.Name]; dup {
			return nil, vmerr.New(vmerr.CodePortfolio, "portfolio.load", "portfolio %q defined in both %s and %s", p.Name, prev.Path, path)
		}
		cache[p.Name] = p
	}
	return cache, nil
}

func loadFile(path string) (Portfolio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Portfolio{}, vmerr.Wrap(vmerr.CodePortfolio, "portfolio.load", err)
	}
	defer f.Close()

	var p Portfolio
	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return Portfolio{}, vmerr.Wrap(vmerr.CodePortfolio, "portfolio.load", fmt.Errorf("parse portfolio file %s: %w", path, err))
	}
	p.Path = path
	if strings.TrimSpace(p.Name) == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if p.Version == "" {
		p.Version = defaultVersion
	}
	for i, t := range p.Targets {
		if strings.TrimSpace(t.VMName) == "" {
			return Portfolio{}, vmerr.New(vmerr.CodePortfolio, "portfolio.load", "%s: target %d has no vm_name", path, i)
		}
	}
	return p, nil
}

// Machines is what Apply needs from a hypervisor.
type Machines interface {
	RestoreSnapshot(ctx context.Context, vmName, name string) error
	StartVM(ctx context.Context, name, startType string) error
}

// TargetResult reports how one target fared.
type TargetResult struct {
	VMName    string `json:"vm_name"`
	Restored  bool   `json:"restored"`
	Started   bool   `json:"started"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Apply restores and starts every target in order. It stops at the first
// failing target; the results up to and including that target are
// returned along with the error.
func Apply(ctx context.Context, machines Machines, p Portfolio) ([]TargetResult, error) {
	results := make([]TargetResult, 0, len(p.Targets))
	for _, t := range p.Targets {
		r := TargetResult{VMName: t.VMName}
		if t.Snapshot != "" {
			if err := machines.RestoreSnapshot(ctx, t.VMName, t.Snapshot); err != nil {
				return append(results, r.failed(err)), err
			}
			r.Restored = true
		}
		if err := machines.StartVM(ctx, t.VMName, t.StartType); err != nil {
			return append(results, r.failed(err)), err
		}
		r.Started = true
		results = append(results, r)
	}
	return results, nil
}

func (r TargetResult) failed(err error) TargetResult {
	r.Error = err.Error()
	r.ErrorCode = string(vmerr.CodeOf(err))
	return r
}
