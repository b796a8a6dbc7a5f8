package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cochaviz/virtmcp/internal/config"
	"github.com/cochaviz/virtmcp/internal/store"
)

const examplePortfolio = `# Portfolios list machines that are restored and started together.
name: example
description: restore the clean snapshot of a single analysis machine
version: 1.0.0
targets:
  - vm_name: analysis-vm
    snapshot: clean
    start_type: headless
`

const exampleTemplates = `# Machine templates used by template_management deploy.
- name: ubuntu-server
  description: headless Ubuntu server
  os_type: Ubuntu_64
  memory_mb: 2048
  cpus: 2
  disk_size_gb: 25
- name: windows-11
  description: Windows 11 desktop
  os_type: Windows11_64
  memory_mb: 8192
  cpus: 4
  disk_size_gb: 80
`

// Verify reports whether the configuration file at path exists and loads.
func Verify(path string) error {
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist", path)
	}
	if _, err := config.Load(path); err != nil {
		return err
	}
	return nil
}

// ClearConfig removes the configuration file at path.
func ClearConfig(path string) error {
	if path == "" {
		path = config.DefaultPath()
	}
	getLogger().Info("clearing configuration file", "path", path)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// Initialize writes cfg to path, creates the directories it names, seeds the
// portfolio directory with an example and creates the database schema.
func Initialize(path string, cfg config.Config) error {
	if path == "" {
		path = config.DefaultPath()
	}
	logger := getLogger()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	data, err := config.Marshal(path, cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create configuration directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	logger.Info("wrote configuration", "path", path)

	for _, dir := range []string{cfg.SandboxDir, cfg.VMSandboxDir, cfg.PortfolioDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if cfg.BackupDir != "" {
		// archives hold whole disks
		if err := os.MkdirAll(cfg.BackupDir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", cfg.BackupDir, err)
		}
	}

	if cfg.PortfolioDir != "" {
		if err := seedPortfolios(cfg.PortfolioDir); err != nil {
			return err
		}
	}

	if cfg.TemplateFile != "" {
		if err := seedTemplates(cfg.TemplateFile); err != nil {
			return err
		}
	}

	if cfg.DatabasePath != "" {
		db, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		if err := db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
		logger.Info("database ready", "path", cfg.DatabasePath)
	}

	if vbox, err := cfg.ResolveVBoxManage(); err != nil {
		logger.Warn("VBoxManage not found; VirtualBox tools will be unavailable", "error", err)
	} else {
		logger.Info("found VBoxManage", "path", vbox)
	}
	return nil
}

func seedPortfolios(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read portfolio directory: %w", err)
	}
	if len(entries) > 0 {
		return nil
	}
	path := filepath.Join(dir, "example.yaml")
	if err := os.WriteFile(path, []byte(examplePortfolio), 0o644); err != nil {
		return fmt.Errorf("write example portfolio: %w", err)
	}
	getLogger().Info("wrote example portfolio", "path", path)
	return nil
}

func seedTemplates(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create template directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(exampleTemplates), 0o644); err != nil {
		return fmt.Errorf("write example templates: %w", err)
	}
	getLogger().Info("wrote example templates", "path", path)
	return nil
}
