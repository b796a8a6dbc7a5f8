package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/config"
	"github.com/cochaviz/virtmcp/internal/templates"
)

func TestInitializeVerifyClear(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "etc", "config.yaml")

	cfg := config.Default()
	cfg.SandboxDir = filepath.Join(root, "wsb")
	cfg.VMSandboxDir = filepath.Join(root, "vm-sandboxes")
	cfg.PortfolioDir = filepath.Join(root, "portfolios")
	cfg.DatabasePath = filepath.Join(root, "data", "virtmcp.db")
	cfg.BackupDir = filepath.Join(root, "data", "backups")
	cfg.TemplateFile = filepath.Join(root, "etc", "templates.yaml")

	assert.Error(t, Verify(path))
	require.NoError(t, Initialize(path, cfg))
	require.NoError(t, Verify(path))

	assert.DirExists(t, cfg.SandboxDir)
	assert.DirExists(t, cfg.VMSandboxDir)
	assert.FileExists(t, filepath.Join(cfg.PortfolioDir, "example.yaml"))
	assert.FileExists(t, cfg.DatabasePath)
	assert.DirExists(t, cfg.BackupDir)
	catalog, err := templates.NewCatalog(cfg.TemplateFile, nil).List()
	require.NoError(t, err)
	assert.Len(t, catalog, 2)

	require.NoError(t, ClearConfig(path))
	assert.Error(t, Verify(path))
	require.NoError(t, ClearConfig(path))
}

func TestInitializeKeepsExistingPortfolios(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.SandboxDir = ""
	cfg.VMSandboxDir = ""
	cfg.DatabasePath = ""
	cfg.BackupDir = ""
	cfg.TemplateFile = filepath.Join(root, "templates.yaml")
	require.NoError(t, os.WriteFile(cfg.TemplateFile, []byte("- name: mine\n  os_type: Linux_64\n"), 0o644))
	cfg.PortfolioDir = filepath.Join(root, "portfolios")
	require.NoError(t, os.MkdirAll(cfg.PortfolioDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PortfolioDir, "mine.yaml"), []byte("name: mine\n"), 0o644))

	require.NoError(t, Initialize(filepath.Join(root, "config.toml"), cfg))
	assert.NoFileExists(t, filepath.Join(cfg.PortfolioDir, "example.yaml"))
	kept, err := templates.NewCatalog(cfg.TemplateFile, nil).List()
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "mine", kept[0].Name)

	loaded, err := config.Load(filepath.Join(root, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, cfg.PortfolioDir, loaded.PortfolioDir)
}
