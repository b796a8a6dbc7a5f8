package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
command_timeout: 15
default_memory_mb: 4096
tool_mode: all
hypervisor: libvirt
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.CommandTimeoutSeconds)
	assert.Equal(t, 4096, cfg.DefaultMemoryMB)
	assert.True(t, cfg.AllTools())
	assert.Equal(t, HypervisorLibvirt, cfg.Hypervisor)
	assert.Equal(t, 120, cfg.VMStartTimeoutSeconds, "unset keys keep defaults")
	assert.Equal(t, "Ubuntu_64", cfg.DefaultOSType)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport = "http"
port = 9100
default_os_type = "Windows10_64"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, "127.0.0.1:9100", cfg.Addr())
	assert.Equal(t, "Windows10_64", cfg.DefaultOSType)
}

func TestLoadEnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\n"), 0o644))

	t.Setenv("PORT", "9200")
	t.Setenv("TOOL_MODE", "ALL")
	t.Setenv("SNAPSHOT_TIMEOUT", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, ToolModeAll, cfg.ToolMode)
	assert.Equal(t, 30, cfg.SnapshotTimeoutSeconds)
}

func TestBackupAndTemplateSettings(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join(DataDir(), "backups"), cfg.BackupDir)
	assert.Equal(t, filepath.Join(ConfigDir(), "templates.yaml"), cfg.TemplateFile)
	assert.Equal(t, "30m0s", cfg.BackupTimeout().String())

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backup_dir: /srv/backups\nbackup_timeout: 600\n"), 0o644))
	t.Setenv("VIRTMCP_TEMPLATE_FILE", "/etc/virtmcp/templates.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/backups", cfg.BackupDir)
	assert.Equal(t, 600, cfg.BackupTimeoutSeconds)
	assert.Equal(t, "/etc/virtmcp/templates.yaml", cfg.TemplateFile)

	cfg.BackupTimeoutSeconds = 0
	assert.ErrorContains(t, cfg.Validate(), "backup_timeout")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, func(key string) (string, bool) {
		if key == "COMMAND_TIMEOUT" {
			return "soon", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "COMMAND_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.ToolMode = "verbose"
	cfg.Port = 0
	cfg.VMStopTimeoutSeconds = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "tool mode")
	assert.ErrorContains(t, err, "port 0")
	assert.ErrorContains(t, err, "vm_stop_timeout")
}

func TestToolModes(t *testing.T) {
	for mode, all := range map[string]bool{ToolModeProduction: false, ToolModeAll: true} {
		cfg := Default()
		cfg.ToolMode = mode
		require.NoError(t, cfg.Validate(), mode)
		assert.Equal(t, all, cfg.AllTools(), mode)
	}

	cfg := Default()
	cfg.ToolMode = "testing"
	assert.ErrorContains(t, cfg.Validate(), `unknown tool mode "testing"`)
	assert.False(t, cfg.AllTools())
}

func TestResolveVBoxManage(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "VBoxManage")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	cfg := Default()
	cfg.VBoxManagePath = bin
	got, err := cfg.ResolveVBoxManage()
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	cfg.VBoxManagePath = filepath.Join(dir, "missing")
	_, err = cfg.ResolveVBoxManage()
	assert.Error(t, err)
}

func TestResolveVBoxManageFromPath(t *testing.T) {
	original := lookPath
	t.Cleanup(func() { lookPath = original })
	lookPath = func(string) (string, error) { return "/opt/vbox/VBoxManage", nil }

	got, err := Default().ResolveVBoxManage()
	require.NoError(t, err)
	assert.Equal(t, "/opt/vbox/VBoxManage", got)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Port = 8123
	for _, name := range []string{"config.yaml", "config.toml"} {
		path := filepath.Join(t.TempDir(), name)
		data, err := Marshal(path, cfg)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8123, loaded.Port, name)
	}
}
