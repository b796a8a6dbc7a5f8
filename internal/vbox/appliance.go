package vbox

import (
	"context"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// ExportVM writes the machine and its disks to an OVA archive at path.
// The machine must not be running.
func (m *Manager) ExportVM(ctx context.Context, vmName, path string) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	if err := requireName("appliance path", path); err != nil {
		return err
	}
	_, err := m.exec(ctx, m.Timeouts.Appliance, vmerr.CodeBackup, "export", vmName, "--output", path)
	return err
}

// ImportVM registers the machine stored in the appliance at path. A
// non-empty vmName renames the imported machine.
func (m *Manager) ImportVM(ctx context.Context, path, vmName string) error {
	if err := requireName("appliance path", path); err != nil {
		return err
	}
	args := []string{"import", path}
	if strings.TrimSpace(vmName) != "" {
		args = append(args, "--vsys", "0", "--vmname", vmName)
	}
	_, err := m.exec(ctx, m.Timeouts.Appliance, vmerr.CodeBackup, args...)
	return err
}
