// Package backup exports virtual machines to OVA archives, keeps a registry
// of the archives and restores machines from them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// ErrNotFound is returned (wrapped) by a Repository for unknown IDs.
var ErrNotFound = errors.New("backup not found")

// Backup is one exported machine.
type Backup struct {
	ID          string    `json:"backup_id"`
	VMName      string    `json:"vm_name"`
	Description string    `json:"description,omitempty"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Appliances moves machines in and out of appliance archives.
type Appliances interface {
	ExportVM(ctx context.Context, vmName, path string) error
	ImportVM(ctx context.Context, path, vmName string) error
}

// Repository stores backup records. ListBackups returns the newest first;
// an empty vmName lists every machine.
type Repository interface {
	SaveBackup(ctx context.Context, b Backup) error
	GetBackup(ctx context.Context, id string) (Backup, error)
	ListBackups(ctx context.Context, vmName string) ([]Backup, error)
	DeleteBackup(ctx context.Context, id string) error
}

type Manager struct {
	Dir        string
	Appliances Appliances
	Repository Repository
	Logger     *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewManager(dir string, appliances Appliances, repo Repository, logger *slog.Logger) *Manager {
	return &Manager{
		Dir:        dir,
		Appliances: appliances,
		Repository: repo,
		Logger:     logging.Ensure(logger).With("component", "backup"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Create exports vmName into Dir and records the archive. The archive is
// removed again when it cannot be recorded.
func (m *Manager) Create(ctx context.Context, vmName, description string) (Backup, error) {
	if strings.TrimSpace(vmName) == "" {
		return Backup{}, vmerr.Validation("vm name is required")
	}
	if strings.TrimSpace(m.Dir) == "" {
		return Backup{}, vmerr.New(vmerr.CodeConfiguration, "backup.create", "backup directory is not configured")
	}
	if err := os.MkdirAll(m.Dir, 0o700); err != nil {
		return Backup{}, vmerr.Wrap(vmerr.CodeBackup, "backup.create", fmt.Errorf("create backup directory: %w", err))
	}

	b := Backup{
		ID:          m.newID(),
		VMName:      vmName,
		Description: description,
		CreatedAt:   m.now(),
	}
	b.Path = filepath.Join(m.Dir, archiveName(b))

	m.Logger.Info("exporting virtual machine", "vm", vmName, "path", b.Path)
	if err := m.Appliances.ExportVM(ctx, vmName, b.Path); err != nil {
		_ = os.Remove(b.Path)
		return Backup{}, err
	}
	if info, err := os.Stat(b.Path); err == nil {
		b.SizeBytes = info.Size()
	}
	if err := m.Repository.SaveBackup(ctx, b); err != nil {
		_ = os.Remove(b.Path)
		return Backup{}, vmerr.Wrap(vmerr.CodeBackup, "backup.create", err)
	}
	return b, nil
}

func (m *Manager) List(ctx context.Context, vmName string) ([]Backup, error) {
	list, err := m.Repository.ListBackups(ctx, vmName)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.CodeBackup, "backup.list", err)
	}
	return list, nil
}

func (m *Manager) Get(ctx context.Context, id string) (Backup, error) {
	if strings.TrimSpace(id) == "" {
		return Backup{}, vmerr.Validation("backup id is required")
	}
	b, err := m.Repository.GetBackup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Backup{}, vmerr.New(vmerr.CodeBackup, "backup.get", "backup %s not found", id)
	}
	if err != nil {
		return Backup{}, vmerr.Wrap(vmerr.CodeBackup, "backup.get", err)
	}
	return b, nil
}

// Restore imports the archive of backup id. The machine keeps its original
// name unless newName is given; it returns the name it was registered as.
func (m *Manager) Restore(ctx context.Context, id, newName string) (string, error) {
	b, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(b.Path); err != nil {
		return "", vmerr.Wrap(vmerr.CodeBackup, "backup.restore", fmt.Errorf("backup archive %s: %w", b.Path, err))
	}
	name := strings.TrimSpace(newName)
	if name == "" {
		name = b.VMName
	}
	m.Logger.Info("restoring virtual machine", "backup", id, "vm", name)
	if err := m.Appliances.ImportVM(ctx, b.Path, newName); err != nil {
		return "", err
	}
	return name, nil
}

// Delete removes the archive and its record. A missing archive is not an
// error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	b, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(b.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return vmerr.Wrap(vmerr.CodeBackup, "backup.delete", err)
	}
	if err := m.Repository.DeleteBackup(ctx, id); err != nil {
		return vmerr.Wrap(vmerr.CodeBackup, "backup.delete", err)
	}
	return nil
}

// Policy selects backups for Cleanup. Zero fields are ignored.
type Policy struct {
	VMName    string
	OlderThan time.Duration
	Keep      int
}

// CleanupReport lists what Cleanup removed and what it failed to remove.
type CleanupReport struct {
	Deleted []string `json:"deleted"`
	Errors  []string `json:"errors,omitempty"`
}

// Cleanup deletes the backups older than p.OlderThan, then the oldest of
// the remaining ones until at most p.Keep are left.
func (m *Manager) Cleanup(ctx context.Context, p Policy) (CleanupReport, error) {
	if p.OlderThan < 0 || p.Keep < 0 {
		return CleanupReport{}, vmerr.Validation("cleanup age and keep count must not be negative")
	}
	if p.OlderThan == 0 && p.Keep == 0 {
		return CleanupReport{}, vmerr.Validation("cleanup needs an age or a keep count")
	}
	list, err := m.List(ctx, p.VMName)
	if err != nil {
		return CleanupReport{}, err
	}
	// oldest first
	slices.Reverse(list)

	var doomed []Backup
	kept := list[:0:0]
	cutoff := m.now().Add(-p.OlderThan)
	for _, b := range list {
		if p.OlderThan > 0 && b.CreatedAt.Before(cutoff) {
			doomed = append(doomed, b)
			continue
		}
		kept = append(kept, b)
	}
	if p.Keep > 0 && len(kept) > p.Keep {
		doomed = append(doomed, kept[:len(kept)-p.Keep]...)
	}

	report := CleanupReport{Deleted: []string{}}
	for _, b := range doomed {
		if err := m.Delete(ctx, b.ID); err != nil {
			m.Logger.Warn("backup cleanup failed", "backup", b.ID, "error", err)
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Deleted = append(report.Deleted, b.ID)
	}
	m.Logger.Info("backup cleanup finished", "deleted", len(report.Deleted), "failed", len(report.Errors))
	return report, nil
}

func archiveName(b Backup) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, b.VMName)
	short := b.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s-%s.ova", clean, b.CreatedAt.Format("20060102-150405"), short)
}
