package winsandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

type Status = string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// ErrNotFound is returned (wrapped) by a Store for unknown IDs.
var ErrNotFound = errors.New("windows sandbox not found")

// Record is a generated configuration and, when launched, its process.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	WSBPath   string    `json:"wsb_path"`
	PID       int       `json:"pid,omitempty"`
	Status    Status    `json:"status"`
	MemoryMB  int       `json:"memory_mb"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

type Store interface {
	SaveWindowsSandbox(ctx context.Context, rec Record) error
	GetWindowsSandbox(ctx context.Context, id string) (Record, error)
	ListWindowsSandboxes(ctx context.Context) ([]Record, error)
	DeleteWindowsSandbox(ctx context.Context, id string) error
}

// Launcher starts and stops Windows Sandbox processes.
type Launcher interface {
	Launch(ctx context.Context, wsbPath string) (pid int, err error)
	Stop(pid int) error
}

// ExecLauncher runs WindowsSandbox.exe. It only works on Windows hosts.
type ExecLauncher struct {
	Executable string
}

func (l ExecLauncher) Launch(ctx context.Context, wsbPath string) (int, error) {
	if runtime.GOOS != "windows" {
		return 0, vmerr.New(vmerr.CodeUnsupported, "winsandbox.launch", "Windows Sandbox requires a Windows host (running on %s)", runtime.GOOS)
	}
	exe := l.Executable
	if exe == "" {
		exe = "WindowsSandbox.exe"
	}
	cmd := exec.Command(exe, wsbPath)
	if err := cmd.Start(); err != nil {
		return 0, vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.launch", fmt.Errorf("start %s: %w", exe, err))
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

func (l ExecLauncher) Stop(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

type Manager struct {
	Dir      string
	Launcher Launcher
	Store    Store
	Logger   *slog.Logger

	now func() time.Time
}

func NewManager(dir string, launcher Launcher, store Store, logger *slog.Logger) *Manager {
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	return &Manager{
		Dir:      dir,
		Launcher: launcher,
		Store:    store,
		Logger:   logging.Ensure(logger).With("component", "winsandbox"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create writes the configuration to Dir and, when launch is set, starts
// the sandbox from it. A failed launch removes the written file.
func (m *Manager) Create(ctx context.Context, cfg SandboxConfig, launch bool) (Record, error) {
	cfg = cfg.Normalize()
	doc, err := RenderXML(cfg)
	if err != nil {
		return Record{}, err
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return Record{}, vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.create", fmt.Errorf("create sandbox directory: %w", err))
	}

	id := uuid.NewString()
	path := filepath.Join(m.Dir, fmt.Sprintf("%s-%s.wsb", fileSafe(cfg.Name), id[:8]))
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return Record{}, vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.create", fmt.Errorf("write %s: %w", path, err))
	}

	rec := Record{
		ID:        id,
		Name:      cfg.Name,
		WSBPath:   path,
		Status:    StatusCreated,
		MemoryMB:  cfg.MemoryMB,
		CreatedAt: m.now(),
	}
	logger := m.Logger.With("sandbox_id", id, "name", cfg.Name)

	if launch {
		pid, err := m.Launcher.Launch(ctx, path)
		if err != nil {
			_ = os.Remove(path)
			return Record{}, err
		}
		rec.PID = pid
		rec.Status = StatusRunning
		rec.StartedAt = m.now()
		logger.Info("windows sandbox launched", "pid", pid, "wsb", path)
	} else {
		logger.Info("windows sandbox configuration written", "wsb", path)
	}

	if err := m.Store.SaveWindowsSandbox(ctx, rec); err != nil {
		err = fmt.Errorf("record sandbox: %w", err)
		// An unrecorded sandbox could never be stopped through the manager.
		if rec.PID != 0 {
			if stopErr := m.Launcher.Stop(rec.PID); stopErr != nil {
				logger.Error("untracked windows sandbox left running", "pid", rec.PID, "error", stopErr)
				err = errors.Join(err, fmt.Errorf("stop pid %d: %w", rec.PID, stopErr))
			}
		}
		_ = os.Remove(path)
		return Record{}, vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.create", err)
	}
	return rec, nil
}

func (m *Manager) List(ctx context.Context) ([]Record, error) {
	recs, err := m.Store.ListWindowsSandboxes(ctx)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.list", err)
	}
	return recs, nil
}

func (m *Manager) get(ctx context.Context, op, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, vmerr.Validation("sandbox id is required")
	}
	rec, err := m.Store.GetWindowsSandbox(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Record{}, vmerr.New(vmerr.CodeSandbox, op, "windows sandbox %s not found", id)
	}
	if err != nil {
		return Record{}, vmerr.Wrap(vmerr.CodeSandbox, op, err)
	}
	return rec, nil
}

// Stop terminates a running sandbox. Stopping a sandbox that is not
// running only updates its status.
func (m *Manager) Stop(ctx context.Context, id string) (Record, error) {
	rec, err := m.get(ctx, "winsandbox.stop", id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status == StatusRunning && rec.PID > 0 {
		if err := m.Launcher.Stop(rec.PID); err != nil {
			return rec, vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.stop", fmt.Errorf("stop pid %d: %w", rec.PID, err))
		}
		m.Logger.Info("windows sandbox stopped", "sandbox_id", id, "pid", rec.PID)
	}
	rec.Status = StatusStopped
	if err := m.Store.SaveWindowsSandbox(ctx, rec); err != nil {
		return rec, vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.stop", err)
	}
	return rec, nil
}

// Remove stops the sandbox if needed, deletes its .wsb file and forgets it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	rec, err := m.get(ctx, "winsandbox.remove", id)
	if err != nil {
		return err
	}
	if rec.Status == StatusRunning {
		if _, err := m.Stop(ctx, id); err != nil {
			return err
		}
	}
	if err := os.Remove(rec.WSBPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.remove", fmt.Errorf("remove %s: %w", rec.WSBPath, err))
	}
	if err := m.Store.DeleteWindowsSandbox(ctx, id); err != nil {
		return vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.remove", err)
	}
	return nil
}

func fileSafe(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "sandbox"
	}
	return b.String()
}
