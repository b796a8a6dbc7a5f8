// Package vbox drives VirtualBox through the VBoxManage command-line tool.
// Every operation is a single subprocess invocation (or a short fixed
// sequence) whose text output is parsed into typed results.
package vbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// RunFunc executes name with args and returns stdout and stderr separately.
type RunFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Timeouts bounds each class of operation.
type Timeouts struct {
	Command   time.Duration
	Start     time.Duration
	Stop      time.Duration
	Snapshot  time.Duration
	Appliance time.Duration
}

// DefaultTimeouts mirrors the configuration defaults.
var DefaultTimeouts = Timeouts{
	Command:   60 * time.Second,
	Start:     120 * time.Second,
	Stop:      60 * time.Second,
	Snapshot:  180 * time.Second,
	Appliance: 30 * time.Minute,
}

// Manager wraps one VBoxManage executable.
type Manager struct {
	Path     string
	Timeouts Timeouts
	Logger   *slog.Logger

	run          RunFunc
	pollInterval time.Duration
}

// NewManager returns a Manager for the executable at path.
func NewManager(path string, timeouts Timeouts, logger *slog.Logger) *Manager {
	if strings.TrimSpace(path) == "" {
		path = "VBoxManage"
	}
	return &Manager{
		Path:         path,
		Timeouts:     timeouts,
		Logger:       logging.Ensure(logger).With("component", "vbox"),
		run:          execRun,
		pollInterval: time.Second,
	}
}

// WithRunner replaces the subprocess runner.
func (m *Manager) WithRunner(run RunFunc) *Manager {
	m.run = run
	return m
}

func (m *Manager) Name() string {
	return "virtualbox"
}

func (m *Manager) logger() *slog.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Manager) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	if m.Timeouts.Command > 0 {
		return m.Timeouts.Command
	}
	return DefaultTimeouts.Command
}

// exec runs VBoxManage with args under timeout. Failures are returned as
// *vmerr.Error categorised from stderr, falling back to code.
func (m *Manager) exec(ctx context.Context, timeout time.Duration, code vmerr.Code, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout(timeout))
	defer cancel()

	op := "vbox"
	if len(args) > 0 {
		op = "vbox." + strings.TrimLeft(args[0], "-")
	}
	m.logger().Debug("running VBoxManage", "args", strings.Join(args, " "))

	run := m.run
	if run == nil {
		run = execRun
	}
	stdout, stderr, err := run(ctx, m.Path, args...)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &vmerr.Error{
				Code:    vmerr.CodeTimeout,
				Op:      op,
				Message: fmt.Sprintf("VBoxManage %s timed out after %s", strings.Join(args, " "), m.timeout(timeout)),
				Err:     ctx.Err(),
			}
		}
		msg := fmt.Sprintf("VBoxManage %s failed", strings.Join(args, " "))
		if detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, firstErrorLine(detail))
		}
		return "", &vmerr.Error{Code: classify(detail, code), Op: op, Message: msg, Err: err}
	}
	return string(stdout), nil
}

// classify maps well-known VBoxManage diagnostics onto error categories.
func classify(stderr string, fallback vmerr.Code) vmerr.Code {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "could not find a registered machine"),
		strings.Contains(s, "could not find a machine"),
		strings.Contains(s, "vbox_e_object_not_found") && strings.Contains(s, "machine"):
		return vmerr.CodeVMNotFound
	case strings.Contains(s, "is not currently running"),
		strings.Contains(s, "is already locked"),
		strings.Contains(s, "invalid machine state"),
		strings.Contains(s, "vbox_e_invalid_vm_state"),
		strings.Contains(s, "machine is not running"):
		return vmerr.CodeInvalidState
	case strings.Contains(s, "could not find a snapshot"):
		return vmerr.CodeSnapshot
	}
	if fallback == "" {
		return vmerr.CodeCommandFailed
	}
	return fallback
}

// firstErrorLine picks the most useful line of VBoxManage diagnostics, which
// prefix the interesting part with "VBoxManage: error:".
func firstErrorLine(detail string) string {
	for _, line := range strings.Split(detail, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "VBoxManage: error:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return detail
}

func requireName(kind, value string) error {
	if strings.TrimSpace(value) == "" {
		return vmerr.Validation("%s is required", kind)
	}
	return nil
}
