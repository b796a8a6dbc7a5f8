package winsandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

func mkdir(path string) error {
	return os.MkdirAll(path, 0o755)
}

type memStore struct {
	recs map[string]Record
}

func (s *memStore) SaveWindowsSandbox(_ context.Context, rec Record) error {
	if s.recs == nil {
		s.recs = map[string]Record{}
	}
	s.recs[rec.ID] = rec
	return nil
}

func (s *memStore) GetWindowsSandbox(_ context.Context, id string) (Record, error) {
	rec, ok := s.recs[id]
	if !ok {
		return Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (s *memStore) ListWindowsSandboxes(context.Context) ([]Record, error) {
	out := make([]Record, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *memStore) DeleteWindowsSandbox(_ context.Context, id string) error {
	delete(s.recs, id)
	return nil
}

type fakeLauncher struct {
	launched []string
	stopped  []int
	err      error
}

func (l *fakeLauncher) Launch(_ context.Context, path string) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	l.launched = append(l.launched, path)
	return 4242, nil
}

func (l *fakeLauncher) Stop(pid int) error {
	l.stopped = append(l.stopped, pid)
	return nil
}

func newTestManager(t *testing.T, launcher Launcher) (*Manager, *memStore) {
	t.Helper()
	store := &memStore{}
	return NewManager(t.TempDir(), launcher, store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestCreateWithoutLaunchWritesFile(t *testing.T) {
	m, store := newTestManager(t, &fakeLauncher{})
	rec, err := m.Create(context.Background(), SandboxConfig{Name: "dev box"}, false)
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, rec.Status)
	assert.Equal(t, 4096, rec.MemoryMB)
	assert.True(t, strings.HasPrefix(filepath.Base(rec.WSBPath), "dev-box-"))
	assert.Equal(t, ".wsb", filepath.Ext(rec.WSBPath))
	data, err := os.ReadFile(rec.WSBPath)
	require.NoError(t, err)
	_, err = ParseXML(data)
	require.NoError(t, err)
	assert.Contains(t, store.recs, rec.ID)
}

func TestCreateLaunchStopRemove(t *testing.T) {
	launcher := &fakeLauncher{}
	m, store := newTestManager(t, launcher)
	ctx := context.Background()

	rec, err := m.Create(ctx, SandboxConfig{Name: "run"}, true)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, 4242, rec.PID)
	assert.Equal(t, []string{rec.WSBPath}, launcher.launched)

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	stopped, err := m.Stop(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, stopped.Status)
	assert.Equal(t, []int{4242}, launcher.stopped)

	require.NoError(t, m.Remove(ctx, rec.ID))
	assert.NoFileExists(t, rec.WSBPath)
	assert.Empty(t, store.recs)
}

func TestCreateLaunchFailureRemovesFile(t *testing.T) {
	launcher := &fakeLauncher{err: vmerr.New(vmerr.CodeUnsupported, "winsandbox.launch", "no windows")}
	m, store := newTestManager(t, launcher)
	_, err := m.Create(context.Background(), SandboxConfig{Name: "x"}, true)
	assert.Equal(t, vmerr.CodeUnsupported, vmerr.CodeOf(err))

	entries, readErr := os.ReadDir(m.Dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
	assert.Empty(t, store.recs)
}

func TestCreateInvalidConfigWritesNothing(t *testing.T) {
	m, _ := newTestManager(t, &fakeLauncher{})
	_, err := m.Create(context.Background(), SandboxConfig{Name: "x", MappedFolders: []MappedFolder{{HostPath: "rel"}}}, false)
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(err))
	entries, _ := os.ReadDir(m.Dir)
	assert.Empty(t, entries)
}

func TestStopUnknownSandbox(t *testing.T) {
	m, _ := newTestManager(t, &fakeLauncher{})
	_, err := m.Stop(context.Background(), "nope")
	assert.Equal(t, vmerr.CodeSandbox, vmerr.CodeOf(err))
	assert.Contains(t, err.Error(), "not found")

	_, err = m.Stop(context.Background(), "")
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(err))
}

func TestExecLauncherOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("launches a real sandbox on windows")
	}
	_, err := ExecLauncher{}.Launch(context.Background(), "x.wsb")
	assert.Equal(t, vmerr.CodeUnsupported, vmerr.CodeOf(err))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFileSafe(t *testing.T) {
	assert.Equal(t, "a-b_c-1", fileSafe("a b_c/1"))
	assert.Equal(t, "sandbox", fileSafe(""))
}

type failingStore struct {
	memStore
}

func (s *failingStore) SaveWindowsSandbox(context.Context, Record) error {
	return errors.New("disk full")
}

func TestCreateStopsSandboxWhenRecordFails(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewManager(t.TempDir(), launcher, &failingStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := m.Create(context.Background(), SandboxConfig{Name: "lost"}, true)
	require.Error(t, err)
	assert.Equal(t, vmerr.CodeSandbox, vmerr.CodeOf(err))
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, launcher.launched, 1)
	assert.Equal(t, []int{4242}, launcher.stopped)

	entries, readErr := os.ReadDir(m.Dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

type stubbornLauncher struct {
	fakeLauncher
}

func (l *stubbornLauncher) Stop(int) error {
	return errors.New("access denied")
}

func TestCreateReportsSandboxThatCannotBeStopped(t *testing.T) {
	m := NewManager(t.TempDir(), &stubbornLauncher{}, &failingStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := m.Create(context.Background(), SandboxConfig{Name: "lost"}, true)
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.ErrorContains(t, err, "stop pid 4242")
}
