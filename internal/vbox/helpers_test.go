package vbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

type vboxResponse struct {
	expected []string
	stdout   string
	stderr   string
	fail     bool
}

// vboxSequence replays canned VBoxManage responses and fails the test on
// any call that deviates from the expected argv order.
type vboxSequence struct {
	t         *testing.T
	responses []vboxResponse
	idx       int
}

func (s *vboxSequence) run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	s.t.Helper()
	if s.idx >= len(s.responses) {
		s.t.Fatalf("unexpected VBoxManage call: %s", strings.Join(args, " "))
	}
	resp := s.responses[s.idx]
	s.idx++
	if strings.Join(args, " ") != strings.Join(resp.expected, " ") {
		s.t.Fatalf("call %d: expected %q, got %q", s.idx, strings.Join(resp.expected, " "), strings.Join(args, " "))
	}
	var err error
	if resp.fail {
		err = errors.New("exit status 1")
	}
	return []byte(resp.stdout), []byte(resp.stderr), err
}

func (s *vboxSequence) assertDone() {
	s.t.Helper()
	if s.idx != len(s.responses) {
		s.t.Fatalf("expected %d VBoxManage calls, got %d", len(s.responses), s.idx)
	}
}

func newTestManager(t *testing.T, responses ...vboxResponse) (*Manager, *vboxSequence) {
	t.Helper()
	seq := &vboxSequence{t: t, responses: responses}
	m := NewManager("VBoxManage", DefaultTimeouts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.run = seq.run
	m.pollInterval = time.Millisecond
	return m, seq
}

func call(args ...string) vboxResponse {
	return vboxResponse{expected: args}
}

func (r vboxResponse) out(stdout string) vboxResponse {
	r.stdout = stdout
	return r
}

func (r vboxResponse) failing(stderr string) vboxResponse {
	r.stderr = stderr
	r.fail = true
	return r
}

func writeEmpty(path string) error {
	return os.WriteFile(path, nil, 0o644)
}
