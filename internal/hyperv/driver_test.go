package hyperv

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

type scripted struct {
	scripts []string
	outputs []string
	errs    []error
}

func (s *scripted) run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	if name != "powershell" || len(args) != 4 || args[2] != "-Command" {
		return nil, nil, errors.New("unexpected invocation")
	}
	idx := len(s.scripts)
	s.scripts = append(s.scripts, args[3])
	var out string
	if idx < len(s.outputs) {
		out = s.outputs[idx]
	}
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	if err != nil {
		return nil, []byte(out), err
	}
	return []byte(out), nil, nil
}

func newTestDriver(s *scripted) *Driver {
	d := NewDriver(time.Second, nil).WithRunner(s.run)
	d.PollInterval = time.Millisecond
	return d
}

func TestListNormalisesSingleObject(t *testing.T) {
	s := &scripted{outputs: []string{`{"Name":"dc01","State":"Running","Status":"Operating normally","Id":"abc","Uptime":42,"MemoryAssigned":2147483648,"ProcessorCount":2}`}}
	vms, err := newTestDriver(s).List(context.Background())
	require.NoError(t, err)
	require.Len(t, vms, 1)
	assert.Equal(t, "dc01", vms[0].Name)
	assert.Equal(t, int64(42), vms[0].UptimeSeconds)
	assert.True(t, strings.HasPrefix(s.scripts[0], "Get-VM | Select-Object"))
	assert.Contains(t, s.scripts[0], "ConvertTo-Json -Compress")
}

func TestListArrayAndEmpty(t *testing.T) {
	s := &scripted{outputs: []string{`[{"Name":"a","State":"Off"},{"Name":"b","State":"Running"}]`, ""}}
	d := newTestDriver(s)
	vms, err := d.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, vms, 2)

	vms, err = d.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vms)
}

func TestGetQuotesName(t *testing.T) {
	s := &scripted{outputs: []string{`{"Name":"o'brien","State":"Off"}`}}
	vm, err := newTestDriver(s).Get(context.Background(), "o'brien")
	require.NoError(t, err)
	assert.Equal(t, "Off", vm.State)
	assert.Contains(t, s.scripts[0], "Get-VM -Name 'o''brien' -ErrorAction Stop")
}

// literalEnd returns the byte offset just past the single-quoted literal
// that starts s, treating two quote characters in a row as one.
func literalEnd(s string) int {
	runes := []rune(s)
	offset := len(string(runes[0]))
	for i := 1; i < len(runes); i++ {
		offset += len(string(runes[i]))
		if !isSingleQuote(runes[i]) {
			continue
		}
		if i+1 < len(runes) && isSingleQuote(runes[i+1]) {
			i++
			offset += len(string(runes[i]))
			continue
		}
		return offset
	}
	return -1
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "dc01", want: "'dc01'"},
		{name: "ascii quote", in: "o'brien", want: "'o''brien'"},
		{name: "left quote", in: "a\u2018b", want: "'a\u2018\u2018b'"},
		{name: "right quote", in: "x\u2019; Remove-Item C:\\important -Recurse; \u2018", want: "'x\u2019\u2019; Remove-Item C:\\important -Recurse; \u2018\u2018'"},
		{name: "low quote", in: "\u201A", want: "'\u201A\u201A'"},
		{name: "reversed quote then ascii", in: "\u201B'", want: "'\u201B\u201B'''"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quote(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(got), literalEnd(got), "literal must close only at its final quote")
		})
	}
}

func TestStartQuotesTypographicQuotes(t *testing.T) {
	s := &scripted{outputs: []string{"", `{"Name":"vm","State":"Running"}`}}
	_, err := newTestDriver(s).Start(context.Background(), "vm\u2019; Stop-Computer; \u2019", false)
	require.NoError(t, err)
	require.Len(t, s.scripts, 2)
	assert.Equal(t, "Start-VM -Name 'vm\u2019\u2019; Stop-Computer; \u2019\u2019' -ErrorAction Stop", s.scripts[0])
}

func TestGetNotFound(t *testing.T) {
	s := &scripted{
		outputs: []string{"Get-VM : Hyper-V was unable to find a virtual machine with name \"ghost\"."},
		errs:    []error{errors.New("exit status 1")},
	}
	_, err := newTestDriver(s).Get(context.Background(), "ghost")
	assert.Equal(t, vmerr.CodeVMNotFound, vmerr.CodeOf(err))
}

func TestStopForceTurnsOffAndWaits(t *testing.T) {
	s := &scripted{outputs: []string{"", `{"Name":"a","State":"Stopping"}`, `{"Name":"a","State":"Off"}`}}
	vm, err := newTestDriver(s).Stop(context.Background(), "a", true, true)
	require.NoError(t, err)
	assert.Equal(t, "Off", vm.State)
	assert.Equal(t, "Stop-VM -Name 'a' -ErrorAction Stop -TurnOff", s.scripts[0])
	assert.Len(t, s.scripts, 3)
}

func TestStartWithoutWait(t *testing.T) {
	s := &scripted{outputs: []string{"", `{"Name":"a","State":"Starting"}`}}
	vm, err := newTestDriver(s).Start(context.Background(), "a", false)
	require.NoError(t, err)
	assert.Equal(t, "Starting", vm.State)
	assert.Equal(t, "Start-VM -Name 'a' -ErrorAction Stop", s.scripts[0])
}

func TestMissingPowerShellIsUnsupported(t *testing.T) {
	s := &scripted{errs: []error{&exec.Error{Name: "powershell", Err: exec.ErrNotFound}}}
	_, err := newTestDriver(s).List(context.Background())
	assert.Equal(t, vmerr.CodeUnsupported, vmerr.CodeOf(err))
}

func TestEmptyNameIsValidationError(t *testing.T) {
	d := newTestDriver(&scripted{})
	_, err := d.Start(context.Background(), "", false)
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(err))
}
