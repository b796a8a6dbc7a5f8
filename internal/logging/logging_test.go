package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLILoggerHonoursLevelVar(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(slog.LevelWarn)

	logger := NewCLI(&buf, &level).With("component", "test")
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	level.Set(slog.LevelDebug)
	logger.Debug("visible", "vm", "alpha")
	out := buf.String()
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "vm=alpha")
	assert.Contains(t, out, "component=test")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	NewJSON(&buf, slog.LevelInfo).Info("started", "tool", "vm_management")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "started", record["msg"])
	assert.Equal(t, "vm_management", record["tool"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":         slog.LevelInfo,
		"DEBUG":    slog.LevelDebug,
		"warning":  slog.LevelWarn,
		"critical": slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("json")
	require.NoError(t, err)
	assert.Equal(t, ModeJSON, mode)

	_, err = ParseMode("xml")
	assert.Error(t, err)
}

func TestEnsureFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), Ensure(nil))
}
