package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range testCases {
		got, err := ParseLevel(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
		} else {
			assert.NoError(t, err, tc.in)
		}
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", "json", &buf)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept", "error", errors.New("boom"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
}

func TestNew_TextHasNoColorWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", "text", &buf)
	require.NoError(t, err)

	log.Info("session refreshed", "attempt", 1)

	out := buf.String()
	assert.Contains(t, out, "session refreshed")
	assert.Contains(t, out, "attempt=1")
	assert.NotContains(t, out, "\x1b[")
}

func TestNew_UnknownLevel(t *testing.T) {
	_, err := New("loud", "text", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestOrDefault(t *testing.T) {
	assert.Same(t, slog.Default(), OrDefault(nil))
	l := Discard()
	assert.Same(t, l, OrDefault(l))
}
