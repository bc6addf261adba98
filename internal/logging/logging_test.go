package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewJSONAndComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := L()
	defer Set(prev)
	Set(New("json", slog.LevelInfo, &buf))
	Component("hog").Info("hog_running", "can_id", 16)
	out := buf.String()
	require.Contains(t, out, `"component":"hog"`)
	require.Contains(t, out, `"msg":"hog_running"`)
}

func TestSetDiscard(t *testing.T) {
	prev := L()
	defer Set(prev)
	d := Discard()
	Set(d)
	require.Same(t, d, L())
	Set(nil)
	require.Same(t, d, L(), "nil keeps the current logger")
	require.NotPanics(t, func() { Component("hog").Error("tx_failed", "error", "boom") })
}
