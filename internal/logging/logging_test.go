package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	assert.Equal(t, FormatText, ParseFormat("TINT"))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatAuto, ParseFormat("yaml"))

	assert.Equal(t, slog.LevelWarn, ParseLevel("warn", slog.LevelInfo))
	assert.Equal(t, slog.LevelDebug, ParseLevel("", slog.LevelDebug))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud", slog.LevelInfo))
}

func TestSetupJSONForNonTTY(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := Setup(Options{Writer: &buf})
	l.Debug("hidden")
	slog.Info("captured", "stage", "copy")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "captured", rec["msg"])
	assert.Equal(t, "copy", rec["stage"])
}

func TestSetupTextFormat(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(Options{Writer: &buf, Format: FormatText, Level: "debug"})
	slog.Debug("visible", "k", "v")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "k=v")
}
