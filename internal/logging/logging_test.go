package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSONToFile(t *testing.T) {
	var stderr bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "enhancer.log")

	logger, cleanup, err := setup(&stderr, file, slog.LevelInfo, "json")
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("class enhanced", "class", "com.example.Order")
	cleanup()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, stderr.String(), string(data))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "class enhanced", rec["msg"])
	assert.Equal(t, "com.example.Order", rec["class"])
}

func TestSetupTextStderrOnly(t *testing.T) {
	var stderr bytes.Buffer
	logger, cleanup, err := setup(&stderr, "", slog.LevelDebug, "text")
	require.NoError(t, err)
	defer cleanup()
	logger.Debug("setter instrumented", "method", "setStatus")
	assert.Contains(t, stderr.String(), "method=setStatus")
}

func TestSetupUnknownFormat(t *testing.T) {
	_, _, err := setup(&bytes.Buffer{}, "", slog.LevelInfo, "xml")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
