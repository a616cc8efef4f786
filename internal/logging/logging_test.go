package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pdfchat/internal/config"
)

func TestNewConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Level: "info", JSON: true}, Options{Console: true, Stderr: &buf})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("document indexed", zap.String("document_id", "abc"))
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "document indexed", entry["message"])
	assert.Equal(t, "abc", entry["document_id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestNewFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfchat.log")
	log, err := New(config.LogConfig{Level: "debug", File: path}, Options{})
	require.NoError(t, err)

	log.Debug("session created", zap.String("session_id", "s1"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id":"s1"`)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, Options{Console: true})
	assert.Error(t, err)
}

func TestNewWithoutSinksIsNop(t *testing.T) {
	log, err := New(config.LogConfig{Level: "info"}, Options{})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zap.ErrorLevel))
}
