package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Stderr(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "json"

	log, err := newWithStderr(cfg, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("connected")
	_ = log.Sync()

	assert.Contains(t, buf.String(), `"msg":"connected"`)
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_File(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.Level = "debug"
	cfg.File.Path = filepath.Join(dir, "logs", "armpanel.log")

	log, err := New(cfg)
	require.NoError(t, err)
	log.Debug("poll started")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(cfg.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll started")
	assert.Contains(t, string(data), "DEBUG")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Output = "printer"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Format = "xml"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestConfig_ForTUI(t *testing.T) {
	assert.Equal(t, "file", Config{Output: "stderr"}.ForTUI().Output)
	assert.Equal(t, "file", Config{Output: "both"}.ForTUI().Output)
	assert.Equal(t, "none", Config{Output: "none"}.ForTUI().Output)
}
