package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptmgr.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8099", cfg.Listen)
	assert.Equal(t, "/dawson", cfg.BasePath)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.True(t, cfg.AutoStart)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:9000"
base_path = "/scripts"
store_path = "/var/lib/scriptmgr/scripts.json"
auto_start = false

[log]
level = "debug"
dir = "/var/log/scriptmgr"
max_size_mb = 20

[monitor]
interval = "2s"
restart_backoff = "500ms"

[history]
enabled = true
path = "/var/lib/scriptmgr/history.db"

[metrics]
enabled = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "/scripts", cfg.BasePath)
	assert.False(t, cfg.AutoStart)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20, cfg.Log.MaxSizeMB)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.RestartBackoff)
	assert.True(t, cfg.History.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `listen = ":7070"`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "/dawson", cfg.BasePath)
	assert.Equal(t, "scripts.json", cfg.StorePath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `listen = ""`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "listen")

	path = writeConfig(t, `store_path = ""`)
	_, err = Load(path)
	assert.ErrorContains(t, err, "store_path")

	path = writeConfig(t, "[history]\nenabled = true\npath = \"\"\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "history.path")
}
