package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaultsToUnsetFields(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "dataDir: /var/lib/batchbot\nadmins: [100, 200]\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/batchbot", cfg.DataDir)
	assert.Equal(t, []int64{100, 200}, cfg.Admins)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL, "unset cache ttl falls back to default")
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
dataDir: /tmp/bot
admins: [1]
cache:
  ttl: 5m
  sweepInterval: 1m
log:
  level: debug
telemetry:
  enabled: true
  endpoint: localhost:4318
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "  " }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"negative sweep interval", func(c *Config) { c.Cache.SweepInterval = -time.Minute }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := Default()
	cfg.Admins = []int64{7, 9}
	assert.True(t, cfg.IsAdmin(7))
	assert.False(t, cfg.IsAdmin(8))
}

func TestRuntimeCurrentIsSnapshot(t *testing.T) {
	cfg := Default()
	cfg.Admins = []int64{1}
	rt := NewRuntime(cfg)

	snap := rt.Current()
	snap.Admins = nil
	assert.True(t, rt.IsAdmin(1), "mutating a snapshot must not affect the runtime")
}

func TestWatchReloadsAdminList(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "dataDir: data\nadmins: [1]\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	rt := NewRuntime(cfg)

	stop, err := rt.Watch(path)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("dataDir: data\nadmins: [1, 2]\n"), 0o644))

	assert.Eventually(t, func() bool { return rt.IsAdmin(2) },
		3*time.Second, 25*time.Millisecond)
}

func TestWatchKeepsOldConfigOnInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "dataDir: data\nadmins: [1]\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	rt := NewRuntime(cfg)

	stop, err := rt.Watch(path)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("dataDir: \"\"\n"), 0o644))
	time.Sleep(500 * time.Millisecond)

	assert.True(t, rt.IsAdmin(1), "a rejected reload must leave the previous config live")
}
