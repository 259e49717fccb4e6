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

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.ExternalPort)
	assert.Equal(t, 3001, cfg.InternalPort)
	assert.Equal(t, 3000, cfg.DashboardPort)
	assert.Equal(t, "Welcome to internal agent server", cfg.WelcomeMessage)
	assert.True(t, cfg.LogRotation)
	assert.False(t, cfg.RenderViews)
	assert.True(t, cfg.IncludeBattery)
	assert.Equal(t, "0.0.0.0:9001", cfg.ExternalAddr())
	assert.Equal(t, int64(1024*1024), cfg.MaxMessageBytes())
	assert.Equal(t, 5*time.Second, cfg.ShutdownGrace())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
external_port: 19001
log_rotation: false
render_views: true
log_format: json
`)
	t.Setenv("GATEWATCH_INTERNAL_PORT", "13001")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 19001, cfg.ExternalPort)
	assert.Equal(t, 13001, cfg.InternalPort)
	assert.False(t, cfg.LogRotation)
	assert.True(t, cfg.RenderViews)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "dashboard_port: 9001\n")
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both use port 9001")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ExternalPort: 9001, InternalPort: 3001, DashboardPort: 3000,
			LogLevel: "info", LogFormat: "text",
			SessionStore: true, DBPath: "x.db",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.ExternalPort = 0 }, "external_port 0 out of range"},
		{"port too large", func(c *Config) { c.InternalPort = 70000 }, "internal_port 70000 out of range"},
		{"duplicate ports", func(c *Config) { c.InternalPort = 9001 }, "both use port 9001"},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"empty level", func(c *Config) { c.LogLevel = "" }, "unknown log_level"},
		{"warning alias", func(c *Config) { c.LogLevel = "WARNING" }, ""},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "unknown log_format"},
		{"negative message size", func(c *Config) { c.MaxMessageKB = -1 }, "max_message_kb"},
		{"store without path", func(c *Config) { c.DBPath = "" }, "db_path is required"},
		{"store disabled without path", func(c *Config) { c.SessionStore = false; c.DBPath = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
	} {
		got, err := ParseLogLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLogLevel("verbose")
	require.Error(t, err)
}
