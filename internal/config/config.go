// Package config provides configuration management for gatewatch.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for gatewatch.
type Config struct {
	// ── Listeners ────────────────────────────────────────────────────────────
	Host string `mapstructure:"host"`
	// ExternalPort (9001): inference gateway for outside clients
	ExternalPort int `mapstructure:"external_port"`
	// InternalPort (3001): agent channel, sends a welcome frame on connect
	InternalPort int `mapstructure:"internal_port"`
	// DashboardPort (3000): /metrics, /sysinfo and the web UI
	DashboardPort int `mapstructure:"dashboard_port"`

	WelcomeMessage  string `mapstructure:"welcome_message"`
	MaxMessageKB    int    `mapstructure:"max_message_kb"` // 0 = unlimited
	ShutdownTimeout int    `mapstructure:"shutdown_timeout_seconds"`

	// ── Logging ──────────────────────────────────────────────────────────────
	LogLevel  string `mapstructure:"log_level"`  // debug | info | warn | warning | error
	LogFormat string `mapstructure:"log_format"` // text | json
	LogDir    string `mapstructure:"log_dir"`
	// LogRotation writes combined.log and error.log under LogDir and reports
	// their sizes in /metrics.
	LogRotation   bool `mapstructure:"log_rotation"`
	LogMaxSizeMB  int  `mapstructure:"log_max_size_mb"`
	LogMaxAgeDays int  `mapstructure:"log_max_age_days"`
	LogMaxBackups int  `mapstructure:"log_max_backups"`
	LogCompress   bool `mapstructure:"log_compress"`

	// ── Dashboard ────────────────────────────────────────────────────────────
	RenderViews    bool `mapstructure:"render_views"`
	IncludeBattery bool `mapstructure:"include_battery"`

	// ── Session history ──────────────────────────────────────────────────────
	SessionStore bool   `mapstructure:"session_store"`
	DBPath       string `mapstructure:"db_path"`
	SessionQueue int    `mapstructure:"session_queue"`
}

// Load reads config from file (./config.yaml or ~/.gatewatch/config.yaml)
// and falls back to defaults. Environment variables with prefix GATEWATCH_
// override file values.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.gatewatch")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return finish(v)
}

// LoadFile reads config from an explicit path instead of the search paths.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return finish(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("external_port", 9001)
	v.SetDefault("internal_port", 3001)
	v.SetDefault("dashboard_port", 3000)
	v.SetDefault("welcome_message", "Welcome to internal agent server")
	v.SetDefault("max_message_kb", 1024)
	v.SetDefault("shutdown_timeout_seconds", 5)

	v.SetDefault("log_level", "debug")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_rotation", true)
	v.SetDefault("log_max_size_mb", 20)
	v.SetDefault("log_max_age_days", 14)
	v.SetDefault("log_max_backups", 0)
	v.SetDefault("log_compress", true)

	v.SetDefault("render_views", false)
	v.SetDefault("include_battery", true)

	v.SetDefault("session_store", true)
	v.SetDefault("db_path", "gatewatch.db")
	v.SetDefault("session_queue", 256)
}

func finish(v *viper.Viper) (*Config, error) {
	// --- Environment Variables ---
	v.SetEnvPrefix("GATEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ports and enumerated values.
func (c *Config) Validate() error {
	ports := map[string]int{
		"external_port":  c.ExternalPort,
		"internal_port":  c.InternalPort,
		"dashboard_port": c.DashboardPort,
	}
	seen := make(map[int]string, len(ports))
	for _, key := range []string{"external_port", "internal_port", "dashboard_port"} {
		p := ports[key]
		if p < 1 || p > 65535 {
			return fmt.Errorf("config: %s %d out of range", key, p)
		}
		if other, dup := seen[p]; dup {
			return fmt.Errorf("config: %s and %s both use port %d", other, key, p)
		}
		seen[p] = key
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}

	if c.MaxMessageKB < 0 {
		return fmt.Errorf("config: max_message_kb must not be negative")
	}
	if c.SessionStore && c.DBPath == "" {
		return fmt.Errorf("config: db_path is required when session_store is enabled")
	}
	return nil
}

// ParseLogLevel maps a log_level value to a slog.Level. It is the only
// place level names are interpreted.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", name)
	}
}

// ExternalAddr is the listen address of the external gateway.
func (c *Config) ExternalAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.ExternalPort) }

// InternalAddr is the listen address of the internal gateway.
func (c *Config) InternalAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.InternalPort) }

// DashboardAddr is the listen address of the HTTP dashboard.
func (c *Config) DashboardAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.DashboardPort) }

// MaxMessageBytes converts MaxMessageKB.
func (c *Config) MaxMessageBytes() int64 { return int64(c.MaxMessageKB) * 1024 }

// ShutdownGrace is how long shutdown waits for connections to drain.
func (c *Config) ShutdownGrace() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ShutdownTimeout) * time.Second
}
