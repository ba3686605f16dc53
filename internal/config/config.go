package config

import (
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Defaults shared by the CLI flags and Load.
const (
	DefaultDBPath        = "./data/sqlitekit.db"
	DefaultBusyTimeoutMS = 5000
	DefaultListenAddr    = ":8080"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// Config holds all runtime configuration for sqlitekit.
type Config struct {
	DBPath        string
	Passphrase    string
	BusyTimeoutMS int
	ListenAddr    string
	LogLevel      string
	LogFormat     string
	MCPReadOnly   bool
}

// Load reads configuration from viper, which merges flag values, env vars,
// an optional config file and defaults (set up by the cobra command in
// cmd/sqlitekit).
func Load() Config {
	cfg := Config{
		DBPath:        viper.GetString("db_path"),
		Passphrase:    viper.GetString("passphrase"),
		BusyTimeoutMS: viper.GetInt("busy_timeout_ms"),
		ListenAddr:    viper.GetString("listen_addr"),
		LogLevel:      viper.GetString("log_level"),
		LogFormat:     viper.GetString("log_format"),
		MCPReadOnly:   viper.GetBool("mcp_read_only"),
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	if cfg.BusyTimeoutMS <= 0 {
		cfg.BusyTimeoutMS = DefaultBusyTimeoutMS
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	return cfg
}

// BusyTimeout returns BusyTimeoutMS as a duration.
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}
