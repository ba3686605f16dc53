package main

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joestump/sqlitekit/internal/config"
	"github.com/joestump/sqlitekit/internal/db"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sqlitekit",
		Short:         "Versioned tables, batches and upserts on a single SQLite file",
		Version:       config.Version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path := viper.GetString("config"); path != "" {
				viper.SetConfigFile(path)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", path, err)
				}
			}
			return setupLogging(config.Load())
		},
	}

	f := rootCmd.PersistentFlags()
	f.String("config", "", "optional config file (yaml, toml or json)")
	f.String("db", config.DefaultDBPath, "path to the SQLite database file")
	f.String("passphrase", "", "open the password-protected variant of the database")
	f.Int("busy-timeout-ms", config.DefaultBusyTimeoutMS, "milliseconds to wait on a locked database")
	f.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	f.String("log-format", config.DefaultLogFormat, "log format (text or json)")

	// Viper keys use underscores (db_path) so they match the env var suffix
	// after stripping the SQLITEKIT_ prefix.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("config", "config")
	bindFlag("db_path", "db")
	bindFlag("passphrase", "passphrase")
	bindFlag("busy_timeout_ms", "busy-timeout-ms")
	bindFlag("log_level", "log-level")
	bindFlag("log_format", "log-format")

	viper.SetEnvPrefix("SQLITEKIT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(
		newInitCmd(),
		newVersionCmd(),
		newEnsureTableCmd(),
		newExecCmd(),
		newScalarCmd(),
		newQueryCmd(),
		newBatchCmd(),
		newUpsertCmd(),
		newServeCmd(),
		newMCPCmd(),
	)
	return rootCmd
}

func setupLogging(cfg config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("log format %q: must be text or json", cfg.LogFormat)
	}
	return nil
}

// openDB opens and initializes the configured database.
func openDB(cfg config.Config) (*db.DB, error) {
	opts := []db.Option{db.WithBusyTimeout(cfg.BusyTimeout())}
	if cfg.Passphrase != "" {
		opts = append(opts, db.WithPassphrase(cfg.Passphrase))
	}

	database, err := db.Open(cfg.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Initialize(); err != nil {
		database.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, nil
}

// withDB runs fn against the configured database and closes it afterwards.
func withDB(fn func(database *db.DB) error) error {
	database, err := openDB(config.Load())
	if err != nil {
		return err
	}
	defer database.Close() //nolint:errcheck
	return fn(database)
}
