package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/sqlsession/internal/cli"
	"github.com/aretw0/sqlsession/internal/config"
	"github.com/aretw0/sqlsession/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sqlsession",
	Short: "sqlsession is a MySQL-backed session store with per-session locking",
	Long: `sqlsession stores expiring session records in a MySQL table and serializes
concurrent access to the same session with either row locks or advisory locks.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig reads --config and resolves the log level, --debug winning.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return cfg, logging.New(level), nil
}

// runtime loads the config and builds the store runtime. Callers close it.
func runtime(cmd *cobra.Command) (*cli.Runtime, config.Config, *slog.Logger, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	rt, err := cli.Build(cfg, logger)
	if err != nil {
		return nil, config.Config{}, nil, fmt.Errorf("error initializing store: %w", err)
	}
	return rt, cfg, logger, nil
}
