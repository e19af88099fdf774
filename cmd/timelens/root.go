package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/discovery"
	"github.com/timelens/timelens/internal/engine"
	"github.com/timelens/timelens/internal/query"
	"github.com/timelens/timelens/internal/store"
	"github.com/timelens/timelens/internal/store/memory"
	"github.com/timelens/timelens/internal/store/redis"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "timelens",
	Short: "Timelens - activity aggregation over time-tracking event buckets",
	Long: `Timelens aggregates raw activity watcher events (window focus, browser,
editor, AFK, calendar) into enriched, categorized time reports. It reads
event buckets from a store backend, reconciles them against calendar
meetings, and groups the result by configurable keys.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to report command when no subcommand is provided
		return runReport(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/timelens/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.Open(), nil
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// buildEngine wires the full pipeline over an opened store.
func buildEngine(cfg *config.Config, s store.Store, logger zerolog.Logger) *engine.Engine {
	disc := discovery.New(s, cfg.Cache.TTL(), logger)
	fetcher := query.NewFetcher(s, disc, cfg.Canonical, logger)
	return engine.New(cfg, fetcher, disc, logger)
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// parseTimeFlag accepts RFC3339 or a plain date, interpreted in local
// time at midnight.
func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC3339 or YYYY-MM-DD)", s)
}
