// Package cmd contains the command-line entry points for the wingman archive.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ai-wingman/wingman/db"
	"github.com/ai-wingman/wingman/internal/config"
	"github.com/ai-wingman/wingman/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point. It handles flag-less command routing and
// all initialization; main.go stays a minimal shim around it.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Println(versionString())
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			return runMigrate()
		case "demo":
			return runDemo()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	return runDemo()
}

func versionString() string {
	return fmt.Sprintf("wingman %s (commit %s, built %s)", AppVersion, GitCommit, BuildTime)
}

func printHelp() {
	fmt.Print(`wingman - Slack message archive with semantic search

Usage:
  wingman [command]

Commands:
  demo        Archive sample messages and run similarity searches (default)
  migrate     Apply pending database migrations and exit
  version     Print version information
  help        Show this help

Configuration is read from config.yaml, ~/.wingman/config.yaml, and
environment variables (DATABASE_URL, POSTGRES_*, LOG_LEVEL, ...).
`)
}

// setup loads configuration and builds the process logger shared by all
// commands.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})

	return cfg, logger, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runMigrate applies pending migrations against the configured database.
func runMigrate() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied", "database", cfg.PostgresDB)
	return nil
}
