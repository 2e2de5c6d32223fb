// Package cli provides common CLI initialization utilities.
// This package consolidates the bootstrap every spendbook subcommand shares:
// environment, configuration, logging and the wiring of the expense service.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendbook/internal/config"
	applog "spendbook/internal/log"
	"spendbook/internal/services"
	"spendbook/internal/settings"
	"spendbook/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as the file is optional.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the logger described by cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config) *applog.Logger {
	logger := cfg.Logger().WithComponent(applog.ComponentCLI)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// App bundles what a subcommand needs.
type App struct {
	Config   *config.Config
	Log      *applog.Logger
	Settings *settings.FileStore
	Service  *services.ExpenseService
	Outcome  storage.MigrationOutcome
	Store    *storage.Store
}

// Open loads settings and initializes the database. The caller owns Close.
func Open(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	prefs := settings.NewFileStore(cfg.SettingsPath, logger)
	if _, err := prefs.Load(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	store := storage.NewStore(cfg.DBPath, storage.WithLogger(logger))
	svc := services.NewExpenseService(store, prefs,
		services.WithLogger(logger),
		services.WithBackupDir(cfg.BackupDir))

	start := time.Now()
	outcome, err := svc.InitializeDatabase(ctx)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	logger.DebugContext(ctx, "Application ready",
		applog.FieldOperation, applog.OpStartup,
		applog.FieldDBPath, cfg.DBPath,
		applog.FieldDuration, time.Since(start).Milliseconds())

	return &App{Config: cfg, Log: logger, Settings: prefs, Service: svc, Outcome: outcome, Store: store}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Service.Close()
}

// GracefulShutdown sets up signal handling for graceful shutdown. The
// returned context is cancelled on SIGINT, SIGTERM or when parent is done;
// done closes once cleanup has run or timeout has passed.
func GracefulShutdown(parent context.Context, logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-parent.Done():
		}

		cleanupDone := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(cleanupDone)
		}()

		cancel()

		select {
		case <-cleanupDone:
			logger.Debug("Shutdown complete", applog.FieldOperation, applog.OpShutdown)
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}
