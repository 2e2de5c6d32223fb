package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spendbook/internal/config"
	applog "spendbook/internal/log"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DBPath:        filepath.Join(dir, "db", "expenses.db"),
		SettingsPath:  filepath.Join(dir, "settings.json"),
		BackupDir:     filepath.Join(dir, "backups"),
		LogLevel:      "warn",
		LogFormat:     "text",
		WatchDebounce: 250 * time.Millisecond,
		RecentMonths:  6,
	}
}

func TestOpen(t *testing.T) {
	cfg := testConfig(t)
	app, err := Open(context.Background(), cfg, applog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer app.Close()

	if app.Outcome.SchemaVersion != 2 || app.Outcome.Degraded {
		t.Errorf("Open() outcome = %+v", app.Outcome)
	}
	if got := app.Service.Settings().Currency; got != "USD" {
		t.Errorf("Open() currency = %v, want USD", got)
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestOpenRejectsBrokenSettings(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.SettingsPath, []byte(`{"currency":`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(context.Background(), cfg, applog.Nop())
	if err == nil || !strings.Contains(err.Error(), "load settings") {
		t.Fatalf("Open() error = %v, want settings error", err)
	}
}

func TestSetupLogger(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogFormat = "json"
	logger := SetupLogger(cfg)
	if logger.Component() != applog.ComponentCLI {
		t.Errorf("SetupLogger() component = %v, want %v", logger.Component(), applog.ComponentCLI)
	}
}
