package config

import (
	"testing"
	"time"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("HUGINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("HUGINN_ENV", "development")
	t.Setenv("HUGINN_PRESENCE_WINDOW_SECONDS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.PresenceWindow != 2*time.Minute {
		t.Fatalf("unexpected presence window: %v", cfg.PresenceWindow)
	}
	if cfg.ResetHour != 21 {
		t.Fatalf("unexpected default reset hour: %d", cfg.ResetHour)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("HUGINN_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail without a DSN")
	}
}

func TestLoadRejectsBadResetHour(t *testing.T) {
	t.Setenv("HUGINN_DB_DSN", "file::memory:")
	t.Setenv("HUGINN_RESET_HOUR", "24")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail with an out-of-range reset hour")
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("HUGINN_DB_DSN", "file::memory:")
	t.Setenv("HUGINN_TIMEZONE", "Mars/Olympus_Mons")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail with an unknown timezone")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("HUGINN_DB_DSN", "file::memory:")
	t.Setenv("HUGINN_DB_BACKEND", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail with an unsupported backend")
	}
}
