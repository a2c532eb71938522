package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "PG_DSN", "HTTP_ADDR", "AUTH_JWT_SECRET", "JWT_SECRET", "CURRENCY", "SCHOOL_NAME",
		"LOCK_TIMEOUT", "OUTBOX_DISPATCH_INTERVAL", "OUTBOX_DISPATCH_BATCH", "OUTBOX_MAX_ATTEMPTS", "OVERDUE_SWEEP_AT",
		"OVERDUE_SWEEP_BATCH", "LEDGER_CONFIG",
	} {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PG_DSN", "postgres://ledger@localhost/ledger")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("OUTBOX_DISPATCH_BATCH", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://ledger@localhost/ledger" || cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LockTimeout != 750*time.Millisecond || cfg.Outbox.DispatchBatch != 25 || cfg.Sweep.DailyAt != "00:05" {
		t.Fatalf("unexpected tuning: %+v", cfg)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("AUTH_JWT_SECRET", "secret")

	path := filepath.Join(t.TempDir(), "ledger.yaml")
	data := "school_name: Hillside Primary\ncurrency: KES\noutbox:\n  dispatch_interval: 5s\noverdue_sweep:\n  daily_at: \"01:30\"\n  batch: 50\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("LEDGER_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SchoolName != "Hillside Primary" || cfg.Currency != "KES" || cfg.DatabaseURL != "postgres://env" {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.Outbox.DispatchInterval != 5*time.Second || cfg.Outbox.DispatchBatch != 100 || cfg.Outbox.MaxAttempts != 5 {
		t.Fatalf("outbox config: %+v", cfg.Outbox)
	}
	if cfg.Sweep.DailyAt != "01:30" || cfg.Sweep.Batch != 50 {
		t.Fatalf("sweep config: %+v", cfg.Sweep)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("AUTH_JWT_SECRET")
	if err := os.WriteFile(".env", []byte("DATABASE_URL=postgres://dotenv\nAUTH_JWT_SECRET=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("AUTH_JWT_SECRET")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://dotenv" || cfg.JWTSecret != "from-file" {
		t.Fatalf("dotenv not applied: %+v", cfg)
	}
}

func TestValidateReportsMissingSettings(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL is required", "AUTH_JWT_SECRET is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}
