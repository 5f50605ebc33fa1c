package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gcalpaper/internal/config"
)

func TestLoad_FirstRunWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RefreshCron != "*/30 * * * *" {
		t.Errorf("expected default refresh cron, got %q", cfg.RefreshCron)
	}
	if cfg.MaxEvents != 4 {
		t.Errorf("expected 4 max events, got %d", cfg.MaxEvents)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected perms 0600, got %o", perm)
	}
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := strings.Join([]string{
		"timezone: Europe/Berlin",
		"calendar_source: carrier-pigeon",
		"backoff:",
		"  min_seconds: 30",
		"  max_seconds: 10",
		"state:",
		"  driver: sqlite",
		"  path: /tmp/state.db",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
	if cfg.CalendarSource != config.SourceGoogle {
		t.Errorf("expected unknown source to fall back to google, got %q", cfg.CalendarSource)
	}
	if cfg.Backoff.MinSeconds != 30 || cfg.Backoff.MaxSeconds != 300 || cfg.Backoff.MaxCount != 12 {
		t.Errorf("unexpected backoff %+v", cfg.Backoff)
	}
	if cfg.State.Driver != config.StoreSQLite || cfg.State.Path != "/tmp/state.db" {
		t.Errorf("unexpected state %+v", cfg.State)
	}
	if cfg.Hardware.LowBatteryVolts != 3.5 {
		t.Errorf("expected low battery default 3.5, got %v", cfg.Hardware.LowBatteryVolts)
	}
}

func TestRefreshSchedule(t *testing.T) {
	cfg := config.DefaultConfig()
	sched, err := cfg.RefreshSchedule()
	if err != nil {
		t.Fatalf("RefreshSchedule() error = %v", err)
	}
	from := time.Date(2024, 6, 4, 10, 7, 0, 0, time.UTC)
	if got, want := sched.Next(from), time.Date(2024, 6, 4, 10, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}

	cfg.RefreshCron = "@every 45m"
	sched, err = cfg.RefreshSchedule()
	if err != nil {
		t.Fatalf("RefreshSchedule(@every) error = %v", err)
	}
	if got := sched.Next(from).Sub(from); got != 45*time.Minute {
		t.Errorf("@every 45m gave %v", got)
	}

	cfg.RefreshCron = "every now and then"
	if _, err := cfg.RefreshSchedule(); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing secrets to fail validation")
	}

	cfg.Secrets.GoogleClientID = "id"
	cfg.Secrets.GoogleClientSecret = "secret"
	cfg.Secrets.GoogleRefreshToken = "refresh"
	cfg.Secrets.AIOUsername = "user"
	cfg.Secrets.AIOKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg.CalendarSource = config.SourceICS
	if err := cfg.Validate(); err == nil {
		t.Error("expected ics source without feeds to fail validation")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.NormalizeEndOfDay = true
	cfg.ICS = []config.ICSConfig{{ID: "work", URL: "https://example.com/work.ics"}}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.NormalizeEndOfDay {
		t.Error("expected normalize_end_of_day to survive the round trip")
	}
	if len(got.ICS) != 1 || got.ICS[0].ID != "work" {
		t.Errorf("unexpected ics sources %+v", got.ICS)
	}
}
