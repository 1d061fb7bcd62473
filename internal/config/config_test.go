package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGIN", "")
	t.Setenv("REPORT_TIMEZONE", "")
	t.Setenv("REPORT_CACHE_TTL_MINUTES", "")
	t.Setenv("PREFS_DEBOUNCE_MS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.ReportTimezone != "Asia/Jakarta" {
		t.Fatalf("expected default timezone Asia/Jakarta, got %q", cfg.ReportTimezone)
	}
	if cfg.ReportCacheTTLMinutes != 1440 {
		t.Fatalf("expected default cache ttl 1440, got %d", cfg.ReportCacheTTLMinutes)
	}
	if cfg.PrefsDebounceMS != 400 {
		t.Fatalf("expected default debounce 400ms, got %d", cfg.PrefsDebounceMS)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected address :8080, got %q", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REPORT_TIMEZONE", "Asia/Makassar")
	t.Setenv("REPORT_CACHE_TTL_MINUTES", "60")
	t.Setenv("PREFS_DEBOUNCE_MS", "250")
	t.Setenv("AUTH_SECRET", "  padded-secret  ")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected overridden port, got %q", cfg.Port)
	}
	if cfg.ReportTimezone != "Asia/Makassar" {
		t.Fatalf("expected overridden timezone, got %q", cfg.ReportTimezone)
	}
	if cfg.ReportCacheTTLMinutes != 60 || cfg.PrefsDebounceMS != 250 {
		t.Fatalf("expected overridden tunables, got ttl=%d debounce=%d", cfg.ReportCacheTTLMinutes, cfg.PrefsDebounceMS)
	}
	if cfg.AuthSecret != "padded-secret" {
		t.Fatalf("expected trimmed secret, got %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsGarbageNumbers(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_MINUTES", "banana")
	t.Setenv("PREFS_DEBOUNCE_MS", "-5")

	cfg := Load()
	if cfg.ReportCacheTTLMinutes != 1440 {
		t.Fatalf("expected fallback cache ttl, got %d", cfg.ReportCacheTTLMinutes)
	}
	if cfg.PrefsDebounceMS != 400 {
		t.Fatalf("expected fallback debounce, got %d", cfg.PrefsDebounceMS)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{ReportTimezone: "Mars/Olympus"}
	if loc := cfg.Location(); loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}

	cfg = Config{ReportTimezone: "Asia/Jakarta"}
	if loc := cfg.Location(); loc.String() != "Asia/Jakarta" {
		t.Fatalf("expected Asia/Jakarta, got %v", loc)
	}
}
