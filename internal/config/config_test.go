package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CALENDAR_HTTP_TIMEOUT", "")
	t.Setenv("VOICE_DEFAULT_TIMEZONE", "")
	t.Setenv("VOICE_ASSUME_LOCAL_TIME", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.CalendarHTTPTimeout != 10*time.Second {
		t.Fatalf("expected 10s calendar timeout, got %s", cfg.CalendarHTTPTimeout)
	}
	if !cfg.VoiceAssumeLocalTime {
		t.Fatalf("expected voice local-time assumption enabled by default")
	}
	if cfg.VoiceDefaultTimezone != "Australia/Sydney" {
		t.Fatalf("expected Sydney default timezone, got %s", cfg.VoiceDefaultTimezone)
	}
	if cfg.OutlookTenant != "common" {
		t.Fatalf("expected common outlook tenant, got %s", cfg.OutlookTenant)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("CALENDAR_HTTP_TIMEOUT", "3s")
	t.Setenv("VOICE_ASSUME_LOCAL_TIME", "false")
	t.Setenv("SYNC_INTERVAL", "5m")
	t.Setenv("WEBHOOK_RATE_LIMIT_RPS", "2.5")
	t.Setenv("VOICE_WEBHOOK_SECRET", "vapi-shared")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	cfg := Load()
	if cfg.VoiceWebhookSecret != "vapi-shared" {
		t.Fatalf("unexpected webhook secret %q", cfg.VoiceWebhookSecret)
	}
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("unexpected port/env: %s/%s", cfg.Port, cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("unexpected database url %s", cfg.DatabaseURL)
	}
	if cfg.FrontendURL != "https://app.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.FrontendURL)
	}
	if cfg.CalendarHTTPTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.CalendarHTTPTimeout)
	}
	if cfg.VoiceAssumeLocalTime {
		t.Fatalf("expected local-time assumption disabled")
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Fatalf("expected 5m sync interval, got %s", cfg.SyncInterval)
	}
	if cfg.WebhookRateLimitRPS != 2.5 {
		t.Fatalf("expected 2.5 rps, got %v", cfg.WebhookRateLimitRPS)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CALENDAR_HTTP_TIMEOUT", "soon")
	t.Setenv("WEBHOOK_RATE_LIMIT_BURST", "lots")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.CalendarHTTPTimeout != 10*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.CalendarHTTPTimeout)
	}
	if cfg.WebhookRateBurst != 40 {
		t.Fatalf("expected fallback burst, got %d", cfg.WebhookRateBurst)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls fallback false")
	}
}
