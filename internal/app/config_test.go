package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "LOG_MODE", "SMTP_HOST", "SMTP_PASS", "SMTP_PORT", "SMTP_STARTTLS", "SESSION_STORE", "CORS_ORIGINS", "REPORT_RECIPIENT"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()

	if cfg.LogMode != "development" || cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SMTPHost != "" || cfg.SMTPPass != "" || cfg.ReportRecipient != "" {
		t.Fatalf("credentials must not have defaults")
	}
	if cfg.SMTPPort != 465 || cfg.SMTPStartTLS {
		t.Fatalf("expected implicit TLS on 465, got port=%d starttls=%v", cfg.SMTPPort, cfg.SMTPStartTLS)
	}
	if cfg.SessionStore != "memory" || cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("unexpected session defaults %s %v", cfg.SessionStore, cfg.SessionTTL)
	}
	if cfg.CORSOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("SMTP_STARTTLS", "yes")
	t.Setenv("SMTP_TIMEOUT_SECONDS", "5")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "-3")

	cfg := LoadConfig()
	if cfg.LogMode != "production" {
		t.Fatalf("log mode should follow APP_ENV, got %s", cfg.LogMode)
	}
	if cfg.SMTPPort != 587 || !cfg.SMTPStartTLS || cfg.SMTPTimeout != 5*time.Second {
		t.Fatalf("unexpected smtp config %+v", cfg)
	}
	if cfg.SessionStore != "redis" {
		t.Fatalf("expected redis store, got %s", cfg.SessionStore)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("invalid rate limit should fall back, got %d", cfg.RateLimitPerMinute)
	}
}
