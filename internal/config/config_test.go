package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.PMSRequestsPerSecond != 2 {
		t.Fatalf("expected default PMS rate 2, got %v", cfg.PMSRequestsPerSecond)
	}
	if cfg.WebhookDeadline != 25*time.Second {
		t.Fatalf("expected default webhook deadline 25s, got %v", cfg.WebhookDeadline)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PMS_REQUESTS_PER_SECOND", "5.5")
	t.Setenv("FAN_OUT_CONCURRENCY", "16")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected overridden port 9090, got %q", cfg.Port)
	}
	if cfg.PMSRequestsPerSecond != 5.5 {
		t.Fatalf("expected overridden PMS rate 5.5, got %v", cfg.PMSRequestsPerSecond)
	}
	if cfg.FanOutConcurrency != 16 {
		t.Fatalf("expected overridden fan-out concurrency 16, got %d", cfg.FanOutConcurrency)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 parsed CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}
