package config

import (
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"QUILL_ADDR", "PORT", "QUILL_STORE", "QUILL_JWT_SECRET", "QUILL_TOKEN_TTL", "QUILL_RATE_LIMIT", "QUILL_LOG_LEVEL", "QUILL_BODY_LIMIT"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Addr != ":5000" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day token ttl, got %s", cfg.TokenTTL)
	}
	if cfg.RateLimit.Requests != 100 || cfg.RateLimit.Window != time.Hour {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.BodyLimit != 10240 {
		t.Fatalf("unexpected body limit %d", cfg.BodyLimit)
	}
	if cfg.Store != "sqlite" || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected store/level %q %v", cfg.Store, cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate outside production: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUILL_ADDR", "")
	t.Setenv("PORT", "9090")
	t.Setenv("QUILL_LOG_LEVEL", "debug")
	t.Setenv("QUILL_RATE_LIMIT", "not-a-number")
	t.Setenv("QUILL_STORE", "Postgres")
	cfg := Load()
	if cfg.Addr != ":9090" {
		t.Fatalf("expected PORT fallback, got %q", cfg.Addr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.RateLimit.Requests != 100 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.RateLimit.Requests)
	}
	if cfg.Store != "postgres" {
		t.Fatalf("expected lowercased store, got %q", cfg.Store)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Env: "development", Store: "sqlite", JWTSecret: DefaultJWTSecret, TokenTTL: time.Hour}
	if err := base.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prod := base
	prod.Env = "production"
	if err := prod.Validate(); err == nil {
		t.Fatal("expected default secret to be rejected in production")
	}

	pg := base
	pg.Store = "postgres"
	if err := pg.Validate(); err == nil {
		t.Fatal("expected missing DATABASE_URL error")
	}

	unknown := base
	unknown.Store = "mongo"
	if err := unknown.Validate(); err == nil {
		t.Fatal("expected unknown store error")
	}
}

func TestParseCIDRs(t *testing.T) {
	nets, err := ParseCIDRs(" 10.0.0.0/8, 192.0.2.1 ,::1,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(nets) != 3 {
		t.Fatalf("expected 3 networks, got %d", len(nets))
	}
	for _, ip := range []string{"10.1.2.3", "192.0.2.1", "::1"} {
		found := false
		for _, n := range nets {
			if n.Contains(net.ParseIP(ip)) {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %s to be covered", ip)
		}
	}
	if nets[1].Contains(net.ParseIP("192.0.2.2")) {
		t.Fatal("bare address must cover only itself")
	}

	if nets, err := ParseCIDRs(""); err != nil || len(nets) != 0 {
		t.Fatalf("empty list: %v %v", nets, err)
	}
	for _, bad := range []string{"10.0.0.0/33", "proxy.local"} {
		if _, err := ParseCIDRs(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}

	cfg := Config{Env: "development", Store: "sqlite", JWTSecret: DefaultJWTSecret, TokenTTL: time.Hour, TrustedProxies: "nope"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid trusted proxies to fail validation")
	}
}
