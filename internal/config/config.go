package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultJWTSecret is only acceptable outside production.
const DefaultJWTSecret = "dev-jwt-secret"

type Config struct {
	Env          string
	Addr         string
	Store        string
	DBPath       string
	DatabaseURL  string
	RedisAddr    string
	JWTSecret    string
	TokenTTL     time.Duration
	CORSOrigins  string
	BodyLimit    int64
	LogLevel     slog.Level
	OTLPEndpoint string
	RateLimit    RateLimit

	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For
	// and X-Real-IP headers are believed. Empty means none.
	TrustedProxies string
}

// RateLimit bounds requests per client IP on the /api surface.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

func Load() Config {
	addr := envString("QUILL_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":5000"
		}
	}
	cfg := Config{
		Env:          envString("QUILL_ENV", "development"),
		Addr:         addr,
		Store:        strings.ToLower(envString("QUILL_STORE", "sqlite")),
		DBPath:       envString("QUILL_DB", "quill.db"),
		DatabaseURL:  envString("DATABASE_URL", ""),
		RedisAddr:    envString("REDIS_ADDR", ""),
		JWTSecret:    envString("QUILL_JWT_SECRET", DefaultJWTSecret),
		TokenTTL:     envDuration("QUILL_TOKEN_TTL", 7*24*time.Hour),
		CORSOrigins:  envString("QUILL_CORS_ORIGINS", "*"),
		BodyLimit:    int64(envInt("QUILL_BODY_LIMIT", 10<<10)),
		LogLevel:     envLevel("QUILL_LOG_LEVEL", slog.LevelInfo),
		OTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		RateLimit: RateLimit{
			Requests: envInt("QUILL_RATE_LIMIT", 100),
			Window:   envDuration("QUILL_RATE_WINDOW", time.Hour),
		},
		TrustedProxies: envString("QUILL_TRUSTED_PROXIES", ""),
	}

	return cfg
}

// Validate rejects configurations that must not reach production.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("QUILL_JWT_SECRET must not be empty")
	}
	if c.Env == "production" && c.JWTSecret == DefaultJWTSecret {
		return errors.New("QUILL_JWT_SECRET must be set in production")
	}
	if c.TokenTTL <= 0 {
		return errors.New("QUILL_TOKEN_TTL must be positive")
	}
	if _, err := ParseCIDRs(c.TrustedProxies); err != nil {
		return fmt.Errorf("QUILL_TRUSTED_PROXIES: %w", err)
	}
	switch c.Store {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when QUILL_STORE=postgres")
		}
	default:
		return errors.New("QUILL_STORE must be sqlite or postgres")
	}
	return nil
}

// ParseCIDRs parses a comma separated list of CIDRs. A bare IP is taken as a
// single-address network.
func ParseCIDRs(list string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			ip := net.ParseIP(item)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", item)
			}
			bits := 128
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(item)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr %q", item)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envLevel(key string, def slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			return level
		}
	}
	return def
}
