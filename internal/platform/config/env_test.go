package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port int `env:"CAPTIFY_TEST_PORT" envDefault:"123"`
}

type prefixedTestConfig struct {
	Addr     string        `env:"ADDR" envDefault:"localhost:1"`
	FreshTTL time.Duration `env:"FRESH_TTL" envDefault:"5m"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CAPTIFY_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvWithPrefixReadsScopedKeys(t *testing.T) {
	t.Setenv("CAPTIFY_UNIT_ADDR", "127.0.0.1:9999")
	t.Setenv("CAPTIFY_UNIT_FRESH_TTL", "30s")

	var cfg prefixedTestConfig
	if err := ParseEnvWithPrefix(&cfg, "CAPTIFY_UNIT_"); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, "127.0.0.1:9999")
	}
	if cfg.FreshTTL != 30*time.Second {
		t.Fatalf("fresh ttl = %s, want %s", cfg.FreshTTL, 30*time.Second)
	}
}

func TestParseEnvWithPrefixKeepsDefaults(t *testing.T) {
	var cfg prefixedTestConfig
	if err := ParseEnvWithPrefix(&cfg, "CAPTIFY_UNSET_"); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "localhost:1" {
		t.Fatalf("addr = %q, want default", cfg.Addr)
	}
	if cfg.FreshTTL != 5*time.Minute {
		t.Fatalf("fresh ttl = %s, want %s", cfg.FreshTTL, 5*time.Minute)
	}
}

func TestParseEnvWithPrefixErrorNamesPrefix(t *testing.T) {
	t.Setenv("CAPTIFY_BAD_FRESH_TTL", "soon")

	var cfg prefixedTestConfig
	err := ParseEnvWithPrefix(&cfg, "CAPTIFY_BAD_")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "CAPTIFY_BAD_") {
		t.Fatalf("expected prefix in error, got %v", err)
	}
}
