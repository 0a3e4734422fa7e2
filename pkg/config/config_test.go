package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	clearAEEPEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TTLOfferToAccept != 300*time.Second {
		t.Errorf("expected default offer->accept TTL of 300s, got %s", cfg.TTLOfferToAccept)
	}
	if cfg.NonceTTL != 24*time.Hour {
		t.Errorf("expected default nonce TTL of 24h, got %s", cfg.NonceTTL)
	}
	if cfg.RelayerMode != "mock" {
		t.Errorf("expected default relayer mode mock, got %s", cfg.RelayerMode)
	}
}

func TestLoad_ReadsOverrides(t *testing.T) {
	clearAEEPEnv(t)
	os.Setenv("TTL_OFFER_TO_ACCEPT", "90s")
	os.Setenv("BATCH_MAX_SIZE", "10")
	defer os.Unsetenv("TTL_OFFER_TO_ACCEPT")
	defer os.Unsetenv("BATCH_MAX_SIZE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TTLOfferToAccept != 90*time.Second {
		t.Errorf("expected overridden TTL of 90s, got %s", cfg.TTLOfferToAccept)
	}
	if cfg.BatchMaxSize != 10 {
		t.Errorf("expected overridden batch max size 10, got %d", cfg.BatchMaxSize)
	}
}

func TestValidate_RequiresDatabaseURLAndKeyPath(t *testing.T) {
	cfg := &Config{RelayerMode: "mock", TLSEnabled: true}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing database URL and key path")
	}
}

func TestValidate_RequiresRelayerFieldsWhenEthereumMode(t *testing.T) {
	cfg := &Config{
		DatabaseURL:    "postgres://localhost/aeep?sslmode=require",
		Ed25519KeyPath: "/data/identity.key",
		RelayerMode:    "ethereum",
		TLSEnabled:     true,
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing ethereum relayer fields")
	}
}

func TestValidate_PassesWithMockRelayer(t *testing.T) {
	cfg := &Config{
		DatabaseURL:    "postgres://localhost/aeep?sslmode=require",
		Ed25519KeyPath: "/data/identity.key",
		RelayerMode:    "mock",
		TLSEnabled:     true,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no validation error, got %v", err)
	}
}

func clearAEEPEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TTL_OFFER_TO_ACCEPT", "BATCH_MAX_SIZE", "DATABASE_URL", "RELAYER_MODE",
	} {
		os.Unsetenv(key)
	}
}
