package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicyConfig_IsValid(t *testing.T) {
	cfg := DefaultPolicyConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default policy failed validation: %v", err)
	}
}

func TestLoadPolicyConfig_SubstitutesEnvVars(t *testing.T) {
	os.Setenv("AEEP_TEST_FEE_RATE", "0.05")
	defer os.Unsetenv("AEEP_TEST_FEE_RATE")

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
negotiation:
  fee_rate: ${AEEP_TEST_FEE_RATE}
  ttl_offer_to_accept: ${AEEP_TEST_OFFER_TTL:-5m}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test policy file: %v", err)
	}

	cfg, err := LoadPolicyConfig(path)
	if err != nil {
		t.Fatalf("LoadPolicyConfig() returned error: %v", err)
	}
	if cfg.Negotiation.FeeRate != 0.05 {
		t.Errorf("expected substituted fee rate 0.05, got %f", cfg.Negotiation.FeeRate)
	}
	if cfg.Negotiation.TTLOfferToAccept.Duration().String() != "5m0s" {
		t.Errorf("expected default-substituted TTL of 5m0s, got %s", cfg.Negotiation.TTLOfferToAccept.Duration())
	}
}

func TestPolicyConfig_Validate_RejectsBadWeights(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.Trust.WeightAdjusted = 0.9
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for trust weights not summing to 1.0")
	}
}

func TestPolicyConfig_Validate_RejectsInvertedBatchBounds(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.Batch.MinSize = 50
	cfg.Batch.MaxSize = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for min_size > max_size")
	}
}
