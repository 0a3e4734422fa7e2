package realtimesync

import (
	"context"
	"testing"
)

func TestNewClient_DisabledIsNoop(t *testing.T) {
	cfg := &ClientConfig{Enabled: false}
	c, err := NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.IsEnabled() {
		t.Fatal("expected disabled client")
	}
	if err := c.UpsertAgentSnapshot(context.Background(), "did:aeep:example", map[string]interface{}{"status": "active"}); err != nil {
		t.Fatalf("upsert on disabled client should be a no-op: %v", err)
	}
	if err := c.UpsertInteractionSnapshot(context.Background(), "00000000-0000-0000-0000-000000000000", map[string]interface{}{"status": "pending"}); err != nil {
		t.Fatalf("upsert on disabled client should be a no-op: %v", err)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health on disabled client should be a no-op: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close disabled client: %v", err)
	}
}

func TestNewClient_EnabledWithoutProjectIDFails(t *testing.T) {
	cfg := &ClientConfig{Enabled: true}
	if _, err := NewClient(context.Background(), cfg); err == nil {
		t.Fatal("expected error when enabled without a project ID")
	}
}

func TestDefaultConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("FIRESTORE_ENABLED", "true")
	t.Setenv("FIREBASE_PROJECT_ID", "aeep-dashboard")
	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Error("expected Enabled=true from FIRESTORE_ENABLED=true")
	}
	if cfg.ProjectID != "aeep-dashboard" {
		t.Errorf("unexpected project id: %s", cfg.ProjectID)
	}
}
