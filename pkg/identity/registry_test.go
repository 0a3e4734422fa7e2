package identity

import (
	"context"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/store"
	"github.com/aeep-network/aeep/pkg/trust"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	connStr := os.Getenv("AEEP_TEST_DB")
	if connStr == "" {
		t.Skip("AEEP_TEST_DB not configured")
	}
	cfg := &config.Config{DatabaseURL: connStr, DatabaseMaxConns: 5, DatabaseMinConns: 1}
	client, err := store.NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	repos := store.NewRepositories(client)
	scorer := trust.NewScorer(config.DefaultPolicyConfig().Trust)
	return NewRegistry(client, repos, scorer, 300_000_000_000)
}

func TestRegistry_RegisterThenDuplicateFails(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	in := RegisterInput{
		DID:                "did:key:z6MkExampleDuplicateTest",
		DisplayName:        "Translator Bot",
		VerificationMethod: "z6MkExampleVerify",
		Capabilities:       []CapabilityInput{{Name: "translate"}},
	}

	if _, err := r.Register(ctx, in); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := r.Register(ctx, in); err == nil {
		t.Fatal("expected error registering duplicate DID")
	}
}

func TestRegistry_DiscoverFiltersByCapability(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	in := RegisterInput{
		DID:                "did:key:z6MkExampleDiscoverTest",
		VerificationMethod: "z6MkExampleVerify2",
		Capabilities:       []CapabilityInput{{Name: "financial-analysis"}},
	}
	if _, err := r.Register(ctx, in); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	results, err := r.Discover(ctx, store.DiscoveryFilter{Capability: "financial-analysis"})
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	found := false
	for _, c := range results {
		if c.DID == in.DID {
			found = true
		}
	}
	if !found {
		t.Error("expected discovery to return the newly registered agent")
	}
}

func TestRegistry_DiscoverIncludesPricingHint(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	in := RegisterInput{
		DID:                "did:key:z6MkExamplePricingHintTest",
		VerificationMethod: "z6MkExampleVerify3",
		PricingHint:        "$0.01/request",
		Capabilities:       []CapabilityInput{{Name: "translate"}},
	}
	if _, err := r.Register(ctx, in); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	results, err := r.Discover(ctx, store.DiscoveryFilter{Capability: "translate"})
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	for _, c := range results {
		if c.DID == in.DID {
			if c.PricingHint != in.PricingHint {
				t.Errorf("expected pricing hint %q, got %q", in.PricingHint, c.PricingHint)
			}
			return
		}
	}
	t.Error("expected discovery to return the newly registered agent")
}
