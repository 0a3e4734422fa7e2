package negotiation

import (
	"context"
	"encoding/hex"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/aeep-network/aeep/pkg/canonical"
	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/store"
	"github.com/aeep-network/aeep/pkg/trust"
)

type noopBatch struct{ enqueued []string }

func (n *noopBatch) Enqueue(ctx context.Context, hash string) error {
	n.enqueued = append(n.enqueued, hash)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *store.Repositories, *noopBatch) {
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
	batch := &noopBatch{}
	engine := NewEngine(repos, scorer, batch, config.DefaultPolicyConfig().Negotiation)
	return engine, repos, batch
}

func registerAgent(t *testing.T, repos *store.Repositories, did string) {
	t.Helper()
	now := time.Now().UTC()
	err := repos.Agents.Create(context.Background(), &store.Agent{
		ID: did, DID: did, Status: store.DIDStatusActive, Availability: store.AvailabilityOnline,
		LastSeenAt: now, TrustScore: 0.5, CreatedAt: now, UpdatedAt: now,
		DIDDocumentJSON: []byte(`{"id":"` + did + `","verification_method":"zTest"}`),
		AgentCardJSON:   []byte(`{"id":"` + did + `","did":"` + did + `"}`),
	})
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}
}

func TestEngine_HappyPath(t *testing.T) {
	engine, repos, batch := newTestEngine(t)
	ctx := context.Background()

	initiator := "did:key:zInitiatorHappy"
	provider := "did:key:zProviderHappy"
	registerAgent(t, repos, initiator)
	registerAgent(t, repos, provider)

	interaction, err := engine.Request(ctx, initiator, provider, []byte(`{"a":1}`), RequestPayload{
		TaskType: "financial-analysis", MaxBudget: 0.05, IdempotencyKey: "happy-path-key",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	interaction, err = engine.Offer(ctx, provider, &interaction.ID, OfferPayload{
		Price: 0.03, ProtocolFee: 0.00075, TotalCost: 0.03075,
	})
	if err != nil {
		t.Fatalf("offer failed: %v", err)
	}

	offerHashBytes, err := canonical.HashRaw(interaction.OfferJSON)
	if err != nil {
		t.Fatal(err)
	}
	offerHash := hex.EncodeToString(offerHashBytes[:])
	interaction, err = engine.Accept(ctx, initiator, &interaction.ID, AcceptPayload{OfferHash: offerHash})
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	interaction, err = engine.Result(ctx, provider, &interaction.ID, ResultPayload{ResultHash: "deadbeef"})
	if err != nil {
		t.Fatalf("result failed: %v", err)
	}

	interaction, err = engine.Verify(ctx, initiator, &interaction.ID, VerifyPayload{ResultHash: "deadbeef", Verified: true})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(batch.enqueued) != 1 {
		t.Errorf("expected one enqueued interaction hash, got %d", len(batch.enqueued))
	}

	interaction, err = engine.Payment(ctx, initiator, &interaction.ID, PaymentPayload{TxHash: "0xabc", Amount: 0.03075})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if interaction.Status != store.InteractionCompleted {
		t.Errorf("expected completed, got %s", interaction.Status)
	}
}

func TestEngine_OfferExceedingBudgetFails(t *testing.T) {
	engine, repos, _ := newTestEngine(t)
	ctx := context.Background()

	initiator := "did:key:zInitiatorBudget"
	provider := "did:key:zProviderBudget"
	registerAgent(t, repos, initiator)
	registerAgent(t, repos, provider)

	interaction, err := engine.Request(ctx, initiator, provider, []byte(`{"a":1}`), RequestPayload{
		TaskType: "financial-analysis", MaxBudget: 0.05, IdempotencyKey: "budget-violation-key",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	_, err = engine.Offer(ctx, provider, &interaction.ID, OfferPayload{
		Price: 0.097561, ProtocolFee: 0.002439, TotalCost: 0.10,
	})
	if err == nil {
		t.Fatal("expected budget exceeded error")
	}
}
