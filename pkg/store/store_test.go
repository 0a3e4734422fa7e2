// Integration tests for the store package. They run against a real
// Postgres database when AEEP_TEST_DB is set, and are skipped otherwise.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

var testClient *Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("AEEP_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testClient = &Client{}
	testClient.db = db

	code := m.Run()
	db.Close()
	os.Exit(code)
}

func newTestAgent(did string) *Agent {
	now := time.Now().UTC()
	doc, _ := json.Marshal(DIDDocument{ID: did})
	card, _ := json.Marshal(AgentCard{DID: did, TrustScore: 0.5})
	return &Agent{
		ID:              uuid.NewString(),
		DID:             did,
		Status:          DIDStatusActive,
		Availability:    AvailabilityUnknown,
		LastSeenAt:      now,
		TrustScore:      0.5,
		DIDDocumentJSON: doc,
		AgentCardJSON:   card,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestAgentRepository_CreateAndGet(t *testing.T) {
	if testClient == nil {
		t.Skip("AEEP_TEST_DB not configured")
	}
	ctx := context.Background()
	repo := NewAgentRepository(testClient)

	a := newTestAgent("did:key:" + uuid.NewString())
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got, err := repo.GetByDID(ctx, a.DID)
	if err != nil {
		t.Fatalf("GetByDID() failed: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("expected id %s, got %s", a.ID, got.ID)
	}

	if err := repo.Create(ctx, a); err != ErrAgentExists {
		t.Errorf("expected ErrAgentExists on duplicate DID, got %v", err)
	}
}

func TestInteractionRepository_TransitionIsAtomic(t *testing.T) {
	if testClient == nil {
		t.Skip("AEEP_TEST_DB not configured")
	}
	ctx := context.Background()
	repo := NewInteractionRepository(testClient)

	now := time.Now().UTC()
	i := &Interaction{
		ID:              uuid.New(),
		InteractionHash: uuid.NewString(),
		InitiatorDID:    "did:key:initiator",
		ProviderDID:     "did:key:provider",
		Capability:      "translate",
		Status:          InteractionPending,
		RequestJSON:     json.RawMessage(`{}`),
		IdempotencyKey:  uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repo.Create(ctx, i); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := repo.TransitionToOffered(ctx, i.ID, json.RawMessage(`{"price":1}`), now); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	if err := repo.TransitionToOffered(ctx, i.ID, json.RawMessage(`{"price":1}`), now); err != ErrNoTransition {
		t.Errorf("expected ErrNoTransition on repeated transition, got %v", err)
	}
}

func TestNonceRepository_RejectsReplay(t *testing.T) {
	if testClient == nil {
		t.Skip("AEEP_TEST_DB not configured")
	}
	ctx := context.Background()
	repo := NewNonceRepository(testClient)

	now := time.Now().UTC()
	n := NonceRecord{Nonce: uuid.NewString(), DID: "did:key:a", CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour)}
	if err := repo.Insert(ctx, n); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := repo.Insert(ctx, n); err != ErrNonceReused {
		t.Errorf("expected ErrNonceReused, got %v", err)
	}
}
