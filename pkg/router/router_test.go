package router

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/store"
)

func newTestRouter(t *testing.T) (*Router, *store.Repositories) {
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
	hub := NewHub(3, 100)
	return NewRouter(repos, hub, 24*time.Hour), repos
}

func registerRouterAgent(t *testing.T, repos *store.Repositories, did string) {
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

func TestRouter_AcceptRejectsUnknownRecipient(t *testing.T) {
	r, _ := newTestRouter(t)
	env, _ := json.Marshal(map[string]string{"type": "request", "from": "did:key:zA", "to": "did:key:zMissing"})
	if _, err := r.Accept(context.Background(), env); err == nil {
		t.Fatal("expected recipient-not-found error")
	}
}

func TestRouter_AcceptThenPollDeliversOnce(t *testing.T) {
	r, repos := newTestRouter(t)
	to := "did:key:zRouterPollRecipient"
	from := "did:key:zRouterPollSender"
	registerRouterAgent(t, repos, to)

	env, _ := json.Marshal(map[string]string{"type": "request", "from": from, "to": to})
	if _, err := r.Accept(context.Background(), env); err != nil {
		t.Fatalf("accept: %v", err)
	}

	first, err := r.Poll(context.Background(), to, 10)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(first))
	}

	second, err := r.Poll(context.Background(), to, 10)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected empty second poll, got %d", len(second))
	}
}

func TestHub_EnforcesPerAgentLimit(t *testing.T) {
	h := NewHub(1, 100)
	if _, _, err := h.Subscribe("did:key:zLimited"); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if _, _, err := h.Subscribe("did:key:zLimited"); err == nil {
		t.Fatal("expected connection limit error on second subscribe")
	}
}
