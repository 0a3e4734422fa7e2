// Integration tests for the HTTP surface. They run against a real
// Postgres database when AEEP_TEST_DB is set, and are skipped otherwise.

package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/aeep-network/aeep/pkg/canonical"
	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/cryptoutil"
	"github.com/aeep-network/aeep/pkg/envelope"
	"github.com/aeep-network/aeep/pkg/identity"
	"github.com/aeep-network/aeep/pkg/negotiation"
	"github.com/aeep-network/aeep/pkg/relayer"
	"github.com/aeep-network/aeep/pkg/router"
	"github.com/aeep-network/aeep/pkg/store"
	"github.com/aeep-network/aeep/pkg/trust"
)

func newTestServer(t *testing.T) *Server {
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

	policy := config.DefaultPolicyConfig()
	scorer := trust.NewScorer(policy.Trust)
	rel := relayer.NewMockRelayer()
	engine := negotiation.NewEngine(repos, scorer, noopBatch{}, policy.Negotiation)
	registry := identity.NewRegistry(client, repos, scorer, policy.Discovery.HeartbeatStale.Duration())
	pipeline := envelope.NewAuthPipeline(repos, policy.Negotiation.ClockSkew.Duration(), policy.Negotiation.NonceTTL.Duration())
	hub := router.NewHub(policy.Security.StreamMaxPerAgent, policy.Security.StreamMaxGlobal)
	msgRouter := router.NewRouter(repos, hub, time.Hour)

	return New(Deps{
		Repos:     repos,
		Registry:  registry,
		Pipeline:  pipeline,
		Engine:    engine,
		Router:    msgRouter,
		Relayer:   rel,
		Discovery: policy.Discovery,
		ServerDID: "did:key:zTestServer",
	})
}

type noopBatch struct{}

func (noopBatch) Enqueue(ctx context.Context, hash string) error { return nil }

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if resp.RelayerBalance == "" {
		t.Errorf("expected a relayer balance from the mock relayer")
	}
}

func TestHandleServerDID(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/.well-known/did.json", nil)
	w := httptest.NewRecorder()

	s.handleServerDID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var doc store.DIDDocument
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode did document: %v", err)
	}
	if doc.ID != "did:key:zTestServer" {
		t.Errorf("expected server DID, got %q", doc.ID)
	}
}

func TestHandleRegisterAndDiscover(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler(nil)

	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	verifyMethod, err := cryptoutil.EncodeEd25519PublicKey(kp.SigningPublic)
	if err != nil {
		t.Fatal(err)
	}
	did := "did:key:" + verifyMethod

	env := &envelope.Envelope{
		Version: 1,
		ID:      "01HZXAMPLE0000000000000002",
		Type:    "x811/register",
		From:    did,
		To:      did,
		Created: time.Now().UTC(),
		Nonce:   "register-test-nonce",
		Payload: json.RawMessage(`{"display_name":"test agent","verification_method":"` + verifyMethod + `"}`),
	}
	signEnvelope(t, env, kp)

	body := struct {
		Envelope    envelope.Envelope `json:"envelope"`
		DIDDocument json.RawMessage   `json:"did_document"`
		PublicKey   string            `json:"public_key"`
	}{Envelope: *env, PublicKey: verifyMethod}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	discoverReq := httptest.NewRequest(http.MethodGet, "/api/v1/agents?limit=5", nil)
	discoverW := httptest.NewRecorder()
	handler.ServeHTTP(discoverW, discoverReq)
	if discoverW.Code != http.StatusOK {
		t.Fatalf("expected 200 from discovery, got %d: %s", discoverW.Code, discoverW.Body.String())
	}
}

// signEnvelope reproduces pkg/envelope's signable-JSON construction (every
// field but signature, canonicalized) since that helper is unexported.
func signEnvelope(t *testing.T, env *envelope.Envelope, kp *cryptoutil.KeyPair) {
	t.Helper()
	env.Signature = ""
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	delete(m, "signature")
	canon, err := canonical.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	env.Signature = hex.EncodeToString(cryptoutil.Sign(kp.SigningPrivate, canon))
}
