package envelope

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/cryptoutil"
	"github.com/aeep-network/aeep/pkg/store"
)

func newTestPipeline(t *testing.T) (*AuthPipeline, *store.Repositories) {
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
	return NewAuthPipeline(repos, 5*time.Minute, 24*time.Hour), repos
}

func buildSignedEnvelope(t *testing.T, from, to string, priv ed25519.PrivateKey) *Envelope {
	t.Helper()
	env := &Envelope{
		Version: 1,
		ID:      "01HZXAMPLE0000000000000001",
		Type:    "request",
		From:    from,
		To:      to,
		Created: time.Now().UTC(),
		Payload: json.RawMessage(`{"task_type":"translate"}`),
		Nonce:   "nonce-0001",
	}
	canon, err := canonicalizeWithoutSignature(env)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	env.Signature = hex.EncodeToString(cryptoutil.Sign(priv, canon))
	return env
}

func TestAuthPipeline_RejectsMalformedEnvelope(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Authenticate(context.Background(), &Envelope{}, "")
	if err == nil {
		t.Fatal("expected error for empty envelope")
	}
}

func TestAuthPipeline_RejectsStaleClock(t *testing.T) {
	p, _ := newTestPipeline(t)
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	pubKey, err := cryptoutil.EncodeEd25519PublicKey(kp.SigningPublic)
	if err != nil {
		t.Fatal(err)
	}

	env := buildSignedEnvelope(t, "did:key:zUnregisteredStale", "did:key:zTarget", kp.SigningPrivate)
	env.Created = time.Now().UTC().Add(-1 * time.Hour)
	// re-sign after mutating created, since it's covered by the signature
	canon, err := canonicalizeWithoutSignature(env)
	if err != nil {
		t.Fatal(err)
	}
	env.Signature = hex.EncodeToString(cryptoutil.Sign(kp.SigningPrivate, canon))

	if _, err := p.Authenticate(context.Background(), env, pubKey); err == nil {
		t.Fatal("expected clock skew rejection")
	}
}

func TestAuthPipeline_AcceptsValidUnregisteredSender(t *testing.T) {
	p, _ := newTestPipeline(t)
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	pubKey, err := cryptoutil.EncodeEd25519PublicKey(kp.SigningPublic)
	if err != nil {
		t.Fatal(err)
	}

	env := buildSignedEnvelope(t, "did:key:zFreshRegister", "did:key:zTarget", kp.SigningPrivate)

	agent, err := p.Authenticate(context.Background(), env, pubKey)
	if err != nil {
		t.Fatalf("expected successful authentication, got %v", err)
	}
	if agent != nil {
		t.Error("expected nil agent for first-time registration sender")
	}

	// replaying the same nonce must fail
	if _, err := p.Authenticate(context.Background(), env, pubKey); err == nil {
		t.Fatal("expected nonce reuse rejection")
	}
}
