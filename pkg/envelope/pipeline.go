package envelope

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/aeep-network/aeep/pkg/apierr"
	"github.com/aeep-network/aeep/pkg/canonical"
	"github.com/aeep-network/aeep/pkg/cryptoutil"
	"github.com/aeep-network/aeep/pkg/store"
)

// AuthPipeline runs every signed envelope through the seven-step
// authentication sequence before a negotiation or router handler sees it.
type AuthPipeline struct {
	repos     *store.Repositories
	clockSkew time.Duration
	nonceTTL  time.Duration
	now       func() time.Time
}

// NewAuthPipeline builds an AuthPipeline.
func NewAuthPipeline(repos *store.Repositories, clockSkew, nonceTTL time.Duration) *AuthPipeline {
	return &AuthPipeline{repos: repos, clockSkew: clockSkew, nonceTTL: nonceTTL, now: time.Now}
}

// Authenticate runs the full pipeline. registrationPublicKey must be
// supplied (and non-empty) when the sender is not yet a registered agent;
// it is the multibase Ed25519 key the caller claims controls `from`.
// Returns the sender's stored agent, or nil if this is a first-time
// registration call with no prior agent row.
func (p *AuthPipeline) Authenticate(ctx context.Context, env *Envelope, registrationPublicKey string) (*store.Agent, error) {
	if err := shapeCheck(env); err != nil {
		return nil, err
	}

	now := p.now().UTC()
	skew := now.Sub(env.Created)
	if skew < 0 {
		skew = -skew
	}
	if skew > p.clockSkew {
		return nil, apierr.New(apierr.CodeClockSkew, "envelope created timestamp is outside the accepted clock skew")
	}

	agent, pubKeyMultibase, err := p.resolvePublicKey(ctx, env, registrationPublicKey)
	if err != nil {
		return nil, err
	}

	if agent != nil {
		switch agent.Status {
		case store.DIDStatusRevoked:
			return nil, apierr.New(apierr.CodeDIDRevoked, "sender DID has been revoked")
		case store.DIDStatusDeactivated:
			return nil, apierr.New(apierr.CodeDIDDeactivated, "sender DID has been deactivated")
		}
	}

	pubKey, err := cryptoutil.DecodeEd25519PublicKey(pubKeyMultibase)
	if err != nil {
		return nil, apierr.New(apierr.CodeInvalidDIDFormat, "sender verification key is malformed: "+err.Error())
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return nil, apierr.New(apierr.CodeInvalidDIDFormat, "sender verification key has the wrong length")
	}

	canon, err := canonicalizeWithoutSignature(env)
	if err != nil {
		return nil, apierr.New(apierr.CodeMalformedEnvelope, "envelope could not be canonicalized")
	}
	sigBytes, err := hex.DecodeString(env.Signature)
	if err != nil {
		return nil, apierr.New(apierr.CodeInvalidSignature, "signature is not valid hex")
	}
	if !cryptoutil.Verify(pubKey, canon, sigBytes) {
		return nil, apierr.New(apierr.CodeInvalidSignature, "signature does not verify against the sender's key")
	}

	if err := p.repos.Nonces.Insert(ctx, store.NonceRecord{
		Nonce:     env.Nonce,
		DID:       env.From,
		CreatedAt: now,
		ExpiresAt: now.Add(p.nonceTTL),
	}); err != nil {
		if err == store.ErrNonceReused {
			return nil, apierr.New(apierr.CodeNonceReused, "nonce has already been used")
		}
		return nil, err
	}

	return agent, nil
}

// LightweightCheck is the reduced pipeline used by polling endpoints: it
// only confirms the agent exists and that the supplied DID matches it.
func (p *AuthPipeline) LightweightCheck(ctx context.Context, agentID, did string) (*store.Agent, error) {
	agent, err := p.repos.Agents.GetByID(ctx, agentID)
	if err != nil {
		if err == store.ErrAgentNotFound {
			return nil, apierr.New(apierr.CodeAgentNotFound, "agent not found")
		}
		return nil, err
	}
	if agent.DID != did {
		return nil, apierr.New(apierr.CodeNotOwner, "supplied did does not match the agent")
	}
	return agent, nil
}

func (p *AuthPipeline) resolvePublicKey(ctx context.Context, env *Envelope, registrationPublicKey string) (*store.Agent, string, error) {
	agent, err := p.repos.Agents.GetByDID(ctx, env.From)
	if err == store.ErrAgentNotFound {
		if registrationPublicKey == "" {
			return nil, "", apierr.New(apierr.CodeDIDNotFound, "sender is not a registered agent")
		}
		return nil, registrationPublicKey, nil
	}
	if err != nil {
		return nil, "", err
	}

	doc, err := agent.DIDDocument()
	if err != nil || doc == nil {
		return nil, "", apierr.New(apierr.CodeInvalidDIDFormat, "stored did document is malformed")
	}
	return agent, doc.VerificationMethod, nil
}

func shapeCheck(env *Envelope) error {
	if env == nil {
		return apierr.New(apierr.CodeMalformedEnvelope, "envelope is missing")
	}
	if env.ID == "" || env.Type == "" || env.From == "" || env.To == "" || env.Nonce == "" {
		return apierr.New(apierr.CodeMalformedEnvelope, "envelope is missing required fields")
	}
	if env.Created.IsZero() {
		return apierr.New(apierr.CodeMalformedEnvelope, "envelope is missing a created timestamp")
	}
	if env.Signature == "" {
		return apierr.New(apierr.CodeMalformedEnvelope, "envelope is missing a signature")
	}
	return nil
}

// canonicalizeWithoutSignature produces the canonical JSON bytes that the
// signature was computed over: every envelope field except `signature`.
func canonicalizeWithoutSignature(env *Envelope) ([]byte, error) {
	m, err := env.signableJSON()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return canonical.MarshalRaw(raw)
}
