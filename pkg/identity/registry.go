// Package identity implements the agent registry: registration, profile
// updates, deactivation, heartbeats and capability-based discovery. It
// owns the mapping between a DID and the agent that controls it.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aeep-network/aeep/pkg/apierr"
	"github.com/aeep-network/aeep/pkg/store"
	"github.com/aeep-network/aeep/pkg/trust"
)

// CapabilityInput describes one capability an agent advertises at
// registration or update time.
type CapabilityInput struct {
	Name     string
	Metadata json.RawMessage
}

// RegisterInput is the body of a `register` registry call.
type RegisterInput struct {
	DID                  string
	DisplayName          string
	Description          string
	Endpoint             string
	PaymentAddress       string
	PricingHint          string
	VerificationMethod   string // multibase Ed25519 public key, as stored in the DID document
	KeyAgreement         string // multibase X25519 public key
	Capabilities         []CapabilityInput
}

// UpdateInput is the body of an `update` registry call. Every field
// replaces the corresponding stored value; capabilities are replaced
// atomically as a full set.
type UpdateInput struct {
	DisplayName    string
	Description    string
	Endpoint       string
	PaymentAddress string
	PricingHint    string
	Capabilities   []CapabilityInput
}

// Registry implements agent lifecycle and discovery on top of the
// persistent store.
type Registry struct {
	client         *store.Client
	repos          *store.Repositories
	scorer         *trust.Scorer
	heartbeatStale time.Duration
	now            func() time.Time
}

// NewRegistry builds a Registry. heartbeatStale is the duration after
// which an agent's availability is swept to `unknown`. scorer applies the
// time-decay curve to stored trust scores whenever they're read back out
// for discovery; it may be nil, in which case discovery returns the raw
// stored score undecayed.
func NewRegistry(client *store.Client, repos *store.Repositories, scorer *trust.Scorer, heartbeatStale time.Duration) *Registry {
	return &Registry{client: client, repos: repos, scorer: scorer, heartbeatStale: heartbeatStale, now: time.Now}
}

// Register creates a new agent and its capability set atomically.
// Returns apierr with CodeAgentExists if the DID is already registered.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*store.Agent, error) {
	now := r.now().UTC()

	doc := store.DIDDocument{
		ID:                 in.DID,
		VerificationMethod: in.VerificationMethod,
		KeyAgreement:       in.KeyAgreement,
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal did document: %w", err)
	}

	names := capabilityNames(in.Capabilities)
	card := store.AgentCard{
		ID:           uuid.NewString(),
		DID:          in.DID,
		Name:         in.DisplayName,
		TrustScore:   0.50,
		Capabilities: names,
		PricingHint:  in.PricingHint,
		Status:       store.DIDStatusActive,
		Availability: store.AvailabilityUnknown,
		LastSeenAt:   now,
	}
	cardJSON, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal agent card: %w", err)
	}

	agent := &store.Agent{
		ID:              card.ID,
		DID:             in.DID,
		Status:          store.DIDStatusActive,
		Availability:    store.AvailabilityUnknown,
		LastSeenAt:      now,
		DisplayName:     in.DisplayName,
		Description:     in.Description,
		Endpoint:        in.Endpoint,
		PaymentAddress:  in.PaymentAddress,
		TrustScore:      0.50,
		DIDDocumentJSON: docJSON,
		AgentCardJSON:   cardJSON,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.repos.Agents.CreateTx(ctx, tx, agent); err != nil {
		if err == store.ErrAgentExists {
			return nil, apierr.New(apierr.CodeAgentExists, "an agent is already registered for this DID")
		}
		return nil, err
	}
	if err := r.repos.Capabilities.ReplaceAll(ctx, tx, agent.ID, toCapabilities(agent.ID, in.Capabilities)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("identity: commit registration: %w", err)
	}

	return agent, nil
}

// Update replaces an agent's mutable profile fields and capability set.
func (r *Registry) Update(ctx context.Context, did string, in UpdateInput) (*store.Agent, error) {
	agent, err := r.repos.Agents.GetByDID(ctx, did)
	if err != nil {
		if err == store.ErrAgentNotFound {
			return nil, apierr.New(apierr.CodeAgentNotFound, "no agent registered for this DID")
		}
		return nil, err
	}

	now := r.now().UTC()
	names := capabilityNames(in.Capabilities)
	card := store.AgentCard{
		ID:           agent.ID,
		DID:          did,
		Name:         in.DisplayName,
		TrustScore:   agent.TrustScore,
		Capabilities: names,
		PricingHint:  in.PricingHint,
		Status:       agent.Status,
		Availability: agent.Availability,
		LastSeenAt:   agent.LastSeenAt,
	}
	cardJSON, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal agent card: %w", err)
	}

	agent.DisplayName = in.DisplayName
	agent.Description = in.Description
	agent.Endpoint = in.Endpoint
	agent.PaymentAddress = in.PaymentAddress
	agent.AgentCardJSON = cardJSON
	agent.UpdatedAt = now

	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.repos.Agents.UpdateTx(ctx, tx, agent); err != nil {
		return nil, err
	}
	if err := r.repos.Capabilities.ReplaceAll(ctx, tx, agent.ID, toCapabilities(agent.ID, in.Capabilities)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("identity: commit update: %w", err)
	}

	return agent, nil
}

// Deactivate sets an agent's status to deactivated and availability to
// offline. Deactivated agents keep their history but can no longer
// negotiate.
func (r *Registry) Deactivate(ctx context.Context, did string) error {
	agent, err := r.repos.Agents.GetByDID(ctx, did)
	if err != nil {
		if err == store.ErrAgentNotFound {
			return apierr.New(apierr.CodeAgentNotFound, "no agent registered for this DID")
		}
		return err
	}
	return r.repos.Agents.Deactivate(ctx, agent.ID, r.now().UTC())
}

// Heartbeat refreshes an agent's last_seen_at and availability.
// Heartbeating with identical parameters is idempotent.
func (r *Registry) Heartbeat(ctx context.Context, did string, availability store.Availability) error {
	agent, err := r.repos.Agents.GetByDID(ctx, did)
	if err != nil {
		if err == store.ErrAgentNotFound {
			return apierr.New(apierr.CodeAgentNotFound, "no agent registered for this DID")
		}
		return err
	}
	return r.repos.Agents.Heartbeat(ctx, agent.ID, availability, r.now().UTC())
}

// GetByDID retrieves an agent by DID.
func (r *Registry) GetByDID(ctx context.Context, did string) (*store.Agent, error) {
	agent, err := r.repos.Agents.GetByDID(ctx, did)
	if err == store.ErrAgentNotFound {
		return nil, apierr.New(apierr.CodeAgentNotFound, "no agent registered for this DID")
	}
	return agent, err
}

// DIDDocument retrieves and unmarshals an agent's DID document.
func (r *Registry) DIDDocument(ctx context.Context, did string) (*store.DIDDocument, error) {
	agent, err := r.GetByDID(ctx, did)
	if err != nil {
		return nil, err
	}
	return agent.DIDDocument()
}

// Discover returns agent cards matching the supplied filter, trust
// descending, with capability names attached.
func (r *Registry) Discover(ctx context.Context, filter store.DiscoveryFilter) ([]store.AgentCard, error) {
	agents, err := r.repos.Agents.Discover(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	cards := make([]store.AgentCard, 0, len(agents))
	for _, a := range agents {
		caps, err := r.repos.Capabilities.ListByAgent(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		trustScore := a.TrustScore
		if r.scorer != nil {
			trustScore = r.scorer.Decay(trustScore, a.UpdatedAt, now)
		}
		cards = append(cards, store.AgentCard{
			ID:           a.ID,
			DID:          a.DID,
			Name:         a.DisplayName,
			TrustScore:   trustScore,
			Capabilities: namesOf(caps),
			PricingHint:  pricingHintFromCardJSON(a.AgentCardJSON),
			Status:       a.Status,
			Availability: a.Availability,
			LastSeenAt:   a.LastSeenAt,
		})
	}
	return cards, nil
}

// pricingHintFromCardJSON pulls pricing_hint out of the persisted agent
// card blob. The agents table has no pricing_hint column of its own: the
// hint is written into agent_card_json at registration/update time and
// read back out here for discovery results.
func pricingHintFromCardJSON(cardJSON []byte) string {
	if len(cardJSON) == 0 {
		return ""
	}
	var card store.AgentCard
	if err := json.Unmarshal(cardJSON, &card); err != nil {
		return ""
	}
	return card.PricingHint
}

// SweepStale marks agents unseen for longer than heartbeatStale as
// availability=unknown. Run periodically by the scheduler.
func (r *Registry) SweepStale(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.heartbeatStale)
	return r.repos.Agents.MarkStaleUnknown(ctx, cutoff)
}

func capabilityNames(in []CapabilityInput) []string {
	names := make([]string, len(in))
	for i, c := range in {
		names[i] = c.Name
	}
	return names
}

func namesOf(caps []store.Capability) []string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.Name
	}
	return names
}

func toCapabilities(agentID string, in []CapabilityInput) []store.Capability {
	out := make([]store.Capability, len(in))
	for i, c := range in {
		out[i] = store.Capability{AgentID: agentID, Name: c.Name, MetadataRaw: c.Metadata}
	}
	return out
}
