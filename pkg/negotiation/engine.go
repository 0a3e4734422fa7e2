package negotiation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aeep-network/aeep/pkg/apierr"
	"github.com/aeep-network/aeep/pkg/canonical"
	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/store"
	"github.com/aeep-network/aeep/pkg/trust"
)

// BatchEnqueuer is the narrow interface the engine needs from the
// batching service: enqueue a verified interaction's hash for the next
// Merkle anchor. Kept separate so the engine does not import the
// batching package's scheduling machinery.
type BatchEnqueuer interface {
	Enqueue(ctx context.Context, interactionHash string) error
}

// Engine drives the ten-state negotiation machine. Every method
// corresponds to one of the six signed message types (reject and
// payment-failed are additional terminal transitions of `accept` and
// `verify` respectively).
type Engine struct {
	repos   *store.Repositories
	scorer  *trust.Scorer
	batch   BatchEnqueuer
	policy  config.NegotiationPolicy
	now     func() time.Time
}

// NewEngine builds a negotiation Engine.
func NewEngine(repos *store.Repositories, scorer *trust.Scorer, batch BatchEnqueuer, policy config.NegotiationPolicy) *Engine {
	return &Engine{repos: repos, scorer: scorer, batch: batch, policy: policy, now: time.Now}
}

// Request handles a `request` message: idempotent creation of a pending
// interaction.
func (e *Engine) Request(ctx context.Context, from, to string, canonicalRequestEnvelope []byte, p RequestPayload) (*store.Interaction, error) {
	if p.IdempotencyKey == "" {
		return nil, apierr.New(apierr.CodeMissingIdempotency, "request is missing an idempotency key")
	}

	if existing, err := e.repos.Interactions.GetByIdempotencyKey(ctx, p.IdempotencyKey); err == nil {
		return existing, nil
	} else if err != store.ErrInteractionNotFound {
		return nil, err
	}

	if _, err := e.repos.Agents.GetByDID(ctx, to); err != nil {
		if err == store.ErrAgentNotFound {
			return nil, apierr.New(apierr.CodeProviderNotFound, "provider is not registered")
		}
		return nil, err
	}

	hash, err := canonical.HashRaw(canonicalRequestEnvelope)
	if err != nil {
		return nil, apierr.New(apierr.CodeMalformedEnvelope, "request envelope could not be canonicalized")
	}

	now := e.now().UTC()
	reqJSON, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("negotiation: marshal request payload: %w", err)
	}

	interaction := &store.Interaction{
		ID:              uuid.New(),
		InteractionHash: hex.EncodeToString(hash[:]),
		InitiatorDID:    from,
		ProviderDID:     to,
		Capability:      p.TaskType,
		Status:          store.InteractionPending,
		RequestJSON:     reqJSON,
		IdempotencyKey:  p.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.repos.Interactions.Create(ctx, interaction); err != nil {
		if err == store.ErrIdempotencyExists {
			existing, getErr := e.repos.Interactions.GetByIdempotencyKey(ctx, p.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}
			return existing, nil
		}
		return nil, err
	}
	return interaction, nil
}

// Offer handles an `offer` message: fee/total/budget validation against a
// pending interaction the sender provides. The budget ceiling is read
// from the interaction's own stored request payload, not supplied by the
// caller, so a provider cannot offer against a budget it does not know.
func (e *Engine) Offer(ctx context.Context, from string, interactionID *uuid.UUID, p OfferPayload) (*store.Interaction, error) {
	interaction, err := e.lookup(ctx, interactionID, store.InteractionPending, from)
	if err != nil {
		return nil, err
	}
	if interaction.ProviderDID != from {
		return nil, apierr.New(apierr.CodeWrongRole, "only the provider may send an offer")
	}

	var request RequestPayload
	if err := json.Unmarshal(interaction.RequestJSON, &request); err != nil {
		return nil, fmt.Errorf("negotiation: unmarshal stored request: %w", err)
	}

	expectedFee := roundTo(p.Price*e.policy.FeeRate, 6)
	if math.Abs(expectedFee-p.ProtocolFee) > 1e-6 {
		return nil, apierr.New(apierr.CodeInvalidFee, "protocol fee does not match price * fee rate")
	}
	expectedTotal := roundTo(p.Price+p.ProtocolFee, 6)
	if math.Abs(expectedTotal-p.TotalCost) > 1e-6 {
		return nil, apierr.New(apierr.CodeInvalidTotal, "total cost does not match price plus fee")
	}
	if request.MaxBudget > 0 && p.TotalCost > request.MaxBudget {
		return nil, apierr.New(apierr.CodeBudgetExceeded, "offer total cost exceeds the requester's maximum budget")
	}

	offerJSON, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("negotiation: marshal offer payload: %w", err)
	}

	now := e.now().UTC()
	if err := e.repos.Interactions.TransitionToOffered(ctx, interaction.ID, offerJSON, now); err != nil {
		return nil, translateTransitionErr(err)
	}
	interaction.Status = store.InteractionOffered
	interaction.OfferJSON = offerJSON
	interaction.UpdatedAt = now
	return interaction, nil
}

// Accept handles an `accept` message: offer-hash integrity check against
// an offered interaction.
func (e *Engine) Accept(ctx context.Context, from string, interactionID *uuid.UUID, p AcceptPayload) (*store.Interaction, error) {
	interaction, err := e.lookup(ctx, interactionID, store.InteractionOffered, from)
	if err != nil {
		return nil, err
	}
	if interaction.InitiatorDID != from {
		return nil, apierr.New(apierr.CodeWrongRole, "only the initiator may accept an offer")
	}

	storedHash, err := canonical.HashRaw(interaction.OfferJSON)
	if err != nil {
		return nil, fmt.Errorf("negotiation: hash stored offer: %w", err)
	}
	if hex.EncodeToString(storedHash[:]) != p.OfferHash {
		return nil, apierr.New(apierr.CodeOfferHashMismatch, "offer hash does not match the stored offer")
	}

	now := e.now().UTC()
	if err := e.repos.Interactions.TransitionToAccepted(ctx, interaction.ID, now); err != nil {
		return nil, translateTransitionErr(err)
	}
	interaction.Status = store.InteractionAccepted
	interaction.UpdatedAt = now
	return interaction, nil
}

// Reject handles a `reject` message from the initiator, declining an
// offer. Terminal: outcome=rejected.
func (e *Engine) Reject(ctx context.Context, from string, interactionID *uuid.UUID, p RejectPayload) (*store.Interaction, error) {
	interaction, err := e.lookup(ctx, interactionID, store.InteractionOffered, from)
	if err != nil {
		return nil, err
	}
	if interaction.InitiatorDID != from {
		return nil, apierr.New(apierr.CodeWrongRole, "only the initiator may reject an offer")
	}

	now := e.now().UTC()
	if err := e.repos.Interactions.TransitionToRejected(ctx, interaction.ID, now); err != nil {
		return nil, translateTransitionErr(err)
	}
	interaction.Status = store.InteractionRejected
	interaction.UpdatedAt = now
	return interaction, nil
}

// Result handles a `result` message: the provider delivers work product.
func (e *Engine) Result(ctx context.Context, from string, interactionID *uuid.UUID, p ResultPayload) (*store.Interaction, error) {
	if p.ResultHash == "" {
		return nil, apierr.New(apierr.CodeMissingResultHash, "result message requires a non-empty result hash")
	}

	interaction, err := e.lookup(ctx, interactionID, store.InteractionAccepted, from)
	if err != nil {
		return nil, err
	}
	if interaction.ProviderDID != from {
		return nil, apierr.New(apierr.CodeWrongRole, "only the provider may deliver a result")
	}

	resultJSON, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("negotiation: marshal result payload: %w", err)
	}

	now := e.now().UTC()
	if err := e.repos.Interactions.TransitionToDelivered(ctx, interaction.ID, resultJSON, now); err != nil {
		return nil, translateTransitionErr(err)
	}
	interaction.Status = store.InteractionDelivered
	interaction.ResultJSON = resultJSON
	interaction.UpdatedAt = now
	return interaction, nil
}

// Verify handles a `verify` message: the initiator accepts or disputes
// the delivered result. A successful verify enqueues the interaction
// hash into the batching service and recomputes nothing yet - trust
// recomputes on payment, per the spec's worked example. A dispute
// increments the provider's dispute counter and recomputes its score.
func (e *Engine) Verify(ctx context.Context, from string, interactionID *uuid.UUID, p VerifyPayload) (*store.Interaction, error) {
	interaction, err := e.lookup(ctx, interactionID, store.InteractionDelivered, from)
	if err != nil {
		return nil, err
	}
	if interaction.InitiatorDID != from {
		return nil, apierr.New(apierr.CodeWrongRole, "only the initiator may verify a result")
	}

	if p.ResultHash != "" && interaction.ResultJSON != nil {
		var stored ResultPayload
		if err := json.Unmarshal(interaction.ResultJSON, &stored); err == nil && stored.ResultHash != "" {
			if stored.ResultHash != p.ResultHash {
				return nil, apierr.New(apierr.CodeInvalidTransition, "result hash does not match the delivered result")
			}
		}
	}

	now := e.now().UTC()
	if p.Verified {
		if err := e.repos.Interactions.TransitionToVerified(ctx, interaction.ID, now); err != nil {
			return nil, translateTransitionErr(err)
		}
		interaction.Status = store.InteractionVerified
		interaction.UpdatedAt = now

		if e.batch != nil {
			if err := e.batch.Enqueue(ctx, interaction.InteractionHash); err != nil {
				return nil, fmt.Errorf("negotiation: enqueue batch: %w", err)
			}
		}
		return interaction, nil
	}

	if err := e.repos.Interactions.TransitionToDisputed(ctx, interaction.ID, now); err != nil {
		return nil, translateTransitionErr(err)
	}
	interaction.Status = store.InteractionDisputed
	interaction.UpdatedAt = now

	provider, err := e.repos.Agents.GetByDID(ctx, interaction.ProviderDID)
	if err != nil {
		return nil, err
	}
	counters := trust.Counters{Successful: provider.SuccessfulCount, Failed: provider.FailedCount, Disputes: provider.DisputeCount + 1}
	if err := e.repos.Agents.AdjustCounters(ctx, provider.ID, 0, 0, 1, e.scorer.Score(counters), now); err != nil {
		return nil, err
	}
	return interaction, nil
}

// Payment handles a `payment` message: the initiator confirms on-chain
// payment, completing the interaction and recomputing both sides' trust.
func (e *Engine) Payment(ctx context.Context, from string, interactionID *uuid.UUID, p PaymentPayload) (*store.Interaction, error) {
	if p.TxHash == "" {
		return nil, apierr.New(apierr.CodeAmountMismatch, "payment message requires a non-empty transaction hash")
	}

	interaction, err := e.lookup(ctx, interactionID, store.InteractionVerified, from)
	if err != nil {
		return nil, err
	}
	if interaction.InitiatorDID != from {
		return nil, apierr.New(apierr.CodeWrongRole, "only the initiator may confirm payment")
	}

	var offer OfferPayload
	if err := json.Unmarshal(interaction.OfferJSON, &offer); err != nil {
		return nil, fmt.Errorf("negotiation: unmarshal stored offer: %w", err)
	}
	if math.Abs(offer.TotalCost-p.Amount) > 1e-6 {
		return nil, apierr.New(apierr.CodeAmountMismatch, "payment amount does not match the accepted offer total")
	}

	now := e.now().UTC()
	if err := e.repos.Interactions.TransitionToCompleted(ctx, interaction.ID, p.TxHash, p.Amount, now); err != nil {
		return nil, translateTransitionErr(err)
	}
	interaction.Status = store.InteractionCompleted
	interaction.UpdatedAt = now

	if err := e.recomputeTrust(ctx, interaction.ProviderDID, true, false, now); err != nil {
		return nil, err
	}
	if err := e.recomputeTrust(ctx, interaction.InitiatorDID, true, false, now); err != nil {
		return nil, err
	}
	return interaction, nil
}

// PaymentFailed handles a `payment-failed` message from either party:
// moves a verified or disputed interaction to failed and penalizes the
// initiator's failure counter.
func (e *Engine) PaymentFailed(ctx context.Context, from string, interactionID *uuid.UUID, p PaymentFailedPayload) (*store.Interaction, error) {
	interaction, err := e.lookupEither(ctx, interactionID, from, store.InteractionVerified, store.InteractionDisputed)
	if err != nil {
		return nil, err
	}
	if interaction.InitiatorDID != from && interaction.ProviderDID != from {
		return nil, apierr.New(apierr.CodeWrongRole, "only a party to the interaction may report a failed payment")
	}
	if interaction.Status != store.InteractionVerified && interaction.Status != store.InteractionDisputed {
		return nil, translateTransitionErr(store.ErrNoTransition)
	}

	now := e.now().UTC()
	if err := e.repos.Interactions.TransitionToFailed(ctx, interaction.ID, interaction.Status, now); err != nil {
		return nil, translateTransitionErr(err)
	}
	interaction.Status = store.InteractionFailed
	interaction.UpdatedAt = now

	if err := e.recomputeTrust(ctx, interaction.InitiatorDID, false, true, now); err != nil {
		return nil, err
	}
	return interaction, nil
}

// ExpireStale sweeps one pending-state column for TTL violations. The
// scheduler calls this once per tracked status on every tick.
func (e *Engine) ExpireStale(ctx context.Context, status store.InteractionStatus, ttl time.Duration) (int64, error) {
	cutoff := e.now().UTC().Add(-ttl)
	return e.repos.Interactions.ExpireStale(ctx, status, cutoff, e.now().UTC())
}

func (e *Engine) lookup(ctx context.Context, interactionID *uuid.UUID, expectedStatus store.InteractionStatus, senderDID string) (*store.Interaction, error) {
	if interactionID != nil {
		interaction, err := e.repos.Interactions.GetByID(ctx, *interactionID)
		if err == nil {
			return interaction, nil
		}
		if err != store.ErrInteractionNotFound {
			return nil, err
		}
		// Fall through to FindFallback: clients are allowed to pass the
		// envelope id as the request id, so a non-matching interaction id
		// isn't necessarily an error.
	}
	interaction, err := e.repos.Interactions.FindFallback(ctx, expectedStatus, senderDID)
	if err != nil {
		if err == store.ErrInteractionNotFound {
			return nil, apierr.New(apierr.CodeInteractionNotFound, "no matching interaction found for this sender")
		}
		return nil, err
	}
	return interaction, nil
}

func (e *Engine) lookupEither(ctx context.Context, interactionID *uuid.UUID, senderDID string, statuses ...store.InteractionStatus) (*store.Interaction, error) {
	if interactionID != nil {
		return e.lookup(ctx, interactionID, statuses[0], senderDID)
	}
	var lastErr error
	for _, status := range statuses {
		interaction, err := e.repos.Interactions.FindFallback(ctx, status, senderDID)
		if err == nil {
			return interaction, nil
		}
		lastErr = err
	}
	if lastErr == store.ErrInteractionNotFound {
		return nil, apierr.New(apierr.CodeInteractionNotFound, "no matching interaction found for this sender")
	}
	return nil, lastErr
}

func (e *Engine) recomputeTrust(ctx context.Context, did string, success, failure bool, now time.Time) error {
	agent, err := e.repos.Agents.GetByDID(ctx, did)
	if err != nil {
		return err
	}

	var deltaSuccess, deltaFailed int64
	counters := trust.Counters{Successful: agent.SuccessfulCount, Failed: agent.FailedCount, Disputes: agent.DisputeCount}
	if success {
		deltaSuccess = 1
		counters.Successful++
	}
	if failure {
		deltaFailed = 1
		counters.Failed++
	}

	score := e.scorer.Score(counters)
	return e.repos.Agents.AdjustCounters(ctx, agent.ID, deltaSuccess, deltaFailed, 0, score, now)
}

func translateTransitionErr(err error) error {
	if err == store.ErrNoTransition {
		return apierr.New(apierr.CodeInvalidTransition, "interaction is not in the expected state for this message")
	}
	return err
}

func roundTo(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}
