// Interaction repository - the negotiation engine's persistence layer.
//
// Every transition is an atomic compare-and-update: `UPDATE interactions
// SET ... WHERE id = $1 AND status = $2`. Zero rows affected means a
// concurrent writer already moved the row (or it was never in the expected
// state), and the caller should treat that as an invalid transition. No
// in-process mutex is needed; the database row itself is the lock.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InteractionRepository handles interaction persistence and transitions.
type InteractionRepository struct {
	client *Client
}

// NewInteractionRepository creates a new interaction repository.
func NewInteractionRepository(client *Client) *InteractionRepository {
	return &InteractionRepository{client: client}
}

const interactionColumns = `id, interaction_hash, initiator_did, provider_did, capability,
	status, outcome, payment_tx_hash, payment_amount, batch_id,
	request_payload, offer_payload, result_payload, idempotency_key,
	created_at, updated_at`

func scanInteraction(row interface{ Scan(...interface{}) error }) (*Interaction, error) {
	i := &Interaction{}
	err := row.Scan(
		&i.ID, &i.InteractionHash, &i.InitiatorDID, &i.ProviderDID, &i.Capability,
		&i.Status, &i.Outcome, &i.PaymentTxHash, &i.PaymentAmount, &i.BatchID,
		&i.RequestJSON, &i.OfferJSON, &i.ResultJSON, &i.IdempotencyKey,
		&i.CreatedAt, &i.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInteractionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan interaction: %w", err)
	}
	return i, nil
}

// Create inserts a new interaction in `pending`. Returns
// ErrIdempotencyExists when the idempotency key is already present.
func (r *InteractionRepository) Create(ctx context.Context, i *Interaction) error {
	query := `
		INSERT INTO interactions (
			id, interaction_hash, initiator_did, provider_did, capability,
			status, outcome, payment_tx_hash, payment_amount, batch_id,
			request_payload, offer_payload, result_payload, idempotency_key,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.client.ExecContext(ctx, query,
		i.ID, i.InteractionHash, i.InitiatorDID, i.ProviderDID, i.Capability,
		i.Status, i.Outcome, i.PaymentTxHash, i.PaymentAmount, i.BatchID,
		i.RequestJSON, i.OfferJSON, i.ResultJSON, i.IdempotencyKey,
		i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIdempotencyExists
		}
		return fmt.Errorf("store: create interaction: %w", err)
	}
	return nil
}

// GetByID retrieves an interaction by primary key.
func (r *InteractionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Interaction, error) {
	row := r.client.QueryRowContext(ctx, `SELECT `+interactionColumns+` FROM interactions WHERE id = $1`, id)
	return scanInteraction(row)
}

// GetByIdempotencyKey implements the idempotent-request lookup.
func (r *InteractionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Interaction, error) {
	row := r.client.QueryRowContext(ctx, `SELECT `+interactionColumns+` FROM interactions WHERE idempotency_key = $1`, key)
	return scanInteraction(row)
}

// FindFallback implements the lookup rule's second step: the
// most-recently-updated interaction in the expected source status where
// the sender is either party.
func (r *InteractionRepository) FindFallback(ctx context.Context, status InteractionStatus, senderDID string) (*Interaction, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE status = $1 AND (initiator_did = $2 OR provider_did = $2)
		ORDER BY updated_at DESC LIMIT 1`, status, senderDID)
	return scanInteraction(row)
}

// transition performs the compare-and-update and returns ErrNoTransition
// if no row matched the expected source status.
func (r *InteractionRepository) transition(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.client.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: transition interaction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: transition interaction: %w", err)
	}
	if rows == 0 {
		return ErrNoTransition
	}
	return nil
}

// TransitionToOffered applies the provider's `offer` message.
func (r *InteractionRepository) TransitionToOffered(ctx context.Context, id uuid.UUID, offer json.RawMessage, now time.Time) error {
	return r.transition(ctx, `
		UPDATE interactions SET status = $1, offer_payload = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		InteractionOffered, offer, now, id, InteractionPending)
}

// TransitionToAccepted applies the initiator's `accept` message.
func (r *InteractionRepository) TransitionToAccepted(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.transition(ctx, `
		UPDATE interactions SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		InteractionAccepted, now, id, InteractionOffered)
}

// TransitionToRejected applies the initiator's `reject` message.
func (r *InteractionRepository) TransitionToRejected(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.transition(ctx, `
		UPDATE interactions SET status = $1, outcome = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		InteractionRejected, OutcomeRejected, now, id, InteractionOffered)
}

// TransitionToDelivered applies the provider's `result` message.
func (r *InteractionRepository) TransitionToDelivered(ctx context.Context, id uuid.UUID, result json.RawMessage, now time.Time) error {
	return r.transition(ctx, `
		UPDATE interactions SET status = $1, result_payload = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		InteractionDelivered, result, now, id, InteractionAccepted)
}

// TransitionToVerified applies a `verify{verified:true}` message.
func (r *InteractionRepository) TransitionToVerified(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.transition(ctx, `
		UPDATE interactions SET status = $1, outcome = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		InteractionVerified, OutcomeSuccess, now, id, InteractionDelivered)
}

// TransitionToDisputed applies a `verify{verified:false}` message.
func (r *InteractionRepository) TransitionToDisputed(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.transition(ctx, `
		UPDATE interactions SET status = $1, outcome = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		InteractionDisputed, OutcomeDispute, now, id, InteractionDelivered)
}

// TransitionToCompleted applies the initiator's `payment` message.
func (r *InteractionRepository) TransitionToCompleted(ctx context.Context, id uuid.UUID, txHash string, amount float64, now time.Time) error {
	return r.transition(ctx, `
		UPDATE interactions SET status = $1, outcome = $2, payment_tx_hash = $3,
			payment_amount = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		InteractionCompleted, OutcomeSuccess, txHash, amount, now, id, InteractionVerified)
}

// TransitionToFailed applies a `payment-failed` message. The source state
// is either verified or disputed.
func (r *InteractionRepository) TransitionToFailed(ctx context.Context, id uuid.UUID, fromStatus InteractionStatus, now time.Time) error {
	return r.transition(ctx, `
		UPDATE interactions SET status = $1, outcome = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		InteractionFailed, OutcomeFailure, now, id, fromStatus)
}

// ExpireStale bulk-expires every row in fromStatus whose updated_at
// predates the cutoff. Used by the TTL sweep; idempotent by construction
// since a row it already expired no longer matches fromStatus.
func (r *InteractionRepository) ExpireStale(ctx context.Context, fromStatus InteractionStatus, cutoff time.Time, now time.Time) (int64, error) {
	res, err := r.client.ExecContext(ctx, `
		UPDATE interactions SET status = $1, outcome = $2, updated_at = $3
		WHERE status = $4 AND updated_at < $5`,
		InteractionExpired, OutcomeTimeout, now, fromStatus, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: expire stale interactions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: expire stale interactions: %w", err)
	}
	return rows, nil
}

// CountActive returns the number of interactions that have not yet reached
// a terminal status, for the health endpoint's pending_interactions figure.
func (r *InteractionRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.client.QueryRowContext(ctx, `
		SELECT count(*) FROM interactions
		WHERE status NOT IN ($1, $2, $3, $4)`,
		InteractionCompleted, InteractionExpired, InteractionRejected, InteractionFailed,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count active interactions: %w", err)
	}
	return n, nil
}

// SetBatchID stamps the anchoring batch id. This is the single field a
// terminal interaction row may still receive after reaching `completed` or
// `verified`.
func (r *InteractionRepository) SetBatchID(ctx context.Context, id uuid.UUID, batchID int64) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE interactions SET batch_id = $1 WHERE id = $2`, batchID, id)
	if err != nil {
		return fmt.Errorf("store: set batch id: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrInteractionNotFound
	}
	return nil
}

// SetBatchIDByHash stamps the anchoring batch id by interaction hash,
// for the batching collector which only carries hashes in its buffer.
func (r *InteractionRepository) SetBatchIDByHash(ctx context.Context, interactionHash string, batchID int64) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE interactions SET batch_id = $1 WHERE interaction_hash = $2`, batchID, interactionHash)
	if err != nil {
		return fmt.Errorf("store: set batch id by hash: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrInteractionNotFound
	}
	return nil
}

// ListUnanchored returns verified/completed interactions with no batch id
// yet assigned, for reconciliation after a crash mid-batch.
func (r *InteractionRepository) ListUnanchored(ctx context.Context, limit int) ([]*Interaction, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE batch_id IS NULL AND status IN ($1, $2)
		ORDER BY updated_at ASC LIMIT $3`,
		InteractionCompleted, InteractionVerified, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list unanchored interactions: %w", err)
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
