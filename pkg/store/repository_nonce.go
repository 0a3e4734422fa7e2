// Nonce repository - replay protection for signed envelopes. A nonce is
// inserted as the commit point of the authentication pipeline: the primary
// key on (did, nonce) guarantees exactly one winner when two requests
// race on the same nonce.

package store

import (
	"context"
	"fmt"
	"time"
)

// NonceRepository handles nonce persistence.
type NonceRepository struct {
	client *Client
}

// NewNonceRepository creates a new nonce repository.
func NewNonceRepository(client *Client) *NonceRepository {
	return &NonceRepository{client: client}
}

// Insert records a nonce as consumed. Returns ErrNonceReused if it has
// already been seen for this DID.
func (r *NonceRepository) Insert(ctx context.Context, n NonceRecord) error {
	_, err := r.client.ExecContext(ctx,
		`INSERT INTO nonces (nonce, did, created_at, expires_at) VALUES ($1,$2,$3,$4)`,
		n.Nonce, n.DID, n.CreatedAt, n.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNonceReused
		}
		return fmt.Errorf("store: insert nonce: %w", err)
	}
	return nil
}

// DeleteExpired garbage-collects nonces past their 24h TTL.
func (r *NonceRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.client.ExecContext(ctx, `DELETE FROM nonces WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired nonces: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}
