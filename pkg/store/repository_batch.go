// Batch repository - Merkle-anchored interaction batches.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BatchRepository handles batch persistence.
type BatchRepository struct {
	client *Client
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(client *Client) *BatchRepository {
	return &BatchRepository{client: client}
}

const batchColumns = `id, merkle_root, interaction_count, tx_hash, status, created_at, updated_at`

func scanBatch(row interface{ Scan(...interface{}) error }) (*Batch, error) {
	b := &Batch{}
	err := row.Scan(&b.ID, &b.MerkleRoot, &b.InteractionCount, &b.TxHash, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan batch: %w", err)
	}
	return b, nil
}

// Create inserts a new batch with the status set on b and returns its
// assigned id.
func (r *BatchRepository) Create(ctx context.Context, b *Batch) (int64, error) {
	var id int64
	err := r.client.QueryRowContext(ctx, `
		INSERT INTO batches (merkle_root, interaction_count, tx_hash, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		b.MerkleRoot, b.InteractionCount, b.TxHash, b.Status, b.CreatedAt, b.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create batch: %w", err)
	}
	return id, nil
}

// GetByID retrieves a batch by primary key.
func (r *BatchRepository) GetByID(ctx context.Context, id int64) (*Batch, error) {
	row := r.client.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	return scanBatch(row)
}

// MarkSubmitted records the relayer transaction hash and flips status to
// submitted.
func (r *BatchRepository) MarkSubmitted(ctx context.Context, id int64, txHash string, now time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE batches SET status = $1, tx_hash = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		BatchSubmitted, txHash, now, id, BatchPending)
	if err != nil {
		return fmt.Errorf("store: mark batch submitted: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNoTransition
	}
	return nil
}

// MarkConfirmed flips a submitted batch to confirmed once the relayer
// reports the anchoring transaction as final.
func (r *BatchRepository) MarkConfirmed(ctx context.Context, id int64, now time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE batches SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		BatchConfirmed, now, id, BatchSubmitted)
	if err != nil {
		return fmt.Errorf("store: mark batch confirmed: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNoTransition
	}
	return nil
}

// List returns batches newest-first, for the batch listing endpoint.
func (r *BatchRepository) List(ctx context.Context, limit, offset int) ([]*Batch, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list batches: %w", err)
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Count returns the total number of batches ever created, for the
// health endpoint.
func (r *BatchRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.client.QueryRowContext(ctx, `SELECT count(*) FROM batches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count batches: %w", err)
	}
	return n, nil
}

// ListPendingConfirmation returns submitted batches awaiting on-chain
// finality, for the relayer reconciliation sweep.
func (r *BatchRepository) ListPendingConfirmation(ctx context.Context) ([]*Batch, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE status = $1 ORDER BY created_at ASC`, BatchSubmitted)
	if err != nil {
		return nil, fmt.Errorf("store: list pending batches: %w", err)
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
