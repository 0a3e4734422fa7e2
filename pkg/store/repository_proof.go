// Proof repository - per-leaf Merkle inclusion proofs, persisted so the
// verify endpoint never has to rebuild a tree on demand.

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ProofRepository handles Merkle proof persistence.
type ProofRepository struct {
	client *Client
}

// NewProofRepository creates a new proof repository.
func NewProofRepository(client *Client) *ProofRepository {
	return &ProofRepository{client: client}
}

// Create persists a leaf's inclusion proof for a confirmed batch.
func (r *ProofRepository) Create(ctx context.Context, p *MerkleProofRecord) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO merkle_proofs (interaction_hash, batch_id, leaf_hash, proof, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		p.InteractionHash, p.BatchID, p.LeafHash, p.ProofJSON, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create merkle proof: %w", err)
	}
	return nil
}

// GetByInteractionHash retrieves the inclusion proof for a single
// interaction, backing the verify endpoint.
func (r *ProofRepository) GetByInteractionHash(ctx context.Context, hash string) (*MerkleProofRecord, error) {
	p := &MerkleProofRecord{}
	err := r.client.QueryRowContext(ctx, `
		SELECT interaction_hash, batch_id, leaf_hash, proof, created_at
		FROM merkle_proofs WHERE interaction_hash = $1`, hash,
	).Scan(&p.InteractionHash, &p.BatchID, &p.LeafHash, &p.ProofJSON, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProofNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get merkle proof: %w", err)
	}
	return p, nil
}

// ListByBatch returns every leaf proof belonging to a batch.
func (r *ProofRepository) ListByBatch(ctx context.Context, batchID int64) ([]*MerkleProofRecord, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT interaction_hash, batch_id, leaf_hash, proof, created_at
		FROM merkle_proofs WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, fmt.Errorf("store: list merkle proofs: %w", err)
	}
	defer rows.Close()

	var out []*MerkleProofRecord
	for rows.Next() {
		p := &MerkleProofRecord{}
		if err := rows.Scan(&p.InteractionHash, &p.BatchID, &p.LeafHash, &p.ProofJSON, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan merkle proof: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
