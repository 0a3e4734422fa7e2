// Capability repository - named services an agent offers.

package store

import (
	"context"
	"fmt"
)

// CapabilityRepository handles capability persistence.
type CapabilityRepository struct {
	client *Client
}

// NewCapabilityRepository creates a new capability repository.
func NewCapabilityRepository(client *Client) *CapabilityRepository {
	return &CapabilityRepository{client: client}
}

// ReplaceAll atomically replaces an agent's capability set inside the
// given transaction: delete-then-insert under composite (agent_id, name)
// uniqueness.
func (r *CapabilityRepository) ReplaceAll(ctx context.Context, tx *Tx, agentID string, caps []Capability) error {
	if _, err := tx.Tx().ExecContext(ctx, `DELETE FROM capabilities WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("store: clear capabilities: %w", err)
	}
	for _, c := range caps {
		if _, err := tx.Tx().ExecContext(ctx,
			`INSERT INTO capabilities (agent_id, name, metadata) VALUES ($1, $2, $3)`,
			agentID, c.Name, c.MetadataRaw); err != nil {
			return fmt.Errorf("store: insert capability %q: %w", c.Name, err)
		}
	}
	return nil
}

// ListByAgent returns every capability an agent advertises.
func (r *CapabilityRepository) ListByAgent(ctx context.Context, agentID string) ([]Capability, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT agent_id, name, metadata FROM capabilities WHERE agent_id = $1 ORDER BY name`, agentID)
	if err != nil {
		return nil, fmt.Errorf("store: list capabilities: %w", err)
	}
	defer rows.Close()

	var caps []Capability
	for rows.Next() {
		var c Capability
		if err := rows.Scan(&c.AgentID, &c.Name, &c.MetadataRaw); err != nil {
			return nil, fmt.Errorf("store: scan capability: %w", err)
		}
		caps = append(caps, c)
	}
	return caps, rows.Err()
}
