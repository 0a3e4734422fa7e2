// Agent repository - registration, update, deactivation, heartbeat, discovery.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AgentRepository handles agent/DID persistence.
type AgentRepository struct {
	client *Client
}

// NewAgentRepository creates a new agent repository.
func NewAgentRepository(client *Client) *AgentRepository {
	return &AgentRepository{client: client}
}

// Create inserts a new agent row. Returns ErrAgentExists on a duplicate DID.
func (r *AgentRepository) Create(ctx context.Context, a *Agent) error {
	query := `
		INSERT INTO agents (
			id, did, status, availability, last_seen_at, display_name,
			description, endpoint, payment_address, trust_score,
			interaction_count, successful_count, failed_count, dispute_count,
			did_document, agent_card, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err := r.client.ExecContext(ctx, query,
		a.ID, a.DID, a.Status, a.Availability, a.LastSeenAt, a.DisplayName,
		a.Description, a.Endpoint, a.PaymentAddress, a.TrustScore,
		a.InteractionCount, a.SuccessfulCount, a.FailedCount, a.DisputeCount,
		a.DIDDocumentJSON, a.AgentCardJSON, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAgentExists
		}
		return fmt.Errorf("store: create agent: %w", err)
	}
	return nil
}

// CreateTx inserts a new agent row within a caller-managed transaction,
// so the agent and its initial capability set commit atomically.
func (r *AgentRepository) CreateTx(ctx context.Context, tx *Tx, a *Agent) error {
	query := `
		INSERT INTO agents (
			id, did, status, availability, last_seen_at, display_name,
			description, endpoint, payment_address, trust_score,
			interaction_count, successful_count, failed_count, dispute_count,
			did_document, agent_card, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err := tx.Tx().ExecContext(ctx, query,
		a.ID, a.DID, a.Status, a.Availability, a.LastSeenAt, a.DisplayName,
		a.Description, a.Endpoint, a.PaymentAddress, a.TrustScore,
		a.InteractionCount, a.SuccessfulCount, a.FailedCount, a.DisputeCount,
		a.DIDDocumentJSON, a.AgentCardJSON, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAgentExists
		}
		return fmt.Errorf("store: create agent: %w", err)
	}
	return nil
}

// UpdateTx performs Update within a caller-managed transaction.
func (r *AgentRepository) UpdateTx(ctx context.Context, tx *Tx, a *Agent) error {
	query := `
		UPDATE agents SET
			display_name = $1, description = $2, endpoint = $3,
			payment_address = $4, agent_card = $5, updated_at = $6
		WHERE id = $7`
	res, err := tx.Tx().ExecContext(ctx, query,
		a.DisplayName, a.Description, a.Endpoint, a.PaymentAddress, a.AgentCardJSON, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("store: update agent: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

const agentColumns = `id, did, status, availability, last_seen_at, display_name,
	description, endpoint, payment_address, trust_score,
	interaction_count, successful_count, failed_count, dispute_count,
	did_document, agent_card, created_at, updated_at`

func scanAgent(row interface{ Scan(...interface{}) error }) (*Agent, error) {
	a := &Agent{}
	err := row.Scan(
		&a.ID, &a.DID, &a.Status, &a.Availability, &a.LastSeenAt, &a.DisplayName,
		&a.Description, &a.Endpoint, &a.PaymentAddress, &a.TrustScore,
		&a.InteractionCount, &a.SuccessfulCount, &a.FailedCount, &a.DisputeCount,
		&a.DIDDocumentJSON, &a.AgentCardJSON, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan agent: %w", err)
	}
	return a, nil
}

// GetByID retrieves an agent by its primary key.
func (r *AgentRepository) GetByID(ctx context.Context, id string) (*Agent, error) {
	row := r.client.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

// GetByDID retrieves an agent by its DID.
func (r *AgentRepository) GetByDID(ctx context.Context, did string) (*Agent, error) {
	row := r.client.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE did = $1`, did)
	return scanAgent(row)
}

// Update persists mutable profile fields (name, description, endpoint,
// payment address). Capability replacement is handled separately via
// CapabilityRepository so the two stay atomic within a caller-managed
// transaction.
func (r *AgentRepository) Update(ctx context.Context, a *Agent) error {
	query := `
		UPDATE agents SET
			display_name = $1, description = $2, endpoint = $3,
			payment_address = $4, agent_card = $5, updated_at = $6
		WHERE id = $7`
	res, err := r.client.ExecContext(ctx, query,
		a.DisplayName, a.Description, a.Endpoint, a.PaymentAddress, a.AgentCardJSON, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("store: update agent: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// Deactivate sets status to deactivated and availability to offline.
func (r *AgentRepository) Deactivate(ctx context.Context, id string, now time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE agents SET status = $1, availability = $2, updated_at = $3 WHERE id = $4`,
		DIDStatusDeactivated, AvailabilityOffline, now, id)
	if err != nil {
		return fmt.Errorf("store: deactivate agent: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// SetStatus performs a DID-status transition (active/revoked/deactivated).
func (r *AgentRepository) SetStatus(ctx context.Context, id string, status DIDStatus, now time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE agents SET status = $1, updated_at = $2 WHERE id = $3`, status, now, id)
	if err != nil {
		return fmt.Errorf("store: set agent status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// Heartbeat refreshes last_seen_at and availability.
func (r *AgentRepository) Heartbeat(ctx context.Context, id string, availability Availability, now time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE agents SET availability = $1, last_seen_at = $2, updated_at = $2 WHERE id = $3`,
		availability, now, id)
	if err != nil {
		return fmt.Errorf("store: heartbeat: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// MarkStaleUnknown sets availability to unknown for every agent whose
// last_seen_at predates the cutoff and is not already unknown. Used by the
// heartbeat sweep.
func (r *AgentRepository) MarkStaleUnknown(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.client.ExecContext(ctx,
		`UPDATE agents SET availability = $1, updated_at = $2 WHERE last_seen_at < $3 AND availability != $1`,
		AvailabilityUnknown, time.Now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: mark stale agents: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// Count returns the total number of registered agents, for the health
// endpoint.
func (r *AgentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.client.QueryRowContext(ctx, `SELECT count(*) FROM agents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count agents: %w", err)
	}
	return n, nil
}

// AdjustCounters atomically bumps the success/failed/dispute counters and
// updates the trust score in one statement.
func (r *AgentRepository) AdjustCounters(ctx context.Context, id string, deltaSuccess, deltaFailed, deltaDispute int64, newScore float64, now time.Time) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE agents SET
			interaction_count = interaction_count + $1,
			successful_count = successful_count + $2,
			failed_count = failed_count + $3,
			dispute_count = dispute_count + $4,
			trust_score = $5,
			updated_at = $6
		WHERE id = $7`,
		deltaSuccess+deltaFailed, deltaSuccess, deltaFailed, deltaDispute, newScore, now, id)
	if err != nil {
		return fmt.Errorf("store: adjust counters: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// DiscoveryFilter narrows a discovery query.
type DiscoveryFilter struct {
	Capability   string
	MinTrust     float64
	Status       DIDStatus
	Availability Availability
	Limit        int
	Offset       int
}

// Discover returns agents matching every supplied filter, ordered by trust
// score descending.
func (r *AgentRepository) Discover(ctx context.Context, f DiscoveryFilter) ([]*Agent, error) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	argN := 0
	next := func(v interface{}) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	query := `SELECT DISTINCT ` + prefixColumns("a", agentColumns) + ` FROM agents a`
	if f.Capability != "" {
		query += ` JOIN capabilities c ON c.agent_id = a.id`
		clauses = append(clauses, fmt.Sprintf("c.name = %s", next(f.Capability)))
	}
	if f.MinTrust > 0 {
		clauses = append(clauses, fmt.Sprintf("a.trust_score >= %s", next(f.MinTrust)))
	}
	if f.Status != "" {
		clauses = append(clauses, fmt.Sprintf("a.status = %s", next(f.Status)))
	}
	if f.Availability != "" {
		clauses = append(clauses, fmt.Sprintf("a.availability = %s", next(f.Availability)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query += " WHERE " + strings.Join(clauses, " AND ")
	query += " ORDER BY a.trust_score DESC"
	query += fmt.Sprintf(" LIMIT %s OFFSET %s", next(limit), next(f.Offset))

	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: discover agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate key")
}
