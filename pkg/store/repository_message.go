// Message repository - the store-and-forward queue behind polling and
// push-stream delivery.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRepository handles message persistence.
type MessageRepository struct {
	client *Client
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(client *Client) *MessageRepository {
	return &MessageRepository{client: client}
}

const messageColumns = `id, type, from_did, to_did, envelope, created_at, expires_at,
	status, delivered_at, retry_count, last_error`

func scanMessage(row interface{ Scan(...interface{}) error }) (*Message, error) {
	m := &Message{}
	err := row.Scan(
		&m.ID, &m.Type, &m.From, &m.To, &m.EnvelopeJSON, &m.CreatedAt, &m.ExpiresAt,
		&m.Status, &m.DeliveredAt, &m.RetryCount, &m.LastError,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan message: %w", err)
	}
	return m, nil
}

// Create enqueues a new message in `queued`.
func (r *MessageRepository) Create(ctx context.Context, m *Message) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO messages (id, type, from_did, to_did, envelope, created_at, expires_at, status, delivered_at, retry_count, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.ID, m.Type, m.From, m.To, m.EnvelopeJSON, m.CreatedAt, m.ExpiresAt,
		m.Status, m.DeliveredAt, m.RetryCount, m.LastError,
	)
	if err != nil {
		return fmt.Errorf("store: create message: %w", err)
	}
	return nil
}

// ListQueuedFor returns every undelivered, unexpired message addressed to
// a DID, oldest first - the polling endpoint's backing query.
func (r *MessageRepository) ListQueuedFor(ctx context.Context, toDID string, now time.Time, limit int) ([]*Message, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE to_did = $1 AND status = $2 AND expires_at > $3
		ORDER BY created_at ASC LIMIT $4`,
		toDID, MessageQueued, now, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list queued messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkDelivered flips a message to delivered. Compare-and-update on
// status=queued so a message polled twice concurrently is only counted once.
func (r *MessageRepository) MarkDelivered(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE messages SET status = $1, delivered_at = $2 WHERE id = $3 AND status = $4`,
		MessageDelivered, now, id, MessageQueued)
	if err != nil {
		return fmt.Errorf("store: mark message delivered: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNoTransition
	}
	return nil
}

// MarkFailed records a delivery failure and bumps the retry count.
func (r *MessageRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE messages SET status = $1, retry_count = retry_count + 1, last_error = $2 WHERE id = $3`,
		MessageFailed, reason, id)
	if err != nil {
		return fmt.Errorf("store: mark message failed: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteExpired garbage-collects messages past their TTL regardless of
// delivery status, returning the number removed.
func (r *MessageRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.client.ExecContext(ctx, `DELETE FROM messages WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired messages: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}
