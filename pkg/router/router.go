// Package router implements the store-and-forward message queue that
// sits between the envelope authentication pipeline and a recipient:
// every accepted envelope is persisted before anything is pushed, so a
// subscriber dropping mid-stream never loses a message.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aeep-network/aeep/pkg/apierr"
	"github.com/aeep-network/aeep/pkg/metrics"
	"github.com/aeep-network/aeep/pkg/store"
)

// Result reports what Accept did with an envelope.
type Result struct {
	MessageID            uuid.UUID
	RecipientAvailability store.Availability
	Pushed               bool
}

// Router queues envelopes for their recipient and fans out to live push
// subscribers via a Hub.
type Router struct {
	repos      *store.Repositories
	hub        *Hub
	defaultTTL time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
}

// NewRouter builds a Router backed by the given repositories and hub.
func NewRouter(repos *store.Repositories, hub *Hub, defaultTTL time.Duration) *Router {
	return &Router{repos: repos, hub: hub, defaultTTL: defaultTTL, now: time.Now}
}

// WithMetrics attaches a Metrics bundle for queue/poll counters. Optional;
// a nil Router.metrics skips recording.
func (r *Router) WithMetrics(m *metrics.Metrics) *Router {
	r.metrics = m
	return r
}

// envelopeShape is the minimal shape the router needs to read off a
// raw envelope without depending on pkg/envelope, keeping the router
// reusable for any JSON payload that carries these fields.
type envelopeShape struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	To      string `json:"to"`
	Expires string `json:"expires,omitempty"`
}

// Accept resolves the recipient, persists the envelope in the queue, and
// broadcasts it to any live push subscribers. Returns
// apierr.CodeRecipientNotFound if the recipient DID has no agent row.
func (r *Router) Accept(ctx context.Context, envelopeJSON []byte) (*Result, error) {
	var shape envelopeShape
	if err := json.Unmarshal(envelopeJSON, &shape); err != nil {
		return nil, apierr.New(apierr.CodeMalformedEnvelope, "envelope is not valid JSON")
	}

	recipient, err := r.repos.Agents.GetByDID(ctx, shape.To)
	if err != nil {
		if err == store.ErrAgentNotFound {
			return nil, apierr.New(apierr.CodeRecipientNotFound, fmt.Sprintf("no agent registered for %s", shape.To))
		}
		return nil, fmt.Errorf("router: resolve recipient: %w", err)
	}

	now := r.now().UTC()
	expires := now.Add(r.defaultTTL)
	if shape.Expires != "" {
		if t, err := time.Parse(time.RFC3339, shape.Expires); err == nil {
			expires = t
		}
	}

	msg := &store.Message{
		ID:           uuid.New(),
		Type:         shape.Type,
		From:         shape.From,
		To:           shape.To,
		EnvelopeJSON: envelopeJSON,
		CreatedAt:    now,
		ExpiresAt:    expires,
		Status:       store.MessageQueued,
	}
	if err := r.repos.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("router: persist message: %w", err)
	}
	if r.metrics != nil {
		r.metrics.MessagesQueued.Inc()
	}

	pushed := false
	if r.hub.SubscriberCount(shape.To) > 0 {
		r.hub.Broadcast(shape.To, envelopeJSON)
		pushed = true
	}

	return &Result{MessageID: msg.ID, RecipientAvailability: recipient.Availability, Pushed: pushed}, nil
}

// Poll returns every queued message for a DID in arrival order and
// atomically marks each one delivered, so a second poll sees nothing new.
// Messages whose envelope JSON fails to parse are marked failed and
// skipped rather than returned.
func (r *Router) Poll(ctx context.Context, did string, limit int) ([]*store.Message, error) {
	now := r.now().UTC()
	queued, err := r.repos.Messages.ListQueuedFor(ctx, did, now, limit)
	if err != nil {
		return nil, fmt.Errorf("router: list queued messages: %w", err)
	}

	out := make([]*store.Message, 0, len(queued))
	for _, m := range queued {
		if !json.Valid(m.EnvelopeJSON) {
			_ = r.repos.Messages.MarkFailed(ctx, m.ID, "envelope JSON is invalid")
			continue
		}
		if err := r.repos.Messages.MarkDelivered(ctx, m.ID, now); err != nil {
			continue
		}
		out = append(out, m)
	}
	if r.metrics != nil && len(out) > 0 {
		r.metrics.MessagesPolled.Add(float64(len(out)))
	}
	return out, nil
}

// Subscribe opens a push stream for a DID through the underlying Hub.
func (r *Router) Subscribe(did string) (<-chan []byte, func(), error) {
	ch, unsubscribe, err := r.hub.Subscribe(did)
	if err != nil {
		return nil, nil, err
	}
	if r.metrics != nil {
		r.metrics.PushStreamsOpen.Inc()
	}
	wrapped := func() {
		unsubscribe()
		if r.metrics != nil {
			r.metrics.PushStreamsOpen.Dec()
		}
	}
	return ch, wrapped, nil
}
