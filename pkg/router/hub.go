package router

import (
	"sync"

	"github.com/aeep-network/aeep/pkg/apierr"
)

// subscriber is one open push-stream connection's outbound channel.
type subscriber struct {
	did string
	ch  chan []byte
}

// Hub fans out queued envelopes to live push-stream subscribers. Delivery
// through it is best-effort: the message queue is authoritative, and a
// subscriber whose buffer is full simply misses that broadcast rather
// than being blocked on.
type Hub struct {
	mu            sync.Mutex
	byDID         map[string][]*subscriber
	total         int
	maxPerAgent   int
	maxGlobal     int
}

// NewHub builds an empty Hub bounded by the given per-agent and global
// concurrent-stream limits.
func NewHub(maxPerAgent, maxGlobal int) *Hub {
	return &Hub{byDID: make(map[string][]*subscriber), maxPerAgent: maxPerAgent, maxGlobal: maxGlobal}
}

// Subscribe registers a new stream for a DID, returning its delivery
// channel and an unsubscribe func to call when the connection closes.
// Returns apierr.CodeConnectionLimit if either bound is already at
// capacity.
func (h *Hub) Subscribe(did string) (<-chan []byte, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total >= h.maxGlobal {
		return nil, nil, apierr.New(apierr.CodeConnectionLimit, "global push-stream limit reached")
	}
	if len(h.byDID[did]) >= h.maxPerAgent {
		return nil, nil, apierr.New(apierr.CodeConnectionLimit, "per-agent push-stream limit reached")
	}

	sub := &subscriber{did: did, ch: make(chan []byte, 16)}
	h.byDID[did] = append(h.byDID[did], sub)
	h.total++

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.byDID[did]
		for i, s := range subs {
			if s == sub {
				h.byDID[did] = append(subs[:i], subs[i+1:]...)
				h.total--
				break
			}
		}
		if len(h.byDID[did]) == 0 {
			delete(h.byDID, did)
		}
	}
	return sub.ch, unsubscribe, nil
}

// Broadcast delivers an envelope payload to every live subscriber for a
// DID. A subscriber whose buffer is full is skipped rather than blocking
// the sender.
func (h *Hub) Broadcast(did string, payload []byte) {
	h.mu.Lock()
	subs := append([]*subscriber(nil), h.byDID[did]...)
	h.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- payload:
		default:
		}
	}
}

// SubscriberCount reports the number of live streams for a DID, for
// the router's queued/pushed decision.
func (h *Hub) SubscriberCount(did string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byDID[did])
}
