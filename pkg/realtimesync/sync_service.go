// Package realtimesync mirrors agent and interaction state into
// Firestore for external dashboards. It is wired as a side channel off
// pkg/identity and pkg/negotiation: every call is fire-and-forget from
// the caller's point of view and failures are logged, never returned,
// since pkg/store remains the sole source of truth.
package realtimesync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aeep-network/aeep/pkg/store"
)

// SyncService dispatches agent and interaction updates to a Client on
// a bounded worker pool, so a slow or unreachable Firestore never backs
// up the negotiation hot path.
type SyncService struct {
	client  *Client
	logger  *log.Logger
	timeout time.Duration
	jobs    chan func(context.Context)
	wg      sync.WaitGroup
}

// SyncServiceConfig configures a SyncService.
type SyncServiceConfig struct {
	Client *Client
	Logger *log.Logger

	// Timeout bounds each individual Firestore call. Defaults to 5s.
	Timeout time.Duration

	// Workers is the number of goroutines draining the job queue.
	// Defaults to 2.
	Workers int

	// QueueSize bounds how many pending snapshot writes may be buffered
	// before NotifyX calls start dropping updates. Defaults to 256.
	QueueSize int
}

// NewSyncService starts a SyncService backed by the given client. The
// returned service must be stopped with Stop during shutdown.
func NewSyncService(cfg *SyncServiceConfig) *SyncService {
	if cfg == nil {
		cfg = &SyncServiceConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[RealtimeSync] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	s := &SyncService{
		client:  cfg.Client,
		logger:  logger,
		timeout: timeout,
		jobs:    make(chan func(context.Context), queueSize),
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// IsEnabled reports whether the underlying client will actually write
// to Firestore.
func (s *SyncService) IsEnabled() bool {
	return s.client != nil && s.client.IsEnabled()
}

func (s *SyncService) worker() {
	defer s.wg.Done()
	for job := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		job(ctx)
		cancel()
	}
}

// enqueue schedules a job, dropping it with a log line if the queue is
// full rather than blocking the caller.
func (s *SyncService) enqueue(job func(context.Context)) {
	if !s.IsEnabled() {
		return
	}
	select {
	case s.jobs <- job:
	default:
		s.logger.Printf("sync queue full, dropping update")
	}
}

// NotifyAgentUpdated mirrors an agent's current state. Call after any
// registration, update, heartbeat, or trust-score recompute.
func (s *SyncService) NotifyAgentUpdated(a *store.Agent) {
	if a == nil {
		return
	}
	fields := AgentSnapshotFields(a)
	s.enqueue(func(ctx context.Context) {
		if err := s.client.UpsertAgentSnapshot(ctx, a.DID, fields); err != nil {
			s.logger.Printf("agent snapshot for %s: %v", a.DID, err)
		}
	})
}

// NotifyInteractionUpdated mirrors an interaction's current negotiation
// state. Call after every state machine transition.
func (s *SyncService) NotifyInteractionUpdated(i *store.Interaction) {
	if i == nil {
		return
	}
	id := i.ID.String()
	fields := InteractionSnapshotFields(i)
	s.enqueue(func(ctx context.Context) {
		if err := s.client.UpsertInteractionSnapshot(ctx, id, fields); err != nil {
			s.logger.Printf("interaction snapshot for %s: %v", id, err)
		}
	})
}

// Stop closes the job queue and waits for in-flight jobs to finish.
func (s *SyncService) Stop() {
	close(s.jobs)
	s.wg.Wait()
}
