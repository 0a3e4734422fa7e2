package batching

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/relayer"
	"github.com/aeep-network/aeep/pkg/store"
)

// Scheduler drives the Collector's time trigger and reconciles batches
// that were submitted to the relayer but not yet confirmed. It owns no
// buffer state of its own; all of that lives in the Collector, guarded by
// the Collector's own mutex.
type Scheduler struct {
	collector *Collector
	repos     *store.Repositories
	relayer   relayer.Relayer
	policy    config.BatchPolicy
	logger    *log.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler builds a Scheduler around an already-constructed Collector.
func NewScheduler(collector *Collector, repos *store.Repositories, rel relayer.Relayer, policy config.BatchPolicy, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "[Batching] ", log.LstdFlags)
	}
	return &Scheduler{collector: collector, repos: repos, relayer: rel, policy: policy, logger: logger}
}

// Start launches the background scan loop. It is safe to call once;
// calling it again while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Duration(s.policy.TickerEvery))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs the time-trigger check and the pending-confirmation sweep.
// Each half is independent; one failing never blocks the other.
func (s *Scheduler) tick(ctx context.Context) {
	if s.collector.DueByAge() {
		if _, err := s.collector.Close(ctx); err != nil && !errors.Is(err, ErrEmptyBatch) {
			s.logger.Printf("time-triggered close failed: %v", err)
		}
	}
	s.reconcile(ctx)
}

// reconcile covers the narrow window where a process crashed between
// marking a batch submitted and marking it confirmed: it re-checks one
// of the batch's own leaves against the relayer's inclusion proof and
// promotes the batch on success.
func (s *Scheduler) reconcile(ctx context.Context) {
	pending, err := s.repos.Batches.ListPendingConfirmation(ctx)
	if err != nil {
		s.logger.Printf("list pending batches: %v", err)
		return
	}
	for _, b := range pending {
		if !b.TxHash.Valid {
			continue
		}
		if err := s.reconcileOne(ctx, b); err != nil {
			s.logger.Printf("reconcile batch %d: %v", b.ID, err)
		}
	}
}

func (s *Scheduler) reconcileOne(ctx context.Context, b *store.Batch) error {
	proofs, err := s.repos.Proofs.ListByBatch(ctx, b.ID)
	if err != nil || len(proofs) == 0 {
		return err
	}
	p := proofs[0]

	var path []struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(p.ProofJSON, &path); err != nil {
		return err
	}

	leaf, err := hex.DecodeString(p.LeafHash)
	if err != nil || len(leaf) != 32 {
		return err
	}
	var leafArr [32]byte
	copy(leafArr[:], leaf)

	proof := make([][32]byte, 0, len(path))
	for _, node := range path {
		sibling, err := hex.DecodeString(node.Hash)
		if err != nil || len(sibling) != 32 {
			return err
		}
		var arr [32]byte
		copy(arr[:], sibling)
		proof = append(proof, arr)
	}

	reconcileCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	included, err := s.relayer.VerifyInclusion(reconcileCtx, b.ID, leafArr, proof)
	cancel()
	if err != nil {
		return err
	}
	if !included {
		return nil
	}
	return s.repos.Batches.MarkConfirmed(ctx, b.ID, time.Now().UTC())
}
