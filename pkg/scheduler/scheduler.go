// Package scheduler runs the protocol's independent periodic sweeps: TTL
// expiry, heartbeat staleness, nonce garbage collection, and message
// garbage collection. Each sweep is its own cron entry so a slow run of
// one never delays another, matching the batching service's own time
// trigger, which runs independently alongside these.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/identity"
	"github.com/aeep-network/aeep/pkg/negotiation"
	"github.com/aeep-network/aeep/pkg/store"
)

// ttlStep pairs a non-terminal interaction status with the TTL it is
// swept against.
type ttlStep struct {
	status store.InteractionStatus
	ttl    time.Duration
}

// Scheduler owns the four independent sweeps described by the
// negotiation, identity, and message-queue layers, driven by a cron.Cron
// so each sweep's cadence is declared rather than hand-rolled per ticker.
type Scheduler struct {
	engine   *negotiation.Engine
	registry *identity.Registry
	repos    *store.Repositories
	policy   config.NegotiationPolicy
	logger   *log.Logger

	cron *cron.Cron
	ctx  context.Context
}

// New builds a Scheduler. It does not start any goroutines until Start
// is called.
func New(engine *negotiation.Engine, registry *identity.Registry, repos *store.Repositories, policy config.NegotiationPolicy, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "[Scheduler] ", log.LstdFlags)
	}
	return &Scheduler{engine: engine, registry: registry, repos: repos, policy: policy, logger: logger}
}

// Start registers each sweep against the configured interval and starts
// the cron runner. Call Stop to shut it down; ctx cancellation alone does
// not stop the cron runner, so callers must still call Stop on shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx

	interval := time.Duration(s.policy.SweepInterval)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	spec := fmt.Sprintf("@every %s", interval)

	s.cron = cron.New()
	entries := []struct {
		name string
		task func(context.Context)
	}{
		{"ttl", s.sweepTTL},
		{"heartbeats", s.sweepHeartbeats},
		{"nonces", s.sweepNonces},
		{"messages", s.sweepMessages},
	}
	for _, e := range entries {
		task := e.task
		name := e.name
		if _, err := s.cron.AddFunc(spec, func() { task(s.ctx) }); err != nil {
			s.logger.Printf("register %s sweep: %v", name, err)
		}
	}
	s.cron.Start()
}

// Stop signals the cron runner to exit and waits for any in-flight sweep
// to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) ttlSteps() []ttlStep {
	return []ttlStep{
		{store.InteractionPending, time.Duration(s.policy.TTLRequestToOffer)},
		{store.InteractionOffered, time.Duration(s.policy.TTLOfferToAccept)},
		{store.InteractionAccepted, time.Duration(s.policy.TTLAcceptToResult)},
		{store.InteractionDelivered, time.Duration(s.policy.TTLResultToVerify)},
		{store.InteractionVerified, time.Duration(s.policy.TTLVerifyToPay)},
		{store.InteractionDisputed, time.Duration(s.policy.TTLPayConfirm)},
	}
}

func (s *Scheduler) sweepTTL(ctx context.Context) {
	for _, step := range s.ttlSteps() {
		if step.ttl <= 0 {
			continue
		}
		n, err := s.engine.ExpireStale(ctx, step.status, step.ttl)
		if err != nil {
			s.logger.Printf("ttl sweep (%s): %v", step.status, err)
			continue
		}
		if n > 0 {
			s.logger.Printf("ttl sweep: expired %d interaction(s) in %s", n, step.status)
		}
	}
}

func (s *Scheduler) sweepHeartbeats(ctx context.Context) {
	n, err := s.registry.SweepStale(ctx)
	if err != nil {
		s.logger.Printf("heartbeat sweep: %v", err)
		return
	}
	if n > 0 {
		s.logger.Printf("heartbeat sweep: marked %d agent(s) unknown", n)
	}
}

func (s *Scheduler) sweepNonces(ctx context.Context) {
	n, err := s.repos.Nonces.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Printf("nonce gc: %v", err)
		return
	}
	if n > 0 {
		s.logger.Printf("nonce gc: removed %d expired nonce(s)", n)
	}
}

func (s *Scheduler) sweepMessages(ctx context.Context) {
	n, err := s.repos.Messages.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Printf("message gc: %v", err)
		return
	}
	if n > 0 {
		s.logger.Printf("message gc: removed %d expired message(s)", n)
	}
}
