package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/identity"
	"github.com/aeep-network/aeep/pkg/negotiation"
	"github.com/aeep-network/aeep/pkg/store"
	"github.com/aeep-network/aeep/pkg/trust"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	connStr := os.Getenv("AEEP_TEST_DB")
	if connStr == "" {
		t.Skip("AEEP_TEST_DB not configured")
	}
	cfg := &config.Config{DatabaseURL: connStr, DatabaseMaxConns: 5, DatabaseMinConns: 1}
	client, err := store.NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	repos := store.NewRepositories(client)

	policy := config.DefaultPolicyConfig()
	scorer := trust.NewScorer(policy.Trust)
	engine := negotiation.NewEngine(repos, scorer, noopEnqueuer{}, policy.Negotiation)
	registry := identity.NewRegistry(client, repos, scorer, time.Hour)

	policy.Negotiation.SweepInterval = config.Duration(20 * time.Millisecond)
	return New(engine, registry, repos, policy.Negotiation, nil)
}

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(ctx context.Context, hash string) error { return nil }

func TestScheduler_StartStopIsClean(t *testing.T) {
	s := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	time.Sleep(80 * time.Millisecond)
	s.Stop()
}
