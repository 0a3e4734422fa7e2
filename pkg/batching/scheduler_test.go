package batching

import (
	"context"
	"testing"
	"time"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/relayer"
)

func TestScheduler_StartStopIsIdempotent(t *testing.T) {
	c, repos := newTestCollector(t)
	policy := config.BatchPolicy{MaxSize: 2, MaxAge: config.Duration(time.Hour), MinSize: 1, TickerEvery: config.Duration(50 * time.Millisecond)}
	s := NewScheduler(c, repos, relayer.NewMockRelayer(), policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx) // second call must be a no-op, not a second goroutine

	time.Sleep(120 * time.Millisecond)
	s.Stop()
	s.Stop() // second call must also be a no-op
}
