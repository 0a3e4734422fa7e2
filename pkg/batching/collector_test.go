package batching

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/relayer"
	"github.com/aeep-network/aeep/pkg/store"
)

func newTestCollector(t *testing.T) (*Collector, *store.Repositories) {
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

	policy := config.BatchPolicy{MaxSize: 2, MaxAge: config.Duration(time.Hour), MinSize: 1, TickerEvery: config.Duration(time.Minute), AutoCloseOnSize: true, AutoCloseOnAge: true}
	c, err := NewCollector(context.Background(), repos, relayer.NewMockRelayer(), policy, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	return c, repos
}

func TestCollector_CloseOnSizeThreshold(t *testing.T) {
	c, _ := newTestCollector(t)
	ctx := context.Background()

	if err := c.Enqueue(ctx, randomHash(t)); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	if c.BufferLen() != 1 {
		t.Fatalf("expected buffer len 1, got %d", c.BufferLen())
	}

	if err := c.Enqueue(ctx, randomHash(t)); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}
	if c.BufferLen() != 0 {
		t.Errorf("expected buffer drained after reaching size threshold, got %d", c.BufferLen())
	}
}

func TestCollector_CloseEmptyReturnsErrEmptyBatch(t *testing.T) {
	c, _ := newTestCollector(t)
	if _, err := c.Close(context.Background()); err != ErrEmptyBatch {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestCollector_DueByAgeRespectsMinSize(t *testing.T) {
	c, _ := newTestCollector(t)
	c.policy.MaxAge = config.Duration(0)
	if c.DueByAge() {
		t.Error("expected not due with empty buffer regardless of age")
	}
}

func randomHash(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("generate random hash: %v", err)
	}
	return hex.EncodeToString(buf)
}
