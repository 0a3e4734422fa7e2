package batching

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/merkle"
	"github.com/aeep-network/aeep/pkg/metrics"
	"github.com/aeep-network/aeep/pkg/relayer"
	"github.com/aeep-network/aeep/pkg/store"
)

// Collector holds the in-memory ordered buffer of verified interaction
// hashes and closes it into a Merkle-anchored batch once a size or age
// threshold is crossed. It is the single mutex-guarded piece of mutable
// state in the batching service; the buffer is touched only from Enqueue
// and Close, both of which take the lock.
type Collector struct {
	mu          sync.Mutex
	buffer      []string
	lastBatchAt time.Time

	repos   *store.Repositories
	relayer relayer.Relayer
	policy  config.BatchPolicy
	logger  *log.Logger
	now     func() time.Time
	metrics *metrics.Metrics
}

// WithMetrics attaches a Metrics bundle for the buffer-size gauge and
// submit/fail counters. Optional; a nil Collector.metrics skips recording.
func (c *Collector) WithMetrics(m *metrics.Metrics) *Collector {
	c.metrics = m
	return c
}

// NewCollector builds a Collector against the given repositories and
// relayer. Pending interactions left over from a previous process (no
// batch_id, already verified or completed) are loaded back into the
// buffer, oldest first and at most 2*MaxSize of them; any beyond that
// stay unanchored in the store and are not reloaded by this call.
func NewCollector(ctx context.Context, repos *store.Repositories, rel relayer.Relayer, policy config.BatchPolicy, logger *log.Logger) (*Collector, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[Batching] ", log.LstdFlags)
	}
	c := &Collector{
		repos:       repos,
		relayer:     rel,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
		lastBatchAt: time.Now().UTC(),
	}

	unanchored, err := repos.Interactions.ListUnanchored(ctx, policy.MaxSize*2)
	if err != nil {
		return nil, fmt.Errorf("batching: recover unanchored interactions: %w", err)
	}
	for _, i := range unanchored {
		c.buffer = append(c.buffer, i.InteractionHash)
	}
	if len(unanchored) > 0 {
		logger.Printf("recovered %d unanchored interaction hash(es) into the batch buffer", len(unanchored))
	}
	return c, nil
}

// Enqueue appends an interaction hash to the buffer and closes the batch
// immediately if the size threshold is now met. It satisfies
// negotiation.BatchEnqueuer.
func (c *Collector) Enqueue(ctx context.Context, interactionHash string) error {
	c.mu.Lock()
	c.buffer = append(c.buffer, interactionHash)
	shouldClose := c.policy.AutoCloseOnSize && len(c.buffer) >= c.policy.MaxSize
	bufLen := len(c.buffer)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.BatchBufferSize.Set(float64(bufLen))
	}

	if shouldClose {
		if _, err := c.Close(ctx); err != nil {
			return fmt.Errorf("batching: close on size threshold: %w", err)
		}
	}
	return nil
}

// BufferLen reports the current buffer length, for health reporting.
func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// DueByAge reports whether the time trigger should fire: the buffer is
// non-empty, hit its minimum size, and has waited at least MaxAge since
// the last close.
func (c *Collector) DueByAge() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.policy.AutoCloseOnAge || len(c.buffer) < c.policy.MinSize {
		return false
	}
	return c.now().Sub(c.lastBatchAt) >= time.Duration(c.policy.MaxAge)
}

// Close drains the buffer, builds its Merkle tree, and submits the root
// through the relayer. On any failure after the buffer has been drained,
// the hashes are re-prepended so a later call retries them — a hash is
// never abandoned. Returns (nil, ErrEmptyBatch) when there is nothing to
// close.
func (c *Collector) Close(ctx context.Context) (*store.Batch, error) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return nil, ErrEmptyBatch
	}
	hashes := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	batch, err := c.submit(ctx, hashes)
	if err != nil {
		c.mu.Lock()
		c.buffer = append(hashes, c.buffer...)
		bufLen := len(c.buffer)
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.BatchesFailed.Inc()
			c.metrics.BatchBufferSize.Set(float64(bufLen))
		}
		return nil, err
	}

	c.mu.Lock()
	c.lastBatchAt = c.now().UTC()
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.BatchesSubmitted.Inc()
		c.metrics.BatchBufferSize.Set(0)
	}
	return batch, nil
}

// submit builds the Merkle tree and submits its root to the relayer before
// persisting anything. Only a relayer-confirmed batch is ever written to
// the store, so a failed attempt leaves no batch row, no proof rows, and
// no stamped interactions behind for a later retry to collide with.
func (c *Collector) submit(ctx context.Context, hashes []string) (*store.Batch, error) {
	leaves := make([][]byte, len(hashes))
	for i, h := range hashes {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("batching: decode interaction hash %q: %w", h, err)
		}
		leaves[i] = raw
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("batching: build merkle tree: %w", err)
	}
	root := tree.Root()

	var rootArr [32]byte
	copy(rootArr[:], root)
	submitStart := c.now()
	txHash, err := c.relayer.SubmitBatch(ctx, rootArr, uint64(len(hashes)))
	if c.metrics != nil {
		c.metrics.BatchSubmitLatency.Observe(c.now().Sub(submitStart).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("batching: submit batch to relayer: %w", err)
	}

	now := c.now().UTC()
	batch := &store.Batch{
		MerkleRoot:       tree.RootHex(),
		InteractionCount: len(hashes),
		Status:           store.BatchSubmitted,
		TxHash:           sql.NullString{String: txHash, Valid: txHash != ""},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	id, err := c.repos.Batches.Create(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("batching: persist batch: %w", err)
	}
	batch.ID = id

	for i, h := range hashes {
		proof, err := tree.GenerateProofByInput(leaves[i])
		if err != nil {
			c.logger.Printf("batch %d: generate proof for %s: %v", id, h, err)
			continue
		}
		proofJSON, err := json.Marshal(proof.Path)
		if err != nil {
			c.logger.Printf("batch %d: marshal proof for %s: %v", id, h, err)
			continue
		}
		if err := c.repos.Proofs.Create(ctx, &store.MerkleProofRecord{
			InteractionHash: h,
			BatchID:         id,
			LeafHash:        proof.LeafHash,
			ProofJSON:       proofJSON,
			CreatedAt:       now,
		}); err != nil {
			c.logger.Printf("batch %d: persist proof for %s: %v", id, h, err)
		}
	}

	for _, h := range hashes {
		if err := c.repos.Interactions.SetBatchIDByHash(ctx, h, id); err != nil {
			c.logger.Printf("batch %d: stamp batch id for %s: %v", id, h, err)
		}
	}

	// Both relayer implementations wait for the submission to be mined
	// before returning, so a batch is already final by this point. The
	// still-submitted case handled by the scheduler's reconcile sweep is
	// recovery after a crash between batch creation and confirmation.
	if err := c.repos.Batches.MarkConfirmed(ctx, id, c.now().UTC()); err != nil {
		c.logger.Printf("batch %d: mark confirmed: %v", id, err)
	} else {
		batch.Status = store.BatchConfirmed
	}

	c.logger.Printf("batch %d submitted: %d interactions, root %s, tx %s", id, len(hashes), batch.MerkleRoot, txHash)
	return batch, nil
}
