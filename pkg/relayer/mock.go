package relayer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// MockRelayer satisfies Relayer without touching a chain, for local runs
// and tests. It remembers submitted roots so VerifyInclusion can give a
// meaningful answer without a real contract.
type MockRelayer struct {
	mu      sync.Mutex
	batches map[int64][32]byte
	nextID  int64
}

// NewMockRelayer builds an empty MockRelayer.
func NewMockRelayer() *MockRelayer {
	return &MockRelayer{batches: make(map[int64][32]byte)}
}

// SubmitBatch records the root under an incrementing id and returns a
// synthetic transaction hash.
func (m *MockRelayer) SubmitBatch(ctx context.Context, root [32]byte, count uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.batches[m.nextID] = root

	var randBytes [28]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		return "", fmt.Errorf("mock relayer: generate tx hash: %w", err)
	}
	return "0xmock" + hex.EncodeToString(randBytes[:]), nil
}

// VerifyInclusion always reports true once a batch id has been recorded;
// it does not recompute the Merkle path, leaving that to the caller's
// own merkle.VerifyProof when a real answer is needed.
func (m *MockRelayer) VerifyInclusion(ctx context.Context, batchID int64, leaf [32]byte, proof [][32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.batches[batchID]
	return ok, nil
}

// GetBalance reports a fixed synthetic balance.
func (m *MockRelayer) GetBalance(ctx context.Context) (string, error) {
	return "1000000000000000000", nil
}

// Health always succeeds.
func (m *MockRelayer) Health(ctx context.Context) error {
	return nil
}
