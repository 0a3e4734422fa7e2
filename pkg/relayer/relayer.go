// Package relayer anchors Merkle batch roots on-chain. The batching
// service calls SubmitBatch to anchor a root and get back a transaction
// hash, and VerifyInclusion when reconciling still-submitted batches.
// Balance reporting feeds the health endpoint.
package relayer

import "context"

// Relayer anchors batch roots on-chain and answers inclusion queries for
// batch reconciliation and balance queries for the health endpoint. An
// EthereumRelayer and a
// MockRelayer both satisfy it.
type Relayer interface {
	// SubmitBatch anchors a Merkle root with its leaf count, returning the
	// chain transaction hash.
	SubmitBatch(ctx context.Context, root [32]byte, count uint64) (txHash string, err error)

	// VerifyInclusion checks that a leaf is covered by a previously
	// anchored batch's root, using the on-chain contract's own proof
	// verification rather than recomputing it locally.
	VerifyInclusion(ctx context.Context, batchID int64, leaf [32]byte, proof [][32]byte) (bool, error)

	// GetBalance reports the relayer's on-chain account balance, in wei
	// for the Ethereum relayer or a synthetic value for the mock.
	GetBalance(ctx context.Context) (string, error)

	// Health reports whether the relayer can currently reach its chain.
	Health(ctx context.Context) error
}
