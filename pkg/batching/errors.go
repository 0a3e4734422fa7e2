// Package batching accumulates verified interaction hashes into
// Merkle-anchored batches, closing a batch when it reaches its size
// threshold or enough time has passed since the last close, then submitting
// the root through a relayer.
package batching

import "errors"

var (
	// ErrEmptyBatch is returned when a close is attempted with nothing
	// buffered.
	ErrEmptyBatch = errors.New("batching: no interactions buffered")
)
