// Package store: sentinel errors for repository operations, returned
// explicitly instead of ambiguous (nil, nil) results.
package store

import "errors"

// Sentinel errors for store operations.
var (
	ErrNotFound = errors.New("entity not found")

	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentExists        = errors.New("agent already exists")
	ErrCapabilityNotFound = errors.New("capability not found")

	ErrInteractionNotFound = errors.New("interaction not found")
	ErrIdempotencyExists   = errors.New("idempotency key already used")
	ErrNoTransition        = errors.New("no row matched the expected status for this transition")

	ErrMessageNotFound = errors.New("message not found")

	ErrNonceReused = errors.New("nonce already used")

	ErrBatchNotFound = errors.New("batch not found")
	ErrProofNotFound = errors.New("merkle proof not found")
)
