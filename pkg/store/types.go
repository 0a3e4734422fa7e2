// Package store provides typed, SQL-backed access to every persistent
// entity in the protocol: agents, capabilities, interactions, messages,
// nonces, batches and Merkle proofs. It maps directly onto the schema in
// migrations/001_initial_schema.sql.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// AGENT / DID TYPES
// ============================================================================

// DIDStatus is the lifecycle state of a DID.
type DIDStatus string

const (
	DIDStatusActive      DIDStatus = "active"
	DIDStatusRevoked     DIDStatus = "revoked"
	DIDStatusDeactivated DIDStatus = "deactivated"
)

// Availability is an agent's self-reported reachability.
type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityBusy    Availability = "busy"
	AvailabilityOffline Availability = "offline"
	AvailabilityUnknown Availability = "unknown"
)

// DIDDocument is the stored representation of an agent's public-key
// material, encoded as multibase strings ready for wire transport.
type DIDDocument struct {
	ID                 string `json:"id"`
	VerificationMethod string `json:"verification_method"` // multibase Ed25519 public key
	KeyAgreement       string `json:"key_agreement"`       // multibase X25519 public key
}

// AgentCard is the flat, externally-facing summary of an agent used by
// discovery responses and the `/card` endpoint.
type AgentCard struct {
	ID           string       `json:"id"`
	DID          string       `json:"did"`
	Name         string       `json:"name,omitempty"`
	TrustScore   float64      `json:"trust_score"`
	Capabilities []string     `json:"capabilities"`
	PricingHint  string       `json:"pricing_hint,omitempty"`
	Status       DIDStatus    `json:"status"`
	Availability Availability `json:"availability"`
	LastSeenAt   time.Time    `json:"last_seen_at"`
}

// Agent owns exactly one DID.
type Agent struct {
	ID               string       `db:"id" json:"id"`
	DID              string       `db:"did" json:"did"`
	Status           DIDStatus    `db:"status" json:"status"`
	Availability     Availability `db:"availability" json:"availability"`
	LastSeenAt       time.Time    `db:"last_seen_at" json:"last_seen_at"`
	DisplayName      string       `db:"display_name" json:"display_name"`
	Description      string       `db:"description" json:"description"`
	Endpoint         string       `db:"endpoint" json:"endpoint"`
	PaymentAddress   string       `db:"payment_address" json:"payment_address"`
	TrustScore       float64      `db:"trust_score" json:"trust_score"`
	InteractionCount int64        `db:"interaction_count" json:"interaction_count"`
	SuccessfulCount  int64        `db:"successful_count" json:"successful_count"`
	FailedCount      int64        `db:"failed_count" json:"failed_count"`
	DisputeCount     int64        `db:"dispute_count" json:"dispute_count"`
	DIDDocumentJSON  []byte       `db:"did_document" json:"-"`
	AgentCardJSON    []byte       `db:"agent_card" json:"-"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// DIDDocument unmarshals the agent's stored DID document.
func (a *Agent) DIDDocument() (*DIDDocument, error) {
	if len(a.DIDDocumentJSON) == 0 {
		return nil, nil
	}
	var doc DIDDocument
	if err := json.Unmarshal(a.DIDDocumentJSON, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Capability is a named service an agent offers.
type Capability struct {
	AgentID     string          `db:"agent_id" json:"agent_id"`
	Name        string          `db:"name" json:"name"`
	MetadataRaw json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// ============================================================================
// INTERACTION TYPES
// ============================================================================

// InteractionStatus is a node in the negotiation state graph.
type InteractionStatus string

const (
	InteractionPending   InteractionStatus = "pending"
	InteractionOffered   InteractionStatus = "offered"
	InteractionAccepted  InteractionStatus = "accepted"
	InteractionDelivered InteractionStatus = "delivered"
	InteractionVerified  InteractionStatus = "verified"
	InteractionCompleted InteractionStatus = "completed"
	InteractionExpired   InteractionStatus = "expired"
	InteractionRejected  InteractionStatus = "rejected"
	InteractionDisputed  InteractionStatus = "disputed"
	InteractionFailed    InteractionStatus = "failed"
)

// IsTerminal reports whether the status is one a row can never leave.
func (s InteractionStatus) IsTerminal() bool {
	switch s {
	case InteractionCompleted, InteractionExpired, InteractionRejected, InteractionFailed:
		return true
	default:
		return false
	}
}

// Outcome records why an interaction reached its terminal status.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeRejected Outcome = "rejected"
	OutcomeDispute  Outcome = "dispute"
)

// Interaction is the unit the negotiation machine drives.
type Interaction struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	InteractionHash string            `db:"interaction_hash" json:"interaction_hash"` // hex SHA-256
	InitiatorDID    string            `db:"initiator_did" json:"initiator_did"`
	ProviderDID     string            `db:"provider_did" json:"provider_did"`
	Capability      string            `db:"capability" json:"capability"`
	Status          InteractionStatus `db:"status" json:"status"`
	Outcome         sql.NullString    `db:"outcome" json:"outcome,omitempty"`
	PaymentTxHash   sql.NullString    `db:"payment_tx_hash" json:"payment_tx_hash,omitempty"`
	PaymentAmount   sql.NullFloat64   `db:"payment_amount" json:"payment_amount,omitempty"`
	BatchID         sql.NullInt64     `db:"batch_id" json:"batch_id,omitempty"`
	RequestJSON     json.RawMessage   `db:"request_payload" json:"request_payload,omitempty"`
	OfferJSON       json.RawMessage   `db:"offer_payload" json:"offer_payload,omitempty"`
	ResultJSON      json.RawMessage   `db:"result_payload" json:"result_payload,omitempty"`
	IdempotencyKey  string            `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// ============================================================================
// MESSAGE / ENVELOPE TYPES
// ============================================================================

// MessageStatus is the delivery state of a queued envelope.
type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// Message is a stored envelope awaiting delivery.
type Message struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	Type         string         `db:"type" json:"type"`
	From         string         `db:"from_did" json:"from"`
	To           string         `db:"to_did" json:"to"`
	EnvelopeJSON []byte         `db:"envelope" json:"envelope"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt    time.Time      `db:"expires_at" json:"expires_at"`
	Status       MessageStatus  `db:"status" json:"status"`
	DeliveredAt  sql.NullTime   `db:"delivered_at" json:"delivered_at,omitempty"`
	RetryCount   int            `db:"retry_count" json:"retry_count"`
	LastError    sql.NullString `db:"last_error" json:"last_error,omitempty"`
}

// ============================================================================
// NONCE TYPES
// ============================================================================

// NonceRecord enforces single-use of an envelope nonce within the replay
// window.
type NonceRecord struct {
	Nonce     string    `db:"nonce" json:"nonce"`
	DID       string    `db:"did" json:"did"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// ============================================================================
// BATCH / PROOF TYPES
// ============================================================================

// BatchStatus is the lifecycle of an anchoring batch.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchSubmitted BatchStatus = "submitted"
	BatchConfirmed BatchStatus = "confirmed"
	BatchFailed    BatchStatus = "failed"
)

// Batch is an anchoring unit: a Merkle root over a set of interaction
// hashes, submitted to the relayer as a single transaction.
type Batch struct {
	ID               int64          `db:"id" json:"id"`
	MerkleRoot       string         `db:"merkle_root" json:"merkle_root"` // hex
	InteractionCount int            `db:"interaction_count" json:"interaction_count"`
	TxHash           sql.NullString `db:"tx_hash" json:"tx_hash,omitempty"`
	Status           BatchStatus    `db:"status" json:"status"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// MerkleProofRecord is the persisted inclusion proof for one interaction
// hash within a batch.
type MerkleProofRecord struct {
	InteractionHash string          `db:"interaction_hash" json:"interaction_hash"`
	BatchID         int64           `db:"batch_id" json:"batch_id"`
	LeafHash        string          `db:"leaf_hash" json:"leaf_hash"` // hex
	ProofJSON       json.RawMessage `db:"proof" json:"proof"`         // JSON array of merkle.ProofNode
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
