// Package negotiation implements the ten-state interaction state machine:
// one handler per signed message type, each enforcing the authorization,
// budget, fee, integrity-hash and idempotency invariants of its transition
// before committing it to the store.
package negotiation

import "encoding/json"

// RequestPayload is the body of a `request` message.
type RequestPayload struct {
	TaskType         string          `json:"task_type"`
	Parameters       json.RawMessage `json:"parameters,omitempty"`
	MaxBudget        float64         `json:"max_budget"`
	Currency         string          `json:"currency"`
	DeadlineSeconds  int64           `json:"deadline"`
	AcceptancePolicy string          `json:"acceptance_policy,omitempty"`
	IdempotencyKey   string          `json:"idempotency_key"`
}

// OfferPayload is the body of an `offer` message.
type OfferPayload struct {
	Price        float64 `json:"price,string"`
	ProtocolFee  float64 `json:"protocol_fee,string"`
	TotalCost    float64 `json:"total_cost,string"`
	Currency     string  `json:"currency,omitempty"`
	DeliveryETA  int64   `json:"delivery_eta,omitempty"`
}

// AcceptPayload is the body of an `accept` message.
type AcceptPayload struct {
	OfferHash string `json:"offer_hash"`
}

// RejectPayload is the body of a `reject` message.
type RejectPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ResultPayload is the body of a `result` message.
type ResultPayload struct {
	ResultHash string          `json:"result_hash"`
	ResultData json.RawMessage `json:"result_data,omitempty"`
}

// VerifyPayload is the body of a `verify` message.
type VerifyPayload struct {
	ResultHash  string `json:"result_hash,omitempty"`
	Verified    bool   `json:"verified"`
	DisputeCode string `json:"dispute_code,omitempty"`
}

// PaymentPayload is the body of a `payment` message.
type PaymentPayload struct {
	TxHash string  `json:"tx_hash"`
	Amount float64 `json:"amount"`
}

// PaymentFailedPayload is the body of a `payment-failed` message.
type PaymentFailedPayload struct {
	Reason string `json:"reason,omitempty"`
}
