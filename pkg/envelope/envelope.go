// Package envelope defines the signed unit of communication between
// agents and the authentication pipeline every write endpoint runs it
// through before any handler sees it.
package envelope

import (
	"encoding/json"
	"time"
)

// Message types carried in Envelope.Type. Everything but heartbeat also
// drives a negotiation.Engine transition.
const (
	TypeRequest        = "x811/request"
	TypeOffer          = "x811/offer"
	TypeAccept         = "x811/accept"
	TypeReject         = "x811/reject"
	TypeResult         = "x811/result"
	TypeVerify         = "x811/verify"
	TypePayment        = "x811/payment"
	TypePaymentFailed  = "x811/payment-failed"
	TypeHeartbeat      = "x811/heartbeat"
)

// IsNegotiation reports whether a message type drives the negotiation
// state machine rather than being forwarded as a plain queued message.
func IsNegotiation(msgType string) bool {
	switch msgType {
	case TypeRequest, TypeOffer, TypeAccept, TypeReject, TypeResult, TypeVerify, TypePayment, TypePaymentFailed:
		return true
	default:
		return false
	}
}

// Envelope is the signed unit of communication. Signature covers the
// canonical JSON of every field except Signature itself.
type Envelope struct {
	Version   int             `json:"version"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Created   time.Time       `json:"created"`
	Expires   *time.Time      `json:"expires,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Nonce     string          `json:"nonce"`
	Signature string          `json:"signature,omitempty"`
}

// RegistrationBody wraps an envelope carrying a `register` payload with
// the out-of-band material needed before the sender has a stored DID
// document: the DID document itself and the raw public key used to
// verify this very envelope's signature.
type RegistrationBody struct {
	Envelope    Envelope        `json:"envelope"`
	DIDDocument json.RawMessage `json:"did_document"`
	PublicKey   string          `json:"public_key"` // multibase Ed25519 public key
}

// signableJSON returns the envelope's canonical JSON with the signature
// field omitted, exactly as required for both signing and verification.
func (e Envelope) signableJSON() (map[string]interface{}, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "signature")
	return m, nil
}
