// Package apierr defines the typed protocol error taxonomy: every error a
// handler can return to a caller carries a stable code, a human message,
// and the HTTP status the server maps it to.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed protocol error. It implements the standard error
// interface so it composes with fmt.Errorf("%w: ...") wrapping elsewhere,
// while still carrying the structured fields the HTTP layer needs.
type Error struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	HTTPStatus int         `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an Error for the given code, looking up its HTTP status
// from the taxonomy table. Codes not present in the table default to 500.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: statusFor(code)}
}

// Newf is New with Printf-style message formatting.
func Newf(code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithDetails attaches structured detail data to the error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Identity errors
const (
	CodeDIDNotFound       = "DID_NOT_FOUND"
	CodeDIDRevoked        = "DID_REVOKED"
	CodeDIDDeactivated    = "DID_DEACTIVATED"
	CodeInvalidDIDFormat  = "INVALID_DID_FORMAT"
)

// Authentication errors
const (
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeNonceReused       = "NONCE_REUSED"
	CodeClockSkew         = "CLOCK_SKEW"
	CodeMalformedEnvelope = "MALFORMED_ENVELOPE"
)

// Authorization errors
const (
	CodeNotOwner   = "NOT_OWNER"
	CodeWrongRole  = "WRONG_ROLE"
)

// Registry errors
const (
	CodeAgentExists      = "AGENT_EXISTS"
	CodeAgentNotFound    = "AGENT_NOT_FOUND"
	CodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
)

// State machine errors
const (
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeInteractionNotFound = "INTERACTION_NOT_FOUND"
	CodeBatchNotFound       = "BATCH_NOT_FOUND"
)

// Negotiation integrity errors
const (
	CodeOfferHashMismatch    = "OFFER_HASH_MISMATCH"
	CodeInvalidFee           = "INVALID_FEE"
	CodeInvalidTotal         = "INVALID_TOTAL"
	CodeBudgetExceeded       = "BUDGET_EXCEEDED"
	CodeAmountMismatch       = "AMOUNT_MISMATCH"
	CodeMissingResultHash    = "MISSING_RESULT_HASH"
	CodeMissingIdempotency   = "MISSING_IDEMPOTENCY_KEY"
	CodeProviderNotFound     = "PROVIDER_NOT_FOUND"
)

// Resource limit errors
const (
	CodeConnectionLimit = "CONNECTION_LIMIT"
	CodeRateLimited     = "RATE_LIMITED"
)

// Internal errors
const (
	CodeBatchInconsistency = "BATCH_INCONSISTENCY"
	CodeStoreError         = "STORE_ERROR"
)

var httpStatus = map[string]int{
	CodeDIDNotFound:      http.StatusNotFound,
	CodeDIDRevoked:       http.StatusForbidden,
	CodeDIDDeactivated:   http.StatusForbidden,
	CodeInvalidDIDFormat: http.StatusBadRequest,

	CodeInvalidSignature:  http.StatusUnauthorized,
	CodeNonceReused:       http.StatusUnauthorized,
	CodeClockSkew:         http.StatusBadRequest,
	CodeMalformedEnvelope: http.StatusBadRequest,

	CodeNotOwner:  http.StatusForbidden,
	CodeWrongRole: http.StatusForbidden,

	CodeAgentExists:       http.StatusConflict,
	CodeAgentNotFound:     http.StatusNotFound,
	CodeRecipientNotFound: http.StatusNotFound,

	CodeInvalidTransition:   http.StatusBadRequest,
	CodeInteractionNotFound: http.StatusNotFound,
	CodeBatchNotFound:       http.StatusNotFound,

	CodeOfferHashMismatch:  http.StatusBadRequest,
	CodeInvalidFee:         http.StatusBadRequest,
	CodeInvalidTotal:       http.StatusBadRequest,
	CodeBudgetExceeded:     http.StatusBadRequest,
	CodeAmountMismatch:     http.StatusBadRequest,
	CodeMissingResultHash:  http.StatusBadRequest,
	CodeMissingIdempotency: http.StatusBadRequest,
	CodeProviderNotFound:   http.StatusBadRequest,

	CodeConnectionLimit: http.StatusTooManyRequests,
	CodeRateLimited:     http.StatusTooManyRequests,

	CodeBatchInconsistency: http.StatusInternalServerError,
	CodeStoreError:         http.StatusInternalServerError,
}

func statusFor(code string) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// As extracts an *Error from err, if it (or something it wraps) is one.
func As(err error) (*Error, bool) {
	var apiErr *Error
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
