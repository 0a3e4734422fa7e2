// Package server wires the negotiation engine, identity registry, message
// router, and batching/relayer layers onto the HTTP surface described by
// the protocol: agent lifecycle, signed-envelope messaging, Merkle
// verification, and health/discovery reads.
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/aeep-network/aeep/pkg/apierr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] encode response: %v", err)
	}
}

// writeError maps err onto the protocol's typed error envelope. An
// *apierr.Error carries its own HTTP status and code; anything else is
// folded into an opaque internal error so store/driver failures never
// leak implementation detail to a caller.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierr.As(err); ok {
		writeJSON(w, apiErr.HTTPStatus, apiErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, apierr.New(apierr.CodeStoreError, "internal server error"))
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apierr.New(apierr.CodeMalformedEnvelope, "request body is not valid JSON: "+err.Error())
	}
	return nil
}
