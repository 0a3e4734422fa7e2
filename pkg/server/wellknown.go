package server

import (
	"net/http"
	"time"

	"github.com/aeep-network/aeep/pkg/store"
)

// handleServerDID publishes the server's own DID document: its did:key
// identifier, the matching Ed25519 verification method, and the
// key-agreement field, which is empty unless Deps supplied one.
func (s *Server) handleServerDID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, store.DIDDocument{
		ID:                 s.serverDID,
		VerificationMethod: s.serverVerifyMethod,
		KeyAgreement:       s.serverKeyAgreement,
	})
}

type healthResponse struct {
	Status               string `json:"status"`
	Version              string `json:"version"`
	AgentsCount          int64  `json:"agents_count"`
	BatchesCount         int64  `json:"batches_count"`
	PendingInteractions  int64  `json:"pending_interactions"`
	RelayerBalance       string `json:"relayer_balance"`
	UptimeSeconds        int64  `json:"uptime_seconds"`
}

// handleHealth reports the server's liveness plus a handful of headline
// counts, so operators and the `relayer` balance-draining alert can poll
// a single cheap endpoint instead of querying the store directly.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := healthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}

	if n, err := s.repos.Agents.Count(ctx); err == nil {
		resp.AgentsCount = n
	}
	if n, err := s.repos.Batches.Count(ctx); err == nil {
		resp.BatchesCount = n
	}
	if n, err := s.repos.Interactions.CountActive(ctx); err == nil {
		resp.PendingInteractions = n
	}
	if s.relayer != nil {
		if balance, err := s.relayer.GetBalance(ctx); err == nil {
			resp.RelayerBalance = balance
		} else {
			resp.RelayerBalance = "unavailable"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
