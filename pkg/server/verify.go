package server

import (
	"net/http"
	"strconv"

	"github.com/aeep-network/aeep/pkg/apierr"
	"github.com/aeep-network/aeep/pkg/merkle"
	"github.com/aeep-network/aeep/pkg/store"
)

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("interaction_hash")

	proof, err := s.repos.Proofs.GetByInteractionHash(r.Context(), hash)
	if err != nil {
		if err == store.ErrProofNotFound {
			writeError(w, apierr.New(apierr.CodeInteractionNotFound, "no anchored proof for this interaction hash"))
			return
		}
		writeError(w, err)
		return
	}
	batch, err := s.repos.Batches.GetByID(r.Context(), proof.BatchID)
	if err != nil {
		writeError(w, err)
		return
	}

	inclusionProof, err := merkle.ProofFromJSON(proof.ProofJSON)
	if err != nil {
		writeError(w, apierr.New(apierr.CodeStoreError, "stored merkle proof is malformed"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"interaction_hash": proof.InteractionHash,
		"leaf_hash":        proof.LeafHash,
		"proof":            inclusionProof,
		"batch": map[string]interface{}{
			"id":          batch.ID,
			"merkle_root": batch.MerkleRoot,
			"status":      batch.Status,
			"tx_hash":     batch.TxHash,
		},
	})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			offset = n
		}
	}

	batches, err := s.repos.Batches.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"batches": batches})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, apierr.New(apierr.CodeMalformedEnvelope, "batch id must be an integer"))
		return
	}

	batch, err := s.repos.Batches.GetByID(r.Context(), id)
	if err != nil {
		if err == store.ErrBatchNotFound {
			writeError(w, apierr.New(apierr.CodeBatchNotFound, "batch not found"))
			return
		}
		writeError(w, err)
		return
	}
	proofs, err := s.repos.Proofs.ListByBatch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"batch": batch, "proofs": proofs})
}
