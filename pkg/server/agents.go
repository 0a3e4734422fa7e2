package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aeep-network/aeep/pkg/apierr"
	"github.com/aeep-network/aeep/pkg/envelope"
	"github.com/aeep-network/aeep/pkg/identity"
	"github.com/aeep-network/aeep/pkg/store"
)

type capabilityRequest struct {
	Name     string          `json:"name"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type registerPayload struct {
	DisplayName        string              `json:"display_name,omitempty"`
	Description        string              `json:"description,omitempty"`
	Endpoint           string              `json:"endpoint,omitempty"`
	PaymentAddress     string              `json:"payment_address,omitempty"`
	PricingHint        string              `json:"pricing_hint,omitempty"`
	VerificationMethod string              `json:"verification_method"`
	KeyAgreement       string              `json:"key_agreement,omitempty"`
	Capabilities       []capabilityRequest `json:"capabilities,omitempty"`
}

func toCapabilityInputs(in []capabilityRequest) []identity.CapabilityInput {
	out := make([]identity.CapabilityInput, 0, len(in))
	for _, c := range in {
		out = append(out, identity.CapabilityInput{Name: c.Name, Metadata: c.Metadata})
	}
	return out
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req envelope.RegistrationBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.authenticate(r.Context(), &req.Envelope, req.PublicKey); err != nil {
		writeError(w, err)
		return
	}

	var p registerPayload
	if err := json.Unmarshal(req.Envelope.Payload, &p); err != nil {
		writeError(w, apierr.New(apierr.CodeMalformedEnvelope, "registration payload is not valid JSON"))
		return
	}

	agent, err := s.registry.Register(r.Context(), identity.RegisterInput{
		DID:                req.Envelope.From,
		DisplayName:        p.DisplayName,
		Description:        p.Description,
		Endpoint:           p.Endpoint,
		PaymentAddress:     p.PaymentAddress,
		PricingHint:        p.PricingHint,
		VerificationMethod: req.PublicKey,
		KeyAgreement:       p.KeyAgreement,
		Capabilities:       toCapabilityInputs(p.Capabilities),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if s.sync != nil {
		s.sync.NotifyAgentUpdated(agent)
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := s.discovery.DefaultPageSize
	if limit <= 0 {
		limit = 20
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	maxPage := s.discovery.MaxPageSize
	if maxPage <= 0 {
		maxPage = 100
	}
	if limit > maxPage {
		limit = maxPage
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			offset = n
		}
	}
	var minTrust float64
	if raw := q.Get("trust_min"); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			minTrust = f
		}
	}

	filter := store.DiscoveryFilter{
		Capability:   q.Get("capability"),
		MinTrust:     minTrust,
		Status:       store.DIDStatus(q.Get("status")),
		Availability: store.Availability(q.Get("availability")),
		Limit:        limit,
		Offset:       offset,
	}

	cards, err := s.registry.Discover(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": cards})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.repos.Agents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapAgentErr(err))
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	agent, err := s.repos.Agents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapAgentErr(err))
		return
	}
	var card store.AgentCard
	if err := json.Unmarshal(agent.AgentCardJSON, &card); err != nil {
		writeError(w, apierr.New(apierr.CodeStoreError, "stored agent card is malformed"))
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleGetDID(w http.ResponseWriter, r *http.Request) {
	agent, err := s.repos.Agents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapAgentErr(err))
		return
	}
	doc, err := agent.DIDDocument()
	if err != nil || doc == nil {
		writeError(w, apierr.New(apierr.CodeStoreError, "stored did document is malformed"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	agent, err := s.repos.Agents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapAgentErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       agent.Status,
		"availability": agent.Availability,
		"last_seen_at": agent.LastSeenAt,
	})
}

type updateRequest struct {
	Envelope envelope.Envelope `json:"envelope"`
}

type updatePayload struct {
	DisplayName    string              `json:"display_name,omitempty"`
	Description    string              `json:"description,omitempty"`
	Endpoint       string              `json:"endpoint,omitempty"`
	PaymentAddress string              `json:"payment_address,omitempty"`
	PricingHint    string              `json:"pricing_hint,omitempty"`
	Capabilities   []capabilityRequest `json:"capabilities,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	target, err := s.repos.Agents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapAgentErr(err))
		return
	}

	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sender, err := s.authenticate(r.Context(), &req.Envelope, "")
	if err != nil {
		writeError(w, err)
		return
	}
	if sender == nil || sender.DID != target.DID {
		writeError(w, apierr.New(apierr.CodeNotOwner, "only the owning agent may update this record"))
		return
	}

	var p updatePayload
	if err := json.Unmarshal(req.Envelope.Payload, &p); err != nil {
		writeError(w, apierr.New(apierr.CodeMalformedEnvelope, "update payload is not valid JSON"))
		return
	}

	updated, err := s.registry.Update(r.Context(), target.DID, identity.UpdateInput{
		DisplayName:    p.DisplayName,
		Description:    p.Description,
		Endpoint:       p.Endpoint,
		PaymentAddress: p.PaymentAddress,
		PricingHint:    p.PricingHint,
		Capabilities:   toCapabilityInputs(p.Capabilities),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if s.sync != nil {
		s.sync.NotifyAgentUpdated(updated)
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	target, err := s.repos.Agents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapAgentErr(err))
		return
	}

	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sender, err := s.authenticate(r.Context(), &req.Envelope, "")
	if err != nil {
		writeError(w, err)
		return
	}
	if sender == nil || sender.DID != target.DID {
		writeError(w, apierr.New(apierr.CodeNotOwner, "only the owning agent may deactivate this record"))
		return
	}

	if err := s.registry.Deactivate(r.Context(), target.DID); err != nil {
		writeError(w, err)
		return
	}
	if s.sync != nil {
		target.Status = store.DIDStatusDeactivated
		target.Availability = store.AvailabilityOffline
		s.sync.NotifyAgentUpdated(target)
	}
	w.WriteHeader(http.StatusNoContent)
}

type heartbeatPayload struct {
	Availability store.Availability `json:"availability"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	target, err := s.repos.Agents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapAgentErr(err))
		return
	}

	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sender, err := s.authenticate(r.Context(), &req.Envelope, "")
	if err != nil {
		writeError(w, err)
		return
	}
	if sender == nil || sender.DID != target.DID {
		writeError(w, apierr.New(apierr.CodeNotOwner, "only the owning agent may send its heartbeat"))
		return
	}

	var p heartbeatPayload
	if err := json.Unmarshal(req.Envelope.Payload, &p); err != nil {
		writeError(w, apierr.New(apierr.CodeMalformedEnvelope, "heartbeat payload is not valid JSON"))
		return
	}
	if p.Availability == "" {
		p.Availability = store.AvailabilityOnline
	}

	if err := s.registry.Heartbeat(r.Context(), target.DID, p.Availability); err != nil {
		writeError(w, err)
		return
	}
	if s.sync != nil {
		target.Availability = p.Availability
		s.sync.NotifyAgentUpdated(target)
	}
	w.WriteHeader(http.StatusNoContent)
}

func mapAgentErr(err error) error {
	if err == store.ErrAgentNotFound {
		return apierr.New(apierr.CodeAgentNotFound, "agent not found")
	}
	return err
}
