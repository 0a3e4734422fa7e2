package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aeep-network/aeep/pkg/apierr"
	"github.com/aeep-network/aeep/pkg/canonical"
	"github.com/aeep-network/aeep/pkg/envelope"
	"github.com/aeep-network/aeep/pkg/negotiation"
	"github.com/aeep-network/aeep/pkg/store"
)

// transitionRef is the subset of a negotiation payload every transition
// message but `request` may carry to name the interaction it targets.
// When omitted the engine falls back to the sender's most recent
// interaction in the state the message type expects.
type transitionRef struct {
	InteractionID *uuid.UUID `json:"interaction_id,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apierr.New(apierr.CodeMalformedEnvelope, "could not read request body"))
		return
	}

	var env envelope.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, apierr.New(apierr.CodeMalformedEnvelope, "envelope is not valid JSON"))
		return
	}

	if _, err := s.authenticate(r.Context(), &env, ""); err != nil {
		writeError(w, err)
		return
	}

	if !envelope.IsNegotiation(env.Type) {
		result, err := s.msgs.Accept(r.Context(), body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"message_id":            result.MessageID,
			"recipient_availability": result.RecipientAvailability,
			"pushed":                result.Pushed,
		})
		return
	}

	interaction, err := s.dispatchNegotiation(r.Context(), &env, body)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.InteractionTransitions.WithLabelValues(string(interaction.Status)).Inc()
	}
	if s.sync != nil {
		s.sync.NotifyInteractionUpdated(interaction)
	}
	writeJSON(w, http.StatusOK, interaction)
}

// dispatchNegotiation routes a signed envelope's message type to the
// matching negotiation.Engine method, canonicalizing the whole envelope
// only for `request` (the interaction hash's input per the verify
// endpoint); every other type passes only its decoded typed payload.
func (s *Server) dispatchNegotiation(ctx context.Context, env *envelope.Envelope, raw []byte) (*store.Interaction, error) {
	var ref transitionRef
	_ = json.Unmarshal(env.Payload, &ref)

	switch env.Type {
	case envelope.TypeRequest:
		var p negotiation.RequestPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "request payload is malformed")
		}
		canonicalEnvelope, err := canonical.MarshalRaw(raw)
		if err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "envelope could not be canonicalized")
		}
		return s.engine.Request(ctx, env.From, env.To, canonicalEnvelope, p)

	case envelope.TypeOffer:
		var p negotiation.OfferPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "offer payload is malformed")
		}
		return s.engine.Offer(ctx, env.From, ref.InteractionID, p)

	case envelope.TypeAccept:
		var p negotiation.AcceptPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "accept payload is malformed")
		}
		return s.engine.Accept(ctx, env.From, ref.InteractionID, p)

	case envelope.TypeReject:
		var p negotiation.RejectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "reject payload is malformed")
		}
		return s.engine.Reject(ctx, env.From, ref.InteractionID, p)

	case envelope.TypeResult:
		var p negotiation.ResultPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "result payload is malformed")
		}
		return s.engine.Result(ctx, env.From, ref.InteractionID, p)

	case envelope.TypeVerify:
		var p negotiation.VerifyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "verify payload is malformed")
		}
		return s.engine.Verify(ctx, env.From, ref.InteractionID, p)

	case envelope.TypePayment:
		var p negotiation.PaymentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "payment payload is malformed")
		}
		return s.engine.Payment(ctx, env.From, ref.InteractionID, p)

	case envelope.TypePaymentFailed:
		var p negotiation.PaymentFailedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, apierr.New(apierr.CodeMalformedEnvelope, "payment-failed payload is malformed")
		}
		return s.engine.PaymentFailed(ctx, env.From, ref.InteractionID, p)

	default:
		return nil, apierr.New(apierr.CodeMalformedEnvelope, fmt.Sprintf("unsupported message type %q", env.Type))
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	did := r.URL.Query().Get("did")
	if did == "" {
		writeError(w, apierr.New(apierr.CodeMalformedEnvelope, "did query parameter is required"))
		return
	}
	if _, err := s.pipeline.LightweightCheck(r.Context(), agentID, did); err != nil {
		writeError(w, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	messages, err := s.msgs.Poll(r.Context(), did, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	did := r.URL.Query().Get("did")
	if did == "" {
		writeError(w, apierr.New(apierr.CodeMalformedEnvelope, "did query parameter is required"))
		return
	}
	if _, err := s.pipeline.LightweightCheck(r.Context(), agentID, did); err != nil {
		writeError(w, err)
		return
	}

	ch, unsubscribe, err := s.msgs.Subscribe(did)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apierr.New(apierr.CodeStoreError, "streaming unsupported by this connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

