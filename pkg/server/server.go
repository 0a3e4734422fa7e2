package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/aeep-network/aeep/pkg/apierr"
	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/envelope"
	"github.com/aeep-network/aeep/pkg/identity"
	"github.com/aeep-network/aeep/pkg/metrics"
	"github.com/aeep-network/aeep/pkg/negotiation"
	"github.com/aeep-network/aeep/pkg/realtimesync"
	"github.com/aeep-network/aeep/pkg/relayer"
	"github.com/aeep-network/aeep/pkg/router"
	"github.com/aeep-network/aeep/pkg/store"
)

// Version is the protocol version this server speaks, reported on /health.
const Version = "0.1.0"

// Server holds every dependency an HTTP handler needs. It has no
// business logic of its own beyond request parsing, authorization, and
// response shaping; everything else is delegated to the pkg/identity,
// pkg/envelope, pkg/negotiation, and pkg/router layers.
type Server struct {
	repos    *store.Repositories
	registry *identity.Registry
	pipeline *envelope.AuthPipeline
	engine   *negotiation.Engine
	msgs     *router.Router
	relayer  relayer.Relayer
	sync     *realtimesync.SyncService
	metrics  *metrics.Metrics
	logger   *log.Logger

	serverDID           string
	serverVerifyMethod  string
	serverKeyAgreement  string
	discovery           config.DiscoveryPolicy
	streamKeepAlive     time.Duration
	startedAt           time.Time
}

// Deps groups the constructor arguments for Server.
type Deps struct {
	Repos    *store.Repositories
	Registry *identity.Registry
	Pipeline *envelope.AuthPipeline
	Engine   *negotiation.Engine
	Router   *router.Router
	Relayer  relayer.Relayer
	Sync     *realtimesync.SyncService
	Metrics  *metrics.Metrics
	Logger   *log.Logger

	ServerDID          string
	ServerVerifyMethod string
	ServerKeyAgreement string
	Discovery          config.DiscoveryPolicy
	StreamKeepAlive    time.Duration
}

// New builds a Server from its dependencies.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[Server] ", log.LstdFlags)
	}
	keepAlive := d.StreamKeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &Server{
		repos:           d.Repos,
		registry:        d.Registry,
		pipeline:        d.Pipeline,
		engine:          d.Engine,
		msgs:            d.Router,
		relayer:         d.Relayer,
		sync:            d.Sync,
		metrics:         d.Metrics,
		logger:          logger,
		serverDID:          d.ServerDID,
		serverVerifyMethod: d.ServerVerifyMethod,
		serverKeyAgreement: d.ServerKeyAgreement,
		discovery:       d.Discovery,
		streamKeepAlive: keepAlive,
		startedAt:       time.Now().UTC(),
	}
}

// Handler builds the complete HTTP mux wrapped in CORS middleware.
func (s *Server) Handler(corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/agents", s.handleRegister)
	mux.HandleFunc("GET /api/v1/agents", s.handleDiscover)
	mux.HandleFunc("GET /api/v1/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("GET /api/v1/agents/{id}/card", s.handleGetCard)
	mux.HandleFunc("GET /api/v1/agents/{id}/did", s.handleGetDID)
	mux.HandleFunc("GET /api/v1/agents/{id}/status", s.handleGetStatus)
	mux.HandleFunc("PUT /api/v1/agents/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", s.handleDeactivate)
	mux.HandleFunc("POST /api/v1/agents/{id}/heartbeat", s.handleHeartbeat)

	mux.HandleFunc("POST /api/v1/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/v1/messages/{agent_id}", s.handlePoll)
	mux.HandleFunc("GET /api/v1/messages/{agent_id}/stream", s.handleStream)

	mux.HandleFunc("GET /api/v1/verify/{interaction_hash}", s.handleVerify)
	mux.HandleFunc("GET /api/v1/batches", s.handleListBatches)
	mux.HandleFunc("GET /api/v1/batches/{id}", s.handleGetBatch)

	mux.HandleFunc("GET /.well-known/did.json", s.handleServerDID)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metricsHandler())

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

func (s *Server) authenticate(ctx context.Context, env *envelope.Envelope, registrationPublicKey string) (*store.Agent, error) {
	agent, err := s.pipeline.Authenticate(ctx, env, registrationPublicKey)
	if s.metrics != nil {
		if err != nil {
			if apiErr, ok := apierr.As(err); ok {
				s.metrics.AuthRejections.WithLabelValues(apiErr.Code).Inc()
			}
		} else {
			s.metrics.EnvelopesAuthenticated.WithLabelValues(env.Type).Inc()
		}
	}
	return agent, err
}

func (s *Server) metricsHandler() http.Handler {
	if s.metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})
}
