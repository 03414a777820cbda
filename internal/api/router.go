// Package api exposes the HTTP surface named in spec.md §6: risk-profile
// mutation/read endpoints, read-only streaming introspection, agent scan
// triggers, a WebSocket bridge onto the streaming engine's event bus, and
// the observability endpoints (/metrics, /observability/health). Routing
// follows the teacher's generalised HTTP layer, rebuilt on chi per the
// example pool's consensus router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/marketwatch/fraudmesh/internal/agent"
	"github.com/marketwatch/fraudmesh/internal/featurestore"
	"github.com/marketwatch/fraudmesh/internal/graph"
	"github.com/marketwatch/fraudmesh/internal/orchestrator"
	"github.com/marketwatch/fraudmesh/internal/platform/logging"
	"github.com/marketwatch/fraudmesh/internal/platform/metrics"
	"github.com/marketwatch/fraudmesh/internal/riskprofile"
	"github.com/marketwatch/fraudmesh/internal/streaming"
)

// Server wires every component the API surface depends on, per the
// single-explicit-container convention in spec.md §9 — no package-level
// globals.
type Server struct {
	engine       *streaming.Engine
	store        *featurestore.Store
	graph        *graph.Graph
	riskEngine   *riskprofile.Engine
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Registry
	log          zerolog.Logger

	crossDomainAgent    *agent.Agent
	policyEvolutionAgent *agent.Agent

	healthChecks []HealthCheck
}

// HealthCheck reports a named component's degraded/healthy status for the
// /observability/health endpoint.
type HealthCheck func() (component string, healthy bool, detail string)

// NewServer constructs the API layer. Either agent handle may be nil if that
// scan endpoint is not wired in a given deployment.
func NewServer(
	engine *streaming.Engine,
	store *featurestore.Store,
	g *graph.Graph,
	riskEngine *riskprofile.Engine,
	orch *orchestrator.Orchestrator,
	reg *metrics.Registry,
	base zerolog.Logger,
	crossDomainAgent, policyEvolutionAgent *agent.Agent,
	healthChecks ...HealthCheck,
) *Server {
	return &Server{
		engine:               engine,
		store:                store,
		graph:                g,
		riskEngine:           riskEngine,
		orchestrator:         orch,
		metrics:              reg,
		log:                  logging.Component(base, "api"),
		crossDomainAgent:     crossDomainAgent,
		policyEvolutionAgent: policyEvolutionAgent,
		healthChecks:         healthChecks,
	}
}

// Router builds the chi router exposing every endpoint in spec.md §6.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.requestLogger)

	r.Route("/risk-profile", func(r chi.Router) {
		r.Post("/event", s.handlePostRiskEvent)
		r.Get("/{sellerId}/history", s.handleGetRiskHistory)
		r.Patch("/{sellerId}/override", s.handlePatchOverride)
	})

	r.Route("/streaming", func(r chi.Router) {
		r.Get("/topics", s.handleListTopics)
		r.Get("/consumer-groups", s.handleListConsumerGroups)
		r.Get("/feature-store/{entity}", s.handleGetFeatureStore)
		r.Get("/feature-store/{entity}/{group}", s.handleGetFeatureStore)
	})

	r.Route("/agents", func(r chi.Router) {
		r.Post("/cross-domain/scan", s.handleCrossDomainScan)
		r.Post("/policy-evolution/scan", s.handlePolicyEvolutionScan)
	})

	r.Route("/graph", func(r chi.Router) {
		r.Get("/{sellerId}/neighbors", s.handleGraphNeighbors)
		r.Get("/{sellerId}/investigate", s.handleGraphInvestigate)
	})

	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/observability/health", s.handleHealth)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	})
}
