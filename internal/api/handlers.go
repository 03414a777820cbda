package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marketwatch/fraudmesh/internal/agent"
	"github.com/marketwatch/fraudmesh/internal/featurestore"
	"github.com/marketwatch/fraudmesh/internal/platform/errs"
	"github.com/marketwatch/fraudmesh/internal/riskprofile"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates the taxonomy code to its HTTP status, per spec.md §7.
func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	writeJSON(w, errs.HTTPStatus(code), map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	})
}

type riskEventRequest struct {
	SellerID  string         `json:"sellerId"`
	Domain    string         `json:"domain"`
	EventType string         `json:"eventType"`
	RiskScore float64        `json:"riskScore"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// handlePostRiskEvent implements POST /risk-profile/event.
func (s *Server) handlePostRiskEvent(w http.ResponseWriter, r *http.Request) {
	var req riskEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.NewInvalidArgument("malformed request body: %v", err))
		return
	}

	profile, err := s.riskEngine.EmitRiskEvent(req.SellerID, riskprofile.Domain(req.Domain), req.EventType, req.RiskScore, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleGetRiskHistory implements GET /risk-profile/:sellerId/history.
func (s *Server) handleGetRiskHistory(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	history := s.riskEngine.GetHistory(sellerID)
	writeJSON(w, http.StatusOK, history)
}

type overrideRequest struct {
	Tier         string `json:"tier"`
	Reason       string `json:"reason"`
	OverriddenBy string `json:"overriddenBy"`
}

// handlePatchOverride implements PATCH /risk-profile/:sellerId/override. An
// empty tier clears any active override.
func (s *Server) handlePatchOverride(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.NewInvalidArgument("malformed request body: %v", err))
		return
	}

	var override *riskprofile.Override
	if req.Tier != "" {
		override = &riskprofile.Override{
			Tier:         riskprofile.Tier(req.Tier),
			Reason:       req.Reason,
			OverriddenBy: req.OverriddenBy,
		}
	}

	profile, err := s.riskEngine.SetOverride(sellerID, override)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleListTopics implements GET /streaming/topics.
func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Topics())
}

// handleListConsumerGroups implements GET /streaming/consumer-groups.
func (s *Server) handleListConsumerGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ConsumerGroups())
}

// handleGetFeatureStore implements
// GET /streaming/feature-store/:entity[/:group].
func (s *Server) handleGetFeatureStore(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	groupParam := chi.URLParam(r, "group")

	if groupParam != "" {
		payload, ok := s.store.GetFeatures(entity, featurestore.Group(groupParam))
		if !ok {
			writeError(w, errs.NewNotFound("no fresh features for %s/%s", entity, groupParam))
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	groups := []featurestore.Group{
		featurestore.GroupSellerProfile,
		featurestore.GroupTransactionVelocity,
		featurestore.GroupDeviceTrust,
		featurestore.GroupNetworkRisk,
	}
	out := make(map[string]map[string]any, len(groups))
	for _, g := range groups {
		if payload, ok := s.store.GetFeatures(entity, g); ok {
			out[string(g)] = payload
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCrossDomainScan implements POST /agents/cross-domain/scan: triggers a
// single autonomous cycle synchronously, per spec.md §4.I.
func (s *Server) handleCrossDomainScan(w http.ResponseWriter, r *http.Request) {
	s.runSyncScan(w, r, s.crossDomainAgent)
}

// handlePolicyEvolutionScan implements POST /agents/policy-evolution/scan.
func (s *Server) handlePolicyEvolutionScan(w http.ResponseWriter, r *http.Request) {
	s.runSyncScan(w, r, s.policyEvolutionAgent)
}

func (s *Server) runSyncScan(w http.ResponseWriter, r *http.Request, a *agent.Agent) {
	if a == nil {
		writeError(w, errs.NewUnavailable("agent is not wired in this deployment"))
		return
	}

	var input map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, errs.NewInvalidArgument("malformed request body: %v", err))
			return
		}
	}

	report, err := a.Reason(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleGraphNeighbors implements GET /graph/:sellerId/neighbors, exposing
// the identity graph's BFS expansion for manual case review.
func (s *Server) handleGraphNeighbors(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	depth := parseIntOrDefault(r.URL.Query().Get("depth"), 2)

	var edgeTypes []string
	if raw := r.URL.Query().Get("edgeTypes"); raw != "" {
		edgeTypes = strings.Split(raw, ",")
	}

	writeJSON(w, http.StatusOK, s.graph.GetNeighbors(sellerID, depth, edgeTypes))
}

// handleGraphInvestigate implements GET /graph/:sellerId/investigate,
// exposing the evidence chain the graph engine would hand an agent tool.
func (s *Server) handleGraphInvestigate(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	maxHops := parseIntOrDefault(r.URL.Query().Get("maxHops"), 3)
	minWeight := parseFloatOrDefault(r.URL.Query().Get("minWeight"), 0.0)

	writeJSON(w, http.StatusOK, s.graph.Investigate(sellerID, maxHops, minWeight))
}

func parseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseFloatOrDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// handleHealth implements GET /observability/health: every registered
// HealthCheck's current status, degraded overall if any component reports
// unhealthy, per spec.md §7.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make([]map[string]any, 0, len(s.healthChecks))
	degraded := false
	for _, check := range s.healthChecks {
		name, healthy, detail := check()
		if !healthy {
			degraded = true
		}
		components = append(components, map[string]any{
			"component": name,
			"healthy":   healthy,
			"detail":    detail,
		})
	}

	status := "healthy"
	if degraded {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "components": components})
}
