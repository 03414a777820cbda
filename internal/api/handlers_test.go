package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/marketwatch/fraudmesh/internal/agent"
	"github.com/marketwatch/fraudmesh/internal/featurestore"
	"github.com/marketwatch/fraudmesh/internal/graph"
	"github.com/marketwatch/fraudmesh/internal/orchestrator"
	"github.com/marketwatch/fraudmesh/internal/platform/metrics"
	"github.com/marketwatch/fraudmesh/internal/riskprofile"
	"github.com/marketwatch/fraudmesh/internal/streaming"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := metrics.New()
	engine := streaming.New(zerolog.Nop(), reg)
	store := featurestore.New(reg)
	g := graph.New()
	riskEngine := riskprofile.New(reg)
	messenger := agent.NewMessenger()
	orch := orchestrator.New(messenger, zerolog.Nop())

	investigator := agent.New("a1", "cross-domain-investigator", "cross_domain_investigator", []string{"cross_domain_detection"}, messenger)
	investigator.RegisterTool("check_blocklist", agent.Tool{Handler: func(params map[string]any) agent.ToolResult {
		return agent.ToolResult{Success: true, Data: map[string]any{"BLOCKLIST_MATCH": false}}
	}})
	orch.Register(investigator)

	return NewServer(engine, store, g, riskEngine, orch, reg, zerolog.Nop(), investigator, nil,
		func() (string, bool, string) { return "streaming", true, "" },
	)
}

func TestHandlePostRiskEventAndHistory(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	body, _ := json.Marshal(map[string]any{
		"sellerId":  "S1",
		"domain":    string(riskprofile.DomainTransaction),
		"eventType": "chargeback",
		"riskScore": 80.0,
	})
	req := httptest.NewRequest(http.MethodPost, "/risk-profile/event", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	histReq := httptest.NewRequest(http.MethodGet, "/risk-profile/S1/history", nil)
	histRec := httptest.NewRecorder()
	r.ServeHTTP(histRec, histReq)
	require.Equal(t, http.StatusOK, histRec.Code)

	var history []riskprofile.HistoryPoint
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &history))
	require.Len(t, history, 1)
}

func TestHandlePostRiskEventRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/risk-profile/event", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePatchOverride(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	body, _ := json.Marshal(map[string]any{
		"tier":         string(riskprofile.TierHigh),
		"reason":       "manual escalation",
		"overriddenBy": "analyst-1",
	})
	req := httptest.NewRequest(http.MethodPatch, "/risk-profile/S2/override", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile riskprofile.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	require.Equal(t, riskprofile.TierHigh, profile.RiskTier)
}

func TestHandleListTopicsAndConsumerGroups(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/streaming/topics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var topics []streaming.Topic
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &topics))
	require.NotEmpty(t, topics)

	cgReq := httptest.NewRequest(http.MethodGet, "/streaming/consumer-groups", nil)
	cgRec := httptest.NewRecorder()
	r.ServeHTTP(cgRec, cgReq)
	require.Equal(t, http.StatusOK, cgRec.Code)
}

func TestHandleGetFeatureStoreMissingReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/streaming/feature-store/S1/seller_profile", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetFeatureStorePresent(t *testing.T) {
	s := newTestServer(t)
	s.store.PutFeatures("S1", featurestore.GroupSellerProfile, map[string]any{"totalOrders": 12.0})

	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/streaming/feature-store/S1/seller_profile", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, 12.0, payload["totalOrders"])
}

func TestHandleCrossDomainScan(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	body, _ := json.Marshal(map[string]any{"sellerId": "S1"})
	req := httptest.NewRequest(http.MethodPost, "/agents/cross-domain/scan", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report agent.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, agent.RecommendationApprove, report.Recommendation)
}

func TestHandlePolicyEvolutionScanUnavailableWhenNotWired(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/agents/policy-evolution/scan", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealthReportsDegradedOnAnyUnhealthyComponent(t *testing.T) {
	reg := metrics.New()
	engine := streaming.New(zerolog.Nop(), reg)
	store := featurestore.New(reg)
	g := graph.New()
	riskEngine := riskprofile.New(reg)
	messenger := agent.NewMessenger()
	orch := orchestrator.New(messenger, zerolog.Nop())

	s := NewServer(engine, store, g, riskEngine, orch, reg, zerolog.Nop(), nil, nil,
		func() (string, bool, string) { return "streaming", true, "" },
		func() (string, bool, string) { return "feature-store", false, "stale snapshot" },
	)

	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/observability/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])
}

func TestHandleGraphNeighbors(t *testing.T) {
	s := newTestServer(t)
	s.graph.AddSeller("S1", "seller", nil)
	s.graph.AddSeller("S2", "seller", nil)
	s.graph.AddEdge("S1", "S2", "shared_device", 1.0, nil)

	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/graph/S1/neighbors?depth=1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
