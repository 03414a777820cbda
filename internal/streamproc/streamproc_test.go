package streamproc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/marketwatch/fraudmesh/internal/featurestore"
	"github.com/marketwatch/fraudmesh/internal/platform/logging"
	"github.com/marketwatch/fraudmesh/internal/platform/metrics"
	"github.com/marketwatch/fraudmesh/internal/streaming"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T) (*streaming.Engine, *featurestore.Store) {
	t.Helper()
	log := logging.New("error", false)
	return streaming.New(log, metrics.New()), featurestore.New(nil)
}

func TestVelocityProcessorMaterializesWindowedAggregate(t *testing.T) {
	engine, store := newHarness(t)
	log := logging.New("error", false)
	proc := NewVelocityProcessor(engine, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ensureConsumer(engine, proc.groupID, "transactions.decided", "velocity-0"))

	for _, amt := range []float64{100, 200, 400} {
		payload, _ := json.Marshal(decidedTransaction{SellerID: "E", Amount: amt})
		_, _, _, err := engine.Produce("transactions.decided", "E", payload)
		require.NoError(t, err)
	}

	proc.tick(ctx)

	features, ok := store.GetFeatures("E", featurestore.GroupTransactionVelocity)
	require.True(t, ok)
	require.EqualValues(t, 3, features["transactions_1h"])
	require.InDelta(t, 700.0, features["amount_1h"].(float64), 0.001)
	require.InDelta(t, 233.333, features["avg_amount_1h"].(float64), 0.01)
}

func TestRiskSignalAggregatorMaterializesNetworkRisk(t *testing.T) {
	engine, store := newHarness(t)
	log := logging.New("error", false)
	proc := NewRiskSignalAggregator(engine, store, log)
	require.NoError(t, ensureConsumer(engine, proc.groupID, "risk.events", "riskagg-0"))

	events := []riskEventPayload{
		{SellerID: "S1", Domain: "onboarding", RiskScore: 10},
		{SellerID: "S1", Domain: "payout", RiskScore: 90},
	}
	for _, ev := range events {
		payload, _ := json.Marshal(ev)
		_, _, _, err := engine.Produce("risk.events", "S1", payload)
		require.NoError(t, err)
	}

	proc.tick(context.Background())

	features, ok := store.GetFeatures("S1", featurestore.GroupNetworkRisk)
	require.True(t, ok)
	require.EqualValues(t, 2, features["total_signals"])
	require.InDelta(t, 90.0, features["max_severity"].(float64), 0.001)
	require.EqualValues(t, 2, features["distinct_domains"])
}

func TestMaterializationProcessorSkipsMalformed(t *testing.T) {
	engine, store := newHarness(t)
	log := logging.New("error", false)
	proc := NewMaterializationProcessor(engine, store, log)
	require.NoError(t, ensureConsumer(engine, proc.groupID, "features.materialized", "materialize-0"))

	_, _, _, err := engine.Produce("features.materialized", "bad", []byte("not json"))
	require.NoError(t, err)

	good := materializedFeatures{EntityID: "e1", Group: "device_trust", Features: map[string]any{"trustScore": 0.8}}
	payload, _ := json.Marshal(good)
	_, _, _, err = engine.Produce("features.materialized", "e1", payload)
	require.NoError(t, err)

	proc.tick(context.Background())

	features, ok := store.GetFeatures("e1", featurestore.GroupDeviceTrust)
	require.True(t, ok)
	require.Equal(t, 0.8, features["trustScore"])
	require.Contains(t, features, "materialized_at")
}

func TestWindowedAggregatorTumblingBoundary(t *testing.T) {
	w := NewWindowedAggregator(1000, 1000)
	start := int64(5000)
	w.Add("k", 1, start+999) // counts in this window
	w.Add("k", 1, start+1000) // starts the next window

	cur := w.Current("k", start+999)
	require.EqualValues(t, 1, cur.Count)

	next := w.Current("k", start+1000)
	require.EqualValues(t, 1, next.Count)
}

func TestWindowedAggregatorCleanupBoundsMemory(t *testing.T) {
	w := NewWindowedAggregator(1000, 1000)
	w.Add("k", 1, 0)
	w.Cleanup(int64(5 * time.Second / time.Millisecond))

	require.Empty(t, w.byKey["k"])
}
