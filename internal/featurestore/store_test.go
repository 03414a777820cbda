package featurestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutThenGetWithinTTL(t *testing.T) {
	s := New(nil)
	s.PutFeatures("e1", GroupTransactionVelocity, map[string]any{"count": 3})

	payload, ok := s.GetFeatures("e1", GroupTransactionVelocity)
	require.True(t, ok)
	require.Equal(t, 3, payload["count"])
}

func TestGetAfterTTLExpiresAndEvicts(t *testing.T) {
	s := New(nil)
	s.online["e1"] = map[Group]Entry{
		GroupTransactionVelocity: {Payload: map[string]any{"count": 1}, UpdatedAt: time.Now().Add(-2 * time.Minute), TTL: time.Minute},
	}

	_, ok := s.GetFeatures("e1", GroupTransactionVelocity)
	require.False(t, ok)

	s.mu.RLock()
	_, stillThere := s.online["e1"][GroupTransactionVelocity]
	s.mu.RUnlock()
	require.False(t, stillThere, "expired entry must be evicted")
}

func TestGetFeaturesAsOfFallsBackToLatest(t *testing.T) {
	s := New(nil)
	writeTime := time.Now()
	s.PutFeatures("e2", GroupSellerProfile, map[string]any{"tier": "LOW"})

	payload, ok := s.GetFeaturesAsOf("e2", GroupSellerProfile, writeTime.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, "LOW", payload["tier"])

	_, ok = s.GetFeaturesAsOf("e2", GroupSellerProfile, writeTime.Add(-time.Hour))
	require.False(t, ok)
}

func TestHitRate(t *testing.T) {
	s := New(nil)
	s.PutFeatures("e3", GroupDeviceTrust, map[string]any{"trust": 0.9})
	s.GetFeatures("e3", GroupDeviceTrust)
	s.GetFeatures("e3", GroupNetworkRisk) // miss, different group

	snap := s.Snapshot()
	require.Equal(t, int64(1), snap.Hits)
	require.Equal(t, int64(1), snap.Misses)
	require.InDelta(t, 0.5, s.stats.HitRate(), 0.001)
}
