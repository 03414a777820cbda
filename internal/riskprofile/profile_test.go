package riskprofile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// driveCompositeTo populates every domain with the same raw score X (all
// domain weights sum to exactly 1.00, so composite == X when every domain
// carries the same score and decay is a no-op at asOf == event time).
func driveCompositeTo(t *testing.T, e *Engine, sellerID string, x float64) *Profile {
	t.Helper()
	var last *Profile
	for d := range domainWeight {
		p, err := e.EmitRiskEvent(sellerID, d, "X", x, nil)
		require.NoError(t, err)
		last = p
	}
	return last
}

func TestCompositeScoreTierBoundaries(t *testing.T) {
	e := New(nil)
	require.Equal(t, TierLow, driveCompositeTo(t, e, "s-low", 30).RiskTier)

	e2 := New(nil)
	require.Equal(t, TierMedium, driveCompositeTo(t, e2, "s-medium", 31).RiskTier)

	e3 := New(nil)
	require.Equal(t, TierCritical, driveCompositeTo(t, e3, "s-critical", 86).RiskTier)
}

func TestTierHysteresisWithinCooldown(t *testing.T) {
	e := New(nil)
	sellerID := "s2"
	t0 := time.Now().Add(-200 * 24 * time.Hour)

	// p1: an event history that computes to HIGH. Each domain score is
	// clamped to [0,100], so the history spreads 70 across every domain.
	var highEvents []Event
	for d := range domainWeight {
		highEvents = append(highEvents, Event{Domain: d, EventType: "BIG", RiskScore: 70, CreatedAt: t0})
	}
	atChange := t0.Add(time.Hour)
	p1 := e.recompute(sellerID, highEvents, nil, atChange)
	require.Equal(t, TierHigh, p1.RiskTier)
	tierChangedAt := p1.TierChangedAt

	// A later, corrected history lowers every domain enough that an
	// unhysteresised recompute would land in MEDIUM.
	var mediumEvents []Event
	for d := range domainWeight {
		mediumEvents = append(mediumEvents, Event{Domain: d, EventType: "CORRECTED", RiskScore: 45, CreatedAt: t0.Add(2 * time.Hour)})
	}

	atT24 := tierChangedAt.Add(24 * time.Hour)
	p2 := e.recompute(sellerID, mediumEvents, p1, atT24)
	require.Equal(t, TierHigh, p2.RiskTier, "tier must not de-escalate within 48h cooldown even though raw recompute would")

	atT49 := tierChangedAt.Add(49 * time.Hour)
	p3 := e.recompute(sellerID, mediumEvents, p2, atT49)
	require.Equal(t, TierMedium, p3.RiskTier, "tier de-escalates once the cooldown has elapsed")
}

func forceEventAt(e *Engine, sellerID string, domain Domain, eventType string, score float64, at time.Time) *Profile {
	e.mu.Lock()
	e.events[sellerID] = append(e.events[sellerID], Event{
		EventID: "fixed", SellerID: sellerID, Domain: domain, EventType: eventType, RiskScore: score, CreatedAt: at,
	})
	events := append([]Event(nil), e.events[sellerID]...)
	prev := e.profiles[sellerID]
	e.mu.Unlock()

	profile := e.recompute(sellerID, events, prev, at)
	e.mu.Lock()
	e.profiles[sellerID] = profile
	e.mu.Unlock()
	return profile
}

func snapshotEvents(e *Engine, sellerID string) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Event(nil), e.events[sellerID]...)
}

func TestManualOverrideSupersedesComputation(t *testing.T) {
	e := New(nil)
	_, err := e.EmitRiskEvent("s3", DomainOnboarding, "X", 5, nil)
	require.NoError(t, err)

	p, err := e.SetOverride("s3", &Override{Tier: TierCritical, Reason: "manual review", OverriddenBy: "ops"})
	require.NoError(t, err)
	require.Equal(t, TierCritical, p.RiskTier)
}

func TestGetHistoryIsCausallyFaithful(t *testing.T) {
	e := New(nil)
	t0 := time.Now().Add(-60 * 24 * time.Hour)

	forceEventAt(e, "s4", DomainOnboarding, "SELLER_APPROVED", 10, t0)
	forceEventAt(e, "s4", DomainTransaction, "VELOCITY_SPIKE", 80, t0.Add(30*24*time.Hour))

	history := e.GetHistory("s4")
	require.Len(t, history, 2)
	// Second point's domain scores reflect decay as-of the second event's own
	// timestamp, not as-of now.
	require.InDelta(t, 10*pow(0.5, 1.0), history[1].DomainScores[DomainOnboarding], 0.5)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0.0; i < exp; i++ {
		result *= base
	}
	return result
}

func TestBustOutPatternMatchesScenario(t *testing.T) {
	t0 := time.Now().Add(-60 * 24 * time.Hour)
	events := []Event{
		{Domain: DomainOnboarding, EventType: "SELLER_APPROVED", RiskScore: 10, CreatedAt: t0},
		{Domain: DomainAccountSetup, EventType: "ACCOUNT_SETUP_OK", RiskScore: 10, CreatedAt: t0.Add(2 * 24 * time.Hour)},
		{Domain: DomainListing, EventType: "LISTING_APPROVED", RiskScore: 20, CreatedAt: t0.Add(5 * 24 * time.Hour)},
		{Domain: DomainTransaction, EventType: "VELOCITY_SPIKE", RiskScore: 80, CreatedAt: t0.Add(30 * 24 * time.Hour)},
		{Domain: DomainProfileUpdates, EventType: "BANK_CHANGE_DURING_DISPUTE", RiskScore: 90, CreatedAt: t0.Add(40 * 24 * time.Hour)},
		{Domain: DomainPayout, EventType: "PAYOUT_VELOCITY_SPIKE", RiskScore: 95, CreatedAt: t0.Add(50 * 24 * time.Hour)},
	}

	match := MatchSequence(BustOutPattern, events)
	require.Greater(t, match.MatchScore, 0.7)
	require.Equal(t, 6, match.StepsCompleted)
	require.Equal(t, "CRITICAL", match.Severity)
}

func TestCleanSellerDoesNotMatchBustOut(t *testing.T) {
	t0 := time.Now().Add(-5 * 24 * time.Hour)
	events := []Event{
		{Domain: DomainOnboarding, EventType: "SELLER_APPROVED", RiskScore: 5, CreatedAt: t0},
		{Domain: DomainAccountSetup, EventType: "ACCOUNT_SETUP_OK", RiskScore: 5, CreatedAt: t0.Add(24 * time.Hour)},
	}

	match := MatchSequence(BustOutPattern, events)
	require.Less(t, match.MatchScore, 0.5)
}
