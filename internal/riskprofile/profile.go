// Package riskprofile maintains per-seller composite risk scores under
// exponential time decay with tier-escalation hysteresis. Per-seller state is
// guarded by its own lock (one entry in a sync.Map), matching the
// per-partition mutex granularity the teacher uses for Topic.Partitions.
package riskprofile

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketwatch/fraudmesh/internal/platform/errs"
	"github.com/marketwatch/fraudmesh/internal/platform/metrics"
)

// Domain is the fixed enumeration of risk domains a seller event can belong to.
type Domain string

const (
	DomainOnboarding     Domain = "onboarding"
	DomainATO            Domain = "ato"
	DomainPayout         Domain = "payout"
	DomainListing        Domain = "listing"
	DomainShipping       Domain = "shipping"
	DomainTransaction    Domain = "transaction"
	DomainAccountSetup   Domain = "account_setup"
	DomainItemSetup      Domain = "item_setup"
	DomainPricing        Domain = "pricing"
	DomainProfileUpdates Domain = "profile_updates"
	DomainReturns        Domain = "returns"
)

// domainWeight must sum to ~1, per spec.md §4.E.
var domainWeight = map[Domain]float64{
	DomainOnboarding:     0.12,
	DomainATO:            0.14,
	DomainPayout:         0.12,
	DomainListing:        0.07,
	DomainShipping:       0.10,
	DomainTransaction:    0.08,
	DomainAccountSetup:   0.08,
	DomainItemSetup:      0.07,
	DomainPricing:        0.08,
	DomainProfileUpdates: 0.07,
	DomainReturns:        0.07,
}

// Tier is the seller's risk tier.
type Tier string

const (
	TierLow      Tier = "LOW"
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

var tierRank = map[Tier]int{TierLow: 0, TierMedium: 1, TierHigh: 2, TierCritical: 3}

func tierFor(score float64) Tier {
	switch {
	case score <= 30:
		return TierLow
	case score <= 60:
		return TierMedium
	case score <= 85:
		return TierHigh
	default:
		return TierCritical
	}
}

const halfLifeDays = 30.0
const cooldown = 48 * time.Hour

// Event is an immutable risk event once emitted.
type Event struct {
	EventID   string
	SellerID  string
	Domain    Domain
	EventType string
	RiskScore float64
	Metadata  map[string]any
	CreatedAt time.Time
}

// Override is an active manual tier override, superseding all computation.
type Override struct {
	Tier         Tier
	Reason       string
	OverriddenBy string
	SetAt        time.Time
}

// Profile is the current derived state for one seller.
type Profile struct {
	SellerID       string
	CompositeScore float64
	RiskTier       Tier
	DomainScores   map[Domain]float64
	ActiveActions []string
	TierChangedAt  time.Time
	LastEventAt    time.Time
	ManualOverride *Override
}

// HistoryPoint is one entry in a seller's point-in-time trajectory.
type HistoryPoint struct {
	Timestamp      time.Time
	CompositeScore float64
	Tier           Tier
	DomainScores   map[Domain]float64
	TriggerEvent   Event
}

// Engine is the handle components reach the risk profile store through.
type Engine struct {
	metrics *metrics.Registry

	locks sync.Map // sellerID -> *sync.Mutex

	mu       sync.RWMutex
	events   map[string][]Event
	profiles map[string]*Profile
}

func New(reg *metrics.Registry) *Engine {
	return &Engine{
		metrics:  reg,
		events:   make(map[string][]Event),
		profiles: make(map[string]*Profile),
	}
}

func (e *Engine) lockFor(sellerID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(sellerID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// EmitRiskEvent persists the immutable event and re-derives the seller's
// profile from their full event history, atomically per seller.
func (e *Engine) EmitRiskEvent(sellerID string, domain Domain, eventType string, riskScore float64, metadata map[string]any) (*Profile, error) {
	if sellerID == "" {
		return nil, errs.NewInvalidArgument("sellerId is required")
	}
	if _, ok := domainWeight[domain]; !ok {
		return nil, errs.NewInvalidArgument("unknown domain %q", domain)
	}

	lock := e.lockFor(sellerID)
	lock.Lock()
	defer lock.Unlock()

	ev := Event{
		EventID:   uuid.NewString(),
		SellerID:  sellerID,
		Domain:    domain,
		EventType: eventType,
		RiskScore: riskScore,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	e.mu.Lock()
	e.events[sellerID] = append(e.events[sellerID], ev)
	events := append([]Event(nil), e.events[sellerID]...)
	prev := e.profiles[sellerID]
	e.mu.Unlock()

	profile := e.recompute(sellerID, events, prev, ev.CreatedAt)

	e.mu.Lock()
	e.profiles[sellerID] = profile
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RiskEventsEmitted.WithLabelValues(string(domain)).Inc()
	}

	return profile, nil
}

// decayedScore applies the 30-day half-life exponential decay as of `asOf`.
func decayedScore(original float64, eventTime, asOf time.Time) float64 {
	daysSince := asOf.Sub(eventTime).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	return original * math.Pow(0.5, daysSince/halfLifeDays)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// recompute derives composite score, tier (with hysteresis) and active
// actions from the seller's full event history as of `asOf`.
func (e *Engine) recompute(sellerID string, events []Event, prev *Profile, asOf time.Time) *Profile {
	domainSums := make(map[Domain]float64)
	for _, ev := range events {
		domainSums[ev.Domain] += decayedScore(ev.RiskScore, ev.CreatedAt, asOf)
	}

	domainScores := make(map[Domain]float64, len(domainSums))
	var composite float64
	for d, w := range domainWeight {
		score := clamp(domainSums[d], 0, 100)
		domainScores[d] = score
		composite += score * w
	}
	composite = math.Round(clamp(composite, 0, 100)*100) / 100

	rawTier := tierFor(composite)
	effectiveTier := rawTier
	tierChangedAt := asOf

	if prev != nil {
		tierChangedAt = prev.TierChangedAt
		if prev.ManualOverride == nil {
			withinCooldown := asOf.Sub(prev.TierChangedAt) < cooldown
			isDowngrade := tierRank[rawTier] < tierRank[prev.RiskTier]
			if withinCooldown && isDowngrade {
				effectiveTier = prev.RiskTier
			} else if rawTier != prev.RiskTier {
				tierChangedAt = asOf
			}
		} else if rawTier != prev.RiskTier {
			tierChangedAt = asOf
		}
	}

	if e.metrics != nil && prev != nil && effectiveTier != prev.RiskTier {
		direction := "up"
		if tierRank[effectiveTier] < tierRank[prev.RiskTier] {
			direction = "down"
		}
		e.metrics.TierEscalations.WithLabelValues(direction).Inc()
	}

	override := (*Override)(nil)
	if prev != nil {
		override = prev.ManualOverride
	}
	if override != nil {
		effectiveTier = override.Tier
	}

	var lastEventAt time.Time
	if len(events) > 0 {
		lastEventAt = events[len(events)-1].CreatedAt
	}

	return &Profile{
		SellerID:       sellerID,
		CompositeScore: composite,
		RiskTier:       effectiveTier,
		DomainScores:   domainScores,
		ActiveActions: activeActionsFor(effectiveTier),
		TierChangedAt:  tierChangedAt,
		LastEventAt:    lastEventAt,
		ManualOverride: override,
	}
}

// activeActionsFor derives the fixed action set solely from the effective tier.
func activeActionsFor(t Tier) []string {
	switch t {
	case TierCritical:
		return []string{"suspend_seller", "block_transactions", "hold_payouts", "suspend_listings"}
	case TierHigh:
		return []string{"suspend_listings", "hold_payouts", "review_large_transactions"}
	case TierMedium:
		return []string{"hold_large_payouts", "flag"}
	default:
		return nil
	}
}

// GetProfile returns the current profile, or nil if the seller has no events.
func (e *Engine) GetProfile(sellerID string) *Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profiles[sellerID]
}

// SetOverride sets or clears a manual tier override, superseding computation
// until cleared, then immediately recomputes the profile under it.
func (e *Engine) SetOverride(sellerID string, override *Override) (*Profile, error) {
	lock := e.lockFor(sellerID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	events := append([]Event(nil), e.events[sellerID]...)
	prev := e.profiles[sellerID]
	e.mu.Unlock()

	if prev == nil {
		prev = &Profile{SellerID: sellerID, TierChangedAt: time.Now()}
	}
	prev.ManualOverride = override

	now := time.Now()
	profile := e.recompute(sellerID, events, prev, now)

	e.mu.Lock()
	e.profiles[sellerID] = profile
	e.mu.Unlock()

	return profile, nil
}

// GetHistory replays all events in chronological order, recomputing decayed
// domain sums as of each event's own timestamp so trajectories stay causally
// faithful (never computed against `now`).
func (e *Engine) GetHistory(sellerID string) []HistoryPoint {
	e.mu.RLock()
	events := append([]Event(nil), e.events[sellerID]...)
	e.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })

	var out []HistoryPoint
	var prev *Profile
	for i, ev := range events {
		prefix := events[:i+1]
		profile := e.recompute(sellerID, prefix, prev, ev.CreatedAt)
		out = append(out, HistoryPoint{
			Timestamp:      ev.CreatedAt,
			CompositeScore: profile.CompositeScore,
			Tier:           profile.RiskTier,
			DomainScores:   profile.DomainScores,
			TriggerEvent:   ev,
		})
		prev = profile
	}
	return out
}
