package streamproc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/marketwatch/fraudmesh/internal/featurestore"
	"github.com/marketwatch/fraudmesh/internal/platform/logging"
	"github.com/marketwatch/fraudmesh/internal/streaming"
	"github.com/rs/zerolog"
)

// riskEventPayload is the opaque payload carried on risk.events.
type riskEventPayload struct {
	SellerID  string  `json:"sellerId"`
	Domain    string  `json:"domain"`
	RiskScore float64 `json:"riskScore"`
}

type domainAccumulator struct {
	count int64
	max   float64
	sum   float64
}

type sellerAccumulator struct {
	mu            sync.Mutex
	totalSignals  int64
	maxSeverity   float64
	domains       map[string]struct{}
	perDomain     map[string]*domainAccumulator
	firstSeen     time.Time
	lastSeen      time.Time
}

// RiskSignalAggregator accumulates per-seller signal counts, severities and
// domain breakdowns from risk.events, materialising to network_risk.
type RiskSignalAggregator struct {
	engine  *streaming.Engine
	store   *featurestore.Store
	log     zerolog.Logger
	groupID string

	mu        sync.Mutex
	bySeller  map[string]*sellerAccumulator
}

func NewRiskSignalAggregator(engine *streaming.Engine, store *featurestore.Store, log zerolog.Logger) *RiskSignalAggregator {
	return &RiskSignalAggregator{
		engine:   engine,
		store:    store,
		log:      logging.Component(log, "risk-signal-aggregator"),
		groupID:  "risk-signal-aggregator",
		bySeller: make(map[string]*sellerAccumulator),
	}
}

func (p *RiskSignalAggregator) Run(ctx context.Context) error {
	if err := ensureConsumer(p.engine, p.groupID, "risk.events", "riskagg-0"); err != nil {
		return err
	}
	pollLoop(ctx, p.log, "risk-signal-aggregator", p.tick)
	return nil
}

func (p *RiskSignalAggregator) tick(ctx context.Context) {
	recs, err := p.engine.Poll(p.groupID, "riskagg-0", 100)
	if err != nil {
		p.log.Error().Err(err).Msg("poll failed")
		return
	}

	for _, r := range recs {
		var ev riskEventPayload
		if err := json.Unmarshal(r.Message.Value, &ev); err != nil {
			p.log.Warn().Err(err).Msg("malformed risk event, skipping")
			continue
		}
		if ev.SellerID == "" {
			continue
		}
		p.accumulate(ev, r.Message.Timestamp)
		p.materialize(ev.SellerID)
	}
}

func (p *RiskSignalAggregator) accumulate(ev riskEventPayload, ts time.Time) {
	p.mu.Lock()
	acc, ok := p.bySeller[ev.SellerID]
	if !ok {
		acc = &sellerAccumulator{domains: make(map[string]struct{}), perDomain: make(map[string]*domainAccumulator), firstSeen: ts}
		p.bySeller[ev.SellerID] = acc
	}
	p.mu.Unlock()

	acc.mu.Lock()
	defer acc.mu.Unlock()

	acc.totalSignals++
	if ev.RiskScore > acc.maxSeverity {
		acc.maxSeverity = ev.RiskScore
	}
	acc.domains[ev.Domain] = struct{}{}
	if acc.firstSeen.IsZero() || ts.Before(acc.firstSeen) {
		acc.firstSeen = ts
	}
	if ts.After(acc.lastSeen) {
		acc.lastSeen = ts
	}

	d, ok := acc.perDomain[ev.Domain]
	if !ok {
		d = &domainAccumulator{}
		acc.perDomain[ev.Domain] = d
	}
	d.count++
	d.sum += ev.RiskScore
	if ev.RiskScore > d.max {
		d.max = ev.RiskScore
	}
}

func (p *RiskSignalAggregator) materialize(sellerID string) {
	p.mu.Lock()
	acc := p.bySeller[sellerID]
	p.mu.Unlock()
	if acc == nil {
		return
	}

	acc.mu.Lock()
	perDomain := make(map[string]any, len(acc.perDomain))
	for domain, d := range acc.perDomain {
		avg := 0.0
		if d.count > 0 {
			avg = d.sum / float64(d.count)
		}
		perDomain[domain] = map[string]any{"count": d.count, "max": d.max, "avg": avg}
	}
	payload := map[string]any{
		"total_signals":   acc.totalSignals,
		"max_severity":    acc.maxSeverity,
		"distinct_domains": len(acc.domains),
		"first_seen":      acc.firstSeen,
		"last_seen":       acc.lastSeen,
		"per_domain":      perDomain,
	}
	acc.mu.Unlock()

	p.store.PutFeatures(sellerID, featurestore.GroupNetworkRisk, payload)
}
