package streamproc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/marketwatch/fraudmesh/internal/featurestore"
	"github.com/marketwatch/fraudmesh/internal/platform/logging"
	"github.com/marketwatch/fraudmesh/internal/streaming"
	"github.com/rs/zerolog"
)

// decidedTransaction is the opaque payload carried on transactions.decided.
type decidedTransaction struct {
	SellerID string  `json:"sellerId"`
	Amount   float64 `json:"amount"`
}

// VelocityProcessor maintains per-seller 1h and 24h tumbling windows of
// transaction amounts and materialises the combined aggregate to
// transaction_velocity.
type VelocityProcessor struct {
	engine  *streaming.Engine
	store   *featurestore.Store
	log     zerolog.Logger
	groupID string
	hourly  *WindowedAggregator
	daily   *WindowedAggregator
}

func NewVelocityProcessor(engine *streaming.Engine, store *featurestore.Store, log zerolog.Logger) *VelocityProcessor {
	return &VelocityProcessor{
		engine:  engine,
		store:   store,
		log:     logging.Component(log, "velocity-processor"),
		groupID: "transaction-velocity",
		hourly:  NewWindowedAggregator(int64(time.Hour/time.Millisecond), int64(time.Hour/time.Millisecond)),
		daily:   NewWindowedAggregator(int64(24*time.Hour/time.Millisecond), int64(24*time.Hour/time.Millisecond)),
	}
}

func (p *VelocityProcessor) Run(ctx context.Context) error {
	if err := ensureConsumer(p.engine, p.groupID, "transactions.decided", "velocity-0"); err != nil {
		return err
	}
	pollLoop(ctx, p.log, "transaction-velocity", p.tick)
	return nil
}

func (p *VelocityProcessor) tick(ctx context.Context) {
	recs, err := p.engine.Poll(p.groupID, "velocity-0", 100)
	if err != nil {
		p.log.Error().Err(err).Msg("poll failed")
		return
	}

	nowMs := time.Now().UnixMilli()
	for _, r := range recs {
		var tx decidedTransaction
		if err := json.Unmarshal(r.Message.Value, &tx); err != nil {
			p.log.Warn().Err(err).Msg("malformed transaction, skipping")
			continue
		}
		if tx.SellerID == "" {
			continue
		}
		tsMs := r.Message.Timestamp.UnixMilli()
		p.hourly.Add(tx.SellerID, tx.Amount, tsMs)
		p.daily.Add(tx.SellerID, tx.Amount, tsMs)
		p.materialize(tx.SellerID, nowMs)
	}

	p.hourly.Cleanup(nowMs)
	p.daily.Cleanup(nowMs)
}

func (p *VelocityProcessor) materialize(sellerID string, nowMs int64) {
	h := p.hourly.Current(sellerID, nowMs)
	d := p.daily.Current(sellerID, nowMs)

	p.store.PutFeatures(sellerID, featurestore.GroupTransactionVelocity, map[string]any{
		"transactions_1h": h.Count,
		"amount_1h":       h.Sum,
		"min_amount_1h":   h.Min,
		"max_amount_1h":   h.Max,
		"avg_amount_1h":   h.Avg(),
		"transactions_24h": d.Count,
		"amount_24h":       d.Sum,
		"min_amount_24h":   d.Min,
		"max_amount_24h":   d.Max,
		"avg_amount_24h":   d.Avg(),
	})
}
