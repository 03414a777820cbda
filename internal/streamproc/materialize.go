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

// materializedFeatures is the opaque typed payload carried on
// features.materialized: {entityId, group, features: map<string, number|string|bool>}.
type materializedFeatures struct {
	EntityID string         `json:"entityId"`
	Group    string         `json:"group"`
	Features map[string]any `json:"features"`
}

// MaterializationProcessor is a direct passthrough: it reads
// {entityId, group, features} off features.materialized and writes them with
// a materialized_at stamp. Malformed messages are logged and skipped, never
// retried — at-most-once for this processor, per spec.md §4.C.
type MaterializationProcessor struct {
	engine  *streaming.Engine
	store   *featurestore.Store
	log     zerolog.Logger
	groupID string
}

func NewMaterializationProcessor(engine *streaming.Engine, store *featurestore.Store, log zerolog.Logger) *MaterializationProcessor {
	return &MaterializationProcessor{
		engine:  engine,
		store:   store,
		log:     logging.Component(log, "feature-materialization"),
		groupID: "feature-materialization",
	}
}

func (p *MaterializationProcessor) Run(ctx context.Context) error {
	if err := ensureConsumer(p.engine, p.groupID, "features.materialized", "materialize-0"); err != nil {
		return err
	}
	pollLoop(ctx, p.log, "feature-materialization", p.tick)
	return nil
}

func (p *MaterializationProcessor) tick(ctx context.Context) {
	recs, err := p.engine.Poll(p.groupID, "materialize-0", 100)
	if err != nil {
		p.log.Error().Err(err).Msg("poll failed")
		return
	}

	for _, r := range recs {
		var mf materializedFeatures
		if err := json.Unmarshal(r.Message.Value, &mf); err != nil {
			p.log.Warn().Err(err).Msg("malformed materialized-feature message, skipping")
			continue
		}
		if mf.EntityID == "" || mf.Group == "" {
			p.log.Warn().Msg("materialized-feature message missing entityId/group, skipping")
			continue
		}

		payload := make(map[string]any, len(mf.Features)+1)
		for k, v := range mf.Features {
			payload[k] = v
		}
		payload["materialized_at"] = time.Now()

		p.store.PutFeatures(mf.EntityID, featurestore.Group(mf.Group), payload)
	}
}
