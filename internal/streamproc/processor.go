package streamproc

import (
	"context"
	"time"

	"github.com/marketwatch/fraudmesh/internal/streaming"
	"github.com/rs/zerolog"
)

// pollLoop is the shared ~1s poll-process cadence every processor in this
// package runs, mirroring the teacher's consumer main loop
// (cmd/consumer/main.go: fetch, process, sleep, repeat).
func pollLoop(ctx context.Context, log zerolog.Logger, name string, tick func(ctx context.Context)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("processor", name).Msg("stream processor shutting down")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Str("processor", name).Interface("panic", r).Msg("stream processor tick panicked, continuing")
					}
				}()
				tick(ctx)
			}()
		}
	}
}

// ensureConsumer creates (idempotently) a consumer group and joins a single
// consumer to it, returning any error from either step.
func ensureConsumer(engine *streaming.Engine, groupID, topic, consumerID string) error {
	if _, err := engine.CreateConsumerGroup(groupID, topic); err != nil {
		return err
	}
	return engine.AddConsumer(groupID, consumerID)
}
