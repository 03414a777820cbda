package streaming

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

const retentionSweepSchedule = "@every 60s"

// RunRetention drops the contiguous expired prefix of every partition's
// message list every 60s, until ctx is cancelled. Committed offsets are
// absolute (never rebased): Poll already converts an absolute offset to a
// slice index by subtracting droppedOffset, so trimming the backing slice
// here is sufficient to keep offset pointers valid, per spec.md §4.A.
func (e *Engine) RunRetention(ctx context.Context) {
	c := cron.New()
	if _, err := c.AddFunc(retentionSweepSchedule, e.sweepRetention); err != nil {
		e.log.Error().Err(err).Msg("failed to schedule retention sweep")
		return
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
}

func (e *Engine) sweepRetention() {
	e.mu.RLock()
	topics := make([]*Topic, 0, len(e.topics))
	for _, t := range e.topics {
		topics = append(topics, t)
	}
	e.mu.RUnlock()

	now := time.Now()
	for _, t := range topics {
		t.mu.RLock()
		parts := append([]*Partition(nil), t.partitions...)
		retentionMs := t.RetentionMs
		name := t.Name
		t.mu.RUnlock()

		cutoff := now.Add(-time.Duration(retentionMs) * time.Millisecond)

		for _, p := range parts {
			dropped := p.trimExpired(cutoff)
			if dropped == 0 {
				continue
			}
			e.log.Debug().Str("topic", name).Int("partition", p.id).Uint64("dropped", dropped).Msg("retention swept expired messages")
		}
	}
}

// trimExpired removes the contiguous prefix of messages older than cutoff
// and returns how many were dropped.
func (p *Partition) trimExpired(cutoff time.Time) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := 0
	for i < len(p.messages) && p.messages[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return 0
	}
	p.messages = append([]Message(nil), p.messages[i:]...)
	p.droppedOffset += uint64(i)
	return uint64(i)
}
