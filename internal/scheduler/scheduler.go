// Package scheduler runs each autonomous agent's cycle on a configurable
// interval, accelerated by a coalesced immediate cycle whenever its inbound
// event buffer crosses a threshold. Grounded on the teacher's poll-loop
// pattern (ticker + fetch + process + sleep), generalised to event-driven
// acceleration per spec.md §4.H.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/marketwatch/fraudmesh/internal/agent"
	"github.com/marketwatch/fraudmesh/internal/knowledge"
	"github.com/marketwatch/fraudmesh/internal/platform/logging"
	"github.com/marketwatch/fraudmesh/internal/platform/metrics"
	"github.com/marketwatch/fraudmesh/internal/streaming"
)

// Config is one agent's scheduling parameters, per spec.md §4.H.
type Config struct {
	ScanInterval               time.Duration
	EventAccelerationThreshold int
	SubscribedTopics           []string
}

// bufferOverflowMultiple bounds the event buffer at 10x the acceleration
// threshold by default; beyond that, the oldest buffered events are dropped.
const bufferOverflowMultiple = 10

const pollBatchSize = 100

// bufferedEvent is one record pulled off a subscribed topic, tagged with the
// source topic for buildScanInput's domain filtering.
type bufferedEvent struct {
	Topic   string
	Message streaming.Message
}

// Scheduler drives one agent's reasoning cycles.
type Scheduler struct {
	agent   *agent.Agent
	engine  *streaming.Engine
	kb      *knowledge.Store
	cfg     Config
	metrics *metrics.Registry
	log     zerolog.Logger
	groupID string

	mu            sync.Mutex
	buffer        []bufferedEvent
	sinceLastScan int
	cycleRunning  bool

	accelerate chan struct{}
}

// New constructs a Scheduler bound to one agent and its subscribed topics.
func New(a *agent.Agent, engine *streaming.Engine, kb *knowledge.Store, reg *metrics.Registry, base zerolog.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		agent:      a,
		engine:     engine,
		kb:         kb,
		cfg:        cfg,
		metrics:    reg,
		log:        logging.Component(base, "scheduler:"+a.Name),
		groupID:    "scheduler:" + a.AgentID,
		accelerate: make(chan struct{}, 1),
	}
}

// Run joins a consumer group on every subscribed topic and drives cycles
// until ctx is cancelled. A poll ticker feeds events into the buffer; a cron
// job fires interval cycles on s.cfg.ScanInterval; acceleration signals
// trigger an immediate, coalesced cycle.
func (s *Scheduler) Run(ctx context.Context) {
	for _, topic := range s.cfg.SubscribedTopics {
		groupID := s.groupID + ":" + topic
		if _, err := s.engine.CreateConsumerGroup(groupID, topic); err != nil {
			s.log.Error().Err(err).Str("topic", topic).Msg("failed to create consumer group")
			continue
		}
		if err := s.engine.AddConsumer(groupID, s.agent.AgentID); err != nil {
			s.log.Error().Err(err).Str("topic", topic).Msg("failed to join consumer group")
		}
	}

	scanCron := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.ScanInterval)
	if _, err := scanCron.AddFunc(spec, func() { s.runCycle(ctx) }); err != nil {
		s.log.Error().Err(err).Str("interval", s.cfg.ScanInterval.String()).Msg("failed to schedule scan cycle")
	}
	scanCron.Start()
	defer scanCron.Stop()

	pollTicker := time.NewTicker(250 * time.Millisecond)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			s.drainTopics()
		case <-s.accelerate:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) drainTopics() {
	for _, topic := range s.cfg.SubscribedTopics {
		groupID := s.groupID + ":" + topic
		recs, err := s.engine.Poll(groupID, s.agent.AgentID, pollBatchSize)
		if err != nil || len(recs) == 0 {
			continue
		}
		events := make([]bufferedEvent, 0, len(recs))
		for _, r := range recs {
			events = append(events, bufferedEvent{Topic: topic, Message: r.Message})
		}
		s.appendBuffer(events)
	}
}

func (s *Scheduler) appendBuffer(events []bufferedEvent) {
	s.mu.Lock()
	s.buffer = append(s.buffer, events...)
	s.sinceLastScan += len(events)

	maxBuffer := s.cfg.EventAccelerationThreshold * bufferOverflowMultiple
	if maxBuffer > 0 && len(s.buffer) > maxBuffer {
		dropped := len(s.buffer) - maxBuffer
		s.buffer = s.buffer[dropped:]
		s.log.Warn().Int("dropped", dropped).Msg("event buffer overflow, dropping oldest")
	}

	crossedThreshold := s.cfg.EventAccelerationThreshold > 0 && s.sinceLastScan >= s.cfg.EventAccelerationThreshold
	s.mu.Unlock()

	if crossedThreshold {
		select {
		case s.accelerate <- struct{}{}:
		default:
		}
	}
}

// runCycle builds the scan input, reasons, and runs postCycle — coalesced so
// at most one cycle is in flight per agent.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.cycleRunning {
		s.mu.Unlock()
		return
	}
	s.cycleRunning = true
	events := s.buffer
	s.buffer = nil
	s.sinceLastScan = 0
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cycleRunning = false
		s.mu.Unlock()
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("cycle panicked, agent remains runnable")
		}
	}()

	start := time.Now()
	input := buildScanInput(events)

	report, err := s.agent.Reason(ctx, input)
	if err != nil {
		s.log.Error().Err(err).Msg("reasoning cycle failed")
		return
	}

	if s.metrics != nil {
		s.metrics.AgentCycleDuration.WithLabelValues(s.agent.Name).Observe(time.Since(start).Seconds())
	}

	s.postCycle(report)
}

// buildScanInput groups buffered events by sellerId (the message key) and by
// source topic/domain, per spec.md §4.H.
func buildScanInput(events []bufferedEvent) map[string]any {
	bySeller := make(map[string][]map[string]any)
	byTopic := make(map[string]int)

	for _, ev := range events {
		byTopic[ev.Topic]++
		entry := map[string]any{
			"topic":     ev.Topic,
			"offset":    ev.Message.Offset,
			"timestamp": ev.Message.Timestamp,
		}
		var decoded map[string]any
		if json.Unmarshal(ev.Message.Value, &decoded) == nil {
			entry["payload"] = decoded
		}
		bySeller[ev.Message.Key] = append(bySeller[ev.Message.Key], entry)
	}

	input := map[string]any{"eventCount": len(events), "bySeller": bySeller, "byTopic": byTopic}
	if len(events) > 0 {
		input["sellerId"] = events[len(events)-1].Message.Key
	}
	return input
}

// postCycle appends detections (already capped inside the agent), emits a
// *:detection event on the streaming engine, and inserts a knowledge-base
// entry, for every cycle that surfaced an actionable recommendation.
func (s *Scheduler) postCycle(report agent.Report) {
	if report.Recommendation != agent.RecommendationBlock && report.Recommendation != agent.RecommendationReview {
		return
	}

	eventName := s.agent.Name + ":detection"

	payload, err := json.Marshal(map[string]any{
		"sellerId":       report.SellerID,
		"score":          report.Score,
		"recommendation": report.Recommendation,
		"factors":        report.Factors,
		"agent":          s.agent.Name,
		"event":          eventName,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode detection payload")
		return
	}

	if s.metrics != nil {
		s.metrics.AgentDetections.WithLabelValues(s.agent.Name).Inc()
	}

	// agent.actions is the fixed topic carrying agent-originated events (per
	// spec.md §4.A default topic set); the per-agent *:detection event name
	// travels inside the payload since the engine's topic->event mapping is
	// fixed rather than per-message.
	if _, _, _, err := s.engine.Produce("agent.actions", report.SellerID, payload); err != nil {
		s.log.Error().Err(err).Msg("failed to emit detection event")
	}

	if s.kb != nil {
		s.kb.AddKnowledge(knowledge.NamespaceDecisions, []knowledge.Record{{
			Text:      eventName + " seller " + report.SellerID + " recommendation " + report.Recommendation,
			Category:  "agent_detection",
			SellerID:  report.SellerID,
			Outcome:   report.Recommendation,
			RiskScore: report.Score,
		}})
	}
}
