// Package streaming implements the in-process, Kafka-like partitioned log:
// topics, partitions, consumer groups, offsets and retention. It descends from
// the teacher broker's Topic/Partition/ConsumerGroup/OffsetManager types,
// generalized to support multiple members per consumer group and an in-memory
// ring instead of an on-disk log (this system carries no durability guarantee).
package streaming

import (
	"sync"
	"time"
)

// Message is an immutable record once appended to a partition.
type Message struct {
	Offset    uint64
	Key       string
	Value     []byte
	Timestamp time.Time
}

// Partition is an ordered, append-only sequence of Messages.
type Partition struct {
	mu            sync.RWMutex
	id            int
	messages      []Message
	nextOffset    uint64
	droppedOffset uint64 // cumulative offsets trimmed by retention, for lag accounting
}

// Topic owns a fixed number of partitions and a retention window.
type Topic struct {
	mu            sync.RWMutex
	Name          string
	NumPartitions int
	RetentionMs   int64
	CreatedAt     time.Time
	partitions    []*Partition
}

// ConsumerGroup tracks membership and the round-robin partition assignment for
// one topic. Every partition is owned by exactly one member; membership
// changes trigger a full rebalance.
type ConsumerGroup struct {
	mu         sync.RWMutex
	GroupID    string
	TopicName  string
	members    map[string]struct{}
	assignment map[string][]int // consumerId -> partitions
}

// defaultTopics are auto-created at startup, per spec.md §4.A.
var defaultTopics = []string{
	"transactions.received",
	"transactions.enriched",
	"transactions.scored",
	"transactions.decided",
	"risk.events",
	"alerts.created",
	"agent.actions",
	"features.materialized",
}

// topicEventNames is the fixed topic -> canonical event-type map used both to
// forward produced messages onto the internal event bus and to name the
// WebSocket channel subscribers receive (spec.md §4.A, §6).
var topicEventNames = map[string]string{
	"transactions.received":  "transaction.received",
	"transactions.enriched":  "transaction.enriched",
	"transactions.scored":    "transaction.scored",
	"transactions.decided":   "transaction.decided",
	"risk.events":            "risk.event",
	"alerts.created":         "alert.created",
	"agent.actions":          "agent.action",
	"features.materialized":  "feature.materialized",
}

// EventNameFor returns the canonical bus/WebSocket event name for a topic,
// falling back to the topic name itself for topics outside the fixed table.
func EventNameFor(topic string) string {
	if name, ok := topicEventNames[topic]; ok {
		return name
	}
	return topic
}
