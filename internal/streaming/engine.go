package streaming

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/marketwatch/fraudmesh/internal/platform/errs"
	"github.com/marketwatch/fraudmesh/internal/platform/metrics"
	"github.com/rs/zerolog"
)

const defaultNumPartitions = 4
const defaultRetentionMs = int64(time.Hour / time.Millisecond)

// Engine owns every topic, consumer group and the explicit offset store. It is
// the single handle components reach the streaming layer through, per the
// dependency-injection container convention in spec.md §9.
type Engine struct {
	mu      sync.RWMutex
	log     zerolog.Logger
	metrics *metrics.Registry
	bus     *EventBus

	topics  map[string]*Topic
	groups  map[string]*ConsumerGroup
	offsets map[string]uint64 // "<groupId>:<consumerId>:<partition>" -> committed offset
}

// New creates an Engine and auto-creates the default topic set.
func New(log zerolog.Logger, reg *metrics.Registry) *Engine {
	e := &Engine{
		log:     log,
		metrics: reg,
		bus:     NewEventBus(),
		topics:  make(map[string]*Topic),
		groups:  make(map[string]*ConsumerGroup),
		offsets: make(map[string]uint64),
	}
	for _, name := range defaultTopics {
		_ = e.CreateTopic(name, defaultNumPartitions, defaultRetentionMs)
	}
	return e
}

// Bus exposes the internal event bus for subscribers (agents, WebSocket bridge).
func (e *Engine) Bus() *EventBus { return e.bus }

// CreateTopic is idempotent: it returns nil if a topic with that name already
// exists, leaving its partition count and retention unchanged.
func (e *Engine) CreateTopic(name string, numPartitions int, retentionMs int64) error {
	if numPartitions <= 0 {
		numPartitions = defaultNumPartitions
	}
	if retentionMs <= 0 {
		retentionMs = defaultRetentionMs
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.topics[name]; ok {
		return nil
	}

	t := &Topic{
		Name:          name,
		NumPartitions: numPartitions,
		RetentionMs:   retentionMs,
		CreatedAt:     time.Now(),
		partitions:    make([]*Partition, numPartitions),
	}
	for i := 0; i < numPartitions; i++ {
		t.partitions[i] = &Partition{id: i}
	}
	e.topics[name] = t
	return nil
}

func (e *Engine) getTopic(name string) (*Topic, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.topics[name]
	if !ok {
		return nil, errs.NewNotFound("topic %q not found", name)
	}
	return t, nil
}

// stableHash implements the spec's "stable non-cryptographic hash of the
// UTF-8 key bytes, first 4 bytes as an unsigned integer" using FNV-1a, whose
// 32-bit sum is exactly that first-4-bytes value.
func stableHash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

// Produce appends value to the partition selected by hash(key) mod N and
// forwards the message to the internal event bus.
func (e *Engine) Produce(topic, key string, value []byte) (partition int, offset uint64, ts time.Time, err error) {
	t, err := e.getTopic(topic)
	if err != nil {
		return 0, 0, time.Time{}, err
	}

	partitionID := int(stableHash(key)) % t.NumPartitions
	if partitionID < 0 {
		partitionID += t.NumPartitions
	}

	t.mu.RLock()
	p := t.partitions[partitionID]
	t.mu.RUnlock()

	p.mu.Lock()
	off := p.nextOffset
	ts = time.Now()
	p.messages = append(p.messages, Message{Offset: off, Key: key, Value: value, Timestamp: ts})
	p.nextOffset++
	p.mu.Unlock()

	if e.metrics != nil {
		e.metrics.MessagesProduced.WithLabelValues(topic).Inc()
	}

	e.bus.publish(BusEvent{
		EventName: EventNameFor(topic),
		Topic:     topic,
		Message:   Message{Offset: off, Key: key, Value: value, Timestamp: ts},
	})

	return partitionID, off, ts, nil
}

// CreateConsumerGroup is idempotent: returns the existing group if present.
func (e *Engine) CreateConsumerGroup(groupID, topic string) (*ConsumerGroup, error) {
	if _, err := e.getTopic(topic); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if g, ok := e.groups[groupID]; ok {
		return g, nil
	}

	g := &ConsumerGroup{
		GroupID:    groupID,
		TopicName:  topic,
		members:    make(map[string]struct{}),
		assignment: make(map[string][]int),
	}
	e.groups[groupID] = g
	return g, nil
}

func (e *Engine) getGroup(groupID string) (*ConsumerGroup, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.groups[groupID]
	if !ok {
		return nil, errs.NewNotFound("consumer group %q not found", groupID)
	}
	return g, nil
}

// AddConsumer joins a consumer to the group and triggers a rebalance.
func (e *Engine) AddConsumer(groupID, consumerID string) error {
	g, err := e.getGroup(groupID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.members[consumerID] = struct{}{}
	g.mu.Unlock()

	t, err := e.getTopic(g.TopicName)
	if err != nil {
		return err
	}
	rebalance(g, t.NumPartitions)
	return nil
}

// RemoveConsumer drops a consumer from the group and triggers a rebalance.
func (e *Engine) RemoveConsumer(groupID, consumerID string) error {
	g, err := e.getGroup(groupID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.members, consumerID)
	g.mu.Unlock()

	t, err := e.getTopic(g.TopicName)
	if err != nil {
		return err
	}
	rebalance(g, t.NumPartitions)
	return nil
}

// rebalance performs round-robin assignment: partition i -> member i mod |members|.
// Assignment is total and disjoint by construction.
func rebalance(g *ConsumerGroup, numPartitions int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	members := make([]string, 0, len(g.members))
	for m := range g.members {
		members = append(members, m)
	}
	// Deterministic ordering so repeated rebalances with the same membership
	// produce the same assignment.
	sortStrings(members)

	g.assignment = make(map[string][]int, len(members))
	if len(members) == 0 {
		return
	}
	for i := 0; i < numPartitions; i++ {
		owner := members[i%len(members)]
		g.assignment[owner] = append(g.assignment[owner], i)
	}
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// Record is a polled message along with its source partition.
type Record struct {
	Partition int
	Message   Message
}

// Poll returns up to maxMessages records across the consumer's assigned
// partitions, split as evenly as possible, starting at each partition's
// committed offset. Reading auto-commits to lastReadOffset+1.
func (e *Engine) Poll(groupID, consumerID string, maxMessages int) ([]Record, error) {
	g, err := e.getGroup(groupID)
	if err != nil {
		return nil, err
	}
	t, err := e.getTopic(g.TopicName)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	parts := append([]int(nil), g.assignment[consumerID]...)
	g.mu.RUnlock()

	if len(parts) == 0 || maxMessages <= 0 {
		return nil, nil
	}

	perPartition := maxMessages / len(parts)
	if perPartition == 0 {
		perPartition = 1
	}

	var out []Record
	for _, pid := range parts {
		if len(out) >= maxMessages {
			break
		}
		t.mu.RLock()
		p := t.partitions[pid]
		t.mu.RUnlock()

		want := perPartition
		if remaining := maxMessages - len(out); want > remaining {
			want = remaining
		}

		offKey := offsetKey(groupID, consumerID, pid)
		e.mu.Lock()
		startOffset := e.offsets[offKey]
		e.mu.Unlock()

		p.mu.RLock()
		idx := int(startOffset) - int(p.droppedOffset)
		if idx < 0 {
			idx = 0
		}
		var recs []Record
		for i := idx; i < len(p.messages) && len(recs) < want; i++ {
			recs = append(recs, Record{Partition: pid, Message: p.messages[i]})
		}
		p.mu.RUnlock()

		if len(recs) > 0 {
			last := recs[len(recs)-1].Message.Offset
			e.mu.Lock()
			e.offsets[offKey] = last + 1
			e.mu.Unlock()
			if e.metrics != nil {
				e.metrics.MessagesPolled.WithLabelValues(t.Name).Add(float64(len(recs)))
			}
		}
		out = append(out, recs...)
	}

	return out, nil
}

// CommitOffset explicitly sets the committed offset for (group, consumer, partition).
func (e *Engine) CommitOffset(groupID, consumerID string, partition int, offset uint64) error {
	if _, err := e.getGroup(groupID); err != nil {
		return err
	}
	e.mu.Lock()
	e.offsets[offsetKey(groupID, consumerID, partition)] = offset
	e.mu.Unlock()
	return nil
}

func offsetKey(groupID, consumerID string, partition int) string {
	return fmt.Sprintf("%s:%s:%d", groupID, consumerID, partition)
}

// PartitionLag describes the gap between what's been produced and what a
// group has committed for one partition.
type PartitionLag struct {
	Partition       int
	HighWaterMark   uint64
	CommittedOffset uint64
	Lag             uint64
}

// Lag reports, per partition, the high-water mark, the minimum committed
// offset across members assigned that partition, and the difference.
func (e *Engine) Lag(groupID string) ([]PartitionLag, error) {
	g, err := e.getGroup(groupID)
	if err != nil {
		return nil, err
	}
	t, err := e.getTopic(g.TopicName)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	assignment := g.assignment
	g.mu.RUnlock()

	ownerOf := make(map[int]string)
	for member, parts := range assignment {
		for _, p := range parts {
			ownerOf[p] = member
		}
	}

	out := make([]PartitionLag, 0, t.NumPartitions)
	for pid := 0; pid < t.NumPartitions; pid++ {
		t.mu.RLock()
		p := t.partitions[pid]
		t.mu.RUnlock()

		p.mu.RLock()
		hwm := p.droppedOffset + uint64(len(p.messages))
		p.mu.RUnlock()

		committed := hwm
		if owner, ok := ownerOf[pid]; ok {
			e.mu.RLock()
			committed = e.offsets[offsetKey(groupID, owner, pid)]
			e.mu.RUnlock()
		} else {
			committed = 0
		}

		lag := uint64(0)
		if hwm > committed {
			lag = hwm - committed
		}

		out = append(out, PartitionLag{Partition: pid, HighWaterMark: hwm, CommittedOffset: committed, Lag: lag})
	}
	return out, nil
}

// Topics lists every known topic's metadata, for the read-only introspection
// surface in spec.md §6.
func (e *Engine) Topics() []Topic {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Topic, 0, len(e.topics))
	for _, t := range e.topics {
		t.mu.RLock()
		out = append(out, Topic{Name: t.Name, NumPartitions: t.NumPartitions, RetentionMs: t.RetentionMs, CreatedAt: t.CreatedAt})
		t.mu.RUnlock()
	}
	return out
}

// ConsumerGroups lists every consumer group's id.
func (e *Engine) ConsumerGroups() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.groups))
	for id := range e.groups {
		out = append(out, id)
	}
	return out
}
