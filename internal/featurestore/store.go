// Package featurestore implements the two-tier online/offline feature store:
// an in-memory TTL-bounded online tier and a write-through point-in-time
// offline tier, following the teacher's one-mutex-per-map convention
// (internal/broker/offsets.go, internal/broker/metadata.go).
package featurestore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketwatch/fraudmesh/internal/platform/metrics"
)

// Group is the fixed enumeration of feature groups, each with its own TTL.
type Group string

const (
	GroupSellerProfile      Group = "seller_profile"
	GroupTransactionVelocity Group = "transaction_velocity"
	GroupDeviceTrust        Group = "device_trust"
	GroupNetworkRisk        Group = "network_risk"
)

var groupTTL = map[Group]time.Duration{
	GroupSellerProfile:       5 * time.Minute,
	GroupTransactionVelocity: time.Minute,
	GroupDeviceTrust:         2 * time.Minute,
	GroupNetworkRisk:         5 * time.Minute,
}

// TTLFor returns the fixed TTL for a feature group, defaulting to 5 minutes
// for any group outside the fixed enumeration.
func TTLFor(g Group) time.Duration {
	if d, ok := groupTTL[g]; ok {
		return d
	}
	return 5 * time.Minute
}

// Entry is a materialised feature payload for one entity/group.
type Entry struct {
	Payload   map[string]any
	UpdatedAt time.Time
	TTL       time.Duration
}

func (e Entry) expired(now time.Time) bool {
	return now.Sub(e.UpdatedAt) > e.TTL
}

// Stats tallies reads/writes/hits/misses, and per-group fresh/stale counts.
type Stats struct {
	Reads, Writes, Hits, Misses int64
	groupFresh, groupStale      sync.Map // Group -> *int64
}

func (s *Stats) bump(m *sync.Map, g Group) {
	v, _ := m.LoadOrStore(g, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// HitRate returns hits/(hits+misses), or 0 when there have been no reads.
func (s *Stats) HitRate() float64 {
	hits := atomic.LoadInt64(&s.Hits)
	misses := atomic.LoadInt64(&s.Misses)
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Store is the two-tier feature store.
type Store struct {
	mu      sync.RWMutex
	online  map[string]map[Group]Entry
	offline map[string]Entry // "<entity>:<group>" or "<entity>:<group>:<ts>"
	stats   Stats
	metrics *metrics.Registry
}

func New(reg *metrics.Registry) *Store {
	return &Store{
		online:  make(map[string]map[Group]Entry),
		offline: make(map[string]Entry),
		metrics: reg,
	}
}

func latestKey(entity string, g Group) string { return fmt.Sprintf("%s:%s", entity, g) }
func pitKey(entity string, g Group, ts time.Time) string {
	return fmt.Sprintf("%s:%s:%d", entity, g, ts.UnixMilli())
}

// PutFeatures stamps updatedAt=now, ttl=groupTTL, writes through to the
// offline tier under both the latest key and a point-in-time key.
func (s *Store) PutFeatures(entity string, g Group, payload map[string]any) Entry {
	now := time.Now()
	entry := Entry{Payload: payload, UpdatedAt: now, TTL: TTLFor(g)}

	s.mu.Lock()
	if s.online[entity] == nil {
		s.online[entity] = make(map[Group]Entry)
	}
	s.online[entity][g] = entry
	s.offline[latestKey(entity, g)] = entry
	s.offline[pitKey(entity, g, now)] = entry
	s.mu.Unlock()

	atomic.AddInt64(&s.stats.Writes, 1)
	return entry
}

// GetFeatures returns the payload iff now-updatedAt <= ttl, otherwise evicts
// the online entry and reports a miss.
func (s *Store) GetFeatures(entity string, g Group) (map[string]any, bool) {
	atomic.AddInt64(&s.stats.Reads, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	byGroup := s.online[entity]
	entry, ok := byGroup[g]
	if !ok {
		atomic.AddInt64(&s.stats.Misses, 1)
		s.stats.bump(&s.stats.groupStale, g)
		if s.metrics != nil {
			s.metrics.FeatureStoreMisses.Inc()
		}
		return nil, false
	}

	if entry.expired(time.Now()) {
		delete(byGroup, g)
		atomic.AddInt64(&s.stats.Misses, 1)
		s.stats.bump(&s.stats.groupStale, g)
		if s.metrics != nil {
			s.metrics.FeatureStoreMisses.Inc()
		}
		return nil, false
	}

	atomic.AddInt64(&s.stats.Hits, 1)
	s.stats.bump(&s.stats.groupFresh, g)
	if s.metrics != nil {
		s.metrics.FeatureStoreHits.Inc()
	}
	return entry.Payload, true
}

// GetFeaturesAsOf attempts an exact point-in-time hit; falls back to the
// latest entry iff its updatedAt <= ts; otherwise misses.
func (s *Store) GetFeaturesAsOf(entity string, g Group, ts time.Time) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.offline[pitKey(entity, g, ts)]; ok {
		return e.Payload, true
	}
	if e, ok := s.offline[latestKey(entity, g)]; ok && !e.UpdatedAt.After(ts) {
		return e.Payload, true
	}
	return nil, false
}

// Snapshot returns a snapshot of store counters.
func (s *Store) Snapshot() Stats {
	return Stats{
		Reads:   atomic.LoadInt64(&s.stats.Reads),
		Writes:  atomic.LoadInt64(&s.stats.Writes),
		Hits:    atomic.LoadInt64(&s.stats.Hits),
		Misses:  atomic.LoadInt64(&s.stats.Misses),
	}
}
