// Package metrics centralizes the prometheus collectors every component registers into.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters and histograms components increment. A single
// instance is created in the container and handed to every component, rather
// than relying on prometheus' global default registry.
type Registry struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	MessagesProduced *prometheus.CounterVec
	MessagesPolled   *prometheus.CounterVec
	ConsumerLag      *prometheus.GaugeVec

	FeatureStoreHits   prometheus.Counter
	FeatureStoreMisses prometheus.Counter

	RiskEventsEmitted *prometheus.CounterVec
	TierEscalations   *prometheus.CounterVec

	AgentCycleDuration *prometheus.HistogramVec
	AgentDetections    *prometheus.CounterVec

	GraphRingsDetected prometheus.Counter
}

// New builds a fresh Registry backed by its own prometheus.Registry (never the
// global default, so tests can construct isolated instances).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registerer: reg,
		Gatherer:   reg,
		MessagesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudmesh_messages_produced_total",
			Help: "Messages appended to the streaming engine, by topic.",
		}, []string{"topic"}),
		MessagesPolled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudmesh_messages_polled_total",
			Help: "Messages returned to consumers, by topic.",
		}, []string{"topic"}),
		ConsumerLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fraudmesh_consumer_lag",
			Help: "Per-partition consumer lag.",
		}, []string{"group", "topic", "partition"}),
		FeatureStoreHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fraudmesh_feature_store_hits_total",
			Help: "Feature store reads satisfied within TTL.",
		}),
		FeatureStoreMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fraudmesh_feature_store_misses_total",
			Help: "Feature store reads that missed or expired.",
		}),
		RiskEventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudmesh_risk_events_emitted_total",
			Help: "Risk events emitted, by domain.",
		}, []string{"domain"}),
		TierEscalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudmesh_tier_transitions_total",
			Help: "Seller risk tier transitions, by direction.",
		}, []string{"direction"}),
		AgentCycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "fraudmesh_agent_cycle_duration_seconds",
			Help: "Duration of an agent reasoning cycle.",
		}, []string{"agent"}),
		AgentDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudmesh_agent_detections_total",
			Help: "Detections emitted by an agent.",
		}, []string{"agent"}),
		GraphRingsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fraudmesh_graph_rings_detected_total",
			Help: "Fraud rings surfaced by cluster detection.",
		}),
	}

	reg.MustRegister(
		r.MessagesProduced, r.MessagesPolled, r.ConsumerLag,
		r.FeatureStoreHits, r.FeatureStoreMisses,
		r.RiskEventsEmitted, r.TierEscalations,
		r.AgentCycleDuration, r.AgentDetections,
		r.GraphRingsDetected,
	)

	return r
}
