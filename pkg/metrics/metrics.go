// Package metrics provides Prometheus metrics for the iris service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IdentifyRequestsTotal tracks identify calls by outcome
	// (created, extended, merged, unchanged, invalid, busy, error).
	IdentifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "identify",
			Name:      "requests_total",
			Help:      "Total number of identify requests by outcome",
		},
		[]string{"outcome"},
	)

	IdentifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iris",
			Subsystem: "identify",
			Name:      "duration_seconds",
			Help:      "Duration of identify requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)

	// ClusterMergesTotal counts primaries demoted by merges
	ClusterMergesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "cluster",
			Name:      "demoted_primaries_total",
			Help:      "Total number of primary contacts demoted to secondary by a merge",
		},
	)

	ClusterSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "iris",
			Subsystem: "cluster",
			Name:      "size",
			Help:      "Number of contacts in the cluster returned by identify",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100, 500},
		},
	)

	ContactsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "store",
			Name:      "contacts_created_total",
			Help:      "Total number of contacts created by link precedence",
		},
		[]string{"link_precedence"},
	)

	// LockRetriesTotal counts cluster lock rounds that had to be repeated
	LockRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "lock",
			Name:      "retries_total",
			Help:      "Total number of times a cluster changed while its lock was being taken",
		},
	)

	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of Kafka messages published",
		},
		[]string{"topic", "status"},
	)

	GraphProjectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "graph",
			Name:      "projections_total",
			Help:      "Total number of cluster projections written to the graph database",
		},
		[]string{"status"},
	)
)

// RecordIdentify records one identify call.
func RecordIdentify(outcome string, durationSeconds float64) {
	IdentifyRequestsTotal.WithLabelValues(outcome).Inc()
	IdentifyDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

func RecordContactCreated(linkPrecedence string) {
	ContactsCreatedTotal.WithLabelValues(linkPrecedence).Inc()
}

func RecordMerge(demoted int) {
	ClusterMergesTotal.Add(float64(demoted))
}

func RecordClusterSize(size int) {
	ClusterSize.Observe(float64(size))
}

func RecordLockRetry() {
	LockRetriesTotal.Inc()
}

func RecordKafkaPublish(topic, status string, count int) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Add(float64(count))
}

func RecordGraphProjection(status string) {
	GraphProjectionsTotal.WithLabelValues(status).Inc()
}
