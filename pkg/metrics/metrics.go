// Package metrics exposes Prometheus collectors for workflow movement and graph edits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "itemflow"

// Transition outcomes.
const (
	OutcomeCommitted    = "committed"
	OutcomeRejected     = "rejected"
	OutcomeConflict     = "conflict"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// Collector groups the collectors the services update.
type Collector struct {
	transitionsTotal     *prometheus.CounterVec
	transitionDuration   *prometheus.HistogramVec
	bulkTransitionsTotal prometheus.Counter
	bulkRejectionsTotal  prometheus.Counter
	bulkBatchSize        prometheus.Histogram
	nodesDeletedTotal    prometheus.Counter
	itemsResetTotal      prometheus.Counter
	eventPublishFailures *prometheus.CounterVec
}

// NewCollector registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in binaries and a fresh prometheus.NewRegistry() in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Single item transitions by outcome",
			},
			[]string{"outcome"},
		),
		transitionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Time spent validating and committing a transition",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		bulkTransitionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_transitions_total",
			Help:      "Bulk transition requests",
		}),
		bulkRejectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_rejections_total",
			Help:      "Items rejected by bulk transitions",
		}),
		bulkBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_batch_size",
			Help:      "Items per bulk transition request",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		nodesDeletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_descriptions_deleted_total",
			Help:      "Node descriptions removed by graph edits",
		}),
		itemsResetTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_reset_total",
			Help:      "Items returned to CREATED because their current node was deleted",
		}),
		eventPublishFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_publish_failures_total",
				Help:      "Events that could not be published after commit",
			},
			[]string{"event_type"},
		),
	}
}

func (c *Collector) RecordTransition(outcome string, duration time.Duration) {
	c.transitionsTotal.WithLabelValues(outcome).Inc()
	c.transitionDuration.WithLabelValues("single").Observe(duration.Seconds())
}

func (c *Collector) RecordBulkTransition(size, rejected int, duration time.Duration) {
	c.bulkTransitionsTotal.Inc()
	c.bulkRejectionsTotal.Add(float64(rejected))
	c.bulkBatchSize.Observe(float64(size))
	c.transitionDuration.WithLabelValues("bulk").Observe(duration.Seconds())
}

func (c *Collector) RecordNodeDeletion(nodes, resetItems int) {
	c.nodesDeletedTotal.Add(float64(nodes))
	c.itemsResetTotal.Add(float64(resetItems))
}

func (c *Collector) RecordPublishFailure(eventType string) {
	c.eventPublishFailures.WithLabelValues(eventType).Inc()
}
