// Package metrics defines the Prometheus instruments an engine reports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nostrstore"

// Metrics holds all Prometheus metrics for one engine instance.
type Metrics struct {
	// Ingestion metrics
	SubmittedTotal  prometheus.Counter
	StoredTotal     prometheus.Counter
	DuplicatesTotal prometheus.Counter
	RejectedTotal   *prometheus.CounterVec
	BloomSkipsTotal prometheus.Counter
	QueueDepth      prometheus.GaugeFunc

	// Commit metrics
	CommitBatchesTotal  prometheus.Counter
	CommitRetriesTotal  prometheus.Counter
	CommitDuration      prometheus.Histogram
	CommitBatchSize     prometheus.Histogram
	ProfileUpdatesTotal prometheus.Counter

	// Read-side metrics
	OpenSnapshots       prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
	SubscriptionDropped prometheus.Counter
	SubscriptionMatched prometheus.Counter
}

// New creates all metrics and registers them with reg. Every series carries
// the engine_id label. queueDepth is sampled at scrape time.
func New(reg prometheus.Registerer, engineID string, queueDepth func() float64) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"engine_id": engineID}

	return &Metrics{
		SubmittedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "submitted_total",
			Help:        "Total number of raw events submitted",
			ConstLabels: labels,
		}),
		StoredTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "stored_total",
			Help:        "Total number of events committed",
			ConstLabels: labels,
		}),
		DuplicatesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "duplicates_total",
			Help:        "Total number of submissions whose id was already stored",
			ConstLabels: labels,
		}),
		RejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "rejected_total",
			Help:        "Total number of rejected submissions, labelled by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		BloomSkipsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "bloom_skips_total",
			Help:        "Total number of duplicate lookups skipped by the id prefilter",
			ConstLabels: labels,
		}),

		QueueDepth: f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "queue_depth",
			Help:        "Number of submissions waiting for a worker",
			ConstLabels: labels,
		}, queueDepth),

		CommitBatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "commit",
			Name:        "batches_total",
			Help:        "Total number of committed write transactions",
			ConstLabels: labels,
		}),
		CommitRetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "commit",
			Name:        "retries_total",
			Help:        "Total number of failed batches retried one record at a time",
			ConstLabels: labels,
		}),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "commit",
			Name:        "duration_seconds",
			Help:        "Write transaction duration in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 16),
			ConstLabels: labels,
		}),
		CommitBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "commit",
			Name:        "batch_size",
			Help:        "Number of records per write transaction",
			Buckets:     []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
			ConstLabels: labels,
		}),
		ProfileUpdatesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "commit",
			Name:        "profile_updates_total",
			Help:        "Total number of profile cache replacements",
			ConstLabels: labels,
		}),

		OpenSnapshots: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "read",
			Name:        "open_snapshots",
			Help:        "Number of snapshots not yet ended",
			ConstLabels: labels,
		}),
		ActiveSubscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "subscription",
			Name:        "active",
			Help:        "Number of live subscriptions",
			ConstLabels: labels,
		}),
		SubscriptionDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "subscription",
			Name:        "dropped_total",
			Help:        "Total number of pending matches dropped by a full queue",
			ConstLabels: labels,
		}),
		SubscriptionMatched: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "subscription",
			Name:        "matched_total",
			Help:        "Total number of records queued for subscriptions",
			ConstLabels: labels,
		}),
	}
}
