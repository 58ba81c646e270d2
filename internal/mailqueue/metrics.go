package mailqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chakraerp"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mailqueue",
			Name:      "queue_size",
			Help:      "Number of email jobs in queue by status",
		},
		[]string{"status"},
	)

	deadLetterSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mailqueue",
			Name:      "dead_letters",
			Help:      "Number of email jobs that exhausted their retry budget",
		},
	)

	emailsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailqueue",
			Name:      "enqueued_total",
			Help:      "Total email jobs enqueued",
		},
		[]string{"kind"},
	)

	emailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailqueue",
			Name:      "processed_total",
			Help:      "Total dispatch attempts by outcome",
		},
		[]string{"kind", "outcome"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mailqueue",
			Name:      "send_duration_seconds",
			Help:      "Time to dispatch one email",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	queueFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailqueue",
			Name:      "queue_fetched_total",
			Help:      "Total email jobs fetched from queue before dispatch attempt",
		},
	)

	emailsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailqueue",
			Name:      "swept_total",
			Help:      "Total sent email jobs deleted by retention cleanup",
		},
	)
)

func recordEnqueued(kind string) {
	emailsEnqueued.WithLabelValues(kind).Inc()
}

func recordProcessed(kind, outcome string) {
	emailsProcessed.WithLabelValues(kind, outcome).Inc()
}

func recordSendDuration(kind string, d time.Duration) {
	sendDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func recordQueueFetched(count int) {
	queueFetched.Add(float64(count))
}

func recordSwept(count int64) {
	emailsSwept.Add(float64(count))
}

// RecordQueueStats updates queue size gauges.
func RecordQueueStats(stats *QueueStats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	queueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	queueSize.WithLabelValues("failed").Set(float64(stats.Failed))
	deadLetterSize.Set(float64(stats.DeadLetters))
}
