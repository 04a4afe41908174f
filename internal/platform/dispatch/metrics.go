package dispatch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomePanicked  = "panicked"
	outcomeDropped   = "dropped"
)

type metrics struct {
	tasks      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueWait  prometheus.Histogram
	queueDepth prometheus.Gauge
}

var getMetrics = sync.OnceValue(func() *metrics {
	return &metrics{
		tasks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "dispatch",
			Name:      "tasks_total",
			Help:      "Side-effect tasks by name and outcome.",
		}, []string{"task", "outcome"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmacy",
			Subsystem: "dispatch",
			Name:      "task_duration_seconds",
			Help:      "Side-effect task execution time.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"task"}),
		queueWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pharmacy",
			Subsystem: "dispatch",
			Name:      "queue_wait_seconds",
			Help:      "Time tasks spend queued before a worker picks them up.",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "pharmacy",
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Tasks currently waiting in the queue.",
		}),
	}
})
