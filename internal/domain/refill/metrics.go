package refill

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transitions *prometheus.CounterVec
	refused     *prometheus.CounterVec
}

var getMetrics = sync.OnceValue(func() *metrics {
	return &metrics{
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "refill",
			Name:      "transitions_total",
			Help:      "Refill requests entering each status.",
		}, []string{"status"}),
		refused: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "refill",
			Name:      "refused_total",
			Help:      "Create and respond calls refused before any write, by operation and error kind.",
		}, []string{"operation", "kind"}),
	}
})
