package broadcast

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harnsnode",
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Change events handed to subscribers by result.",
		},
		[]string{"subscriber", "result"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "harnsnode",
			Subsystem: "broadcast",
			Name:      "queue_depth",
			Help:      "Change events waiting for delivery per subscriber.",
		},
		[]string{"subscriber"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(deliveries, queueDepth)
	})
}

func recordDelivery(subscriber string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	deliveries.WithLabelValues(subscriber, result).Inc()
}
