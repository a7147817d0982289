package link

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	linkRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harnsnode",
			Subsystem: "link",
			Name:      "requests_total",
			Help:      "Device link request/reply exchanges by result.",
		},
		[]string{"uri", "result"},
	)
	linkRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "harnsnode",
			Subsystem: "link",
			Name:      "request_duration_seconds",
			Help:      "Device link exchange duration in seconds.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"uri"},
	)
	linkConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harnsnode",
			Subsystem: "link",
			Name:      "connect_attempts_total",
			Help:      "Device link connect attempts by result.",
		},
		[]string{"uri", "result"},
	)
	linkState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "harnsnode",
			Subsystem: "link",
			Name:      "state",
			Help:      "Current device link state (0 disconnected, 1 connecting, 2 identifying, 3 connected, 4 failed, 5 closed).",
		},
		[]string{"uri"},
	)
)

// RegisterMetrics registers the link collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(linkRequests, linkRequestDuration, linkConnects, linkState)
	})
}

func recordExchange(uri, result string, d time.Duration) {
	linkRequests.WithLabelValues(uri, result).Inc()
	linkRequestDuration.WithLabelValues(uri).Observe(d.Seconds())
}

func recordConnect(uri string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	linkConnects.WithLabelValues(uri, result).Inc()
}

func recordState(uri string, s State) {
	linkState.WithLabelValues(uri).Set(float64(s))
}
