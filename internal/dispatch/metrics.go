// ABOUTME: Prometheus collectors for the dispatch pipeline.
// ABOUTME: Requests by method/code/route, forward retries and latency, in-flight gauge.

package dispatch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dispatcher's collectors. A nil *Metrics disables
// recording, so tests and the fake instance can skip a registry.
type Metrics struct {
	requests       *prometheus.CounterVec
	retries        prometheus.Counter
	forwardLatency prometheus.Histogram
	inFlight       prometheus.Gauge
}

// NewMetrics registers the dispatch collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drawbridge",
			Name:      "requests_total",
			Help:      "Dispatched requests by method, response code (0 = success), and route taken.",
		}, []string{"method", "code", "routed"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "drawbridge",
			Name:      "forward_retries_total",
			Help:      "Retry attempts made by the forwarding client.",
		}),
		forwardLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "drawbridge",
			Name:      "forward_duration_seconds",
			Help:      "Wall time of remote forward calls, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "drawbridge",
			Name:      "requests_in_flight",
			Help:      "Requests currently being dispatched.",
		}),
	}
}

// RetryHook adapts the metrics to the forwarding client's retry callback.
func (m *Metrics) RetryHook() func(endpoint, method string) {
	if m == nil {
		return nil
	}
	return func(string, string) { m.retries.Inc() }
}

func (m *Metrics) observeRequest(method string, code int, routed string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, codeLabel(code), routed).Inc()
}

func (m *Metrics) observeForward(d time.Duration) {
	if m == nil {
		return
	}
	m.forwardLatency.Observe(d.Seconds())
}

func (m *Metrics) trackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func codeLabel(code int) string {
	if code == 0 {
		return "ok"
	}
	return strconv.Itoa(code)
}
