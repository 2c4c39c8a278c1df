package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetricsRegistry records HTTP activity on the settlement gateway.
type GatewayMetricsRegistry struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetricsRegistry
)

// GatewayMetrics returns the lazily-initialised gateway metrics registry.
func GatewayMetrics() *GatewayMetricsRegistry {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetricsRegistry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "intercessor",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route, method and status.",
			}, []string{"route", "method", "status"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "intercessor",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway requests that ended in a server error.",
			}, []string{"route", "method"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "intercessor",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Gateway request latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
		prometheus.MustRegister(gatewayRegistry.requests, gatewayRegistry.errors, gatewayRegistry.latency)
	})
	return gatewayRegistry
}

// ObserveRequest records a completed request.
func (m *GatewayMetricsRegistry) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.errors.WithLabelValues(route, method).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}
