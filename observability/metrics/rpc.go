package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics tracks the JSON-RPC surface.
type RPCMetrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	throttles   prometheus.Counter
	wsStreams   prometheus.Gauge
	idempotency *prometheus.CounterVec
}

var (
	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

// RPC returns the lazily-initialised JSON-RPC metrics.
func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "healthkey",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "healthkey",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "healthkey",
				Subsystem: "rpc",
				Name:      "throttled_total",
				Help:      "Requests rejected by the per-client rate limiter.",
			}),
			wsStreams: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "healthkey",
				Subsystem: "rpc",
				Name:      "event_streams",
				Help:      "Open websocket event streams.",
			}),
			idempotency: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "healthkey",
				Subsystem: "rpc",
				Name:      "idempotent_replays_total",
				Help:      "Submissions answered from the idempotency store.",
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.latency,
			rpcRegistry.throttles,
			rpcRegistry.wsStreams,
			rpcRegistry.idempotency,
		)
	})
	return rpcRegistry
}

func (m *RPCMetrics) Observe(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *RPCMetrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.throttles.Inc()
}

func (m *RPCMetrics) StreamOpened() {
	if m == nil {
		return
	}
	m.wsStreams.Inc()
}

func (m *RPCMetrics) StreamClosed() {
	if m == nil {
		return
	}
	m.wsStreams.Dec()
}

func (m *RPCMetrics) RecordReplay(method string) {
	if m == nil {
		return
	}
	m.idempotency.WithLabelValues(method).Inc()
}
