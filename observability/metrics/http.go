package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttled *prometheus.CounterVec
	streams   prometheus.Gauge
}

var (
	httpOnce     sync.Once
	httpRegistry *HTTPMetrics
)

func HTTP() *HTTPMetrics {
	httpOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "yieldd_http_requests_total",
				Help: "Count of API requests by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "yieldd_http_request_duration_seconds",
				Help:    "Latency distribution of API requests by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "yieldd_http_throttled_total",
				Help: "Count of requests rejected by the rate limiter.",
			}, []string{"route"}),
			streams: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "yieldd_event_streams",
				Help: "Open websocket event streams.",
			}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.latency,
			httpRegistry.throttled,
			httpRegistry.streams,
		)
	})
	return httpRegistry
}

func (m *HTTPMetrics) Observe(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(d.Seconds())
}

func (m *HTTPMetrics) Throttled(route string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(route).Inc()
}

func (m *HTTPMetrics) StreamOpened() {
	if m != nil {
		m.streams.Inc()
	}
}

func (m *HTTPMetrics) StreamClosed() {
	if m != nil {
		m.streams.Dec()
	}
}
