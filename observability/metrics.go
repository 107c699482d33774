package observability

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type operationMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type crossChainMetrics struct {
	sent      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	applied   *prometheus.CounterVec
	feesTotal prometheus.Counter
}

var (
	operationOnce     sync.Once
	operationRegistry *operationMetrics

	httpOnce     sync.Once
	httpRegistry *httpMetrics

	crossChainOnce     sync.Once
	crossChainRegistry *crossChainMetrics
)

// Operations tracks node calls by operation name and outcome.
func Operations() *operationMetrics {
	operationOnce.Do(func() {
		operationRegistry = &operationMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "node",
				Name:      "operations_total",
				Help:      "Node operations segmented by name and outcome.",
			}, []string{"op", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "node",
				Name:      "operation_errors_total",
				Help:      "Rejected node operations segmented by error reason.",
			}, []string{"op", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "usda",
				Subsystem: "node",
				Name:      "operation_duration_seconds",
				Help:      "Latency of node operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
		}
		prometheus.MustRegister(operationRegistry.requests, operationRegistry.errors, operationRegistry.latency)
	})
	return operationRegistry
}

// Observe records one operation. A non-nil err is labelled by its innermost
// sentinel message.
func (m *operationMetrics) Observe(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op, reason(err)).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func reason(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// HTTP tracks gateway requests.
func HTTP() *httpMetrics {
	httpOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route, method and status.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "usda",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.throttles.WithLabelValues(route).Inc()
}

// CrossChain tracks snapshot delivery to and from the peer deployment.
func CrossChain() *crossChainMetrics {
	crossChainOnce.Do(func() {
		crossChainRegistry = &crossChainMetrics{
			sent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "crosschain",
				Name:      "messages_sent_total",
				Help:      "Snapshots delivered to the peer by destination chain.",
			}, []string{"dst"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "crosschain",
				Name:      "delivery_failures_total",
				Help:      "Failed delivery attempts by destination chain.",
			}, []string{"dst"}),
			applied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "crosschain",
				Name:      "messages_received_total",
				Help:      "Received snapshots by source chain and whether they were applied.",
			}, []string{"src", "applied"}),
			feesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "crosschain",
				Name:      "fees_wei_total",
				Help:      "Native messaging fees charged to callers.",
			}),
		}
		prometheus.MustRegister(crossChainRegistry.sent, crossChainRegistry.failures, crossChainRegistry.applied, crossChainRegistry.feesTotal)
	})
	return crossChainRegistry
}

func (m *crossChainMetrics) RecordSent(dst uint64) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(fmt.Sprintf("%d", dst)).Inc()
}

func (m *crossChainMetrics) RecordFailure(dst uint64) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(fmt.Sprintf("%d", dst)).Inc()
}

func (m *crossChainMetrics) RecordReceived(src uint64, applied bool) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(fmt.Sprintf("%d", src), fmt.Sprintf("%t", applied)).Inc()
}

func (m *crossChainMetrics) AddFee(wei float64) {
	if m == nil || wei <= 0 {
		return
	}
	m.feesTotal.Add(wei)
}
