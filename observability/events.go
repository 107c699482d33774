package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published *prometheus.CounterVec
	sinkFails *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the registry counting published protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed protocol events segmented by type.",
			}, []string{"type"}),
			sinkFails: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "usda",
				Subsystem: "events",
				Name:      "sink_failures_total",
				Help:      "Event sink write failures segmented by sink.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.sinkFails)
	})
	return eventRegistry
}

func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.published.WithLabelValues(normalized).Inc()
}

func (m *eventMetrics) RecordSinkFailure(sink string) {
	if m == nil {
		return
	}
	if sink == "" {
		sink = "unknown"
	}
	m.sinkFails.WithLabelValues(sink).Inc()
}
