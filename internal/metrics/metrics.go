// Package metrics holds the workflow's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workflowDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "p2p",
		Subsystem: "workflow",
		Name:      "decisions_total",
		Help:      "Approval decisions broken down by decision, level and result.",
	}, []string{"decision", "level", "result"})

	ordersGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "p2p",
		Name:      "purchase_orders_generated_total",
		Help:      "Purchase orders committed after a final approval.",
	})

	generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "p2p",
		Name:      "purchase_order_generation_failures_total",
		Help:      "Purchase order generation failures by stage.",
	}, []string{"stage"})

	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "p2p",
		Name:      "purchase_order_generation_seconds",
		Help:      "Time spent numbering, rendering and storing a purchase order.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "p2p",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status class.",
	}, []string{"method", "route", "result"})
)

// Decision results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected" // refused by policy or state machine
	ResultFailed   = "failed"
)

// Generation failure stages.
const (
	StageSequence = "sequence"
	StageRender   = "render"
	StagePersist  = "persist"
)

func ObserveDecision(decision, level, result string) {
	workflowDecisions.WithLabelValues(decision, level, result).Inc()
}

func OrderGenerated() {
	ordersGenerated.Inc()
}

func GenerationFailed(stage string) {
	generationFailures.WithLabelValues(stage).Inc()
}

func ObserveGeneration(started time.Time) {
	generationLatency.Observe(time.Since(started).Seconds())
}

func ObserveHTTP(method, route string, status int) {
	result := "2xx"
	switch {
	case status >= 500:
		result = "5xx"
	case status >= 400:
		result = "4xx"
	case status >= 300:
		result = "3xx"
	}
	httpRequests.WithLabelValues(method, route, result).Inc()
}
