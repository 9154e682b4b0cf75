// Package metrics registers the engine's Prometheus collectors, exposed on
// /metrics by cmd/server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcessorCalls counts adapter calls by processor, operation and outcome.
	ProcessorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanztrust",
		Subsystem: "processor",
		Name:      "calls_total",
		Help:      "Adapter calls by processor, operation and outcome.",
	}, []string{"processor", "operation", "outcome"})

	// ProcessorLatency observes adapter call latency.
	ProcessorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fanztrust",
		Subsystem: "processor",
		Name:      "latency_seconds",
		Help:      "Adapter call latency by processor and operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"processor", "operation"})

	// BreakerState is 0=closed, 1=half_open, 2=open per processor.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fanztrust",
		Subsystem: "processor",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per processor (0=closed 1=half_open 2=open).",
	}, []string{"processor"})

	// ApprovalQueueDepth tracks pending review-queue entries.
	ApprovalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fanztrust",
		Subsystem: "approval",
		Name:      "queue_depth",
		Help:      "Pending approval-queue entries.",
	})

	// ApprovalEscalations counts SLA escalations.
	ApprovalEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fanztrust",
		Subsystem: "approval",
		Name:      "escalations_total",
		Help:      "Approvals escalated past their SLA.",
	})

	// EventOutboundDepth tracks the outbound stream length per event family.
	EventOutboundDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fanztrust",
		Subsystem: "eventbus",
		Name:      "outbound_depth",
		Help:      "Outbound event stream length per family.",
	}, []string{"family"})

	// TransactionsTotal counts transactions by terminal-ish status.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanztrust",
		Subsystem: "orchestrator",
		Name:      "transactions_total",
		Help:      "Transactions by final status.",
	}, []string{"status"})

	// WebhooksTotal counts webhook ingestion outcomes per processor.
	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanztrust",
		Subsystem: "webhook",
		Name:      "ingested_total",
		Help:      "Webhook ingestion outcomes per processor.",
	}, []string{"processor", "outcome"})
)
