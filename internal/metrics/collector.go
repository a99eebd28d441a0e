package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exposes coordination metrics through the default prometheus
// registry.
type Collector struct {
	// state store
	transitionsTotal *prometheus.CounterVec
	stateVersion     *prometheus.GaugeVec

	// handoffs
	handoffsTotal *prometheus.CounterVec

	// workflow engine
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	workflowsTotal   *prometheus.CounterVec
	workflowTokens   *prometheus.CounterVec
	workflowCost     *prometheus.CounterVec

	// snapshots and conflicts
	snapshotsTotal *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates and registers the coordination metrics under the
// given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of state transitions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	c.stateVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_version",
			Help:      "Current conversation state version",
		},
		[]string{"conversation"},
	)

	c.handoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of agent handoffs by outcome",
		},
		[]string{"outcome"},
	)

	c.stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of workflow steps by type and status",
		},
		[]string{"type", "status"},
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Workflow step duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	c.workflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Total number of finished workflows by status",
		},
		[]string{"status"},
	)

	c.workflowTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_tokens_total",
			Help:      "Total number of tokens consumed by workflow steps",
		},
		[]string{"model"},
	)

	c.workflowCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_cost_total",
			Help:      "Accumulated workflow cost",
		},
		[]string{"model"},
	)

	c.snapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Total number of snapshot operations",
		},
		[]string{"operation"},
	)

	c.conflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Total number of detected conflicts by type",
		},
		[]string{"type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordTransition counts one reducer dispatch.
func (c *Collector) RecordTransition(action string, accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	c.transitionsTotal.WithLabelValues(action, outcome).Inc()
}

// SetStateVersion tracks the live state version of a conversation.
func (c *Collector) SetStateVersion(conversationID string, version uint64) {
	c.stateVersion.WithLabelValues(conversationID).Set(float64(version))
}

// RecordHandoff counts one handoff attempt.
func (c *Collector) RecordHandoff(outcome string) {
	c.handoffsTotal.WithLabelValues(outcome).Inc()
}

// RecordStep counts one executed workflow step.
func (c *Collector) RecordStep(stepType, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(stepType, status).Inc()
	c.stepDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

// RecordWorkflow counts one finished workflow and its accounting.
func (c *Collector) RecordWorkflow(status, model string, tokens int, cost float64) {
	c.workflowsTotal.WithLabelValues(status).Inc()
	if tokens > 0 {
		c.workflowTokens.WithLabelValues(model).Add(float64(tokens))
	}
	if cost > 0 {
		c.workflowCost.WithLabelValues(model).Add(cost)
	}
}

// RecordSnapshot counts one snapshot operation ("create" or "restore").
func (c *Collector) RecordSnapshot(operation string) {
	c.snapshotsTotal.WithLabelValues(operation).Inc()
}

// RecordConflict counts one detected conflict.
func (c *Collector) RecordConflict(conflictType string) {
	c.conflictsTotal.WithLabelValues(conflictType).Inc()
}
