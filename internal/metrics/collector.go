package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all metrics for the remediation engine
type Collector struct {
	workflowsCreated    prometheus.Counter
	transitions         *prometheus.CounterVec
	invalidTransitions  prometheus.Counter
	workflowsNotFound   prometheus.Counter
	escalationsApplied  *prometheus.CounterVec
	notificationIntents *prometheus.CounterVec
	activeWorkflows     *prometheus.GaugeVec
	sweepDuration       prometheus.Histogram
	sweepErrors         prometheus.Counter
}

// NewCollector creates a new metrics collector registered on the given registerer
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		workflowsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "workflows_created_total",
			Help:      "Total number of remediation workflows created",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "transitions_total",
			Help:      "Total number of successful workflow transitions by action",
		}, []string{"action"}),
		invalidTransitions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "invalid_transitions_total",
			Help:      "Total number of rejected workflow transitions",
		}),
		workflowsNotFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "workflows_not_found_total",
			Help:      "Total number of operations against unknown workflow IDs",
		}),
		escalationsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "escalations_applied_total",
			Help:      "Total number of escalation rule actions applied by action type",
		}, []string{"action"}),
		notificationIntents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "notification_intents_total",
			Help:      "Total number of notification intents published by event",
		}, []string{"event"}),
		activeWorkflows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "active_workflows",
			Help:      "Current number of workflows by status",
		}, []string{"status"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "escalation_sweep_duration_seconds",
			Help:      "Duration of escalation sweep runs",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "clearcomply",
			Subsystem: "remediation",
			Name:      "escalation_sweep_errors_total",
			Help:      "Total number of per-workflow errors isolated during escalation sweeps",
		}),
	}
}

// RecordWorkflowCreated increments the workflow creation counter
func (c *Collector) RecordWorkflowCreated() {
	c.workflowsCreated.Inc()
}

// RecordTransition increments the transition counter for an action
func (c *Collector) RecordTransition(action string) {
	c.transitions.WithLabelValues(action).Inc()
}

// RecordInvalidTransition increments the rejected transition counter
func (c *Collector) RecordInvalidTransition() {
	c.invalidTransitions.Inc()
}

// RecordWorkflowNotFound increments the unknown workflow counter
func (c *Collector) RecordWorkflowNotFound() {
	c.workflowsNotFound.Inc()
}

// RecordEscalationApplied increments the escalation action counter
func (c *Collector) RecordEscalationApplied(action string) {
	c.escalationsApplied.WithLabelValues(action).Inc()
}

// RecordNotificationIntent increments the notification intent counter
func (c *Collector) RecordNotificationIntent(event string) {
	c.notificationIntents.WithLabelValues(event).Inc()
}

// SetActiveWorkflows sets the gauge for a workflow status
func (c *Collector) SetActiveWorkflows(status string, count int) {
	c.activeWorkflows.WithLabelValues(status).Set(float64(count))
}

// ObserveSweepDuration records the duration of an escalation sweep
func (c *Collector) ObserveSweepDuration(seconds float64) {
	c.sweepDuration.Observe(seconds)
}

// RecordSweepError increments the isolated sweep error counter
func (c *Collector) RecordSweepError() {
	c.sweepErrors.Inc()
}
