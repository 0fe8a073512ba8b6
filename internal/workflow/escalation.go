package workflow

import (
	"time"

	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/model"
	"github.com/clearcomply/remediation-engine/internal/registry"
)

// SweepResult summarizes one escalation sweep.
type SweepResult struct {
	Checked   int `json:"checked"`
	Overdue   int `json:"overdue"`
	Applied   int `json:"applied"`
	Failures  int `json:"failures"`
	DurationMs int64 `json:"duration_ms"`
}

// appliedEscalation is a pending event emission collected under the engine
// lock and published after it is released.
type appliedEscalation struct {
	workflow *model.Workflow
	action   model.Action
	record   *model.TransitionRecord
	notify   bool
}

// CheckEscalations sweeps all non-terminal workflows whose current step is
// past its due date and applies every matching escalation rule in
// registration order. Failures are isolated per workflow: one workflow's
// rule-evaluation error never aborts the sweep for the rest.
func (e *Engine) CheckEscalations() SweepResult {
	start := e.now()
	rules := e.rules.List()
	result := SweepResult{}

	var applied []appliedEscalation

	e.mu.Lock()
	for id, wf := range e.workflows {
		if wf.Status.Terminal() || wf.Status == model.StatusRejected {
			continue
		}
		result.Checked++

		step := wf.CurrentStep()
		if step == nil || !step.Overdue(start) {
			continue
		}
		result.Overdue++

		for _, rule := range rules {
			matched, err := rule.Matches(wf, start)
			if err != nil {
				result.Failures++
				e.metrics.RecordSweepError()
				e.logger.Error("Escalation rule evaluation failed",
					zap.String("workflow_id", id),
					zap.String("rule_id", rule.ID),
					zap.Error(err),
				)
				continue
			}
			if !matched {
				continue
			}

			outcome, err := e.applyEscalationLocked(wf, rule, start)
			if err != nil {
				result.Failures++
				e.metrics.RecordSweepError()
				e.logger.Warn("Escalation action not applied",
					zap.String("workflow_id", id),
					zap.String("rule_id", rule.ID),
					zap.String("action", string(rule.Action)),
					zap.Error(err),
				)
				continue
			}

			result.Applied++
			e.metrics.RecordEscalationApplied(string(rule.Action))
			if outcome != nil {
				applied = append(applied, *outcome)
			}
		}
	}
	e.mu.Unlock()

	for _, a := range applied {
		if a.record != nil {
			e.publishTransition(a.workflow, a.action, a.record)
		}
		if a.notify {
			e.notifier.Dispatch("workflow_escalated", a.workflow, map[string]interface{}{
				"escalated_by": model.SystemActor,
			})
		}
	}

	result.DurationMs = e.now().Sub(start).Milliseconds()
	e.metrics.ObserveSweepDuration(float64(result.DurationMs) / 1000.0)

	e.logger.Info("Escalation sweep completed",
		zap.Int("checked", result.Checked),
		zap.Int("overdue", result.Overdue),
		zap.Int("applied", result.Applied),
		zap.Int("failures", result.Failures),
	)

	return result
}

// applyEscalationLocked applies one matched rule to a workflow. Caller holds
// the engine mutex.
func (e *Engine) applyEscalationLocked(wf *model.Workflow, rule *registry.EscalationRule, now time.Time) (*appliedEscalation, error) {
	switch rule.Action {
	case model.EscalationEscalate:
		snapshot, record, err := e.transitionLocked(wf.ID, model.ActionEscalate, model.SystemActor, "escalated by rule "+rule.ID, nil)
		if err != nil {
			return nil, err
		}
		if rule.EscalateTo != "" {
			if step := wf.CurrentStep(); step != nil {
				step.AssignedTo = rule.EscalateTo
				wf.UpdatedAt = now
				snapshot = cloneWorkflow(wf)
			}
		}
		return &appliedEscalation{workflow: snapshot, action: model.ActionEscalate, record: record}, nil

	case model.EscalationNotify:
		return &appliedEscalation{workflow: cloneWorkflow(wf), notify: true}, nil

	case model.EscalationAutoApprove:
		snapshot, record, err := e.transitionLocked(wf.ID, model.ActionApprove, model.SystemActor, "auto-approved by rule "+rule.ID, nil)
		if err != nil {
			return nil, err
		}
		return &appliedEscalation{workflow: snapshot, action: model.ActionApprove, record: record}, nil

	case model.EscalationAutoReject:
		snapshot, record, err := e.transitionLocked(wf.ID, model.ActionReject, model.SystemActor, "auto-rejected by rule "+rule.ID, nil)
		if err != nil {
			return nil, err
		}
		return &appliedEscalation{workflow: snapshot, action: model.ActionReject, record: record}, nil

	default:
		e.logger.Warn("Unknown escalation action",
			zap.String("rule_id", rule.ID),
			zap.String("action", string(rule.Action)),
		)
		return nil, nil
	}
}
