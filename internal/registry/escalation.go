package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/model"
)

// EscalationRule pairs a predicate over a workflow with an action applied when
// the predicate matches during a sweep. The predicate is either a compiled
// expression (Condition) or a Go function (Predicate); Predicate wins when
// both are set.
type EscalationRule struct {
	ID             string
	Name           string
	Condition      string
	Predicate      func(wf *model.Workflow, now time.Time) bool
	Action         model.EscalationAction
	EscalateTo     string
	NotifyChannels []string
	Enabled        bool

	program *vm.Program
}

// Matches evaluates the rule's predicate against the workflow at the given
// sweep time. Expression evaluation errors count as non-matches.
func (r *EscalationRule) Matches(wf *model.Workflow, now time.Time) (bool, error) {
	if r.Predicate != nil {
		return r.Predicate(wf, now), nil
	}
	if r.program == nil {
		return false, nil
	}

	out, err := expr.Run(r.program, ruleEnvironment(wf, now))
	if err != nil {
		return false, fmt.Errorf("rule %s evaluation failed: %w", r.ID, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("rule %s condition did not return boolean", r.ID)
	}
	return matched, nil
}

// ruleEnvironment exposes workflow fields to rule expressions.
func ruleEnvironment(wf *model.Workflow, now time.Time) map[string]interface{} {
	env := map[string]interface{}{
		"status":             string(wf.Status),
		"priority":           wf.Priority,
		"type":               wf.Type,
		"tenant_id":          wf.TenantID,
		"age_hours":          now.Sub(wf.CreatedAt).Hours(),
		"current_step_index": wf.CurrentStepIndex,
		"step_count":         len(wf.Steps),
		"now":                now,
		"created_at":         wf.CreatedAt,
	}

	if step := wf.CurrentStep(); step != nil {
		env["step_role"] = step.AssignedRole
		env["step_overdue"] = step.Overdue(now)
		if step.DueDate != nil {
			env["step_overdue_hours"] = now.Sub(*step.DueDate).Hours()
		} else {
			env["step_overdue_hours"] = 0.0
		}
	} else {
		env["step_role"] = ""
		env["step_overdue"] = false
		env["step_overdue_hours"] = 0.0
	}

	return env
}

// EscalationRuleRegistry holds escalation rules in registration order. The
// sweep applies every matching rule in that order.
type EscalationRuleRegistry struct {
	logger *zap.Logger
	rules  []*EscalationRule
	mu     sync.RWMutex
}

// NewEscalationRuleRegistry creates a registry pre-loaded with the default
// priority-based SLA rules.
func NewEscalationRuleRegistry(logger *zap.Logger) *EscalationRuleRegistry {
	r := &EscalationRuleRegistry{logger: logger}

	for _, rule := range defaultEscalationRules() {
		if err := r.Register(rule); err != nil {
			logger.Error("Failed to register default escalation rule",
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
		}
	}

	return r
}

// Register compiles the rule's condition (if any) and appends it to the
// registry. Registration order is evaluation order.
func (r *EscalationRuleRegistry) Register(rule *EscalationRule) error {
	if rule.Condition != "" && rule.Predicate == nil {
		program, err := expr.Compile(rule.Condition, expr.AsBool())
		if err != nil {
			return fmt.Errorf("failed to compile condition for rule %s: %w", rule.ID, err)
		}
		rule.program = program
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append(r.rules, rule)
	r.logger.Info("Escalation rule registered",
		zap.String("rule_id", rule.ID),
		zap.String("action", string(rule.Action)),
	)
	return nil
}

// List returns the enabled rules in registration order.
func (r *EscalationRuleRegistry) List() []*EscalationRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*EscalationRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			rules = append(rules, rule)
		}
	}
	return rules
}

// Priority SLAs are global-age rules keyed off now - createdAt, layered on
// top of the per-step due-date check performed by the sweep itself.
func defaultEscalationRules() []*EscalationRule {
	return []*EscalationRule{
		{
			ID:             "critical-24h",
			Name:           "Critical workflows unresolved after 24 hours",
			Condition:      `priority == "critical" && age_hours > 24`,
			Action:         model.EscalationEscalate,
			EscalateTo:     "director",
			NotifyChannels: []string{"email", "in_app"},
			Enabled:        true,
		},
		{
			ID:             "high-72h",
			Name:           "High priority workflows unresolved after 72 hours",
			Condition:      `priority == "high" && age_hours > 72`,
			Action:         model.EscalationEscalate,
			EscalateTo:     "manager",
			NotifyChannels: []string{"email"},
			Enabled:        true,
		},
	}
}
