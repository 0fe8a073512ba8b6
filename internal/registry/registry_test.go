package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/model"
)

func TestApprovalChainRegistry(t *testing.T) {
	r := NewApprovalChainRegistry(zap.NewNop())

	t.Run("Default Chains Are Loaded", func(t *testing.T) {
		critical := r.Get("critical-3-level")
		require.NotNil(t, critical)
		require.Len(t, critical.Steps, 3)
		assert.Equal(t, "supervisor", critical.Steps[0].ApproverRole)
		assert.Equal(t, 24, critical.Steps[0].TimeoutHours)
		assert.Equal(t, 48, critical.Steps[1].TimeoutHours)
		assert.Equal(t, 72, critical.Steps[2].TimeoutHours)

		high := r.Get("high-2-level")
		require.NotNil(t, high)
		assert.Len(t, high.Steps, 2)

		standard := r.Get("standard")
		require.NotNil(t, standard)
		assert.Len(t, standard.Steps, 1)
		assert.Equal(t, 120, standard.Steps[0].TimeoutHours)
	})

	t.Run("Unknown Chain Is Nil", func(t *testing.T) {
		assert.Nil(t, r.Get("nope"))
	})

	t.Run("Register Replaces Existing Chain", func(t *testing.T) {
		r.Register(&model.ApprovalChain{
			ID:    "standard",
			Name:  "Custom Standard",
			Steps: []model.ApprovalChainStep{{Level: 1, ApproverRole: "lead", RequiredApprovals: 2, TimeoutHours: 12}},
		})

		chain := r.Get("standard")
		require.NotNil(t, chain)
		assert.Equal(t, "Custom Standard", chain.Name)
		assert.Equal(t, 2, chain.Steps[0].RequiredApprovals)
	})
}

func TestEscalationRuleRegistry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	criticalWorkflow := func(age time.Duration) *model.Workflow {
		return &model.Workflow{
			ID:        "wf-1",
			TenantID:  "t1",
			Priority:  model.PriorityCritical,
			Status:    model.StatusInReview,
			CreatedAt: now.Add(-age),
			Steps:     []model.Step{{AssignedRole: "supervisor", Status: model.StepInReview}},
		}
	}

	t.Run("Default Critical Rule Matches After 24 Hours", func(t *testing.T) {
		r := NewEscalationRuleRegistry(zap.NewNop())
		rules := r.List()
		require.Len(t, rules, 2)
		assert.Equal(t, "critical-24h", rules[0].ID)
		assert.Equal(t, "high-72h", rules[1].ID)

		matched, err := rules[0].Matches(criticalWorkflow(25*time.Hour), now)
		require.NoError(t, err)
		assert.True(t, matched)

		matched, err = rules[0].Matches(criticalWorkflow(23*time.Hour), now)
		require.NoError(t, err)
		assert.False(t, matched)
	})

	t.Run("High Rule Ignores Critical Workflows", func(t *testing.T) {
		r := NewEscalationRuleRegistry(zap.NewNop())
		matched, err := r.List()[1].Matches(criticalWorkflow(100*time.Hour), now)
		require.NoError(t, err)
		assert.False(t, matched)
	})

	t.Run("Registration Order Is Evaluation Order", func(t *testing.T) {
		r := NewEscalationRuleRegistry(zap.NewNop())
		require.NoError(t, r.Register(&EscalationRule{
			ID:        "custom",
			Condition: "true",
			Action:    model.EscalationNotify,
			Enabled:   true,
		}))

		rules := r.List()
		require.Len(t, rules, 3)
		assert.Equal(t, "custom", rules[2].ID)
	})

	t.Run("Disabled Rules Are Not Listed", func(t *testing.T) {
		r := NewEscalationRuleRegistry(zap.NewNop())
		require.NoError(t, r.Register(&EscalationRule{
			ID:        "off",
			Condition: "true",
			Action:    model.EscalationNotify,
			Enabled:   false,
		}))

		for _, rule := range r.List() {
			assert.NotEqual(t, "off", rule.ID)
		}
	})

	t.Run("Invalid Condition Fails Registration", func(t *testing.T) {
		r := NewEscalationRuleRegistry(zap.NewNop())
		err := r.Register(&EscalationRule{
			ID:        "broken",
			Condition: `priority == `,
			Action:    model.EscalationNotify,
			Enabled:   true,
		})
		assert.Error(t, err)
	})

	t.Run("Go Predicate Wins Over Condition", func(t *testing.T) {
		r := NewEscalationRuleRegistry(zap.NewNop())
		rule := &EscalationRule{
			ID:        "predicate",
			Condition: "false",
			Predicate: func(wf *model.Workflow, now time.Time) bool { return true },
			Action:    model.EscalationNotify,
			Enabled:   true,
		}
		require.NoError(t, r.Register(rule))

		matched, err := rule.Matches(criticalWorkflow(time.Hour), now)
		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("Step Fields In Rule Environment", func(t *testing.T) {
		r := NewEscalationRuleRegistry(zap.NewNop())
		rule := &EscalationRule{
			ID:        "role-gate",
			Condition: `step_role == "supervisor" && step_overdue`,
			Action:    model.EscalationNotify,
			Enabled:   true,
		}
		require.NoError(t, r.Register(rule))

		wf := criticalWorkflow(time.Hour)
		due := now.Add(-30 * time.Minute)
		wf.Steps[0].DueDate = &due

		matched, err := rule.Matches(wf, now)
		require.NoError(t, err)
		assert.True(t, matched)
	})
}

func TestNotificationTriggerRegistry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := NewNotificationTriggerRegistry(zap.NewNop())

	t.Run("Default Triggers Are Loaded", func(t *testing.T) {
		created := r.Get("workflow_created")
		require.NotNil(t, created)
		assert.Contains(t, created.Recipients, "compliance_team")

		assert.Nil(t, r.Get("workflow_comment"))
	})

	t.Run("Unconditional Trigger Always Applies", func(t *testing.T) {
		applies, err := r.Get("workflow_created").Applies(&model.Workflow{Priority: model.PriorityLow}, now)
		require.NoError(t, err)
		assert.True(t, applies)
	})

	t.Run("Escalation Trigger Gates On Priority", func(t *testing.T) {
		escalated := r.Get("workflow_escalated")
		require.NotNil(t, escalated)

		applies, err := escalated.Applies(&model.Workflow{Priority: model.PriorityCritical}, now)
		require.NoError(t, err)
		assert.True(t, applies)

		applies, err = escalated.Applies(&model.Workflow{Priority: model.PriorityLow}, now)
		require.NoError(t, err)
		assert.False(t, applies)
	})

	t.Run("Invalid Condition Fails Registration", func(t *testing.T) {
		err := r.Register(&NotificationTrigger{
			Event:     "workflow_custom",
			Condition: `priority ==`,
		})
		assert.Error(t, err)
	})
}
