package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcomply/remediation-engine/internal/model"
	"github.com/clearcomply/remediation-engine/internal/registry"
)

// backdate rewrites the stored workflow's creation time and current step due
// date so sweep tests can simulate SLA age without waiting.
func (f *testFixture) backdate(workflowID string, age time.Duration) {
	f.engine.mu.Lock()
	defer f.engine.mu.Unlock()

	wf := f.engine.workflows[workflowID]
	wf.CreatedAt = time.Now().Add(-age)
	if step := wf.CurrentStep(); step != nil {
		due := time.Now().Add(-time.Hour)
		step.DueDate = &due
	}
}

func TestCheckEscalations(t *testing.T) {
	t.Run("Overdue Critical Workflow Escalates To Director", func(t *testing.T) {
		f := newTestFixture(t)

		wf, err := f.engine.CreateWorkflow(CreateRequest{
			ViolationID:     "vio-1",
			TenantID:        "t1",
			Priority:        model.PriorityCritical,
			CreatedBy:       "alice",
			ApprovalChainID: "critical-3-level",
		})
		require.NoError(t, err)
		_, err = f.engine.Transition(wf.ID, model.ActionSubmit, "alice", "", nil)
		require.NoError(t, err)

		f.backdate(wf.ID, 25*time.Hour)

		result := f.engine.CheckEscalations()
		assert.Equal(t, 1, result.Checked)
		assert.Equal(t, 1, result.Overdue)
		assert.Equal(t, 1, result.Applied)
		assert.Equal(t, 0, result.Failures)

		escalated, err := f.engine.Get(wf.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusEscalated, escalated.Status)
		assert.Equal(t, "director", escalated.Steps[escalated.CurrentStepIndex].AssignedTo)

		history, err := f.engine.History(wf.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, model.ActionEscalate, last.Action)
		assert.Equal(t, model.SystemActor, last.PerformedBy)
		assert.Equal(t, model.StatusEscalated, last.ToStatus)
	})

	t.Run("Step Not Overdue Is Skipped Regardless Of Age", func(t *testing.T) {
		f := newTestFixture(t)

		wf, err := f.engine.CreateWorkflow(CreateRequest{
			ViolationID:     "vio-1",
			TenantID:        "t1",
			Priority:        model.PriorityCritical,
			CreatedBy:       "alice",
			ApprovalChainID: "critical-3-level",
		})
		require.NoError(t, err)
		_, err = f.engine.Transition(wf.ID, model.ActionSubmit, "alice", "", nil)
		require.NoError(t, err)

		// Old workflow, but the current step's due date is still in the future.
		f.engine.mu.Lock()
		f.engine.workflows[wf.ID].CreatedAt = time.Now().Add(-25 * time.Hour)
		f.engine.mu.Unlock()

		result := f.engine.CheckEscalations()
		assert.Equal(t, 1, result.Checked)
		assert.Equal(t, 0, result.Overdue)
		assert.Equal(t, 0, result.Applied)

		current, err := f.engine.Get(wf.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInReview, current.Status)
	})

	t.Run("Terminal Workflows Are Not Checked", func(t *testing.T) {
		f := newTestFixture(t)

		wf, err := f.engine.CreateWorkflow(CreateRequest{
			ViolationID: "vio-1",
			TenantID:    "t1",
			Priority:    model.PriorityCritical,
			CreatedBy:   "alice",
		})
		require.NoError(t, err)
		_, err = f.engine.Transition(wf.ID, model.ActionSubmit, "alice", "", nil)
		require.NoError(t, err)
		_, err = f.engine.Transition(wf.ID, model.ActionCancel, "alice", "", nil)
		require.NoError(t, err)

		f.backdate(wf.ID, 48*time.Hour)

		result := f.engine.CheckEscalations()
		assert.Equal(t, 0, result.Checked)
		assert.Equal(t, 0, result.Applied)
	})

	t.Run("Failure On One Workflow Does Not Abort The Sweep", func(t *testing.T) {
		f := newTestFixture(t)

		// Already escalated: the critical-24h rule matches again but the
		// escalate edge from escalated is not permitted.
		stuck, err := f.engine.CreateWorkflow(CreateRequest{
			ViolationID:     "vio-1",
			TenantID:        "t1",
			Priority:        model.PriorityCritical,
			CreatedBy:       "alice",
			ApprovalChainID: "critical-3-level",
		})
		require.NoError(t, err)
		_, err = f.engine.Transition(stuck.ID, model.ActionSubmit, "alice", "", nil)
		require.NoError(t, err)
		_, err = f.engine.Transition(stuck.ID, model.ActionEscalate, "alice", "", nil)
		require.NoError(t, err)
		f.backdate(stuck.ID, 30*time.Hour)

		healthy, err := f.engine.CreateWorkflow(CreateRequest{
			ViolationID:     "vio-2",
			TenantID:        "t1",
			Priority:        model.PriorityCritical,
			CreatedBy:       "alice",
			ApprovalChainID: "critical-3-level",
		})
		require.NoError(t, err)
		_, err = f.engine.Transition(healthy.ID, model.ActionSubmit, "alice", "", nil)
		require.NoError(t, err)
		f.backdate(healthy.ID, 25*time.Hour)

		result := f.engine.CheckEscalations()
		assert.Equal(t, 2, result.Checked)
		assert.Equal(t, 1, result.Failures)
		assert.Equal(t, 1, result.Applied)

		escalated, err := f.engine.Get(healthy.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusEscalated, escalated.Status)
	})

	t.Run("Notify Action Leaves Status Unchanged", func(t *testing.T) {
		f := newTestFixture(t)

		err := f.rules.Register(&registry.EscalationRule{
			ID:   "overdue-reminder",
			Name: "Remind on any overdue step",
			Predicate: func(wf *model.Workflow, now time.Time) bool {
				return true
			},
			Action:  model.EscalationNotify,
			Enabled: true,
		})
		require.NoError(t, err)

		wf, err := f.engine.CreateWorkflow(CreateRequest{
			ViolationID: "vio-1",
			TenantID:    "t1",
			Priority:    model.PriorityMedium,
			CreatedBy:   "alice",
		})
		require.NoError(t, err)
		_, err = f.engine.Transition(wf.ID, model.ActionSubmit, "alice", "", nil)
		require.NoError(t, err)
		f.backdate(wf.ID, 2*time.Hour)

		result := f.engine.CheckEscalations()
		assert.Equal(t, 1, result.Applied)

		current, err := f.engine.Get(wf.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInReview, current.Status)
	})

	t.Run("Auto Approve Action", func(t *testing.T) {
		f := newTestFixture(t)

		err := f.rules.Register(&registry.EscalationRule{
			ID: "auto-approve-low-risk",
			Predicate: func(wf *model.Workflow, now time.Time) bool {
				return wf.Type == "auto_remediation"
			},
			Action:  model.EscalationAutoApprove,
			Enabled: true,
		})
		require.NoError(t, err)

		wf, err := f.engine.CreateWorkflow(CreateRequest{
			ViolationID: "vio-1",
			TenantID:    "t1",
			Type:        "auto_remediation",
			Priority:    model.PriorityLow,
			CreatedBy:   "alice",
		})
		require.NoError(t, err)
		_, err = f.engine.Transition(wf.ID, model.ActionSubmit, "alice", "", nil)
		require.NoError(t, err)
		f.backdate(wf.ID, time.Hour)

		result := f.engine.CheckEscalations()
		assert.Equal(t, 1, result.Applied)

		approved, err := f.engine.Get(wf.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusApproved, approved.Status)

		history, err := f.engine.History(wf.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, model.ActionApprove, last.Action)
		assert.Equal(t, model.SystemActor, last.PerformedBy)
	})
}
