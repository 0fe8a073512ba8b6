package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcomply/remediation-engine/internal/model"
)

func TestValidateTables(t *testing.T) {
	t.Run("Default Tables Are Valid", func(t *testing.T) {
		require.NoError(t, validateTables(defaultActionTargets, defaultTransitionTable))
	})

	t.Run("Action Targeting Unknown Status", func(t *testing.T) {
		actions := actionTargets{model.ActionSubmit: model.WorkflowStatus("limbo")}
		assert.Error(t, validateTables(actions, defaultTransitionTable))
	})

	t.Run("Terminal Status With Outgoing Edge", func(t *testing.T) {
		table := transitionTable{}
		for from, targets := range defaultTransitionTable {
			table[from] = targets
		}
		table[model.StatusResolved] = []model.WorkflowStatus{model.StatusPending}
		assert.Error(t, validateTables(defaultActionTargets, table))
	})

	t.Run("Missing Status Key", func(t *testing.T) {
		table := transitionTable{}
		for from, targets := range defaultTransitionTable {
			table[from] = targets
		}
		delete(table, model.StatusEscalated)
		assert.Error(t, validateTables(defaultActionTargets, table))
	})
}

func TestTransitionTableAllows(t *testing.T) {
	assert.True(t, defaultTransitionTable.allows(model.StatusPending, model.StatusInReview))
	assert.True(t, defaultTransitionTable.allows(model.StatusEscalated, model.StatusInReview))
	assert.False(t, defaultTransitionTable.allows(model.StatusPending, model.StatusApproved))
	assert.False(t, defaultTransitionTable.allows(model.StatusResolved, model.StatusPending))
	assert.False(t, defaultTransitionTable.allows(model.StatusCancelled, model.StatusInReview))
}
