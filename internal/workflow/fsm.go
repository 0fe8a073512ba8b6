package workflow

import (
	"fmt"

	"github.com/clearcomply/remediation-engine/internal/model"
)

// actionTargets resolves a caller-supplied action to its target status.
type actionTargets map[model.Action]model.WorkflowStatus

// transitionTable lists the permitted (from, to) edges of the workflow state
// machine. Any transition not in this table fails with ErrInvalidTransition.
type transitionTable map[model.WorkflowStatus][]model.WorkflowStatus

var defaultActionTargets = actionTargets{
	model.ActionSubmit:   model.StatusInReview,
	model.ActionApprove:  model.StatusApproved,
	model.ActionReject:   model.StatusRejected,
	model.ActionAssign:   model.StatusInProgress,
	model.ActionResolve:  model.StatusResolved,
	model.ActionEscalate: model.StatusEscalated,
	model.ActionCancel:   model.StatusCancelled,
}

var defaultTransitionTable = transitionTable{
	model.StatusPending:    {model.StatusInReview},
	model.StatusInReview:   {model.StatusApproved, model.StatusRejected, model.StatusEscalated, model.StatusCancelled},
	model.StatusApproved:   {model.StatusInProgress, model.StatusResolved},
	model.StatusRejected:   {model.StatusPending, model.StatusCancelled},
	model.StatusInProgress: {model.StatusResolved, model.StatusEscalated, model.StatusCancelled},
	model.StatusEscalated:  {model.StatusInReview, model.StatusApproved, model.StatusRejected, model.StatusCancelled},
	model.StatusResolved:   {},
	model.StatusCancelled:  {},
}

var knownStatuses = map[model.WorkflowStatus]bool{
	model.StatusPending:    true,
	model.StatusInReview:   true,
	model.StatusApproved:   true,
	model.StatusRejected:   true,
	model.StatusInProgress: true,
	model.StatusEscalated:  true,
	model.StatusResolved:   true,
	model.StatusCancelled:  true,
}

// allows reports whether the edge (from, to) is in the table.
func (t transitionTable) allows(from, to model.WorkflowStatus) bool {
	for _, target := range t[from] {
		if target == to {
			return true
		}
	}
	return false
}

// validateTables checks the action map and transition table for consistency
// at engine construction so a malformed table is a start-time discovery, not
// a run-time one.
func validateTables(actions actionTargets, table transitionTable) error {
	for action, target := range actions {
		if !knownStatuses[target] {
			return fmt.Errorf("action %q maps to unknown status %q", action, target)
		}
	}

	for from, targets := range table {
		if !knownStatuses[from] {
			return fmt.Errorf("transition table contains unknown status %q", from)
		}
		if from.Terminal() && len(targets) > 0 {
			return fmt.Errorf("terminal status %q must not have outgoing transitions", from)
		}
		for _, to := range targets {
			if !knownStatuses[to] {
				return fmt.Errorf("transition table edge %q -> %q targets unknown status", from, to)
			}
		}
	}

	// Every status must appear as a key so reachability is decided by the
	// table alone, never by map absence.
	for status := range knownStatuses {
		if _, ok := table[status]; !ok {
			return fmt.Errorf("transition table is missing status %q", status)
		}
	}

	return nil
}

// stepStatusFor mirrors a workflow target status onto the current step.
func stepStatusFor(status model.WorkflowStatus) model.StepStatus {
	switch status {
	case model.StatusInReview:
		return model.StepInReview
	case model.StatusApproved:
		return model.StepApproved
	case model.StatusRejected:
		return model.StepRejected
	case model.StatusInProgress:
		return model.StepInReview
	case model.StatusEscalated:
		return model.StepEscalated
	case model.StatusResolved:
		return model.StepResolved
	case model.StatusCancelled:
		return model.StepCancelled
	default:
		return model.StepPending
	}
}
