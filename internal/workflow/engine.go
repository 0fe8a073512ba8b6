// Package workflow owns the remediation workflow lifecycle: creation from a
// violation, step progression through the approval state machine, assignment,
// commentary and the periodic escalation sweep.
package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/eventbus"
	"github.com/clearcomply/remediation-engine/internal/metrics"
	"github.com/clearcomply/remediation-engine/internal/model"
	"github.com/clearcomply/remediation-engine/internal/notification"
	"github.com/clearcomply/remediation-engine/internal/registry"
)

var (
	// ErrWorkflowNotFound is returned when an operation references an unknown
	// workflow ID.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidTransition is returned when an action is not permitted from
	// the workflow's current status. The workflow is not mutated.
	ErrInvalidTransition = errors.New("invalid transition")
)

// defaultStepName is used when no approval chain is given.
const defaultStepName = "Remediation"

// Engine is the single logical owner of the in-memory workflow registry and
// its transition history. All mutating calls are serialized through one mutex
// because step advancement is a compound multi-field update that must be
// atomic with respect to concurrent approvals on the same workflow.
type Engine struct {
	logger    *zap.Logger
	chains    *registry.ApprovalChainRegistry
	rules     *registry.EscalationRuleRegistry
	notifier  *notification.Dispatcher
	publisher eventbus.Publisher
	metrics   *metrics.Collector

	actions actionTargets
	table   transitionTable
	now     func() time.Time

	mu        sync.Mutex
	workflows map[string]*model.Workflow
	history   map[string][]model.TransitionRecord
}

// NewEngine creates a workflow engine. The transition tables are validated
// here so a malformed table fails construction, not a later call.
func NewEngine(
	chains *registry.ApprovalChainRegistry,
	rules *registry.EscalationRuleRegistry,
	notifier *notification.Dispatcher,
	publisher eventbus.Publisher,
	collector *metrics.Collector,
	logger *zap.Logger,
) (*Engine, error) {
	if err := validateTables(defaultActionTargets, defaultTransitionTable); err != nil {
		return nil, fmt.Errorf("invalid transition tables: %w", err)
	}

	return &Engine{
		logger:    logger,
		chains:    chains,
		rules:     rules,
		notifier:  notifier,
		publisher: publisher,
		metrics:   collector,
		actions:   defaultActionTargets,
		table:     defaultTransitionTable,
		now:       time.Now,
		workflows: make(map[string]*model.Workflow),
		history:   make(map[string][]model.TransitionRecord),
	}, nil
}

// CreateRequest carries the inputs for workflow creation.
type CreateRequest struct {
	ViolationID     string                 `json:"violation_id"`
	TenantID        string                 `json:"tenant_id"`
	Type            string                 `json:"type"`
	Priority        string                 `json:"priority"`
	CreatedBy       string                 `json:"created_by"`
	DueDate         *time.Time             `json:"due_date,omitempty"`
	ApprovalChainID string                 `json:"approval_chain_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// CreateWorkflow creates a remediation workflow for a violation. When the
// approval chain ID resolves in the registry one step is materialized per
// chain level with dueDate = now + timeoutHours; otherwise a single default
// step is synthesized using the caller-supplied due date.
func (e *Engine) CreateWorkflow(req CreateRequest) (*model.Workflow, error) {
	now := e.now()

	wf := &model.Workflow{
		ID:          uuid.New().String(),
		ViolationID: req.ViolationID,
		TenantID:    req.TenantID,
		Type:        req.Type,
		Priority:    req.Priority,
		Status:      model.StatusPending,
		Metadata:    req.Metadata,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		DueDate:     req.DueDate,
	}

	if chain := e.chains.Get(req.ApprovalChainID); chain != nil {
		wf.Steps = make([]model.Step, 0, len(chain.Steps))
		for _, level := range chain.Steps {
			due := now.Add(time.Duration(level.TimeoutHours) * time.Hour)
			wf.Steps = append(wf.Steps, model.Step{
				ID:                uuid.New().String(),
				Name:              fmt.Sprintf("%s - Level %d", chain.Name, level.Level),
				AssignedRole:      level.ApproverRole,
				Status:            model.StepPending,
				DueDate:           &due,
				RequiredApprovers: level.RequiredApprovals,
			})
		}
	} else {
		wf.Steps = []model.Step{{
			ID:      uuid.New().String(),
			Name:    defaultStepName,
			Status:  model.StepPending,
			DueDate: req.DueDate,
		}}
	}

	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.mu.Unlock()

	e.metrics.RecordWorkflowCreated()
	e.logger.Info("Workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("violation_id", wf.ViolationID),
		zap.String("tenant_id", wf.TenantID),
		zap.String("priority", wf.Priority),
		zap.Int("steps", len(wf.Steps)),
	)

	snapshot := cloneWorkflow(wf)
	e.publisher.Publish(model.EventWorkflowCreated, map[string]interface{}{
		"workflow": snapshot,
	})
	e.notifier.Dispatch("workflow_created", snapshot, nil)

	return snapshot, nil
}

// Transition applies an action to a workflow. The target status is resolved
// from the fixed action map and the edge (current, target) must be permitted
// by the transition table, otherwise the call fails without mutation.
func (e *Engine) Transition(workflowID string, action model.Action, performedBy, comment string, metadata map[string]interface{}) (*model.Workflow, error) {
	e.mu.Lock()
	wf, record, err := e.transitionLocked(workflowID, action, performedBy, comment, metadata)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.publishTransition(wf, action, record)
	return wf, nil
}

// transitionLocked performs the transition under the engine mutex and returns
// a snapshot plus the appended audit record. Callers publish outside methods
// that already hold the lock via publishTransition.
func (e *Engine) transitionLocked(workflowID string, action model.Action, performedBy, comment string, metadata map[string]interface{}) (*model.Workflow, *model.TransitionRecord, error) {
	wf, ok := e.workflows[workflowID]
	if !ok {
		e.metrics.RecordWorkflowNotFound()
		return nil, nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
	}

	target, ok := e.actions[action]
	if !ok {
		e.metrics.RecordInvalidTransition()
		return nil, nil, fmt.Errorf("unknown action %q: %w", action, ErrInvalidTransition)
	}

	if !e.table.allows(wf.Status, target) {
		e.metrics.RecordInvalidTransition()
		return nil, nil, fmt.Errorf("%s -> %s (action %s): %w", wf.Status, target, action, ErrInvalidTransition)
	}

	now := e.now()
	from := wf.Status
	effective := target

	switch action {
	case model.ActionApprove:
		effective = e.applyApproval(wf, performedBy, now)
	case model.ActionResolve:
		if step := wf.CurrentStep(); step != nil {
			step.Status = model.StepResolved
			step.CompletedAt = &now
			step.CompletedBy = performedBy
		}
	default:
		if step := wf.CurrentStep(); step != nil {
			step.Status = stepStatusFor(target)
		}
	}

	record := model.TransitionRecord{
		FromStatus:  from,
		ToStatus:    effective,
		Action:      action,
		PerformedBy: performedBy,
		PerformedAt: now,
		Comment:     comment,
		Metadata:    metadata,
	}

	wf.Status = effective
	wf.UpdatedAt = now
	e.history[workflowID] = append(e.history[workflowID], record)

	e.metrics.RecordTransition(string(action))
	e.logger.Info("Workflow transitioned",
		zap.String("workflow_id", workflowID),
		zap.String("action", string(action)),
		zap.String("from", string(from)),
		zap.String("to", string(effective)),
		zap.String("performed_by", performedBy),
	)

	return cloneWorkflow(wf), &record, nil
}

// applyApproval increments the current step's approver count and, once it
// meets the required number, completes the step and advances the index.
// Completing the last step forces the workflow to approved; completing an
// intermediate step returns the workflow to in_review for the next level.
func (e *Engine) applyApproval(wf *model.Workflow, performedBy string, now time.Time) model.WorkflowStatus {
	step := wf.CurrentStep()
	if step == nil {
		return model.StatusApproved
	}

	required := step.RequiredApprovers
	if required <= 0 {
		required = 1
	}

	step.CurrentApprovers++
	if step.CurrentApprovers < required {
		// Partial approval: the step stays open and the workflow status is
		// unchanged until the last required approver acts.
		step.Status = model.StepInReview
		return wf.Status
	}

	step.Status = model.StepApproved
	step.CompletedAt = &now
	step.CompletedBy = performedBy
	wf.CurrentStepIndex++

	if wf.CurrentStepIndex >= len(wf.Steps) {
		return model.StatusApproved
	}
	return model.StatusInReview
}

// triggerEventFor names the notification trigger evaluated for an action.
func triggerEventFor(action model.Action) string {
	if action == model.ActionEscalate {
		return "workflow_escalated"
	}
	return "workflow_" + string(action)
}

// publishTransition emits the workflow.updated lifecycle event and evaluates
// the workflow_{action} notification trigger.
func (e *Engine) publishTransition(wf *model.Workflow, action model.Action, record *model.TransitionRecord) {
	reason := triggerEventFor(action)
	e.publisher.Publish(model.EventWorkflowUpdated, map[string]interface{}{
		"workflow":   wf,
		"reason":     reason,
		"transition": record,
	})
	e.notifier.Dispatch(reason, wf, map[string]interface{}{"transition": record})
}

// Assign sets the assignee of the workflow's current step. Assignment is not
// a state transition and leaves the status untouched.
func (e *Engine) Assign(workflowID, assignedTo, assignedBy string) (*model.Workflow, error) {
	e.mu.Lock()
	wf, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()
		e.metrics.RecordWorkflowNotFound()
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
	}

	if step := wf.CurrentStep(); step != nil {
		step.AssignedTo = assignedTo
	}
	wf.UpdatedAt = e.now()
	snapshot := cloneWorkflow(wf)
	e.mu.Unlock()

	e.logger.Info("Workflow assigned",
		zap.String("workflow_id", workflowID),
		zap.String("assigned_to", assignedTo),
		zap.String("assigned_by", assignedBy),
	)

	e.publisher.Publish(model.EventWorkflowUpdated, map[string]interface{}{
		"workflow":    snapshot,
		"reason":      "workflow_assigned",
		"assigned_to": assignedTo,
		"assigned_by": assignedBy,
	})
	e.notifier.Dispatch("workflow_assigned", snapshot, map[string]interface{}{
		"assigned_to": assignedTo,
		"assigned_by": assignedBy,
	})

	return snapshot, nil
}

// AddComment appends a comment to the workflow. Comments are append-only:
// they are never edited or removed.
func (e *Engine) AddComment(workflowID, text, author string) (*model.Workflow, error) {
	e.mu.Lock()
	wf, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()
		e.metrics.RecordWorkflowNotFound()
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
	}

	now := e.now()
	wf.Comments = append(wf.Comments, model.Comment{
		Text:      text,
		Author:    author,
		Timestamp: now,
	})
	wf.UpdatedAt = now
	snapshot := cloneWorkflow(wf)
	e.mu.Unlock()

	e.publisher.Publish(model.EventWorkflowUpdated, map[string]interface{}{
		"workflow": snapshot,
		"reason":   "workflow_comment",
		"author":   author,
	})

	return snapshot, nil
}

// Get returns a snapshot of the workflow.
func (e *Engine) Get(workflowID string) (*model.Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, ok := e.workflows[workflowID]
	if !ok {
		e.metrics.RecordWorkflowNotFound()
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
	}
	return cloneWorkflow(wf), nil
}

// History returns the append-only audit trail of the workflow.
func (e *Engine) History(workflowID string) ([]model.TransitionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.workflows[workflowID]; !ok {
		e.metrics.RecordWorkflowNotFound()
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
	}

	records := e.history[workflowID]
	out := make([]model.TransitionRecord, len(records))
	copy(out, records)
	return out, nil
}

// List returns snapshots of all workflows, optionally filtered by tenant,
// ordered by creation time.
func (e *Engine) List(tenantID string) []*model.Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*model.Workflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		if tenantID != "" && wf.TenantID != tenantID {
			continue
		}
		out = append(out, cloneWorkflow(wf))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// StatusCounts returns the number of workflows per status.
func (e *Engine) StatusCounts() map[model.WorkflowStatus]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := make(map[model.WorkflowStatus]int)
	for _, wf := range e.workflows {
		counts[wf.Status]++
	}
	return counts
}

// cloneWorkflow returns a deep copy so callers and event subscribers never
// observe concurrent mutation of engine-owned state.
func cloneWorkflow(wf *model.Workflow) *model.Workflow {
	out := *wf

	out.Steps = make([]model.Step, len(wf.Steps))
	copy(out.Steps, wf.Steps)

	if wf.Comments != nil {
		out.Comments = make([]model.Comment, len(wf.Comments))
		copy(out.Comments, wf.Comments)
	}
	if wf.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(wf.Metadata))
		for k, v := range wf.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
