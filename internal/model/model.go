package model

import (
	"time"
)

// RiskLevel classifies the severity of a detected violation.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// Violation is a compliance violation produced by the upstream detector.
// The engines read it; they never mutate it.
type Violation struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenant_id"`
	UserID     string                 `json:"user_id"`
	Department string                 `json:"department"`
	RiskLevel  RiskLevel              `json:"risk_level"`
	Status     string                 `json:"status"` // open, investigating, resolved, false_positive
	RuleID     string                 `json:"rule_id,omitempty"`
	Category   string                 `json:"category,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	DetectedAt time.Time              `json:"detected_at"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}

// Open reports whether the violation still needs remediation.
func (v Violation) Open() bool {
	return v.Status != ViolationStatusResolved && v.Status != ViolationStatusFalsePositive
}

// Violation statuses (owned by the detector, mirrored here for scoring).
const (
	ViolationStatusOpen          = "open"
	ViolationStatusInvestigating = "investigating"
	ViolationStatusResolved      = "resolved"
	ViolationStatusFalsePositive = "false_positive"
)

// WorkflowStatus is a state-machine value for a remediation workflow.
type WorkflowStatus string

const (
	StatusPending    WorkflowStatus = "pending"
	StatusInReview   WorkflowStatus = "in_review"
	StatusApproved   WorkflowStatus = "approved"
	StatusRejected   WorkflowStatus = "rejected"
	StatusInProgress WorkflowStatus = "in_progress"
	StatusEscalated  WorkflowStatus = "escalated"
	StatusResolved   WorkflowStatus = "resolved"
	StatusCancelled  WorkflowStatus = "cancelled"
)

// Terminal reports whether no further transitions are permitted from s.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// Action is a caller-supplied operation resolved to a target status by the FSM table.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionAssign   Action = "assign"
	ActionResolve  Action = "resolve"
	ActionEscalate Action = "escalate"
	ActionCancel   Action = "cancel"
)

// Workflow priorities.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// SystemActor is recorded as the performer of engine-initiated transitions.
const SystemActor = "system"

// Workflow is one remediation case tied to exactly one violation.
type Workflow struct {
	ID               string         `json:"id"`
	ViolationID      string         `json:"violation_id"`
	TenantID         string         `json:"tenant_id"`
	Type             string         `json:"type"`
	Priority         string         `json:"priority"`
	Status           WorkflowStatus `json:"status"`
	Steps            []Step         `json:"steps"`
	CurrentStepIndex int            `json:"current_step_index"`
	Comments         []Comment      `json:"comments,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DueDate          *time.Time     `json:"due_date,omitempty"`
}

// CurrentStep returns the step the workflow is waiting on, or nil once all
// steps are complete.
func (w *Workflow) CurrentStep() *Step {
	if w.CurrentStepIndex < 0 || w.CurrentStepIndex >= len(w.Steps) {
		return nil
	}
	return &w.Steps[w.CurrentStepIndex]
}

// Age returns the elapsed time since the workflow was created.
func (w *Workflow) Age(now time.Time) time.Duration {
	return now.Sub(w.CreatedAt)
}

// StepStatus tracks the lifecycle of a single approval step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepInReview  StepStatus = "in_review"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepEscalated StepStatus = "escalated"
	StepResolved  StepStatus = "resolved"
	StepCancelled StepStatus = "cancelled"
)

// Step is one level of an approval chain. A step with RequiredApprovers > 1
// needs that many independent approve actions before the workflow advances.
type Step struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	AssignedRole      string     `json:"assigned_role,omitempty"`
	AssignedTo        string     `json:"assigned_to,omitempty"`
	Status            StepStatus `json:"status"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	RequiredApprovers int        `json:"required_approvers,omitempty"`
	CurrentApprovers  int        `json:"current_approvers"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CompletedBy       string     `json:"completed_by,omitempty"`
}

// Overdue reports whether the step has a due date in the past and is not complete.
func (s Step) Overdue(now time.Time) bool {
	return s.DueDate != nil && now.After(*s.DueDate) && s.CompletedAt == nil
}

// Comment is an append-only annotation on a workflow. Comments are never
// edited or removed once added.
type Comment struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// TransitionRecord is one entry in a workflow's append-only audit trail.
type TransitionRecord struct {
	FromStatus  WorkflowStatus         `json:"from_status"`
	ToStatus    WorkflowStatus         `json:"to_status"`
	Action      Action                 `json:"action"`
	PerformedBy string                 `json:"performed_by"`
	PerformedAt time.Time              `json:"performed_at"`
	Comment     string                 `json:"comment,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ApprovalChain is a reusable template: instantiating a workflow from a chain
// materializes one Step per level.
type ApprovalChain struct {
	ID    string              `json:"id"`
	Name  string              `json:"name"`
	Steps []ApprovalChainStep `json:"steps"`
}

// ApprovalChainStep defines one level of an approval chain.
type ApprovalChainStep struct {
	Level             int    `json:"level"`
	ApproverRole      string `json:"approver_role"`
	RequiredApprovals int    `json:"required_approvals"`
	TimeoutHours      int    `json:"timeout_hours"`
}

// EscalationAction is what an escalation rule does when its predicate matches.
type EscalationAction string

const (
	EscalationEscalate    EscalationAction = "escalate"
	EscalationNotify      EscalationAction = "notify"
	EscalationAutoApprove EscalationAction = "auto_approve"
	EscalationAutoReject  EscalationAction = "auto_reject"
)

// NotificationIntent is the engine's decision to notify; delivery transport
// is strictly external.
type NotificationIntent struct {
	Event      string    `json:"event"`
	Recipients []string  `json:"recipients"`
	Channels   []string  `json:"channels"`
	Template   string    `json:"template"`
	Workflow   *Workflow `json:"workflow"`
}

// Lifecycle event names published on the event bus.
const (
	EventWorkflowCreated    = "workflow.created"
	EventWorkflowUpdated    = "workflow.updated"
	EventNotificationIntent = "notification.intent"
)

// TrendInterval selects the bucket width for trend analysis.
type TrendInterval string

const (
	IntervalDay   TrendInterval = "day"
	IntervalWeek  TrendInterval = "week"
	IntervalMonth TrendInterval = "month"
)

// TrendPoint is one bucket in a violation trend series. Buckets with zero
// violations still appear with all counts at 0.
type TrendPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Count         int       `json:"count"`
	CriticalCount int       `json:"critical_count"`
	HighCount     int       `json:"high_count"`
	MediumCount   int       `json:"medium_count"`
	LowCount      int       `json:"low_count"`
}

// HeatmapCell is one present department x risk-level combination.
type HeatmapCell struct {
	Department string    `json:"department"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Count      int       `json:"count"`
	Percentage float64   `json:"percentage"`
}

// TrendDirection indicates how a department's violation count is moving
// relative to the previous period.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// DepartmentRisk is a per-department severity-weighted risk summary.
type DepartmentRisk struct {
	Department    string         `json:"department"`
	RiskScore     float64        `json:"risk_score"`
	Total         int            `json:"total"`
	CriticalCount int            `json:"critical_count"`
	HighCount     int            `json:"high_count"`
	MediumCount   int            `json:"medium_count"`
	LowCount      int            `json:"low_count"`
	Trend         TrendDirection `json:"trend"`
}

// ComplianceScore expresses the share of violations already closed, 0-100.
type ComplianceScore struct {
	Overall             float64            `json:"overall"`
	ByDepartment        map[string]float64 `json:"by_department"`
	ByRiskLevel         map[string]float64 `json:"by_risk_level"`
	TotalViolations     int                `json:"total_violations"`
	OpenViolations      int                `json:"open_violations"`
	UsersWithViolations int                `json:"users_with_violations"`
	ComplianceRate      float64            `json:"compliance_rate"`
}

// UserRiskProfile summarizes one user's violation exposure. RiskRanking is
// dense: 1 is the highest score, ties broken by user ID for determinism.
type UserRiskProfile struct {
	UserID        string  `json:"user_id"`
	Department    string  `json:"department"`
	Total         int     `json:"total"`
	CriticalCount int     `json:"critical_count"`
	HighCount     int     `json:"high_count"`
	MediumCount   int     `json:"medium_count"`
	LowCount      int     `json:"low_count"`
	RiskScore     float64 `json:"risk_score"`
	RiskRanking   int     `json:"risk_ranking"`
}

// AnomalyType classifies a detected anomaly.
type AnomalyType string

const (
	AnomalySpike         AnomalyType = "spike"
	AnomalyNewDepartment AnomalyType = "new_department"
	AnomalyNewPattern    AnomalyType = "new_pattern"
)

// Anomaly is a statistically unusual observation in the current violation set.
type Anomaly struct {
	Type        AnomalyType            `json:"type"`
	Description string                 `json:"description"`
	Severity    string                 `json:"severity"` // high, medium, low
	Data        map[string]interface{} `json:"data,omitempty"`
}
