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

// NotificationTrigger maps a lifecycle event name to the recipients, channels
// and template of the notification intent to emit. Recipients are role or
// relationship tokens, resolved to identities by the external transport.
type NotificationTrigger struct {
	Event      string
	Recipients []string
	Channels   []string
	Template   string
	Condition  string

	program *vm.Program
}

// Applies reports whether the trigger's optional condition holds for the
// workflow. A trigger without a condition always applies.
func (t *NotificationTrigger) Applies(wf *model.Workflow, now time.Time) (bool, error) {
	if t.program == nil {
		return true, nil
	}

	out, err := expr.Run(t.program, ruleEnvironment(wf, now))
	if err != nil {
		return false, fmt.Errorf("trigger %s condition failed: %w", t.Event, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("trigger %s condition did not return boolean", t.Event)
	}
	return matched, nil
}

// NotificationTriggerRegistry holds event-name keyed notification triggers.
type NotificationTriggerRegistry struct {
	logger   *zap.Logger
	triggers map[string]*NotificationTrigger
	mu       sync.RWMutex
}

// NewNotificationTriggerRegistry creates a registry pre-loaded with default
// triggers for the workflow lifecycle events.
func NewNotificationTriggerRegistry(logger *zap.Logger) *NotificationTriggerRegistry {
	r := &NotificationTriggerRegistry{
		logger:   logger,
		triggers: make(map[string]*NotificationTrigger),
	}

	for _, trigger := range defaultNotificationTriggers() {
		if err := r.Register(trigger); err != nil {
			logger.Error("Failed to register default notification trigger",
				zap.String("event", trigger.Event),
				zap.Error(err),
			)
		}
	}

	return r
}

// Register compiles the trigger's optional condition and stores it, replacing
// any existing trigger for the same event.
func (r *NotificationTriggerRegistry) Register(trigger *NotificationTrigger) error {
	if trigger.Condition != "" {
		program, err := expr.Compile(trigger.Condition, expr.AsBool())
		if err != nil {
			return fmt.Errorf("failed to compile condition for trigger %s: %w", trigger.Event, err)
		}
		trigger.program = program
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.triggers[trigger.Event] = trigger
	r.logger.Debug("Notification trigger registered", zap.String("event", trigger.Event))
	return nil
}

// Get returns the trigger for the event name, or nil when none is registered.
func (r *NotificationTriggerRegistry) Get(event string) *NotificationTrigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.triggers[event]
}

func defaultNotificationTriggers() []*NotificationTrigger {
	return []*NotificationTrigger{
		{
			Event:      "workflow_created",
			Recipients: []string{"assignee", "compliance_team"},
			Channels:   []string{"email", "in_app"},
			Template:   "workflow_created",
		},
		{
			Event:      "workflow_submit",
			Recipients: []string{"approver"},
			Channels:   []string{"email", "in_app"},
			Template:   "approval_requested",
		},
		{
			Event:      "workflow_approve",
			Recipients: []string{"creator", "assignee"},
			Channels:   []string{"in_app"},
			Template:   "workflow_approved",
		},
		{
			Event:      "workflow_reject",
			Recipients: []string{"creator", "assignee"},
			Channels:   []string{"email", "in_app"},
			Template:   "workflow_rejected",
		},
		{
			Event:      "workflow_assigned",
			Recipients: []string{"assignee"},
			Channels:   []string{"email", "in_app"},
			Template:   "workflow_assigned",
		},
		{
			Event:      "workflow_escalated",
			Recipients: []string{"manager", "compliance_team"},
			Channels:   []string{"email", "sms", "in_app"},
			Template:   "workflow_escalated",
			Condition:  `priority == "critical" || priority == "high"`,
		},
		{
			Event:      "workflow_resolve",
			Recipients: []string{"creator", "compliance_team"},
			Channels:   []string{"in_app"},
			Template:   "workflow_resolved",
		},
	}
}
