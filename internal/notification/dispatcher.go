// Package notification decides when a notification should be sent and
// publishes the resulting intent. Delivery transport (email, SMS, in-app)
// lives entirely outside this service.
package notification

import (
	"time"

	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/eventbus"
	"github.com/clearcomply/remediation-engine/internal/metrics"
	"github.com/clearcomply/remediation-engine/internal/model"
	"github.com/clearcomply/remediation-engine/internal/registry"
)

// Dispatcher evaluates notification triggers against a workflow and publishes
// notification intents on the event bus.
type Dispatcher struct {
	logger    *zap.Logger
	triggers  *registry.NotificationTriggerRegistry
	publisher eventbus.Publisher
	metrics   *metrics.Collector
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(
	triggers *registry.NotificationTriggerRegistry,
	publisher eventbus.Publisher,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		logger:    logger,
		triggers:  triggers,
		publisher: publisher,
		metrics:   collector,
	}
}

// Dispatch looks up the trigger for the event name, evaluates its condition
// against the workflow and, if it applies, publishes a notification intent.
// Events without a registered trigger are silently skipped.
func (d *Dispatcher) Dispatch(event string, wf *model.Workflow, extra map[string]interface{}) {
	trigger := d.triggers.Get(event)
	if trigger == nil {
		d.logger.Debug("No notification trigger for event", zap.String("event", event))
		return
	}

	applies, err := trigger.Applies(wf, time.Now())
	if err != nil {
		d.logger.Error("Notification trigger condition failed",
			zap.String("event", event),
			zap.String("workflow_id", wf.ID),
			zap.Error(err),
		)
		return
	}
	if !applies {
		d.logger.Debug("Notification trigger condition not met",
			zap.String("event", event),
			zap.String("workflow_id", wf.ID),
		)
		return
	}

	intent := model.NotificationIntent{
		Event:      event,
		Recipients: trigger.Recipients,
		Channels:   trigger.Channels,
		Template:   trigger.Template,
		Workflow:   wf,
	}

	payload := map[string]interface{}{
		"event":      intent.Event,
		"recipients": intent.Recipients,
		"channels":   intent.Channels,
		"template":   intent.Template,
		"workflow":   intent.Workflow,
	}
	for k, v := range extra {
		payload[k] = v
	}

	d.publisher.Publish(model.EventNotificationIntent, payload)
	d.metrics.RecordNotificationIntent(event)

	d.logger.Info("Notification intent published",
		zap.String("event", event),
		zap.String("workflow_id", wf.ID),
		zap.Strings("channels", intent.Channels),
	)
}
