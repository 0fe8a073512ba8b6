package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBus(t *testing.T) {
	t.Run("Handlers Receive Events In Publish Order", func(t *testing.T) {
		bus := NewBus(zap.NewNop())

		var received []string
		bus.Subscribe("workflow.created", func(event string, payload map[string]interface{}) {
			received = append(received, payload["id"].(string))
		})

		bus.Publish("workflow.created", map[string]interface{}{"id": "a"})
		bus.Publish("workflow.created", map[string]interface{}{"id": "b"})
		bus.Publish("workflow.updated", map[string]interface{}{"id": "c"})

		assert.Equal(t, []string{"a", "b"}, received)
	})

	t.Run("Wildcard Receives Every Event", func(t *testing.T) {
		bus := NewBus(zap.NewNop())

		var events []string
		bus.Subscribe("*", func(event string, payload map[string]interface{}) {
			events = append(events, event)
		})

		bus.Publish("workflow.created", nil)
		bus.Publish("notification.intent", nil)

		assert.Equal(t, []string{"workflow.created", "notification.intent"}, events)
	})

	t.Run("Multiple Subscribers On One Event", func(t *testing.T) {
		bus := NewBus(zap.NewNop())

		first, second := 0, 0
		bus.Subscribe("workflow.updated", func(string, map[string]interface{}) { first++ })
		bus.Subscribe("workflow.updated", func(string, map[string]interface{}) { second++ })

		bus.Publish("workflow.updated", nil)
		assert.Equal(t, 1, first)
		assert.Equal(t, 1, second)
	})

	t.Run("Publish Without Subscribers Is A No Op", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		assert.NotPanics(t, func() {
			bus.Publish("workflow.created", map[string]interface{}{"id": "a"})
		})
	})
}

func TestFanout(t *testing.T) {
	first := NewBus(zap.NewNop())
	second := NewBus(zap.NewNop())

	firstCount, secondCount := 0, 0
	first.Subscribe("*", func(string, map[string]interface{}) { firstCount++ })
	second.Subscribe("*", func(string, map[string]interface{}) { secondCount++ })

	fanout := Fanout{first, second}
	fanout.Publish("workflow.created", nil)
	fanout.Publish("workflow.updated", nil)

	assert.Equal(t, 2, firstCount)
	assert.Equal(t, 2, secondCount)
}
