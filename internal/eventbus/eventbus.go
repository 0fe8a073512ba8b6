// Package eventbus provides the publish capability the workflow engine uses
// to emit lifecycle events, plus an in-process bus for local subscribers.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the only capability the engine requires from the event layer.
// Transport (in-process vs cross-process) is the composition root's choice.
type Publisher interface {
	Publish(event string, payload map[string]interface{})
}

// Handler receives a published event.
type Handler func(event string, payload map[string]interface{})

// Bus is an in-process publish/subscribe channel. Handlers run synchronously
// in publish order, so a single subscriber observes events in the order the
// engine emitted them.
type Bus struct {
	logger   *zap.Logger
	handlers map[string][]Handler
	mu       sync.RWMutex
}

// NewBus creates an empty in-process bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for an event name. The wildcard "*" receives
// every event.
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish delivers the payload to all handlers subscribed to the event name
// and to wildcard subscribers.
func (b *Bus) Publish(event string, payload map[string]interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event])+len(b.handlers["*"]))
	handlers = append(handlers, b.handlers[event]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event, payload)
	}

	b.logger.Debug("Event published",
		zap.String("event", event),
		zap.Int("handlers", len(handlers)),
	)
}

// RedisPublisher fans events out to Redis pub/sub channels for cross-process
// consumers. Payloads are marshaled to JSON; marshal or publish failures are
// logged and dropped, never surfaced to the engine.
type RedisPublisher struct {
	client        *redis.Client
	logger        *zap.Logger
	channelPrefix string
}

// NewRedisPublisher creates a publisher writing to "<prefix>.<event>" channels.
func NewRedisPublisher(client *redis.Client, channelPrefix string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:        client,
		logger:        logger,
		channelPrefix: channelPrefix,
	}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(event string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal event payload",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	channel := p.channelPrefix + "." + event
	if err := p.client.Publish(context.Background(), channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event to redis",
			zap.String("event", event),
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

// Fanout publishes every event to each of the underlying publishers.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(event string, payload map[string]interface{}) {
	for _, p := range f {
		p.Publish(event, payload)
	}
}
