package paytiko

import (
	"context"
	"sync"
)

// EventName identifies a notification published after a webhook is handled.
type EventName string

const (
	EventWebhookReceived   EventName = "paytiko.webhook_received"
	EventPaymentSuccessful EventName = "paytiko.payment_successful"
	EventPaymentFailed     EventName = "paytiko.payment_failed"
	EventRefundProcessed   EventName = "paytiko.refund_processed"
)

// Event is delivered to listeners. Payload is the raw decoded body and is only
// set for EventWebhookReceived.
type Event struct {
	Name    EventName
	Webhook *WebhookEvent
	Payload map[string]any
}

// Listener handles a published event. Returned errors abort the publish and
// surface to the caller.
type Listener func(ctx context.Context, ev Event) error

// Publisher is the sink the dispatcher and coordinator publish to.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// EventBus is an in-process synchronous publisher. Listeners run in
// registration order on the publishing goroutine.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[EventName][]Listener
}

func NewEventBus() *EventBus {
	return &EventBus{listeners: map[EventName][]Listener{}}
}

// Subscribe registers fn for the named event.
func (b *EventBus) Subscribe(name EventName, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], fn)
}

func (b *EventBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	ls := append([]Listener(nil), b.listeners[ev.Name]...)
	b.mu.RUnlock()

	for _, fn := range ls {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
