package eventing

import (
	"context"
	"time"

	"fee-ledger/internal/observability/metrics"
)

// ProcessedStore records which consumer has handled which event.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe registers handler for eventType. With a store, handler runs at
// most once per event id for consumerName.
func Subscribe(bus EventBus, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	SubscribeAll(bus, consumerName, handler, store, eventType)
}

// SubscribeAll registers one consumer for several event types, sharing the
// same idempotency bookkeeping.
func SubscribeAll(bus EventBus, consumerName string, handler EventHandler, store ProcessedStore, eventTypes ...string) {
	if bus == nil || handler == nil {
		return
	}
	if store != nil {
		handler = WrapHandler(consumerName, handler, store)
	}
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, handler)
	}
}

// WrapHandler runs handler at most once per event id and consumer. Events
// delivered without an envelope bypass the check. A handler error leaves
// the event unmarked so a later delivery retries it.
func WrapHandler(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	c := idempotentConsumer{name: consumerName, handler: handler, store: store}
	return c.handle
}

type idempotentConsumer struct {
	name    string
	handler EventHandler
	store   ProcessedStore
}

func (c idempotentConsumer) handle(ctx context.Context, event any) error {
	env, ok := EnvelopeFromContext(ctx)
	if !ok || env.EventID == "" {
		return c.handler(ctx, event)
	}
	seen, err := c.store.HasProcessed(ctx, env.EventID, c.name)
	if err != nil || seen {
		return err
	}
	if !env.OccurredAt.IsZero() {
		metrics.ObserveConsumerLag(c.name, time.Since(env.OccurredAt))
	}
	if err := c.handler(ctx, event); err != nil {
		return err
	}
	return c.store.MarkProcessed(ctx, env.EventID, c.name)
}
