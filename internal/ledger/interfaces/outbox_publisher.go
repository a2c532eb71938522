package interfaces

import (
	"context"

	"fee-ledger/internal/eventing"
)

// OutboxPublisher writes ledger events to the outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(publisher *eventing.Publisher) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher}
}

// Publish writes event to the outbox under a fresh event id. The event id
// doubles as correlation id when the caller did not set one.
func (p *OutboxPublisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	eventID := eventing.NewEventID()
	ctx = eventing.WithEventID(ctx, eventID)
	if eventing.MetaFromContext(ctx).CorrelationID == "" {
		ctx = eventing.WithCorrelationID(ctx, eventID)
	}
	return p.publisher.Publish(ctx, event)
}
