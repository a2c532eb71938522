package eventing

import (
	"context"
	"log"
	"time"

	"fee-ledger/internal/observability/metrics"
)

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Publisher writes events to the outbox; a Dispatcher delivers them later.
type Publisher struct {
	outbox OutboxWriter
	sub    EventBus
}

// NewPublisher constructs a publisher. sub receives Subscribe calls.
func NewPublisher(outbox OutboxWriter, sub EventBus) *Publisher {
	return &Publisher{outbox: outbox, sub: sub}
}

// Publish wraps event in an envelope and writes it to the outbox.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	start := time.Now()
	if p == nil || p.outbox == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	duration := time.Since(start)
	metrics.ObserveOutboxPublish(metrics.ResultSuccess, duration)
	if duration > 50*time.Millisecond {
		log.Printf("outbox_publish duration_ms=%d event_type=%s", duration.Milliseconds(), env.EventType)
	}
	return nil
}

// Subscribe delegates to the underlying bus.
func (p *Publisher) Subscribe(eventType string, handler EventHandler) {
	if p == nil || p.sub == nil {
		return
	}
	p.sub.Subscribe(eventType, handler)
}
