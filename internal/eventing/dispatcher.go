package eventing

import (
	"context"
	"log"
	"time"

	"fee-ledger/internal/observability/metrics"
)

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	// ListPending claims up to limit pending records and counts the attempt.
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	// MarkRetry returns a claimed record to pending.
	MarkRetry(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore records delivery failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord is a claimed outbox entry. Attempts includes the current claim.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
	Attempts int
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Claimed int
	Sent    int
	Retried int
	Failed  int
	DLQ     int
}

const defaultMaxAttempts = 5

// Dispatcher moves pending outbox records onto the in-process bus.
type Dispatcher struct {
	bus         EventBus
	outbox      OutboxStore
	registry    *Registry
	dlq         DLQStore
	maxAttempts int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxAttempts sets how many deliveries a record gets before it is
// dead-lettered. Records whose payload cannot be decoded fail immediately.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers up to limit pending records. A failed delivery goes back
// to pending until it runs out of attempts, then it is marked failed and
// dead-lettered. The returned error reports store failures only.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	var result DispatchResult
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return result, nil
	}
	if limit <= 0 {
		limit = 50
	}
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, metrics.DispatchCounts{})
		return result, err
	}
	result.Claimed = len(records)

	var storeErr error
	keep := func(err error) {
		if err != nil && storeErr == nil {
			storeErr = err
		}
	}
	for _, record := range records {
		payload, err := d.registry.DecodePayload(record.Envelope)
		if err == nil {
			err = d.bus.Publish(WithEnvelope(ctx, record.Envelope), payload)
			if err == nil {
				if markErr := d.outbox.MarkSent(ctx, record.ID); markErr != nil {
					keep(markErr)
					result.Failed++
					continue
				}
				result.Sent++
				continue
			}
			if record.Attempts < d.maxAttempts {
				keep(d.outbox.MarkRetry(ctx, record.ID))
				result.Retried++
				continue
			}
		}
		keep(d.outbox.MarkFailed(ctx, record.ID))
		result.Failed++
		if d.dlq != nil && d.dlq.RecordFailure(ctx, record.Envelope, err) == nil {
			result.DLQ++
		}
	}

	outcome := metrics.ResultSuccess
	if storeErr != nil || result.Failed > 0 {
		outcome = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(outcome, metrics.DispatchCounts{
		Sent:    result.Sent,
		Retried: result.Retried,
		Failed:  result.Failed,
		DLQ:     result.DLQ,
	})
	return result, storeErr
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, batch int, logger *log.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := d.Dispatch(ctx, batch)
			if err != nil {
				logger.Printf("outbox dispatch: store err=%v", err)
			}
			if result.Retried > 0 || result.Failed > 0 {
				logger.Printf("outbox dispatch: sent=%d retried=%d failed=%d dlq=%d",
					result.Sent, result.Retried, result.Failed, result.DLQ)
			}
		}
	}
}
