package memory

import (
	"context"
	"sync"

	"fee-ledger/internal/eventing"
)

// Outbox is an in-memory outbox keyed by event id.
type Outbox struct {
	mu      sync.Mutex
	order   []string
	records map[string]*outboxRow
}

type outboxRow struct {
	env      eventing.Envelope
	status   string
	attempts int
}

// NewOutbox constructs an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{records: make(map[string]*outboxRow)}
}

// Insert stores env unless its event id is already present.
func (o *Outbox) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.records[env.EventID]; !ok {
		o.records[env.EventID] = &outboxRow{env: env, status: "pending"}
		o.order = append(o.order, env.EventID)
	}
	return env.EventID, nil
}

// ListPending claims up to limit pending records in insertion order.
func (o *Outbox) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []eventing.OutboxRecord
	for _, id := range o.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		row := o.records[id]
		if row.status != "pending" {
			continue
		}
		row.status = "dispatching"
		row.attempts++
		out = append(out, eventing.OutboxRecord{ID: id, Envelope: row.env, Attempts: row.attempts})
	}
	return out, nil
}

// MarkSent marks a record as delivered.
func (o *Outbox) MarkSent(_ context.Context, id string) error {
	return o.mark(id, "sent")
}

// MarkRetry returns a claimed record to pending.
func (o *Outbox) MarkRetry(_ context.Context, id string) error {
	return o.mark(id, "pending")
}

// MarkFailed marks a record as failed.
func (o *Outbox) MarkFailed(_ context.Context, id string) error {
	return o.mark(id, "failed")
}

func (o *Outbox) mark(id, status string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if row, ok := o.records[id]; ok {
		row.status = status
	}
	return nil
}

// Envelopes returns every stored envelope in insertion order.
func (o *Outbox) Envelopes() []eventing.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]eventing.Envelope, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.records[id].env)
	}
	return out
}

// Processed is an in-memory processed-event store.
type Processed struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewProcessed constructs an empty store.
func NewProcessed() *Processed {
	return &Processed{seen: make(map[string]struct{})}
}

// HasProcessed reports whether consumerName handled eventID.
func (p *Processed) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[consumerName+"|"+eventID]
	return ok, nil
}

// MarkProcessed records that consumerName handled eventID.
func (p *Processed) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[consumerName+"|"+eventID] = struct{}{}
	return nil
}

// DeadLetters is an in-memory dead-letter store.
type DeadLetters struct {
	mu      sync.Mutex
	entries []eventing.Envelope
}

// RecordFailure appends env.
func (d *DeadLetters) RecordFailure(_ context.Context, env eventing.Envelope, _ error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, env)
	return nil
}

// Len returns the number of dead letters.
func (d *DeadLetters) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
