package eventing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fee-ledger/internal/eventing"
	"fee-ledger/internal/eventing/infrastructure/memory"
)

type receiptIssued struct {
	EntryID    string    `json:"entry_id"`
	StudentID  string    `json:"student_id"`
	Amount     string    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newPipeline() (*eventing.InMemoryBus, *memory.Outbox, *memory.DeadLetters, *eventing.Publisher, *eventing.Dispatcher) {
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(receiptIssued{})
	outbox := memory.NewOutbox()
	dlq := &memory.DeadLetters{}
	publisher := eventing.NewPublisher(outbox, bus)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq)
	return bus, outbox, dlq, publisher, dispatcher
}

func TestBuildEnvelopeReadsEventFields(t *testing.T) {
	occurred := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.FixedZone("EAT", 3*3600))
	env, err := eventing.BuildEnvelope(receiptIssued{EntryID: "ent-1", StudentID: "stu-1", Amount: "10.00", OccurredAt: occurred}, eventing.Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != eventing.EventTypeOf[receiptIssued]() {
		t.Fatalf("unexpected event type %q", env.EventType)
	}
	if env.AggregateID != "ent-1" || env.StudentID != "stu-1" {
		t.Fatalf("unexpected ids: %+v", env)
	}
	if !env.OccurredAt.Equal(occurred) || env.OccurredAt.Location() != time.UTC {
		t.Fatalf("unexpected occurred_at %v", env.OccurredAt)
	}
	if env.EventID == "" || env.CorrelationID != env.EventID || env.SchemaVersion != 1 {
		t.Fatalf("unexpected defaults: %+v", env)
	}
}

func TestDispatcherDeliversOnceAcrossDuplicatePublishes(t *testing.T) {
	bus, outbox, _, publisher, dispatcher := newPipeline()
	processed := memory.NewProcessed()

	var got []receiptIssued
	eventing.Subscribe(bus, eventing.EventTypeOf[receiptIssued](), "receipts", func(ctx context.Context, event any) error {
		got = append(got, event.(receiptIssued))
		return nil
	}, processed)

	ctx := eventing.WithEventID(context.Background(), "evt-dup-001")
	payload := receiptIssued{EntryID: "ent-1", StudentID: "stu-1", Amount: "150.00", OccurredAt: time.Now().UTC()}
	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}
	if len(outbox.Envelopes()) != 1 {
		t.Fatalf("expected one outbox record, got %d", len(outbox.Envelopes()))
	}

	result, err := dispatcher.Dispatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Claimed != 1 || result.Sent != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(got) != 1 || got[0].Amount != "150.00" {
		t.Fatalf("unexpected deliveries: %+v", got)
	}

	again, err := dispatcher.Dispatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if again.Claimed != 0 || len(got) != 1 {
		t.Fatalf("sent record was redelivered: %+v", again)
	}
}

func TestDispatcherRetriesThenDeadLetters(t *testing.T) {
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(receiptIssued{})
	outbox := memory.NewOutbox()
	dlq := &memory.DeadLetters{}
	publisher := eventing.NewPublisher(outbox, bus)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq, eventing.WithMaxAttempts(3))

	calls := 0
	eventing.Subscribe(bus, eventing.EventTypeOf[receiptIssued](), "failing", func(ctx context.Context, event any) error {
		calls++
		return errors.New("boom")
	}, memory.NewProcessed())

	if err := publisher.Publish(context.Background(), receiptIssued{EntryID: "ent-2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for attempt := 1; attempt <= 2; attempt++ {
		result, err := dispatcher.Dispatch(context.Background(), 10)
		if err != nil {
			t.Fatalf("dispatch %d: %v", attempt, err)
		}
		if result.Retried != 1 || result.Failed != 0 || dlq.Len() != 0 {
			t.Fatalf("attempt %d: expected retry, got %+v", attempt, result)
		}
	}
	result, err := dispatcher.Dispatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("final dispatch: %v", err)
	}
	if result.Failed != 1 || result.DLQ != 1 || dlq.Len() != 1 || calls != 3 {
		t.Fatalf("expected dead letter after 3 attempts, got %+v (dlq=%d calls=%d)", result, dlq.Len(), calls)
	}
	if again, _ := dispatcher.Dispatch(context.Background(), 10); again.Claimed != 0 {
		t.Fatalf("dead-lettered record was claimed again: %+v", again)
	}
}

func TestDispatcherRetrySucceeds(t *testing.T) {
	bus, _, dlq, publisher, dispatcher := newPipeline()
	processed := memory.NewProcessed()
	calls := 0
	eventing.Subscribe(bus, eventing.EventTypeOf[receiptIssued](), "flaky", func(ctx context.Context, event any) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, processed)

	if err := publisher.Publish(context.Background(), receiptIssued{EntryID: "ent-4"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	first, _ := dispatcher.Dispatch(context.Background(), 10)
	second, _ := dispatcher.Dispatch(context.Background(), 10)
	if first.Retried != 1 || second.Sent != 1 || dlq.Len() != 0 || calls != 2 {
		t.Fatalf("first=%+v second=%+v dlq=%d calls=%d", first, second, dlq.Len(), calls)
	}
}

func TestDispatcherDeadLettersUnknownTypes(t *testing.T) {
	bus := eventing.NewInMemoryBus()
	outbox := memory.NewOutbox()
	dlq := &memory.DeadLetters{}
	publisher := eventing.NewPublisher(outbox, bus)
	dispatcher := eventing.NewDispatcher(bus, outbox, eventing.NewRegistry(), dlq)

	if err := publisher.Publish(context.Background(), receiptIssued{EntryID: "ent-3"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	result, err := dispatcher.Dispatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Failed != 1 || dlq.Len() != 1 {
		t.Fatalf("expected unknown type to be dead-lettered, got %+v", result)
	}
}

func TestWrapHandlerRetriesAfterFailure(t *testing.T) {
	processed := memory.NewProcessed()
	calls := 0
	handler := eventing.WrapHandler("flaky", func(ctx context.Context, event any) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, processed)

	ctx := eventing.WithEnvelope(context.Background(), eventing.Envelope{EventID: "evt-9"})
	if err := handler(ctx, receiptIssued{}); err == nil {
		t.Fatalf("expected first call to fail")
	}
	if err := handler(ctx, receiptIssued{}); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if err := handler(ctx, receiptIssued{}); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected handler to stop after success, calls=%d", calls)
	}
	done, _ := processed.HasProcessed(context.Background(), "evt-9", "flaky")
	if !done {
		t.Fatalf("expected event to be marked processed")
	}
}
