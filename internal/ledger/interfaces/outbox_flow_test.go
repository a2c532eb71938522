package interfaces

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	catalog "fee-ledger/internal/catalog/domain"
	catalogmemory "fee-ledger/internal/catalog/infrastructure/memory"
	"fee-ledger/internal/eventing"
	eventingmemory "fee-ledger/internal/eventing/infrastructure/memory"
	"fee-ledger/internal/ledger/application"
	"fee-ledger/internal/ledger/application/events"
	ledger "fee-ledger/internal/ledger/domain"
	ledgermemory "fee-ledger/internal/ledger/infrastructure/memory"
	students "fee-ledger/internal/students/domain"
	studentmemory "fee-ledger/internal/students/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestLedgerEventsFlowThroughOutbox(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	outbox := eventingmemory.NewOutbox()
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.All()...)
	dlq := &eventingmemory.DeadLetters{}
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq)

	var logs bytes.Buffer
	consumer := NewLoggingConsumer(log.New(&logs, "", 0))
	if err := consumer.Register(bus, eventingmemory.NewProcessed()); err != nil {
		t.Fatalf("register consumer: %v", err)
	}

	fees := catalogmemory.NewRepository()
	if err := fees.SaveFeeEntry(ctx, &catalog.FeeEntry{ID: "fee-tuition", Name: "Tuition", Amount: decimal.RequireFromString("1000"), Active: true}); err != nil {
		t.Fatalf("save fee: %v", err)
	}
	engine, err := application.NewEngine(
		ledgermemory.NewStore(),
		studentmemory.NewDirectory(students.Student{ID: "stu-001", Active: true}),
		fees,
		application.WithClock(fixedClock{now: now}),
		application.WithPublisher(NewOutboxPublisher(eventing.NewPublisher(outbox, bus))),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	actor := application.Actor{ID: "bursar-01"}
	view, err := engine.CreateEntry(ctx, application.CreateEntryCommand{
		StudentID: "stu-001", CatalogEntryID: "fee-tuition", AcademicYearID: "2026", DueDate: now.AddDate(0, 1, 0), Actor: actor,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := engine.RecordPayment(ctx, application.RecordPaymentCommand{
		EntryID: view.Entry.ID, Amount: decimal.RequireFromString("250"), Method: ledger.MethodCash, ExternalRef: "RCPT-9", Actor: actor,
	}); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	envelopes := outbox.Envelopes()
	if len(envelopes) != 2 {
		t.Fatalf("expected 2 outbox envelopes, got %d", len(envelopes))
	}
	for _, env := range envelopes {
		if env.EventID == "" || env.CorrelationID != env.EventID {
			t.Fatalf("envelope ids: event=%q correlation=%q", env.EventID, env.CorrelationID)
		}
		if env.AggregateID != view.Entry.ID || env.StudentID != "stu-001" || env.Actor != "bursar-01" {
			t.Fatalf("envelope metadata: %+v", env)
		}
	}

	result, err := dispatcher.Dispatch(ctx, 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Sent != 2 || result.Failed != 0 || dlq.Len() != 0 {
		t.Fatalf("dispatch result: %+v dlq=%d", result, dlq.Len())
	}
	out := logs.String()
	if !strings.Contains(out, "ledger entry created: entry="+view.Entry.ID) {
		t.Fatalf("missing created log line: %s", out)
	}
	if !strings.Contains(out, "amount=250.00 method=cash balance=750.00 status=partial") {
		t.Fatalf("missing payment log line: %s", out)
	}

	again, err := dispatcher.Dispatch(ctx, 10)
	if err != nil || again.Claimed != 0 {
		t.Fatalf("second dispatch: %+v err=%v", again, err)
	}
}
