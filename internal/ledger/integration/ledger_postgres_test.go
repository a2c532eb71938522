package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	catalog "fee-ledger/internal/catalog/domain"
	catalogrepo "fee-ledger/internal/catalog/infrastructure/postgres"
	"fee-ledger/internal/eventing"
	eventingrepo "fee-ledger/internal/eventing/infrastructure/postgres"
	"fee-ledger/internal/ledger/application"
	"fee-ledger/internal/ledger/application/events"
	ledger "fee-ledger/internal/ledger/domain"
	ledgerrepo "fee-ledger/internal/ledger/infrastructure/postgres"
	ledgerinterfaces "fee-ledger/internal/ledger/interfaces"
	studentrepo "fee-ledger/internal/students/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var bursar = application.Actor{ID: "bursar-it", Role: "bursar"}

type env struct {
	db      *sql.DB
	engine  *application.Engine
	catalog *catalogrepo.Repository
	outbox  *eventingrepo.OutboxStore
	suffix  string
}

func setup(t *testing.T) *env {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	applyMigrations(t, db)

	suffix := uuid.NewString()[:8]
	e := &env{
		db:      db,
		catalog: catalogrepo.NewRepository(db),
		outbox:  eventingrepo.NewOutboxStore(db),
		suffix:  suffix,
	}
	publisher := eventing.NewPublisher(e.outbox, eventing.NewInMemoryBus())
	engine, err := application.NewEngine(
		ledgerrepo.NewStore(db, ledgerrepo.WithLockTimeout(5*time.Second)),
		studentrepo.NewDirectory(db),
		e.catalog,
		application.WithPublisher(ledgerinterfaces.NewOutboxPublisher(publisher)),
		application.WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.engine = engine
	return e
}

func (e *env) id(prefix string) string {
	return prefix + "-" + e.suffix
}

func (e *env) seedStudent(t *testing.T, active bool) string {
	t.Helper()
	id := e.id(fmt.Sprintf("stu-%t", active))
	_, err := e.db.ExecContext(context.Background(),
		`INSERT INTO students (id, full_name, grade_level, active) VALUES ($1, $2, 'P5', $3)`,
		id, "Integration Pupil", active)
	if err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return id
}

func (e *env) seedFee(t *testing.T, amount string) string {
	t.Helper()
	fee := &catalog.FeeEntry{
		ID:     e.id("fee-" + amount),
		Name:   "Tuition " + amount,
		Amount: decimal.RequireFromString(amount),
		Active: true,
	}
	if err := e.catalog.SaveFeeEntry(context.Background(), fee); err != nil {
		t.Fatalf("seed fee: %v", err)
	}
	return fee.ID
}

func (e *env) createEntry(t *testing.T, studentID, feeID string) *application.EntryView {
	t.Helper()
	view, err := e.engine.CreateEntry(context.Background(), application.CreateEntryCommand{
		StudentID:      studentID,
		CatalogEntryID: feeID,
		AcademicYearID: "2026",
		DueDate:        time.Now().UTC().AddDate(0, 1, 0),
		Actor:          bursar,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	return view
}

func TestLedger_PostgresPaymentLifecycle(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	studentID := e.seedStudent(t, true)
	view := e.createEntry(t, studentID, e.seedFee(t, "900"))

	ref := e.id("RCPT-1")
	first, err := e.engine.RecordPayment(ctx, application.RecordPaymentCommand{
		EntryID: view.Entry.ID, Amount: decimal.RequireFromString("400"), Method: ledger.MethodBankTransfer,
		ExternalRef: ref, Actor: bursar,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if !first.Balance.Equal(decimal.RequireFromString("500")) || first.Status != ledger.StatusPartial {
		t.Fatalf("after 400: balance=%s status=%s", first.Balance, first.Status)
	}

	retry, err := e.engine.RecordPayment(ctx, application.RecordPaymentCommand{
		EntryID: view.Entry.ID, Amount: decimal.RequireFromString("400"), Method: ledger.MethodBankTransfer,
		ExternalRef: ref, Actor: bursar,
	})
	if err != nil {
		t.Fatalf("retry payment: %v", err)
	}
	if !retry.AlreadyApplied || retry.Payment.ID != first.Payment.ID {
		t.Fatalf("expected idempotent retry, got %+v", retry)
	}

	_, err = e.engine.RecordPayment(ctx, application.RecordPaymentCommand{
		EntryID: view.Entry.ID, Amount: decimal.RequireFromString("600"), Method: ledger.MethodCash, Actor: bursar,
	})
	if !ledger.IsInvalidArgument(err) || ledger.CodeOf(err) != ledger.CodeOverpayment {
		t.Fatalf("expected overpayment, got %v", err)
	}

	other := e.createEntry(t, studentID, e.seedFee(t, "120"))
	_, err = e.engine.RecordPayment(ctx, application.RecordPaymentCommand{
		EntryID: other.Entry.ID, Amount: decimal.RequireFromString("10"), Method: ledger.MethodCash,
		ExternalRef: ref, Actor: bursar,
	})
	if !ledger.IsConflict(err) || ledger.CodeOf(err) != ledger.CodeDuplicateExternalRef {
		t.Fatalf("expected duplicate_external_ref, got %v", err)
	}

	err = e.engine.DeleteEntry(ctx, application.DeleteEntryCommand{EntryID: view.Entry.ID, Actor: bursar})
	if !ledger.IsConflict(err) || ledger.CodeOf(err) != ledger.CodeEntryHasDependents {
		t.Fatalf("expected entry_has_dependents, got %v", err)
	}

	var queued int
	if err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_outbox WHERE aggregate_id = $1 AND event_type = $2`,
		view.Entry.ID, eventing.EventTypeOf[events.PaymentRecorded](),
	).Scan(&queued); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if queued != 1 {
		t.Fatalf("expected 1 PaymentRecorded outbox row, got %d", queued)
	}
}

func TestLedger_PostgresConcurrentPaymentsNeverOverpay(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	view := e.createEntry(t, e.seedStudent(t, true), e.seedFee(t, "1000"))

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.engine.RecordPayment(ctx, application.RecordPaymentCommand{
				EntryID: view.Entry.ID, Amount: decimal.RequireFromString("150"), Method: ledger.MethodMobileMoney,
				ExternalRef: e.id(fmt.Sprintf("MM-%d", i)), Actor: bursar,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case ledger.CodeOf(err) == ledger.CodeOverpayment:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if accepted != 6 || rejected != 2 {
		t.Fatalf("expected 6 accepted and 2 rejected, got %d/%d", accepted, rejected)
	}
	detail, err := e.engine.GetEntry(ctx, view.Entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !detail.Paid.Equal(decimal.RequireFromString("900")) || !detail.Balance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("paid=%s balance=%s", detail.Paid, detail.Balance)
	}
	if detail.Entry.Version != 7 {
		t.Fatalf("expected version 7, got %d", detail.Entry.Version)
	}
}

func TestLedger_PostgresDuplicateAssignment(t *testing.T) {
	e := setup(t)
	studentID := e.seedStudent(t, true)
	feeID := e.seedFee(t, "300")
	e.createEntry(t, studentID, feeID)

	_, err := e.engine.CreateEntry(context.Background(), application.CreateEntryCommand{
		StudentID: studentID, CatalogEntryID: feeID, AcademicYearID: "2026",
		DueDate: time.Now().UTC().AddDate(0, 1, 0), Actor: bursar,
	})
	if !ledger.IsConflict(err) || ledger.CodeOf(err) != ledger.CodeDuplicateAssignment {
		t.Fatalf("expected duplicate_assignment, got %v", err)
	}
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_fee_ledger.sql"))
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), string(schema)); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
}
