package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"fee-ledger/internal/audit"
	ledger "fee-ledger/internal/ledger/domain"
	"fee-ledger/internal/observability/metrics"
)

const (
	opCreateEntry    = "create_entry"
	opRecordPayment  = "record_payment"
	opAmendDiscount  = "amend_discount"
	opWaiveEntry     = "waive_entry"
	opDeleteEntry    = "delete_entry"
	opRefreshStatus  = "refresh_status"
	opGetEntry       = "get_entry"
	opListEntries    = "list_entries"
	opStatement      = "student_statement"
	resourceEntry    = "ledger_entry"
	resourcePayment  = "ledger_payment"
	resourceDiscount = "ledger_discount"
)

// Engine applies ledger operations against a Store.
type Engine struct {
	store     ledger.Store
	students  StudentDirectory
	catalog   CatalogReader
	clock     Clock
	publisher EventPublisher
	audit     audit.Logger
	logger    *log.Logger
	newID     func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithPublisher sets where ledger events go after commit.
func WithPublisher(publisher EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// WithAuditLogger sets the audit trail sink.
func WithAuditLogger(logger audit.Logger) Option {
	return func(e *Engine) { e.audit = logger }
}

// WithLogger sets the operational logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDGenerator overrides id generation for entries, payments and amendments.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine constructs the ledger engine.
func NewEngine(store ledger.Store, students StudentDirectory, catalog CatalogReader, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("ledger engine: nil store")
	}
	if students == nil {
		return nil, errors.New("ledger engine: nil student directory")
	}
	if catalog == nil {
		return nil, errors.New("ledger engine: nil catalog reader")
	}
	engine := &Engine{
		store:    store,
		students: students,
		catalog:  catalog,
		clock:    SystemClock{},
		logger:   log.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

func (e *Engine) observe(operation string, start time.Time, err error) {
	metrics.ObserveOperation(operation, resultOf(err), time.Since(start))
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case ledger.IsNotFound(err):
		return metrics.ResultNotFound
	case ledger.IsInvalidArgument(err):
		return metrics.ResultInvalid
	case ledger.IsConflict(err):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}

// publish emits event after a committed change. The change is already
// durable, so failures are only logged.
func (e *Engine) publish(ctx context.Context, event any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Printf("ledger engine: publish %T failed: %v", event, err)
	}
}

type auditRecord struct {
	action       string
	resourceType string
	resourceID   string
	studentID    string
	reason       string
	metadata     any
}

func (e *Engine) record(ctx context.Context, actor Actor, rec auditRecord) {
	if e.audit == nil {
		return
	}
	meta := audit.Metadata(rec.metadata)
	entry := audit.Entry{
		ID:            audit.NewID(),
		Actor:         actor.ID,
		Role:          actor.Role,
		Action:        rec.action,
		ResourceType:  rec.resourceType,
		ResourceID:    rec.resourceID,
		StudentID:     rec.studentID,
		Reason:        rec.reason,
		Metadata:      meta,
		PayloadDigest: audit.DigestJSON(meta),
		IP:            actor.IP,
		UserAgent:     actor.UserAgent,
		CreatedAt:     e.now(),
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Printf("ledger engine: audit %s %s failed: %v", rec.action, rec.resourceID, err)
	}
}
