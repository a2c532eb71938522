package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EntryFilter narrows entry listings. Zero fields are ignored.
type EntryFilter struct {
	StudentID      string
	AcademicYearID string
	Statuses       []Status
	DueBefore      time.Time
	Limit          int
}

// Store persists ledger entries, payments and discount amendments.
//
// CreateEntry must reject a second entry for the same student, catalog entry
// and academic year with a CodeDuplicateAssignment conflict, including when
// two creations race. GetEntry returns nil, nil when the entry is missing.
type Store interface {
	CreateEntry(ctx context.Context, entry *Entry) error
	GetEntry(ctx context.Context, id string) (*Entry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	ListPayments(ctx context.Context, entryID string) ([]Payment, error)
	PaidTotals(ctx context.Context, entryIDs []string) (map[string]decimal.Decimal, error)
	ListDiscountAmendments(ctx context.Context, entryID string) ([]DiscountAmendment, error)

	// WithinEntry runs fn as one atomic unit holding exclusive access to the
	// entry. Writes made through tx are applied only if fn returns nil; a
	// missing entry yields a CodeEntryNotFound violation without calling fn.
	WithinEntry(ctx context.Context, entryID string, fn func(ctx context.Context, tx EntryTx) error) error
}

// EntryTx is the view of one locked entry inside Store.WithinEntry.
type EntryTx interface {
	// Entry returns the locked entry as read inside the unit.
	Entry() *Entry
	PaidTotal(ctx context.Context) (decimal.Decimal, error)
	// FindPaymentByExternalRef looks across all entries.
	FindPaymentByExternalRef(ctx context.Context, ref string) (*Payment, error)
	InsertPayment(ctx context.Context, payment *Payment) error
	// SaveEntry persists the entry, expecting the stored version to be entry.Version-1.
	SaveEntry(ctx context.Context, entry *Entry) error
	InsertDiscountAmendment(ctx context.Context, amendment *DiscountAmendment) error
	HasDependents(ctx context.Context) (bool, error)
	DeleteEntry(ctx context.Context) error
}
