package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryCreated is emitted when a fee is assigned to a student.
type EntryCreated struct {
	EntryID         string          `json:"entry_id"`
	StudentID       string          `json:"student_id"`
	CatalogEntryID  string          `json:"catalog_entry_id"`
	AcademicYearID  string          `json:"academic_year_id"`
	PrincipalAmount decimal.Decimal `json:"principal_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	DueDate         time.Time       `json:"due_date"`
	Status          string          `json:"status"`
	Actor           string          `json:"actor"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// PaymentRecorded is emitted once per accepted payment. Idempotent retries
// do not emit it again.
type PaymentRecorded struct {
	EntryID     string          `json:"entry_id"`
	StudentID   string          `json:"student_id"`
	PaymentID   string          `json:"payment_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	ExternalRef string          `json:"external_ref,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	Status      string          `json:"status"`
	Actor       string          `json:"actor"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// DiscountAmended is emitted when an entry's discount changes.
type DiscountAmended struct {
	EntryID          string          `json:"entry_id"`
	StudentID        string          `json:"student_id"`
	AmendmentID      string          `json:"amendment_id"`
	PreviousDiscount decimal.Decimal `json:"previous_discount"`
	NewDiscount      decimal.Decimal `json:"new_discount"`
	NewFinal         decimal.Decimal `json:"new_final"`
	Balance          decimal.Decimal `json:"balance"`
	Status           string          `json:"status"`
	Reason           string          `json:"reason"`
	Actor            string          `json:"actor"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// EntryWaived is emitted when an entry is waived.
type EntryWaived struct {
	EntryID    string    `json:"entry_id"`
	StudentID  string    `json:"student_id"`
	Reason     string    `json:"reason"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EntryDeleted is emitted when an unpaid entry is removed.
type EntryDeleted struct {
	EntryID    string    `json:"entry_id"`
	StudentID  string    `json:"student_id"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EntryStatusChanged is emitted when a refresh moves the stored status,
// typically pending to overdue once the due date passes.
type EntryStatusChanged struct {
	EntryID    string    `json:"entry_id"`
	StudentID  string    `json:"student_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

// All returns one sample of every ledger event for registry wiring.
func All() []any {
	return []any{
		EntryCreated{},
		PaymentRecorded{},
		DiscountAmended{},
		EntryWaived{},
		EntryDeleted{},
		EntryStatusChanged{},
	}
}
