package application

import (
	"time"

	"github.com/shopspring/decimal"

	ledger "fee-ledger/internal/ledger/domain"
)

// EntryView is an entry with its paid total, balance and the status as of
// the time it was read.
type EntryView struct {
	Entry   ledger.Entry
	Paid    decimal.Decimal
	Balance decimal.Decimal
	Status  ledger.Status
}

func newEntryView(entry *ledger.Entry, paid decimal.Decimal, now time.Time) EntryView {
	return EntryView{
		Entry:   *entry,
		Paid:    paid,
		Balance: entry.Balance(paid),
		Status:  entry.CurrentStatus(paid, now),
	}
}

// EntryDetail adds the payment history and discount amendments.
type EntryDetail struct {
	EntryView
	Payments   []ledger.Payment
	Amendments []ledger.DiscountAmendment
}

// PaymentResult reports the outcome of RecordPayment. When AlreadyApplied is
// set, Payment is the payment stored under the same external reference and
// nothing new was written.
type PaymentResult struct {
	Payment        ledger.Payment
	EntryID        string
	Balance        decimal.Decimal
	Status         ledger.Status
	AlreadyApplied bool
}

// AmendResult reports the outcome of AmendDiscount.
type AmendResult struct {
	Entry     EntryView
	Amendment ledger.DiscountAmendment
}

// Statement is a student's fee position for one academic year.
type Statement struct {
	StudentID      string
	AcademicYearID string
	Entries        []EntryDetail
	TotalFinal     decimal.Decimal
	TotalPaid      decimal.Decimal
	TotalBalance   decimal.Decimal
	GeneratedAt    time.Time
}
