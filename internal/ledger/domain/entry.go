package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is the fee ledger aggregate: one fee assigned to one student for one
// academic year. FinalAmount is PrincipalAmount minus DiscountAmount and only
// changes through ChangeDiscount. Balance is never stored; it is
// FinalAmount minus the sum of the entry's payments.
type Entry struct {
	ID              string
	StudentID       string
	CatalogEntryID  string
	AcademicYearID  string
	PrincipalAmount decimal.Decimal
	DiscountAmount  decimal.Decimal
	FinalAmount     decimal.Decimal
	DiscountRuleID  string
	DueDate         time.Time
	Status          Status
	Version         int64
	WaiveReason     string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	WaivedAt        time.Time
}

// NewEntryParams holds the inputs for a new entry.
type NewEntryParams struct {
	ID              string
	StudentID       string
	CatalogEntryID  string
	AcademicYearID  string
	PrincipalAmount decimal.Decimal
	DiscountAmount  decimal.Decimal
	DiscountRuleID  string
	DueDate         time.Time
	CreatedBy       string
}

// NewEntry validates the params and builds an entry with its initial status.
func NewEntry(params NewEntryParams, now time.Time) (*Entry, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, Invalid(CodeMissingField, "entry id is required")
	}
	if strings.TrimSpace(params.StudentID) == "" {
		return nil, Invalid(CodeMissingField, "student id is required")
	}
	if strings.TrimSpace(params.CatalogEntryID) == "" {
		return nil, Invalid(CodeMissingField, "catalog entry id is required")
	}
	if strings.TrimSpace(params.AcademicYearID) == "" {
		return nil, Invalid(CodeMissingField, "academic year id is required")
	}
	if strings.TrimSpace(params.CreatedBy) == "" {
		return nil, Invalid(CodeMissingActor, "actor is required")
	}
	if params.DueDate.IsZero() {
		return nil, Invalid(CodeMissingDueDate, "due date is required")
	}
	if !params.PrincipalAmount.IsPositive() {
		return nil, Invalid(CodeInvalidPrincipal, "principal amount %s must be greater than zero", FormatMoney(params.PrincipalAmount))
	}
	if err := CheckAmountScale("principal amount", params.PrincipalAmount); err != nil {
		return nil, err
	}
	if err := checkDiscount(params.DiscountAmount, params.PrincipalAmount); err != nil {
		return nil, err
	}

	now = now.UTC()
	final := params.PrincipalAmount.Sub(params.DiscountAmount)
	dueDate := DateOf(params.DueDate)
	return &Entry{
		ID:              params.ID,
		StudentID:       params.StudentID,
		CatalogEntryID:  params.CatalogEntryID,
		AcademicYearID:  params.AcademicYearID,
		PrincipalAmount: params.PrincipalAmount,
		DiscountAmount:  params.DiscountAmount,
		FinalAmount:     final,
		DiscountRuleID:  params.DiscountRuleID,
		DueDate:         dueDate,
		Status:          DeriveStatus(final, decimal.Zero, dueDate, now),
		Version:         1,
		CreatedBy:       params.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func checkDiscount(discount, principal decimal.Decimal) error {
	if discount.IsNegative() {
		return Invalid(CodeInvalidDiscount, "discount amount %s must not be negative", FormatMoney(discount))
	}
	if err := CheckAmountScale("discount amount", discount); err != nil {
		return err
	}
	if discount.GreaterThan(principal) {
		return Invalid(CodeDiscountExceeds, "discount %s exceeds principal %s by %s",
			FormatMoney(discount), FormatMoney(principal), FormatMoney(discount.Sub(principal)))
	}
	return nil
}

// Balance returns the outstanding amount given the sum of payments.
func (e *Entry) Balance(paid decimal.Decimal) decimal.Decimal {
	return e.FinalAmount.Sub(paid)
}

// CurrentStatus returns the status as of now. Waived is sticky; everything
// else is derived from the amounts and the due date.
func (e *Entry) CurrentStatus(paid decimal.Decimal, now time.Time) Status {
	if e.Status == StatusWaived {
		return StatusWaived
	}
	return DeriveStatus(e.FinalAmount, paid, e.DueDate, now)
}

// ApplyPayment checks that amount may be added on top of paid and moves the
// entry to the status implied by the new total.
func (e *Entry) ApplyPayment(paid, amount decimal.Decimal, now time.Time) error {
	if e.Status.IsTerminal() {
		return Invalid(CodeEntrySettled, "ledger entry %s is %s and accepts no further payments", e.ID, e.Status)
	}
	if !amount.IsPositive() {
		return Invalid(CodeInvalidAmount, "payment amount %s must be greater than zero", FormatMoney(amount))
	}
	newPaid := paid.Add(amount)
	if newPaid.GreaterThan(e.FinalAmount) {
		return Invalid(CodeOverpayment, "payment exceeds outstanding balance by %s (balance %s, payment %s)",
			FormatMoney(newPaid.Sub(e.FinalAmount)), FormatMoney(e.Balance(paid)), FormatMoney(amount))
	}
	e.touch(DeriveStatus(e.FinalAmount, newPaid, e.DueDate, now), now)
	return nil
}

// ChangeDiscount replaces the discount. The new final amount may not drop
// below what has already been paid.
func (e *Entry) ChangeDiscount(discount, paid decimal.Decimal, now time.Time) error {
	if e.Status.IsTerminal() {
		return Invalid(CodeEntrySettled, "ledger entry %s is %s and its discount can no longer be amended", e.ID, e.Status)
	}
	if err := checkDiscount(discount, e.PrincipalAmount); err != nil {
		return err
	}
	final := e.PrincipalAmount.Sub(discount)
	if final.LessThan(paid) {
		return Invalid(CodeDiscountBelowPaid, "discount amendment leaves final amount %s below amount paid %s by %s",
			FormatMoney(final), FormatMoney(paid), FormatMoney(paid.Sub(final)))
	}
	e.DiscountAmount = discount
	e.FinalAmount = final
	e.DiscountRuleID = ""
	e.touch(DeriveStatus(final, paid, e.DueDate, now), now)
	return nil
}

// Waive moves a non-terminal entry into the waived state.
func (e *Entry) Waive(reason string, now time.Time) error {
	if e.Status.IsTerminal() {
		return Invalid(CodeEntrySettled, "ledger entry %s is %s and cannot be waived", e.ID, e.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return Invalid(CodeMissingReason, "waive reason is required")
	}
	e.WaiveReason = reason
	e.WaivedAt = now.UTC()
	e.touch(StatusWaived, now)
	return nil
}

// Refresh re-derives the stored status. It reports whether anything changed.
func (e *Entry) Refresh(paid decimal.Decimal, now time.Time) bool {
	if e.Status == StatusWaived {
		return false
	}
	next := DeriveStatus(e.FinalAmount, paid, e.DueDate, now)
	if next == e.Status {
		return false
	}
	e.touch(next, now)
	return true
}

func (e *Entry) touch(status Status, now time.Time) {
	e.Status = status
	e.UpdatedAt = now.UTC()
	e.Version++
}

// Clone returns a detached copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	copy := *e
	return &copy
}
