package application

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	ledger "fee-ledger/internal/ledger/domain"
)

// GetEntry returns an entry with its payments and amendments.
func (e *Engine) GetEntry(ctx context.Context, entryID string) (detail *EntryDetail, err error) {
	start := time.Now()
	defer func() { e.observe(opGetEntry, start, err) }()

	if err := requireEntryID(entryID); err != nil {
		return nil, err
	}
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ledger.NotFound(ledger.CodeEntryNotFound, "ledger entry %s not found", entryID)
	}
	loaded, err := e.loadDetail(ctx, entry, e.now())
	if err != nil {
		return nil, err
	}
	return &loaded, nil
}

func (e *Engine) loadDetail(ctx context.Context, entry *ledger.Entry, now time.Time) (EntryDetail, error) {
	payments, err := e.store.ListPayments(ctx, entry.ID)
	if err != nil {
		return EntryDetail{}, err
	}
	amendments, err := e.store.ListDiscountAmendments(ctx, entry.ID)
	if err != nil {
		return EntryDetail{}, err
	}
	return EntryDetail{
		EntryView:  newEntryView(entry, ledger.SumPayments(payments), now),
		Payments:   payments,
		Amendments: amendments,
	}, nil
}

// ListEntries returns entries matching filter. Statuses match the stored
// status; the returned views carry the status as of now.
func (e *Engine) ListEntries(ctx context.Context, filter ledger.EntryFilter) (views []EntryView, err error) {
	start := time.Now()
	defer func() { e.observe(opListEntries, start, err) }()

	entries, err := e.store.ListEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	totals, err := e.store.PaidTotals(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := e.now()
	views = make([]EntryView, 0, len(entries))
	for i := range entries {
		views = append(views, newEntryView(&entries[i], totals[entries[i].ID], now))
	}
	return views, nil
}

// ListPayments returns an entry's payments in recording order.
func (e *Engine) ListPayments(ctx context.Context, entryID string) ([]ledger.Payment, error) {
	if err := e.requireEntry(ctx, entryID); err != nil {
		return nil, err
	}
	return e.store.ListPayments(ctx, entryID)
}

// ListDiscountAmendments returns an entry's discount history, oldest first.
func (e *Engine) ListDiscountAmendments(ctx context.Context, entryID string) ([]ledger.DiscountAmendment, error) {
	if err := e.requireEntry(ctx, entryID); err != nil {
		return nil, err
	}
	return e.store.ListDiscountAmendments(ctx, entryID)
}

func (e *Engine) requireEntry(ctx context.Context, entryID string) error {
	if err := requireEntryID(entryID); err != nil {
		return err
	}
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ledger.NotFound(ledger.CodeEntryNotFound, "ledger entry %s not found", entryID)
	}
	return nil
}

// StudentStatement collects a student's entries for one academic year, or
// for all years when academicYearID is empty.
func (e *Engine) StudentStatement(ctx context.Context, studentID, academicYearID string) (statement *Statement, err error) {
	start := time.Now()
	defer func() { e.observe(opStatement, start, err) }()

	if strings.TrimSpace(studentID) == "" {
		return nil, ledger.Invalid(ledger.CodeMissingField, "student id is required")
	}
	exists, err := e.students.StudentExists(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ledger.NotFound(ledger.CodeStudentNotFound, "student %s not found", studentID)
	}

	entries, err := e.store.ListEntries(ctx, ledger.EntryFilter{StudentID: studentID, AcademicYearID: academicYearID})
	if err != nil {
		return nil, err
	}
	now := e.now()
	result := &Statement{
		StudentID:      studentID,
		AcademicYearID: academicYearID,
		Entries:        make([]EntryDetail, 0, len(entries)),
		TotalFinal:     decimal.Zero,
		TotalPaid:      decimal.Zero,
		TotalBalance:   decimal.Zero,
		GeneratedAt:    now,
	}
	for i := range entries {
		detail, err := e.loadDetail(ctx, &entries[i], now)
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, detail)
		result.TotalFinal = result.TotalFinal.Add(detail.Entry.FinalAmount)
		result.TotalPaid = result.TotalPaid.Add(detail.Paid)
		if detail.Status != ledger.StatusWaived {
			result.TotalBalance = result.TotalBalance.Add(detail.Balance)
		}
	}
	return result, nil
}
