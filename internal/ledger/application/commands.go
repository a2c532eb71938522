package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fee-ledger/internal/audit"
	"fee-ledger/internal/ledger/application/events"
	ledger "fee-ledger/internal/ledger/domain"
	"fee-ledger/internal/observability/metrics"
)

// CreateEntryCommand assigns a catalog fee to a student. AcademicYearID
// defaults to the catalog entry's scope and DueDate to its due policy. At
// most one of DiscountAmount and DiscountRuleID may be set.
type CreateEntryCommand struct {
	StudentID      string
	CatalogEntryID string
	AcademicYearID string
	DiscountAmount *decimal.Decimal
	DiscountRuleID string
	DueDate        time.Time
	Actor          Actor
}

// RecordPaymentCommand records money received against an entry.
type RecordPaymentCommand struct {
	EntryID     string
	Amount      decimal.Decimal
	Method      ledger.PaymentMethod
	ExternalRef string
	PaymentDate time.Time
	Remarks     string
	Actor       Actor
}

// AmendDiscountCommand replaces an entry's discount.
type AmendDiscountCommand struct {
	EntryID     string
	NewDiscount decimal.Decimal
	Reason      string
	Actor       Actor
}

// WaiveEntryCommand forgives the outstanding balance of an entry.
type WaiveEntryCommand struct {
	EntryID string
	Reason  string
	Actor   Actor
}

// DeleteEntryCommand removes an entry that has no history.
type DeleteEntryCommand struct {
	EntryID string
	Actor   Actor
}

func requireActor(actor Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return ledger.Invalid(ledger.CodeMissingActor, "actor is required")
	}
	return nil
}

func requireEntryID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ledger.Invalid(ledger.CodeMissingField, "entry id is required")
	}
	return nil
}

// CreateEntry validates the assignment, snapshots the catalog price and
// persists a new entry.
func (e *Engine) CreateEntry(ctx context.Context, cmd CreateEntryCommand) (view *EntryView, err error) {
	start := time.Now()
	defer func() { e.observe(opCreateEntry, start, err) }()

	if err := requireActor(cmd.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.StudentID) == "" {
		return nil, ledger.Invalid(ledger.CodeMissingField, "student id is required")
	}
	if strings.TrimSpace(cmd.CatalogEntryID) == "" {
		return nil, ledger.Invalid(ledger.CodeMissingField, "catalog entry id is required")
	}
	if cmd.DiscountAmount != nil && cmd.DiscountRuleID != "" {
		return nil, ledger.Invalid(ledger.CodeInvalidDiscount, "give either a discount amount or a discount rule, not both")
	}

	exists, err := e.students.StudentExists(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("ledger engine: student lookup: %w", err)
	}
	if !exists {
		return nil, ledger.NotFound(ledger.CodeStudentNotFound, "student %s not found", cmd.StudentID)
	}
	active, err := e.students.IsActive(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("ledger engine: student lookup: %w", err)
	}
	if !active {
		return nil, ledger.Invalid(ledger.CodeStudentInactive, "student %s is not active", cmd.StudentID)
	}

	fee, err := e.catalog.GetFeeEntry(ctx, cmd.CatalogEntryID)
	if err != nil {
		return nil, fmt.Errorf("ledger engine: catalog lookup: %w", err)
	}
	if fee == nil {
		return nil, ledger.NotFound(ledger.CodeCatalogEntryNotFound, "catalog entry %s not found", cmd.CatalogEntryID)
	}
	if !fee.Active {
		return nil, ledger.Invalid(ledger.CodeCatalogEntryInactive, "catalog entry %s is not active", fee.ID)
	}

	yearID := strings.TrimSpace(cmd.AcademicYearID)
	if scoped := fee.Scope.AcademicYearID; scoped != "" {
		if yearID == "" {
			yearID = scoped
		} else if yearID != scoped {
			return nil, ledger.Invalid(ledger.CodeScopeMismatch, "catalog entry %s is scoped to academic year %s, not %s", fee.ID, scoped, yearID)
		}
	}

	discount := decimal.Zero
	switch {
	case cmd.DiscountRuleID != "":
		rule, err := e.catalog.GetDiscountRule(ctx, cmd.DiscountRuleID)
		if err != nil {
			return nil, fmt.Errorf("ledger engine: discount rule lookup: %w", err)
		}
		if rule == nil {
			return nil, ledger.NotFound(ledger.CodeDiscountRuleNotFound, "discount rule %s not found", cmd.DiscountRuleID)
		}
		if !rule.Active {
			return nil, ledger.Invalid(ledger.CodeInvalidDiscount, "discount rule %s is not active", rule.ID)
		}
		discount, err = rule.Apply(fee.Amount)
		if err != nil {
			return nil, ledger.Invalid(ledger.CodeInvalidDiscount, "discount rule %s: %v", rule.ID, err)
		}
	case cmd.DiscountAmount != nil:
		discount = *cmd.DiscountAmount
	}

	now := e.now()
	dueDate := cmd.DueDate
	if dueDate.IsZero() {
		var ok bool
		dueDate, ok = fee.DuePolicy.DueDate(now)
		if !ok {
			return nil, ledger.Invalid(ledger.CodeMissingDueDate, "catalog entry %s has no due policy, a due date is required", fee.ID)
		}
	}

	entry, err := ledger.NewEntry(ledger.NewEntryParams{
		ID:              e.newID(),
		StudentID:       cmd.StudentID,
		CatalogEntryID:  fee.ID,
		AcademicYearID:  yearID,
		PrincipalAmount: fee.Amount,
		DiscountAmount:  discount,
		DiscountRuleID:  cmd.DiscountRuleID,
		DueDate:         dueDate,
		CreatedBy:       cmd.Actor.ID,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	e.record(ctx, cmd.Actor, auditRecord{
		action:       audit.ActionEntryCreate,
		resourceType: resourceEntry,
		resourceID:   entry.ID,
		studentID:    entry.StudentID,
		metadata: map[string]string{
			"catalog_entry_id": entry.CatalogEntryID,
			"academic_year_id": entry.AcademicYearID,
			"principal":        ledger.FormatMoney(entry.PrincipalAmount),
			"discount":         ledger.FormatMoney(entry.DiscountAmount),
			"discount_rule_id": entry.DiscountRuleID,
		},
	})
	e.publish(ctx, events.EntryCreated{
		EntryID:         entry.ID,
		StudentID:       entry.StudentID,
		CatalogEntryID:  entry.CatalogEntryID,
		AcademicYearID:  entry.AcademicYearID,
		PrincipalAmount: entry.PrincipalAmount,
		DiscountAmount:  entry.DiscountAmount,
		FinalAmount:     entry.FinalAmount,
		DueDate:         entry.DueDate,
		Status:          string(entry.Status),
		Actor:           cmd.Actor.ID,
		OccurredAt:      now,
	})

	created := newEntryView(entry, decimal.Zero, now)
	return &created, nil
}

// RecordPayment applies a payment atomically. A payment whose external
// reference was already applied to the same entry is reported with
// AlreadyApplied and changes nothing.
func (e *Engine) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (result *PaymentResult, err error) {
	start := time.Now()
	defer func() {
		outcome := resultOf(err)
		if err == nil && result != nil && result.AlreadyApplied {
			outcome = metrics.ResultAlreadyApplied
		}
		metrics.ObserveOperation(opRecordPayment, outcome, time.Since(start))
	}()

	if err := requireEntryID(cmd.EntryID); err != nil {
		return nil, err
	}
	now := e.now()
	payment, err := ledger.NewPayment(ledger.NewPaymentParams{
		ID:          e.newID(),
		EntryID:     cmd.EntryID,
		Amount:      cmd.Amount,
		Method:      cmd.Method,
		ExternalRef: strings.TrimSpace(cmd.ExternalRef),
		PaymentDate: cmd.PaymentDate,
		RecordedBy:  cmd.Actor.ID,
		Remarks:     cmd.Remarks,
	}, now)
	if err != nil {
		return nil, err
	}

	var (
		res       PaymentResult
		studentID string
	)
	err = e.store.WithinEntry(ctx, cmd.EntryID, func(ctx context.Context, tx ledger.EntryTx) error {
		entry := tx.Entry()
		if payment.ExternalRef != "" {
			existing, err := tx.FindPaymentByExternalRef(ctx, payment.ExternalRef)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.EntryID != entry.ID {
					return ledger.Conflict(ledger.CodeDuplicateExternalRef,
						"external reference %q was already applied to ledger entry %s", payment.ExternalRef, existing.EntryID)
				}
				paid, err := tx.PaidTotal(ctx)
				if err != nil {
					return err
				}
				res = PaymentResult{
					Payment:        *existing,
					EntryID:        entry.ID,
					Balance:        entry.Balance(paid),
					Status:         entry.CurrentStatus(paid, now),
					AlreadyApplied: true,
				}
				return nil
			}
		}

		paid, err := tx.PaidTotal(ctx)
		if err != nil {
			return err
		}
		if err := entry.ApplyPayment(paid, payment.Amount, now); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		if err := tx.SaveEntry(ctx, entry); err != nil {
			return err
		}
		res = PaymentResult{
			Payment: *payment,
			EntryID: entry.ID,
			Balance: entry.Balance(paid.Add(payment.Amount)),
			Status:  entry.Status,
		}
		studentID = entry.StudentID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyApplied {
		e.logger.Printf("ledger engine: payment already applied entry=%s ref=%s payment=%s", res.EntryID, payment.ExternalRef, res.Payment.ID)
		return &res, nil
	}

	metrics.AddPaymentAmount(string(payment.Method), payment.Amount)
	e.record(ctx, cmd.Actor, auditRecord{
		action:       audit.ActionPaymentRecord,
		resourceType: resourcePayment,
		resourceID:   payment.ID,
		studentID:    studentID,
		metadata: map[string]string{
			"entry_id":     res.EntryID,
			"amount":       ledger.FormatMoney(payment.Amount),
			"method":       string(payment.Method),
			"external_ref": payment.ExternalRef,
			"balance":      ledger.FormatMoney(res.Balance),
			"status":       string(res.Status),
		},
	})
	e.publish(ctx, events.PaymentRecorded{
		EntryID:     res.EntryID,
		StudentID:   studentID,
		PaymentID:   payment.ID,
		Amount:      payment.Amount,
		Method:      string(payment.Method),
		ExternalRef: payment.ExternalRef,
		Balance:     res.Balance,
		Status:      string(res.Status),
		Actor:       cmd.Actor.ID,
		OccurredAt:  now,
	})
	return &res, nil
}

// AmendDiscount replaces the discount on an open entry and keeps a record of
// the previous and new amounts.
func (e *Engine) AmendDiscount(ctx context.Context, cmd AmendDiscountCommand) (result *AmendResult, err error) {
	start := time.Now()
	defer func() { e.observe(opAmendDiscount, start, err) }()

	if err := requireEntryID(cmd.EntryID); err != nil {
		return nil, err
	}
	if err := requireActor(cmd.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, ledger.Invalid(ledger.CodeMissingReason, "amendment reason is required")
	}

	now := e.now()
	var res AmendResult
	err = e.store.WithinEntry(ctx, cmd.EntryID, func(ctx context.Context, tx ledger.EntryTx) error {
		entry := tx.Entry()
		paid, err := tx.PaidTotal(ctx)
		if err != nil {
			return err
		}
		previousDiscount, previousFinal := entry.DiscountAmount, entry.FinalAmount
		if err := entry.ChangeDiscount(cmd.NewDiscount, paid, now); err != nil {
			return err
		}
		amendment := &ledger.DiscountAmendment{
			ID:               e.newID(),
			EntryID:          entry.ID,
			PreviousDiscount: previousDiscount,
			NewDiscount:      entry.DiscountAmount,
			PreviousFinal:    previousFinal,
			NewFinal:         entry.FinalAmount,
			Actor:            cmd.Actor.ID,
			Reason:           cmd.Reason,
			CreatedAt:        now,
		}
		if err := tx.SaveEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.InsertDiscountAmendment(ctx, amendment); err != nil {
			return err
		}
		res = AmendResult{Entry: newEntryView(entry, paid, now), Amendment: *amendment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := res.Entry
	e.record(ctx, cmd.Actor, auditRecord{
		action:       audit.ActionDiscountAmend,
		resourceType: resourceDiscount,
		resourceID:   res.Amendment.ID,
		studentID:    view.Entry.StudentID,
		reason:       cmd.Reason,
		metadata: map[string]string{
			"entry_id":          view.Entry.ID,
			"previous_discount": ledger.FormatMoney(res.Amendment.PreviousDiscount),
			"new_discount":      ledger.FormatMoney(res.Amendment.NewDiscount),
			"new_final":         ledger.FormatMoney(res.Amendment.NewFinal),
		},
	})
	e.publish(ctx, events.DiscountAmended{
		EntryID:          view.Entry.ID,
		StudentID:        view.Entry.StudentID,
		AmendmentID:      res.Amendment.ID,
		PreviousDiscount: res.Amendment.PreviousDiscount,
		NewDiscount:      res.Amendment.NewDiscount,
		NewFinal:         res.Amendment.NewFinal,
		Balance:          view.Balance,
		Status:           string(view.Status),
		Reason:           cmd.Reason,
		Actor:            cmd.Actor.ID,
		OccurredAt:       now,
	})
	return &res, nil
}

// WaiveEntry marks an open entry as waived. Waived is terminal.
func (e *Engine) WaiveEntry(ctx context.Context, cmd WaiveEntryCommand) (view *EntryView, err error) {
	start := time.Now()
	defer func() { e.observe(opWaiveEntry, start, err) }()

	if err := requireEntryID(cmd.EntryID); err != nil {
		return nil, err
	}
	if err := requireActor(cmd.Actor); err != nil {
		return nil, err
	}

	now := e.now()
	var waived EntryView
	err = e.store.WithinEntry(ctx, cmd.EntryID, func(ctx context.Context, tx ledger.EntryTx) error {
		entry := tx.Entry()
		if err := entry.Waive(cmd.Reason, now); err != nil {
			return err
		}
		paid, err := tx.PaidTotal(ctx)
		if err != nil {
			return err
		}
		if err := tx.SaveEntry(ctx, entry); err != nil {
			return err
		}
		waived = newEntryView(entry, paid, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, cmd.Actor, auditRecord{
		action:       audit.ActionEntryWaive,
		resourceType: resourceEntry,
		resourceID:   waived.Entry.ID,
		studentID:    waived.Entry.StudentID,
		reason:       cmd.Reason,
		metadata: map[string]string{
			"waived_balance": ledger.FormatMoney(waived.Balance),
		},
	})
	e.publish(ctx, events.EntryWaived{
		EntryID:    waived.Entry.ID,
		StudentID:  waived.Entry.StudentID,
		Reason:     cmd.Reason,
		Actor:      cmd.Actor.ID,
		OccurredAt: now,
	})
	return &waived, nil
}

// DeleteEntry removes an entry that has neither payments nor amendments.
func (e *Engine) DeleteEntry(ctx context.Context, cmd DeleteEntryCommand) (err error) {
	start := time.Now()
	defer func() { e.observe(opDeleteEntry, start, err) }()

	if err := requireEntryID(cmd.EntryID); err != nil {
		return err
	}
	if err := requireActor(cmd.Actor); err != nil {
		return err
	}

	var deleted ledger.Entry
	err = e.store.WithinEntry(ctx, cmd.EntryID, func(ctx context.Context, tx ledger.EntryTx) error {
		dependents, err := tx.HasDependents(ctx)
		if err != nil {
			return err
		}
		if dependents {
			return ledger.Invalid(ledger.CodeEntryHasDependents,
				"ledger entry %s has payments or discount amendments and cannot be deleted", cmd.EntryID)
		}
		deleted = *tx.Entry()
		return tx.DeleteEntry(ctx)
	})
	if err != nil {
		return err
	}

	now := e.now()
	e.record(ctx, cmd.Actor, auditRecord{
		action:       audit.ActionEntryDelete,
		resourceType: resourceEntry,
		resourceID:   deleted.ID,
		studentID:    deleted.StudentID,
		metadata: map[string]string{
			"catalog_entry_id": deleted.CatalogEntryID,
			"academic_year_id": deleted.AcademicYearID,
			"final":            ledger.FormatMoney(deleted.FinalAmount),
		},
	})
	e.publish(ctx, events.EntryDeleted{
		EntryID:    deleted.ID,
		StudentID:  deleted.StudentID,
		Actor:      cmd.Actor.ID,
		OccurredAt: now,
	})
	return nil
}

// RefreshStatus re-derives and stores the status of one entry. It reports
// whether the stored status changed.
func (e *Engine) RefreshStatus(ctx context.Context, entryID string) (view *EntryView, changed bool, err error) {
	start := time.Now()
	defer func() { e.observe(opRefreshStatus, start, err) }()

	if err := requireEntryID(entryID); err != nil {
		return nil, false, err
	}

	now := e.now()
	var (
		refreshed EntryView
		previous  ledger.Status
	)
	err = e.store.WithinEntry(ctx, entryID, func(ctx context.Context, tx ledger.EntryTx) error {
		entry := tx.Entry()
		paid, err := tx.PaidTotal(ctx)
		if err != nil {
			return err
		}
		previous = entry.Status
		if entry.Refresh(paid, now) {
			if err := tx.SaveEntry(ctx, entry); err != nil {
				return err
			}
			changed = true
		}
		refreshed = newEntryView(entry, paid, now)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		e.publish(ctx, events.EntryStatusChanged{
			EntryID:    refreshed.Entry.ID,
			StudentID:  refreshed.Entry.StudentID,
			From:       string(previous),
			To:         string(refreshed.Entry.Status),
			OccurredAt: now,
		})
	}
	return &refreshed, changed, nil
}
