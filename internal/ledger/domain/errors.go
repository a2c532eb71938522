package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound classifies failures caused by a missing entry, student or catalog item.
	ErrNotFound = errors.New("ledger: not found")
	// ErrInvalidArgument classifies rejected input or a violated ledger invariant.
	ErrInvalidArgument = errors.New("ledger: invalid argument")
	// ErrConflict classifies uniqueness violations and lost concurrent races. Callers may retry.
	ErrConflict = errors.New("ledger: conflict")
	// ErrNilEntry is returned when persisting a nil entry.
	ErrNilEntry = errors.New("ledger: nil entry")
)

// Violation codes carried by ViolationError.
const (
	CodeEntryNotFound          = "entry_not_found"
	CodePaymentNotFound        = "payment_not_found"
	CodeStudentNotFound        = "student_not_found"
	CodeCatalogEntryNotFound   = "catalog_entry_not_found"
	CodeDiscountRuleNotFound   = "discount_rule_not_found"
	CodeStudentInactive        = "student_inactive"
	CodeCatalogEntryInactive   = "catalog_entry_inactive"
	CodeScopeMismatch          = "catalog_scope_mismatch"
	CodeInvalidPrincipal       = "invalid_principal"
	CodeInvalidDiscount        = "invalid_discount"
	CodeDiscountExceeds        = "discount_exceeds_principal"
	CodeDiscountBelowPaid      = "discount_below_paid"
	CodeInvalidAmount          = "invalid_amount"
	CodeAmountPrecision        = "amount_precision"
	CodeInvalidMethod          = "invalid_method"
	CodeMissingActor           = "missing_actor"
	CodeMissingReason          = "missing_reason"
	CodeMissingField           = "missing_field"
	CodeMissingDueDate         = "missing_due_date"
	CodeInvalidStatus          = "invalid_status"
	CodeOverpayment            = "overpayment"
	CodeEntrySettled           = "entry_settled"
	CodeEntryHasDependents     = "entry_has_dependents"
	CodeDuplicateAssignment    = "duplicate_assignment"
	CodeDuplicateExternalRef   = "duplicate_external_ref"
	CodeConcurrentModification = "concurrent_modification"
)

// ViolationError describes a rejected operation. Kind is one of ErrNotFound,
// ErrInvalidArgument or ErrConflict and is reachable through errors.Is.
type ViolationError struct {
	Kind    error
	Code    string
	Message string
}

func (e *ViolationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ViolationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// NotFound builds a not-found violation.
func NotFound(code, format string, args ...any) error {
	return &ViolationError{Kind: ErrNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Invalid builds an invalid-argument violation.
func Invalid(code, format string, args ...any) error {
	return &ViolationError{Kind: ErrInvalidArgument, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict violation.
func Conflict(code, format string, args ...any) error {
	return &ViolationError{Kind: ErrConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the violation code of err, or an empty string.
func CodeOf(err error) string {
	var violation *ViolationError
	if errors.As(err, &violation) {
		return violation.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found violation.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidArgument reports whether err is an invalid-argument violation.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsConflict reports whether err is a conflict violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
