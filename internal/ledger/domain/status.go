package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a ledger entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusWaived  Status = "waived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusOverdue, StatusWaived:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the entry accepts no further payments.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusWaived
}

// ParseStatus parses a status name.
func ParseStatus(value string) (Status, error) {
	status := Status(value)
	if !status.Valid() {
		return "", Invalid(CodeInvalidStatus, "unknown status %q, expected one of pending, partial, paid, overdue, waived", value)
	}
	return status, nil
}

// DeriveStatus computes the status of a non-waived entry from its final
// amount, the sum of its payments, its due date and the current time.
// Any payment short of the final amount yields partial, even past due.
func DeriveStatus(finalAmount, paid decimal.Decimal, dueDate, now time.Time) Status {
	switch {
	case paid.GreaterThanOrEqual(finalAmount):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	case !dueDate.IsZero() && DateOf(dueDate).Before(DateOf(now)):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
