package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Due-date policy kinds.
const (
	DueFixedDate           = "fixed_date"
	DueDaysAfterAssignment = "days_after_assignment"
)

// DuePolicy decides the due date of a newly assigned fee.
type DuePolicy struct {
	Kind      string    `json:"kind"`
	FixedDate time.Time `json:"fixed_date,omitempty"`
	Days      int       `json:"days,omitempty"`
}

// Validate checks the policy is complete. A zero policy is allowed and means
// callers must supply a due date explicitly.
func (p DuePolicy) Validate() error {
	switch p.Kind {
	case "":
		return nil
	case DueFixedDate:
		if p.FixedDate.IsZero() {
			return ErrInvalidDuePolicy
		}
	case DueDaysAfterAssignment:
		if p.Days < 0 {
			return ErrInvalidDuePolicy
		}
	default:
		return ErrInvalidDuePolicy
	}
	return nil
}

// DueDate resolves the due date for an assignment made at assignedAt.
// It reports false when the policy does not determine a date.
func (p DuePolicy) DueDate(assignedAt time.Time) (time.Time, bool) {
	switch p.Kind {
	case DueFixedDate:
		if p.FixedDate.IsZero() {
			return time.Time{}, false
		}
		return p.FixedDate.UTC(), true
	case DueDaysAfterAssignment:
		return assignedAt.UTC().AddDate(0, 0, p.Days), true
	default:
		return time.Time{}, false
	}
}

// Scope restricts which students a fee applies to.
type Scope struct {
	GradeLevel     string `json:"grade_level,omitempty"`
	AcademicYearID string `json:"academic_year_id,omitempty"`
}

// FeeEntry is a catalog fee definition.
type FeeEntry struct {
	ID          string
	Name        string
	Description string
	Amount      decimal.Decimal
	Mandatory   bool
	Active      bool
	Scope       Scope
	DuePolicy   DuePolicy
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the fee definition.
func (f *FeeEntry) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if !f.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return f.DuePolicy.Validate()
}
