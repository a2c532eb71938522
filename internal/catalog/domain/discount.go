package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Discount rule kinds.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

var hundred = decimal.NewFromInt(100)

// DiscountRule is a reusable discount definition. The amount it yields is
// copied onto the ledger entry when the fee is assigned.
type DiscountRule struct {
	ID          string
	Name        string
	Kind        string
	Value       decimal.Decimal
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the rule definition.
func (r *DiscountRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	switch r.Kind {
	case DiscountPercentage:
		if r.Value.IsNegative() || r.Value.GreaterThan(hundred) {
			return ErrInvalidPercentage
		}
	case DiscountFixed:
		if r.Value.IsNegative() {
			return ErrInvalidAmount
		}
	default:
		return ErrInvalidDiscountKind
	}
	return nil
}

// Apply returns the discount amount for principal, rounded half-even to cents.
func (r *DiscountRule) Apply(principal decimal.Decimal) (decimal.Decimal, error) {
	if err := r.Validate(); err != nil {
		return decimal.Zero, err
	}
	if r.Kind == DiscountFixed {
		return r.Value, nil
	}
	return principal.Mul(r.Value).Div(hundred).RoundBank(2), nil
}
