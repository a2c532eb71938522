package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDiscountRuleApply(t *testing.T) {
	cases := []struct {
		name      string
		kind      string
		value     string
		principal string
		want      string
	}{
		{name: "ten percent", kind: DiscountPercentage, value: "10", principal: "1000", want: "100"},
		{name: "rounds to cents", kind: DiscountPercentage, value: "12.5", principal: "333.33", want: "41.67"},
		{name: "full waiver", kind: DiscountPercentage, value: "100", principal: "450", want: "450"},
		{name: "fixed", kind: DiscountFixed, value: "75.50", principal: "1000", want: "75.50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := DiscountRule{ID: "rule-1", Name: tc.name, Kind: tc.kind, Value: decimal.RequireFromString(tc.value)}
			got, err := rule.Apply(decimal.RequireFromString(tc.principal))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDiscountRuleValidate(t *testing.T) {
	rule := DiscountRule{ID: "rule-1", Name: "sibling", Kind: DiscountPercentage, Value: decimal.NewFromInt(120)}
	if err := rule.Validate(); !errors.Is(err, ErrInvalidPercentage) {
		t.Fatalf("expected percentage error, got %v", err)
	}
	rule.Kind = "bogus"
	if err := rule.Validate(); !errors.Is(err, ErrInvalidDiscountKind) {
		t.Fatalf("expected kind error, got %v", err)
	}
}

func TestDuePolicy(t *testing.T) {
	assigned := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	due, ok := DuePolicy{Kind: DueDaysAfterAssignment, Days: 14}.DueDate(assigned)
	if !ok || !due.Equal(assigned.AddDate(0, 0, 14)) {
		t.Fatalf("unexpected due date %s ok=%v", due, ok)
	}
	fixed := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	due, ok = DuePolicy{Kind: DueFixedDate, FixedDate: fixed}.DueDate(assigned)
	if !ok || !due.Equal(fixed) {
		t.Fatalf("unexpected fixed due date %s ok=%v", due, ok)
	}
	if _, ok := (DuePolicy{}).DueDate(assigned); ok {
		t.Fatalf("expected empty policy to yield no date")
	}
	if err := (DuePolicy{Kind: DueFixedDate}).Validate(); !errors.Is(err, ErrInvalidDuePolicy) {
		t.Fatalf("expected invalid due policy, got %v", err)
	}
}
