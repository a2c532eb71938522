package catalog

import "context"

// Repository persists fee catalog entries and discount rules.
// Getters return nil, nil when the item does not exist.
type Repository interface {
	SaveFeeEntry(ctx context.Context, entry *FeeEntry) error
	GetFeeEntry(ctx context.Context, id string) (*FeeEntry, error)
	ListFeeEntries(ctx context.Context, activeOnly bool) ([]FeeEntry, error)
	SetFeeEntryActive(ctx context.Context, id string, active bool) error

	SaveDiscountRule(ctx context.Context, rule *DiscountRule) error
	GetDiscountRule(ctx context.Context, id string) (*DiscountRule, error)
	ListDiscountRules(ctx context.Context, activeOnly bool) ([]DiscountRule, error)
}
