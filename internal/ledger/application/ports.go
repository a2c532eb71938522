package application

import (
	"context"
	"time"

	catalog "fee-ledger/internal/catalog/domain"
)

// StudentDirectory answers questions about the student register.
type StudentDirectory interface {
	StudentExists(ctx context.Context, studentID string) (bool, error)
	IsActive(ctx context.Context, studentID string) (bool, error)
}

// CatalogReader reads fee definitions and discount rules. Both methods
// return nil, nil for unknown ids.
type CatalogReader interface {
	GetFeeEntry(ctx context.Context, id string) (*catalog.FeeEntry, error)
	GetDiscountRule(ctx context.Context, id string) (*catalog.DiscountRule, error)
}

// EventPublisher emits ledger events after a change commits.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Actor identifies who performs an operation. Only ID is required; the rest
// is carried into the audit trail.
type Actor struct {
	ID        string
	Role      string
	IP        string
	UserAgent string
}
