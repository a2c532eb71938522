package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	catalog "fee-ledger/internal/catalog/domain"
)

// Repository is an in-memory catalog repository.
type Repository struct {
	mu        sync.RWMutex
	fees      map[string]catalog.FeeEntry
	discounts map[string]catalog.DiscountRule
}

// NewRepository constructs an in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		fees:      make(map[string]catalog.FeeEntry),
		discounts: make(map[string]catalog.DiscountRule),
	}
}

// SaveFeeEntry upserts a fee entry.
func (r *Repository) SaveFeeEntry(_ context.Context, entry *catalog.FeeEntry) error {
	if r == nil {
		return errors.New("catalog repo: nil repository")
	}
	if entry == nil {
		return errors.New("catalog repo: nil fee entry")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees[entry.ID] = *entry
	return nil
}

// GetFeeEntry returns a fee entry or nil.
func (r *Repository) GetFeeEntry(_ context.Context, id string) (*catalog.FeeEntry, error) {
	if r == nil {
		return nil, errors.New("catalog repo: nil repository")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.fees[id]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// ListFeeEntries lists fee entries ordered by name.
func (r *Repository) ListFeeEntries(_ context.Context, activeOnly bool) ([]catalog.FeeEntry, error) {
	if r == nil {
		return nil, errors.New("catalog repo: nil repository")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalog.FeeEntry, 0, len(r.fees))
	for _, entry := range r.fees {
		if activeOnly && !entry.Active {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetFeeEntryActive toggles the active flag.
func (r *Repository) SetFeeEntryActive(_ context.Context, id string, active bool) error {
	if r == nil {
		return errors.New("catalog repo: nil repository")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.fees[id]
	if !ok {
		return catalog.ErrNotFound
	}
	entry.Active = active
	r.fees[id] = entry
	return nil
}

// SaveDiscountRule upserts a discount rule.
func (r *Repository) SaveDiscountRule(_ context.Context, rule *catalog.DiscountRule) error {
	if r == nil {
		return errors.New("catalog repo: nil repository")
	}
	if rule == nil {
		return errors.New("catalog repo: nil discount rule")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discounts[rule.ID] = *rule
	return nil
}

// GetDiscountRule returns a discount rule or nil.
func (r *Repository) GetDiscountRule(_ context.Context, id string) (*catalog.DiscountRule, error) {
	if r == nil {
		return nil, errors.New("catalog repo: nil repository")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.discounts[id]
	if !ok {
		return nil, nil
	}
	return &rule, nil
}

// ListDiscountRules lists discount rules ordered by name.
func (r *Repository) ListDiscountRules(_ context.Context, activeOnly bool) ([]catalog.DiscountRule, error) {
	if r == nil {
		return nil, errors.New("catalog repo: nil repository")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalog.DiscountRule, 0, len(r.discounts))
	for _, rule := range r.discounts {
		if activeOnly && !rule.Active {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
