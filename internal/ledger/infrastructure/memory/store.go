package memory

import (
	"context"
	"sort"
	"sync"

	ledger "fee-ledger/internal/ledger/domain"

	"github.com/shopspring/decimal"
)

// Store is an in-memory ledger store. Each entry has its own lock so that
// atomic units on different entries proceed in parallel.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]*ledger.Entry
	assignments map[string]string
	payments    map[string][]ledger.Payment
	refs        map[string]ledger.Payment
	amendments  map[string][]ledger.DiscountAmendment

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		entries:     make(map[string]*ledger.Entry),
		assignments: make(map[string]string),
		payments:    make(map[string][]ledger.Payment),
		refs:        make(map[string]ledger.Payment),
		amendments:  make(map[string][]ledger.DiscountAmendment),
		locks:       make(map[string]chan struct{}),
	}
}

func assignmentKey(entry *ledger.Entry) string {
	return entry.StudentID + "|" + entry.CatalogEntryID + "|" + entry.AcademicYearID
}

// CreateEntry inserts entry unless the assignment already exists.
func (s *Store) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	if entry == nil {
		return ledger.ErrNilEntry
	}
	if err := ctx.Err(); err != nil {
		return timeoutConflict(entry.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey(entry)
	if _, ok := s.assignments[key]; ok {
		return duplicateAssignment(entry)
	}
	if _, ok := s.entries[entry.ID]; ok {
		return ledger.Conflict(ledger.CodeConcurrentModification, "ledger entry %s already exists", entry.ID)
	}
	s.entries[entry.ID] = entry.Clone()
	s.assignments[key] = entry.ID
	return nil
}

// GetEntry returns a copy of the entry or nil.
func (s *Store) GetEntry(_ context.Context, id string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id].Clone(), nil
}

// ListEntries returns entries matching filter ordered by due date.
func (s *Store) ListEntries(_ context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Entry
	for _, entry := range s.entries {
		if !matches(entry, filter) {
			continue
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(entry *ledger.Entry, filter ledger.EntryFilter) bool {
	if filter.StudentID != "" && entry.StudentID != filter.StudentID {
		return false
	}
	if filter.AcademicYearID != "" && entry.AcademicYearID != filter.AcademicYearID {
		return false
	}
	if !filter.DueBefore.IsZero() && !entry.DueDate.Before(filter.DueBefore) {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, status := range filter.Statuses {
		if entry.Status == status {
			return true
		}
	}
	return false
}

// ListPayments returns the entry's payments in recording order.
func (s *Store) ListPayments(_ context.Context, entryID string) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledger.Payment(nil), s.payments[entryID]...), nil
}

// PaidTotals sums payments per entry.
func (s *Store) PaidTotals(_ context.Context, entryIDs []string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[string]decimal.Decimal, len(entryIDs))
	for _, id := range entryIDs {
		totals[id] = ledger.SumPayments(s.payments[id])
	}
	return totals, nil
}

// ListDiscountAmendments returns the entry's amendments oldest first.
func (s *Store) ListDiscountAmendments(_ context.Context, entryID string) ([]ledger.DiscountAmendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledger.DiscountAmendment(nil), s.amendments[entryID]...), nil
}

// WithinEntry runs fn holding the entry's lock and applies staged writes
// only when fn succeeds and ctx is still live.
func (s *Store) WithinEntry(ctx context.Context, entryID string, fn func(ctx context.Context, tx ledger.EntryTx) error) error {
	lock := s.lockFor(entryID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return timeoutConflict(entryID, ctx.Err())
	}
	defer func() { <-lock }()

	s.mu.RLock()
	stored, ok := s.entries[entryID]
	var working *ledger.Entry
	if ok {
		working = stored.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return ledger.NotFound(ledger.CodeEntryNotFound, "ledger entry %s not found", entryID)
	}

	tx := &entryTx{store: s, entry: working, baseVersion: working.Version}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return timeoutConflict(entryID, err)
	}
	return s.commit(tx)
}

func (s *Store) lockFor(entryID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[entryID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[entryID] = lock
	}
	return lock
}

func (s *Store) commit(tx *entryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := tx.entry.ID
	stored, ok := s.entries[id]
	if !ok || stored.Version != tx.baseVersion {
		return ledger.Conflict(ledger.CodeConcurrentModification, "ledger entry %s was modified concurrently", id)
	}
	for _, payment := range tx.payments {
		if payment.ExternalRef == "" {
			continue
		}
		if _, taken := s.refs[payment.ExternalRef]; taken {
			return duplicateRef(payment.ExternalRef)
		}
	}

	for _, payment := range tx.payments {
		s.payments[id] = append(s.payments[id], payment)
		if payment.ExternalRef != "" {
			s.refs[payment.ExternalRef] = payment
		}
	}
	s.amendments[id] = append(s.amendments[id], tx.amendments...)
	if tx.saved != nil {
		s.entries[id] = tx.saved.Clone()
	}
	if tx.deleted {
		delete(s.assignments, assignmentKey(stored))
		delete(s.entries, id)
		delete(s.payments, id)
		delete(s.amendments, id)
	}
	return nil
}

type entryTx struct {
	store       *Store
	entry       *ledger.Entry
	baseVersion int64

	payments   []ledger.Payment
	amendments []ledger.DiscountAmendment
	saved      *ledger.Entry
	deleted    bool
}

func (t *entryTx) Entry() *ledger.Entry { return t.entry }

func (t *entryTx) PaidTotal(_ context.Context) (decimal.Decimal, error) {
	t.store.mu.RLock()
	total := ledger.SumPayments(t.store.payments[t.entry.ID])
	t.store.mu.RUnlock()
	return total.Add(ledger.SumPayments(t.payments)), nil
}

func (t *entryTx) FindPaymentByExternalRef(_ context.Context, ref string) (*ledger.Payment, error) {
	if ref == "" {
		return nil, nil
	}
	for _, payment := range t.payments {
		if payment.ExternalRef == ref {
			found := payment
			return &found, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	payment, ok := t.store.refs[ref]
	if !ok {
		return nil, nil
	}
	return &payment, nil
}

func (t *entryTx) InsertPayment(ctx context.Context, payment *ledger.Payment) error {
	if payment == nil {
		return nil
	}
	if existing, _ := t.FindPaymentByExternalRef(ctx, payment.ExternalRef); existing != nil {
		return duplicateRef(payment.ExternalRef)
	}
	t.payments = append(t.payments, *payment)
	return nil
}

func (t *entryTx) SaveEntry(_ context.Context, entry *ledger.Entry) error {
	if entry == nil {
		return ledger.ErrNilEntry
	}
	if entry.ID != t.entry.ID {
		return ledger.Invalid(ledger.CodeMissingField, "entry %s is not locked by this unit", entry.ID)
	}
	t.saved = entry.Clone()
	return nil
}

func (t *entryTx) InsertDiscountAmendment(_ context.Context, amendment *ledger.DiscountAmendment) error {
	if amendment != nil {
		t.amendments = append(t.amendments, *amendment)
	}
	return nil
}

func (t *entryTx) HasDependents(_ context.Context) (bool, error) {
	if len(t.payments) > 0 || len(t.amendments) > 0 {
		return true, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return len(t.store.payments[t.entry.ID]) > 0 || len(t.store.amendments[t.entry.ID]) > 0, nil
}

func (t *entryTx) DeleteEntry(_ context.Context) error {
	t.deleted = true
	return nil
}

func duplicateAssignment(entry *ledger.Entry) error {
	return ledger.Conflict(ledger.CodeDuplicateAssignment,
		"student %s already has catalog entry %s for academic year %s",
		entry.StudentID, entry.CatalogEntryID, entry.AcademicYearID)
}

func duplicateRef(ref string) error {
	return ledger.Conflict(ledger.CodeDuplicateExternalRef, "external reference %q is already used by another payment", ref)
}

func timeoutConflict(entryID string, cause error) error {
	return ledger.Conflict(ledger.CodeConcurrentModification, "ledger entry %s: atomic unit abandoned: %v", entryID, cause)
}
