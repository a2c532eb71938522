package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	ledger "fee-ledger/internal/ledger/domain"

	"github.com/shopspring/decimal"
)

// Store is the Postgres ledger store. Atomic units lock the entry row with
// SELECT ... FOR UPDATE for the duration of one transaction.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	logger      *log.Logger
}

// Option configures the store.
type Option func(*Store)

// WithLockTimeout bounds how long a unit waits for the entry row lock.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.lockTimeout = timeout
		}
	}
}

// WithLogger sets the logger for storage failures that are not reported to callers.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs a ledger store.
func NewStore(db *sql.DB, opts ...Option) *Store {
	store := &Store{db: db, logger: log.Default()}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

const entryColumns = `
	id, student_id, catalog_entry_id, academic_year_id,
	principal_amount, discount_amount, final_amount, discount_rule_id,
	due_date, status, version, waive_reason, created_by,
	created_at, updated_at, waived_at`

const paymentColumns = `
	id, entry_id, amount, method, external_ref, payment_date,
	recorded_by, remarks, created_at`

// CreateEntry inserts a new entry. The assignment unique key decides races.
func (s *Store) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	if s == nil || s.db == nil {
		return errors.New("ledger store: nil db")
	}
	if entry == nil {
		return ledger.ErrNilEntry
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ledger_entries (`+entryColumns+`
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		entry.ID,
		entry.StudentID,
		entry.CatalogEntryID,
		entry.AcademicYearID,
		entry.PrincipalAmount,
		entry.DiscountAmount,
		entry.FinalAmount,
		nullString(entry.DiscountRuleID),
		entry.DueDate.UTC(),
		string(entry.Status),
		entry.Version,
		entry.WaiveReason,
		entry.CreatedBy,
		entry.CreatedAt.UTC(),
		entry.UpdatedAt.UTC(),
		nullTime(entry.WaivedAt),
	)
	return s.mapError("create entry", err)
}

// GetEntry loads an entry, returning nil when absent.
func (s *Store) GetEntry(ctx context.Context, id string) (*ledger.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger store: nil db")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	return entry, s.mapError("get entry", err)
}

// ListEntries lists entries matching filter ordered by due date.
func (s *Store) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger store: nil db")
	}
	var where []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.StudentID != "" {
		add("student_id = $%d", filter.StudentID)
	}
	if filter.AcademicYearID != "" {
		add("academic_year_id = $%d", filter.AcademicYearID)
	}
	if !filter.DueBefore.IsZero() {
		add("due_date < $%d", filter.DueBefore.UTC())
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		add("status = ANY($%d)", statuses)
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY due_date ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapError("list entries", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, s.mapError("list entries", err)
		}
		out = append(out, *entry)
	}
	return out, s.mapError("list entries", rows.Err())
}

// ListPayments lists the entry's payments in recording order.
func (s *Store) ListPayments(ctx context.Context, entryID string) ([]ledger.Payment, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+paymentColumns+`
FROM ledger_payments
WHERE entry_id = $1
ORDER BY seq ASC`, entryID)
	if err != nil {
		return nil, s.mapError("list payments", err)
	}
	defer rows.Close()

	var out []ledger.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, s.mapError("list payments", err)
		}
		out = append(out, *payment)
	}
	return out, s.mapError("list payments", rows.Err())
}

// PaidTotals sums payments per entry. Entries without payments map to zero.
func (s *Store) PaidTotals(ctx context.Context, entryIDs []string) (map[string]decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger store: nil db")
	}
	totals := make(map[string]decimal.Decimal, len(entryIDs))
	for _, id := range entryIDs {
		totals[id] = decimal.Zero
	}
	if len(entryIDs) == 0 {
		return totals, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT entry_id, SUM(amount)
FROM ledger_payments
WHERE entry_id = ANY($1)
GROUP BY entry_id`, entryIDs)
	if err != nil {
		return nil, s.mapError("paid totals", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var total decimal.Decimal
		if err := rows.Scan(&id, &total); err != nil {
			return nil, s.mapError("paid totals", err)
		}
		totals[id] = total
	}
	return totals, s.mapError("paid totals", rows.Err())
}

// ListDiscountAmendments lists the entry's amendments oldest first.
func (s *Store) ListDiscountAmendments(ctx context.Context, entryID string) ([]ledger.DiscountAmendment, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, entry_id, previous_discount, new_discount, previous_final, new_final, actor, reason, created_at
FROM ledger_discount_amendments
WHERE entry_id = $1
ORDER BY created_at ASC, id ASC`, entryID)
	if err != nil {
		return nil, s.mapError("list amendments", err)
	}
	defer rows.Close()

	var out []ledger.DiscountAmendment
	for rows.Next() {
		var amendment ledger.DiscountAmendment
		if err := rows.Scan(
			&amendment.ID,
			&amendment.EntryID,
			&amendment.PreviousDiscount,
			&amendment.NewDiscount,
			&amendment.PreviousFinal,
			&amendment.NewFinal,
			&amendment.Actor,
			&amendment.Reason,
			&amendment.CreatedAt,
		); err != nil {
			return nil, s.mapError("list amendments", err)
		}
		amendment.CreatedAt = amendment.CreatedAt.UTC()
		out = append(out, amendment)
	}
	return out, s.mapError("list amendments", rows.Err())
}

// WithinEntry runs fn in one transaction holding the entry row lock.
func (s *Store) WithinEntry(ctx context.Context, entryID string, fn func(ctx context.Context, tx ledger.EntryTx) error) error {
	if s == nil || s.db == nil {
		return errors.New("ledger store: nil db")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.mapError("begin", err)
	}
	if s.lockTimeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			_ = tx.Rollback()
			return s.mapError("set lock timeout", err)
		}
	}

	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		_ = tx.Rollback()
		return s.mapError("lock entry", err)
	}
	if entry == nil {
		_ = tx.Rollback()
		return ledger.NotFound(ledger.CodeEntryNotFound, "ledger entry %s not found", entryID)
	}

	unit := &entryTx{tx: tx, entry: entry, baseVersion: entry.Version, logger: s.logger}
	if err := fn(ctx, unit); err != nil {
		_ = tx.Rollback()
		return s.mapError("atomic unit", err)
	}
	if err := tx.Commit(); err != nil {
		return s.mapError("commit", err)
	}
	return nil
}

type entryTx struct {
	tx          *sql.Tx
	entry       *ledger.Entry
	baseVersion int64
	logger      *log.Logger
}

func (t *entryTx) Entry() *ledger.Entry { return t.entry }

func (t *entryTx) PaidTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_payments WHERE entry_id = $1`, t.entry.ID).Scan(&total)
	return total, t.mapError("sum payments", err)
}

func (t *entryTx) FindPaymentByExternalRef(ctx context.Context, ref string) (*ledger.Payment, error) {
	if ref == "" {
		return nil, nil
	}
	row := t.tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM ledger_payments WHERE external_ref = $1`, ref)
	payment, err := scanPayment(row)
	return payment, t.mapError("find payment", err)
}

func (t *entryTx) InsertPayment(ctx context.Context, payment *ledger.Payment) error {
	if payment == nil {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO ledger_payments (`+paymentColumns+`
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		payment.ID,
		payment.EntryID,
		payment.Amount,
		string(payment.Method),
		nullString(payment.ExternalRef),
		payment.PaymentDate.UTC(),
		payment.RecordedBy,
		payment.Remarks,
		payment.CreatedAt.UTC(),
	)
	return t.mapError("insert payment", err)
}

func (t *entryTx) SaveEntry(ctx context.Context, entry *ledger.Entry) error {
	if entry == nil {
		return ledger.ErrNilEntry
	}
	res, err := t.tx.ExecContext(ctx, `
UPDATE ledger_entries
SET discount_amount = $3,
	final_amount = $4,
	discount_rule_id = $5,
	status = $6,
	version = $7,
	waive_reason = $8,
	updated_at = $9,
	waived_at = $10
WHERE id = $1 AND version = $2`,
		entry.ID,
		t.baseVersion,
		entry.DiscountAmount,
		entry.FinalAmount,
		nullString(entry.DiscountRuleID),
		string(entry.Status),
		entry.Version,
		entry.WaiveReason,
		entry.UpdatedAt.UTC(),
		nullTime(entry.WaivedAt),
	)
	if err != nil {
		return t.mapError("save entry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return t.mapError("save entry", err)
	}
	if affected == 0 {
		return ledger.Conflict(ledger.CodeConcurrentModification, "ledger entry %s was modified concurrently", entry.ID)
	}
	t.baseVersion = entry.Version
	return nil
}

func (t *entryTx) InsertDiscountAmendment(ctx context.Context, amendment *ledger.DiscountAmendment) error {
	if amendment == nil {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO ledger_discount_amendments (
	id, entry_id, previous_discount, new_discount, previous_final, new_final, actor, reason, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		amendment.ID,
		amendment.EntryID,
		amendment.PreviousDiscount,
		amendment.NewDiscount,
		amendment.PreviousFinal,
		amendment.NewFinal,
		amendment.Actor,
		amendment.Reason,
		amendment.CreatedAt.UTC(),
	)
	return t.mapError("insert amendment", err)
}

func (t *entryTx) HasDependents(ctx context.Context) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM ledger_payments WHERE entry_id = $1)
	OR EXISTS (SELECT 1 FROM ledger_discount_amendments WHERE entry_id = $1)`, t.entry.ID).Scan(&exists)
	return exists, t.mapError("check dependents", err)
}

func (t *entryTx) DeleteEntry(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = $1`, t.entry.ID)
	return t.mapError("delete entry", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var entry ledger.Entry
	var status string
	var ruleID sql.NullString
	var waivedAt sql.NullTime
	if err := row.Scan(
		&entry.ID,
		&entry.StudentID,
		&entry.CatalogEntryID,
		&entry.AcademicYearID,
		&entry.PrincipalAmount,
		&entry.DiscountAmount,
		&entry.FinalAmount,
		&ruleID,
		&entry.DueDate,
		&status,
		&entry.Version,
		&entry.WaiveReason,
		&entry.CreatedBy,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&waivedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	entry.Status = ledger.Status(status)
	entry.DiscountRuleID = ruleID.String
	entry.DueDate = ledger.DateOf(entry.DueDate)
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	if waivedAt.Valid {
		entry.WaivedAt = waivedAt.Time.UTC()
	}
	return &entry, nil
}

func scanPayment(row rowScanner) (*ledger.Payment, error) {
	var payment ledger.Payment
	var method string
	var ref sql.NullString
	if err := row.Scan(
		&payment.ID,
		&payment.EntryID,
		&payment.Amount,
		&method,
		&ref,
		&payment.PaymentDate,
		&payment.RecordedBy,
		&payment.Remarks,
		&payment.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	payment.Method = ledger.PaymentMethod(method)
	payment.ExternalRef = ref.String
	payment.PaymentDate = payment.PaymentDate.UTC()
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
