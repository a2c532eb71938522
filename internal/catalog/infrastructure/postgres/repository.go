package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	catalog "fee-ledger/internal/catalog/domain"
)

// Repository stores the fee catalog in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a catalog repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveFeeEntry upserts a fee entry.
func (r *Repository) SaveFeeEntry(ctx context.Context, entry *catalog.FeeEntry) error {
	if r == nil || r.db == nil {
		return errors.New("catalog repo: nil db")
	}
	if entry == nil {
		return errors.New("catalog repo: nil fee entry")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO fee_catalog_entries (
	id, name, description, amount, mandatory, active,
	grade_level, academic_year_id, due_policy_kind, due_fixed_date, due_days,
	created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	amount = EXCLUDED.amount,
	mandatory = EXCLUDED.mandatory,
	active = EXCLUDED.active,
	grade_level = EXCLUDED.grade_level,
	academic_year_id = EXCLUDED.academic_year_id,
	due_policy_kind = EXCLUDED.due_policy_kind,
	due_fixed_date = EXCLUDED.due_fixed_date,
	due_days = EXCLUDED.due_days,
	updated_at = EXCLUDED.updated_at`,
		entry.ID,
		entry.Name,
		entry.Description,
		entry.Amount,
		entry.Mandatory,
		entry.Active,
		entry.Scope.GradeLevel,
		entry.Scope.AcademicYearID,
		entry.DuePolicy.Kind,
		nullTime(entry.DuePolicy.FixedDate),
		entry.DuePolicy.Days,
		createdAt,
		now,
	)
	return err
}

// GetFeeEntry loads a fee entry, returning nil when absent.
func (r *Repository) GetFeeEntry(ctx context.Context, id string) (*catalog.FeeEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	if id == "" {
		return nil, catalog.ErrEmptyID
	}
	row := r.db.QueryRowContext(ctx, feeSelect+` WHERE id = $1`, id)
	return scanFeeEntry(row)
}

// ListFeeEntries lists fee entries ordered by name.
func (r *Repository) ListFeeEntries(ctx context.Context, activeOnly bool) ([]catalog.FeeEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, feeSelect+` WHERE ($1 = false OR active) ORDER BY name, id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.FeeEntry
	for rows.Next() {
		entry, err := scanFeeEntry(rows)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			out = append(out, *entry)
		}
	}
	return out, rows.Err()
}

// SetFeeEntryActive toggles the active flag.
func (r *Repository) SetFeeEntryActive(ctx context.Context, id string, active bool) error {
	if r == nil || r.db == nil {
		return errors.New("catalog repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `UPDATE fee_catalog_entries SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// SaveDiscountRule upserts a discount rule.
func (r *Repository) SaveDiscountRule(ctx context.Context, rule *catalog.DiscountRule) error {
	if r == nil || r.db == nil {
		return errors.New("catalog repo: nil db")
	}
	if rule == nil {
		return errors.New("catalog repo: nil discount rule")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO discount_rules (id, name, kind, value, description, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	kind = EXCLUDED.kind,
	value = EXCLUDED.value,
	description = EXCLUDED.description,
	active = EXCLUDED.active,
	updated_at = EXCLUDED.updated_at`,
		rule.ID, rule.Name, rule.Kind, rule.Value, rule.Description, rule.Active, createdAt, now)
	return err
}

// GetDiscountRule loads a discount rule, returning nil when absent.
func (r *Repository) GetDiscountRule(ctx context.Context, id string) (*catalog.DiscountRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	if id == "" {
		return nil, catalog.ErrEmptyID
	}
	row := r.db.QueryRowContext(ctx, discountSelect+` WHERE id = $1`, id)
	return scanDiscountRule(row)
}

// ListDiscountRules lists discount rules ordered by name.
func (r *Repository) ListDiscountRules(ctx context.Context, activeOnly bool) ([]catalog.DiscountRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, discountSelect+` WHERE ($1 = false OR active) ORDER BY name, id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.DiscountRule
	for rows.Next() {
		rule, err := scanDiscountRule(rows)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			out = append(out, *rule)
		}
	}
	return out, rows.Err()
}

const feeSelect = `
SELECT id, name, description, amount, mandatory, active,
	grade_level, academic_year_id, due_policy_kind, due_fixed_date, due_days,
	created_at, updated_at
FROM fee_catalog_entries`

const discountSelect = `
SELECT id, name, kind, value, description, active, created_at, updated_at
FROM discount_rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeeEntry(row rowScanner) (*catalog.FeeEntry, error) {
	var entry catalog.FeeEntry
	var fixedDate sql.NullTime
	if err := row.Scan(
		&entry.ID,
		&entry.Name,
		&entry.Description,
		&entry.Amount,
		&entry.Mandatory,
		&entry.Active,
		&entry.Scope.GradeLevel,
		&entry.Scope.AcademicYearID,
		&entry.DuePolicy.Kind,
		&fixedDate,
		&entry.DuePolicy.Days,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if fixedDate.Valid {
		entry.DuePolicy.FixedDate = fixedDate.Time.UTC()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}

func scanDiscountRule(row rowScanner) (*catalog.DiscountRule, error) {
	var rule catalog.DiscountRule
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Kind,
		&rule.Value,
		&rule.Description,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return &rule, nil
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
