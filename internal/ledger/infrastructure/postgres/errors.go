package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	ledger "fee-ledger/internal/ledger/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	constraintAssignment  = "ledger_entries_assignment_key"
	constraintExternalRef = "ledger_payments_external_ref_key"
)

func (s *Store) mapError(op string, err error) error { return mapError(s.logger, op, err) }

func (t *entryTx) mapError(op string, err error) error { return mapError(t.logger, op, err) }

// mapError turns driver errors into ledger violations and wraps the rest.
// Constraint names stay in the log.
func mapError(logger *log.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	var violation *ledger.ViolationError
	if errors.As(err, &violation) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ledger.Conflict(ledger.CodeConcurrentModification, "%s abandoned: %v", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			switch pgErr.ConstraintName {
			case constraintAssignment:
				return ledger.Conflict(ledger.CodeDuplicateAssignment, "fee is already assigned to this student for the academic year")
			case constraintExternalRef:
				return ledger.Conflict(ledger.CodeDuplicateExternalRef, "external reference is already used by another payment")
			}
			if logger != nil {
				logger.Printf("ledger store: %s: unique violation constraint=%s detail=%s", op, pgErr.ConstraintName, pgErr.Detail)
			}
			return ledger.Conflict(ledger.CodeConcurrentModification, "%s conflicts with an existing record", op)
		case "40001", "40P01", "55P03", "57014":
			return ledger.Conflict(ledger.CodeConcurrentModification, "%s: entry is locked by a concurrent operation, retry", op)
		}
	}
	return fmt.Errorf("ledger store: %s: %w", op, err)
}
