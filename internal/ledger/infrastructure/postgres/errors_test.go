package postgres

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	ledger "fee-ledger/internal/ledger/domain"
)

func TestMapErrorKnownConstraints(t *testing.T) {
	cases := []struct {
		constraint string
		code       string
	}{
		{constraint: constraintAssignment, code: ledger.CodeDuplicateAssignment},
		{constraint: constraintExternalRef, code: ledger.CodeDuplicateExternalRef},
	}
	for _, tc := range cases {
		err := mapError(nil, "insert", &pgconn.PgError{Code: "23505", ConstraintName: tc.constraint})
		if !ledger.IsConflict(err) || ledger.CodeOf(err) != tc.code {
			t.Fatalf("%s: expected %s, got %v", tc.constraint, tc.code, err)
		}
	}
}

func TestMapErrorHidesUnknownConstraint(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ledger_payments_pkey", Detail: "Key (id)=(pay-1) already exists."}

	err := mapError(logger, "insert payment", fmt.Errorf("exec: %w", pgErr))
	if !ledger.IsConflict(err) || ledger.CodeOf(err) != ledger.CodeConcurrentModification {
		t.Fatalf("expected concurrent_modification conflict, got %v", err)
	}
	if strings.Contains(err.Error(), "ledger_payments_pkey") || strings.Contains(err.Error(), "pay-1") {
		t.Fatalf("storage detail leaked to caller: %v", err)
	}
	if !strings.Contains(buf.String(), "constraint=ledger_payments_pkey") {
		t.Fatalf("constraint not logged: %q", buf.String())
	}
}

func TestMapErrorLockAndCancellation(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03", "57014"} {
		err := mapError(nil, "lock entry", &pgconn.PgError{Code: code})
		if ledger.CodeOf(err) != ledger.CodeConcurrentModification {
			t.Fatalf("%s: got %v", code, err)
		}
	}
	if err := mapError(nil, "lock entry", context.Canceled); ledger.CodeOf(err) != ledger.CodeConcurrentModification {
		t.Fatalf("canceled: got %v", err)
	}
	if err := mapError(nil, "get entry", nil); err != nil {
		t.Fatalf("nil error mapped to %v", err)
	}
}
