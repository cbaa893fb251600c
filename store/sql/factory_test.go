package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestIsNoRowsMatchesWrappedErrors(t *testing.T) {
	if !isNoRows(sql.ErrNoRows) {
		t.Fatal("expected bare ErrNoRows to match")
	}
	if !isNoRows(fmt.Errorf("scan account: %w", sql.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
	if isNoRows(errors.New("sql: no rows in result set")) {
		t.Fatal("expected message lookalike without the sentinel to not match")
	}
	if isNoRows(nil) {
		t.Fatal("expected nil to not match")
	}
}

func TestIsUniqueViolationMatchesBothDialects(t *testing.T) {
	sqliteErr := errors.New("constraint failed: UNIQUE constraint failed: leads.fingerprint")
	postgresErr := errors.New(`ERROR: duplicate key value violates unique constraint "leads_fingerprint_key"`)
	if !isUniqueViolation(sqliteErr) {
		t.Fatal("expected sqlite unique violation to match")
	}
	if !isUniqueViolation(postgresErr) {
		t.Fatal("expected postgres unique violation to match")
	}
	if isUniqueViolation(errors.New("connection reset by peer")) {
		t.Fatal("expected unrelated error to not match")
	}
}
