package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoRows is returned when a query expected to return a row returns none.
var ErrNoRows = errors.New("no rows in result set")

// PostgreSQL SQLSTATE codes the repositories react to.
const (
	pgUniqueViolation      = "23505"
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
)

// IsNoRows returns true if the error indicates no rows were found.
// This handles both pgx.ErrNoRows and sql.ErrNoRows.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, ErrNoRows)
}

// IsExclusionViolation reports whether a PostgreSQL exclusion constraint
// rejected the write. The appointments table uses one to forbid
// overlapping live bookings for the same owner.
func IsExclusionViolation(err error) bool {
	return pgCode(err) == pgExclusionViolation
}

// IsUniqueViolation reports a duplicate key on either driver.
func IsUniqueViolation(err error) bool {
	if pgCode(err) == pgUniqueViolation {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsSerializationFailure reports a PostgreSQL serialization failure or a
// SQLite lock timeout; both mean a concurrent writer won.
func IsSerializationFailure(err error) bool {
	if pgCode(err) == pgSerializationFailure {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
