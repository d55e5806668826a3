package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories react to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgDataExceptionClass  = "22"
)

func pgCode(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	pgErr, ok := pgCode(err)
	return ok && pgErr.Code == pgUniqueViolation
}

// UniqueConstraint returns the violated constraint name, if any.
func UniqueConstraint(err error) string {
	if pgErr, ok := pgCode(err); ok && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

// IsForeignKeyViolation reports whether err references a row that does not exist.
func IsForeignKeyViolation(err error) bool {
	pgErr, ok := pgCode(err)
	return ok && pgErr.Code == pgForeignKeyViolation
}

// IsRejectedInput reports whether PostgreSQL refused the written values themselves:
// a missing referenced row, a failed CHECK or NOT NULL, or a data exception such as
// a numeric overflow. Retrying the same request cannot succeed.
func IsRejectedInput(err error) bool {
	pgErr, ok := pgCode(err)
	if !ok {
		return false
	}
	switch pgErr.Code {
	case pgForeignKeyViolation, pgCheckViolation, pgNotNullViolation:
		return true
	}
	return strings.HasPrefix(pgErr.Code, pgDataExceptionClass)
}

// RejectedInput wraps a rejected write as ErrValidation, naming what was refused.
func RejectedInput(op string, err error) error {
	pgErr, ok := pgCode(err)
	if !ok {
		return fmt.Errorf("%w: %s: %v", ErrValidation, op, err)
	}
	switch {
	case pgErr.Code == pgForeignKeyViolation:
		return fmt.Errorf("%w: %s: unknown reference (%s)", ErrValidation, op, pgErr.ConstraintName)
	case pgErr.Code == pgCheckViolation:
		return fmt.Errorf("%w: %s: value rejected (%s)", ErrValidation, op, pgErr.ConstraintName)
	case pgErr.Code == pgNotNullViolation:
		return fmt.Errorf("%w: %s: %s is required", ErrValidation, op, pgErr.ColumnName)
	default:
		return fmt.Errorf("%w: %s: %s", ErrValidation, op, pgErr.Message)
	}
}
