package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies persistence failures so callers never inspect driver codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindDuplicateKey
	KindForeignKey
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindForeignKey:
		return "foreign_key"
	default:
		return "unknown"
	}
}

// PostgreSQL error codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Error is returned by every repository method that fails.
type Error struct {
	Kind Kind
	// Constraint is the violated constraint name, when the driver reports one.
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNotFound is the cause attached to NotFound errors raised by repositories.
var ErrNotFound = errors.New("record not found")

func notFound() error {
	return &Error{Kind: KindNotFound, Err: ErrNotFound}
}

// KindOf returns the Kind of err, KindUnknown if err is not a repository error.
func KindOf(err error) Kind {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	return KindUnknown
}

// translate maps a driver error onto a repository Error.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: KindNotFound, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &Error{Kind: KindDuplicateKey, Constraint: pgErr.ConstraintName, Err: err}
		case pgForeignKeyViolation:
			return &Error{Kind: KindForeignKey, Constraint: pgErr.ConstraintName, Err: err}
		}
	}

	return &Error{Kind: KindUnknown, Err: err}
}
