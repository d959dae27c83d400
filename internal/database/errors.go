package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a query matches no rows.
	ErrNotFound = errors.New("database: record not found")

	// ErrDuplicateKey is returned on unique constraint violations.
	ErrDuplicateKey = errors.New("database: duplicate key")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("database: foreign key violation")

	// ErrCheckViolation is returned when a CHECK constraint is violated.
	ErrCheckViolation = errors.New("database: check constraint violation")

	// ErrDeadlock is returned when the engine detects a deadlock.
	ErrDeadlock = errors.New("database: deadlock detected")

	// ErrSerialization is returned when a serializable transaction conflicts
	// with a concurrent one.
	ErrSerialization = errors.New("database: serialization failure")

	// ErrBusy is returned when the database file is locked by another writer.
	ErrBusy = errors.New("database: database busy")

	// ErrTimeout is returned when a statement exceeds its deadline or is cancelled.
	ErrTimeout = errors.New("database: query timeout")

	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("database: connection failed")
)

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsTimeout(err error) bool    { return errors.Is(err, ErrTimeout) }
func IsDuplicate(err error) bool  { return errors.Is(err, ErrDuplicateKey) }
func IsDeadlock(err error) bool   { return errors.Is(err, ErrDeadlock) }
func IsBusy(err error) bool       { return errors.Is(err, ErrBusy) }
func IsConflict(err error) bool   { return errors.Is(err, ErrSerialization) }
func IsConnection(err error) bool { return errors.Is(err, ErrConnectionFailed) }

// IsTransient reports whether the whole transaction may succeed when retried
// from scratch.
func IsTransient(err error) bool {
	return IsDeadlock(err) || IsConflict(err) || IsBusy(err) || IsConnection(err)
}

// DBError pairs a sentinel with the original driver error so callers can use
// errors.Is for the category and still reach the driver detail.
type DBError struct {
	Sentinel error
	Cause    error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("%s (cause: %v)", e.Sentinel, e.Cause)
}

func (e *DBError) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *DBError) Unwrap() error        { return e.Cause }

// mapError translates driver errors into the sentinels above. Errors that are
// already mapped or not recognised are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var dbe *DBError
	if errors.As(err, &dbe) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &DBError{Sentinel: ErrNotFound, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if mapped := mapSQLState(string(pqErr.Code), err); mapped != nil {
			return mapped
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if mapped := mapSQLState(pgErr.Code, err); mapped != nil {
			return mapped
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if mapped := mapSQLite(liteErr, err); mapped != nil {
			return mapped
		}
	}
	return err
}

// PostgreSQL SQLSTATE codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
func mapSQLState(code string, cause error) error {
	switch code {
	case "23505":
		return &DBError{Sentinel: ErrDuplicateKey, Cause: cause}
	case "23503":
		return &DBError{Sentinel: ErrForeignKeyViolation, Cause: cause}
	case "23514":
		return &DBError{Sentinel: ErrCheckViolation, Cause: cause}
	case "40001":
		return &DBError{Sentinel: ErrSerialization, Cause: cause}
	case "40P01":
		return &DBError{Sentinel: ErrDeadlock, Cause: cause}
	case "57014":
		return &DBError{Sentinel: ErrTimeout, Cause: cause}
	case "08000", "08001", "08003", "08004", "08006", "08007", "08P01":
		return &DBError{Sentinel: ErrConnectionFailed, Cause: cause}
	}
	return nil
}

func mapSQLite(liteErr sqlite3.Error, cause error) error {
	switch liteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return &DBError{Sentinel: ErrDuplicateKey, Cause: cause}
	case sqlite3.ErrConstraintForeignKey:
		return &DBError{Sentinel: ErrForeignKeyViolation, Cause: cause}
	case sqlite3.ErrConstraintCheck:
		return &DBError{Sentinel: ErrCheckViolation, Cause: cause}
	}
	switch liteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return &DBError{Sentinel: ErrBusy, Cause: cause}
	}
	return nil
}
