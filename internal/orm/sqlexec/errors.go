package sqlexec

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Storage error classes. The driver error stays in the chain next to the
// class, so both errors.Is(err, ErrUniqueViolation) and errors.As on the
// driver type work.
var (
	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrDeadlock is returned when the backend aborted a deadlocked statement
	ErrDeadlock = errors.New("deadlock detected")
)

// ConvertDBError tags driver errors with a storage error class. Errors that
// match no class are returned unchanged.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if class := classify(err); class != nil {
		return fmt.Errorf("%w: %w", class, err)
	}
	return err
}

func classify(err error) error {
	// PostgreSQL through pgx
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	// PostgreSQL through lib/pq
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062: // ER_DUP_ENTRY
			return ErrUniqueViolation
		case 1451, 1452: // ER_ROW_IS_REFERENCED_2, ER_NO_REFERENCED_ROW_2
			return ErrForeignKeyViolation
		case 1048: // ER_BAD_NULL_ERROR
			return ErrNotNullViolation
		case 3819: // ER_CHECK_CONSTRAINT_VIOLATED
			return ErrCheckViolation
		case 1213: // ER_LOCK_DEADLOCK
			return ErrDeadlock
		}
		return nil
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ErrUniqueViolation
		case sqlite3.ErrConstraintForeignKey:
			return ErrForeignKeyViolation
		case sqlite3.ErrConstraintNotNull:
			return ErrNotNullViolation
		case sqlite3.ErrConstraintCheck:
			return ErrCheckViolation
		}
		return nil
	}

	return nil
}

func classifySQLState(code string) error {
	switch code {
	case "23505": // unique_violation
		return ErrUniqueViolation
	case "23503": // foreign_key_violation
		return ErrForeignKeyViolation
	case "23502": // not_null_violation
		return ErrNotNullViolation
	case "23514": // check_violation
		return ErrCheckViolation
	case "40P01": // deadlock_detected
		return ErrDeadlock
	}
	return nil
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsDeadlock returns true if the error is ErrDeadlock
func IsDeadlock(err error) bool {
	return errors.Is(err, ErrDeadlock)
}
