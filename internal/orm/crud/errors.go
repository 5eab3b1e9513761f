package crud

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/schema"
	"github.com/apexorm/apexorm/internal/orm/transaction"
	"github.com/apexorm/apexorm/internal/orm/validation"
)

// Common CRUD error types
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrMultipleObjects is returned when a single-row lookup matches more than one record
	ErrMultipleObjects = errors.New("multiple records returned")

	// ErrRequiredRelation is returned when a non-nullable relation is unset at save
	ErrRequiredRelation = errors.New("required relation missing")

	// ErrIndexOutOfRange is returned when indexing past the end of a result
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")
)

// Errors shared with the packages that detect them
var (
	ErrValidationFailed   = validation.ErrValidationFailed
	ErrUsage              = query.ErrUsage
	ErrNotBound           = transaction.ErrNotBound
	ErrUnresolvedRelation = schema.ErrUnresolvedRelation
)

// SQLSTATE codes of integrity constraint violations
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers
const (
	mysqlNotNull          = 1048
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
	mysqlCheckConstraint  = 3819
)

// ConvertDBError converts driver errors into the CRUD sentinels. Errors it
// does not recognize are returned unchanged.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	// pgx
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if sentinel := fromSQLState(pgErr.Code); sentinel != nil {
			if pgErr.Code == pgNotNullViolation {
				return fmt.Errorf("%w: column %s", sentinel, pgErr.ColumnName)
			}
			return fmt.Errorf("%w: %s", sentinel, pgErr.Detail)
		}
		return err
	}

	// lib/pq
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if sentinel := fromSQLState(string(pqErr.Code)); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, pqErr.Message)
		}
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		var sentinel error
		switch myErr.Number {
		case mysqlDuplicateEntry:
			sentinel = ErrUniqueViolation
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			sentinel = ErrForeignKeyViolation
		case mysqlCheckConstraint:
			sentinel = ErrCheckViolation
		case mysqlNotNull:
			sentinel = ErrNotNullViolation
		}
		if sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, myErr.Message)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		var sentinel error
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			sentinel = ErrUniqueViolation
		case sqlite3.ErrConstraintForeignKey:
			sentinel = ErrForeignKeyViolation
		case sqlite3.ErrConstraintNotNull:
			sentinel = ErrNotNullViolation
		case sqlite3.ErrConstraintCheck:
			sentinel = ErrCheckViolation
		}
		if sentinel != nil {
			return fmt.Errorf("%w: %v", sentinel, err)
		}
		return err
	}

	// modernc.org/sqlite and anything else
	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint", "Error 1062"):
		return fmt.Errorf("%w: %s", ErrUniqueViolation, msg)
	case containsAny(msg, "FOREIGN KEY constraint failed", "violates foreign key constraint", "Error 1451", "Error 1452"):
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, msg)
	case containsAny(msg, "NOT NULL constraint failed", "violates not-null constraint"):
		return fmt.Errorf("%w: %s", ErrNotNullViolation, msg)
	case containsAny(msg, "CHECK constraint failed", "violates check constraint", "Error 3819"):
		return fmt.Errorf("%w: %s", ErrCheckViolation, msg)
	}
	return err
}

func fromSQLState(code string) error {
	switch code {
	case pgUniqueViolation:
		return ErrUniqueViolation
	case pgForeignKeyViolation:
		return ErrForeignKeyViolation
	case pgCheckViolation:
		return ErrCheckViolation
	case pgNotNullViolation:
		return ErrNotNullViolation
	}
	return nil
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsForeignKeyViolation returns true if the error is ErrForeignKeyViolation
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsValidationFailed returns true if the error is a validation error
func IsValidationFailed(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}
