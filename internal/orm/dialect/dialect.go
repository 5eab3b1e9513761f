// Package dialect renders the backend-specific pieces of SQL (placeholders,
// identifier quoting, column types, case-insensitive matching) for the
// backends apexorm supports: PostgreSQL, SQLite and MySQL.
package dialect

import (
	"fmt"
	"strings"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Backend names
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
	MySQL    = "mysql"
)

// Dialect renders backend specific SQL fragments
type Dialect interface {
	// Name returns the backend name
	Name() string
	// Placeholder returns the bind parameter for the n-th argument (1-based)
	Placeholder(n int) string
	// Quote quotes an identifier
	Quote(ident string) string
	// CaseInsensitiveLike returns an expression matching column against the
	// LIKE pattern bound at placeholder. fold reports whether the pattern
	// must be lowercased before binding.
	CaseInsensitiveLike(column, placeholder string) (expr string, fold bool)
	// ColumnType returns the column type of a field
	ColumnType(f *schema.Field) string
	// AutoIncrement returns the full column definition of an auto-assigned
	// primary key, excluding the quoted name.
	AutoIncrement(f *schema.Field) string
	// Returning reports whether INSERT ... RETURNING is used to read back keys
	Returning() bool
	// NoLimit returns the LIMIT value used when only OFFSET is requested, or
	// "" when OFFSET may stand alone.
	NoLimit() string
	// InsertIgnore returns an INSERT that skips rows violating a key
	InsertIgnore(table string, columns, placeholders []string) string
	// EmptyInsert returns an INSERT of a row made only of defaults
	EmptyInsert(table string) string
}

// ForDriver returns the dialect of a database/sql driver name
func ForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return PostgresDialect{}, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect{}, nil
	case "mysql":
		return MySQLDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// QuoteAll quotes each identifier
func QuoteAll(d Dialect, idents []string) []string {
	result := make([]string, len(idents))
	for i, ident := range idents {
		result[i] = d.Quote(ident)
	}
	return result
}

// Placeholders returns count placeholders starting at argument start
func Placeholders(d Dialect, start, count int) []string {
	result := make([]string, count)
	for i := range result {
		result[i] = d.Placeholder(start + i)
	}
	return result
}

func varchar(f *schema.Field, fallback int) string {
	n := f.MaxLength
	if n <= 0 {
		n = fallback
	}
	return fmt.Sprintf("VARCHAR(%d)", n)
}
