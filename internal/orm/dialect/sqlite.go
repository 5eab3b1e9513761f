package dialect

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

// SQLiteDialect renders SQL for SQLite (mattn/go-sqlite3 or modernc.org/sqlite)
type SQLiteDialect struct{}

// Name returns the backend name
func (SQLiteDialect) Name() string { return SQLite }

// Placeholder returns ?
func (SQLiteDialect) Placeholder(int) string { return "?" }

// Quote quotes an identifier with double quotes
func (SQLiteDialect) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

// CaseInsensitiveLike lowers the column and expects a lowered pattern
func (SQLiteDialect) CaseInsensitiveLike(column, placeholder string) (string, bool) {
	return fmt.Sprintf("LOWER(%s) LIKE %s", column, placeholder), true
}

// ColumnType maps a field kind to a SQLite declared type. Declared types
// matter to the drivers: DATETIME/DATE columns scan as time.Time and
// BOOLEAN columns as bool.
func (SQLiteDialect) ColumnType(f *schema.Field) string {
	switch f.Kind {
	case schema.KindInteger, schema.KindBigInteger:
		return "INTEGER"
	case schema.KindFloat:
		return "REAL"
	case schema.KindDecimal:
		return "NUMERIC"
	case schema.KindChar, schema.KindEmail, schema.KindURL, schema.KindIPAddress, schema.KindChoice, schema.KindFile, schema.KindImage:
		return varchar(f, 255)
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindDateTime:
		return "DATETIME"
	case schema.KindDate:
		return "DATE"
	case schema.KindTime:
		return "TIME"
	case schema.KindJSON:
		return "JSON"
	case schema.KindUUID:
		return "VARCHAR(36)"
	case schema.KindULID:
		return "VARCHAR(26)"
	default:
		return "TEXT"
	}
}

// AutoIncrement uses INTEGER PRIMARY KEY AUTOINCREMENT
func (SQLiteDialect) AutoIncrement(*schema.Field) string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// Returning reports false; keys are read with LastInsertId
func (SQLiteDialect) Returning() bool { return false }

// NoLimit returns -1
func (SQLiteDialect) NoLimit() string { return "-1" }

// InsertIgnore uses INSERT OR IGNORE
func (d SQLiteDialect) InsertIgnore(table string, columns, placeholders []string) string {
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(QuoteAll(d, columns), ", "), strings.Join(placeholders, ", "))
}

// EmptyInsert uses DEFAULT VALUES
func (d SQLiteDialect) EmptyInsert(table string) string {
	return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", d.Quote(table))
}
