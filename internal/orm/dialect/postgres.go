package dialect

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

// PostgresDialect renders SQL for PostgreSQL (pgx or lib/pq drivers)
type PostgresDialect struct{}

// Name returns the backend name
func (PostgresDialect) Name() string { return Postgres }

// Placeholder returns $n
func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// Quote quotes an identifier with double quotes
func (PostgresDialect) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

// CaseInsensitiveLike uses ILIKE
func (PostgresDialect) CaseInsensitiveLike(column, placeholder string) (string, bool) {
	return fmt.Sprintf("%s ILIKE %s", column, placeholder), false
}

// ColumnType maps a field kind to a PostgreSQL type
func (PostgresDialect) ColumnType(f *schema.Field) string {
	switch f.Kind {
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindBigInteger:
		return "BIGINT"
	case schema.KindFloat:
		return "DOUBLE PRECISION"
	case schema.KindDecimal:
		return "NUMERIC"
	case schema.KindChar, schema.KindEmail, schema.KindURL, schema.KindIPAddress, schema.KindChoice, schema.KindFile, schema.KindImage:
		return varchar(f, 255)
	case schema.KindText:
		return "TEXT"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindDateTime:
		return "TIMESTAMP WITH TIME ZONE"
	case schema.KindDate:
		return "DATE"
	case schema.KindTime:
		return "TIME"
	case schema.KindJSON:
		return "JSONB"
	case schema.KindUUID:
		return "UUID"
	case schema.KindULID:
		// ULID is stored as a 26-character string
		return "CHAR(26)"
	default:
		return "TEXT"
	}
}

// AutoIncrement uses SERIAL / BIGSERIAL
func (PostgresDialect) AutoIncrement(f *schema.Field) string {
	if f.Kind == schema.KindBigInteger {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "SERIAL PRIMARY KEY"
}

// Returning reports RETURNING support
func (PostgresDialect) Returning() bool { return true }

// NoLimit returns "" since OFFSET may stand alone
func (PostgresDialect) NoLimit() string { return "" }

// InsertIgnore uses ON CONFLICT DO NOTHING
func (d PostgresDialect) InsertIgnore(table string, columns, placeholders []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		d.Quote(table), strings.Join(QuoteAll(d, columns), ", "), strings.Join(placeholders, ", "))
}

// EmptyInsert uses DEFAULT VALUES
func (d PostgresDialect) EmptyInsert(table string) string {
	return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", d.Quote(table))
}
