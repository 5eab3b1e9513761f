package dialect

import (
	"fmt"
	"strings"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

// MySQLDialect renders SQL for MySQL and MariaDB
type MySQLDialect struct{}

// Name returns the backend name
func (MySQLDialect) Name() string { return MySQL }

// Placeholder returns ?
func (MySQLDialect) Placeholder(int) string { return "?" }

// Quote quotes an identifier with backticks
func (MySQLDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// CaseInsensitiveLike lowers the column and expects a lowered pattern
func (MySQLDialect) CaseInsensitiveLike(column, placeholder string) (string, bool) {
	return fmt.Sprintf("LOWER(%s) LIKE %s", column, placeholder), true
}

// ColumnType maps a field kind to a MySQL type
func (MySQLDialect) ColumnType(f *schema.Field) string {
	switch f.Kind {
	case schema.KindInteger:
		return "INT"
	case schema.KindBigInteger:
		return "BIGINT"
	case schema.KindFloat:
		return "DOUBLE"
	case schema.KindDecimal:
		return "DECIMAL(20,6)"
	case schema.KindChar, schema.KindEmail, schema.KindURL, schema.KindIPAddress, schema.KindChoice, schema.KindFile, schema.KindImage:
		return varchar(f, 255)
	case schema.KindText:
		return "TEXT"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindDateTime:
		return "DATETIME(6)"
	case schema.KindDate:
		return "DATE"
	case schema.KindTime:
		return "TIME(6)"
	case schema.KindJSON:
		return "JSON"
	case schema.KindUUID:
		return "CHAR(36)"
	case schema.KindULID:
		return "CHAR(26)"
	default:
		return "TEXT"
	}
}

// AutoIncrement uses AUTO_INCREMENT
func (MySQLDialect) AutoIncrement(f *schema.Field) string {
	if f.Kind == schema.KindBigInteger {
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	}
	return "INT AUTO_INCREMENT PRIMARY KEY"
}

// Returning reports false; keys are read with LastInsertId
func (MySQLDialect) Returning() bool { return false }

// NoLimit returns the largest unsigned BIGINT
func (MySQLDialect) NoLimit() string { return "18446744073709551615" }

// InsertIgnore uses INSERT IGNORE
func (d MySQLDialect) InsertIgnore(table string, columns, placeholders []string) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(QuoteAll(d, columns), ", "), strings.Join(placeholders, ", "))
}

// EmptyInsert uses an empty column list
func (d MySQLDialect) EmptyInsert(table string) string {
	return fmt.Sprintf("INSERT INTO %s () VALUES ()", d.Quote(table))
}
