package codegen

import (
	"fmt"
	"strings"
	"time"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// TypeMapper renders the type, nullability and default of a column
type TypeMapper struct {
	dialect dialect.Dialect
}

// NewTypeMapper creates a new type mapper for a dialect
func NewTypeMapper(d dialect.Dialect) *TypeMapper {
	return &TypeMapper{dialect: d}
}

// MapType returns the column type of a field
func (tm *TypeMapper) MapType(f *schema.Field) string {
	return tm.dialect.ColumnType(f)
}

// MapNullability returns NULL or NOT NULL
func (tm *TypeMapper) MapNullability(f *schema.Field) string {
	if f.Nullable {
		return "NULL"
	}
	return "NOT NULL"
}

// MapDefault returns the literal of a constant default, or "" when the
// field has none. Producer defaults are applied by the ORM, not the database.
func (tm *TypeMapper) MapDefault(f *schema.Field) (string, error) {
	if !f.HasDefault() {
		return "", nil
	}
	switch f.Default.(type) {
	case schema.DefaultFunc, func() interface{}:
		return "", nil
	}
	return tm.formatDefaultValue(f, f.Default)
}

// formatDefaultValue formats a default value for SQL
func (tm *TypeMapper) formatDefaultValue(f *schema.Field, value interface{}) (string, error) {
	switch f.Kind {
	case schema.KindInteger, schema.KindBigInteger:
		switch num := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return fmt.Sprintf("%d", num), nil
		}
		return "", fmt.Errorf("expected int for integer kind, got %T", value)

	case schema.KindFloat, schema.KindDecimal:
		switch v := value.(type) {
		case float64, float32:
			return fmt.Sprintf("%g", v), nil
		case int, int64:
			return fmt.Sprintf("%d", v), nil
		}
		return "", fmt.Errorf("expected numeric for %s kind, got %T", f.Kind, value)

	case schema.KindBoolean:
		if b, ok := value.(bool); ok {
			if b {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		return "", fmt.Errorf("expected bool for boolean kind, got %T", value)

	case schema.KindDateTime, schema.KindDate, schema.KindTime:
		switch v := value.(type) {
		case string:
			switch v {
			case "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME":
				return v, nil
			}
			return quoteLiteral(v), nil
		case time.Time:
			layout := "2006-01-02 15:04:05"
			if f.Kind == schema.KindDate {
				layout = "2006-01-02"
			} else if f.Kind == schema.KindTime {
				layout = "15:04:05"
			}
			return quoteLiteral(v.Format(layout)), nil
		}
		return "", fmt.Errorf("expected string or time for %s kind, got %T", f.Kind, value)

	case schema.KindJSON:
		// JSON defaults are encoded by the ORM at save time
		return "", nil

	default:
		if f.Kind.IsText() {
			if str, ok := value.(string); ok {
				return quoteLiteral(str), nil
			}
			return "", fmt.Errorf("expected string for %s kind, got %T", f.Kind, value)
		}
		return "", fmt.Errorf("unsupported default value kind: %s", f.Kind)
	}
}

// quoteLiteral quotes a string literal, doubling single quotes
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
