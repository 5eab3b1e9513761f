package query

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

var lower = cases.Lower(language.Und)

// PrimaryKeyer is implemented by values standing for a stored row. Lookups
// on forward relations accept them in place of the raw key.
type PrimaryKeyer interface {
	PrimaryKeyValue() interface{}
}

// Binder accumulates bind arguments and hands out placeholders
type Binder struct {
	dialect dialect.Dialect
	args    []interface{}
}

// NewBinder creates a binder for the dialect
func NewBinder(d dialect.Dialect) *Binder {
	return &Binder{dialect: d, args: make([]interface{}, 0)}
}

// Bind records v and returns its placeholder
func (b *Binder) Bind(v interface{}) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

// Args returns the bound arguments in placeholder order
func (b *Binder) Args() []interface{} {
	return b.args
}

// Scope resolves the fields of one model against a table alias
type Scope struct {
	Model   *schema.Model
	Alias   string
	Dialect dialect.Dialect
}

// Column returns the qualified, quoted column of a field name
func (s Scope) Column(field string) (string, error) {
	f, err := ResolveField(s.Model, field)
	if err != nil {
		return "", err
	}
	return s.Qualify(f.Name), nil
}

// Qualify quotes a column name and prefixes the alias
func (s Scope) Qualify(column string) string {
	if s.Alias == "" {
		return s.Dialect.Quote(column)
	}
	return s.Dialect.Quote(s.Alias) + "." + s.Dialect.Quote(column)
}

// ResolveField maps a lookup field to its column. Forward relations resolve
// to their <attr>_id column.
func ResolveField(m *schema.Model, field string) (*schema.Field, error) {
	if f, ok := m.Field(field); ok {
		return f, nil
	}
	if rel, ok := m.Relation(field); ok && rel.Forward() {
		if f, ok := m.Field(rel.Column); ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no field %q", ErrUsage, m.Name, field)
}

// Validate checks a tree against a model without rendering it
func Validate(q *Q, m *schema.Model) error {
	if err := q.Err(); err != nil {
		return err
	}
	for _, l := range q.Lookups() {
		if _, err := ResolveField(m, l.Field); err != nil {
			return err
		}
		if l.Op == OpIn || l.Op == OpNotIn {
			if _, ok := toSlice(l.Value); !ok {
				return fmt.Errorf("%w: %s__%s expects a slice, got %T", ErrUsage, l.Field, l.Op, l.Value)
			}
		}
	}
	return nil
}

// Compile renders a tree as a SQL predicate. An empty tree renders as "".
func Compile(q *Q, s Scope, b *Binder) (string, error) {
	if err := q.Err(); err != nil {
		return "", err
	}
	return compileQ(q, s, b)
}

func compileQ(q *Q, s Scope, b *Binder) (string, error) {
	parts := make([]string, 0, len(q.Children))
	for _, child := range q.Children {
		var (
			sql string
			err error
		)
		switch c := child.(type) {
		case Lookup:
			sql, err = compileLookup(c, s, b)
		case *Q:
			sql, err = compileQ(c, s, b)
		}
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, sql)
		}
	}

	var sql string
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		sql = parts[0]
	default:
		sql = "(" + strings.Join(parts, " "+q.Connector.String()+" ") + ")"
	}
	if q.Negated {
		return "NOT " + wrap(sql), nil
	}
	return sql, nil
}

func wrap(sql string) string {
	if strings.HasPrefix(sql, "(") && strings.HasSuffix(sql, ")") {
		return sql
	}
	return "(" + sql + ")"
}

// compileLookup converts a lookup to SQL with parameterized values.
// Comparison values are encoded like stored values of the field.
func compileLookup(l Lookup, s Scope, b *Binder) (string, error) {
	f, err := ResolveField(s.Model, l.Field)
	if err != nil {
		return "", err
	}
	col := s.Qualify(f.Name)

	value := keyOf(l.Value)
	if l.Op != OpIn && l.Op != OpNotIn && !l.Op.IsText() {
		if value, err = EncodeValue(f, value); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUsage, err)
		}
	}

	switch l.Op {
	case OpEqual:
		if value == nil {
			return col + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col, b.Bind(value)), nil
	case OpLessThan:
		return fmt.Sprintf("%s < %s", col, b.Bind(value)), nil
	case OpLessThanOrEqual:
		return fmt.Sprintf("%s <= %s", col, b.Bind(value)), nil
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", col, b.Bind(value)), nil
	case OpGreaterThanOrEqual:
		return fmt.Sprintf("%s >= %s", col, b.Bind(value)), nil
	case OpIn, OpNotIn:
		values, ok := toSlice(l.Value)
		if !ok {
			return "", fmt.Errorf("%w: %s__%s expects a slice, got %T", ErrUsage, l.Field, l.Op, l.Value)
		}
		if len(values) == 0 {
			// Empty IN matches nothing, empty NOT IN matches everything
			if l.Op == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			encoded, err := EncodeValue(f, keyOf(v))
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrUsage, err)
			}
			placeholders[i] = b.Bind(encoded)
		}
		keyword := "IN"
		if l.Op == OpNotIn {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, keyword, strings.Join(placeholders, ", ")), nil
	case OpContains, OpStartsWith, OpEndsWith:
		pattern := fmt.Sprint(value)
		switch l.Op {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern = pattern + "%"
		case OpEndsWith:
			pattern = "%" + pattern
		}
		// The placeholder index is only known after binding, so the
		// dialect is asked first whether the pattern must be folded.
		if _, fold := s.Dialect.CaseInsensitiveLike(col, ""); fold {
			pattern = lower.String(pattern)
		}
		expr, _ := s.Dialect.CaseInsensitiveLike(col, b.Bind(pattern))
		return expr, nil
	default:
		return "", fmt.Errorf("%w: unsupported operator %s", ErrUsage, l.Op)
	}
}

func keyOf(v interface{}) interface{} {
	if pk, ok := v.(PrimaryKeyer); ok {
		return pk.PrimaryKeyValue()
	}
	return v
}

func toSlice(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// []byte is a scalar value, not a set
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	result := make([]interface{}, rv.Len())
	for i := range result {
		result[i] = rv.Index(i).Interface()
	}
	return result, true
}
