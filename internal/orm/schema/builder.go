package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Declaration is the declarative input of a model: its name, ordered scalar
// fields and ordered relationships.
type Declaration struct {
	Name      string
	Namespace string
	// Table overrides the derived table name
	Table     string
	Fields    []*Field
	Relations []*Relationship
	Clean     CleanFunc
}

// Builder turns declarations into model descriptors, collecting every problem
// of a declaration before failing.
type Builder struct {
	errors []error
}

// NewBuilder creates a new schema builder
func NewBuilder() *Builder {
	return &Builder{errors: make([]error, 0)}
}

// Declare builds the descriptor of a single model. Scalar fields and forward
// relations are materialized immediately; many-to-many accessors are only
// recorded until Finalize wires them.
func Declare(decl Declaration) (*Model, error) {
	return NewBuilder().Build(decl)
}

// Build converts a Declaration to a Model
func (b *Builder) Build(decl Declaration) (*Model, error) {
	b.errors = b.errors[:0]

	if !identPattern.MatchString(decl.Name) {
		return nil, fmt.Errorf("invalid model name %q", decl.Name)
	}

	table := decl.Table
	if table == "" {
		table = TableName(decl.Name)
	}
	if !identPattern.MatchString(table) {
		b.errorf("invalid table name %q", table)
	}

	m := newModel(decl.Name, decl.Namespace, table)
	m.Clean = decl.Clean

	primaryKeys := 0
	for _, f := range decl.Fields {
		if f == nil {
			continue
		}
		if f.PrimaryKey {
			primaryKeys++
		}
	}
	switch {
	case primaryKeys > 1:
		b.errorf("model %s declares %d primary keys, expected exactly one", decl.Name, primaryKeys)
	case primaryKeys == 0:
		// Models are assumed to carry an integer identity column
		m.addField(Integer("id", PrimaryKey(), AutoIncrement()))
	}

	for _, f := range decl.Fields {
		if f == nil {
			continue
		}
		if !b.checkName(m, f.Name) {
			continue
		}
		if f.PrimaryKey && (f.Kind == KindInteger || f.Kind == KindBigInteger) && !f.HasDefault() {
			f.AutoIncrement = true
		}
		m.addField(f)
	}

	for _, r := range decl.Relations {
		if r == nil {
			continue
		}
		if !b.checkName(m, r.Name) {
			continue
		}
		if r.Target.Name() == "" {
			b.errorf("%s.%s has no target model", decl.Name, r.Name)
			continue
		}

		switch r.Kind {
		case ForeignKey, OneToOne:
			col := r.Name + "_id"
			if !b.checkName(m, col) {
				continue
			}
			r.Column = col
			m.addField(&Field{
				Name:     col,
				Kind:     KindInteger,
				Nullable: r.Nullable,
				Unique:   r.Unique,
				Relation: r.Name,
			})
			m.addRelation(r)
		case ManyToMany:
			m.m2m = append(m.m2m, r)
		default:
			b.errorf("%s.%s: relation kind %s cannot be declared", decl.Name, r.Name, r.Kind)
		}
	}

	if len(b.errors) > 0 {
		return nil, b.err()
	}
	return m, nil
}

func (b *Builder) checkName(m *Model, name string) bool {
	if !identPattern.MatchString(name) || strings.HasPrefix(name, "_") {
		b.errorf("%s: invalid attribute name %q", m.Name, name)
		return false
	}
	if strings.Contains(name, "__") {
		b.errorf("%s: attribute name %q must not contain \"__\"", m.Name, name)
		return false
	}
	if m.HasMember(name) {
		b.errorf("%s: duplicate attribute %q", m.Name, name)
		return false
	}
	return true
}

func (b *Builder) errorf(format string, args ...interface{}) {
	b.errors = append(b.errors, fmt.Errorf(format, args...))
}

func (b *Builder) err() error {
	if len(b.errors) == 1 {
		return fmt.Errorf("schema build failed: %w", b.errors[0])
	}
	return fmt.Errorf("schema build failed with %d errors: %w", len(b.errors), errors.Join(b.errors...))
}
