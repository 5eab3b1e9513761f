package codegen

import (
	"fmt"
	"strings"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// ConstraintGenerator renders table constraints
type ConstraintGenerator struct {
	dialect dialect.Dialect
}

// NewConstraintGenerator creates a new constraint generator
func NewConstraintGenerator(d dialect.Dialect) *ConstraintGenerator {
	return &ConstraintGenerator{dialect: d}
}

// GenerateForeignKeyConstraints returns the FOREIGN KEY clauses of a
// model's forward relations, in declaration order. The on_delete action of
// a relation is emitted here and nowhere else.
func (g *ConstraintGenerator) GenerateForeignKeyConstraints(m *schema.Model) ([]string, error) {
	var constraints []string
	for _, rel := range m.Relations {
		if !rel.Forward() {
			continue
		}
		target := rel.Target.Model()
		if target == nil {
			return nil, fmt.Errorf("relation %s.%s: %w", m.Name, rel.Name, schema.ErrUnresolvedRelation)
		}
		constraints = append(constraints, g.foreignKey(rel.Column, target, rel.OnDelete))
	}
	return constraints, nil
}

func (g *ConstraintGenerator) foreignKey(column string, target *schema.Model, onDelete schema.CascadeAction) string {
	d := g.dialect
	fk := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Quote(column), d.Quote(target.Table), d.Quote(target.PrimaryKey().Name))
	return fk + g.formatCascadeAction("ON DELETE", onDelete)
}

// formatCascadeAction formats a cascade action for SQL. CascadeNone
// leaves the backend default in place.
func (g *ConstraintGenerator) formatCascadeAction(prefix string, action schema.CascadeAction) string {
	sql := action.SQL()
	if sql == "" {
		return ""
	}
	return fmt.Sprintf(" %s %s", prefix, sql)
}

// GenerateCheckConstraints returns CHECK clauses restricting choice fields
// to their declared values.
func (g *ConstraintGenerator) GenerateCheckConstraints(m *schema.Model) []string {
	var constraints []string
	for _, f := range m.Fields {
		if f.Kind != schema.KindChoice || len(f.Choices) == 0 {
			continue
		}
		values := make([]string, len(f.Choices))
		for i, c := range f.Choices {
			values[i] = quoteLiteral(c.Value)
		}
		constraints = append(constraints, fmt.Sprintf("CHECK (%s IN (%s))",
			g.dialect.Quote(f.Name), strings.Join(values, ", ")))
	}
	return constraints
}
