// Package codegen renders the DDL of finalized models: CREATE TABLE
// statements with their constraints, junction tables and foreign-key
// indexes.
package codegen

import (
	"fmt"
	"strings"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// DDLGenerator generates SQL DDL statements from model descriptors
type DDLGenerator struct {
	dialect     dialect.Dialect
	typeMapper  *TypeMapper
	constraints *ConstraintGenerator
	indexes     *IndexGenerator
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator(d dialect.Dialect) *DDLGenerator {
	return &DDLGenerator{
		dialect:     d,
		typeMapper:  NewTypeMapper(d),
		constraints: NewConstraintGenerator(d),
		indexes:     NewIndexGenerator(d),
	}
}

// CreateTable generates the CREATE TABLE statement of a model. Foreign keys
// are table constraints since SQLite cannot add them afterwards.
func (g *DDLGenerator) CreateTable(m *schema.Model) (string, error) {
	if m.PrimaryKey() == nil {
		return "", fmt.Errorf("model %s has no primary key", m.Name)
	}

	var defs []string
	for _, f := range m.Fields {
		def, err := g.columnDefinition(f)
		if err != nil {
			return "", fmt.Errorf("model %s: %w", m.Name, err)
		}
		defs = append(defs, def)
	}

	fks, err := g.constraints.GenerateForeignKeyConstraints(m)
	if err != nil {
		return "", err
	}
	defs = append(defs, fks...)
	defs = append(defs, g.constraints.GenerateCheckConstraints(m)...)

	return g.createTable(m.Table, defs), nil
}

// CreateJunction generates the CREATE TABLE statement of a junction table.
// Both columns reference their model with ON DELETE CASCADE so links never
// outlive their rows.
func (g *DDLGenerator) CreateJunction(j *schema.JunctionTable) (string, error) {
	if j.LeftModel == nil || j.RightModel == nil {
		return "", fmt.Errorf("junction %s: %w", j.Name, schema.ErrUnresolvedRelation)
	}
	d := g.dialect

	left := g.referenceColumn(j.LeftColumn, j.LeftModel)
	right := g.referenceColumn(j.RightColumn, j.RightModel)
	defs := []string{
		left,
		right,
		fmt.Sprintf("PRIMARY KEY (%s, %s)", d.Quote(j.LeftColumn), d.Quote(j.RightColumn)),
		g.constraints.foreignKey(j.LeftColumn, j.LeftModel, schema.CascadeCascade),
		g.constraints.foreignKey(j.RightColumn, j.RightModel, schema.CascadeCascade),
	}
	return g.createTable(j.Name, defs), nil
}

// DropTable generates a DROP TABLE statement
func (g *DDLGenerator) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", g.dialect.Quote(table))
}

// Schema generates every statement needed to create models and junctions:
// tables in the given order, then junction tables, then indexes.
func (g *DDLGenerator) Schema(models []*schema.Model, junctions []*schema.JunctionTable) ([]string, error) {
	var stmts, indexes []string
	for _, m := range models {
		stmt, err := g.CreateTable(m)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		indexes = append(indexes, g.indexes.GenerateForeignKeyIndexes(m)...)
	}
	for _, j := range junctions {
		stmt, err := g.CreateJunction(j)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		indexes = append(indexes, g.indexes.GenerateJunctionIndexes(j)...)
	}
	return append(stmts, indexes...), nil
}

func (g *DDLGenerator) createTable(table string, defs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", g.dialect.Quote(table))
	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// columnDefinition generates the definition of a single column
func (g *DDLGenerator) columnDefinition(f *schema.Field) (string, error) {
	name := g.dialect.Quote(f.Name)
	if f.PrimaryKey && f.AutoIncrement {
		return name + " " + g.dialect.AutoIncrement(f), nil
	}

	parts := []string{name, g.typeMapper.MapType(f)}
	if !f.Nullable || f.PrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if f.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	} else if f.Unique {
		parts = append(parts, "UNIQUE")
	}

	def, err := g.typeMapper.MapDefault(f)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", f.Name, err)
	}
	if def != "" {
		parts = append(parts, "DEFAULT "+def)
	}
	return strings.Join(parts, " "), nil
}

// referenceColumn defines a NOT NULL column typed like the primary key of m
func (g *DDLGenerator) referenceColumn(name string, m *schema.Model) string {
	pk := *m.PrimaryKey()
	col := &schema.Field{Name: name, Kind: pk.Kind, MaxLength: pk.MaxLength}
	return g.dialect.Quote(name) + " " + g.typeMapper.MapType(col) + " NOT NULL"
}
