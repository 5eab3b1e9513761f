package codegen

import (
	"fmt"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// IndexGenerator renders secondary indexes
type IndexGenerator struct {
	dialect dialect.Dialect
}

// NewIndexGenerator creates a new index generator
func NewIndexGenerator(d dialect.Dialect) *IndexGenerator {
	return &IndexGenerator{dialect: d}
}

// GenerateForeignKeyIndexes returns an index per foreign-key column that
// is not already unique. MySQL indexes foreign keys itself and lacks
// CREATE INDEX IF NOT EXISTS, so nothing is generated for it.
func (g *IndexGenerator) GenerateForeignKeyIndexes(m *schema.Model) []string {
	if g.dialect.Name() == dialect.MySQL {
		return nil
	}

	var indexes []string
	for _, rel := range m.Relations {
		if !rel.Forward() {
			continue
		}
		if f, ok := m.Field(rel.Column); ok && f.Unique {
			continue
		}
		indexes = append(indexes, g.index(m.Table, rel.Column))
	}
	return indexes
}

// GenerateJunctionIndexes indexes the right column of a junction table;
// the composite primary key already covers lookups by the left column.
func (g *IndexGenerator) GenerateJunctionIndexes(j *schema.JunctionTable) []string {
	if g.dialect.Name() == dialect.MySQL {
		return nil
	}
	return []string{g.index(j.Name, j.RightColumn)}
}

func (g *IndexGenerator) index(table, column string) string {
	name := fmt.Sprintf("idx_%s_%s", table, column)
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		g.dialect.Quote(name), g.dialect.Quote(table), g.dialect.Quote(column))
}
