package codegen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

func TestTypeMapper_MapDefault(t *testing.T) {
	tm := NewTypeMapper(dialect.PostgresDialect{})

	tests := []struct {
		name  string
		field *schema.Field
		want  string
	}{
		{"none", schema.Integer("n"), ""},
		{"integer", schema.Integer("n", schema.Default(5)), "5"},
		{"float", schema.Float("f", schema.Default(1.5)), "1.5"},
		{"false", schema.Boolean("b", schema.Default(false)), "FALSE"},
		{"quoted", schema.Char("c", 10, schema.Default("it's")), "'it''s'"},
		{"now", schema.DateTime("at", schema.Default("CURRENT_TIMESTAMP")), "CURRENT_TIMESTAMP"},
		{"date", schema.Date("d", schema.Default(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))), "'2024-03-01'"},
		{"producer", schema.DateTime("at", schema.DefaultFn(func() interface{} { return time.Now() })), ""},
		{"json", schema.JSON("meta", schema.Default(map[string]interface{}{})), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tm.MapDefault(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeMapper_MapDefaultMismatch(t *testing.T) {
	tm := NewTypeMapper(dialect.SQLiteDialect{})
	_, err := tm.MapDefault(schema.Integer("n", schema.Default("five")))
	assert.Error(t, err)
}

func TestTypeMapper_MapNullability(t *testing.T) {
	tm := NewTypeMapper(dialect.SQLiteDialect{})
	assert.Equal(t, "NULL", tm.MapNullability(schema.Text("body")))
	assert.Equal(t, "NOT NULL", tm.MapNullability(schema.Text("body", schema.Required())))
}
