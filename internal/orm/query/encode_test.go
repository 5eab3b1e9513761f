package query

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

func TestEncodeValue(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name  string
		field *schema.Field
		in    interface{}
		want  interface{}
	}{
		{"json", schema.JSON("meta"), map[string]interface{}{"a": 1}, `{"a":1}`},
		{"time", schema.Time("opens"), at, "14:05:06"},
		{"date", schema.Date("born"), at, "2024-03-09"},
		{"uuid", schema.UUID("token"), id, id.String()},
		{"nil", schema.Char("name", 10), nil, nil},
		{"passthrough", schema.Integer("n"), 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeValue(tt.field, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeValue_RelationKey(t *testing.T) {
	f := schema.Integer("author_id")
	f.Relation = "author"

	got, err := EncodeValue(f, pk(4))
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestCompileEncodesLookupValues(t *testing.T) {
	event, err := schema.Declare(schema.Declaration{
		Name: "Event",
		Fields: []*schema.Field{
			schema.Date("day"),
			schema.Time("opens"),
			schema.UUID("token"),
		},
	})
	require.NoError(t, err)

	pg := dialect.PostgresDialect{}
	day := time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 1)
	opens := time.Date(0, 1, 1, 9, 30, 0, 0, time.UTC)
	token := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name string
		q    *Q
		sql  string
		args []interface{}
	}{
		{"date eq", L("day", day), `"t0"."day" = $1`, []interface{}{"2024-01-01"}},
		{"date lt", L("day__lt", next), `"t0"."day" < $1`, []interface{}{"2024-01-02"}},
		{"date lte", L("day__lte", day), `"t0"."day" <= $1`, []interface{}{"2024-01-01"}},
		{"date gt", L("day__gt", day), `"t0"."day" > $1`, []interface{}{"2024-01-01"}},
		{"date gte", L("day__gte", day), `"t0"."day" >= $1`, []interface{}{"2024-01-01"}},
		{"date in", L("day__in", []time.Time{day, next}), `"t0"."day" IN ($1, $2)`, []interface{}{"2024-01-01", "2024-01-02"}},
		{"date notin", L("day__notin", []time.Time{next}), `"t0"."day" NOT IN ($1)`, []interface{}{"2024-01-02"}},
		{"time eq", L("opens", opens), `"t0"."opens" = $1`, []interface{}{"09:30:00"}},
		{"time gt", L("opens__gt", opens), `"t0"."opens" > $1`, []interface{}{"09:30:00"}},
		{"time in", L("opens__in", []time.Time{opens}), `"t0"."opens" IN ($1)`, []interface{}{"09:30:00"}},
		{"uuid eq", L("token", token), `"t0"."token" = $1`, []interface{}{token.String()}},
		{"date null", L("day", nil), `"t0"."day" IS NULL`, []interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compile(t, tt.q, event, pg)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}
