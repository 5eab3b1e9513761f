package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

type blog struct {
	user, profile, post, group *schema.Model
}

func newBlog(t *testing.T) blog {
	t.Helper()
	r := schema.NewRegistry()
	var b blog
	var err error
	b.user, err = r.Declare(schema.Declaration{
		Name:   "User",
		Fields: []*schema.Field{schema.Char("name", 100, schema.Required()), schema.Text("description"), schema.Integer("age")},
	})
	require.NoError(t, err)
	b.profile, err = r.Declare(schema.Declaration{
		Name:      "Profile",
		Fields:    []*schema.Field{schema.Char("bio", 255)},
		Relations: []*schema.Relationship{schema.OneToOneTo("user", schema.Ref("User"), schema.RelatedName("profile"))},
	})
	require.NoError(t, err)
	b.post, err = r.Declare(schema.Declaration{
		Name:      "Post",
		Fields:    []*schema.Field{schema.Char("title", 200)},
		Relations: []*schema.Relationship{schema.ForeignKeyTo("author", schema.Ref("User"), schema.RelatedName("posts"))},
	})
	require.NoError(t, err)
	b.group, err = r.Declare(schema.Declaration{
		Name:      "Group",
		Fields:    []*schema.Field{schema.Char("name", 100)},
		Relations: []*schema.Relationship{schema.ManyToManyTo("members", schema.Ref("User"), schema.RelatedName("groups"))},
	})
	require.NoError(t, err)
	require.NoError(t, r.Finalize())
	return b
}

type pk int

func (p pk) PrimaryKeyValue() interface{} { return int(p) }

func TestParseLookup(t *testing.T) {
	l, err := ParseLookup("name", "Joe")
	require.NoError(t, err)
	assert.Equal(t, Lookup{Field: "name", Op: OpEqual, Value: "Joe"}, l)

	for suffix, op := range map[string]Operator{
		"eq": OpEqual, "lt": OpLessThan, "lte": OpLessThanOrEqual, "gt": OpGreaterThan, "gte": OpGreaterThanOrEqual,
		"in": OpIn, "notin": OpNotIn, "have": OpContains, "contains": OpContains,
		"startswith": OpStartsWith, "istartswith": OpStartsWith, "endswith": OpEndsWith, "iendswith": OpEndsWith,
	} {
		l, err := ParseLookup("age__"+suffix, 1)
		require.NoError(t, err, suffix)
		assert.Equal(t, "age", l.Field)
		assert.Equal(t, op, l.Op, suffix)
	}

	l, err = ParseLookup("name.have", "x")
	require.NoError(t, err)
	assert.Equal(t, OpContains, l.Op)

	_, err = ParseLookup("name__like", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUsage))

	_, err = ParseLookup("name__", "x")
	assert.Error(t, err)
}

func TestParseSearchLookup(t *testing.T) {
	l, err := ParseSearchLookup("name", "jo")
	require.NoError(t, err)
	assert.Equal(t, OpContains, l.Op)

	l, err = ParseSearchLookup("name__startswith", "jo")
	require.NoError(t, err)
	assert.Equal(t, OpStartsWith, l.Op)

	_, err = ParseSearchLookup("age__gt", 3)
	assert.ErrorIs(t, err, ErrUsage)
}

func TestQConstructionErrorsAreImmediate(t *testing.T) {
	q := Where(Lookups{"name__bogus": 1})
	require.Error(t, q.Err())

	combined := L("name", "a").Or(q).Not()
	assert.ErrorIs(t, combined.Err(), ErrUsage)
}

func compile(t *testing.T, q *Q, m *schema.Model, d dialect.Dialect) (string, []interface{}) {
	t.Helper()
	b := NewBinder(d)
	sql, err := Compile(q, Scope{Model: m, Alias: "t0", Dialect: d}, b)
	require.NoError(t, err)
	return sql, b.Args()
}

func TestCompileOperators(t *testing.T) {
	bl := newBlog(t)
	pg := dialect.PostgresDialect{}
	lite := dialect.SQLiteDialect{}

	tests := []struct {
		name string
		q    *Q
		d    dialect.Dialect
		sql  string
		args []interface{}
	}{
		{"eq", L("name", "Joe"), pg, `"t0"."name" = $1`, []interface{}{"Joe"}},
		{"null", L("description", nil), pg, `"t0"."description" IS NULL`, []interface{}{}},
		{"lt", L("age__lt", 3), pg, `"t0"."age" < $1`, []interface{}{3}},
		{"lte", L("age__lte", 3), pg, `"t0"."age" <= $1`, []interface{}{3}},
		{"gt", L("age__gt", 3), pg, `"t0"."age" > $1`, []interface{}{3}},
		{"gte", L("age__gte", 3), pg, `"t0"."age" >= $1`, []interface{}{3}},
		{"in", L("age__in", []int{1, 2}), pg, `"t0"."age" IN ($1, $2)`, []interface{}{1, 2}},
		{"notin", L("age__notin", []interface{}{7}), pg, `"t0"."age" NOT IN ($1)`, []interface{}{7}},
		{"empty in", L("age__in", []int{}), pg, `1 = 0`, []interface{}{}},
		{"empty notin", L("age__notin", []string{}), pg, `1 = 1`, []interface{}{}},
		{"have pg", L("name__have", "Jo"), pg, `"t0"."name" ILIKE $1`, []interface{}{"%Jo%"}},
		{"have sqlite", L("name__have", "Jo"), lite, `LOWER("t0"."name") LIKE ?`, []interface{}{"%jo%"}},
		{"startswith", L("name__istartswith", "Al"), lite, `LOWER("t0"."name") LIKE ?`, []interface{}{"al%"}},
		{"endswith", L("name__endswith", "ce"), pg, `"t0"."name" ILIKE $1`, []interface{}{"%ce"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compile(t, tt.q, bl.user, tt.d)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestCompileForwardRelationLookup(t *testing.T) {
	bl := newBlog(t)
	pg := dialect.PostgresDialect{}

	sql, args := compile(t, L("author", pk(4)), bl.post, pg)
	assert.Equal(t, `"t0"."author_id" = $1`, sql)
	assert.Equal(t, []interface{}{4}, args)

	sql, args = compile(t, L("author__in", []pk{1, 2}), bl.post, pg)
	assert.Equal(t, `"t0"."author_id" IN ($1, $2)`, sql)
	assert.Equal(t, []interface{}{1, 2}, args)
}

func TestCompileTrees(t *testing.T) {
	bl := newBlog(t)
	pg := dialect.PostgresDialect{}

	sql, args := compile(t, Where(Lookups{"name__have": "jo", "age__gte": 18}), bl.user, pg)
	assert.Equal(t, `("t0"."age" >= $1 AND "t0"."name" ILIKE $2)`, sql)
	assert.Equal(t, []interface{}{18, "%jo%"}, args)

	sql, _ = compile(t, L("name__have", "x").Or(L("description__have", "y")), bl.user, pg)
	assert.Equal(t, `("t0"."name" ILIKE $1 OR "t0"."description" ILIKE $2)`, sql)

	sql, _ = compile(t, L("name", "a").Not(), bl.user, pg)
	assert.Equal(t, `NOT ("t0"."name" = $1)`, sql)

	sql, _ = compile(t, Not(L("name", "a").Or(L("name", "b"))), bl.user, pg)
	assert.Equal(t, `NOT ("t0"."name" = $1 OR "t0"."name" = $2)`, sql)

	sql, _ = compile(t, And(L("age", 1), Or(L("name", "a"), L("name", "b"))), bl.user, pg)
	assert.Equal(t, `("t0"."age" = $1 AND ("t0"."name" = $2 OR "t0"."name" = $3))`, sql)

	sql, _ = compile(t, Search(Lookups{"name": "jo", "description__startswith": "fr"}), bl.user, pg)
	assert.Equal(t, `("t0"."description" ILIKE $1 OR "t0"."name" ILIKE $2)`, sql)

	sql, args = compile(t, Where(Lookups{}), bl.user, pg)
	assert.Equal(t, "", sql)
	assert.Empty(t, args)
}

func TestValidate(t *testing.T) {
	bl := newBlog(t)

	assert.NoError(t, Validate(L("name__have", "x"), bl.user))
	assert.ErrorIs(t, Validate(L("nickname", "x"), bl.user), ErrUsage)
	assert.ErrorIs(t, Validate(L("age__in", 3), bl.user), ErrUsage)
	assert.ErrorIs(t, Validate(L("posts", 3), bl.user), ErrUsage, "collections are not columns")
	assert.NoError(t, Validate(L("author", 3), bl.post))
}

func TestResolvePaths(t *testing.T) {
	bl := newBlog(t)

	chain, err := ResolveScalarPath(bl.post, "author__profile")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "author", chain[0].Name)
	assert.Equal(t, schema.ReverseOneToOne, chain[1].Kind)

	chain, err = ResolvePath(bl.post, "author.groups")
	require.NoError(t, err)
	assert.Equal(t, "_groups_rel", chain[1].Name)

	_, err = ResolveScalarPath(bl.user, "posts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prefetch_related")

	_, err = ResolveScalarPath(bl.user, "groups")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `crosses collection "groups"`)

	_, err = ResolvePath(bl.user, "friends")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestParseOrder(t *testing.T) {
	bl := newBlog(t)
	term, err := ParseOrder(bl.user, "-name")
	require.NoError(t, err)
	assert.Equal(t, OrderTerm{Field: "name", Desc: true}, term)

	_, err = ParseOrder(bl.user, "height")
	assert.ErrorIs(t, err, ErrUsage)

	assert.Equal(t, []OrderTerm{{Field: "name"}, {Field: "id", Desc: true}},
		Reverse([]OrderTerm{{Field: "name", Desc: true}, {Field: "id"}}))
}

func TestStatementSelect(t *testing.T) {
	bl := newBlog(t)
	pg := dialect.PostgresDialect{}
	limit, offset := 5, 10

	st := &Statement{
		Model:  bl.user,
		Where:  L("name__have", "jo"),
		Order:  []OrderTerm{{Field: "name", Desc: true}},
		Limit:  &limit,
		Offset: &offset,
	}
	sql, args, layout, err := st.Select(pg)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t0"."id", "t0"."name", "t0"."description", "t0"."age" FROM "user" AS "t0" WHERE "t0"."name" ILIKE $1 ORDER BY "t0"."name" DESC LIMIT $2 OFFSET $3`,
		sql)
	assert.Equal(t, []interface{}{"%jo%", 5, 10}, args)
	assert.Equal(t, 4, layout.Width)
}

func TestStatementSelectDefaultsToPrimaryKeyOrder(t *testing.T) {
	bl := newBlog(t)
	offset := 2
	st := &Statement{Model: bl.group, Offset: &offset}

	sql, args, _, err := st.Select(dialect.SQLiteDialect{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "t0"."id", "t0"."name" FROM "group" AS "t0" ORDER BY "t0"."id" ASC LIMIT -1 OFFSET ?`, sql)
	assert.Equal(t, []interface{}{2}, args)
}

func TestStatementSelectRelated(t *testing.T) {
	bl := newBlog(t)
	pg := dialect.PostgresDialect{}

	author, err := ResolveScalarPath(bl.post, "author")
	require.NoError(t, err)
	profile, err := ResolveScalarPath(bl.post, "author__profile")
	require.NoError(t, err)

	st := &Statement{Model: bl.post, Related: [][]*schema.Relationship{author, profile}}
	sql, _, layout, err := st.Select(pg)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t0"."id", "t0"."title", "t0"."author_id", "t1"."id", "t1"."name", "t1"."description", "t1"."age", "t2"."id", "t2"."bio", "t2"."user_id"`+
			` FROM "post" AS "t0"`+
			` LEFT JOIN "user" AS "t1" ON "t1"."id" = "t0"."author_id"`+
			` LEFT JOIN "profile" AS "t2" ON "t2"."user_id" = "t1"."id"`+
			` ORDER BY "t0"."id" ASC`,
		sql)

	require.Len(t, layout.Segments, 3)
	assert.Equal(t, "author", layout.Segments[1].Path)
	assert.Equal(t, 3, layout.Segments[1].Start)
	assert.Equal(t, 0, layout.Segments[1].Parent)
	assert.Equal(t, "author__profile", layout.Segments[2].Path)
	assert.Equal(t, 7, layout.Segments[2].Start)
	assert.Equal(t, 1, layout.Segments[2].Parent)
	assert.Equal(t, 10, layout.Width)
}

func TestStatementCountAndExists(t *testing.T) {
	bl := newBlog(t)
	pg := dialect.PostgresDialect{}

	st := &Statement{Model: bl.user, Where: L("age__gt", 30), Order: []OrderTerm{{Field: "name"}}}
	sql, args, err := st.Count(pg)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "user" AS "t0" WHERE "t0"."age" > $1`, sql)
	assert.Equal(t, []interface{}{30}, args)

	sql, _, err = st.Exists(pg)
	require.NoError(t, err)
	assert.Equal(t, `SELECT 1 FROM "user" AS "t0" WHERE "t0"."age" > $1 LIMIT 1`, sql)

	limit := 5
	st.Limit = &limit
	sql, args, err = st.Count(pg)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM (SELECT "t0"."id" FROM "user" AS "t0" WHERE "t0"."age" > $1 ORDER BY "t0"."name" ASC LIMIT $2) AS "sub"`,
		sql)
	assert.Equal(t, []interface{}{30, 5}, args)
}

func TestStatementColumns(t *testing.T) {
	bl := newBlog(t)
	st := &Statement{Model: bl.post, Where: L("title__have", "go")}

	sql, args, err := st.Columns(dialect.SQLiteDialect{}, []string{"title", "author"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "t0"."title", "t0"."author_id" FROM "post" AS "t0" WHERE LOWER("t0"."title") LIKE ? ORDER BY "t0"."id" ASC`, sql)
	assert.Equal(t, []interface{}{"%go%"}, args)

	_, _, err = st.Columns(dialect.SQLiteDialect{}, []string{"body"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestStatementThroughJunction(t *testing.T) {
	b := newBlog(t)
	rel, ok := b.group.ResolveRelation("members")
	require.True(t, ok)

	st := &Statement{
		Model: b.user,
		Where: L("name__startswith", "A"),
		Through: &Membership{
			Junction:     rel.Junction.Name,
			OwnerColumn:  rel.OwnerColumn,
			TargetColumn: rel.TargetColumn,
			Owner:        int64(3),
		},
	}
	sql, args, err := st.Count(dialect.PostgresDialect{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "user" AS "t0" WHERE "t0"."name" ILIKE $1 AND "t0"."id" IN (SELECT "user_id" FROM "group_members" WHERE "group_id" = $2)`, sql)
	assert.Equal(t, []interface{}{"A%", int64(3)}, args)
}
