package orm

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

func names(t *testing.T, qs *QuerySet) []interface{} {
	t.Helper()
	values, err := qs.FlatValuesList(context.Background(), "name")
	require.NoError(t, err)
	return values
}

func seedUsers(t *testing.T) *blog {
	t.Helper()
	b := newBlog(t)
	b.users(t, "Joe Doe", "John Smith", "Alice Mince", "Bob Tob", "Joey Tribiani")
	return b
}

func TestQuerySet_FilterContains(t *testing.T) {
	b := seedUsers(t)
	ctx := context.Background()

	n, err := b.orm.Objects(b.user).Filter(Lookups{"name__have": "jo"}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.Equal(t, []interface{}{"Joe Doe", "John Smith", "Joey Tribiani"},
		names(t, b.orm.Objects(b.user).Filter(L("name__contains", "JO"))))
}

func TestQuerySet_Operators(t *testing.T) {
	b := seedUsers(t)
	users := b.orm.Objects(b.user)

	tests := []struct {
		name string
		cond Condition
		want []interface{}
	}{
		{"eq", L("name", "Bob Tob"), []interface{}{"Bob Tob"}},
		{"lt", L("id__lt", 3), []interface{}{"Joe Doe", "John Smith"}},
		{"lte", L("id__lte", 1), []interface{}{"Joe Doe"}},
		{"gt", L("id__gt", 4), []interface{}{"Joey Tribiani"}},
		{"gte", L("id__gte", 4), []interface{}{"Bob Tob", "Joey Tribiani"}},
		{"in", L("id__in", []int{2, 3}), []interface{}{"John Smith", "Alice Mince"}},
		{"notin", L("id__notin", []int{1, 2, 3}), []interface{}{"Bob Tob", "Joey Tribiani"}},
		{"startswith", L("name__startswith", "jo"), []interface{}{"Joe Doe", "John Smith", "Joey Tribiani"}},
		{"istartswith", L("name__istartswith", "AL"), []interface{}{"Alice Mince"}},
		{"endswith", L("name__endswith", "OB"), []interface{}{"Bob Tob"}},
		{"iendswith", L("name__iendswith", "e"), []interface{}{"Joe Doe", "Alice Mince"}},
		{"lookups", Lookups{"name__have": "jo", "id__gt": 1}, []interface{}{"John Smith", "Joey Tribiani"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(t, users.Filter(tt.cond)))
		})
	}
}

func TestQuerySet_QTrees(t *testing.T) {
	b := seedUsers(t)
	users := b.orm.Objects(b.user)

	either := Or(L("name__have", "alice"), L("name__have", "bob"))
	assert.Equal(t, []interface{}{"Alice Mince", "Bob Tob"}, names(t, users.Filter(either)))

	assert.Equal(t, []interface{}{"Alice Mince", "Bob Tob"}, names(t, users.Filter(Not(L("name__have", "jo")))))
	assert.Equal(t, []interface{}{"Alice Mince", "Bob Tob"}, names(t, users.Exclude(Lookups{"name__have": "jo"})))

	// the complement is taken within the current filter
	scoped := users.Filter(L("id__gt", 1)).Filter(L("name__have", "jo").Not())
	assert.Equal(t, []interface{}{"Alice Mince", "Bob Tob"}, names(t, scoped))

	nested := L("name__have", "jo").And(Or(L("id", 1), L("id", 5)))
	assert.Equal(t, []interface{}{"Joe Doe", "Joey Tribiani"}, names(t, users.Filter(nested)))
}

func TestQuerySet_Search(t *testing.T) {
	b := seedUsers(t)
	users := b.orm.Objects(b.user)

	assert.Equal(t, []interface{}{"Bob Tob"}, names(t, users.Search(Lookups{"name": "TOB", "description": "tob"})))
	assert.Equal(t, []interface{}{"Joe Doe", "Alice Mince", "Bob Tob"},
		names(t, users.Search(Lookups{"name__endswith": "e", "name__startswith": "bob"})))

	// only pattern operators can be searched
	assert.ErrorIs(t, users.Search(Lookups{"id__eq": 4}).Err(), ErrUsage)
}

func TestQuerySet_UsageErrorsAreImmediate(t *testing.T) {
	b := seedUsers(t)
	ctx := context.Background()
	users := b.orm.Objects(b.user)

	tests := []struct {
		name string
		qs   *QuerySet
	}{
		{"unknown operator", users.Filter(Lookups{"name__like": "x"})},
		{"unknown field", users.Filter(L("nickname", "x"))},
		{"in without slice", users.Filter(L("id__in", 3))},
		{"unknown order", users.OrderBy("-nickname")},
		{"negative limit", users.All().Limit(-1)},
		{"negative slice", users.All().Slice(-1, 2)},
		{"select related collection", users.SelectRelated("posts")},
		{"unknown prefetch", users.PrefetchRelated("friends")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.qs.Err(), ErrUsage)
			// the error sticks through chaining and terminals
			_, err := tt.qs.Filter(L("id", 1)).Count(ctx)
			assert.ErrorIs(t, err, ErrUsage)
		})
	}

	_, err := users.All().FlatValuesList(ctx, "id", "name")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestQuerySet_IsImmutable(t *testing.T) {
	b := seedUsers(t)
	ctx := context.Background()

	base := b.orm.Objects(b.user).Filter(L("name__have", "jo"))
	narrowed := base.Filter(L("id__gt", 1)).OrderBy("-id").Slice(0, 1)
	_ = base.Exclude(L("id", 1))

	n, err := base.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []interface{}{"Joey Tribiani"}, names(t, narrowed))
}

func TestQuerySet_Ordering(t *testing.T) {
	b := seedUsers(t)
	ctx := context.Background()
	users := b.orm.Objects(b.user)

	assert.Equal(t, []interface{}{"John Smith", "Joey Tribiani", "Joe Doe", "Bob Tob", "Alice Mince"},
		names(t, users.OrderBy("-name")))

	first, err := users.OrderBy("-name").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", first.Get("name"))

	last, err := users.OrderBy("-name").Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice Mince", last.Get("name"))

	last, err = users.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Joey Tribiani", last.Get("name"))

	_, err = users.Filter(L("name", "nobody")).First(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuerySet_Slicing(t *testing.T) {
	b := seedUsers(t)
	ctx := context.Background()
	all := b.orm.Objects(b.user).All()

	assert.Equal(t, []interface{}{"John Smith", "Alice Mince"}, names(t, all.Slice(1, 3)))
	assert.Equal(t, []interface{}{"Alice Mince"}, names(t, all.Slice(1, 3).Slice(1, 5)))
	assert.Equal(t, []interface{}{"Bob Tob", "Joey Tribiani"}, names(t, all.Slice(3, -1)))
	assert.Empty(t, names(t, all.Slice(3, 2)))
	assert.Equal(t, []interface{}{"John Smith"}, names(t, all.Offset(1).Limit(1)))

	u, err := all.At(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Alice Mince", u.Get("name"))

	u, err = all.At(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, "Joey Tribiani", u.Get("name"))

	_, err = all.At(ctx, 5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = all.At(ctx, -6)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	stepped, err := all.SliceStep(ctx, 0, -1, 2)
	require.NoError(t, err)
	require.Len(t, stepped, 3)
	assert.Equal(t, "Joe Doe", stepped[0].Get("name"))
	assert.Equal(t, "Alice Mince", stepped[1].Get("name"))
	assert.Equal(t, "Joey Tribiani", stepped[2].Get("name"))

	_, err = all.SliceStep(ctx, 0, 2, 0)
	assert.ErrorIs(t, err, ErrUsage)
}

func TestQuerySet_Get(t *testing.T) {
	b := seedUsers(t)
	ctx := context.Background()
	users := b.orm.Objects(b.user)

	u, err := users.Get(ctx, L("name", "Bob Tob"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), u.ID())
	assert.True(t, u.Persisted())

	_, err = users.Get(ctx, Lookups{"name__have": "jo"})
	assert.ErrorIs(t, err, ErrMultipleObjects)

	_, err = users.Get(ctx, L("name", "Nobody"))
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := users.Exists(ctx, L("name", "Bob Tob"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = users.Exists(ctx, L("name", "Nobody"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuerySet_Values(t *testing.T) {
	b := seedUsers(t)
	ctx := context.Background()
	qs := b.orm.Objects(b.user).Filter(L("id__lte", 2))

	values, err := qs.Values(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, []Values{{"name": "Joe Doe"}, {"name": "John Smith"}}, values)

	tuples, err := qs.ValuesList(ctx, "id", "name")
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{int64(1), "Joe Doe"}, {int64(2), "John Smith"}}, tuples)

	// tuples follow the requested field order
	tuples, err = qs.ValuesList(ctx, "name", "id")
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"Joe Doe", int64(1)}, {"John Smith", int64(2)}}, tuples)

	full, err := qs.ValuesList(ctx)
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.Equal(t, []interface{}{int64(1), "Joe Doe"}, full[0][:2])

	maps, err := qs.Values(ctx)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, true, maps[0]["active"])
	assert.Nil(t, maps[0]["email"])
}

func TestQuerySet_Iter(t *testing.T) {
	b := seedUsers(t)

	var seen []interface{}
	for u, err := range b.orm.Objects(b.user).Filter(L("id__gt", 3)).Iter(context.Background()) {
		require.NoError(t, err)
		seen = append(seen, u.Get("name"))
	}
	assert.Equal(t, []interface{}{"Bob Tob", "Joey Tribiani"}, seen)
}

func TestQuerySet_DateAndTimeLookups(t *testing.T) {
	ctx := context.Background()
	o, err := Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })

	models, err := o.Register(schema.Declaration{
		Name: "Event",
		Fields: []*schema.Field{
			schema.Char("name", 50),
			schema.Date("day"),
			schema.Time("opens"),
		},
	})
	require.NoError(t, err)
	require.NoError(t, o.Migrate(ctx))
	events := o.Objects(models[0])

	jan := func(d, hour int) time.Time { return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC) }
	clock := func(hour int) time.Time { return time.Date(0, 1, 1, hour, 30, 0, 0, time.UTC) }
	for i, name := range []string{"kickoff", "review", "retro"} {
		_, err := events.Create(ctx, Values{"name": name, "day": jan(i+1, 0), "opens": clock(9 + i)})
		require.NoError(t, err)
	}

	// a filter value keeps matching when it carries a time of day
	tests := []struct {
		name string
		cond Condition
		want []interface{}
	}{
		{"date eq", L("day", jan(1, 15)), []interface{}{"kickoff"}},
		{"date lt", L("day__lt", jan(2, 0)), []interface{}{"kickoff"}},
		{"date lte", L("day__lte", jan(2, 0)), []interface{}{"kickoff", "review"}},
		{"date gt", L("day__gt", jan(2, 8)), []interface{}{"retro"}},
		{"date gte", L("day__gte", jan(2, 8)), []interface{}{"review", "retro"}},
		{"date in", L("day__in", []time.Time{jan(1, 0), jan(3, 0)}), []interface{}{"kickoff", "retro"}},
		{"date notin", L("day__notin", []time.Time{jan(1, 0)}), []interface{}{"review", "retro"}},
		{"time eq", L("opens", clock(10)), []interface{}{"review"}},
		{"time gt", L("opens__gt", clock(9)), []interface{}{"review", "retro"}},
		{"time in", L("opens__in", []time.Time{clock(9), clock(11)}), []interface{}{"kickoff", "retro"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(t, events.Filter(tt.cond)))
		})
	}

	got, err := events.Get(ctx, L("day", jan(2, 0)))
	require.NoError(t, err)
	assert.Equal(t, "review", got.Get("name"))
}

func TestManager_Values(t *testing.T) {
	b := seedUsers(t)
	ctx := context.Background()
	users := b.orm.Objects(b.user)

	values, err := users.Values(ctx, "name")
	require.NoError(t, err)
	require.Len(t, values, 5)
	assert.Equal(t, Values{"name": "Joe Doe"}, values[0])

	tuples, err := users.ValuesList(ctx, "name", "id")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Bob Tob", int64(4)}, tuples[3])

	flat, err := users.FlatValuesList(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3), int64(4), int64(5)}, flat)

	_, err = users.FlatValuesList(ctx, "id", "name")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestManager_GetOrCreate(t *testing.T) {
	b := newBlog(t)
	ctx := context.Background()
	tags := b.orm.Objects(b.tag)

	first, created, err := tags.GetOrCreate(ctx, Lookups{"name": "go"}, nil)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, first.ID())

	again, created, err := tags.GetOrCreate(ctx, Lookups{"name": "go"}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID(), again.ID())
	assert.Equal(t, int64(1), b.count(t, b.tag))

	_, _, err = tags.GetOrCreate(ctx, Lookups{"name__like": "go"}, nil)
	assert.ErrorIs(t, err, ErrUsage)
}
