//go:build integration

package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

func openPostgres(t *testing.T) *ORM {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("apexorm"),
		postgres.WithUsername("apexorm"),
		postgres.WithPassword("apexorm"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	o, err := Open(ctx, "pgx", dsn, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o
}

func TestPostgres_EndToEnd(t *testing.T) {
	o := openPostgres(t)
	ctx := context.Background()

	models, err := o.Register(
		schema.Declaration{
			Name: "Member",
			Fields: []*schema.Field{
				schema.UUID("id", schema.PrimaryKey()),
				schema.Char("name", 100, schema.Required(), schema.Unique()),
				schema.Text("description"),
			},
		},
		schema.Declaration{
			Name:   "Club",
			Fields: []*schema.Field{schema.Char("title", 100, schema.Required())},
			Relations: []*schema.Relationship{
				schema.ManyToManyTo("members", schema.Ref("Member"), schema.RelatedName("clubs")),
			},
		},
	)
	require.NoError(t, err)
	require.NoError(t, o.Migrate(ctx))
	require.NoError(t, o.CheckConnection(ctx))
	members, clubs := o.Objects(models[0]), o.Objects(models[1])

	var created []*Instance
	for _, name := range []string{"Joe Doe", "John Smith", "Alice Mince", "Bob Tob", "Joey Tribiani"} {
		m, err := members.Create(ctx, Values{"name": name})
		require.NoError(t, err)
		created = append(created, m)
	}

	n, err := members.Filter(Lookups{"name__have": "jo"}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = members.Create(ctx, Values{"name": "Joe Doe"})
	assert.ErrorIs(t, err, ErrUniqueViolation)

	club, err := clubs.Create(ctx, Values{"title": "chess"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), club.ID())

	m, err := club.M2M(ctx, "members")
	require.NoError(t, err)
	require.NoError(t, m.Add(ctx, created[0], created[2]))

	names, err := m.OrderBy("name").FlatValuesList(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Alice Mince", "Joe Doe"}, names)

	back, err := created[2].M2M(ctx, "clubs")
	require.NoError(t, err)
	assert.Equal(t, 1, back.Len())

	require.NoError(t, club.Delete(ctx))
	n, err = back.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
