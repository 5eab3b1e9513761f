package relationships

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/dialect"
)

func newJunction(t *testing.T, d dialect.Dialect, public string) (*Junction, sqlmock.Sqlmock) {
	t.Helper()
	b := newBlog(t)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	owner := b.group
	if public == "groups" {
		owner = b.user
	}
	rel, ok := owner.ResolveRelation(public)
	require.True(t, ok)
	j, err := NewJunction(rel, db, d, nil)
	require.NoError(t, err)
	return j, mock
}

func TestJunction_Link(t *testing.T) {
	j, mock := newJunction(t, dialect.PostgresDialect{}, "members")

	stmt := regexp.QuoteMeta(`INSERT INTO "group_members" ("group_id", "user_id") VALUES ($1, $2) ON CONFLICT DO NOTHING`)
	mock.ExpectExec(stmt).WithArgs(int64(1), int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(stmt).WithArgs(int64(1), int64(8)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, j.Link(context.Background(), int64(1), int64(7), int64(8)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJunction_ReverseSideSharesTable(t *testing.T) {
	j, mock := newJunction(t, dialect.SQLiteDialect{}, "groups")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT OR IGNORE INTO "group_members" ("user_id", "group_id") VALUES (?, ?)`)).
		WithArgs(int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, j.Link(context.Background(), int64(7), int64(1)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJunction_Unlink(t *testing.T) {
	j, mock := newJunction(t, dialect.SQLiteDialect{}, "members")

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "group_members" WHERE "group_id" = ? AND "user_id" IN (?, ?)`)).
		WithArgs(int64(1), int64(7), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "group_members" WHERE "group_id" = ?`)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, j.Unlink(ctx, int64(1), int64(7), int64(8)))
	require.NoError(t, j.Unlink(ctx, int64(1)))
	require.NoError(t, j.Clear(ctx, int64(1)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJunction_ErrorsAreConverted(t *testing.T) {
	j, mock := newJunction(t, dialect.SQLiteDialect{}, "members")

	mock.ExpectExec("INSERT").WillReturnError(errors.New("FOREIGN KEY constraint failed"))

	err := j.Link(context.Background(), int64(1), int64(99))
	assert.ErrorIs(t, err, crud.ErrForeignKeyViolation)
}

func TestNewJunction_RejectsScalarRelations(t *testing.T) {
	b := newBlog(t)
	rel, _ := b.post.Relation("author")
	_, err := NewJunction(rel, nil, dialect.SQLiteDialect{}, nil)
	assert.ErrorIs(t, err, ErrInvalidRelationType)
}
