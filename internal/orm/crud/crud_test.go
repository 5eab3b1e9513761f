package crud

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

func userModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.Declare(schema.Declaration{
		Name: "User",
		Fields: []*schema.Field{
			schema.Char("name", 100, schema.Required()),
			schema.Integer("age"),
		},
	})
	require.NoError(t, err)
	return m
}

func newMockOps(t *testing.T, d dialect.Dialect) (*Operations, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOperations(userModel(t), db, d), mock
}

func TestInsert_Returning(t *testing.T) {
	ops, mock := newMockOps(t, dialect.PostgresDialect{})

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "user" ("name", "age") VALUES ($1, $2) RETURNING "id"`)).
		WithArgs("ann", int64(30)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := ops.Insert(context.Background(), Row{"id": nil, "name": "ann", "age": int64(30)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_LastInsertID(t *testing.T) {
	ops, mock := newMockOps(t, dialect.SQLiteDialect{})

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "user" ("name") VALUES (?)`)).
		WithArgs("bob").
		WillReturnResult(sqlmock.NewResult(12, 1))

	id, err := ops.Insert(context.Background(), Row{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_ExplicitKey(t *testing.T) {
	ops, mock := newMockOps(t, dialect.PostgresDialect{})

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "user" ("id", "name") VALUES ($1, $2)`)).
		WithArgs(int64(99), "cy").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := ops.Insert(context.Background(), Row{"id": int64(99), "name": "cy"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_ConvertsConstraintErrors(t *testing.T) {
	ops, mock := newMockOps(t, dialect.SQLiteDialect{})

	mock.ExpectExec("INSERT").
		WillReturnError(assert.AnError)
	_, err := ops.Insert(context.Background(), Row{"name": "x"})
	assert.ErrorIs(t, err, assert.AnError)

	mock.ExpectExec("INSERT").
		WillReturnError(errString("UNIQUE constraint failed: user.name"))
	_, err = ops.Insert(context.Background(), Row{"name": "x"})
	assert.ErrorIs(t, err, ErrUniqueViolation)
}

func TestUpdate(t *testing.T) {
	ops, mock := newMockOps(t, dialect.PostgresDialect{})

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "user" SET "age" = $1 WHERE "id" = $2`)).
		WithArgs(int64(31), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := ops.Update(context.Background(), int64(7), Row{"age": int64(31), "id": int64(8)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = ops.Update(context.Background(), int64(7), Row{})
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	ops, mock := newMockOps(t, dialect.SQLiteDialect{})

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "user" WHERE "id" = ?`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := ops.Delete(context.Background(), int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFind(t *testing.T) {
	ops, mock := newMockOps(t, dialect.SQLiteDialect{})
	stmt := `SELECT "t0"."id", "t0"."name", "t0"."age" FROM "user" AS "t0" WHERE "t0"."id" = ? ORDER BY "t0"."id" ASC`

	mock.ExpectQuery(regexp.QuoteMeta(stmt)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(1), []byte("ann"), nil))
	mock.ExpectQuery(regexp.QuoteMeta(stmt)).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}))

	row, err := ops.Find(context.Background(), int64(1))
	require.NoError(t, err)
	assert.Equal(t, Row{"id": int64(1), "name": "ann", "age": nil}, row)

	_, err = ops.Find(context.Background(), int64(2))
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAndExists(t *testing.T) {
	ops, mock := newMockOps(t, dialect.SQLiteDialect{})
	st := &query.Statement{Model: ops.Model(), Where: query.L("age__gte", 18)}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "user" AS "t0" WHERE "t0"."age" >= ?`)).
		WithArgs(18).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "user" AS "t0" WHERE "t0"."age" >= ? LIMIT 1`)).
		WithArgs(18).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	n, err := ops.Count(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	ok, err := ops.Exists(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValues(t *testing.T) {
	ops, mock := newMockOps(t, dialect.SQLiteDialect{})
	st := &query.Statement{Model: ops.Model()}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "t0"."name", "t0"."age" FROM "user" AS "t0" ORDER BY "t0"."id" ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "age"}).
			AddRow([]byte("ann"), int64(30)).
			AddRow("bob", []byte("41")))

	rows, err := ops.Values(context.Background(), st, []string{"name", "age"})
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"ann", int64(30)}, {"bob", int64(41)}}, rows)

	_, err = ops.Values(context.Background(), st, []string{"missing"})
	assert.ErrorIs(t, err, ErrUsage)
	require.NoError(t, mock.ExpectationsWereMet())
}

type errString string

func (e errString) Error() string { return string(e) }
