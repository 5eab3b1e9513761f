package crud

import (
	"context"
	"database/sql"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Operation represents a write operation type
type Operation int

const (
	// OperationCreate represents an insert
	OperationCreate Operation = iota
	// OperationUpdate represents an update
	OperationUpdate
	// OperationDelete represents a delete
	OperationDelete
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Executor runs statements. *transaction.Session, *sql.DB and *sql.Tx
// satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Operations provides row level reads and writes for one model
type Operations struct {
	model   *schema.Model
	exec    Executor
	dialect dialect.Dialect
}

// NewOperations creates a new Operations instance
func NewOperations(model *schema.Model, exec Executor, d dialect.Dialect) *Operations {
	return &Operations{
		model:   model,
		exec:    exec,
		dialect: d,
	}
}

// Model returns the model the operations act on
func (o *Operations) Model() *schema.Model {
	return o.model
}

// Dialect returns the SQL dialect
func (o *Operations) Dialect() dialect.Dialect {
	return o.dialect
}

func (o *Operations) table() string {
	return o.dialect.Quote(o.model.Table)
}

func (o *Operations) primaryKey() string {
	return o.dialect.Quote(o.model.PrimaryKey().Name)
}

func (o *Operations) key(pk interface{}) (interface{}, error) {
	return query.EncodeValue(o.model.PrimaryKey(), pk)
}
