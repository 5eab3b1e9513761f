package hooks

import (
	"context"

	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Context wraps the standard context with the model being written and the
// executor of the current unit of work, so hooks can issue their own
// statements inside the same transaction.
type Context struct {
	context.Context
	model *schema.Model
	exec  crud.Executor
}

// NewContext creates a new hook context
func NewContext(ctx context.Context, model *schema.Model, exec crud.Executor) *Context {
	return &Context{
		Context: ctx,
		model:   model,
		exec:    exec,
	}
}

// Model returns the model of the record
func (c *Context) Model() *schema.Model {
	return c.model
}

// Exec returns the executor of the current unit of work
func (c *Context) Exec() crud.Executor {
	return c.exec
}
