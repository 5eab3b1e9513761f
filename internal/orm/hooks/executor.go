package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Executor executes lifecycle hooks for models
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor creates a new hook executor with an empty registry
func NewExecutor(logger *zap.Logger) *Executor {
	return NewExecutorWithRegistry(NewRegistry(), logger)
}

// NewExecutorWithRegistry creates a new hook executor with an existing registry
func NewExecutorWithRegistry(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// Register registers a hook for model
func (e *Executor) Register(model *schema.Model, hookType Type, name string, fn Func) {
	e.registry.Register(model, hookType, name, fn)
}

// Registry returns the hook registry
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Run executes the hooks of model for hookType in order and stops at the
// first failure.
func (e *Executor) Run(ctx context.Context, model *schema.Model, hookType Type, exec crud.Executor, record schema.Record) error {
	hooks := e.registry.GetHooks(model, hookType)
	if len(hooks) == 0 {
		return nil
	}

	hookCtx := NewContext(ctx, model, exec)
	for _, hook := range hooks {
		e.logger.Debug("running hook",
			zap.String("model", model.FullName()),
			zap.Stringer("type", hookType),
			zap.String("name", hook.Name))
		if err := hook.Fn(hookCtx, record); err != nil {
			if hook.Name != "" {
				return fmt.Errorf("hook %s %s failed: %w", hookType, hook.Name, err)
			}
			return fmt.Errorf("hook %s failed: %w", hookType, err)
		}
	}
	return nil
}
