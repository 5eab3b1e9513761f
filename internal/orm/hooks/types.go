// Package hooks runs the lifecycle callbacks registered on models around
// instance saves and deletes.
package hooks

import (
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Type identifies a point in an instance's lifecycle
type Type int

const (
	// BeforeSave runs after defaults and validation, before the row is written
	BeforeSave Type = iota
	// AfterSave runs once the row is written and before commit
	AfterSave
	// BeforeDelete runs before the row is removed
	BeforeDelete
	// AfterDelete runs once the row is removed and before commit
	AfterDelete
)

// String returns the string representation of the hook type
func (t Type) String() string {
	switch t {
	case BeforeSave:
		return "before_save"
	case AfterSave:
		return "after_save"
	case BeforeDelete:
		return "before_delete"
	case AfterDelete:
		return "after_delete"
	default:
		return "unknown"
	}
}

// Func is a hook callback. A non-nil error aborts the operation and rolls
// back the unit of work.
type Func func(ctx *Context, record schema.Record) error

// Hook represents a registered lifecycle hook
type Hook struct {
	Type Type
	Name string
	Fn   Func
}

// Registry holds the hooks of every model, keyed by fully-qualified model
// name. Registration is expected to happen during setup, before hooks run.
type Registry struct {
	hooks map[string]map[Type][]*Hook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[string]map[Type][]*Hook),
	}
}

// Register adds a hook for model
func (r *Registry) Register(model *schema.Model, hookType Type, name string, fn Func) {
	key := model.FullName()
	if r.hooks[key] == nil {
		r.hooks[key] = make(map[Type][]*Hook)
	}
	r.hooks[key][hookType] = append(r.hooks[key][hookType], &Hook{Type: hookType, Name: name, Fn: fn})
}

// GetHooks returns the hooks of model for a given type, in registration order
func (r *Registry) GetHooks(model *schema.Model, hookType Type) []*Hook {
	return r.hooks[model.FullName()][hookType]
}

// HasHooks returns true if model has hooks of the given type
func (r *Registry) HasHooks(model *schema.Model, hookType Type) bool {
	return len(r.GetHooks(model, hookType)) > 0
}

// Reset removes every hook
func (r *Registry) Reset() {
	r.hooks = make(map[string]map[Type][]*Hook)
}
