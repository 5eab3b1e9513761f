package orm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Manager is the entry point for querying and creating instances of one
// model. Its query methods start from an unfiltered QuerySet.
type Manager struct {
	orm   *ORM
	model *schema.Model
}

// Model returns the managed model
func (m *Manager) Model() *schema.Model {
	return m.model
}

// All returns a query set over every row
func (m *Manager) All() *QuerySet {
	return newQuerySet(m.orm, m.model)
}

// Filter returns the rows matching every condition
func (m *Manager) Filter(conds ...Condition) *QuerySet {
	return m.All().Filter(conds...)
}

// Exclude returns the rows not matching the conditions
func (m *Manager) Exclude(conds ...Condition) *QuerySet {
	return m.All().Exclude(conds...)
}

// Search returns the rows matching any lookup
func (m *Manager) Search(l Lookups) *QuerySet {
	return m.All().Search(l)
}

// OrderBy returns every row in the given order
func (m *Manager) OrderBy(fields ...string) *QuerySet {
	return m.All().OrderBy(fields...)
}

// SelectRelated returns every row with forward relations joined in
func (m *Manager) SelectRelated(paths ...string) *QuerySet {
	return m.All().SelectRelated(paths...)
}

// PrefetchRelated returns every row with relations batch loaded
func (m *Manager) PrefetchRelated(paths ...string) *QuerySet {
	return m.All().PrefetchRelated(paths...)
}

// Get returns the single instance matching conds
func (m *Manager) Get(ctx context.Context, conds ...Condition) (*Instance, error) {
	return m.All().Get(ctx, conds...)
}

// First returns the instance with the lowest primary key
func (m *Manager) First(ctx context.Context) (*Instance, error) {
	return m.All().First(ctx)
}

// Last returns the instance with the highest primary key
func (m *Manager) Last(ctx context.Context) (*Instance, error) {
	return m.All().Last(ctx)
}

// Count returns the number of rows
func (m *Manager) Count(ctx context.Context) (int64, error) {
	return m.All().Count(ctx)
}

// Exists reports whether any row matches conds
func (m *Manager) Exists(ctx context.Context, conds ...Condition) (bool, error) {
	return m.All().Filter(conds...).Exists(ctx)
}

// Values returns one map per row holding fields, or every column
func (m *Manager) Values(ctx context.Context, fields ...string) ([]Values, error) {
	return m.All().Values(ctx, fields...)
}

// ValuesList returns one tuple per row holding fields in the order given
func (m *Manager) ValuesList(ctx context.Context, fields ...string) ([][]interface{}, error) {
	return m.All().ValuesList(ctx, fields...)
}

// FlatValuesList returns the values of a single field
func (m *Manager) FlatValuesList(ctx context.Context, fields ...string) ([]interface{}, error) {
	return m.All().FlatValuesList(ctx, fields...)
}

// New builds an unsaved instance. Fields missing from values get their
// defaults; unknown keys are a usage error.
func (m *Manager) New(values Values) (*Instance, error) {
	inst := newInstance(m.orm, m.model)
	for _, f := range m.model.Fields {
		if _, given := values[f.Name]; given {
			continue
		}
		var v interface{}
		if f.HasDefault() {
			v = f.DefaultValue()
		}
		inst.values[f.Name] = v
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !m.model.HasMember(k) {
			return nil, fmt.Errorf("%w: %s has no attribute %q", ErrUsage, m.model.Name, k)
		}
		if err := inst.Set(k, values[k]); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Create builds and saves an instance
func (m *Manager) Create(ctx context.Context, values Values, opts ...SaveOption) (*Instance, error) {
	inst, err := m.New(values)
	if err != nil {
		return nil, err
	}
	if err := inst.Save(ctx, opts...); err != nil {
		return nil, err
	}
	return inst, nil
}

// GetOrCreate returns the instance matching lookups, creating it with
// lookups and defaults when none exists.
func (m *Manager) GetOrCreate(ctx context.Context, lookups Lookups, defaults Values) (*Instance, bool, error) {
	inst, err := m.Get(ctx, lookups)
	if err == nil {
		return inst, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	values := make(Values, len(lookups)+len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	for k, v := range lookups {
		values[k] = v
	}
	inst, err = m.Create(ctx, values)
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}
