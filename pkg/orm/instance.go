package orm

import (
	"context"
	"errors"
	"fmt"

	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/hooks"
	"github.com/apexorm/apexorm/internal/orm/relationships"
	"github.com/apexorm/apexorm/internal/orm/schema"
	"github.com/apexorm/apexorm/internal/orm/tracking"
	"github.com/apexorm/apexorm/internal/orm/validation"
)

// Instance is one row of a model. Instances are created by Manager.New or
// loaded by a QuerySet and are not safe for concurrent use.
type Instance struct {
	orm     *ORM
	model   *schema.Model
	values  map[string]interface{}
	tracker *tracking.ChangeTracker

	// related caches scalar relations by relation name; a present nil
	// entry means the relation was loaded and is empty.
	related map[string]*Instance
	// collections caches reverse and many-to-many relations by relation name
	collections map[string][]*Instance
	managers    map[string]*ManyToMany
}

func newInstance(o *ORM, m *schema.Model) *Instance {
	return &Instance{
		orm:         o,
		model:       m,
		values:      make(map[string]interface{}, len(m.Fields)),
		tracker:     tracking.NewChangeTracker(),
		related:     make(map[string]*Instance),
		collections: make(map[string][]*Instance),
		managers:    make(map[string]*ManyToMany),
	}
}

// load builds a persisted instance from a decoded row
func (o *ORM) load(m *schema.Model, row crud.Row) *Instance {
	inst := newInstance(o, m)
	for _, f := range m.Fields {
		inst.values[f.Name] = row[f.Name]
	}
	inst.tracker.Snapshot(inst.values)
	return inst
}

// Model returns the instance's model
func (i *Instance) Model() *schema.Model {
	return i.model
}

// ID returns the primary key value, nil until the instance is saved
func (i *Instance) ID() interface{} {
	return i.values[i.model.PrimaryKey().Name]
}

// PrimaryKeyValue lets instances be used as lookup values
func (i *Instance) PrimaryKeyValue() interface{} {
	return i.ID()
}

// Persisted reports whether the instance has a stored row
func (i *Instance) Persisted() bool {
	return i.tracker.Persisted()
}

// Values returns a copy of the column values
func (i *Instance) Values() Values {
	v := make(Values, len(i.values))
	for k, x := range i.values {
		v[k] = x
	}
	return v
}

// Changed reports whether field differs from its stored value
func (i *Instance) Changed(field string) bool {
	return i.tracker.Changed(i.values, field)
}

// String returns "<Model pk>"
func (i *Instance) String() string {
	if id := i.ID(); id != nil {
		return fmt.Sprintf("<%s %v>", i.model.Name, id)
	}
	return fmt.Sprintf("<%s unsaved>", i.model.Name)
}

// Get returns a column value, a loaded scalar relation as *Instance or a
// loaded collection as []*Instance. Unknown or unloaded members are nil.
func (i *Instance) Get(name string) interface{} {
	if _, ok := i.model.Field(name); ok {
		return i.values[name]
	}
	rel, ok := i.model.ResolveRelation(name)
	if !ok {
		return nil
	}
	if rel.Collection() {
		if items, loaded := i.collections[rel.Name]; loaded {
			return items
		}
		return nil
	}
	if r := i.related[rel.Name]; r != nil {
		return r
	}
	return nil
}

// Set assigns a column or a forward relation. Forward relations accept an
// *Instance of the target model or nil. Collections are changed through
// M2M.
func (i *Instance) Set(name string, value interface{}) error {
	if f, ok := i.model.Field(name); ok {
		if f.PrimaryKey && i.Persisted() && !equalKeys(value, i.ID()) {
			return fmt.Errorf("%w: cannot change the primary key of a saved %s", ErrUsage, i.model.Name)
		}
		if f.Relation != "" {
			if r, loaded := i.related[f.Relation]; loaded && (r == nil || !equalKeys(r.ID(), value)) {
				delete(i.related, f.Relation)
			}
		}
		i.values[name] = value
		return nil
	}

	rel, ok := i.model.Relation(name)
	if !ok || !rel.Forward() {
		if ok || i.model.HasMember(name) {
			return fmt.Errorf("%w: %s.%s cannot be assigned", ErrUsage, i.model.Name, name)
		}
		return fmt.Errorf("%w: %s has no attribute %q", ErrUsage, i.model.Name, name)
	}

	switch v := value.(type) {
	case nil:
		i.related[rel.Name] = nil
		i.values[rel.Column] = nil
	case *Instance:
		if v == nil {
			i.related[rel.Name] = nil
			i.values[rel.Column] = nil
			return nil
		}
		if v.model != rel.Target.Model() {
			return fmt.Errorf("%w: %s.%s expects a %s, got a %s",
				ErrUsage, i.model.Name, name, rel.Target.Name(), v.model.Name)
		}
		i.related[rel.Name] = v
		i.values[rel.Column] = v.ID()
	default:
		return fmt.Errorf("%w: %s.%s expects an instance, got %T", ErrUsage, i.model.Name, name, value)
	}
	return nil
}

// SaveOption changes how Save and Delete end
type SaveOption func(*saveConfig)

type saveConfig struct {
	commit bool
}

// NoCommit leaves the write pending in the unit of work
func NoCommit() SaveOption {
	return func(c *saveConfig) {
		c.commit = false
	}
}

func newSaveConfig(opts []SaveOption) saveConfig {
	c := saveConfig{commit: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Save inserts or updates the instance. Unsaved forward relations are
// saved first. Any failure rolls back the unit of work.
func (i *Instance) Save(ctx context.Context, opts ...SaveOption) error {
	cfg := newSaveConfig(opts)
	if err := i.orm.bound(); err != nil {
		return err
	}
	if err := i.save(ctx, make(map[*Instance]bool)); err != nil {
		return i.orm.abort(err)
	}
	if cfg.commit {
		return i.orm.commit()
	}
	return nil
}

func (i *Instance) save(ctx context.Context, visiting map[*Instance]bool) error {
	if visiting[i] {
		return fmt.Errorf("%w: circular reference between unsaved %s instances", ErrUsage, i.model.Name)
	}
	visiting[i] = true
	defer delete(visiting, i)

	i.applyDefaults()
	if err := i.validate(); err != nil {
		return err
	}
	if err := i.syncRelations(ctx, visiting); err != nil {
		return err
	}
	if i.model.Clean != nil {
		if err := i.model.Clean(i); err != nil {
			if errors.Is(err, ErrValidationFailed) {
				return err
			}
			return fmt.Errorf("%w: %s: %w", ErrValidationFailed, i.model.Name, err)
		}
	}

	o := i.orm
	if err := o.hooks.Run(ctx, i.model, hooks.BeforeSave, o.session, i); err != nil {
		return err
	}

	o.uow.record(i)
	ops := crud.NewOperations(i.model, o.session, o.dialect)
	pk := i.model.PrimaryKey().Name
	if !i.Persisted() {
		id, err := ops.Insert(ctx, crud.Row(i.values))
		if err != nil {
			return err
		}
		i.values[pk] = id
	} else {
		changes := i.tracker.ChangedData(i.values)
		delete(changes, pk)
		if len(changes) > 0 {
			n, err := ops.Update(ctx, i.ID(), crud.Row(changes))
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %s", ErrNotFound, i)
			}
		}
	}
	i.tracker.Snapshot(i.values)

	return o.hooks.Run(ctx, i.model, hooks.AfterSave, o.session, i)
}

func (i *Instance) applyDefaults() {
	for _, f := range i.model.Fields {
		if i.values[f.Name] == nil && f.HasDefault() {
			i.values[f.Name] = f.DefaultValue()
		}
	}
}

// validate runs the validators of every present value and reports every
// failing field in declaration order. Foreign-key columns are checked by
// syncRelations instead.
func (i *Instance) validate() error {
	errs := &validation.Errors{Model: i.model.Name}
	for _, f := range i.model.Fields {
		v := i.values[f.Name]
		if v == nil {
			if !f.Nullable && f.Relation == "" && !f.AutoIncrement {
				errs.Add(f.Name, validation.ErrRequired)
			}
			continue
		}
		if err := validation.Run(i.model.Name, f.Name, v, f.Validators); err != nil {
			errs.Add(f.Name, err)
		}
	}
	return errs.Err()
}

// syncRelations saves unsaved related instances and copies their keys into
// the foreign-key columns.
func (i *Instance) syncRelations(ctx context.Context, visiting map[*Instance]bool) error {
	for _, rel := range i.model.Relations {
		if !rel.Forward() {
			continue
		}
		if r := i.related[rel.Name]; r != nil {
			if !r.Persisted() {
				if err := r.save(ctx, visiting); err != nil {
					return err
				}
			}
			i.values[rel.Column] = r.ID()
		}
		if i.values[rel.Column] == nil && !rel.Nullable {
			return fmt.Errorf("%w: %s.%s", ErrRequiredRelation, i.model.Name, rel.Name)
		}
	}
	return nil
}

// Delete removes the row and its many-to-many links. Any failure rolls
// back the unit of work.
func (i *Instance) Delete(ctx context.Context, opts ...SaveOption) error {
	cfg := newSaveConfig(opts)
	if err := i.orm.bound(); err != nil {
		return err
	}
	if !i.Persisted() {
		return fmt.Errorf("%w: cannot delete an unsaved %s", ErrUsage, i.model.Name)
	}
	if err := i.delete(ctx); err != nil {
		return i.orm.abort(err)
	}
	if cfg.commit {
		return i.orm.commit()
	}
	return nil
}

func (i *Instance) delete(ctx context.Context) error {
	o := i.orm
	if err := o.hooks.Run(ctx, i.model, hooks.BeforeDelete, o.session, i); err != nil {
		return err
	}

	for _, rel := range i.model.Relations {
		if rel.Kind != schema.ManyToMany {
			continue
		}
		j, err := relationships.NewJunction(rel, o.session, o.dialect, o.logger)
		if err != nil {
			return err
		}
		if err := j.Clear(ctx, i.ID()); err != nil {
			return err
		}
	}

	o.uow.record(i)
	n, err := crud.NewOperations(i.model, o.session, o.dialect).Delete(ctx, i.ID())
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, i)
	}
	i.tracker.Forget()
	if pk := i.model.PrimaryKey(); pk.AutoIncrement {
		i.values[pk.Name] = nil
	}
	i.collections = make(map[string][]*Instance)

	return o.hooks.Run(ctx, i.model, hooks.AfterDelete, o.session, i)
}

// Refresh reloads the column values and drops cached relations
func (i *Instance) Refresh(ctx context.Context) error {
	if err := i.orm.bound(); err != nil {
		return err
	}
	if !i.Persisted() {
		return fmt.Errorf("%w: cannot refresh an unsaved %s", ErrUsage, i.model.Name)
	}
	row, err := crud.NewOperations(i.model, i.orm.session, i.orm.dialect).Find(ctx, i.ID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, i)
		}
		return i.orm.abort(err)
	}
	for _, f := range i.model.Fields {
		i.values[f.Name] = row[f.Name]
	}
	i.tracker.Snapshot(i.values)
	i.related = make(map[string]*Instance)
	i.collections = make(map[string][]*Instance)
	return nil
}

// Related returns a scalar relation, loading it on first access. It is nil
// when no row is related.
func (i *Instance) Related(ctx context.Context, name string) (*Instance, error) {
	rel, ok := i.model.Relation(name)
	if !ok || rel.Collection() {
		return nil, fmt.Errorf("%w: %s.%s is not a scalar relation", ErrUsage, i.model.Name, name)
	}
	if r, loaded := i.related[rel.Name]; loaded {
		return r, nil
	}

	target := rel.Target.Model()
	if target == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnresolvedRelation, i.model.Name, name)
	}
	var qs *QuerySet
	switch rel.Kind {
	case schema.ReverseOneToOne:
		if i.ID() == nil {
			return nil, nil
		}
		qs = i.orm.Objects(target).Filter(L(rel.RemoteColumn, i.ID()))
	default:
		fk := i.values[rel.Column]
		if fk == nil {
			return nil, nil
		}
		qs = i.orm.Objects(target).Filter(L(target.PrimaryKey().Name, fk))
	}

	r, err := qs.First(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	i.related[rel.Name] = r
	return r, nil
}

// Collection returns a reverse foreign-key or many-to-many relation,
// loading it on first access.
func (i *Instance) Collection(ctx context.Context, name string) ([]*Instance, error) {
	rel, ok := i.model.ResolveRelation(name)
	if !ok || !rel.Collection() {
		return nil, fmt.Errorf("%w: %s.%s is not a collection", ErrUsage, i.model.Name, name)
	}
	if items, loaded := i.collections[rel.Name]; loaded {
		return items, nil
	}
	if !i.Persisted() {
		return nil, nil
	}
	qs, err := i.RelatedSet(name)
	if err != nil {
		return nil, err
	}
	items, err := qs.All(ctx)
	if err != nil {
		return nil, err
	}
	i.collections[rel.Name] = items
	return items, nil
}

// RelatedSet returns a query set over a reverse foreign-key or many-to-many
// relation. It always reads the database.
func (i *Instance) RelatedSet(name string) (*QuerySet, error) {
	rel, ok := i.model.ResolveRelation(name)
	if !ok || !rel.Collection() {
		return nil, fmt.Errorf("%w: %s.%s is not a collection", ErrUsage, i.model.Name, name)
	}
	target := rel.Target.Model()
	if target == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnresolvedRelation, i.model.Name, name)
	}
	if rel.Kind == schema.ManyToMany {
		return i.orm.Objects(target).All().scopedTo(rel, i.ID()), nil
	}
	return i.orm.Objects(target).Filter(L(rel.RemoteColumn, i.ID())), nil
}

// M2M returns the many-to-many manager of a relation, loading its
// collection on first access. The manager is created once per instance
// and relation.
func (i *Instance) M2M(ctx context.Context, name string) (*ManyToMany, error) {
	rel, ok := i.model.ResolveRelation(name)
	if !ok || rel.Kind != schema.ManyToMany {
		return nil, fmt.Errorf("%w: %s.%s is not a many-to-many relation", ErrUsage, i.model.Name, name)
	}
	if m, ok := i.managers[rel.Name]; ok {
		return m, nil
	}
	j, err := relationships.NewJunction(rel, i.orm.session, i.orm.dialect, i.orm.logger)
	if err != nil {
		return nil, err
	}
	if _, err := i.Collection(ctx, name); err != nil {
		return nil, err
	}
	m := &ManyToMany{owner: i, rel: rel, junction: j}
	i.managers[rel.Name] = m
	return m, nil
}

// SaveFile stores data in the ORM's storage and points field at it. The
// previous file, if any, is deleted. The instance still has to be saved.
func (i *Instance) SaveFile(field, name string, data []byte) error {
	f, err := i.fileField(field)
	if err != nil {
		return err
	}
	if err := validation.Run(i.model.Name, f.Name, name, f.Validators); err != nil {
		return err
	}
	if err := i.DeleteFile(field); err != nil {
		return err
	}
	rel, err := i.orm.storage.Save(f.UploadTo, name, data)
	if err != nil {
		return fmt.Errorf("failed to store %s.%s: %w", i.model.Name, f.Name, err)
	}
	i.values[f.Name] = rel
	return nil
}

// DeleteFile removes the file field points at and clears the field
func (i *Instance) DeleteFile(field string) error {
	f, err := i.fileField(field)
	if err != nil {
		return err
	}
	old, _ := i.values[f.Name].(string)
	if old == "" {
		return nil
	}
	if err := i.orm.storage.Delete(old); err != nil {
		return fmt.Errorf("failed to delete %s.%s: %w", i.model.Name, f.Name, err)
	}
	i.values[f.Name] = nil
	return nil
}

// FileURL returns the URL of the file field points at, or ""
func (i *Instance) FileURL(field string) string {
	f, err := i.fileField(field)
	if err != nil {
		return ""
	}
	p, _ := i.values[f.Name].(string)
	if p == "" {
		return ""
	}
	return i.orm.storage.URL(p)
}

func (i *Instance) fileField(name string) (*schema.Field, error) {
	f, ok := i.model.Field(name)
	if !ok || (f.Kind != schema.KindFile && f.Kind != schema.KindImage) {
		return nil, fmt.Errorf("%w: %s.%s is not a file field", ErrUsage, i.model.Name, name)
	}
	return f, nil
}

func equalKeys(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return relationships.KeyString(a) == relationships.KeyString(b)
}
