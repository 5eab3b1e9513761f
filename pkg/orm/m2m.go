package orm

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/apexorm/apexorm/internal/orm/relationships"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// ManyToMany manages one many-to-many relation of one instance.
//
// Len, Contains, Index, Slice, Items and Iter read the collection loaded
// when the manager was created. Add, Remove and Clear write the junction
// table, commit and then update the loaded collections on both sides.
// All and the query methods always read the database.
type ManyToMany struct {
	owner    *Instance
	rel      *schema.Relationship
	junction *relationships.Junction
}

// Relation returns the managed relation
func (m *ManyToMany) Relation() *schema.Relationship {
	return m.rel
}

func (m *ManyToMany) items() []*Instance {
	return m.owner.collections[m.rel.Name]
}

// Len returns the number of loaded related instances
func (m *ManyToMany) Len() int {
	return len(m.items())
}

// Contains reports whether item is in the loaded collection
func (m *ManyToMany) Contains(item *Instance) bool {
	return indexOf(m.items(), item) >= 0
}

// Items returns a copy of the loaded collection
func (m *ManyToMany) Items() []*Instance {
	return slices.Clone(m.items())
}

// Iter yields the loaded collection with positions
func (m *ManyToMany) Iter() iter.Seq2[int, *Instance] {
	return slices.All(m.Items())
}

// Index returns the loaded item at i. A negative i counts from the end.
func (m *ManyToMany) Index(i int) (*Instance, error) {
	items := m.items()
	if i < 0 {
		i += len(items)
	}
	if i < 0 || i >= len(items) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return items[i], nil
}

// Slice returns loaded items [start, stop). A negative stop means through
// the end; bounds are clamped.
func (m *ManyToMany) Slice(start, stop int) []*Instance {
	items := m.items()
	if stop < 0 || stop > len(items) {
		stop = len(items)
	}
	start = max(0, min(start, stop))
	return slices.Clone(items[start:stop])
}

// Add links items to the owner. Unsaved instances, the owner included,
// are saved first. Items already linked are left alone.
func (m *ManyToMany) Add(ctx context.Context, items ...*Instance) error {
	o := m.owner.orm
	if err := o.bound(); err != nil {
		return err
	}
	if err := m.add(ctx, items); err != nil {
		return o.abort(err)
	}
	if err := o.commit(); err != nil {
		return err
	}
	for _, item := range items {
		m.remember(item)
	}
	return nil
}

func (m *ManyToMany) add(ctx context.Context, items []*Instance) error {
	keys, err := m.prepare(ctx, items)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return m.junction.Link(ctx, m.owner.ID(), keys...)
}

// Remove unlinks items from the owner. Items that are not linked are
// ignored.
func (m *ManyToMany) Remove(ctx context.Context, items ...*Instance) error {
	o := m.owner.orm
	if err := o.bound(); err != nil {
		return err
	}
	if err := m.remove(ctx, items); err != nil {
		return o.abort(err)
	}
	if err := o.commit(); err != nil {
		return err
	}
	for _, item := range items {
		m.forget(item)
	}
	return nil
}

// remove unlinks the stored items. Unsaved items and an unsaved owner have
// no links, so nothing is written for them.
func (m *ManyToMany) remove(ctx context.Context, items []*Instance) error {
	if err := m.check(items); err != nil {
		return err
	}
	if !m.owner.Persisted() {
		return nil
	}
	keys := make([]interface{}, 0, len(items))
	for _, item := range items {
		if item.Persisted() && item.ID() != nil {
			keys = append(keys, item.ID())
		}
	}
	return m.junction.Unlink(ctx, m.owner.ID(), keys...)
}

// Clear unlinks every item from the owner
func (m *ManyToMany) Clear(ctx context.Context) error {
	o := m.owner.orm
	if err := o.bound(); err != nil {
		return err
	}
	if !m.owner.Persisted() {
		m.owner.collections[m.rel.Name] = nil
		return nil
	}
	if err := m.junction.Clear(ctx, m.owner.ID()); err != nil {
		return o.abort(err)
	}
	if err := o.commit(); err != nil {
		return err
	}
	for _, item := range m.Items() {
		m.forget(item)
	}
	m.owner.collections[m.rel.Name] = []*Instance{}
	return nil
}

// check rejects items that are not instances of the target model
func (m *ManyToMany) check(items []*Instance) error {
	target := m.rel.Target.Model()
	for _, item := range items {
		if item == nil || item.model != target {
			return fmt.Errorf("%w: %s.%s holds %s instances",
				ErrUsage, m.owner.model.Name, m.name(), m.rel.Target.Name())
		}
	}
	return nil
}

// prepare checks the items and saves the unsaved ones and the owner
func (m *ManyToMany) prepare(ctx context.Context, items []*Instance) ([]interface{}, error) {
	if err := m.check(items); err != nil {
		return nil, err
	}

	visiting := make(map[*Instance]bool)
	if !m.owner.Persisted() {
		if err := m.owner.save(ctx, visiting); err != nil {
			return nil, err
		}
	}
	keys := make([]interface{}, 0, len(items))
	for _, item := range items {
		if !item.Persisted() {
			if err := item.save(ctx, visiting); err != nil {
				return nil, err
			}
		}
		keys = append(keys, item.ID())
	}
	return keys, nil
}

// remember appends item to the owner's collection and the owner to
// item's mirrored collection when those are loaded.
func (m *ManyToMany) remember(item *Instance) {
	if !m.Contains(item) {
		m.owner.collections[m.rel.Name] = append(m.items(), item)
	}
	if inverse := m.inverse(); inverse != "" {
		if others, loaded := item.collections[inverse]; loaded && indexOf(others, m.owner) < 0 {
			item.collections[inverse] = append(others, m.owner)
		}
	}
}

func (m *ManyToMany) forget(item *Instance) {
	if i := indexOf(m.items(), item); i >= 0 {
		m.owner.collections[m.rel.Name] = slices.Delete(m.Items(), i, i+1)
	}
	if inverse := m.inverse(); inverse != "" {
		if others, loaded := item.collections[inverse]; loaded {
			if i := indexOf(others, m.owner); i >= 0 {
				item.collections[inverse] = slices.Delete(slices.Clone(others), i, i+1)
			}
		}
	}
}

// inverse returns the internal name of the relation on the target that
// shares this relation's junction table, or "".
func (m *ManyToMany) inverse() string {
	public := m.rel.RelatedName
	if m.rel.Inverse != "" {
		public = m.rel.Inverse
	}
	if public == "" {
		return ""
	}
	return m.rel.Target.Model().PublicToInternal[public]
}

func (m *ManyToMany) name() string {
	if m.rel.Public != "" {
		return m.rel.Public
	}
	return m.rel.Name
}

// Refresh reloads the collection from the database
func (m *ManyToMany) Refresh(ctx context.Context) error {
	items, err := m.All().All(ctx)
	if err != nil {
		return err
	}
	m.owner.collections[m.rel.Name] = items
	return nil
}

// All returns a query set over the linked targets
func (m *ManyToMany) All() *QuerySet {
	return m.owner.orm.Objects(m.rel.Target.Model()).All().scopedTo(m.rel, m.owner.ID())
}

// Filter returns the linked targets matching every condition
func (m *ManyToMany) Filter(conds ...Condition) *QuerySet {
	return m.All().Filter(conds...)
}

// Exclude returns the linked targets not matching the conditions
func (m *ManyToMany) Exclude(conds ...Condition) *QuerySet {
	return m.All().Exclude(conds...)
}

// Search returns the linked targets matching any lookup
func (m *ManyToMany) Search(l Lookups) *QuerySet {
	return m.All().Search(l)
}

// OrderBy returns the linked targets in the given order
func (m *ManyToMany) OrderBy(fields ...string) *QuerySet {
	return m.All().OrderBy(fields...)
}

// Get returns the single linked target matching conds
func (m *ManyToMany) Get(ctx context.Context, conds ...Condition) (*Instance, error) {
	return m.All().Get(ctx, conds...)
}

// Count returns the number of linked targets in the database
func (m *ManyToMany) Count(ctx context.Context) (int64, error) {
	return m.All().Count(ctx)
}

// Exists reports whether any target is linked in the database
func (m *ManyToMany) Exists(ctx context.Context) (bool, error) {
	return m.All().Exists(ctx)
}

// Values returns the linked targets as maps of fields
func (m *ManyToMany) Values(ctx context.Context, fields ...string) ([]Values, error) {
	return m.All().Values(ctx, fields...)
}

// ValuesList returns the linked targets as tuples of fields
func (m *ManyToMany) ValuesList(ctx context.Context, fields ...string) ([][]interface{}, error) {
	return m.All().ValuesList(ctx, fields...)
}

// FlatValuesList returns one field of every linked target
func (m *ManyToMany) FlatValuesList(ctx context.Context, field ...string) ([]interface{}, error) {
	return m.All().FlatValuesList(ctx, field...)
}

func indexOf(items []*Instance, item *Instance) int {
	if item == nil {
		return -1
	}
	for i, x := range items {
		if x == item {
			return i
		}
		if x.model == item.model && item.ID() != nil && equalKeys(x.ID(), item.ID()) {
			return i
		}
	}
	return -1
}
