package orm

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// QuerySet is an immutable, lazily evaluated query over one model. Every
// chaining method returns a new QuerySet; nothing is read until a terminal
// method such as All, Count or Get runs.
//
// A usage error raised while chaining (an unknown field, a bad lookup, a
// select-related path through a collection) is kept and returned by every
// later terminal method. Err reports it immediately.
type QuerySet struct {
	orm      *ORM
	model    *schema.Model
	where    *query.Q
	order    []query.OrderTerm
	limit    *int
	offset   *int
	related  [][]*schema.Relationship
	prefetch [][]*schema.Relationship
	through  *query.Membership
	err      error
}

func newQuerySet(o *ORM, m *schema.Model) *QuerySet {
	return &QuerySet{orm: o, model: m}
}

func (qs *QuerySet) clone() *QuerySet {
	c := *qs
	c.order = slices.Clone(qs.order)
	c.related = slices.Clone(qs.related)
	c.prefetch = slices.Clone(qs.prefetch)
	return &c
}

func (qs *QuerySet) fail(err error) *QuerySet {
	c := qs.clone()
	if c.err == nil {
		c.err = err
	}
	return c
}

// Model returns the queried model
func (qs *QuerySet) Model() *schema.Model {
	return qs.model
}

// Err returns the first usage error raised while building the query set
func (qs *QuerySet) Err() error {
	return qs.err
}

func (qs *QuerySet) with(q *query.Q) *QuerySet {
	if qs.err != nil {
		return qs.clone()
	}
	if err := query.Validate(q, qs.model); err != nil {
		return qs.fail(err)
	}
	if q.IsEmpty() {
		return qs.clone()
	}
	c := qs.clone()
	c.where = query.And(c.where, q)
	return c
}

// Filter narrows the query set to rows matching every condition
func (qs *QuerySet) Filter(conds ...Condition) *QuerySet {
	return qs.with(query.And(nodes(conds)...))
}

// Exclude removes the rows matching every condition
func (qs *QuerySet) Exclude(conds ...Condition) *QuerySet {
	q := query.And(nodes(conds)...)
	if q.IsEmpty() {
		return qs.with(q)
	}
	return qs.with(query.Not(q))
}

// Search narrows the query set to rows matching any of the lookups. A key
// without an operator matches case-insensitively anywhere in the value.
func (qs *QuerySet) Search(l Lookups) *QuerySet {
	return qs.with(query.Search(query.Lookups(l)))
}

// OrderBy appends sort keys. A leading "-" sorts descending. Without keys
// rows come back in primary key order.
func (qs *QuerySet) OrderBy(fields ...string) *QuerySet {
	if qs.err != nil {
		return qs.clone()
	}
	c := qs.clone()
	for _, f := range fields {
		term, err := query.ParseOrder(qs.model, f)
		if err != nil {
			return qs.fail(err)
		}
		c.order = append(c.order, term)
	}
	return c
}

// Limit caps the number of rows
func (qs *QuerySet) Limit(n int) *QuerySet {
	if n < 0 {
		return qs.fail(fmt.Errorf("%w: negative limit %d", ErrUsage, n))
	}
	c := qs.clone()
	c.limit = &n
	return c
}

// Offset skips the first n rows
func (qs *QuerySet) Offset(n int) *QuerySet {
	if n < 0 {
		return qs.fail(fmt.Errorf("%w: negative offset %d", ErrUsage, n))
	}
	c := qs.clone()
	c.offset = &n
	return c
}

// Slice narrows the query set to rows [start, stop) of its current result.
// A negative stop means no upper bound. Slices compose: slicing a slice
// selects within it.
func (qs *QuerySet) Slice(start, stop int) *QuerySet {
	if start < 0 {
		return qs.fail(fmt.Errorf("%w: negative slice start %d", ErrUsage, start))
	}
	if stop >= 0 && stop < start {
		stop = start
	}

	base := 0
	if qs.offset != nil {
		base = *qs.offset
	}
	offset := base + start

	var limit *int
	switch {
	case stop >= 0:
		n := stop - start
		if qs.limit != nil {
			n = min(n, max(0, *qs.limit-start))
		}
		limit = &n
	case qs.limit != nil:
		n := max(0, *qs.limit-start)
		limit = &n
	}

	c := qs.clone()
	c.offset = &offset
	c.limit = limit
	return c
}

// SelectRelated loads forward scalar relations in the same query through
// LEFT JOINs. Paths may be nested ("author__profile") but may not cross
// collections.
func (qs *QuerySet) SelectRelated(paths ...string) *QuerySet {
	if qs.err != nil {
		return qs.clone()
	}
	c := qs.clone()
	for _, p := range paths {
		chain, err := query.ResolveScalarPath(qs.model, p)
		if err != nil {
			return qs.fail(err)
		}
		c.related = append(c.related, chain)
	}
	return c
}

// PrefetchRelated loads relations of any kind with one extra query per
// path segment once the rows are read.
func (qs *QuerySet) PrefetchRelated(paths ...string) *QuerySet {
	if qs.err != nil {
		return qs.clone()
	}
	c := qs.clone()
	for _, p := range paths {
		chain, err := query.ResolvePath(qs.model, p)
		if err != nil {
			return qs.fail(err)
		}
		c.prefetch = append(c.prefetch, chain)
	}
	return c
}

// scopedTo scopes the query set to the targets linked to owner by rel
func (qs *QuerySet) scopedTo(rel *schema.Relationship, owner interface{}) *QuerySet {
	c := qs.clone()
	c.through = &query.Membership{
		Junction:     rel.Junction.Name,
		OwnerColumn:  rel.OwnerColumn,
		TargetColumn: rel.TargetColumn,
		Owner:        owner,
	}
	return c
}

func (qs *QuerySet) statement() *query.Statement {
	return &query.Statement{
		Model:   qs.model,
		Where:   qs.where,
		Order:   qs.order,
		Limit:   qs.limit,
		Offset:  qs.offset,
		Related: qs.related,
		Through: qs.through,
	}
}

func (qs *QuerySet) ops() *crud.Operations {
	return crud.NewOperations(qs.model, qs.orm.session, qs.orm.dialect)
}

func (qs *QuerySet) check() error {
	if qs.err != nil {
		return qs.err
	}
	return qs.orm.bound()
}

// All runs the query and returns its instances
func (qs *QuerySet) All(ctx context.Context) ([]*Instance, error) {
	if err := qs.check(); err != nil {
		return nil, err
	}
	rows, layout, err := qs.ops().Select(ctx, qs.statement())
	if err != nil {
		return nil, qs.orm.abort(err)
	}
	instances := qs.orm.materialize(rows, layout)
	if len(qs.prefetch) > 0 && len(instances) > 0 {
		if err := qs.orm.prefetch(ctx, qs.model, instances, qs.prefetch); err != nil {
			return nil, qs.orm.abort(err)
		}
	}
	return instances, nil
}

// Iter runs the query and yields its instances. A failed query yields a
// single error.
func (qs *QuerySet) Iter(ctx context.Context) iter.Seq2[*Instance, error] {
	return func(yield func(*Instance, error) bool) {
		items, err := qs.All(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// First returns the first instance, or ErrNotFound
func (qs *QuerySet) First(ctx context.Context) (*Instance, error) {
	items, err := qs.Slice(0, 1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no %s matches the query", ErrNotFound, qs.model.Name)
	}
	return items[0], nil
}

// Last returns the last instance, or ErrNotFound
func (qs *QuerySet) Last(ctx context.Context) (*Instance, error) {
	if qs.limit != nil || qs.offset != nil {
		items, err := qs.All(ctx)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: no %s matches the query", ErrNotFound, qs.model.Name)
		}
		return items[len(items)-1], nil
	}

	c := qs.clone()
	order := c.order
	if len(order) == 0 {
		order = []query.OrderTerm{{Field: qs.model.PrimaryKey().Name}}
	}
	c.order = query.Reverse(order)
	return c.First(ctx)
}

// Count returns the number of matching rows
func (qs *QuerySet) Count(ctx context.Context) (int64, error) {
	if err := qs.check(); err != nil {
		return 0, err
	}
	n, err := qs.ops().Count(ctx, qs.statement())
	if err != nil {
		return 0, qs.orm.abort(err)
	}
	return n, nil
}

// Exists reports whether any row matches
func (qs *QuerySet) Exists(ctx context.Context) (bool, error) {
	if err := qs.check(); err != nil {
		return false, err
	}
	ok, err := qs.ops().Exists(ctx, qs.statement())
	if err != nil {
		return false, qs.orm.abort(err)
	}
	return ok, nil
}

// Get returns the single instance matching conds. It fails with
// ErrNotFound when none matches and ErrMultipleObjects when more than one
// does.
func (qs *QuerySet) Get(ctx context.Context, conds ...Condition) (*Instance, error) {
	items, err := qs.Filter(conds...).Slice(0, 2).All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("%w: %s matching query does not exist", ErrNotFound, qs.model.Name)
	case 1:
		return items[0], nil
	default:
		return nil, fmt.Errorf("%w: get() returned more than one %s", ErrMultipleObjects, qs.model.Name)
	}
}

// At returns the instance at index i. A negative index counts from the end
// and reads the whole result.
func (qs *QuerySet) At(ctx context.Context, i int) (*Instance, error) {
	if i < 0 {
		items, err := qs.All(ctx)
		if err != nil {
			return nil, err
		}
		if -i > len(items) {
			return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
		}
		return items[len(items)+i], nil
	}
	items, err := qs.Slice(i, i+1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return items[0], nil
}

// SliceStep returns every step-th instance of rows [start, stop). A step of
// one is pushed into the query; larger steps read the slice and pick from
// it.
func (qs *QuerySet) SliceStep(ctx context.Context, start, stop, step int) ([]*Instance, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: slice step must be positive, got %d", ErrUsage, step)
	}
	items, err := qs.Slice(start, stop).All(ctx)
	if err != nil || step == 1 {
		return items, err
	}
	picked := make([]*Instance, 0, (len(items)+step-1)/step)
	for i := 0; i < len(items); i += step {
		picked = append(picked, items[i])
	}
	return picked, nil
}

func (qs *QuerySet) fields(fields []string) []string {
	if len(fields) > 0 {
		return fields
	}
	return qs.model.Columns()
}

// ValuesList returns one tuple per row holding fields in the order given,
// or every column in declaration order. It is the ordered form of Values.
func (qs *QuerySet) ValuesList(ctx context.Context, fields ...string) ([][]interface{}, error) {
	if err := qs.check(); err != nil {
		return nil, err
	}
	rows, err := qs.ops().Values(ctx, qs.statement(), qs.fields(fields))
	if err != nil {
		return nil, qs.orm.abort(err)
	}
	return rows, nil
}

// Values returns one map per row holding fields, or every column. Maps do
// not keep field order; use ValuesList when the order matters.
func (qs *QuerySet) Values(ctx context.Context, fields ...string) ([]Values, error) {
	fields = qs.fields(fields)
	rows, err := qs.ValuesList(ctx, fields...)
	if err != nil {
		return nil, err
	}
	result := make([]Values, len(rows))
	for i, row := range rows {
		v := make(Values, len(fields))
		for j, f := range fields {
			v[f] = row[j]
		}
		result[i] = v
	}
	return result, nil
}

// FlatValuesList returns the values of a single field
func (qs *QuerySet) FlatValuesList(ctx context.Context, fields ...string) ([]interface{}, error) {
	if len(fields) != 1 {
		return nil, fmt.Errorf("%w: a flat values list needs exactly one field, got %d", ErrUsage, len(fields))
	}
	rows, err := qs.ValuesList(ctx, fields...)
	if err != nil {
		return nil, err
	}
	flat := make([]interface{}, len(rows))
	for i, row := range rows {
		flat[i] = row[0]
	}
	return flat, nil
}
