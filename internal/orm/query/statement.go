package query

import (
	"fmt"
	"strings"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// OrderTerm is one ORDER BY entry
type OrderTerm struct {
	Field string
	Desc  bool
}

// ParseOrder parses "field" or "-field" against a model
func ParseOrder(m *schema.Model, spec string) (OrderTerm, error) {
	term := OrderTerm{Field: strings.TrimPrefix(spec, "+")}
	if strings.HasPrefix(spec, "-") {
		term = OrderTerm{Field: spec[1:], Desc: true}
	}
	if _, err := ResolveField(m, term.Field); err != nil {
		return OrderTerm{}, err
	}
	return term, nil
}

// Reverse flips the direction of each term
func Reverse(terms []OrderTerm) []OrderTerm {
	result := make([]OrderTerm, len(terms))
	for i, t := range terms {
		result[i] = OrderTerm{Field: t.Field, Desc: !t.Desc}
	}
	return result
}

// ResolvePath resolves an eager-loading path ("a__b" or "a.b") to the chain
// of relations it crosses. Public many-to-many names are mapped to their
// internal relation.
func ResolvePath(m *schema.Model, path string) ([]*schema.Relationship, error) {
	var chain []*schema.Relationship
	current := m
	for _, seg := range SplitPath(path) {
		rel, ok := current.ResolveRelation(seg)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no relation %q (path %q)", ErrUsage, current.Name, seg, path)
		}
		target := rel.Target.Model()
		if target == nil {
			return nil, fmt.Errorf("%w: relation %s.%s is not resolved; finalize the schema first", ErrUsage, current.Name, seg)
		}
		chain = append(chain, rel)
		current = target
	}
	return chain, nil
}

// ResolveScalarPath resolves a path whose every hop is single-valued
func ResolveScalarPath(m *schema.Model, path string) ([]*schema.Relationship, error) {
	chain, err := ResolvePath(m, path)
	if err != nil {
		return nil, err
	}
	for _, rel := range chain {
		if rel.Collection() {
			name := rel.Name
			if rel.Public != "" {
				name = rel.Public
			}
			return nil, fmt.Errorf("%w: select_related path %q crosses collection %q; use prefetch_related instead", ErrUsage, path, name)
		}
	}
	return chain, nil
}

// Statement is the SELECT of a query set
type Statement struct {
	Model   *schema.Model
	Where   *Q
	Order   []OrderTerm
	Limit   *int
	Offset  *int
	Related [][]*schema.Relationship
	Through *Membership
}

// Membership restricts a statement to the rows linked to one owner row
// through a junction table.
type Membership struct {
	Junction     string
	OwnerColumn  string
	TargetColumn string
	Owner        interface{}
}

func (m *Membership) render(s Scope, b *Binder) string {
	d := s.Dialect
	return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s = %s)",
		s.Qualify(s.Model.PrimaryKey().Name),
		d.Quote(m.TargetColumn),
		d.Quote(m.Junction),
		d.Quote(m.OwnerColumn),
		b.Bind(m.Owner))
}

// Segment is the slice of a result row belonging to one joined model
type Segment struct {
	Path     string
	Model    *schema.Model
	Alias    string
	Start    int
	Parent   int
	Relation *schema.Relationship
}

// Layout describes how the columns of a joined row map onto models
type Layout struct {
	Segments []Segment
	Width    int
}

const rootAlias = "t0"

// Select renders the statement, joining every select_related model
func (st *Statement) Select(d dialect.Dialect) (string, []interface{}, *Layout, error) {
	b := NewBinder(d)
	layout, joins := st.plan(d)

	cols := make([]string, 0, layout.Width)
	for _, seg := range layout.Segments {
		s := Scope{Model: seg.Model, Alias: seg.Alias, Dialect: d}
		for _, c := range seg.Model.Columns() {
			cols = append(cols, s.Qualify(c))
		}
	}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(strings.Join(cols, ", "))
	sql.WriteString(" FROM ")
	sql.WriteString(st.from(d))
	for _, j := range joins {
		sql.WriteString(j)
	}
	if err := st.writeTail(&sql, d, b, true); err != nil {
		return "", nil, nil, err
	}
	return sql.String(), b.Args(), layout, nil
}

// Columns renders a projection of the given fields
func (st *Statement) Columns(d dialect.Dialect, fields []string) (string, []interface{}, error) {
	b := NewBinder(d)
	s := st.scope(d)
	cols := make([]string, len(fields))
	for i, f := range fields {
		col, err := s.Column(f)
		if err != nil {
			return "", nil, err
		}
		cols[i] = col
	}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(strings.Join(cols, ", "))
	sql.WriteString(" FROM ")
	sql.WriteString(st.from(d))
	if err := st.writeTail(&sql, d, b, true); err != nil {
		return "", nil, err
	}
	return sql.String(), b.Args(), nil
}

// Count renders a COUNT of the rows the statement selects
func (st *Statement) Count(d dialect.Dialect) (string, []interface{}, error) {
	b := NewBinder(d)
	var sql strings.Builder
	if st.Limit == nil && st.Offset == nil {
		sql.WriteString("SELECT COUNT(*) FROM ")
		sql.WriteString(st.from(d))
		if err := st.writeTail(&sql, d, b, false); err != nil {
			return "", nil, err
		}
		return sql.String(), b.Args(), nil
	}

	sql.WriteString("SELECT COUNT(*) FROM (")
	if err := st.writeKeys(&sql, d, b); err != nil {
		return "", nil, err
	}
	sql.WriteString(") AS ")
	sql.WriteString(d.Quote("sub"))
	return sql.String(), b.Args(), nil
}

// Exists renders a query returning one row when the statement matches any
func (st *Statement) Exists(d dialect.Dialect) (string, []interface{}, error) {
	b := NewBinder(d)
	var sql strings.Builder
	if st.Limit == nil && st.Offset == nil {
		sql.WriteString("SELECT 1 FROM ")
		sql.WriteString(st.from(d))
		if err := st.writeTail(&sql, d, b, false); err != nil {
			return "", nil, err
		}
		sql.WriteString(" LIMIT 1")
		return sql.String(), b.Args(), nil
	}

	sql.WriteString("SELECT 1 FROM (")
	if err := st.writeKeys(&sql, d, b); err != nil {
		return "", nil, err
	}
	sql.WriteString(") AS ")
	sql.WriteString(d.Quote("sub"))
	sql.WriteString(" LIMIT 1")
	return sql.String(), b.Args(), nil
}

func (st *Statement) writeKeys(sql *strings.Builder, d dialect.Dialect, b *Binder) error {
	s := st.scope(d)
	sql.WriteString("SELECT ")
	sql.WriteString(s.Qualify(st.Model.PrimaryKey().Name))
	sql.WriteString(" FROM ")
	sql.WriteString(st.from(d))
	return st.writeTail(sql, d, b, true)
}

func (st *Statement) scope(d dialect.Dialect) Scope {
	return Scope{Model: st.Model, Alias: rootAlias, Dialect: d}
}

func (st *Statement) from(d dialect.Dialect) string {
	return d.Quote(st.Model.Table) + " AS " + d.Quote(rootAlias)
}

// writeTail writes WHERE and, when paging is true, ORDER BY, LIMIT and OFFSET
func (st *Statement) writeTail(sql *strings.Builder, d dialect.Dialect, b *Binder, paging bool) error {
	s := st.scope(d)
	var conds []string
	if st.Where != nil {
		where, err := Compile(st.Where, s, b)
		if err != nil {
			return err
		}
		if where != "" {
			conds = append(conds, where)
		}
	}
	if st.Through != nil {
		conds = append(conds, st.Through.render(s, b))
	}
	if len(conds) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(conds, " AND "))
	}
	if !paging {
		return nil
	}

	order := st.Order
	if len(order) == 0 {
		// Natural ordering keeps indexing and slicing deterministic
		order = []OrderTerm{{Field: st.Model.PrimaryKey().Name}}
	}
	terms := make([]string, len(order))
	for i, t := range order {
		col, err := s.Column(t.Field)
		if err != nil {
			return err
		}
		dir := "ASC"
		if t.Desc {
			dir = "DESC"
		}
		terms[i] = col + " " + dir
	}
	sql.WriteString(" ORDER BY ")
	sql.WriteString(strings.Join(terms, ", "))

	if st.Limit != nil {
		sql.WriteString(" LIMIT ")
		sql.WriteString(b.Bind(*st.Limit))
	} else if st.Offset != nil && d.NoLimit() != "" {
		sql.WriteString(" LIMIT ")
		sql.WriteString(d.NoLimit())
	}
	if st.Offset != nil {
		sql.WriteString(" OFFSET ")
		sql.WriteString(b.Bind(*st.Offset))
	}
	return nil
}

// plan assigns aliases to the select_related joins. Shared prefixes of
// different paths are joined once.
func (st *Statement) plan(d dialect.Dialect) (*Layout, []string) {
	layout := &Layout{}
	layout.Segments = append(layout.Segments, Segment{Model: st.Model, Alias: rootAlias, Parent: -1})
	layout.Width = len(st.Model.Fields)

	index := map[string]int{"": 0}
	var joins []string

	for _, chain := range st.Related {
		parent := 0
		path := ""
		for _, rel := range chain {
			if path == "" {
				path = rel.Name
			} else {
				path = path + Separator + rel.Name
			}
			if i, ok := index[path]; ok {
				parent = i
				continue
			}

			target := rel.Target.Model()
			alias := fmt.Sprintf("t%d", len(layout.Segments))
			from := layout.Segments[parent]
			left := Scope{Model: from.Model, Alias: from.Alias, Dialect: d}
			right := Scope{Model: target, Alias: alias, Dialect: d}

			var on string
			switch rel.Kind {
			case schema.ReverseOneToOne:
				on = fmt.Sprintf("%s = %s", right.Qualify(rel.RemoteColumn), left.Qualify(from.Model.PrimaryKey().Name))
			default:
				on = fmt.Sprintf("%s = %s", right.Qualify(target.PrimaryKey().Name), left.Qualify(rel.Column))
			}
			joins = append(joins, fmt.Sprintf(" LEFT JOIN %s AS %s ON %s", d.Quote(target.Table), d.Quote(alias), on))

			layout.Segments = append(layout.Segments, Segment{
				Path:     path,
				Model:    target,
				Alias:    alias,
				Start:    layout.Width,
				Parent:   parent,
				Relation: rel,
			})
			parent = len(layout.Segments) - 1
			index[path] = parent
			layout.Width += len(target.Fields)
		}
	}
	return layout, joins
}
