package query

import (
	"sort"
)

// Connector joins the children of a Q node
type Connector int

const (
	AND Connector = iota
	OR
)

// String returns the SQL keyword of the connector
func (c Connector) String() string {
	if c == OR {
		return "OR"
	}
	return "AND"
}

// Node is an element of a predicate tree: a Lookup or a *Q
type Node interface {
	node()
}

func (Lookup) node() {}
func (*Q) node()     {}

// Lookups is a set of field lookups combined with AND. Keys use the lookup
// grammar ("name", "name__have", "age__gte").
type Lookups map[string]interface{}

// Q is a boolean tree of lookups. Q values are immutable: combinators
// return new nodes. A Q built from an invalid lookup carries the error and
// propagates it to every tree it is combined into.
type Q struct {
	Connector Connector
	Negated   bool
	Children  []Node

	err error
}

// Where builds an AND node from lookups. Keys are sorted so that the
// rendered SQL is deterministic.
func Where(lookups Lookups) *Q {
	return fromLookups(lookups, AND, ParseLookup)
}

// Search builds an OR node from lookups, defaulting each to a substring match
func Search(lookups Lookups) *Q {
	return fromLookups(lookups, OR, ParseSearchLookup)
}

// L builds a Q from a single lookup
func L(key string, value interface{}) *Q {
	return Where(Lookups{key: value})
}

func fromLookups(lookups Lookups, conn Connector, parse func(string, interface{}) (Lookup, error)) *Q {
	q := &Q{Connector: conn}
	keys := make([]string, 0, len(lookups))
	for k := range lookups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l, err := parse(k, lookups[k])
		if err != nil {
			q.err = err
			return q
		}
		q.Children = append(q.Children, l)
	}
	return q
}

// Err returns the construction error carried by the tree, if any
func (q *Q) Err() error {
	if q == nil {
		return nil
	}
	return q.err
}

// And combines q and others under AND
func (q *Q) And(others ...*Q) *Q {
	return combine(AND, append([]*Q{q}, others...))
}

// Or combines q and others under OR
func (q *Q) Or(others ...*Q) *Q {
	return combine(OR, append([]*Q{q}, others...))
}

// Not returns the negation of q
func (q *Q) Not() *Q {
	return &Q{Connector: q.Connector, Negated: !q.Negated, Children: q.Children, err: q.err}
}

// And combines nodes under AND
func And(qs ...*Q) *Q {
	return combine(AND, qs)
}

// Or combines nodes under OR
func Or(qs ...*Q) *Q {
	return combine(OR, qs)
}

// Not negates q
func Not(q *Q) *Q {
	return q.Not()
}

func combine(conn Connector, qs []*Q) *Q {
	result := &Q{Connector: conn}
	for _, q := range qs {
		if q == nil {
			continue
		}
		if q.err != nil && result.err == nil {
			result.err = q.err
		}
		if q.IsEmpty() {
			continue
		}
		// Flatten same-connector children that are not negated
		if q.Connector == conn && !q.Negated && len(q.Children) > 1 {
			result.Children = append(result.Children, q.Children...)
			continue
		}
		result.Children = append(result.Children, q)
	}
	return result
}

// IsEmpty reports whether the tree contains no lookup
func (q *Q) IsEmpty() bool {
	if q == nil {
		return true
	}
	for _, child := range q.Children {
		switch c := child.(type) {
		case Lookup:
			return false
		case *Q:
			if !c.IsEmpty() {
				return false
			}
		}
	}
	return true
}

// Lookups returns every leaf of the tree in order
func (q *Q) Lookups() []Lookup {
	var result []Lookup
	var walk func(*Q)
	walk = func(n *Q) {
		for _, child := range n.Children {
			switch c := child.(type) {
			case Lookup:
				result = append(result, c)
			case *Q:
				walk(c)
			}
		}
	}
	if q != nil {
		walk(q)
	}
	return result
}
