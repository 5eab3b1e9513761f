package orm

import (
	"github.com/apexorm/apexorm/internal/orm/query"
)

// Condition is a filter argument: a Lookups map or a Q tree
type Condition interface {
	node() *query.Q
}

// Lookups is a set of field lookups combined with AND. Keys are a field
// name, optionally followed by "__" and an operator:
//
//	eq lt lte gt gte in notin have contains startswith istartswith endswith iendswith
type Lookups map[string]interface{}

func (l Lookups) node() *query.Q {
	return query.Where(query.Lookups(l))
}

// Q is a boolean tree of lookups. Q values are immutable.
type Q struct {
	q *query.Q
}

func (q Q) node() *query.Q {
	return q.q
}

// Where builds a Q matching every lookup
func Where(l Lookups) Q {
	return Q{q: l.node()}
}

// L builds a Q from a single lookup
func L(key string, value interface{}) Q {
	return Q{q: query.L(key, value)}
}

// And combines conditions under AND
func And(conds ...Condition) Q {
	return Q{q: query.And(nodes(conds)...)}
}

// Or combines conditions under OR
func Or(conds ...Condition) Q {
	return Q{q: query.Or(nodes(conds)...)}
}

// Not negates a condition
func Not(c Condition) Q {
	n := c.node()
	if n == nil {
		return Q{}
	}
	return Q{q: query.Not(n)}
}

// And returns q AND others
func (q Q) And(others ...Condition) Q {
	return And(append([]Condition{q}, others...)...)
}

// Or returns q OR others
func (q Q) Or(others ...Condition) Q {
	return Or(append([]Condition{q}, others...)...)
}

// Not returns the negation of q
func (q Q) Not() Q {
	return Not(q)
}

// Err returns the error of an invalid lookup in the tree
func (q Q) Err() error {
	return q.q.Err()
}

func nodes(conds []Condition) []*query.Q {
	result := make([]*query.Q, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			result = append(result, c.node())
		}
	}
	return result
}
