// Package query translates apexorm lookups and Q expression trees into SQL
// predicates and assembles the SELECT statements issued by query sets.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUsage marks errors caused by invalid query construction
var ErrUsage = errors.New("invalid query")

// Operator represents a lookup operator
type Operator int

const (
	OpEqual Operator = iota
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpIn
	OpNotIn
	OpContains
	OpStartsWith
	OpEndsWith
)

// Separator joins lookup and path segments
const Separator = "__"

var operators = map[string]Operator{
	"eq":          OpEqual,
	"lt":          OpLessThan,
	"lte":         OpLessThanOrEqual,
	"gt":          OpGreaterThan,
	"gte":         OpGreaterThanOrEqual,
	"in":          OpIn,
	"notin":       OpNotIn,
	"have":        OpContains,
	"contains":    OpContains,
	"startswith":  OpStartsWith,
	"istartswith": OpStartsWith,
	"endswith":    OpEndsWith,
	"iendswith":   OpEndsWith,
}

// String returns the canonical suffix of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "eq"
	case OpLessThan:
		return "lt"
	case OpLessThanOrEqual:
		return "lte"
	case OpGreaterThan:
		return "gt"
	case OpGreaterThanOrEqual:
		return "gte"
	case OpIn:
		return "in"
	case OpNotIn:
		return "notin"
	case OpContains:
		return "have"
	case OpStartsWith:
		return "startswith"
	case OpEndsWith:
		return "endswith"
	default:
		return "unknown"
	}
}

// IsText reports whether the operator is a case-insensitive pattern match
func (o Operator) IsText() bool {
	return o == OpContains || o == OpStartsWith || o == OpEndsWith
}

// ParseOperator converts a lookup suffix to an Operator
func ParseOperator(s string) (Operator, bool) {
	op, ok := operators[s]
	return op, ok
}

// SplitPath splits a lookup or eager-loading path on "__" or "."
func SplitPath(path string) []string {
	return strings.Split(strings.ReplaceAll(path, ".", Separator), Separator)
}

// Lookup is a leaf predicate: field, operator and value
type Lookup struct {
	Field string
	Op    Operator
	Value interface{}
}

// ParseLookup parses "field" or "field__operator". A field without suffix
// compares for equality; an unknown suffix is an error.
func ParseLookup(key string, value interface{}) (Lookup, error) {
	parts := SplitPath(key)
	for _, p := range parts {
		if p == "" {
			return Lookup{}, fmt.Errorf("%w: malformed lookup %q", ErrUsage, key)
		}
	}
	if len(parts) == 1 {
		return Lookup{Field: parts[0], Op: OpEqual, Value: value}, nil
	}
	suffix := parts[len(parts)-1]
	op, ok := ParseOperator(suffix)
	if !ok {
		return Lookup{}, fmt.Errorf("%w: unsupported lookup %q in %q", ErrUsage, suffix, key)
	}
	return Lookup{Field: strings.Join(parts[:len(parts)-1], Separator), Op: op, Value: value}, nil
}

// ParseSearchLookup parses a search lookup, defaulting to a substring match.
// Only the pattern operators are accepted.
func ParseSearchLookup(key string, value interface{}) (Lookup, error) {
	parts := SplitPath(key)
	if len(parts) == 1 {
		if parts[0] == "" {
			return Lookup{}, fmt.Errorf("%w: malformed lookup %q", ErrUsage, key)
		}
		return Lookup{Field: parts[0], Op: OpContains, Value: value}, nil
	}
	l, err := ParseLookup(key, value)
	if err != nil {
		return Lookup{}, err
	}
	if !l.Op.IsText() {
		return Lookup{}, fmt.Errorf("%w: unsupported search lookup %q", ErrUsage, parts[len(parts)-1])
	}
	return l, nil
}
