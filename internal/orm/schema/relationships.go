package schema

import (
	"fmt"
	"strings"
)

// RelationshipGraph holds the foreign-key dependencies between models. An
// edge points from a model to the model its forward relation references.
type RelationshipGraph struct {
	models []string
	deps   map[string][]string
}

// NewRelationshipGraph builds the graph for models. Self references are
// skipped since a table can reference itself, as are targets outside models.
func NewRelationshipGraph(models []*Model) *RelationshipGraph {
	g := &RelationshipGraph{deps: make(map[string][]string, len(models))}
	known := make(map[string]bool, len(models))
	for _, m := range models {
		g.models = append(g.models, m.FullName())
		known[m.FullName()] = true
	}

	for _, m := range models {
		from := m.FullName()
		for _, rel := range m.Relations {
			if !rel.Forward() || rel.Target.Model() == nil {
				continue
			}
			if to := rel.Target.Model().FullName(); to != from && known[to] {
				g.deps[from] = append(g.deps[from], to)
			}
		}
	}
	return g
}

// visit states for TopologicalSort
const (
	unvisited = iota
	inProgress
	done
)

// TopologicalSort returns model names with every model after the models it
// depends on. Ties keep registration order. A cycle is reported with its path.
func (g *RelationshipGraph) TopologicalSort() ([]string, error) {
	state := make(map[string]int, len(g.models))
	sorted := make([]string, 0, len(g.models))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case inProgress:
			return cycleError(stack, name)
		}
		state[name] = inProgress
		stack = append(stack, name)
		for _, dep := range g.deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		sorted = append(sorted, name)
		return nil
	}

	for _, name := range g.models {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

func cycleError(stack []string, repeated string) error {
	start := 0
	for i, name := range stack {
		if name == repeated {
			start = i
			break
		}
	}
	path := append(append([]string{}, stack[start:]...), repeated)
	return fmt.Errorf("circular dependency detected: %s", strings.Join(path, " -> "))
}
