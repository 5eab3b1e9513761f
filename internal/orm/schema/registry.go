package schema

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrUnresolvedRelation is reported by a strict Finalize for pending
// relations whose target or source model was never registered.
var ErrUnresolvedRelation = errors.New("unresolved relation")

// Registry holds the models, the pending-relations queue and the junction
// tables of one schema generation. It performs no locking; callers that
// share a Registry across goroutines must serialize access.
type Registry struct {
	models    map[string]*Model
	order     []string
	pending   []PendingRelation
	junctions map[string]*JunctionTable
	junctionK []string

	logger *zap.Logger
	strict bool
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLogger sets the logger used to report finalize activity
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStrictResolution makes Finalize return an error for every pending
// relation it cannot resolve instead of only logging the drop.
func WithStrictResolution() RegistryOption {
	return func(r *Registry) {
		r.strict = true
	}
}

// NewRegistry creates a new model registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{logger: zap.NewNop()}
	r.init()
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) init() {
	r.models = make(map[string]*Model)
	r.order = nil
	r.pending = nil
	r.junctions = make(map[string]*JunctionTable)
	r.junctionK = nil
}

// Register adds models and queues their reciprocal work. Registering a
// model under an existing name replaces the earlier descriptor.
func (r *Registry) Register(models ...*Model) {
	for _, m := range models {
		name := m.FullName()
		if _, exists := r.models[name]; !exists {
			r.order = append(r.order, name)
		}
		r.models[name] = m

		for _, rel := range m.Relations {
			if !rel.Forward() || rel.RelatedName == "" {
				continue
			}
			r.pending = append(r.pending, PendingRelation{
				Target:      rel.Target,
				RelatedName: rel.RelatedName,
				Source:      m,
				SourceAttr:  rel.Name,
				Collection:  rel.Kind == ForeignKey,
				Kind:        rel.Kind,
			})
		}
		for _, rel := range m.m2m {
			r.pending = append(r.pending, PendingRelation{
				Target:      rel.Target,
				RelatedName: rel.RelatedName,
				Source:      m,
				SourceAttr:  rel.Name,
				Collection:  true,
				Kind:        ManyToMany,
			})
		}
		r.logger.Debug("registered model",
			zap.String("model", name),
			zap.String("table", m.Table),
			zap.Int("pending", len(r.pending)))
	}
}

// Declare builds a model from decl and registers it
func (r *Registry) Declare(decl Declaration) (*Model, error) {
	m, err := Declare(decl)
	if err != nil {
		return nil, err
	}
	r.Register(m)
	return m, nil
}

// Get retrieves a model by fully-qualified name, or by simple name when
// exactly one registered model carries it.
func (r *Registry) Get(name string) (*Model, bool) {
	if m, ok := r.models[name]; ok {
		return m, true
	}
	var found *Model
	for _, key := range r.order {
		m := r.models[key]
		if m.Name == name {
			if found != nil {
				return nil, false
			}
			found = m
		}
	}
	return found, found != nil
}

// Resolve returns the model a LazyRef points at
func (r *Registry) Resolve(ref LazyRef) (*Model, bool) {
	if m := ref.Model(); m != nil {
		if current, ok := r.models[m.FullName()]; ok {
			return current, true
		}
		return m, true
	}
	return r.Get(ref.Name())
}

// Models returns the registered models in registration order
func (r *Registry) Models() []*Model {
	result := make([]*Model, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.models[name])
	}
	return result
}

// Junctions returns the junction tables created by Finalize
func (r *Registry) Junctions() []*JunctionTable {
	result := make([]*JunctionTable, 0, len(r.junctionK))
	for _, key := range r.junctionK {
		result = append(result, r.junctions[key])
	}
	return result
}

// Pending returns a copy of the pending-relations queue
func (r *Registry) Pending() []PendingRelation {
	result := make([]PendingRelation, len(r.pending))
	copy(result, r.pending)
	return result
}

// Count returns the number of registered models
func (r *Registry) Count() int {
	return len(r.models)
}

// Exists checks if a model is registered
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Reset clears models, pending relations and junction tables
func (r *Registry) Reset() {
	r.init()
}

// Finalize resolves every forward reference, creates reverse accessors and
// junction tables, and drains the pending queue. It is a no-op on an empty
// queue with all references already resolved.
func (r *Registry) Finalize() error {
	var errs []error
	report := func(err error) {
		if r.strict {
			errs = append(errs, err)
		}
	}

	for _, m := range r.Models() {
		for _, rel := range m.Relations {
			if !rel.Forward() {
				continue
			}
			target, ok := r.Resolve(rel.Target)
			if !ok {
				r.logger.Warn("unresolved relation target",
					zap.String("model", m.FullName()),
					zap.String("relation", rel.Name),
					zap.String("target", rel.Target.Name()))
				report(fmt.Errorf("%w: %s.%s targets unknown model %s", ErrUnresolvedRelation, m.FullName(), rel.Name, rel.Target.Name()))
				continue
			}
			rel.Target = RefTo(target)
			if pk := target.PrimaryKey(); pk != nil {
				if col, ok := m.Field(rel.Column); ok {
					col.Kind = fkKind(pk.Kind)
					col.MaxLength = pk.MaxLength
				}
			}
		}
	}

	processed := 0
	for _, p := range r.pending {
		source, sourceOK := r.models[p.Source.FullName()]
		target, targetOK := r.Resolve(p.Target)
		if !sourceOK || !targetOK {
			r.logger.Warn("dropping pending relation", zap.Stringer("relation", p))
			report(fmt.Errorf("%w: %s", ErrUnresolvedRelation, p))
			continue
		}

		switch p.Kind {
		case ForeignKey, OneToOne:
			r.finalizeReverse(p, source, target)
		case ManyToMany:
			r.finalizeManyToMany(p, source, target)
		}
		processed++
	}
	r.pending = nil

	r.logger.Info("finalized schema",
		zap.Int("models", len(r.models)),
		zap.Int("relations", processed),
		zap.Int("junctions", len(r.junctions)))

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (r *Registry) finalizeReverse(p PendingRelation, source, target *Model) {
	if target.HasMember(p.RelatedName) {
		return
	}
	forward, ok := source.Relation(p.SourceAttr)
	if !ok {
		return
	}
	kind := ReverseForeignKey
	if p.Kind == OneToOne {
		kind = ReverseOneToOne
	}
	target.addRelation(&Relationship{
		Name:         p.RelatedName,
		Kind:         kind,
		Target:       RefTo(source),
		Nullable:     true,
		RemoteColumn: forward.Column,
		Inverse:      forward.Name,
	})
}

func (r *Registry) finalizeManyToMany(p PendingRelation, source, target *Model) {
	key := source.FullName() + "." + p.SourceAttr
	junction, exists := r.junctions[key]
	if !exists {
		left := source.Table + "_id"
		right := target.Table + "_id"
		if left == right {
			right = "to_" + right
		}
		junction = &JunctionTable{
			Name:        source.Table + "_" + p.SourceAttr,
			LeftModel:   source,
			LeftColumn:  left,
			RightModel:  target,
			RightColumn: right,
		}
		r.junctions[key] = junction
		r.junctionK = append(r.junctionK, key)
	}

	internal := internalName(p.SourceAttr)
	if _, ok := source.Relation(internal); !ok {
		source.addRelation(&Relationship{
			Name:         internal,
			Kind:         ManyToMany,
			Target:       RefTo(target),
			RelatedName:  p.RelatedName,
			Nullable:     true,
			Junction:     junction,
			OwnerColumn:  junction.LeftColumn,
			TargetColumn: junction.RightColumn,
			Public:       p.SourceAttr,
		})
	}
	source.PublicToInternal[p.SourceAttr] = internal

	if p.RelatedName == "" {
		return
	}
	back := internalName(p.RelatedName)
	if _, ok := target.Relation(back); !ok {
		target.addRelation(&Relationship{
			Name:         back,
			Kind:         ManyToMany,
			Target:       RefTo(source),
			Nullable:     true,
			Junction:     junction,
			OwnerColumn:  junction.RightColumn,
			TargetColumn: junction.LeftColumn,
			Public:       p.RelatedName,
			Inverse:      p.SourceAttr,
		})
	}
	target.PublicToInternal[p.RelatedName] = back
}

// CreationOrder returns the models ordered so that every model comes after
// the models its foreign keys reference.
func (r *Registry) CreationOrder() ([]*Model, error) {
	graph := NewRelationshipGraph(r.Models())
	names, err := graph.TopologicalSort()
	if err != nil {
		return nil, err
	}
	result := make([]*Model, 0, len(names))
	for _, name := range names {
		result = append(result, r.models[name])
	}
	return result, nil
}

func internalName(attr string) string {
	return "_" + attr + "_rel"
}

func fkKind(pk Kind) Kind {
	switch pk {
	case KindInteger, KindBigInteger, KindUUID, KindULID, KindChar:
		return pk
	}
	if pk.IsText() {
		return KindChar
	}
	return KindInteger
}

// Describe renders the registry for diagnostics
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, m := range r.Models() {
		fmt.Fprintf(&b, "%s (%s)\n", m.FullName(), m.Table)
		for _, f := range m.Fields {
			fmt.Fprintf(&b, "  %s %s", f.Name, f.Kind)
			if f.PrimaryKey {
				b.WriteString(" pk")
			}
			if !f.Nullable {
				b.WriteString(" not null")
			}
			if f.Unique {
				b.WriteString(" unique")
			}
			b.WriteString("\n")
		}
		for _, rel := range m.Relations {
			name := rel.Name
			if rel.Public != "" {
				name = rel.Public
			}
			fmt.Fprintf(&b, "  %s -> %s (%s)\n", name, rel.Target.Name(), rel.Kind)
		}
	}
	for _, j := range r.Junctions() {
		fmt.Fprintf(&b, "junction %s (%s, %s)\n", j.Name, j.LeftColumn, j.RightColumn)
	}
	return b.String()
}
