package orm

import (
	"context"

	"go.uber.org/zap"

	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/relationships"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// materialize builds the root instances of a select, attaching the
// instances of joined segments to their parents.
func (o *ORM) materialize(rows [][]crud.Row, layout *query.Layout) []*Instance {
	result := make([]*Instance, len(rows))
	for r, segs := range rows {
		insts := make([]*Instance, len(layout.Segments))
		for s, seg := range layout.Segments {
			if s == 0 {
				insts[0] = o.load(seg.Model, segs[0])
				continue
			}
			var inst *Instance
			if segs[s] != nil {
				inst = o.load(seg.Model, segs[s])
			}
			insts[s] = inst
			if parent := insts[seg.Parent]; parent != nil {
				parent.related[seg.Relation.Name] = inst
			}
		}
		result[r] = insts[0]
	}
	return result
}

// prefetch loads each chain level by level. Every level is one query over
// the distinct keys of the previous level.
func (o *ORM) prefetch(ctx context.Context, owner *schema.Model, roots []*Instance, chains [][]*schema.Relationship) error {
	loader := relationships.NewLoader(o.session, o.dialect, o.logger)
	for _, chain := range chains {
		level := roots
		model := owner
		for _, rel := range chain {
			if len(level) == 0 {
				break
			}
			next, err := o.prefetchLevel(ctx, loader, model, rel, level)
			if err != nil {
				return err
			}
			level = next
			model = rel.Target.Model()
		}
	}
	return nil
}

func (o *ORM) prefetchLevel(ctx context.Context, loader *relationships.Loader, model *schema.Model, rel *schema.Relationship, level []*Instance) ([]*Instance, error) {
	if next, ok := cachedLevel(rel, level); ok {
		return next, nil
	}

	parents := make([]crud.Row, len(level))
	for i, inst := range level {
		parents[i] = crud.Row(inst.values)
	}
	batch, err := loader.Load(ctx, model, rel, parents)
	if err != nil {
		return nil, err
	}

	target := rel.Target.Model()
	pk := target.PrimaryKey().Name
	identity := make(map[string]*Instance)
	var next []*Instance
	get := func(row crud.Row) *Instance {
		k := relationships.KeyString(row[pk])
		if inst, ok := identity[k]; ok {
			return inst
		}
		inst := o.load(target, row)
		identity[k] = inst
		next = append(next, inst)
		return inst
	}

	for _, inst := range level {
		switch rel.Kind {
		case schema.ForeignKey, schema.OneToOne:
			inst.related[rel.Name] = first(batch.Get(inst.values[rel.Column]), get)
		case schema.ReverseOneToOne:
			inst.related[rel.Name] = first(batch.Get(inst.ID()), get)
		default:
			rows := batch.Get(inst.ID())
			items := make([]*Instance, 0, len(rows))
			for _, row := range rows {
				items = append(items, get(row))
			}
			inst.collections[rel.Name] = items
		}
	}
	o.logger.Debug("prefetched",
		zap.String("model", model.Name),
		zap.String("relation", rel.Name),
		zap.Int("parents", len(level)),
		zap.Int("loaded", len(next)))
	return next, nil
}

func first(rows []crud.Row, get func(crud.Row) *Instance) *Instance {
	if len(rows) == 0 {
		return nil
	}
	return get(rows[0])
}

// cachedLevel returns the next level when every instance already has rel
// loaded, as when two prefetch paths share a prefix.
func cachedLevel(rel *schema.Relationship, level []*Instance) ([]*Instance, bool) {
	seen := make(map[*Instance]bool)
	var next []*Instance
	add := func(inst *Instance) {
		if inst != nil && !seen[inst] {
			seen[inst] = true
			next = append(next, inst)
		}
	}
	for _, inst := range level {
		if rel.Collection() {
			items, ok := inst.collections[rel.Name]
			if !ok {
				return nil, false
			}
			for _, item := range items {
				add(item)
			}
			continue
		}
		r, ok := inst.related[rel.Name]
		if !ok {
			return nil, false
		}
		add(r)
	}
	return next, true
}
