// Package relationships loads related rows in batches and maintains the
// junction rows of many-to-many relationships.
package relationships

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// ErrInvalidRelationType is returned when a relation cannot be batch loaded
var ErrInvalidRelationType = errors.New("invalid relationship type")

// Batch maps the key of each parent row to its related rows
type Batch map[string][]crud.Row

// Get returns the rows loaded for a parent key
func (b Batch) Get(key interface{}) []crud.Row {
	return b[KeyString(key)]
}

// Loader fetches one relationship for many parent rows in a single query
type Loader struct {
	exec    crud.Executor
	dialect dialect.Dialect
	logger  *zap.Logger
}

// NewLoader creates a new relationship loader
func NewLoader(exec crud.Executor, d dialect.Dialect, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{exec: exec, dialect: d, logger: logger}
}

// Load fetches rel for parents, which are rows of owner.
//
// Forward relations are keyed by the parent's foreign-key value, reverse
// and many-to-many relations by the parent's primary key.
func (l *Loader) Load(ctx context.Context, owner *schema.Model, rel *schema.Relationship, parents []crud.Row) (Batch, error) {
	target := rel.Target.Model()
	if target == nil {
		return nil, fmt.Errorf("relation %s.%s: %w", owner.Name, rel.Name, schema.ErrUnresolvedRelation)
	}

	switch rel.Kind {
	case schema.ForeignKey, schema.OneToOne:
		keys := collectKeys(parents, rel.Column)
		return l.loadBy(ctx, target, target.PrimaryKey().Name, keys)
	case schema.ReverseForeignKey, schema.ReverseOneToOne:
		keys := collectKeys(parents, owner.PrimaryKey().Name)
		return l.loadBy(ctx, target, rel.RemoteColumn, keys)
	case schema.ManyToMany:
		keys := collectKeys(parents, owner.PrimaryKey().Name)
		return l.loadThrough(ctx, target, rel, keys)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRelationType, rel.Kind)
	}
}

// loadBy selects the target rows whose column is one of keys and groups
// them by that column.
func (l *Loader) loadBy(ctx context.Context, target *schema.Model, column string, keys []interface{}) (Batch, error) {
	batch := make(Batch)
	if len(keys) == 0 {
		return batch, nil
	}

	st := &query.Statement{
		Model: target,
		Where: query.L(column+query.Separator+"in", keys),
	}
	ops := crud.NewOperations(target, l.exec, l.dialect)
	rows, _, err := ops.Select(ctx, st)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		row := r[0]
		k := KeyString(row[column])
		batch[k] = append(batch[k], row)
	}
	l.logger.Debug("batch loaded",
		zap.String("model", target.Name),
		zap.Int("keys", len(keys)),
		zap.Int("rows", len(rows)))
	return batch, nil
}

// loadThrough selects the targets linked to keys through the junction
// table and groups them by owner key.
func (l *Loader) loadThrough(ctx context.Context, target *schema.Model, rel *schema.Relationship, keys []interface{}) (Batch, error) {
	batch := make(Batch)
	if len(keys) == 0 {
		return batch, nil
	}

	d := l.dialect
	cols := make([]string, 0, len(target.Fields)+1)
	cols = append(cols, d.Quote("j")+"."+d.Quote(rel.OwnerColumn))
	for _, c := range target.Columns() {
		cols = append(cols, d.Quote("t")+"."+d.Quote(c))
	}
	pk := d.Quote("t") + "." + d.Quote(target.PrimaryKey().Name)

	stmt := fmt.Sprintf(
		"SELECT %s FROM %s AS %s INNER JOIN %s AS %s ON %s.%s = %s WHERE %s.%s IN (%s) ORDER BY %s ASC",
		strings.Join(cols, ", "),
		d.Quote(target.Table), d.Quote("t"),
		d.Quote(rel.Junction.Name), d.Quote("j"),
		d.Quote("j"), d.Quote(rel.TargetColumn), pk,
		d.Quote("j"), d.Quote(rel.OwnerColumn),
		strings.Join(dialect.Placeholders(d, 1, len(keys)), ", "),
		pk,
	)

	rows, err := l.exec.QueryContext(ctx, stmt, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", rel.Public, crud.ConvertDBError(err))
	}
	raw, err := crud.ScanRows(rows, len(cols))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", rel.Public, crud.ConvertDBError(err))
	}

	for _, values := range raw {
		row, err := crud.DecodeRow(target, values, 1)
		if err != nil {
			return nil, err
		}
		k := KeyString(values[0])
		batch[k] = append(batch[k], row)
	}
	l.logger.Debug("batch loaded through junction",
		zap.String("junction", rel.Junction.Name),
		zap.Int("keys", len(keys)),
		zap.Int("rows", len(raw)))
	return batch, nil
}

// collectKeys returns the distinct non-nil values of column, in first-seen order
func collectKeys(rows []crud.Row, column string) []interface{} {
	seen := make(map[string]bool)
	var keys []interface{}
	for _, row := range rows {
		v := row[column]
		if v == nil {
			continue
		}
		k := KeyString(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return keys
}

// KeyString normalizes a key value so that keys read back from different
// drivers (int64, []byte, string) compare equal.
func KeyString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case query.PrimaryKeyer:
		return KeyString(x.PrimaryKeyValue())
	default:
		return fmt.Sprint(x)
	}
}
