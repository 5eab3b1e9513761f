package relationships

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Junction reads and writes the link rows of one many-to-many relation,
// seen from its owner side.
type Junction struct {
	rel     *schema.Relationship
	exec    crud.Executor
	dialect dialect.Dialect
	logger  *zap.Logger
}

// NewJunction creates the link accessor of a many-to-many relation
func NewJunction(rel *schema.Relationship, exec crud.Executor, d dialect.Dialect, logger *zap.Logger) (*Junction, error) {
	if rel.Kind != schema.ManyToMany || rel.Junction == nil {
		return nil, fmt.Errorf("%w: %s is not a many-to-many relation", ErrInvalidRelationType, rel.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Junction{rel: rel, exec: exec, dialect: d, logger: logger}, nil
}

// Relation returns the many-to-many relation
func (j *Junction) Relation() *schema.Relationship {
	return j.rel
}

func (j *Junction) table() string {
	return j.dialect.Quote(j.rel.Junction.Name)
}

// Link adds a row for each target. Existing links are left untouched.
func (j *Junction) Link(ctx context.Context, owner interface{}, targets ...interface{}) error {
	cols := []string{j.rel.OwnerColumn, j.rel.TargetColumn}
	stmt := j.dialect.InsertIgnore(j.rel.Junction.Name, cols, dialect.Placeholders(j.dialect, 1, 2))

	for _, target := range targets {
		if _, err := j.exec.ExecContext(ctx, stmt, owner, target); err != nil {
			return fmt.Errorf("failed to link %s: %w", j.rel.Public, crud.ConvertDBError(err))
		}
	}
	j.logger.Debug("linked", zap.String("junction", j.rel.Junction.Name), zap.Int("count", len(targets)))
	return nil
}

// Unlink removes the rows linking owner to targets
func (j *Junction) Unlink(ctx context.Context, owner interface{}, targets ...interface{}) error {
	if len(targets) == 0 {
		return nil
	}
	d := j.dialect
	args := append([]interface{}{owner}, targets...)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s IN (%s)",
		j.table(),
		d.Quote(j.rel.OwnerColumn), d.Placeholder(1),
		d.Quote(j.rel.TargetColumn),
		strings.Join(dialect.Placeholders(d, 2, len(targets)), ", "),
	)
	if _, err := j.exec.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to unlink %s: %w", j.rel.Public, crud.ConvertDBError(err))
	}
	return nil
}

// Clear removes every row of owner
func (j *Junction) Clear(ctx context.Context, owner interface{}) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		j.table(), j.dialect.Quote(j.rel.OwnerColumn), j.dialect.Placeholder(1))
	if _, err := j.exec.ExecContext(ctx, stmt, owner); err != nil {
		return fmt.Errorf("failed to clear %s: %w", j.rel.Public, crud.ConvertDBError(err))
	}
	return nil
}
