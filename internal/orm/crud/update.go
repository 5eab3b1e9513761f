package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/apexorm/apexorm/internal/orm/query"
)

// Update writes changes to the row with the given primary key. Only the
// columns present in changes are written; the primary key is never changed.
func (o *Operations) Update(ctx context.Context, pk interface{}, changes Row) (int64, error) {
	var sets []string
	var args []interface{}
	for _, f := range o.model.Fields {
		v, ok := changes[f.Name]
		if !ok || f.PrimaryKey {
			continue
		}
		encoded, err := query.EncodeValue(f, v)
		if err != nil {
			return 0, err
		}
		args = append(args, encoded)
		sets = append(sets, fmt.Sprintf("%s = %s", o.dialect.Quote(f.Name), o.dialect.Placeholder(len(args))))
	}
	if len(sets) == 0 {
		return 0, nil
	}

	key, err := o.key(pk)
	if err != nil {
		return 0, err
	}
	args = append(args, key)
	stmt := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = %s",
		o.table(),
		strings.Join(sets, ", "),
		o.primaryKey(),
		o.dialect.Placeholder(len(args)),
	)

	res, err := o.exec.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", o.model.Name, ConvertDBError(err))
	}
	return res.RowsAffected()
}
