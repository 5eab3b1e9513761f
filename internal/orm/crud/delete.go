package crud

import (
	"context"
	"fmt"
)

// Delete removes the row with the given primary key
func (o *Operations) Delete(ctx context.Context, pk interface{}) (int64, error) {
	key, err := o.key(pk)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", o.table(), o.primaryKey(), o.dialect.Placeholder(1))

	res, err := o.exec.ExecContext(ctx, stmt, key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", o.model.Name, ConvertDBError(err))
	}
	return res.RowsAffected()
}
