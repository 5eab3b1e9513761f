package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/query"
)

// Insert writes a new row and returns its primary key. A nil auto-increment
// key is left to the database and read back.
func (o *Operations) Insert(ctx context.Context, values Row) (interface{}, error) {
	pk := o.model.PrimaryKey()

	var columns []string
	var args []interface{}
	for _, f := range o.model.Fields {
		v, ok := values[f.Name]
		if !ok || (f.PrimaryKey && v == nil) {
			continue
		}
		encoded, err := query.EncodeValue(f, v)
		if err != nil {
			return nil, err
		}
		columns = append(columns, f.Name)
		args = append(args, encoded)
	}

	var stmt string
	if len(columns) == 0 {
		stmt = o.dialect.EmptyInsert(o.model.Table)
	} else {
		stmt = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			o.table(),
			strings.Join(dialect.QuoteAll(o.dialect, columns), ", "),
			strings.Join(dialect.Placeholders(o.dialect, 1, len(columns)), ", "),
		)
	}

	if id := values[pk.Name]; id != nil {
		if _, err := o.exec.ExecContext(ctx, stmt, args...); err != nil {
			return nil, fmt.Errorf("failed to insert %s: %w", o.model.Name, ConvertDBError(err))
		}
		return id, nil
	}

	if o.dialect.Returning() {
		stmt += " RETURNING " + o.primaryKey()
		rows, err := o.exec.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert %s: %w", o.model.Name, ConvertDBError(err))
		}
		raw, err := ScanRows(rows, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to insert %s: %w", o.model.Name, ConvertDBError(err))
		}
		if len(raw) != 1 {
			return nil, fmt.Errorf("failed to insert %s: no key returned", o.model.Name)
		}
		return DecodeValue(pk, raw[0][0])
	}

	res, err := o.exec.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", o.model.Name, ConvertDBError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read key of %s: %w", o.model.Name, err)
	}
	return id, nil
}
