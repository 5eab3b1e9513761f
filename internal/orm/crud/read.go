package crud

import (
	"context"
	"fmt"

	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Select runs the statement and decodes every row. Each result holds one
// Row per layout segment; a segment whose LEFT JOIN matched nothing is nil.
func (o *Operations) Select(ctx context.Context, st *query.Statement) ([][]Row, *query.Layout, error) {
	stmt, args, layout, err := st.Select(o.dialect)
	if err != nil {
		return nil, nil, err
	}

	rows, err := o.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s: %w", st.Model.Name, ConvertDBError(err))
	}
	raw, err := ScanRows(rows, layout.Width)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s: %w", st.Model.Name, ConvertDBError(err))
	}

	result := make([][]Row, len(raw))
	for i, values := range raw {
		result[i] = make([]Row, len(layout.Segments))
		for s, seg := range layout.Segments {
			pkIndex := seg.Start + pkPosition(seg.Model)
			if s > 0 && values[pkIndex] == nil {
				continue
			}
			row, err := DecodeRow(seg.Model, values, seg.Start)
			if err != nil {
				return nil, nil, err
			}
			result[i][s] = row
		}
	}
	return result, layout, nil
}

// Values runs a projection of fields and returns decoded tuples
func (o *Operations) Values(ctx context.Context, st *query.Statement, fields []string) ([][]interface{}, error) {
	resolved := make([]*schema.Field, len(fields))
	for i, name := range fields {
		f, err := query.ResolveField(st.Model, name)
		if err != nil {
			return nil, err
		}
		resolved[i] = f
	}

	stmt, args, err := st.Columns(o.dialect, fields)
	if err != nil {
		return nil, err
	}
	rows, err := o.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", st.Model.Name, ConvertDBError(err))
	}
	raw, err := ScanRows(rows, len(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", st.Model.Name, ConvertDBError(err))
	}

	for _, values := range raw {
		for i, f := range resolved {
			v, err := DecodeValue(f, values[i])
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
	}
	return raw, nil
}

// Count returns the number of rows the statement selects
func (o *Operations) Count(ctx context.Context, st *query.Statement) (int64, error) {
	stmt, args, err := st.Count(o.dialect)
	if err != nil {
		return 0, err
	}
	rows, err := o.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", st.Model.Name, ConvertDBError(err))
	}
	raw, err := ScanRows(rows, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", st.Model.Name, ConvertDBError(err))
	}
	if len(raw) == 0 {
		return 0, nil
	}
	n, err := toInt64(raw[0][0])
	if err != nil {
		return 0, err
	}
	count, ok := n.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count type %T", raw[0][0])
	}
	return count, nil
}

// Exists reports whether the statement selects any row
func (o *Operations) Exists(ctx context.Context, st *query.Statement) (bool, error) {
	stmt, args, err := st.Exists(o.dialect)
	if err != nil {
		return false, err
	}
	rows, err := o.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", st.Model.Name, ConvertDBError(err))
	}
	raw, err := ScanRows(rows, 1)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", st.Model.Name, ConvertDBError(err))
	}
	return len(raw) > 0, nil
}

// Find loads the row with the given primary key
func (o *Operations) Find(ctx context.Context, pk interface{}) (Row, error) {
	st := &query.Statement{
		Model: o.model,
		Where: query.L(o.model.PrimaryKey().Name, pk),
	}
	rows, _, err := o.Select(ctx, st)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0][0], nil
}

func pkPosition(m *schema.Model) int {
	for i, f := range m.Fields {
		if f.PrimaryKey {
			return i
		}
	}
	return 0
}
