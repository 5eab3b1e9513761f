package crud

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Storage layouts of time-of-day and date values
const (
	TimeLayout = query.TimeLayout
	DateLayout = query.DateLayout
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// DecodeValue normalizes a scanned driver value to the field's Go form:
// int64 for integers, float64 for floats and decimals, bool, string for
// text, time.Time for datetimes and dates, a "15:04:05" string for times
// and the unmarshalled value for JSON.
func DecodeValue(f *schema.Field, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch f.Kind {
	case schema.KindInteger, schema.KindBigInteger:
		return toInt64(v)
	case schema.KindFloat, schema.KindDecimal:
		return toFloat64(v)
	case schema.KindBoolean:
		return toBool(v)
	case schema.KindDateTime:
		return toTime(v)
	case schema.KindDate:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case schema.KindTime:
		switch x := v.(type) {
		case time.Time:
			return x.Format(TimeLayout), nil
		case []byte:
			return string(x), nil
		}
		return fmt.Sprint(v), nil
	case schema.KindJSON:
		var raw []byte
		switch x := v.(type) {
		case string:
			raw = []byte(x)
		case []byte:
			raw = x
		default:
			return v, nil
		}
		var out interface{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Name, err)
		}
		return out, nil
	case schema.KindUUID:
		switch x := v.(type) {
		case [16]byte:
			return uuid.UUID(x).String(), nil
		case []byte:
			if len(x) == 16 {
				id, err := uuid.FromBytes(x)
				if err != nil {
					return nil, err
				}
				return id.String(), nil
			}
			return string(x), nil
		}
		return fmt.Sprint(v), nil
	}

	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

func toInt64(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return v, nil
}

func toFloat64(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return v, nil
}

func toBool(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case []byte:
		return strconv.ParseBool(string(x))
	case string:
		return strconv.ParseBool(x)
	}
	return v, nil
}

func toTime(v interface{}) (time.Time, error) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

// Row is one decoded result row keyed by column name
type Row map[string]interface{}

// DecodeRow decodes the columns of m found at values[start:]
func DecodeRow(m *schema.Model, values []interface{}, start int) (Row, error) {
	row := make(Row, len(m.Fields))
	for i, f := range m.Fields {
		v, err := DecodeValue(f, values[start+i])
		if err != nil {
			return nil, err
		}
		row[f.Name] = v
	}
	return row, nil
}

// ScanRows reads every row as raw driver values
func ScanRows(rows *sql.Rows, width int) ([][]interface{}, error) {
	defer rows.Close()

	var result [][]interface{}
	for rows.Next() {
		values := make([]interface{}, width)
		valuePtrs := make([]interface{}, width)
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
