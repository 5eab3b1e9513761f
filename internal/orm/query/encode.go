package query

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

// TimeLayout is the storage form of time-of-day values
const TimeLayout = "15:04:05.999999"

// DateLayout is the storage form of date values
const DateLayout = "2006-01-02"

// EncodeValue converts a field value to the form it is stored and bound in.
// Writes and lookups share it so that a filter value matches the stored one.
func EncodeValue(f *schema.Field, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if pk, ok := v.(PrimaryKeyer); ok && f.Relation != "" {
		v = pk.PrimaryKeyValue()
		if v == nil {
			return nil, nil
		}
	}

	switch f.Kind {
	case schema.KindJSON:
		if raw, ok := v.(json.RawMessage); ok {
			return string(raw), nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.Name, err)
		}
		return string(data), nil
	case schema.KindTime:
		if t, ok := v.(time.Time); ok {
			return t.Format(TimeLayout), nil
		}
	case schema.KindDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(DateLayout), nil
		}
	case schema.KindUUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x.String(), nil
		case [16]byte:
			return uuid.UUID(x).String(), nil
		}
	}
	return v, nil
}
