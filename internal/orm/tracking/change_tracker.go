// Package tracking records the persisted state of an instance so that saves
// write only the columns that changed.
package tracking

import (
	"reflect"
	"sort"
	"sync"
	"time"
)

// FieldChange represents a change to a single field
type FieldChange struct {
	Field    string
	OldValue interface{}
	NewValue interface{}
}

// ChangeTracker compares an instance's current values against the snapshot
// taken when it was last loaded or saved.
type ChangeTracker struct {
	mu        sync.RWMutex
	original  map[string]interface{}
	persisted bool
}

// NewChangeTracker creates a tracker for an instance not yet stored.
// Every set field counts as changed until the first Snapshot.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{original: make(map[string]interface{})}
}

// Snapshot records values as the stored state
func (ct *ChangeTracker) Snapshot(values map[string]interface{}) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.original = deepCopyMap(values)
	ct.persisted = true
}

// Forget drops the snapshot, as after the row is deleted
func (ct *ChangeTracker) Forget() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.original = make(map[string]interface{})
	ct.persisted = false
}

// Persisted reports whether a snapshot has been taken
func (ct *ChangeTracker) Persisted() bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.persisted
}

// State is a copy of a tracker taken before a write, so that the write can
// be undone when its transaction rolls back.
type State struct {
	original  map[string]interface{}
	persisted bool
}

// State returns a copy of the tracker's current state
func (ct *ChangeTracker) State() State {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return State{original: deepCopyMap(ct.original), persisted: ct.persisted}
}

// Restore puts back a state returned by State
func (ct *ChangeTracker) Restore(s State) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.original = deepCopyMap(s.original)
	ct.persisted = s.persisted
}

// Changes returns the fields of current that differ from the snapshot,
// sorted by field name.
func (ct *ChangeTracker) Changes(current map[string]interface{}) []*FieldChange {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	var changes []*FieldChange
	for field, newValue := range current {
		oldValue, hadOldValue := ct.original[field]
		if !hadOldValue || !deepEqual(oldValue, newValue) {
			changes = append(changes, &FieldChange{
				Field:    field,
				OldValue: oldValue,
				NewValue: newValue,
			})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

// Changed reports whether field differs from the snapshot
func (ct *ChangeTracker) Changed(current map[string]interface{}, field string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	oldValue, hadOldValue := ct.original[field]
	newValue, has := current[field]
	if !has {
		return false
	}
	return !hadOldValue || !deepEqual(oldValue, newValue)
}

// PreviousValue returns the snapshot value of a field
func (ct *ChangeTracker) PreviousValue(field string) interface{} {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.original[field]
}

// ChangedData returns only the changed fields with their new values
func (ct *ChangeTracker) ChangedData(current map[string]interface{}) map[string]interface{} {
	changes := ct.Changes(current)
	result := make(map[string]interface{}, len(changes))
	for _, change := range changes {
		result[change.Field] = change.NewValue
	}
	return result
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		slice := make([]interface{}, len(val))
		for i, item := range val {
			slice[i] = deepCopyValue(item)
		}
		return slice
	case []byte:
		return append([]byte(nil), val...)
	default:
		return v
	}
}

// deepEqual compares two values for equality. Integers of different widths
// holding the same number compare equal.
func deepEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
	}
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return ai == bi
		}
	}
	return reflect.DeepEqual(a, b)
}

func asInt64(v interface{}) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), true
	}
	return 0, false
}
