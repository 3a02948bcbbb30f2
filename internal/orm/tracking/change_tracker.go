// Package tracking provides explicit dirty tracking for entities. A tracker
// holds the snapshot captured at construction or hydration and the set of
// fields that mutators marked as modified since then.
package tracking

import (
	"reflect"
	"sort"
	"sync"
)

// FieldChange represents a change to a single field
type FieldChange struct {
	Field    string
	OldValue interface{}
	NewValue interface{}
}

// ChangeTracker records which fields were marked modified. Marking is
// explicit: assigning a value equal to the snapshot still counts as a
// change once the field was marked, and unmarked fields never count.
type ChangeTracker struct {
	mu       sync.RWMutex
	snapshot map[string]interface{}
	dirty    map[string]struct{}
}

// NewChangeTracker creates a tracker whose snapshot is a deep copy of values
func NewChangeTracker(values map[string]interface{}) *ChangeTracker {
	return &ChangeTracker{
		snapshot: deepCopyMap(values),
		dirty:    make(map[string]struct{}),
	}
}

// deepCopyMap creates a deep copy of a map
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

// deepCopyValue copies slices and maps so later in-place mutation of the
// current value cannot leak into the snapshot. Element types are preserved.
func deepCopyValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	switch tv := v.(type) {
	case []byte:
		out := make([]byte, len(tv))
		copy(out, tv)
		return out
	case map[string]interface{}:
		return deepCopyMap(tv)
	}

	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Slice:
		if val.IsNil() {
			return v
		}
		out := reflect.MakeSlice(val.Type(), val.Len(), val.Len())
		for i := 0; i < val.Len(); i++ {
			elem := deepCopyValue(val.Index(i).Interface())
			if elem == nil {
				continue
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface()
	case reflect.Map:
		if val.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(val.Type(), val.Len())
		iter := val.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	default:
		// Scalars, structs and pointers are kept as-is
		return v
	}
}

// deepEqual compares two values for equality, handling nil
func deepEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Mark adds fields to the dirty set. Marking a field twice is a no-op.
func (ct *ChangeTracker) Mark(fields ...string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for _, f := range fields {
		ct.dirty[f] = struct{}{}
	}
}

// Changed returns true if the field is in the dirty set
func (ct *ChangeTracker) Changed(field string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	_, ok := ct.dirty[field]
	return ok
}

// ChangedFields returns the dirty fields in sorted order
func (ct *ChangeTracker) ChangedFields() []string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	fields := make([]string, 0, len(ct.dirty))
	for field := range ct.dirty {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// HasChanges returns true if any field is marked
func (ct *ChangeTracker) HasChanges() bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.dirty) > 0
}

// PreviousValue returns the snapshot value of a field.
// Returns nil if the field was absent from the snapshot.
func (ct *ChangeTracker) PreviousValue(field string) interface{} {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return deepCopyValue(ct.snapshot[field])
}

// Changes pairs each dirty field's snapshot value with its value in current
func (ct *ChangeTracker) Changes(current map[string]interface{}) map[string]*FieldChange {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	result := make(map[string]*FieldChange, len(ct.dirty))
	for field := range ct.dirty {
		result[field] = &FieldChange{
			Field:    field,
			OldValue: ct.snapshot[field],
			NewValue: current[field],
		}
	}
	return result
}

// ChangedTo returns true if the field is dirty and its current value equals value
func (ct *ChangeTracker) ChangedTo(current map[string]interface{}, field string, value interface{}) bool {
	if !ct.Changed(field) {
		return false
	}
	return deepEqual(current[field], value)
}

// ChangedFrom returns true if the field is dirty and its snapshot value equals value
func (ct *ChangeTracker) ChangedFrom(field string, value interface{}) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	if _, ok := ct.dirty[field]; !ok {
		return false
	}
	return deepEqual(ct.snapshot[field], value)
}

// Reset clears the dirty set and takes current as the new snapshot.
// This should be called after a successful save operation.
func (ct *ChangeTracker) Reset(current map[string]interface{}) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.snapshot = deepCopyMap(current)
	ct.dirty = make(map[string]struct{})
}
