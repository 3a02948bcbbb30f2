// Package entity implements the in-memory representation of one row: field
// values keyed by field name, an explicit dirty set over a snapshot, and
// relation slots that start unloaded and are filled at most once.
//
// An Entity is not safe for concurrent mutation; share it across goroutines
// only for reading.
package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/tracking"
)

var (
	// ErrUnknownField is returned when a name is not a column of the entity
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownRelation is returned when a name is not a relation of the entity
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrInvalidRelationValue is returned when a relation slot receives a value
	// that does not match the relation kind
	ErrInvalidRelationValue = errors.New("invalid relation value")
)

// State is the lifecycle state of an entity
type State int

const (
	// StateNew entities have never been stored
	StateNew State = iota
	// StatePersisted entities were hydrated from or saved to storage
	StatePersisted
	// StateDeleted is terminal
	StateDeleted
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePersisted:
		return "persisted"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// RelationLoader fetches the value of one relation for a single entity. The
// result is nil or *Entity for to-one relations and []*Entity for to-many.
type RelationLoader interface {
	Fetch(ctx context.Context, e *Entity, rel *schema.Relation) (interface{}, error)
}

// Entity is one row of an entity type
type Entity struct {
	meta      *schema.EntityMeta
	values    map[string]interface{}
	tracker   *tracking.ChangeTracker
	relations map[string]interface{}
	state     State
}

// New creates an unsaved entity with column defaults applied. Defaults are
// part of the snapshot and are not dirty.
func New(meta *schema.EntityMeta) *Entity {
	values := make(map[string]interface{}, len(meta.Columns()))
	for _, col := range meta.Columns() {
		values[col.Field] = col.Default
	}

	return &Entity{
		meta:      meta,
		values:    values,
		tracker:   tracking.NewChangeTracker(values),
		relations: make(map[string]interface{}),
		state:     StateNew,
	}
}

// Hydrated creates a persisted entity from a raw storage row
func Hydrated(meta *schema.EntityMeta, raw map[string]interface{}) (*Entity, error) {
	e := New(meta)
	if err := e.Hydrate(raw); err != nil {
		return nil, err
	}
	return e, nil
}

// Hydrate decodes every raw key that names a column, by storage or field
// spelling, and takes a fresh snapshot. Unknown keys are ignored. Nothing
// becomes dirty and previously marked fields are cleared.
func (e *Entity) Hydrate(raw map[string]interface{}) error {
	decoded := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		col, ok := e.meta.Column(key)
		if !ok {
			continue
		}
		native, err := col.Type.Decode(value)
		if err != nil {
			return fmt.Errorf("failed to hydrate %s.%s: %w", e.meta.Name, col.Field, err)
		}
		decoded[col.Field] = native
	}

	for field, value := range decoded {
		e.values[field] = value
	}
	e.tracker.Reset(e.values)
	e.state = StatePersisted
	return nil
}

// Meta returns the entity metadata
func (e *Entity) Meta() *schema.EntityMeta {
	return e.meta
}

// State returns the lifecycle state
func (e *Entity) State() State {
	return e.state
}

// IsNew reports whether the entity was never stored
func (e *Entity) IsNew() bool {
	return e.state == StateNew
}

// IsDeleted reports whether the entity was deleted
func (e *Entity) IsDeleted() bool {
	return e.state == StateDeleted
}

// Get returns a field value by field or storage spelling. Unknown names
// return nil.
func (e *Entity) Get(name string) interface{} {
	v, _ := e.Lookup(name)
	return v
}

// Lookup returns a field value and whether name is a column
func (e *Entity) Lookup(name string) (interface{}, bool) {
	col, ok := e.meta.Column(name)
	if !ok {
		return nil, false
	}
	return e.values[col.Field], true
}

// Set assigns a field value and marks the field modified
func (e *Entity) Set(name string, value interface{}) error {
	col, ok := e.meta.Column(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, e.meta.Name, name)
	}
	e.values[col.Field] = value
	e.tracker.Mark(col.Field)
	return nil
}

// SetRaw assigns a field value without touching the dirty set. Callers that
// use it take responsibility for calling MarkModified when the change must
// be persisted.
func (e *Entity) SetRaw(name string, value interface{}) error {
	col, ok := e.meta.Column(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, e.meta.Name, name)
	}
	e.values[col.Field] = value
	return nil
}

// MarkModified adds fields to the dirty set. Names that are not columns are
// recorded too; they are dropped when the storage map is built.
func (e *Entity) MarkModified(fields ...string) {
	for _, f := range fields {
		if col, ok := e.meta.Column(f); ok {
			f = col.Field
		}
		e.tracker.Mark(f)
	}
}

// IsDirty reports whether a field is marked modified
func (e *Entity) IsDirty(name string) bool {
	if col, ok := e.meta.Column(name); ok {
		name = col.Field
	}
	return e.tracker.Changed(name)
}

// HasChanges reports whether any field is marked modified
func (e *Entity) HasChanges() bool {
	return e.tracker.HasChanges()
}

// DirtyFields returns the marked fields in sorted order
func (e *Entity) DirtyFields() []string {
	return e.tracker.ChangedFields()
}

// Original returns the snapshot value of a field
func (e *Entity) Original(name string) interface{} {
	if col, ok := e.meta.Column(name); ok {
		name = col.Field
	}
	return e.tracker.PreviousValue(name)
}

// ChangedFrom reports whether a dirty field's snapshot value equals value
func (e *Entity) ChangedFrom(name string, value interface{}) bool {
	if col, ok := e.meta.Column(name); ok {
		name = col.Field
	}
	return e.tracker.ChangedFrom(name, value)
}

// ChangedTo reports whether a dirty field's current value equals value
func (e *Entity) ChangedTo(name string, value interface{}) bool {
	if col, ok := e.meta.Column(name); ok {
		name = col.Field
	}
	return e.tracker.ChangedTo(e.values, name, value)
}

// Changes returns the snapshot and current value of every dirty field
func (e *Entity) Changes() map[string]*tracking.FieldChange {
	return e.tracker.Changes(e.values)
}

// Values returns a copy of the current field values
func (e *Entity) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// ToStorageMap encodes every column, keyed by storage column name
func (e *Entity) ToStorageMap() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(e.values))
	for _, col := range e.meta.Columns() {
		v, err := col.Type.Encode(e.values[col.Field])
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s.%s: %w", e.meta.Name, col.Field, err)
		}
		out[col.ColumnName()] = v
	}
	return out, nil
}

// ModifiedStorageMap encodes only dirty columns, keyed by storage column
// name. The boolean is false when nothing is dirty, which lets callers skip
// an UPDATE entirely. Dirty names that are not columns are dropped.
func (e *Entity) ModifiedStorageMap() (map[string]interface{}, bool, error) {
	dirty := e.tracker.ChangedFields()
	if len(dirty) == 0 {
		return nil, false, nil
	}

	out := make(map[string]interface{}, len(dirty))
	for _, field := range dirty {
		col, ok := e.meta.Column(field)
		if !ok {
			continue
		}
		v, err := col.Type.Encode(e.values[col.Field])
		if err != nil {
			return nil, false, fmt.Errorf("failed to encode %s.%s: %w", e.meta.Name, col.Field, err)
		}
		out[col.ColumnName()] = v
	}
	return out, true, nil
}

// ID returns the current primary key value
func (e *Entity) ID() interface{} {
	return e.values[e.meta.PrimaryKey().Field]
}

// OriginalID returns the primary key value from the snapshot, which is the
// identity the stored row has even if the key was mutated since
func (e *Entity) OriginalID() interface{} {
	return e.tracker.PreviousValue(e.meta.PrimaryKey().Field)
}

// HasIdentity reports whether the primary key is set
func (e *Entity) HasIdentity() bool {
	return e.ID() != nil
}

// AssignID decodes a driver-generated identity into the primary key
// without marking it dirty
func (e *Entity) AssignID(raw interface{}) error {
	pk := e.meta.PrimaryKey()
	v, err := pk.Type.Decode(raw)
	if err != nil {
		return fmt.Errorf("failed to decode generated %s.%s: %w", e.meta.Name, pk.Field, err)
	}
	e.values[pk.Field] = v
	return nil
}

// MarkSaved clears the dirty set, refreshes the snapshot and marks the
// entity persisted
func (e *Entity) MarkSaved() {
	e.tracker.Reset(e.values)
	e.state = StatePersisted
}

// MarkDeleted moves the entity to its terminal state
func (e *Entity) MarkDeleted() {
	e.state = StateDeleted
}

// Validate checks every column value against its column and type
func (e *Entity) Validate() schema.FieldErrors {
	return e.meta.Validate(e.values)
}

// String renders the entity for diagnostics
func (e *Entity) String() string {
	return fmt.Sprintf("%s(%v)", e.meta.Name, e.ID())
}
