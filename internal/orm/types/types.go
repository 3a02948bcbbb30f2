// Package types provides the pluggable value converters used by the ORM.
// Each Type converts between the native Go value held by an entity and the
// value handed to (or read from) the database driver, names its column type
// for a dialect and validates native values without ever failing hard.
package types

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

var (
	// ErrUnsupportedValue is returned when a value cannot be converted by a type
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrDuplicateType is returned when a type name is registered twice
	ErrDuplicateType = errors.New("type already registered")
)

// Type converts values between their native and storage representations.
//
// Encode and Decode map nil to nil before any type-specific logic runs.
// Validate returns human-readable reasons; an empty result means valid.
type Type interface {
	Name() string
	Encode(value interface{}) (interface{}, error)
	Decode(value interface{}) (interface{}, error)
	SQLType(d dialect.Dialect) string
	Validate(value interface{}) []string
}

// Registry maps type names to Type implementations
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// NewDefaultRegistry creates a registry holding the built-in types
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for name, t := range map[string]Type{
		"string":   String{Length: 255},
		"text":     String{},
		"integer":  Integer{},
		"bigint":   Integer{Big: true},
		"float":    Float{},
		"boolean":  Boolean{},
		"decimal":  Decimal{Precision: 10, Scale: 2},
		"datetime": DateTime{},
		"date":     DateTime{DateOnly: true},
		"binary":   Binary{},
		"json":     JSON{},
		"uuid":     UUID{},
	} {
		r.types[name] = t
	}
	return r
}

// Register adds a named type
func (r *Registry) Register(name string, t Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	r.types[name] = t
	return nil
}

// Get looks up a type by name
func (r *Registry) Get(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered type names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtin = NewDefaultRegistry()

// Lookup finds a type in the process-wide built-in registry
func Lookup(name string) (Type, bool) {
	return builtin.Get(name)
}

// Register adds a type to the process-wide built-in registry
func Register(name string, t Type) error {
	return builtin.Register(name, t)
}

// IsNil reports whether v is nil or a typed nil pointer, slice or map
func IsNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// indirect dereferences pointers down to the underlying value
func indirect(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// textual turns driver byte slices into strings so parsers see text
func textual(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func unsupported(t Type, v interface{}) error {
	return fmt.Errorf("%w: %s cannot convert %T", ErrUnsupportedValue, t.Name(), v)
}
