package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownEntity is returned when an entity type is not registered
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrDuplicateEntity is returned when an entity type is registered twice
	ErrDuplicateEntity = errors.New("entity already registered")
)

// Definition is the declaration of an entity type: its columns, relations
// and table details. Definitions are registered once at startup.
type Definition struct {
	Name        string
	Table       string // Explicit table name, defaults to the naming strategy
	Columns     []*Column
	Relations   []*Relation
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// EntityMeta is the resolved, read-only metadata of an entity type
type EntityMeta struct {
	Name  string
	Table *Table

	columns   []*Column
	byField   map[string]*Column
	byColumn  map[string]*Column
	primary   *Column
	relations []*Relation
	relByName map[string]*Relation
	registry  *Registry
}

// TableName returns the storage table name
func (m *EntityMeta) TableName() string {
	return m.Table.Name
}

// Columns returns the columns in declaration order
func (m *EntityMeta) Columns() []*Column {
	out := make([]*Column, len(m.columns))
	copy(out, m.columns)
	return out
}

// Column finds a column by field name or storage column name
func (m *EntityMeta) Column(name string) (*Column, bool) {
	if c, ok := m.byField[name]; ok {
		return c, true
	}
	c, ok := m.byColumn[name]
	return c, ok
}

// HasColumn reports whether name is a field or storage column of the entity
func (m *EntityMeta) HasColumn(name string) bool {
	_, ok := m.Column(name)
	return ok
}

// ColumnName resolves a field or column spelling to the storage column name
func (m *EntityMeta) ColumnName(name string) (string, bool) {
	c, ok := m.Column(name)
	if !ok {
		return "", false
	}
	return c.ColumnName(), true
}

// FieldName resolves a field or column spelling to the field name
func (m *EntityMeta) FieldName(name string) (string, bool) {
	c, ok := m.Column(name)
	if !ok {
		return "", false
	}
	return c.Field, true
}

// PrimaryKey returns the primary key column
func (m *EntityMeta) PrimaryKey() *Column {
	return m.primary
}

// Relations returns the bound relations in declaration order
func (m *EntityMeta) Relations() []*Relation {
	out := make([]*Relation, len(m.relations))
	copy(out, m.relations)
	return out
}

// Relation finds a bound relation by name
func (m *EntityMeta) Relation(name string) (*Relation, bool) {
	r, ok := m.relByName[name]
	return r, ok
}

// Registry returns the registry the metadata was built by
func (m *EntityMeta) Registry() *Registry {
	return m.registry
}

// Validate checks native field values against every column
func (m *EntityMeta) Validate(values map[string]interface{}) FieldErrors {
	errs := make(FieldErrors)
	for _, col := range m.columns {
		errs.Add(col.Field, col.Validate(values[col.Field])...)
	}
	return errs
}

type metaEntry struct {
	once sync.Once
	meta *EntityMeta
	err  error
}

// Registry holds entity definitions and lazily builds their metadata. Built
// metadata is memoized for the lifetime of the registry and never rebuilt.
type Registry struct {
	naming      NamingStrategy
	validator   *SchemaValidator
	mu          sync.RWMutex
	definitions map[string]*Definition
	metas       sync.Map // name -> *metaEntry
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithNaming sets the naming strategy used for derived names
func WithNaming(ns NamingStrategy) RegistryOption {
	return func(r *Registry) {
		r.naming = ns
	}
}

// NewRegistry creates a new schema registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		definitions: make(map[string]*Definition),
		validator:   NewSchemaValidator(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Naming returns the registry naming strategy
func (r *Registry) Naming() NamingStrategy {
	return r.naming
}

// Register adds an entity definition after structural validation
func (r *Registry) Register(def *Definition) error {
	if err := r.validator.ValidateStructural(def); err != nil {
		return err
	}

	name := ShortName(def.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, name)
	}
	r.definitions[name] = def
	return nil
}

// MustRegister registers definitions and panics on the first error
func (r *Registry) MustRegister(defs ...*Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Names returns the registered entity names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Meta returns the metadata for an entity type, building it on first use
func (r *Registry) Meta(name string) (*EntityMeta, error) {
	name = ShortName(name)

	r.mu.RLock()
	def, ok := r.definitions[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}

	v, _ := r.metas.LoadOrStore(name, &metaEntry{})
	entry := v.(*metaEntry)
	entry.once.Do(func() {
		entry.meta, entry.err = r.build(name, def)
	})
	return entry.meta, entry.err
}

// MustMeta is Meta for callers that registered the entity themselves
func (r *Registry) MustMeta(name string) *EntityMeta {
	meta, err := r.Meta(name)
	if err != nil {
		panic(err)
	}
	return meta
}

// build resolves columns and binds relations to their owner. Related
// entities are looked up only when a relation key is requested, so
// definitions may reference each other in any order.
func (r *Registry) build(name string, def *Definition) (*EntityMeta, error) {
	tableName := def.Table
	if tableName == "" {
		tableName = r.naming.TableName(name)
	}

	meta := &EntityMeta{
		Name: name,
		Table: &Table{
			Name:        tableName,
			Indexes:     append([]Index(nil), def.Indexes...),
			ForeignKeys: append([]ForeignKey(nil), def.ForeignKeys...),
		},
		byField:   make(map[string]*Column, len(def.Columns)),
		byColumn:  make(map[string]*Column, len(def.Columns)),
		relByName: make(map[string]*Relation, len(def.Relations)),
		registry:  r,
	}

	for _, decl := range def.Columns {
		col := *decl
		if col.Name == "" {
			col.Name = col.Field
		}
		meta.columns = append(meta.columns, &col)
		meta.byField[col.Field] = &col
		meta.byColumn[col.Name] = &col
		if col.Primary && meta.primary == nil {
			meta.primary = &col
		}
	}

	for _, decl := range def.Relations {
		rel := decl.bind(meta, r)
		meta.relations = append(meta.relations, rel)
		meta.relByName[rel.Name] = rel
	}

	return meta, nil
}

// Validate builds every registered entity and checks that relations point
// at registered entities and at columns that exist.
func (r *Registry) Validate() error {
	var errs []error
	for _, name := range r.Names() {
		meta, err := r.Meta(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.validator.ValidateRelations(meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry
func Default() *Registry {
	return defaultRegistry
}

// Register adds a definition to the process-wide registry
func Register(def *Definition) error {
	return defaultRegistry.Register(def)
}

// MetaFor returns metadata from the process-wide registry
func MetaFor(name string) (*EntityMeta, error) {
	return defaultRegistry.Meta(name)
}
