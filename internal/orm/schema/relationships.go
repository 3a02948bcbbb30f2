package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationKind represents the type of relationship
type RelationKind int

const (
	RelationHasOne RelationKind = iota
	RelationHasMany
	RelationBelongsTo
	RelationBelongsToMany
)

// String returns the string representation of the relationship type
func (k RelationKind) String() string {
	switch k {
	case RelationHasOne:
		return "has_one"
	case RelationHasMany:
		return "has_many"
	case RelationBelongsTo:
		return "belongs_to"
	case RelationBelongsToMany:
		return "belongs_to_many"
	default:
		return "unknown"
	}
}

// ToMany reports whether the relation resolves to a list
func (k RelationKind) ToMany() bool {
	return k == RelationHasMany || k == RelationBelongsToMany
}

// Relation describes a relationship declared on an entity.
//
// Relations are declared with HasOne, HasMany, BelongsTo and BelongsToMany
// and bound to their owning entity when the registry builds its EntityMeta.
// HasOne and HasMany derive their foreign key from the owner's type name,
// so their key accessors panic if called on a declaration that was never
// bound; relations reached through an EntityMeta are always bound.
type Relation struct {
	Name    string
	Kind    RelationKind
	Related string

	// Explicit overrides; empty means derive by convention
	ForeignKeyName      string
	LocalKeyName        string
	OwnerKeyName        string
	PivotTableName      string
	ForeignPivotKeyName string
	RelatedPivotKeyName string
	RelatedKeyName      string

	owner    *EntityMeta
	registry *Registry
}

// HasOne declares a one-to-one relation whose foreign key lives on related
func HasOne(name, related string) *Relation {
	return &Relation{Name: name, Kind: RelationHasOne, Related: ShortName(related)}
}

// HasMany declares a one-to-many relation whose foreign key lives on related
func HasMany(name, related string) *Relation {
	return &Relation{Name: name, Kind: RelationHasMany, Related: ShortName(related)}
}

// BelongsTo declares the inverse side: the foreign key lives on the owner
func BelongsTo(name, related string) *Relation {
	return &Relation{Name: name, Kind: RelationBelongsTo, Related: ShortName(related)}
}

// BelongsToMany declares a many-to-many relation through a pivot table
func BelongsToMany(name, related string) *Relation {
	return &Relation{Name: name, Kind: RelationBelongsToMany, Related: ShortName(related)}
}

// WithForeignKey overrides the foreign key column
func (r *Relation) WithForeignKey(column string) *Relation {
	r.ForeignKeyName = column
	return r
}

// WithLocalKey overrides the local key column
func (r *Relation) WithLocalKey(column string) *Relation {
	r.LocalKeyName = column
	return r
}

// WithOwnerKey overrides the referenced key of a belongs-to relation
func (r *Relation) WithOwnerKey(column string) *Relation {
	r.OwnerKeyName = column
	return r
}

// WithPivot overrides the pivot table and its two key columns. Empty
// arguments keep the derived name.
func (r *Relation) WithPivot(table, foreignPivotKey, relatedPivotKey string) *Relation {
	r.PivotTableName = table
	r.ForeignPivotKeyName = foreignPivotKey
	r.RelatedPivotKeyName = relatedPivotKey
	return r
}

// WithRelatedKey overrides the key on the related table joined to the pivot
func (r *Relation) WithRelatedKey(column string) *Relation {
	r.RelatedKeyName = column
	return r
}

// bind returns a copy of the declaration attached to its owning entity
func (r *Relation) bind(owner *EntityMeta, registry *Registry) *Relation {
	bound := *r
	bound.owner = owner
	bound.registry = registry
	return &bound
}

// Bound reports whether the owning entity has been resolved
func (r *Relation) Bound() bool {
	return r.owner != nil
}

// Owner returns the owning entity metadata
func (r *Relation) Owner() *EntityMeta {
	return r.mustOwner()
}

func (r *Relation) mustOwner() *EntityMeta {
	if r.owner == nil {
		panic(fmt.Sprintf("relation %q used before its owner was resolved", r.Name))
	}
	return r.owner
}

func (r *Relation) naming() NamingStrategy {
	if r.registry != nil {
		return r.registry.naming
	}
	return NamingStrategy{}
}

// RelatedMeta returns the metadata of the related entity
func (r *Relation) RelatedMeta() (*EntityMeta, error) {
	if r.registry == nil {
		return nil, fmt.Errorf("relation %q used before its owner was resolved", r.Name)
	}
	return r.registry.Meta(r.Related)
}

// ForeignKey returns the foreign key column.
//
//   - HasOne/HasMany: column on the related table, default <owner>_id
//   - BelongsTo: column on the owner table, default <related>_id
//   - BelongsToMany: pivot column referencing the owner
func (r *Relation) ForeignKey() string {
	if r.ForeignKeyName != "" {
		return r.ForeignKeyName
	}
	switch r.Kind {
	case RelationHasOne, RelationHasMany:
		return r.naming().KeyName(r.mustOwner().Name)
	case RelationBelongsTo:
		return r.naming().KeyName(r.Related)
	default:
		return r.ForeignPivotKey()
	}
}

// LocalKey returns the owner-side column matched against the foreign key.
// For BelongsTo this is the foreign key column itself.
func (r *Relation) LocalKey() string {
	if r.LocalKeyName != "" {
		return r.LocalKeyName
	}
	if r.Kind == RelationBelongsTo {
		return r.ForeignKey()
	}
	return r.mustOwner().PrimaryKey().ColumnName()
}

// OwnerKey returns the related-table column a belongs-to foreign key points at
func (r *Relation) OwnerKey() (string, error) {
	if r.OwnerKeyName != "" {
		return r.OwnerKeyName, nil
	}
	related, err := r.RelatedMeta()
	if err != nil {
		return "", err
	}
	return related.PrimaryKey().ColumnName(), nil
}

// ForeignPivotKey returns the pivot column referencing the owner
func (r *Relation) ForeignPivotKey() string {
	if r.ForeignPivotKeyName != "" {
		return r.ForeignPivotKeyName
	}
	if r.Kind == RelationBelongsToMany && r.ForeignKeyName != "" {
		return r.ForeignKeyName
	}
	return r.naming().KeyName(r.mustOwner().Name)
}

// RelatedPivotKey returns the pivot column referencing the related entity
func (r *Relation) RelatedPivotKey() string {
	if r.RelatedPivotKeyName != "" {
		return r.RelatedPivotKeyName
	}
	return r.naming().KeyName(r.Related)
}

// RelatedKey returns the related-table column joined to the pivot
func (r *Relation) RelatedKey() (string, error) {
	if r.RelatedKeyName != "" {
		return r.RelatedKeyName, nil
	}
	related, err := r.RelatedMeta()
	if err != nil {
		return "", err
	}
	return related.PrimaryKey().ColumnName(), nil
}

// PivotTable returns the pivot table name: both table names sorted and
// joined with "_" unless overridden.
func (r *Relation) PivotTable() (string, error) {
	if r.PivotTableName != "" {
		return r.PivotTableName, nil
	}
	related, err := r.RelatedMeta()
	if err != nil {
		return "", err
	}
	names := []string{r.mustOwner().TableName(), related.TableName()}
	sort.Strings(names)
	return strings.Join(names, "_"), nil
}

// String renders the relation for diagnostics
func (r *Relation) String() string {
	return fmt.Sprintf("%s %s %s", r.Name, r.Kind, r.Related)
}
