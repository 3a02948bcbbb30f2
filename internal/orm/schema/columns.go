// Package schema holds the declarative metadata of the ORM: columns, tables,
// relations and the registry that turns entity definitions into cached,
// immutable EntityMeta values.
package schema

import (
	"sort"
	"strings"

	"github.com/conduit-lang/orm/internal/orm/dialect"
	"github.com/conduit-lang/orm/internal/orm/types"
)

// Column describes one persisted field of an entity
type Column struct {
	Field         string      // Name used by entity accessors
	Name          string      // Storage column name, defaults to Field
	Type          types.Type  // Value converter
	Nullable      bool        // NULL allowed
	Primary       bool        // Part of the primary key
	AutoIncrement bool        // Identity generated by the database
	Unique        bool        // Unique constraint (DDL only)
	Default       interface{} // Native value assigned to new entities
}

// ColumnName returns the storage column name
func (c *Column) ColumnName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Field
}

// SQLType returns the column type for the dialect
func (c *Column) SQLType(d dialect.Dialect) string {
	return c.Type.SQLType(d)
}

// Generated reports whether the database assigns the value on insert
func (c *Column) Generated() bool {
	return c.Primary && c.AutoIncrement
}

// Validate checks a native value against the column. It never fails hard;
// an empty result means the value is acceptable.
func (c *Column) Validate(value interface{}) []string {
	if types.IsNil(value) {
		if c.Nullable || c.Generated() || c.Default != nil {
			return nil
		}
		return []string{"must not be null"}
	}
	return c.Type.Validate(value)
}

// CascadeAction represents cascade actions for foreign keys
type CascadeAction int

const (
	CascadeRestrict CascadeAction = iota
	CascadeCascade
	CascadeSetNull
	CascadeNoAction
)

// SQL returns the referential action clause
func (c CascadeAction) SQL() string {
	switch c {
	case CascadeCascade:
		return "CASCADE"
	case CascadeSetNull:
		return "SET NULL"
	case CascadeNoAction:
		return "NO ACTION"
	default:
		return "RESTRICT"
	}
}

// Index describes a table index
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// ForeignKey describes a foreign key constraint. It is informational for DDL
// tooling and never enforced in-process.
type ForeignKey struct {
	Name              string
	Columns           []string
	References        string
	ReferencedColumns []string
	OnDelete          CascadeAction
	OnUpdate          CascadeAction
}

// Table describes the storage table of an entity
type Table struct {
	Name        string
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// FieldErrors collects validation reasons per field
type FieldErrors map[string][]string

// Add appends reasons for a field
func (fe FieldErrors) Add(field string, reasons ...string) {
	if len(reasons) == 0 {
		return
	}
	fe[field] = append(fe[field], reasons...)
}

// Empty reports whether no reasons were collected
func (fe FieldErrors) Empty() bool {
	return len(fe) == 0
}

// Fields returns the offending field names in sorted order
func (fe FieldErrors) Fields() []string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// String renders "field: reason; field: reason"
func (fe FieldErrors) String() string {
	parts := make([]string, 0, len(fe))
	for _, f := range fe.Fields() {
		for _, reason := range fe[f] {
			parts = append(parts, f+": "+reason)
		}
	}
	return strings.Join(parts, "; ")
}
