// Package ddl renders CREATE TABLE and CREATE INDEX statements from entity
// metadata, including the pivot tables of many-to-many relations.
//
// Belongs-to relations become foreign key constraints unless the table
// declares one on the same columns. Derived constraints use ON DELETE SET
// NULL for nullable keys and RESTRICT otherwise.
package ddl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/orm/internal/orm/dialect"
	"github.com/conduit-lang/orm/internal/orm/schema"
)

// ErrCircularReference is returned when foreign keys form a cycle between
// tables, so no creation order exists
var ErrCircularReference = errors.New("circular foreign key reference")

// Generator generates DDL statements for one dialect
type Generator struct {
	dialect dialect.Dialect
}

// NewGenerator creates a new DDL generator
func NewGenerator(d dialect.Dialect) *Generator {
	return &Generator{dialect: d}
}

// Schema returns every statement creating the registry's tables: entity
// tables with referenced tables first, then pivot tables, then indexes.
// Statements carry no trailing semicolon.
func (g *Generator) Schema(reg *schema.Registry) ([]string, error) {
	metas := make([]*schema.EntityMeta, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		meta, err := reg.Meta(name)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}

	ordered, err := creationOrder(metas)
	if err != nil {
		return nil, err
	}

	var tables, indexes []string
	for _, meta := range ordered {
		stmt, err := g.CreateTable(meta)
		if err != nil {
			return nil, err
		}
		tables = append(tables, stmt)

		idx, err := g.Indexes(meta)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx...)
	}

	pivots, err := g.PivotTables(ordered)
	if err != nil {
		return nil, err
	}
	tables = append(tables, pivots...)

	return append(tables, indexes...), nil
}

// CreateTable generates the CREATE TABLE statement for an entity
func (g *Generator) CreateTable(meta *schema.EntityMeta) (string, error) {
	fks, err := foreignKeys(meta)
	if err != nil {
		return "", err
	}

	defs := make([]string, 0, len(meta.Columns())+len(fks))
	for _, col := range orderColumns(meta.Columns()) {
		defs = append(defs, g.column(col))
	}
	for _, fk := range fks {
		defs = append(defs, g.foreignKey(meta.TableName(), fk))
	}

	return g.createTable(meta.TableName(), defs), nil
}

// Indexes generates the declared indexes of an entity plus one index per
// foreign key column not already leading another index. MySQL indexes
// foreign keys itself, so those are skipped there.
func (g *Generator) Indexes(meta *schema.EntityMeta) ([]string, error) {
	table := meta.TableName()
	var out []string
	leading := map[string]bool{}

	for _, idx := range meta.Table.Indexes {
		if len(idx.Columns) == 0 {
			return nil, fmt.Errorf("index on %s has no columns", table)
		}
		name := idx.Name
		if name == "" {
			name = "idx_" + table + "_" + strings.Join(idx.Columns, "_")
			if idx.Unique {
				name += "_unique"
			}
		}
		out = append(out, g.createIndex(name, table, idx.Columns, idx.Unique))
		leading[idx.Columns[0]] = true
	}

	if g.dialect == dialect.MySQL {
		return out, nil
	}

	fks, err := foreignKeys(meta)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		col := fk.Columns[0]
		if leading[col] {
			continue
		}
		leading[col] = true
		out = append(out, g.createIndex("idx_"+table+"_"+col, table, []string{col}, false))
	}
	return out, nil
}

// PivotTables generates one table per distinct belongs-to-many pivot. Both
// pivot columns form the primary key and cascade on delete.
func (g *Generator) PivotTables(metas []*schema.EntityMeta) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	for _, meta := range metas {
		for _, rel := range meta.Relations() {
			if rel.Kind != schema.RelationBelongsToMany {
				continue
			}
			pivot, err := rel.PivotTable()
			if err != nil {
				return nil, err
			}
			if seen[pivot] {
				continue
			}
			seen[pivot] = true

			related, err := rel.RelatedMeta()
			if err != nil {
				return nil, err
			}
			relatedKey, err := rel.RelatedKey()
			if err != nil {
				return nil, err
			}

			ownerCol, err := keyColumn(meta, rel.LocalKey())
			if err != nil {
				return nil, err
			}
			relatedCol, err := keyColumn(related, relatedKey)
			if err != nil {
				return nil, err
			}

			fpk, rpk := rel.ForeignPivotKey(), rel.RelatedPivotKey()
			defs := []string{
				fmt.Sprintf("%s %s NOT NULL", g.quote(fpk), ownerCol.SQLType(g.dialect)),
				fmt.Sprintf("%s %s NOT NULL", g.quote(rpk), relatedCol.SQLType(g.dialect)),
				fmt.Sprintf("PRIMARY KEY (%s)", g.quoteList([]string{fpk, rpk})),
				g.foreignKey(pivot, schema.ForeignKey{
					Columns:           []string{fpk},
					References:        meta.TableName(),
					ReferencedColumns: []string{ownerCol.ColumnName()},
					OnDelete:          schema.CascadeCascade,
				}),
				g.foreignKey(pivot, schema.ForeignKey{
					Columns:           []string{rpk},
					References:        related.TableName(),
					ReferencedColumns: []string{relatedCol.ColumnName()},
					OnDelete:          schema.CascadeCascade,
				}),
			}
			out = append(out, g.createTable(pivot, defs))
		}
	}
	return out, nil
}

func (g *Generator) createTable(table string, defs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", g.quote(table))
	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

func (g *Generator) createIndex(name, table string, columns []string, unique bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if g.dialect != dialect.MySQL {
		b.WriteString("IF NOT EXISTS ")
	}
	fmt.Fprintf(&b, "%s ON %s (%s)", g.quote(name), g.quote(table), g.quoteList(columns))
	return b.String()
}

// column renders one column definition. Generated identities use the
// dialect's auto-increment form.
func (g *Generator) column(col *schema.Column) string {
	parts := []string{g.quote(col.ColumnName())}

	switch {
	case col.Generated():
		parts = append(parts, g.identity(col)...)
	case col.Primary:
		parts = append(parts, col.SQLType(g.dialect), "NOT NULL", "PRIMARY KEY")
	default:
		parts = append(parts, col.SQLType(g.dialect))
		if !col.Nullable {
			parts = append(parts, "NOT NULL")
		}
		if col.Unique {
			parts = append(parts, "UNIQUE")
		}
	}
	return strings.Join(parts, " ")
}

func (g *Generator) identity(col *schema.Column) []string {
	sqlType := col.SQLType(g.dialect)
	switch g.dialect {
	case dialect.SQLite:
		return []string{"INTEGER", "PRIMARY KEY", "AUTOINCREMENT"}
	case dialect.Postgres:
		switch sqlType {
		case "BIGINT":
			return []string{"BIGSERIAL", "PRIMARY KEY"}
		case "INTEGER":
			return []string{"SERIAL", "PRIMARY KEY"}
		}
		return []string{sqlType, "PRIMARY KEY"}
	default:
		return []string{sqlType, "NOT NULL", "AUTO_INCREMENT", "PRIMARY KEY"}
	}
}

func (g *Generator) foreignKey(table string, fk schema.ForeignKey) string {
	name := fk.Name
	if name == "" {
		name = fmt.Sprintf("%s_%s_fkey", table, strings.Join(fk.Columns, "_"))
	}
	refs := fk.ReferencedColumns
	if len(refs) == 0 {
		refs = []string{"id"}
	}
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		g.quote(name), g.quoteList(fk.Columns), g.quote(fk.References), g.quoteList(refs),
		fk.OnDelete.SQL(), fk.OnUpdate.SQL())
}

func (g *Generator) quote(name string) string {
	return g.dialect.QuoteIdentifier(name)
}

func (g *Generator) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = g.quote(n)
	}
	return strings.Join(quoted, ", ")
}

// foreignKeys returns the declared constraints of an entity followed by one
// per belongs-to relation whose key column has no declared constraint
func foreignKeys(meta *schema.EntityMeta) ([]schema.ForeignKey, error) {
	fks := make([]schema.ForeignKey, 0, len(meta.Table.ForeignKeys))
	declared := map[string]bool{}
	for _, fk := range meta.Table.ForeignKeys {
		if len(fk.Columns) == 0 || fk.References == "" {
			return nil, fmt.Errorf("foreign key on %s needs columns and a referenced table", meta.TableName())
		}
		fks = append(fks, fk)
		declared[strings.Join(fk.Columns, ",")] = true
	}

	for _, rel := range meta.Relations() {
		if rel.Kind != schema.RelationBelongsTo {
			continue
		}
		col, err := keyColumn(meta, rel.ForeignKey())
		if err != nil {
			return nil, err
		}
		if declared[col.ColumnName()] {
			continue
		}

		related, err := rel.RelatedMeta()
		if err != nil {
			return nil, err
		}
		ownerKey, err := rel.OwnerKey()
		if err != nil {
			return nil, err
		}

		fk := schema.ForeignKey{
			Columns:           []string{col.ColumnName()},
			References:        related.TableName(),
			ReferencedColumns: []string{ownerKey},
		}
		if col.Nullable {
			fk.OnDelete = schema.CascadeSetNull
		}
		fks = append(fks, fk)
		declared[col.ColumnName()] = true
	}
	return fks, nil
}

func keyColumn(meta *schema.EntityMeta, name string) (*schema.Column, error) {
	col, ok := meta.Column(name)
	if !ok {
		return nil, fmt.Errorf("%s has no key column %q", meta.Name, name)
	}
	return col, nil
}

// orderColumns puts the primary key column first and keeps declaration
// order otherwise
func orderColumns(cols []*schema.Column) []*schema.Column {
	out := make([]*schema.Column, 0, len(cols))
	for _, c := range cols {
		if c.Primary {
			out = append(out, c)
		}
	}
	for _, c := range cols {
		if !c.Primary {
			out = append(out, c)
		}
	}
	return out
}

// creationOrder sorts metas so every table follows the tables its foreign
// keys reference. Ties keep input order; self references are ignored.
func creationOrder(metas []*schema.EntityMeta) ([]*schema.EntityMeta, error) {
	known := make(map[string]bool, len(metas))
	for _, m := range metas {
		known[m.TableName()] = true
	}

	deps := make(map[string][]string, len(metas))
	for _, m := range metas {
		fks, err := foreignKeys(m)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			if fk.References != m.TableName() && known[fk.References] {
				deps[m.TableName()] = append(deps[m.TableName()], fk.References)
			}
		}
	}

	created := make(map[string]bool, len(metas))
	out := make([]*schema.EntityMeta, 0, len(metas))
	for len(out) < len(metas) {
		progressed := false
		for _, m := range metas {
			table := m.TableName()
			if created[table] || !ready(deps[table], created) {
				continue
			}
			created[table] = true
			out = append(out, m)
			progressed = true
		}
		if !progressed {
			var pending []string
			for _, m := range metas {
				if !created[m.TableName()] {
					pending = append(pending, m.TableName())
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrCircularReference, strings.Join(pending, ", "))
		}
	}
	return out, nil
}

func ready(deps []string, created map[string]bool) bool {
	for _, d := range deps {
		if !created[d] {
			return false
		}
	}
	return true
}
