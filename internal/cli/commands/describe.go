package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/orm/internal/cli/ui"
	"github.com/conduit-lang/orm/internal/orm/dialect"
	"github.com/conduit-lang/orm/internal/orm/schema"
)

func newDescribeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [entity]",
		Short: "Show registered entities and their metadata",
		Long: `Without arguments, list every registered entity with its table name.

With an entity name, show its columns with the SQL types of the configured
dialect, and its relations with the keys that join them. No database
connection is made.`,
		Example: `  # List entities
  ormctl describe

  # Show columns and relations of Post as MySQL would store them
  ormctl describe Post --driver mysql`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, reg, err := opts.load()
			if err != nil {
				return err
			}
			d, err := cfg.Dialect()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return describeAll(cmd, reg, opts.noColor)
			}

			meta, err := resolveEntity(reg, args[0], opts.noColor)
			if err != nil {
				return err
			}
			return describeEntity(cmd, meta, d, opts.noColor)
		},
	}
}

func describeAll(cmd *cobra.Command, reg *schema.Registry, noColor bool) error {
	table := ui.NewTable(cmd.OutOrStdout(), noColor, "ENTITY", "TABLE", "COLUMNS", "RELATIONS")
	for _, name := range reg.Names() {
		meta, err := reg.Meta(name)
		if err != nil {
			return err
		}
		rels := make([]string, 0, len(meta.Relations()))
		for _, rel := range meta.Relations() {
			rels = append(rels, rel.Name)
		}
		table.AddRow(meta.Name, meta.TableName(), fmt.Sprint(len(meta.Columns())), strings.Join(rels, ", "))
	}
	table.Render()
	return nil
}

func describeEntity(cmd *cobra.Command, meta *schema.EntityMeta, d dialect.Dialect, noColor bool) error {
	w := cmd.OutOrStdout()

	ui.Header(w, meta.Name, noColor)
	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Table", meta.TableName())
	pk := "-"
	if col := meta.PrimaryKey(); col != nil {
		pk = col.ColumnName()
	}
	kv.AddRow("Primary key", pk)
	kv.AddRow("Dialect", d.String())
	kv.Render()
	fmt.Fprintln(w)

	columns := ui.NewTable(w, noColor, "FIELD", "COLUMN", "TYPE", "NULL", "FLAGS")
	for _, col := range meta.Columns() {
		columns.AddRow(col.Field, col.ColumnName(), col.SQLType(d), yesNo(col.Nullable), columnFlags(col))
	}
	columns.Render()

	if len(meta.Relations()) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	relations := ui.NewTable(w, noColor, "RELATION", "KIND", "RELATED", "JOIN")
	for _, rel := range meta.Relations() {
		join, err := joinDescription(rel)
		if err != nil {
			return err
		}
		relations.AddRow(rel.Name, rel.Kind.String(), rel.Related, join)
	}
	relations.Render()
	return nil
}

// joinDescription renders the key equality a relation loads through
func joinDescription(rel *schema.Relation) (string, error) {
	related, err := rel.RelatedMeta()
	if err != nil {
		return "", err
	}
	owner := rel.Owner()

	switch rel.Kind {
	case schema.RelationBelongsTo:
		key, err := rel.OwnerKey()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.%s = %s.%s", owner.TableName(), rel.ForeignKey(), related.TableName(), key), nil
	case schema.RelationBelongsToMany:
		pivot, err := rel.PivotTable()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s via %s(%s, %s)", related.TableName(), pivot, rel.ForeignPivotKey(), rel.RelatedPivotKey()), nil
	default:
		return fmt.Sprintf("%s.%s = %s.%s", related.TableName(), rel.ForeignKey(), owner.TableName(), rel.LocalKey()), nil
	}
}

func columnFlags(col *schema.Column) string {
	var flags []string
	if col.Primary {
		flags = append(flags, "primary")
	}
	if col.AutoIncrement {
		flags = append(flags, "auto")
	}
	if col.Unique {
		flags = append(flags, "unique")
	}
	return strings.Join(flags, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
