package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/repository"
)

func newFindCommand(opts *globalOptions) *cobra.Command {
	var with []string

	cmd := &cobra.Command{
		Use:   "find <entity> <id>",
		Short: "Print one record as JSON",
		Long: `Load a record by primary key and print it as JSON.

Relations named with --with are eagerly loaded; dotted paths load nested
relations. Unknown relation names fail before any query runs.`,
		Example: `  ormctl find User 1
  ormctl find Post 3 --with user,comments,tags`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.close(cmd)

			repo, err := s.repository(args[0])
			if err != nil {
				return err
			}

			e, err := repo.FindWithRelations(cmd.Context(), args[1], with...)
			if err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("%s %s not found", repo.Meta().Name, args[1])
			}
			return writeJSON(cmd, document(e))
		},
	}

	cmd.Flags().StringSliceVarP(&with, "with", "w", nil, "relations to eager load (comma separated, dotted for nesting)")
	return cmd
}

func newListCommand(opts *globalOptions) *cobra.Command {
	var (
		where  []string
		order  []string
		with   []string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "Print matching records as a JSON array",
		Example: `  ormctl list User --where active=true --order "email desc" --limit 10
  ormctl list User --where active=null --with posts.tags
  ormctl list Post --where "rating>=4.5" --where "title~%go%"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseWhere(where)
			if err != nil {
				return err
			}
			orderBy, err := parseOrder(order)
			if err != nil {
				return err
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.close(cmd)

			repo, err := s.repository(args[0])
			if err != nil {
				return err
			}

			list, err := repo.FindWhereWithRelations(cmd.Context(), filters, orderBy, limit, offset, with...)
			if err != nil {
				return err
			}

			docs := make([]map[string]interface{}, len(list))
			for i, e := range list {
				docs[i] = document(e)
			}
			return writeJSON(cmd, docs)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&where, "where", nil, whereUsage)
	flags.StringArrayVar(&order, "order", nil, `ordering as "column [asc|desc]" (repeatable)`)
	flags.StringSliceVarP(&with, "with", "w", nil, "relations to eager load")
	flags.IntVar(&limit, "limit", 0, "maximum number of records (0 for no limit)")
	flags.IntVar(&offset, "offset", 0, "number of records to skip")
	return cmd
}

func newCountCommand(opts *globalOptions) *cobra.Command {
	var where []string

	cmd := &cobra.Command{
		Use:     "count <entity>",
		Short:   "Count matching records",
		Example: `  ormctl count Post --where user_id=1
  ormctl count User --where "id>1" --where active!=null`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseWhere(where)
			if err != nil {
				return err
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.close(cmd)

			repo, err := s.repository(args[0])
			if err != nil {
				return err
			}

			n, err := repo.CountWhere(cmd.Context(), filters)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatInt(n, 10))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&where, "where", nil, whereUsage)
	return cmd
}

const whereUsage = "filter as column<op>value with op one of = != > >= < <= ~ (LIKE); null with = or != matches NULL (repeatable)"

var whereOperators = map[string]query.Operator{
	"=":  query.OpEqual,
	"!=": query.OpNotEqual,
	">":  query.OpGreaterThan,
	">=": query.OpGreaterThanOrEqual,
	"<":  query.OpLessThan,
	"<=": query.OpLessThanOrEqual,
	"~":  query.OpLike,
}

// parseWhere turns column<op>value terms into repository filters. The
// operator is the first run of operator characters; the literal null
// compares against NULL.
func parseWhere(terms []string) ([]repository.Filter, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	filters := make([]repository.Filter, 0, len(terms))
	for _, term := range terms {
		start := strings.IndexAny(term, "=!<>~")
		if start < 0 {
			return nil, fmt.Errorf("invalid --where %q, expected column<op>value", term)
		}
		end := start + 1
		if end < len(term) && term[end] == '=' && term[start] != '=' && term[start] != '~' {
			end++
		}

		col := strings.TrimSpace(term[:start])
		op, ok := whereOperators[term[start:end]]
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid --where %q, expected column<op>value", term)
		}

		f := repository.Filter{Column: col, Operator: op, Value: term[end:]}
		if term[end:] == "null" {
			f.Value = nil
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func parseOrder(specs []string) ([]query.Order, error) {
	orders := make([]query.Order, 0, len(specs))
	for _, spec := range specs {
		fields := strings.Fields(spec)
		switch len(fields) {
		case 1:
			orders = append(orders, query.Order{Column: fields[0]})
		case 2:
			o, err := query.OrderBy(fields[0], fields[1])
			if err != nil {
				return nil, fmt.Errorf("invalid --order %q: %w", spec, err)
			}
			orders = append(orders, o)
		default:
			return nil, fmt.Errorf("invalid --order %q, expected \"column [asc|desc]\"", spec)
		}
	}
	return orders, nil
}

// document flattens an entity and its loaded relations into JSON-ready maps
func document(e *entity.Entity) map[string]interface{} {
	doc := e.Values()
	for _, name := range e.LoadedRelations() {
		rel, _ := e.Meta().Relation(name)
		if rel.Kind.ToMany() {
			list := e.RelatedList(name)
			docs := make([]map[string]interface{}, len(list))
			for i, related := range list {
				docs[i] = document(related)
			}
			doc[name] = docs
			continue
		}
		if related := e.Related(name); related != nil {
			doc[name] = document(related)
		} else {
			doc[name] = nil
		}
	}
	return doc
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
