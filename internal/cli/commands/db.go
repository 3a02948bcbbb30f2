package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/orm/internal/cli/ui"
	"github.com/conduit-lang/orm/internal/orm/ddl"
)

func newDBCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database connection and schema commands",
		Long: `Check connectivity, print the DDL of the registered entities, or create
their tables in the configured database.`,
		Example: `  # Check the configured database
  ormctl db ping

  # Print PostgreSQL DDL without connecting
  ormctl db schema --driver postgres

  # Create the blog tables in a fresh SQLite file
  ormctl db setup --driver sqlite --dsn ./blog.db`,
	}

	cmd.AddCommand(newDBPingCommand(opts))
	cmd.AddCommand(newDBSchemaCommand(opts))
	cmd.AddCommand(newDBSetupCommand(opts))

	return cmd
}

func newDBPingCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Verify the database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.close(cmd)

			if err := s.db.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("failed to reach %s database: %w", s.db.Dialect(), err)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.FormatSuccess(fmt.Sprintf("connected to %s database", s.db.Dialect()), opts.noColor))
			return nil
		},
	}
}

func newDBSchemaCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print CREATE statements for the configured dialect",
		Long: `Print the CREATE TABLE and CREATE INDEX statements of every registered
entity and many-to-many pivot table. No database connection is made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, reg, err := opts.load()
			if err != nil {
				return err
			}
			d, err := cfg.Dialect()
			if err != nil {
				return err
			}

			stmts, err := ddl.NewGenerator(d).Schema(reg)
			if err != nil {
				return err
			}
			for _, stmt := range stmts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", stmt)
			}
			return nil
		},
	}
}

func newDBSetupCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the tables of every registered entity",
		Long: `Create every entity table, pivot table and index that does not exist yet.
Statements run one at a time; on MySQL, where DDL commits implicitly, a
failure leaves the earlier tables in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.close(cmd)

			stmts, err := ddl.NewGenerator(s.db.Dialect()).Schema(s.reg)
			if err != nil {
				return err
			}
			for _, stmt := range stmts {
				if _, err := s.db.Execute(cmd.Context(), stmt); err != nil {
					return fmt.Errorf("failed to create schema: %w", err)
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.FormatSuccess(fmt.Sprintf("applied %d schema statements", len(stmts)), opts.noColor))
			return nil
		},
	}
}
