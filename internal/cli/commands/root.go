// Package commands implements the ormctl command tree
package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/orm/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "ormctl",
		Short: "Inspect and query the blog schema through the ORM",
		Long: color.CyanString(`ormctl - metadata-driven ORM toolbox

ormctl drives the ORM against a live database: describe the registered
entities, check connectivity, and read records with their relations
eagerly loaded.

Settings come from orm.yaml, .env and ORM_* environment variables.
DATABASE_URL overrides the configured DSN.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ./orm.yaml)")
	flags.StringVar(&opts.driver, "driver", "", "database driver: sqlite, postgres, pgx or mysql")
	flags.StringVar(&opts.dsn, "dsn", "", "database connection string")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&opts.metrics, "metrics", false, "print query metrics after the command")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newDescribeCommand(opts))
	rootCmd.AddCommand(newDBCommand(opts))
	rootCmd.AddCommand(newFindCommand(opts))
	rootCmd.AddCommand(newListCommand(opts))
	rootCmd.AddCommand(newCountCommand(opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the ormctl version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := ui.NewKeyValueTable(cmd.OutOrStdout(), false)
			out.AddRow("ormctl version", Version)
			out.AddRow("Git commit", GitCommit)
			out.AddRow("Build date", BuildDate)
			out.AddRow("Go version", goVer)
			out.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var se *suggestError
		if errors.As(err, &se) {
			fmt.Fprint(rootCmd.ErrOrStderr(), ui.FormatError(se.opts))
			return err
		}
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
