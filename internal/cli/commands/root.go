// Package commands implements the apexorm command line tool.
package commands

import (
	"errors"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/apexorm/apexorm/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globals are the persistent flags shared by every command
type globals struct {
	configPath string
	verbose    bool
	noColor    bool
}

// reported wraps an error whose message was already written
type reported struct{ error }

func (r reported) Unwrap() error { return r.error }

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "apexorm",
		Short: "Declarative models and schema management for SQL databases",
		Long: color.CyanString(`apexorm - declarative ORM tooling

Models are declared in YAML files listed under "models" in apexorm.yaml.
The tool checks that their relations resolve, prints the DDL they need
and creates the tables in the configured database.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "config file (default ./apexorm.yaml)")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "log SQL and schema resolution")
	flags.BoolVar(&g.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewMigrateCommand(g))
	rootCmd.AddCommand(NewSQLCommand(g))
	rootCmd.AddCommand(NewCheckCommand(g))
	rootCmd.AddCommand(NewDescribeCommand(g))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			kv := ui.NewKeyValues(out, color.NoColor)
			kv.Add("apexorm version", Version)
			kv.Add("Git commit", GitCommit)
			kv.Add("Build date", BuildDate)
			kv.Add("Go version", runtime.Version())
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var r reported
		if !errors.As(err, &r) {
			ui.Write(rootCmd.ErrOrStderr(), ui.Message{Level: ui.LevelError, Problem: err.Error(), NoColor: color.NoColor})
		}
		return err
	}
	return nil
}
