package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apexorm/apexorm/internal/cli/ui"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of every configured model",
		Long: `Create the tables, junction tables and indexes of every model in the
configured model files. Tables are created in dependency order and
existing tables are left alone. Each distinct schema is recorded once
in the schema_migrations table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer p.logger.Sync() //nolint:errcheck

			o, err := p.open(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()

			if err := o.Migrate(cmd.Context()); err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), ui.MigrationFailed(err, g.noColor))
				return reported{err}
			}
			n := len(o.Registry().Models())
			fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("schema of %d models is up to date", n), g.noColor))
			return nil
		},
	}
}
