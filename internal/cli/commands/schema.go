package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexorm/apexorm/internal/cli/ui"
	"github.com/apexorm/apexorm/internal/orm/codegen"
	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// NewSQLCommand creates the sql command
func NewSQLCommand(g *globals) *cobra.Command {
	var driver string
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Print the DDL of every configured model",
		Long: `Print the CREATE TABLE and CREATE INDEX statements migrate would run,
without connecting to a database. The dialect follows database.driver
unless --driver is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if driver == "" {
				driver = p.cfg.Database.Driver
			}
			d, err := dialect.ForDriver(driver)
			if err != nil {
				return err
			}
			reg, err := p.registry(false)
			if err != nil {
				return err
			}
			models, err := reg.CreationOrder()
			if err != nil {
				return err
			}
			stmts, err := codegen.NewDDLGenerator(d).Schema(models, reg.Junctions())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, stmt := range stmts {
				fmt.Fprintf(out, "%s;\n\n", stmt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "render for this driver instead of the configured one")
	return cmd
}

// NewCheckCommand creates the check command
func NewCheckCommand(g *globals) *cobra.Command {
	var connect bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that every relation resolves",
		Long: `Finalize the configured models in strict mode, failing when a relation
targets a model that is not declared, and list the resulting tables.
With --verbose every column, relation and junction table is listed.
With --connect the configured database is pinged as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg, err := p.registry(true)
			if err != nil {
				return err
			}
			if _, err := reg.CreationOrder(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := ui.NewTable(out, g.noColor, "model", "table", "fields", "relations")
			for _, m := range reg.Models() {
				table.AddRow(m.FullName(), m.Table, strconv.Itoa(len(m.Fields)), relationNames(m))
			}
			table.Render()
			fmt.Fprintln(out)
			if g.verbose {
				fmt.Fprintln(out, reg.Describe())
			}

			if connect {
				o, err := p.open(cmd.Context())
				if err != nil {
					return err
				}
				defer o.Close()
				if err := o.CheckConnection(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, ui.Success("database reachable", g.noColor))
			}
			fmt.Fprintln(out, ui.Success(fmt.Sprintf("%d models, %d junction tables resolved", len(reg.Models()), len(reg.Junctions())), g.noColor))
			return nil
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "also check the database connection")
	return cmd
}

// NewDescribeCommand creates the describe command
func NewDescribeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "describe MODEL",
		Short: "Show the columns and relations of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg, err := p.registry(false)
			if err != nil {
				return err
			}
			m, ok := reg.Get(args[0])
			if !ok {
				names := make([]string, 0, reg.Count())
				for _, m := range reg.Models() {
					names = append(names, m.FullName())
				}
				fmt.Fprint(cmd.ErrOrStderr(), ui.UnknownModel(args[0], names, g.noColor))
				return reported{fmt.Errorf("unknown model %q", args[0])}
			}
			describe(cmd, m, g.noColor)
			return nil
		},
	}
}

func describe(cmd *cobra.Command, m *schema.Model, noColor bool) {
	out := cmd.OutOrStdout()
	ui.Header(out, m.FullName(), noColor)

	kv := ui.NewKeyValues(out, noColor)
	kv.Add("table", m.Table)
	if pk := m.PrimaryKey(); pk != nil {
		kv.Add("primary key", pk.Name)
	}
	kv.Render()
	fmt.Fprintln(out)

	fields := ui.NewTable(out, noColor, "column", "kind", "null", "unique", "default")
	for _, f := range m.Fields {
		def := ""
		switch d := f.Default.(type) {
		case nil:
		case schema.DefaultFunc, func() interface{}:
			def = "(generated)"
		default:
			def = fmt.Sprint(d)
		}
		fields.AddRow(f.Name, f.Kind.String(), yesNo(f.Nullable), yesNo(f.Unique), def)
	}
	fields.Render()

	if len(m.Relations) == 0 {
		return
	}
	fmt.Fprintln(out)
	rels := ui.NewTable(out, noColor, "relation", "kind", "target", "column")
	for _, r := range m.Relations {
		column := r.Column
		switch {
		case r.Kind == schema.ManyToMany && r.Junction != nil:
			column = r.Junction.Name
		case column == "":
			column = r.RemoteColumn
		}
		rels.AddRow(publicName(r), r.Kind.String(), r.Target.Name(), column)
	}
	rels.Render()
}

func relationNames(m *schema.Model) string {
	names := make([]string, 0, len(m.Relations))
	for _, r := range m.Relations {
		names = append(names, publicName(r))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// publicName hides the internal attribute backing a many-to-many relation
func publicName(r *schema.Relationship) string {
	if r.Public != "" {
		return r.Public
	}
	return r.Name
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
