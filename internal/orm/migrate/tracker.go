// Package migrate applies generated schemas and records each applied
// schema in a schema_migrations table.
package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apexorm/apexorm/internal/orm/codegen"
	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/query"
	"github.com/apexorm/apexorm/internal/orm/schema"
)

// Migration is one applied schema
type Migration struct {
	Version    int64
	Name       string
	Checksum   string
	Statements []string
	AppliedAt  time.Time
}

// HistoryModel describes the schema_migrations table
func HistoryModel() *schema.Model {
	m, err := schema.Declare(schema.Declaration{
		Name:  "SchemaMigration",
		Table: "schema_migrations",
		Fields: []*schema.Field{
			schema.BigInteger("version", schema.PrimaryKey()),
			schema.Char("name", 255, schema.Required()),
			schema.Char("checksum", 64, schema.Required(), schema.Unique()),
			schema.DateTime("applied_at", schema.Required()),
			schema.Text("statements"),
		},
	})
	if err != nil {
		panic(fmt.Sprintf("migrate: invalid history model: %v", err))
	}
	return m
}

// Tracker manages migration history in the database
type Tracker struct {
	exec    crud.Executor
	dialect dialect.Dialect
	model   *schema.Model
	ops     *crud.Operations
}

// NewTracker creates a new migration tracker
func NewTracker(exec crud.Executor, d dialect.Dialect) *Tracker {
	m := HistoryModel()
	return &Tracker{
		exec:    exec,
		dialect: d,
		model:   m,
		ops:     crud.NewOperations(m, exec, d),
	}
}

// Initialize ensures the schema_migrations table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	stmt, err := codegen.NewDDLGenerator(t.dialect).CreateTable(t.model)
	if err != nil {
		return err
	}
	if _, err := t.exec.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", crud.ConvertDBError(err))
	}
	return nil
}

// GetApplied returns all applied migrations sorted by version
func (t *Tracker) GetApplied(ctx context.Context) ([]*Migration, error) {
	rows, _, err := t.ops.Select(ctx, &query.Statement{Model: t.model})
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}

	migrations := make([]*Migration, 0, len(rows))
	for _, r := range rows {
		row := r[0]
		m := &Migration{}
		m.Version, _ = row["version"].(int64)
		m.Name, _ = row["name"].(string)
		m.Checksum, _ = row["checksum"].(string)
		m.AppliedAt, _ = row["applied_at"].(time.Time)
		if s, ok := row["statements"].(string); ok && s != "" {
			m.Statements = strings.Split(s, statementSeparator)
		}
		migrations = append(migrations, m)
	}
	return migrations, nil
}

// IsApplied checks if a schema with the given checksum has been applied
func (t *Tracker) IsApplied(ctx context.Context, checksum string) (bool, error) {
	st := &query.Statement{Model: t.model, Where: query.L("checksum", checksum)}
	exists, err := t.ops.Exists(ctx, st)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return exists, nil
}

// Record marks a migration as applied and assigns its version
func (t *Tracker) Record(ctx context.Context, m *Migration) error {
	if m.AppliedAt.IsZero() {
		m.AppliedAt = time.Now().UTC()
	}
	id, err := t.ops.Insert(ctx, crud.Row{
		"name":       m.Name,
		"checksum":   m.Checksum,
		"applied_at": m.AppliedAt,
		"statements": strings.Join(m.Statements, statementSeparator),
	})
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	m.Version, _ = id.(int64)
	return nil
}

// GetCount returns the total number of applied migrations
func (t *Tracker) GetCount(ctx context.Context) (int64, error) {
	count, err := t.ops.Count(ctx, &query.Statement{Model: t.model})
	if err != nil {
		return 0, fmt.Errorf("failed to get migration count: %w", err)
	}
	return count, nil
}

const statementSeparator = ";\n"
