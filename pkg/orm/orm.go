// Package orm is the public API of apexorm. Models are declared with the
// schema package, registered on an ORM and finalized into tables. Instances
// are then queried through Managers and QuerySets and persisted through one
// shared unit of work.
package orm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/apexorm/apexorm/internal/orm/codegen"
	"github.com/apexorm/apexorm/internal/orm/crud"
	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/hooks"
	"github.com/apexorm/apexorm/internal/orm/migrate"
	"github.com/apexorm/apexorm/internal/orm/schema"
	"github.com/apexorm/apexorm/internal/orm/storage"
	"github.com/apexorm/apexorm/internal/orm/tracking"
	"github.com/apexorm/apexorm/internal/orm/transaction"
)

// HookType selects when a lifecycle hook runs
type HookType = hooks.Type

// Lifecycle hook types
const (
	BeforeSave   = hooks.BeforeSave
	AfterSave    = hooks.AfterSave
	BeforeDelete = hooks.BeforeDelete
	AfterDelete  = hooks.AfterDelete
)

// HookFunc is a lifecycle hook. The record is the *Instance being written.
type HookFunc = hooks.Func

// HookContext is passed to hooks
type HookContext = hooks.Context

// Values maps column names to values
type Values map[string]interface{}

// ORM binds a model registry to one database and its unit of work
type ORM struct {
	db        *sql.DB
	dialect   dialect.Dialect
	registry  *schema.Registry
	session   *transaction.Session
	hooks     *hooks.Executor
	storage   storage.Storage
	logger    *zap.Logger
	retry     *transaction.RetryConfig
	isolation transaction.IsolationLevel
	pool      dialect.PoolOptions
	strict    bool
	ownsDB    bool

	uow    *unitOfWork
	atomic int
}

// Option configures an ORM
type Option func(*ORM)

// WithLogger sets the logger shared by every component
func WithLogger(logger *zap.Logger) Option {
	return func(o *ORM) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStorage sets where file and image fields keep their contents
func WithStorage(s storage.Storage) Option {
	return func(o *ORM) {
		o.storage = s
	}
}

// WithStrictResolution makes Finalize fail on relations naming unknown models
func WithStrictResolution() Option {
	return func(o *ORM) {
		o.strict = true
	}
}

// WithIsolation sets the isolation level of the unit of work
func WithIsolation(level transaction.IsolationLevel) Option {
	return func(o *ORM) {
		o.isolation = level
	}
}

// WithRetry configures how Atomic retries deadlocks and serialization failures
func WithRetry(cfg *transaction.RetryConfig) Option {
	return func(o *ORM) {
		o.retry = cfg
	}
}

// WithPool sets the connection pool limits used by Open
func WithPool(p dialect.PoolOptions) Option {
	return func(o *ORM) {
		o.pool = p
	}
}

func newORM(opts []Option) *ORM {
	o := &ORM{
		logger: zap.NewNop(),
		retry:  transaction.DefaultRetryConfig(),
		pool:   dialect.DefaultPoolOptions(),
		uow:    newUnitOfWork(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open connects to dsn with driver and binds a new ORM to it. Close
// releases the connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*ORM, error) {
	o := newORM(opts)
	db, d, err := dialect.Open(ctx, driver, dsn, o.pool)
	if err != nil {
		return nil, err
	}
	o.bind(db, d)
	o.ownsDB = true
	o.logger.Info("database bound", zap.String("dialect", d.Name()))
	return o, nil
}

// New binds an ORM to an existing database handle. The caller keeps
// ownership of db.
func New(db *sql.DB, d dialect.Dialect, opts ...Option) *ORM {
	o := newORM(opts)
	o.bind(db, d)
	return o
}

func (o *ORM) bind(db *sql.DB, d dialect.Dialect) {
	o.db = db
	o.dialect = d

	regOpts := []schema.RegistryOption{schema.WithLogger(o.logger)}
	if o.strict {
		regOpts = append(regOpts, schema.WithStrictResolution())
	}
	o.registry = schema.NewRegistry(regOpts...)
	o.session = transaction.NewSession(db,
		transaction.WithLogger(o.logger),
		transaction.WithIsolation(o.isolation),
		transaction.WithListener(o.uow),
	)
	o.hooks = hooks.NewExecutor(o.logger)
	if o.storage == nil {
		o.storage = storage.NewLocal(storage.DefaultRoot)
	}
}

// DB returns the database handle
func (o *ORM) DB() *sql.DB { return o.db }

// Dialect returns the SQL dialect
func (o *ORM) Dialect() dialect.Dialect { return o.dialect }

// Registry returns the model registry
func (o *ORM) Registry() *schema.Registry { return o.registry }

// Session returns the unit of work
func (o *ORM) Session() *transaction.Session { return o.session }

// Storage returns the file storage
func (o *ORM) Storage() storage.Storage { return o.storage }

// Logger returns the logger
func (o *ORM) Logger() *zap.Logger { return o.logger }

// Register builds and registers a model for each declaration. Their
// relations stay pending until Finalize.
func (o *ORM) Register(decls ...schema.Declaration) ([]*schema.Model, error) {
	models := make([]*schema.Model, 0, len(decls))
	for _, decl := range decls {
		m, err := o.registry.Declare(decl)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// RegisterModels registers models built elsewhere, for example by a modelfile
func (o *ORM) RegisterModels(models ...*schema.Model) {
	o.registry.Register(models...)
}

// Model returns a registered model by name
func (o *ORM) Model(name string) (*schema.Model, bool) {
	return o.registry.Get(name)
}

// Finalize resolves pending relations. It may be called again after more
// models are registered.
func (o *ORM) Finalize() error {
	return o.registry.Finalize()
}

// Schema finalizes the registry and returns the DDL creating every table,
// junction table and index in dependency order.
func (o *ORM) Schema() ([]string, error) {
	if err := o.Finalize(); err != nil {
		return nil, err
	}
	models, err := o.registry.CreationOrder()
	if err != nil {
		return nil, err
	}
	return codegen.NewDDLGenerator(o.dialect).Schema(models, o.registry.Junctions())
}

// Migrate creates the tables of every registered model. Each distinct
// schema is applied once and recorded in the migration history; existing
// tables are left as they are.
func (o *ORM) Migrate(ctx context.Context) error {
	if err := o.bound(); err != nil {
		return err
	}
	stmts, err := o.Schema()
	if err != nil {
		return err
	}
	runner := migrate.NewRunner(o.session, o.dialect, o.logger)
	_, err = runner.Apply(ctx, o.migrationName(), stmts)
	return err
}

func (o *ORM) migrationName() string {
	models := o.registry.Models()
	tables := make([]string, len(models))
	for i, m := range models {
		tables[i] = m.Table
	}
	name := "create " + strings.Join(tables, ", ")
	if len(name) > 255 {
		name = name[:252] + "..."
	}
	return name
}

// CheckConnection runs a trivial statement. It joins the open transaction
// if there is one, since SQLite databases hold a single connection.
func (o *ORM) CheckConnection(ctx context.Context) error {
	if err := o.bound(); err != nil {
		return err
	}
	var exec crud.Executor = o.db
	if o.session.InTransaction() {
		exec = o.session
	}
	rows, err := exec.QueryContext(ctx, "SELECT 1")
	if err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}
	if _, err := crud.ScanRows(rows, 1); err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}
	return nil
}

// Commit commits pending work. Inside Atomic it is deferred to the end of
// the block.
func (o *ORM) Commit() error {
	return o.commit()
}

// Rollback discards pending work and restores the state of every instance
// written since the last commit.
func (o *ORM) Rollback() error {
	if err := o.bound(); err != nil {
		return err
	}
	return o.session.Rollback()
}

// Atomic runs fn as one transaction. Saves and deletes inside fn do not
// commit on their own. The block is retried on deadlocks and serialization
// failures, rolled back on error and re-panics after rolling back.
func (o *ORM) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := o.bound(); err != nil {
		return err
	}
	o.atomic++
	defer func() { o.atomic-- }()
	return o.session.AtomicRetry(ctx, o.retry, fn)
}

// On registers a lifecycle hook on model
func (o *ORM) On(m *schema.Model, t HookType, name string, fn HookFunc) {
	o.hooks.Register(m, t, name, fn)
}

// Objects returns the manager of model
func (o *ORM) Objects(m *schema.Model) *Manager {
	return &Manager{orm: o, model: m}
}

// Manager returns the manager of a registered model by name
func (o *ORM) Manager(name string) (*Manager, error) {
	m, ok := o.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", ErrUsage, name)
	}
	return o.Objects(m), nil
}

// Reset forgets every model, junction table and hook
func (o *ORM) Reset() {
	o.registry.Reset()
	o.hooks.Registry().Reset()
	o.uow.clear()
}

// Close rolls back pending work and unbinds the ORM. The database handle is
// closed only when Open created it.
func (o *ORM) Close() error {
	if o.session == nil {
		return nil
	}
	err := o.session.Close()
	if o.ownsDB {
		if cerr := o.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (o *ORM) bound() error {
	if o.session == nil || o.session.Closed() {
		return ErrNotBound
	}
	return nil
}

func (o *ORM) commit() error {
	if err := o.bound(); err != nil {
		return err
	}
	if o.atomic > 0 {
		return nil
	}
	if err := o.session.Commit(); err != nil {
		_ = o.session.Rollback()
		return err
	}
	return nil
}

// abort rolls back after a storage or validation failure and returns err.
// Inside Atomic the rollback is left to the block.
func (o *ORM) abort(err error) error {
	if o.atomic > 0 || o.session == nil {
		return err
	}
	if rbErr := o.session.Rollback(); rbErr != nil {
		o.logger.Error("rollback failed", zap.Error(rbErr))
	}
	o.logger.Warn("rolled back after failure", zap.Error(err))
	return err
}

// unitOfWork remembers the tracker state of every instance written in the
// open transaction so a rollback can restore it.
type unitOfWork struct {
	changes []change
	seen    map[*Instance]bool
}

type change struct {
	inst  *Instance
	state tracking.State
	pk    interface{}
}

func newUnitOfWork() *unitOfWork {
	return &unitOfWork{seen: make(map[*Instance]bool)}
}

func (u *unitOfWork) record(inst *Instance) {
	if u.seen[inst] {
		return
	}
	u.seen[inst] = true
	u.changes = append(u.changes, change{
		inst:  inst,
		state: inst.tracker.State(),
		pk:    inst.ID(),
	})
}

func (u *unitOfWork) clear() {
	u.changes = nil
	u.seen = make(map[*Instance]bool)
}

// AfterCommit implements transaction.Listener
func (u *unitOfWork) AfterCommit() {
	u.clear()
}

// AfterRollback implements transaction.Listener
func (u *unitOfWork) AfterRollback() {
	for i := len(u.changes) - 1; i >= 0; i-- {
		c := u.changes[i]
		c.inst.tracker.Restore(c.state)
		c.inst.values[c.inst.model.PrimaryKey().Name] = c.pk
	}
	u.clear()
}
