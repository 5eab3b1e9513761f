package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrNotBound is returned when a session has been closed or was never opened
	ErrNotBound = errors.New("not bound to an open database session")
	// ErrTransactionAborted is returned when a transaction is explicitly aborted
	ErrTransactionAborted = errors.New("transaction aborted")
	// ErrDeadlock is returned when retries are exhausted on a deadlock
	ErrDeadlock = errors.New("deadlock detected")
)

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// Default leaves the isolation level to the driver
	Default IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "DEFAULT"
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions.
// Default yields nil so drivers without isolation support still begin.
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	var level sql.IsolationLevel
	switch l {
	case ReadUncommitted:
		level = sql.LevelReadUncommitted
	case ReadCommitted:
		level = sql.LevelReadCommitted
	case RepeatableRead:
		level = sql.LevelRepeatableRead
	case Serializable:
		level = sql.LevelSerializable
	default:
		return nil
	}
	return &sql.TxOptions{Isolation: level}
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger used for statement and transaction events
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIsolation sets the isolation level used when a transaction begins
func WithIsolation(level IsolationLevel) Option {
	return func(s *Session) {
		s.isolation = level
	}
}

// Listener is notified when a session transaction ends
type Listener interface {
	AfterCommit()
	AfterRollback()
}

// WithListener registers l for transaction end events
func WithListener(l Listener) Option {
	return func(s *Session) {
		s.listeners = append(s.listeners, l)
	}
}

// Session is the unit of work shared by everything bound to one ORM.
//
// The first statement issued through a Session begins a transaction and
// every later statement runs inside it until Commit or Rollback ends it.
// The next statement then begins a fresh one. A Session is not safe for
// concurrent use.
type Session struct {
	db        *sql.DB
	tx        *sql.Tx
	isolation IsolationLevel
	logger    *zap.Logger
	listeners []Listener
	closed    bool
}

// NewSession creates a session over db
func NewSession(db *sql.DB, opts ...Option) *Session {
	s := &Session{
		db:     db,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle
func (s *Session) DB() *sql.DB {
	return s.db
}

// InTransaction reports whether a transaction is currently open
func (s *Session) InTransaction() bool {
	return s.tx != nil
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	return s.closed || s.db == nil
}

func (s *Session) begin(ctx context.Context) (*sql.Tx, error) {
	if s.Closed() {
		return nil, ErrNotBound
	}
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, s.isolation.ToSQLOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.logger.Debug("begin transaction", zap.Stringer("isolation", s.isolation))
	s.tx = tx
	return tx, nil
}

// ExecContext executes a statement inside the current transaction
func (s *Session) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("exec", zap.String("sql", query), zap.Int("args", len(args)))
	return tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the current transaction
func (s *Session) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("query", zap.String("sql", query), zap.Int("args", len(args)))
	return tx.QueryContext(ctx, query, args...)
}

// Commit commits the open transaction. It is a no-op when none is open.
func (s *Session) Commit() error {
	if s.closed {
		return ErrNotBound
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		s.notify(false)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug("commit transaction")
	s.notify(true)
	return nil
}

// Rollback discards the open transaction. It is a no-op when none is open.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	defer s.notify(false)
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	s.logger.Debug("rollback transaction")
	return nil
}

// Close rolls back pending work and marks the session unusable.
// The database handle is owned by the caller.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	err := s.Rollback()
	s.closed = true
	return err
}

// Atomic runs fn and commits on success. On error or panic the open
// transaction is rolled back, including any work pending before the call.
func (s *Session) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Closed() {
		return ErrNotBound
	}

	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		s.logger.Warn("rolled back after failure", zap.Error(err))
		return err
	}

	return s.Commit()
}

func (s *Session) notify(committed bool) {
	for _, l := range s.listeners {
		if committed {
			l.AfterCommit()
		} else {
			l.AfterRollback()
		}
	}
}
