package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/apexorm/apexorm/internal/orm/dialect"
	"github.com/apexorm/apexorm/internal/orm/transaction"
)

// Runner applies schemas inside a session transaction
type Runner struct {
	session *transaction.Session
	tracker *Tracker
	logger  *zap.Logger
}

// NewRunner creates a new migration runner
func NewRunner(session *transaction.Session, d dialect.Dialect, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		session: session,
		tracker: NewTracker(session, d),
		logger:  logger,
	}
}

// Tracker returns the history tracker
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

// Checksum identifies a schema by its statements
func Checksum(stmts []string) string {
	h := sha256.New()
	for _, s := range stmts {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Apply executes stmts and records them under name, all in one
// transaction. A schema whose checksum was already recorded is skipped and
// Apply returns false.
func (r *Runner) Apply(ctx context.Context, name string, stmts []string) (bool, error) {
	start := time.Now()
	m := &Migration{Name: name, Checksum: Checksum(stmts), Statements: stmts}

	applied := false
	err := r.session.Atomic(ctx, func(ctx context.Context) error {
		if err := r.tracker.Initialize(ctx); err != nil {
			return err
		}
		done, err := r.tracker.IsApplied(ctx, m.Checksum)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		for _, stmt := range stmts {
			r.logger.Debug("applying statement", zap.String("sql", stmt))
			if _, err := r.session.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
		}
		if err := r.tracker.Record(ctx, m); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("migration %s failed: %w", name, err)
	}

	if !applied {
		r.logger.Info("schema up to date", zap.String("checksum", m.Checksum[:12]))
		return false, nil
	}
	r.logger.Info("applied migration",
		zap.String("name", name),
		zap.Int64("version", m.Version),
		zap.Int("statements", len(stmts)),
		zap.Duration("took", time.Since(start)))
	return true, nil
}
