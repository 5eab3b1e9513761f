package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// RetryConfig bounds how often Session.AtomicRetry re-runs a block
type RetryConfig struct {
	// Attempts is the total number of runs, including the first
	Attempts int
	// Backoff is the wait before the second run; it doubles on each retry
	Backoff time.Duration
}

// DefaultRetryConfig runs a block up to three times starting at 100ms
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{Attempts: 3, Backoff: 100 * time.Millisecond}
}

// AtomicRetry runs fn through Atomic and re-runs it while it fails with a
// deadlock or serialization failure.
func (s *Session) AtomicRetry(ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	attempts := max(cfg.Attempts, 1)

	var err error
	backoff := cfg.Backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("transaction cancelled: %w", ctxErr)
		}
		if err = s.Atomic(ctx, fn); err == nil || !IsRetryableError(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		s.logger.Warn("retrying transaction",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%w: gave up after %d attempts: %w", ErrDeadlock, attempts, err)
}

// SQLSTATE codes worth retrying
const (
	sqlStateSerialization = "40001"
	sqlStateDeadlock      = "40P01"
)

// MySQL error numbers worth retrying
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsRetryableError reports whether err is a deadlock, lock timeout or
// serialization failure of any supported driver.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateDeadlock || pgErr.Code == sqlStateSerialization
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == sqlStateDeadlock || pqErr.Code == sqlStateSerialization
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	// modernc.org/sqlite and wrapped errors only carry a message
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		strings.ToLower(sqlStateDeadlock),
		sqlStateSerialization,
		"deadlock",
		"lock wait timeout exceeded",
		"database is locked",
		"could not serialize access",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
