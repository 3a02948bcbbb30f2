package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

const (
	// DefaultMaxRetries is the default number of attempts for deadlocks
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 100 * time.Millisecond
)

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
	Isolation   IsolationLevel
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// WithRetry runs fn in a transaction and retries it on deadlock
func (m *Manager) WithRetry(ctx context.Context, fn Func) error {
	return m.WithRetryConfig(ctx, DefaultRetryConfig(), fn)
}

// WithRetryConfig runs fn in a transaction and retries it with exponential
// backoff while it fails with a retryable error. fn must be safe to run
// more than once.
func (m *Manager) WithRetryConfig(ctx context.Context, config *RetryConfig, fn Func) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before retry %d: %w", attempt, ctx.Err())
		}

		err := m.WithTransactionIsolation(ctx, config.Isolation, fn)
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return err
		}
		lastErr = err

		// baseBackoff * 2^attempt
		backoff := config.BaseBackoff * time.Duration(1<<uint(attempt))
		m.logger.Warn("retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: transaction failed after %d attempts: %w", sqlexec.ErrDeadlock, config.MaxRetries, lastErr)
}

// isSerializationError checks if an error is a serialization failure.
// Drivers report it only through SQLSTATE 40001 or the message.
func isSerializationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "40001") || strings.Contains(msg, "could not serialize access")
}

// IsRetryableError checks if an error is retryable (deadlock or serialization failure)
func IsRetryableError(err error) bool {
	return sqlexec.IsDeadlock(err) || isSerializationError(err)
}
