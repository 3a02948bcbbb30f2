package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn in a transaction that is rolled back if it does not
// finish within timeout
func (m *Manager) WithTimeout(ctx context.Context, timeout time.Duration, fn Func) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.WithTransaction(timeoutCtx, fn)
	if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: transaction exceeded %v: %w", ErrTransactionTimeout, timeout, err)
	}
	return err
}
