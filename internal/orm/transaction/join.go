package transaction

import (
	"context"
)

// Ensure runs fn in the transaction carried by ctx, or in a new one when
// there is none. Unlike WithTransaction it never reports a nested call; an
// error from fn inside an outer transaction is returned for the outer
// transaction to roll back.
func (m *Manager) Ensure(ctx context.Context, fn Func) error {
	if tx, ok := FromContext(ctx); ok {
		return fn(ctx, tx)
	}
	return m.WithTransaction(ctx, fn)
}
