package transaction

import (
	"context"

	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// contextKeyTransaction is the key for storing a transaction in context
	contextKeyTransaction contextKey = "orm:transaction"
)

// FromContext retrieves a transaction from the context
// Returns the transaction and true if found, nil and false otherwise
func FromContext(ctx context.Context) (*sqlexec.Tx, bool) {
	tx, ok := ctx.Value(contextKeyTransaction).(*sqlexec.Tx)
	return tx, ok && tx != nil
}

// WithContext returns a new context with the transaction embedded
func WithContext(ctx context.Context, tx *sqlexec.Tx) context.Context {
	return context.WithValue(ctx, contextKeyTransaction, tx)
}

// Executor returns the transaction carried by ctx, or fallback when there
// is none
func Executor(ctx context.Context, fallback sqlexec.Executor) sqlexec.Executor {
	if tx, ok := FromContext(ctx); ok {
		return tx
	}
	return fallback
}
