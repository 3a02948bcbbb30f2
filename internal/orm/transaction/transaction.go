// Package transaction provides scoped transactions over sqlexec. A
// transaction commits when its function returns nil and rolls back on an
// error or a panic, which is re-raised after the rollback.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

var (
	// ErrNestedTransaction is returned when WithTransaction is called with a
	// context that already carries a transaction
	ErrNestedTransaction = errors.New("nested transactions are not supported")

	// ErrTransactionTimeout is returned when a transaction times out
	ErrTransactionTimeout = errors.New("transaction timeout")
)

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// Default uses the backend's default isolation level
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

// ToSQLOptions converts IsolationLevel to sql.TxOptions
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
		level = sql.LevelDefault
	}
	return &sql.TxOptions{Isolation: level}
}

// Func is the body of a transaction. ctx carries the transaction, so
// repositories called with it run on tx.
type Func func(ctx context.Context, tx *sqlexec.Tx) error

// Manager manages database transactions
type Manager struct {
	db     *sqlexec.DB
	logger *zap.Logger
}

// NewManager creates a new transaction manager. A nil logger disables logging.
func NewManager(db *sqlexec.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: db, logger: logger}
}

// WithTransaction runs fn in a transaction with the default isolation level
func (m *Manager) WithTransaction(ctx context.Context, fn Func) error {
	return m.WithTransactionIsolation(ctx, Default, fn)
}

// WithTransactionIsolation runs fn in a transaction with the given isolation
// level. The transaction is committed if fn returns nil and rolled back
// otherwise, including when fn panics.
func (m *Manager) WithTransactionIsolation(ctx context.Context, level IsolationLevel, fn Func) (err error) {
	if _, ok := FromContext(ctx); ok {
		return ErrNestedTransaction
	}

	tx, err := m.db.Begin(ctx, level.ToSQLOptions())
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.Error("rollback after panic failed", zap.Error(rbErr))
			}
			panic(p)
		}
	}()

	if err := fn(WithContext(ctx, tx), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		m.logger.Debug("transaction rolled back", zap.Error(err))
		return err
	}

	return tx.Commit()
}
