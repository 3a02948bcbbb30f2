package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	// database/sql drivers for every supported dialect
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

// ErrTxDone is returned when a finished transaction is used again
var ErrTxDone = errors.New("transaction already finished")

// Option configures a DB
type Option func(*DB)

// WithLogger sets the statement trace logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *DB) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSlowThreshold logs statements slower than threshold at warn level
func WithSlowThreshold(threshold time.Duration) Option {
	return func(d *DB) {
		d.slow = threshold
	}
}

// WithMetrics records statement counts and latencies
func WithMetrics(m *Metrics) Option {
	return func(d *DB) {
		d.metrics = m
	}
}

// DB is an Executor over a connection pool
type DB struct {
	conn
	db *sql.DB
}

// New wraps an open *sql.DB
func New(db *sql.DB, d dialect.Dialect, opts ...Option) *DB {
	wrapped := &DB{
		conn: conn{
			q:       db,
			dialect: d,
			logger:  zap.NewNop(),
		},
		db: db,
	}
	for _, opt := range opts {
		opt(wrapped)
	}
	return wrapped
}

// Open opens a database by driver or dialect name. "postgres" and "pq" use
// lib/pq, "pgx" uses pgx; mysql and sqlite names map to their drivers.
func Open(driver, dsn string, opts ...Option) (*DB, error) {
	d, err := dialect.Parse(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName(driver, d), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d, err)
	}
	return New(db, d, opts...), nil
}

func driverName(driver string, d dialect.Dialect) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return "postgres"
	default:
		return d.DriverName()
	}
}

// SQLDB returns the underlying *sql.DB
func (d *DB) SQLDB() *sql.DB {
	return d.db
}

// Ping verifies the connection
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the connection pool
func (d *DB) Close() error {
	return d.db.Close()
}

// Begin starts a transaction. The returned Tx executes with the same
// logger, threshold and metrics as d.
func (d *DB) Begin(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	begin := time.Now()
	tx, err := d.db.BeginTx(ctx, opts)
	d.trace(ctx, "begin", "BEGIN", begin, -1, err)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", ConvertDBError(err))
	}

	return &Tx{
		conn: conn{
			q:       tx,
			dialect: d.dialect,
			logger:  d.logger,
			slow:    d.slow,
			metrics: d.metrics,
		},
		tx: tx,
	}, nil
}

// Tx is an Executor bound to one transaction
type Tx struct {
	conn
	tx   *sql.Tx
	done bool
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	begin := time.Now()
	err := t.tx.Commit()
	t.trace(context.Background(), "commit", "COMMIT", begin, -1, err)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", ConvertDBError(err))
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true

	begin := time.Now()
	err := t.tx.Rollback()
	t.trace(context.Background(), "rollback", "ROLLBACK", begin, -1, err)
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Done reports whether the transaction was committed or rolled back
func (t *Tx) Done() bool {
	return t.done
}

var (
	_ Executor = (*DB)(nil)
	_ Executor = (*Tx)(nil)
)
