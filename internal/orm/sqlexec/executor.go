// Package sqlexec is the SQL execution layer under the repositories. It runs
// parameterized statements over database/sql, returns rows as column maps,
// classifies driver errors and traces every statement with zap.
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

// Row is one result row keyed by column name (or alias)
type Row map[string]interface{}

// Executor runs SQL for the repositories. DB and Tx both implement it.
type Executor interface {
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	FetchOne(ctx context.Context, query string, args ...interface{}) (Row, error)
	FetchAll(ctx context.Context, query string, args ...interface{}) ([]Row, error)
	FetchScalar(ctx context.Context, query string, args ...interface{}) (interface{}, error)
	Dialect() dialect.Dialect
	QuoteIdentifier(name string) string
}

// queryer is the part of *sql.DB and *sql.Tx the executor needs
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// conn implements Executor over a queryer
type conn struct {
	q       queryer
	dialect dialect.Dialect
	logger  *zap.Logger
	slow    time.Duration
	metrics *Metrics
}

// Dialect returns the SQL dialect
func (c *conn) Dialect() dialect.Dialect {
	return c.dialect
}

// QuoteIdentifier escapes a table or column name for the dialect
func (c *conn) QuoteIdentifier(name string) string {
	return c.dialect.QuoteIdentifier(name)
}

// Execute runs a statement that returns no rows
func (c *conn) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	begin := time.Now()
	res, err := c.q.ExecContext(ctx, query, args...)

	rows := int64(-1)
	if err == nil {
		if n, rerr := res.RowsAffected(); rerr == nil {
			rows = n
		}
	}
	c.trace(ctx, "execute", query, begin, rows, err)

	if err != nil {
		return nil, ConvertDBError(err)
	}
	return res, nil
}

// FetchOne returns the first row, or nil when the query matched nothing
func (c *conn) FetchOne(ctx context.Context, query string, args ...interface{}) (Row, error) {
	rows, err := c.fetch(ctx, "fetch_one", query, 1, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FetchAll returns every row. The result is empty, never nil, when nothing matched.
func (c *conn) FetchAll(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	return c.fetch(ctx, "fetch_all", query, 0, args)
}

// FetchScalar returns the first column of the first row, or nil when the
// query matched nothing
func (c *conn) FetchScalar(ctx context.Context, query string, args ...interface{}) (interface{}, error) {
	begin := time.Now()
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		c.trace(ctx, "fetch_scalar", query, begin, -1, err)
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var value interface{}
	n := int64(0)
	if rows.Next() {
		if err := rows.Scan(&value); err != nil {
			c.trace(ctx, "fetch_scalar", query, begin, -1, err)
			return nil, ConvertDBError(err)
		}
		n = 1
	}
	if err := rows.Err(); err != nil {
		c.trace(ctx, "fetch_scalar", query, begin, -1, err)
		return nil, ConvertDBError(err)
	}

	c.trace(ctx, "fetch_scalar", query, begin, n, nil)
	return value, nil
}

// fetch scans up to max rows (0 for all) into column maps
func (c *conn) fetch(ctx context.Context, op, query string, max int, args []interface{}) ([]Row, error) {
	begin := time.Now()
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		c.trace(ctx, op, query, begin, -1, err)
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	results, err := scanRows(rows, max)
	if err != nil {
		c.trace(ctx, op, query, begin, -1, err)
		return nil, ConvertDBError(err)
	}

	c.trace(ctx, op, query, begin, int64(len(results)), nil)
	return results, nil
}

// scanRows scans rows into maps keyed by column name
func scanRows(rows *sql.Rows, max int) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	results := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)

		if max > 0 && len(results) >= max {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
