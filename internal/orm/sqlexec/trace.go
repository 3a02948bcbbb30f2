package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// trace logs a finished statement and records its metrics. Failures log at
// error level, statements slower than the threshold at warn, the rest at debug.
func (c *conn) trace(ctx context.Context, op, query string, begin time.Time, rows int64, err error) {
	elapsed := time.Since(begin)

	if c.metrics != nil {
		c.metrics.observe(op, elapsed, err)
	}

	fields := []zap.Field{
		zap.String("op", op),
		zap.String("duration", fmt.Sprintf("%.3fms", float64(elapsed.Nanoseconds())/1e6)),
		zap.String("sql", query),
	}
	if rows != -1 {
		fields = append(fields, zap.Int64("rows", rows))
	}

	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		fields = append(fields, zap.Error(err))
		c.logger.Error("sql failed", fields...)

	case err != nil:
		c.logger.Debug("sql cancelled", fields...)

	case c.slow > 0 && elapsed > c.slow:
		fields = append(fields, zap.String("slow_threshold", c.slow.String()))
		c.logger.Warn("slow sql", fields...)

	default:
		c.logger.Debug("sql executed", fields...)
	}
}
