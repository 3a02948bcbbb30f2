// Package query renders parameterized SQL statements for a dialect. It
// never validates identifiers against entity metadata; callers resolve and
// check column names before building a statement.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

// ErrInvalidOperand is returned when a condition value does not fit its operator
var ErrInvalidOperand = errors.New("invalid operand")

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpIsNull
	OpIsNotNull
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "UNKNOWN"
	}
}

// Condition represents one WHERE term. Conditions are AND-combined.
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
}

// Eq builds an equality condition. A nil value becomes IS NULL because
// "= NULL" never matches in SQL.
func Eq(column string, value interface{}) *Condition {
	if value == nil {
		return &Condition{Column: column, Operator: OpIsNull}
	}
	return &Condition{Column: column, Operator: OpEqual, Value: value}
}

// In builds an IN condition
func In(column string, values []interface{}) *Condition {
	return &Condition{Column: column, Operator: OpIn, Value: values}
}

// params accumulates bind arguments and hands out dialect placeholders
type params struct {
	dialect dialect.Dialect
	args    []interface{}
}

func newParams(d dialect.Dialect) *params {
	return &params{dialect: d, args: make([]interface{}, 0)}
}

func (p *params) add(v interface{}) string {
	p.args = append(p.args, v)
	return p.dialect.Placeholder(len(p.args))
}

// render converts a condition to SQL with parameterized values
func (c *Condition) render(p *params) (string, error) {
	col := p.dialect.QuoteIdentifier(c.Column)

	switch c.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpLike:
		if c.Value == nil {
			return "", fmt.Errorf("%w: %s %s requires a value", ErrInvalidOperand, c.Column, c.Operator)
		}
		return fmt.Sprintf("%s %s %s", col, c.Operator, p.add(c.Value)), nil

	case OpIn, OpNotIn:
		values, ok := c.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("%w: %s requires []interface{}, got %T", ErrInvalidOperand, c.Operator, c.Value)
		}
		if len(values) == 0 {
			// IN () is not valid SQL; keep the statement well-formed
			if c.Operator == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = p.add(v)
		}
		return fmt.Sprintf("%s %s (%s)", col, c.Operator, strings.Join(placeholders, ", ")), nil

	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", col, c.Operator), nil

	default:
		return "", fmt.Errorf("%w: unsupported operator %v", ErrInvalidOperand, c.Operator)
	}
}

// renderWhere renders a WHERE clause, or "" when there are no conditions
func renderWhere(conds []*Condition, p *params) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(conds))
	for _, cond := range conds {
		sql, err := cond.render(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}
