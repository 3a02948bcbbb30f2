package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

// String stores text. A zero Length means unbounded.
type String struct {
	Length int
}

// Name returns the type name
func (s String) Name() string {
	if s.Length == 0 {
		return "text"
	}
	return "string"
}

// Encode converts a native value to a string
func (s String) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	str, err := cast.ToStringE(indirect(value))
	if err != nil {
		return nil, unsupported(s, value)
	}
	return str, nil
}

// Decode converts a driver value to a string
func (s String) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	str, err := cast.ToStringE(textual(value))
	if err != nil {
		return nil, unsupported(s, value)
	}
	return str, nil
}

// SQLType returns VARCHAR(n) for bounded strings and TEXT otherwise
func (s String) SQLType(d dialect.Dialect) string {
	if s.Length > 0 {
		return fmt.Sprintf("VARCHAR(%d)", s.Length)
	}
	return "TEXT"
}

// Validate checks the value is a string within the length bound
func (s String) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	str, ok := indirect(value).(string)
	if !ok {
		return []string{fmt.Sprintf("must be a string, got %T", value)}
	}
	if s.Length > 0 && utf8.RuneCountInString(str) > s.Length {
		return []string{fmt.Sprintf("must be at most %d characters", s.Length)}
	}
	return nil
}

// Integer stores signed whole numbers as int64
type Integer struct {
	Big bool
}

// Name returns the type name
func (i Integer) Name() string {
	if i.Big {
		return "bigint"
	}
	return "integer"
}

// Encode converts a native value to int64
func (i Integer) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	n, err := toInt64(indirect(value))
	if err != nil {
		return nil, unsupported(i, value)
	}
	return n, nil
}

// Decode converts a driver value to int64
func (i Integer) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	n, err := toInt64(textual(value))
	if err != nil {
		return nil, unsupported(i, value)
	}
	return n, nil
}

// SQLType returns the integer column type for the dialect
func (i Integer) SQLType(d dialect.Dialect) string {
	switch {
	case d == dialect.SQLite:
		return "INTEGER"
	case i.Big:
		return "BIGINT"
	case d == dialect.MySQL:
		return "INT"
	default:
		return "INTEGER"
	}
}

// Validate checks the value is a whole number
func (i Integer) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	if _, err := toInt64(indirect(value)); err != nil {
		return []string{fmt.Sprintf("must be an integer, got %v", value)}
	}
	return nil
}

// toInt64 converts without silently truncating fractional floats
func toInt64(v interface{}) (int64, error) {
	switch f := v.(type) {
	case float64:
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%v has a fractional part", f)
		}
	case float32:
		if float64(f) != math.Trunc(float64(f)) {
			return 0, fmt.Errorf("%v has a fractional part", f)
		}
	case bool:
		return 0, fmt.Errorf("bool is not an integer")
	case string:
		return strconv.ParseInt(strings.TrimSpace(f), 10, 64)
	}
	return cast.ToInt64E(v)
}

// Float stores double precision numbers
type Float struct{}

// Name returns the type name
func (Float) Name() string { return "float" }

// Encode converts a native value to float64
func (f Float) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	n, err := cast.ToFloat64E(indirect(value))
	if err != nil {
		return nil, unsupported(f, value)
	}
	return n, nil
}

// Decode converts a driver value to float64
func (f Float) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	n, err := cast.ToFloat64E(textual(value))
	if err != nil {
		return nil, unsupported(f, value)
	}
	return n, nil
}

// SQLType returns the floating point column type for the dialect
func (Float) SQLType(d dialect.Dialect) string {
	switch d {
	case dialect.MySQL:
		return "DOUBLE"
	case dialect.Postgres:
		return "DOUBLE PRECISION"
	default:
		return "REAL"
	}
}

// Validate checks the value is numeric
func (Float) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	if _, err := cast.ToFloat64E(indirect(value)); err != nil {
		return []string{fmt.Sprintf("must be a number, got %v", value)}
	}
	return nil
}

// Boolean stores true/false. Drivers store it as 1/0 where the backend has
// no boolean column type; Decode accepts both spellings.
type Boolean struct{}

// Name returns the type name
func (Boolean) Name() string { return "boolean" }

// Encode converts a native value to bool
func (b Boolean) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	v, err := cast.ToBoolE(indirect(value))
	if err != nil {
		return nil, unsupported(b, value)
	}
	return v, nil
}

// Decode converts a driver value (bool, 0/1, "t"/"f") to bool
func (b Boolean) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	v, err := cast.ToBoolE(textual(value))
	if err != nil {
		return nil, unsupported(b, value)
	}
	return v, nil
}

// SQLType returns the boolean column type for the dialect
func (Boolean) SQLType(d dialect.Dialect) string {
	switch d {
	case dialect.MySQL:
		return "TINYINT(1)"
	case dialect.Postgres:
		return "BOOLEAN"
	default:
		return "INTEGER"
	}
}

// Validate checks the value is a bool
func (Boolean) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	if _, ok := indirect(value).(bool); !ok {
		return []string{fmt.Sprintf("must be a boolean, got %T", value)}
	}
	return nil
}
