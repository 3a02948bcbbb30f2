package types

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

// Decimal stores exact numbers as fixed-scale text. Encode rounds to Scale
// places, so a round trip is only lossless at or below that scale; once a
// value has been encoded, encoding its decoded form yields the same text.
type Decimal struct {
	Precision int32
	Scale     int32
}

// Name returns the type name
func (Decimal) Name() string { return "decimal" }

func (d Decimal) precision() int32 {
	if d.Precision <= 0 {
		return 10
	}
	return d.Precision
}

// Encode rounds the value to Scale places and returns its text form
func (d Decimal) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) || isNullDecimal(value) {
		return nil, nil
	}
	dec, err := toDecimal(indirect(value))
	if err != nil {
		return nil, unsupported(d, value)
	}
	return dec.StringFixed(d.Scale), nil
}

// Decode parses a driver value into a decimal.Decimal
func (d Decimal) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) || isNullDecimal(value) {
		return nil, nil
	}
	dec, err := toDecimal(textual(value))
	if err != nil {
		return nil, unsupported(d, value)
	}
	return dec, nil
}

// SQLType returns DECIMAL(p,s), or NUMERIC(p,s) on postgres
func (d Decimal) SQLType(dl dialect.Dialect) string {
	name := "DECIMAL"
	if dl == dialect.Postgres {
		name = "NUMERIC"
	}
	return fmt.Sprintf("%s(%d,%d)", name, d.precision(), d.Scale)
}

// Validate checks the value is numeric and fits the declared precision
func (d Decimal) Validate(value interface{}) []string {
	if IsNil(value) || isNullDecimal(value) {
		return nil
	}
	dec, err := toDecimal(indirect(value))
	if err != nil {
		return []string{fmt.Sprintf("must be a decimal number, got %v", value)}
	}

	intDigits := d.precision() - d.Scale
	limit := decimal.New(1, intDigits)
	if dec.Round(d.Scale).Abs().GreaterThanOrEqual(limit) {
		return []string{fmt.Sprintf("must have at most %d digits before the decimal point", intDigits)}
	}
	return nil
}

// isNullDecimal reports an invalid decimal.NullDecimal, which stands for NULL
func isNullDecimal(v interface{}) bool {
	n, ok := indirect(v).(decimal.NullDecimal)
	return ok && !n.Valid
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case decimal.NullDecimal:
		if !n.Valid {
			return decimal.Zero, fmt.Errorf("null decimal")
		}
		return n.Decimal, nil
	case string:
		return decimal.NewFromString(n)
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case bool:
		return decimal.Zero, fmt.Errorf("bool is not a decimal")
	}

	i, err := cast.ToInt64E(v)
	if err == nil {
		return decimal.NewFromInt(i), nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(f), nil
}
