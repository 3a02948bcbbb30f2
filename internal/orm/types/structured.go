package types

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

// Enum stores one of a fixed set of strings
type Enum struct {
	Values []string
}

// Name returns the type name
func (Enum) Name() string { return "enum" }

// Encode converts the value to its string form
func (e Enum) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	s, err := cast.ToStringE(indirect(value))
	if err != nil {
		return nil, unsupported(e, value)
	}
	return s, nil
}

// Decode converts a driver value to a string
func (e Enum) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	s, err := cast.ToStringE(textual(value))
	if err != nil {
		return nil, unsupported(e, value)
	}
	return s, nil
}

// SQLType returns ENUM(...) on mysql and a sized VARCHAR elsewhere
func (e Enum) SQLType(d dialect.Dialect) string {
	if d == dialect.MySQL {
		quoted := make([]string, len(e.Values))
		for i, v := range e.Values {
			quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		return fmt.Sprintf("ENUM(%s)", strings.Join(quoted, ","))
	}
	width := 1
	for _, v := range e.Values {
		if len(v) > width {
			width = len(v)
		}
	}
	return fmt.Sprintf("VARCHAR(%d)", width)
}

// Validate checks the value is one of the allowed values
func (e Enum) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	s, err := cast.ToStringE(indirect(value))
	if err != nil {
		return []string{fmt.Sprintf("must be a string, got %T", value)}
	}
	for _, allowed := range e.Values {
		if s == allowed {
			return nil
		}
	}
	return []string{fmt.Sprintf("must be one of [%s], got %q", strings.Join(e.Values, ", "), s)}
}

// Binary stores raw bytes
type Binary struct{}

// Name returns the type name
func (Binary) Name() string { return "binary" }

// Encode returns a copy of the bytes
func (b Binary) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	switch v := indirect(value).(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	default:
		return nil, unsupported(b, value)
	}
}

// Decode returns a copy of the driver bytes; drivers reuse their buffers
func (b Binary) Decode(value interface{}) (interface{}, error) {
	return b.Encode(value)
}

// SQLType returns the blob column type for the dialect
func (Binary) SQLType(d dialect.Dialect) string {
	switch d {
	case dialect.MySQL:
		return "LONGBLOB"
	case dialect.Postgres:
		return "BYTEA"
	default:
		return "BLOB"
	}
}

// Validate checks the value is bytes or a string
func (Binary) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	switch indirect(value).(type) {
	case []byte, string:
		return nil
	default:
		return []string{fmt.Sprintf("must be binary data, got %T", value)}
	}
}

// JSON stores structured values as JSON text. Decoded objects come back as
// map[string]interface{} with float64 numbers.
type JSON struct {
	// Binary selects JSONB on postgres
	Binary bool
}

// Name returns the type name
func (JSON) Name() string { return "json" }

// Encode marshals the value to JSON text
func (j JSON) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	return string(data), nil
}

// Decode unmarshals JSON text; already-structured values pass through
func (j JSON) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return v, nil
	}

	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrUnsupportedValue, err)
	}
	return out, nil
}

// SQLType returns the JSON column type for the dialect
func (j JSON) SQLType(d dialect.Dialect) string {
	switch d {
	case dialect.MySQL:
		return "JSON"
	case dialect.Postgres:
		if j.Binary {
			return "JSONB"
		}
		return "JSON"
	default:
		return "TEXT"
	}
}

// Validate checks the value can be marshalled
func (JSON) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	if _, err := json.Marshal(value); err != nil {
		return []string{fmt.Sprintf("must be JSON serialisable: %v", err)}
	}
	return nil
}

// UUID stores uuid.UUID values in their canonical text form
type UUID struct{}

// Name returns the type name
func (UUID) Name() string { return "uuid" }

// Encode returns the canonical string form
func (u UUID) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	id, err := toUUID(indirect(value))
	if err != nil {
		return nil, unsupported(u, value)
	}
	return id.String(), nil
}

// Decode parses text or 16 raw bytes into a uuid.UUID
func (u UUID) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	id, err := toUUID(value)
	if err != nil {
		return nil, unsupported(u, value)
	}
	return id, nil
}

// SQLType returns the UUID column type for the dialect
func (UUID) SQLType(d dialect.Dialect) string {
	switch d {
	case dialect.Postgres:
		return "UUID"
	case dialect.MySQL:
		return "CHAR(36)"
	default:
		return "TEXT"
	}
}

// Validate checks the value is a UUID
func (UUID) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	if _, err := toUUID(indirect(value)); err != nil {
		return []string{fmt.Sprintf("must be a UUID, got %v", value)}
	}
	return nil
}

func toUUID(v interface{}) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case string:
		return uuid.Parse(id)
	case []byte:
		if len(id) == 16 {
			return uuid.FromBytes(id)
		}
		return uuid.ParseBytes(id)
	default:
		return uuid.Nil, fmt.Errorf("cannot convert %T to uuid", v)
	}
}
