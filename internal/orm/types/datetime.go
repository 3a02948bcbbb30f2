package types

import (
	"fmt"
	"time"

	"github.com/jinzhu/now"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

const (
	// DateTimeLayout is the default storage layout for date-times
	DateTimeLayout = "2006-01-02 15:04:05"
	// DateLayout is the storage layout for dates
	DateLayout = "2006-01-02"
)

// DateTime stores time.Time values as text in a fixed layout, truncating
// anything finer than the layout (sub-second precision by default, the time
// of day for DateOnly).
type DateTime struct {
	Layout   string
	Location *time.Location
	DateOnly bool
}

// Name returns the type name
func (t DateTime) Name() string {
	if t.DateOnly {
		return "date"
	}
	return "datetime"
}

func (t DateTime) layout() string {
	switch {
	case t.Layout != "":
		return t.Layout
	case t.DateOnly:
		return DateLayout
	default:
		return DateTimeLayout
	}
}

func (t DateTime) location() *time.Location {
	if t.Location == nil {
		return time.UTC
	}
	return t.Location
}

// Encode formats the value in the storage layout
func (t DateTime) Encode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	tm, err := t.toTime(indirect(value))
	if err != nil {
		return nil, unsupported(t, value)
	}
	return tm.In(t.location()).Format(t.layout()), nil
}

// Decode parses a driver value into a time.Time in the configured location
func (t DateTime) Decode(value interface{}) (interface{}, error) {
	if IsNil(value) {
		return nil, nil
	}
	tm, err := t.toTime(textual(value))
	if err != nil {
		return nil, unsupported(t, value)
	}
	// reparse so the result carries exactly the stored precision
	truncated, err := time.ParseInLocation(t.layout(), tm.In(t.location()).Format(t.layout()), t.location())
	if err != nil {
		return nil, err
	}
	return truncated, nil
}

// SQLType returns the temporal column type for the dialect
func (t DateTime) SQLType(d dialect.Dialect) string {
	if t.DateOnly {
		return "DATE"
	}
	if d == dialect.Postgres {
		return "TIMESTAMP"
	}
	return "DATETIME"
}

// Validate checks the value is a time or a parseable time string
func (t DateTime) Validate(value interface{}) []string {
	if IsNil(value) {
		return nil
	}
	if _, err := t.toTime(indirect(value)); err != nil {
		return []string{fmt.Sprintf("must be a valid %s", t.Name())}
	}
	return nil
}

func (t DateTime) toTime(v interface{}) (time.Time, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv, nil
	case string:
		return t.parse(tv)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
	}
}

func (t DateTime) parse(s string) (time.Time, error) {
	loc := t.location()
	if tm, err := time.ParseInLocation(t.layout(), s, loc); err == nil {
		return tm, nil
	}
	if tm, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return tm, nil
	}
	return now.ParseInLocation(loc, s)
}
