package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

var (
	// ErrInvalidDirection is returned for an ORDER BY direction other than ASC or DESC
	ErrInvalidDirection = errors.New("invalid order direction")

	// ErrEmptyUpdate is returned when an UPDATE has no columns to set
	ErrEmptyUpdate = errors.New("update has no columns")
)

// Direction is an ORDER BY direction
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection normalizes case and rejects anything but ASC and DESC
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case Asc, Desc:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// Order is one ORDER BY term
type Order struct {
	Column    string
	Direction Direction
}

// OrderBy parses a direction and builds an Order
func OrderBy(column, direction string) (Order, error) {
	dir, err := ParseDirection(direction)
	if err != nil {
		return Order{}, err
	}
	return Order{Column: column, Direction: dir}, nil
}

// Column is a selected column with an optional alias
type Column struct {
	Name  string
	Alias string
}

// Join inner-joins Table on Left = Right, both qualified column names
type Join struct {
	Table string
	Left  string
	Right string
}

// SelectKind selects what a Select statement returns
type SelectKind int

const (
	// SelectRows returns the selected columns
	SelectRows SelectKind = iota
	// SelectCount returns COUNT(*)
	SelectCount
	// SelectExists returns a single boolean
	SelectExists
)

// Select describes a SELECT statement
type Select struct {
	Kind    SelectKind
	Table   string
	Columns []Column // nil selects *
	Joins   []Join
	Where   []*Condition
	OrderBy []Order
	Limit   int // 0 means no limit
	Offset  int
}

// Build renders the statement and its bind arguments
func (s *Select) Build(d dialect.Dialect) (string, []interface{}, error) {
	p := newParams(d)
	var b strings.Builder

	switch s.Kind {
	case SelectCount:
		b.WriteString("SELECT COUNT(*)")
	case SelectExists:
		b.WriteString("SELECT EXISTS(SELECT 1")
	default:
		b.WriteString("SELECT ")
		b.WriteString(s.columnList(d))
	}

	b.WriteString(" FROM ")
	b.WriteString(d.QuoteIdentifier(s.Table))

	for _, j := range s.Joins {
		fmt.Fprintf(&b, " INNER JOIN %s ON %s = %s",
			d.QuoteIdentifier(j.Table), d.QuoteIdentifier(j.Left), d.QuoteIdentifier(j.Right))
	}

	where, err := renderWhere(s.Where, p)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(where)

	if s.Kind == SelectRows && len(s.OrderBy) > 0 {
		terms := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			dir := o.Direction
			if dir == "" {
				dir = Asc
			}
			if dir != Asc && dir != Desc {
				return "", nil, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
			}
			terms[i] = d.QuoteIdentifier(o.Column) + " " + string(dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}

	if s.Kind == SelectRows {
		b.WriteString(s.limitClause(p))
	}

	if s.Kind == SelectExists {
		b.WriteString(")")
	}

	return b.String(), p.args, nil
}

func (s *Select) columnList(d dialect.Dialect) string {
	if len(s.Columns) == 0 {
		return "*"
	}
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = d.QuoteIdentifier(c.Name)
		if c.Alias != "" {
			cols[i] += " AS " + d.QuoteIdentifier(c.Alias)
		}
	}
	return strings.Join(cols, ", ")
}

// limitClause renders LIMIT and OFFSET. MySQL and SQLite accept OFFSET only
// after a LIMIT, so an offset alone gets the dialect's "no limit" value.
func (s *Select) limitClause(p *params) string {
	var b strings.Builder
	limit := s.Limit
	if limit <= 0 && s.Offset > 0 {
		switch p.dialect {
		case dialect.MySQL:
			b.WriteString(" LIMIT 18446744073709551615")
		case dialect.SQLite:
			b.WriteString(" LIMIT -1")
		}
	}
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(p.add(limit))
	}
	if s.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(p.add(s.Offset))
	}
	return b.String()
}

// Insert describes an INSERT statement
type Insert struct {
	Table     string
	Columns   []string
	Values    []interface{}
	Returning string // column read back on dialects with RETURNING
}

// InsertMap builds an Insert from a column -> value map in column order
func InsertMap(table string, values map[string]interface{}) *Insert {
	ins := &Insert{Table: table}
	for _, col := range sortedKeys(values) {
		ins.Columns = append(ins.Columns, col)
		ins.Values = append(ins.Values, values[col])
	}
	return ins
}

// Build renders the statement and its bind arguments
func (ins *Insert) Build(d dialect.Dialect) (string, []interface{}, error) {
	if len(ins.Columns) != len(ins.Values) {
		return "", nil, fmt.Errorf("insert into %s: %d columns but %d values", ins.Table, len(ins.Columns), len(ins.Values))
	}

	p := newParams(d)
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteIdentifier(ins.Table))

	switch {
	case len(ins.Columns) > 0:
		cols := make([]string, len(ins.Columns))
		placeholders := make([]string, len(ins.Columns))
		for i, col := range ins.Columns {
			cols[i] = d.QuoteIdentifier(col)
			placeholders[i] = p.add(ins.Values[i])
		}
		fmt.Fprintf(&b, " (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	case d == dialect.MySQL:
		b.WriteString(" () VALUES ()")
	default:
		b.WriteString(" DEFAULT VALUES")
	}

	if ins.Returning != "" && d.SupportsReturning() {
		b.WriteString(" RETURNING ")
		b.WriteString(d.QuoteIdentifier(ins.Returning))
	}

	return b.String(), p.args, nil
}

// Update describes an UPDATE statement
type Update struct {
	Table string
	Set   map[string]interface{}
	Where []*Condition
}

// Build renders the statement and its bind arguments. SET columns are
// rendered in sorted order.
func (u *Update) Build(d dialect.Dialect) (string, []interface{}, error) {
	if len(u.Set) == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrEmptyUpdate, u.Table)
	}

	p := newParams(d)
	cols := sortedKeys(u.Set)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = %s", d.QuoteIdentifier(col), p.add(u.Set[col]))
	}

	where, err := renderWhere(u.Where, p)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s%s", d.QuoteIdentifier(u.Table), strings.Join(sets, ", "), where)
	return sql, p.args, nil
}

// Delete describes a DELETE statement
type Delete struct {
	Table string
	Where []*Condition
}

// Build renders the statement and its bind arguments
func (del *Delete) Build(d dialect.Dialect) (string, []interface{}, error) {
	p := newParams(d)
	where, err := renderWhere(del.Where, p)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + d.QuoteIdentifier(del.Table) + where, p.args, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
