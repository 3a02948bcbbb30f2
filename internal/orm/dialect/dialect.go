// Package dialect describes the SQL flavours the ORM can talk to: how
// placeholders are written, how identifiers are quoted and which driver
// backs each flavour.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect identifies a relational backend
type Dialect string

const (
	// MySQL is MySQL / MariaDB
	MySQL Dialect = "mysql"
	// Postgres is PostgreSQL
	Postgres Dialect = "postgres"
	// SQLite is SQLite 3
	SQLite Dialect = "sqlite"
)

// Parse converts a configuration string (dialect or driver name) to a Dialect
func Parse(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unknown dialect: %q", s)
	}
}

// String returns the dialect name
func (d Dialect) String() string {
	return string(d)
}

// DriverName returns the database/sql driver registered for the dialect
func (d Dialect) DriverName() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "pgx"
	case SQLite:
		return "sqlite3"
	default:
		return string(d)
	}
}

// Placeholder returns the bind parameter marker for the n-th (1-based) argument
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// SupportsReturning reports whether INSERT ... RETURNING is used to read
// generated identities instead of LastInsertId.
func (d Dialect) SupportsReturning() bool {
	return d == Postgres
}

// QuoteIdentifier escapes a table or column name. Dotted names
// ("posts.user_id") are quoted part by part and "*" is left alone.
func (d Dialect) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if part == "*" {
			continue
		}
		parts[i] = d.quotePart(part)
	}
	return strings.Join(parts, ".")
}

func (d Dialect) quotePart(part string) string {
	switch d {
	case MySQL:
		return "`" + strings.ReplaceAll(part, "`", "``") + "`"
	default:
		// postgres and sqlite share ANSI double quotes
		return pq.QuoteIdentifier(part)
	}
}
