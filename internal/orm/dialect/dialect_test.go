package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Dialect
	}{
		{"mysql", MySQL},
		{"MariaDB", MySQL},
		{"postgres", Postgres},
		{"pgx", Postgres},
		{" postgresql ", Postgres},
		{"sqlite3", SQLite},
		{"sqlite", SQLite},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse("oracle")
	assert.Error(t, err)
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$1", Postgres.Placeholder(1))
	assert.Equal(t, "$12", Postgres.Placeholder(12))
	assert.Equal(t, "?", MySQL.Placeholder(3))
	assert.Equal(t, "?", SQLite.Placeholder(1))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, Postgres.QuoteIdentifier("users"))
	assert.Equal(t, `"posts"."user_id"`, SQLite.QuoteIdentifier("posts.user_id"))
	assert.Equal(t, "`users`", MySQL.QuoteIdentifier("users"))
	assert.Equal(t, "`we``ird`", MySQL.QuoteIdentifier("we`ird"))
	assert.Equal(t, `"we""ird"`, Postgres.QuoteIdentifier(`we"ird`))
	assert.Equal(t, `"posts".*`, Postgres.QuoteIdentifier("posts.*"))
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "pgx", Postgres.DriverName())
	assert.Equal(t, "mysql", MySQL.DriverName())
	assert.Equal(t, "sqlite3", SQLite.DriverName())
	assert.True(t, Postgres.SupportsReturning())
	assert.False(t, MySQL.SupportsReturning())
}
