package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/relationships"
	"github.com/conduit-lang/orm/internal/orm/repository"
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

// isolate runs the test in an empty directory so no orm.yaml or .env leaks in
func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("DATABASE_URL", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return out.String(), err
}

// seed creates the blog tables in a fresh SQLite file and returns the
// connection flags pointing at it
func seed(t *testing.T) []string {
	t.Helper()
	isolate(t)

	path := filepath.Join(t.TempDir(), "blog.db")
	conn := []string{"--driver", "sqlite", "--dsn", path}

	out, err := run(t, append([]string{"db", "setup"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	db, err := sqlexec.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	for _, stmt := range []string{
		`INSERT INTO user (id, email, active) VALUES (1, 'a@x', 1), (2, 'b@x', 0), (3, 'c@x', NULL)`,
		`INSERT INTO post (id, user_id, title) VALUES (10, 1, 'First'), (11, 1, 'Second'), (12, NULL, 'Orphan')`,
		`INSERT INTO comment (id, post_id, body) VALUES (100, 10, 'nice')`,
		`INSERT INTO tag (id, name) VALUES (1, 'go')`,
		`INSERT INTO post_tag (post_id, tag_id) VALUES (10, 1)`,
	} {
		_, err := db.Execute(ctx, stmt)
		require.NoError(t, err)
	}
	return conn
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "ormctl", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	registered := map[string]bool{}
	for _, sub := range cmd.Commands() {
		registered[sub.Name()] = true
	}
	for _, expected := range []string{"version", "describe", "db", "find", "list", "count"} {
		assert.True(t, registered[expected], "expected command %s to be registered", expected)
	}

	for _, flag := range []string{"config", "driver", "dsn", "no-color", "metrics"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	t.Cleanup(func() { Version = "dev" })

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ormctl version")
	assert.Contains(t, out, "1.0.0-test")
}

func TestDescribe_All(t *testing.T) {
	isolate(t)

	out, err := run(t, "describe")
	require.NoError(t, err)

	for _, want := range []string{"ENTITY", "Comment", "Post", "Profile", "Tag", "User", "posts, profile"} {
		assert.Contains(t, out, want)
	}
}

func TestDescribe_Entity(t *testing.T) {
	isolate(t)

	out, err := run(t, "describe", "post", "--driver", "mysql")
	require.NoError(t, err)

	for _, want := range []string{
		"Post",
		"Dialect:",
		"mysql",
		"VARCHAR(200)",
		"DECIMAL(4,2)",
		"primary,auto",
		"post.user_id = user.id",
		"comment.post_id = post.id",
		"tag via post_tag(post_id, tag_id)",
	} {
		assert.Contains(t, out, want)
	}
}

func TestDescribe_UnknownEntity(t *testing.T) {
	isolate(t)

	_, err := run(t, "describe", "Usr")
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownEntity)
	assert.Contains(t, err.Error(), "did you mean: User")
}

func TestDBPing(t *testing.T) {
	conn := seed(t)

	out, err := run(t, append([]string{"db", "ping"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "connected to sqlite database")
}

func TestDBSetup_Idempotent(t *testing.T) {
	conn := seed(t)

	out, err := run(t, append([]string{"db", "setup"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	out, err = run(t, append([]string{"count", "User"}, conn...)...)
	require.NoError(t, err)
	assert.Equal(t, "3", strings.TrimSpace(out), "existing rows survive")
}

func TestDBSchema(t *testing.T) {
	isolate(t)

	out, err := run(t, "db", "schema", "--driver", "postgres", "--dsn", "postgres://localhost/none")
	require.NoError(t, err)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "post_tag"`)
	assert.Contains(t, out, `"id" BIGSERIAL PRIMARY KEY`)
	assert.Contains(t, out, `CREATE INDEX IF NOT EXISTS "idx_comment_post_id"`)
}

func TestFind(t *testing.T) {
	conn := seed(t)

	out, err := run(t, append([]string{"find", "User", "1", "--with", "posts.comments,profile"}, conn...)...)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	assert.Equal(t, "a@x", doc["email"])
	assert.Nil(t, doc["profile"])

	posts, ok := doc["posts"].([]interface{})
	require.True(t, ok)
	require.Len(t, posts, 2)

	first := posts[0].(map[string]interface{})
	assert.Equal(t, "First", first["title"])
	assert.Len(t, first["comments"], 1)
	assert.Empty(t, posts[1].(map[string]interface{})["comments"])
}

func TestFind_NotFound(t *testing.T) {
	conn := seed(t)

	_, err := run(t, append([]string{"find", "User", "99"}, conn...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User 99 not found")
}

func TestFind_UnknownRelation(t *testing.T) {
	conn := seed(t)

	_, err := run(t, append([]string{"find", "User", "1", "--with", "followers"}, conn...)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, relationships.ErrUnknownRelationship)
}

func TestList(t *testing.T) {
	conn := seed(t)

	args := []string{"list", "Post", "--where", "user_id=1", "--order", "title desc", "--limit", "1", "--with", "tags,user"}
	out, err := run(t, append(args, conn...)...)
	require.NoError(t, err)

	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)

	assert.Equal(t, "Second", docs[0]["title"])
	assert.Empty(t, docs[0]["tags"])
	assert.Equal(t, "a@x", docs[0]["user"].(map[string]interface{})["email"])
}

func TestList_ComparisonFilters(t *testing.T) {
	conn := seed(t)

	args := []string{"list", "Post", "--where", "user_id!=null", "--where", "id>10", "--order", "id desc"}
	out, err := run(t, append(args, conn...)...)
	require.NoError(t, err)

	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Second", docs[0]["title"])
}

func TestList_InvalidColumn(t *testing.T) {
	conn := seed(t)

	_, err := run(t, append([]string{"list", "User", "--where", "password=x"}, conn...)...)
	require.Error(t, err)
}

func TestCount(t *testing.T) {
	conn := seed(t)

	tests := []struct {
		name  string
		where []string
		want  string
	}{
		{"all", nil, "3"},
		{"value", []string{"--where", "active=true"}, "1"},
		{"null", []string{"--where", "active=null"}, "1"},
		{"two filters", []string{"--where", "active=false", "--where", "email=b@x"}, "1"},
		{"not null", []string{"--where", "active!=null"}, "2"},
		{"greater or equal", []string{"--where", "id>=2"}, "2"},
		{"less than", []string{"--where", "id<2"}, "1"},
		{"like", []string{"--where", "email~%@x"}, "3"},
		{"not equal", []string{"--where", "email!=a@x"}, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"count", "User"}, tt.where...)
			out, err := run(t, append(args, conn...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestMetricsFlag(t *testing.T) {
	conn := seed(t)

	out, err := run(t, append([]string{"count", "Post", "--metrics"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "orm_queries_total")
	assert.Contains(t, out, "status=ok")
}

func TestParseWhere(t *testing.T) {
	filters, err := parseWhere([]string{"email=a=b", " active =null", "id>=10", "id<3", "active!=null", "title~%go%", "rating>4"})
	require.NoError(t, err)
	assert.Equal(t, []repository.Filter{
		{Column: "email", Operator: query.OpEqual, Value: "a=b"},
		{Column: "active", Operator: query.OpEqual},
		{Column: "id", Operator: query.OpGreaterThanOrEqual, Value: "10"},
		{Column: "id", Operator: query.OpLessThan, Value: "3"},
		{Column: "active", Operator: query.OpNotEqual},
		{Column: "title", Operator: query.OpLike, Value: "%go%"},
		{Column: "rating", Operator: query.OpGreaterThan, Value: "4"},
	}, filters)

	filters, err = parseWhere(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)

	for _, bad := range []string{"novalue", "=x", "id!5", "<=3"} {
		_, err = parseWhere([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseOrder(t *testing.T) {
	orders, err := parseOrder([]string{"email", "created_at desc"})
	require.NoError(t, err)
	assert.Equal(t, []query.Order{{Column: "email"}, {Column: "created_at", Direction: query.Desc}}, orders)

	_, err = parseOrder([]string{"a b c"})
	assert.Error(t, err)
	_, err = parseOrder([]string{"email sideways"})
	assert.ErrorIs(t, err, query.ErrInvalidDirection)
}
