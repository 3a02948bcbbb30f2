package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/orm/internal/blog"
	"github.com/conduit-lang/orm/internal/orm/ddl"
	"github.com/conduit-lang/orm/internal/orm/dialect"
	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

type blogStore struct {
	db    *sqlexec.DB
	reg   *schema.Registry
	users *Repository
	posts *Repository
	tags  *Repository
}

func setupSQLite(t *testing.T) *blogStore {
	t.Helper()

	db, err := sqlexec.Open("sqlite3", filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := blog.MustRegistry()
	stmts, err := ddl.NewGenerator(dialect.SQLite).Schema(reg)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := db.Execute(context.Background(), stmt)
		require.NoError(t, err)
	}

	repo := func(name string) *Repository {
		r, err := New(reg, name, db)
		require.NoError(t, err)
		return r
	}
	return &blogStore{db: db, reg: reg, users: repo("User"), posts: repo("Post"), tags: repo("Tag")}
}

func (s *blogStore) create(t *testing.T, repo *Repository, values map[string]interface{}) *entity.Entity {
	t.Helper()
	e := repo.New()
	for k, v := range values {
		require.NoError(t, e.Set(k, v))
	}
	require.NoError(t, repo.Save(context.Background(), e))
	return e
}

func TestSQLite_Lifecycle(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	u := s.create(t, s.users, map[string]interface{}{"email": "a@x", "active": true})
	require.NotNil(t, u.ID(), "insert writes the generated id back")

	found, err := s.users.Find(ctx, u.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a@x", found.Get("email"))
	assert.Equal(t, true, found.Get("active"))

	require.NoError(t, found.Set("email", "z@x"))
	require.NoError(t, s.users.Save(ctx, found))

	again, err := s.users.Find(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, "z@x", again.Get("email"))

	require.NoError(t, s.users.Delete(ctx, again))
	gone, err := s.users.Find(ctx, u.ID())
	require.NoError(t, err)
	assert.Nil(t, gone)

	exists, err := s.users.Exists(ctx, u.ID())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLite_FindByNullAndValue(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	s.create(t, s.users, map[string]interface{}{"email": "a@x", "active": true})
	s.create(t, s.users, map[string]interface{}{"email": "b@x", "active": false})
	s.create(t, s.users, map[string]interface{}{"email": "c@x"})

	active, err := s.users.FindBy(ctx, map[string]interface{}{"active": true}, nil, 0, 0)
	require.NoError(t, err)
	unknown, err := s.users.FindBy(ctx, map[string]interface{}{"active": nil}, nil, 0, 0)
	require.NoError(t, err)

	require.Len(t, active, 1)
	require.Len(t, unknown, 1)
	assert.Equal(t, "a@x", active[0].Get("email"))
	assert.Equal(t, "c@x", unknown[0].Get("email"))

	n, err := s.users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	page, err := s.users.FindBy(ctx, nil, []query.Order{{Column: "email", Direction: "desc"}}, 0, 1)
	require.NoError(t, err)
	require.Len(t, page, 2, "offset without limit")
	assert.Equal(t, "b@x", page[0].Get("email"))
}

func TestSQLite_EagerLoading(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	u1 := s.create(t, s.users, map[string]interface{}{"email": "a@x", "active": true})
	s.create(t, s.users, map[string]interface{}{"email": "b@x", "active": false})

	p1 := s.create(t, s.posts, map[string]interface{}{"user_id": u1.ID(), "title": "P1"})
	s.create(t, s.posts, map[string]interface{}{"user_id": u1.ID(), "title": "P2"})
	goTag := s.create(t, s.tags, map[string]interface{}{"name": "go"})

	_, err := s.db.Execute(ctx, "INSERT INTO post_tag (post_id, tag_id) VALUES (?, ?)", p1.ID(), goTag.ID())
	require.NoError(t, err)

	users, err := s.users.FindAllWithRelations(ctx, "posts", "posts.tags")
	require.NoError(t, err)
	require.Len(t, users, 2)

	posts := users[0].RelatedList("posts")
	require.Len(t, posts, 2)
	assert.Equal(t, "P1", posts[0].Get("title"))
	assert.Equal(t, "P2", posts[1].Get("title"))
	require.Len(t, posts[0].RelatedList("tags"), 1)
	assert.Equal(t, "go", posts[0].RelatedList("tags")[0].Get("name"))
	assert.Empty(t, posts[1].RelatedList("tags"))

	assert.NotNil(t, users[1].RelatedList("posts"))
	assert.Empty(t, users[1].RelatedList("posts"))

	post, err := s.posts.FindWithRelations(ctx, p1.ID(), "user")
	require.NoError(t, err)
	require.NotNil(t, post.Related("user"))
	assert.Equal(t, "a@x", post.Related("user").Get("email"))
}

func TestSQLite_TransactionRollsBack(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.users.WithTransaction(ctx, func(ctx context.Context, tx *sqlexec.Tx) error {
		u := s.users.New()
		if err := u.Set("email", "tx@x"); err != nil {
			return err
		}
		if err := s.users.Save(ctx, u); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.users.Count(ctx, map[string]interface{}{"email": "tx@x"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_ConstraintViolation(t *testing.T) {
	s := setupSQLite(t)

	s.create(t, s.users, map[string]interface{}{"email": "a@x"})

	dup := s.users.New()
	require.NoError(t, dup.Set("email", "a@x"))
	err := s.users.Save(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, sqlexec.IsUniqueViolation(err))
	assert.True(t, dup.IsNew(), "failed insert leaves the entity unsaved")
}
