package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/types"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	reg.MustRegister(
		&schema.Definition{
			Name: "User",
			Columns: []*schema.Column{
				{Field: "id", Type: types.Integer{Big: true}, Primary: true, AutoIncrement: true},
				{Field: "email", Type: types.String{Length: 255}},
				{Field: "active", Type: types.Boolean{}, Nullable: true, Default: true},
				{Field: "balance", Type: types.Decimal{Precision: 10, Scale: 2}, Nullable: true},
				{Field: "createdAt", Name: "created_at", Type: types.DateTime{}, Nullable: true},
			},
			Relations: []*schema.Relation{
				schema.HasMany("posts", "Post"),
				schema.HasOne("profile", "Profile"),
			},
		},
		&schema.Definition{
			Name: "Post",
			Columns: []*schema.Column{
				{Field: "id", Type: types.Integer{Big: true}, Primary: true, AutoIncrement: true},
				{Field: "user_id", Type: types.Integer{Big: true}},
				{Field: "title", Type: types.String{Length: 200}},
			},
		},
		&schema.Definition{
			Name: "Profile",
			Columns: []*schema.Column{
				{Field: "id", Type: types.Integer{Big: true}, Primary: true, AutoIncrement: true},
				{Field: "user_id", Type: types.Integer{Big: true}},
			},
		},
	)
	return reg
}

func userMeta(t *testing.T) *schema.EntityMeta {
	return testRegistry(t).MustMeta("User")
}

func TestNew(t *testing.T) {
	u := New(userMeta(t))

	assert.Equal(t, StateNew, u.State())
	assert.True(t, u.IsNew())
	assert.False(t, u.HasIdentity())
	assert.Equal(t, true, u.Get("active"), "default applied")
	assert.False(t, u.HasChanges(), "defaults are not dirty")

	_, changed, err := u.ModifiedStorageMap()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestHydrate_NeverDirties(t *testing.T) {
	u, err := Hydrated(userMeta(t), map[string]interface{}{
		"id":         int64(1),
		"email":      []byte("a@x"),
		"active":     int64(1),
		"balance":    "12.50",
		"created_at": "2024-01-02 03:04:05",
		"unknown":    "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, StatePersisted, u.State())
	assert.Equal(t, int64(1), u.ID())
	assert.Equal(t, "a@x", u.Get("email"))
	assert.Equal(t, true, u.Get("active"))
	assert.True(t, decimal.RequireFromString("12.5").Equal(u.Get("balance").(decimal.Decimal)))
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), u.Get("createdAt"))
	assert.Equal(t, u.Get("createdAt"), u.Get("created_at"), "storage spelling resolves too")
	assert.Nil(t, u.Get("unknown"))

	data, changed, err := u.ModifiedStorageMap()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, data)
}

func TestHydrate_MissingColumnsKeepDefaults(t *testing.T) {
	u, err := Hydrated(userMeta(t), map[string]interface{}{"id": int64(3)})
	require.NoError(t, err)

	assert.Equal(t, true, u.Get("active"))
	assert.Nil(t, u.Get("email"))
	assert.False(t, u.HasChanges())
}

func TestHydrate_DecodeError(t *testing.T) {
	_, err := Hydrated(userMeta(t), map[string]interface{}{"id": "not a number"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnsupportedValue))
	assert.Contains(t, err.Error(), "User.id")
}

func TestHydrate_ClearsDirtySet(t *testing.T) {
	u := New(userMeta(t))
	require.NoError(t, u.Set("email", "x@y"))
	require.NoError(t, u.Hydrate(map[string]interface{}{"id": int64(5), "email": "a@x"}))

	assert.False(t, u.HasChanges())
	assert.Equal(t, "a@x", u.Original("email"))
}

func TestSet_MarksModified(t *testing.T) {
	u, err := Hydrated(userMeta(t), map[string]interface{}{"id": int64(1), "email": "a@x"})
	require.NoError(t, err)

	require.NoError(t, u.Set("email", "b@x"))
	require.NoError(t, u.Set("created_at", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)))

	assert.True(t, u.IsDirty("email"))
	assert.True(t, u.IsDirty("createdAt"))
	assert.True(t, u.IsDirty("created_at"))
	assert.Equal(t, []string{"createdAt", "email"}, u.DirtyFields())
	assert.Equal(t, "a@x", u.Original("email"))

	changes := u.Changes()
	require.Contains(t, changes, "email")
	assert.Equal(t, "a@x", changes["email"].OldValue)
	assert.Equal(t, "b@x", changes["email"].NewValue)

	data, changed, err := u.ModifiedStorageMap()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, map[string]interface{}{
		"email":      "b@x",
		"created_at": "2024-05-06 07:08:09",
	}, data)
}

func TestChangedFromAndTo(t *testing.T) {
	u, err := Hydrated(userMeta(t), map[string]interface{}{"id": int64(1), "email": "a@x"})
	require.NoError(t, err)

	assert.False(t, u.ChangedFrom("email", "a@x"), "clean field")
	assert.False(t, u.ChangedTo("email", "a@x"), "clean field")

	require.NoError(t, u.Set("email", "b@x"))
	require.NoError(t, u.Set("created_at", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)))

	assert.True(t, u.ChangedFrom("email", "a@x"))
	assert.False(t, u.ChangedFrom("email", "b@x"))
	assert.True(t, u.ChangedTo("email", "b@x"))
	assert.False(t, u.ChangedTo("email", "c@x"))
	assert.True(t, u.ChangedFrom("created_at", nil), "storage spelling resolves to the field")
	assert.True(t, u.ChangedTo("createdAt", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)))

	u.MarkSaved()
	assert.False(t, u.ChangedTo("email", "b@x"))
}

func TestSet_UnknownField(t *testing.T) {
	u := New(userMeta(t))
	err := u.Set("nope", 1)
	assert.True(t, errors.Is(err, ErrUnknownField))
	assert.True(t, errors.Is(u.SetRaw("nope", 1), ErrUnknownField))
}

func TestSetRaw_DoesNotMark(t *testing.T) {
	u := New(userMeta(t))
	require.NoError(t, u.SetRaw("email", "quiet@x"))

	assert.Equal(t, "quiet@x", u.Get("email"))
	assert.False(t, u.HasChanges())

	u.MarkModified("email", "email")
	assert.Equal(t, []string{"email"}, u.DirtyFields())
}

func TestModifiedStorageMap_DropsNonColumns(t *testing.T) {
	u := New(userMeta(t))
	u.MarkModified("posts")

	data, changed, err := u.ModifiedStorageMap()
	require.NoError(t, err)
	assert.True(t, changed, "dirty set is non-empty")
	assert.Empty(t, data, "but nothing maps to storage")
}

func TestModifiedStorageMap_EncodeError(t *testing.T) {
	u := New(userMeta(t))
	require.NoError(t, u.Set("balance", "lots"))

	_, _, err := u.ModifiedStorageMap()
	assert.True(t, errors.Is(err, types.ErrUnsupportedValue))
}

func TestToStorageMap(t *testing.T) {
	u := New(userMeta(t))
	require.NoError(t, u.Set("email", "a@x"))
	require.NoError(t, u.Set("balance", 3.14159))

	data, err := u.ToStorageMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"id":         nil,
		"email":      "a@x",
		"active":     true,
		"balance":    "3.14",
		"created_at": nil,
	}, data)
}

func TestEncodeDecodeStability(t *testing.T) {
	meta := userMeta(t)
	u := New(meta)
	require.NoError(t, u.Set("balance", "7.129"))
	require.NoError(t, u.Set("createdAt", time.Date(2024, 1, 1, 1, 1, 1, 999, time.UTC)))

	first, err := u.ToStorageMap()
	require.NoError(t, err)

	again, err := Hydrated(meta, first)
	require.NoError(t, err)
	second, err := again.ToStorageMap()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLifecycle(t *testing.T) {
	u := New(userMeta(t))
	require.NoError(t, u.Set("email", "a@x"))

	require.NoError(t, u.AssignID(int64(42)))
	assert.False(t, u.IsDirty("id"), "generated identity is not dirty")
	u.MarkSaved()

	assert.Equal(t, StatePersisted, u.State())
	assert.Equal(t, int64(42), u.ID())
	assert.Equal(t, int64(42), u.OriginalID())
	assert.False(t, u.HasChanges())
	assert.Equal(t, "a@x", u.Original("email"))

	require.NoError(t, u.Set("id", int64(43)))
	assert.Equal(t, int64(42), u.OriginalID())

	u.MarkDeleted()
	assert.True(t, u.IsDeleted())
	assert.Equal(t, "deleted", u.State().String())
}

func TestValidate(t *testing.T) {
	u := New(userMeta(t))
	errs := u.Validate()
	assert.Equal(t, []string{"email"}, errs.Fields())

	require.NoError(t, u.Set("email", "a@x"))
	assert.True(t, u.Validate().Empty())
}

func TestString(t *testing.T) {
	u, err := Hydrated(userMeta(t), map[string]interface{}{"id": int64(9)})
	require.NoError(t, err)
	assert.Equal(t, "User(9)", u.String())
}

type stubLoader struct {
	calls int
	value interface{}
	err   error
}

func (s *stubLoader) Fetch(ctx context.Context, e *Entity, rel *schema.Relation) (interface{}, error) {
	s.calls++
	return s.value, s.err
}

func TestRelationSlots(t *testing.T) {
	reg := testRegistry(t)
	u := New(reg.MustMeta("User"))

	assert.False(t, u.RelationLoaded("posts"))
	assert.Nil(t, u.RelatedList("posts"))

	require.NoError(t, u.SetRelation("posts", nil))
	assert.True(t, u.RelationLoaded("posts"))
	assert.NotNil(t, u.RelatedList("posts"))
	assert.Empty(t, u.RelatedList("posts"))

	require.NoError(t, u.SetRelation("profile", nil))
	assert.True(t, u.RelationLoaded("profile"))
	assert.Nil(t, u.Related("profile"))

	p := New(reg.MustMeta("Profile"))
	require.NoError(t, u.SetRelation("profile", p))
	assert.Same(t, p, u.Related("profile"))
	assert.Equal(t, []string{"posts", "profile"}, u.LoadedRelations())

	err := u.SetRelation("profile", []*Entity{p})
	assert.True(t, errors.Is(err, ErrInvalidRelationValue))
	err = u.SetRelation("posts", p)
	assert.True(t, errors.Is(err, ErrInvalidRelationValue))
	err = u.SetRelation("friends", nil)
	assert.True(t, errors.Is(err, ErrUnknownRelation))

	u.UnloadRelation("profile")
	assert.False(t, u.RelationLoaded("profile"))
}

func TestLoadRelation(t *testing.T) {
	reg := testRegistry(t)
	u := New(reg.MustMeta("User"))
	post := New(reg.MustMeta("Post"))

	loader := &stubLoader{value: []*Entity{post}}
	require.NoError(t, u.LoadRelation(context.Background(), "posts", loader))
	require.NoError(t, u.LoadRelation(context.Background(), "posts", loader))

	assert.Equal(t, 1, loader.calls, "second load is a no-op")
	assert.Equal(t, []*Entity{post}, u.RelatedList("posts"))
}

func TestLoadRelation_Errors(t *testing.T) {
	reg := testRegistry(t)
	u := New(reg.MustMeta("User"))

	loader := &stubLoader{}
	err := u.LoadRelation(context.Background(), "friends", loader)
	assert.True(t, errors.Is(err, ErrUnknownRelation))
	assert.Equal(t, 0, loader.calls)

	boom := errors.New("boom")
	err = u.LoadRelation(context.Background(), "posts", &stubLoader{err: boom})
	assert.True(t, errors.Is(err, boom))
	assert.False(t, u.RelationLoaded("posts"), "failed load leaves the slot unloaded")
}
