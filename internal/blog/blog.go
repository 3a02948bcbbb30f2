// Package blog declares a small blog schema (users, profiles, posts,
// comments and tags) used by the ormctl demo commands and by tests that
// need a realistic set of relations.
package blog

import (
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/types"
)

func id() *schema.Column {
	return &schema.Column{Field: "id", Type: types.Integer{Big: true}, Primary: true, AutoIncrement: true}
}

func fk(field string, nullable bool) *schema.Column {
	return &schema.Column{Field: field, Type: types.Integer{Big: true}, Nullable: nullable}
}

// Definitions returns fresh definitions of every blog entity
func Definitions() []*schema.Definition {
	return []*schema.Definition{
		{
			Name: "User",
			Columns: []*schema.Column{
				id(),
				{Field: "email", Type: types.String{Length: 255}, Unique: true},
				{Field: "active", Type: types.Boolean{}, Nullable: true},
				{Field: "createdAt", Name: "created_at", Type: types.DateTime{}, Nullable: true},
			},
			Relations: []*schema.Relation{
				schema.HasMany("posts", "Post"),
				schema.HasOne("profile", "Profile"),
			},
		},
		{
			Name: "Profile",
			Columns: []*schema.Column{
				id(),
				fk("user_id", false),
				{Field: "bio", Type: types.String{}, Nullable: true},
			},
			Relations: []*schema.Relation{
				schema.BelongsTo("user", "User"),
			},
		},
		{
			Name: "Post",
			Columns: []*schema.Column{
				id(),
				fk("user_id", true),
				{Field: "title", Type: types.String{Length: 200}},
				{Field: "rating", Type: types.Decimal{Precision: 4, Scale: 2}, Nullable: true},
			},
			Relations: []*schema.Relation{
				schema.BelongsTo("user", "User"),
				schema.HasMany("comments", "Comment"),
				schema.BelongsToMany("tags", "Tag"),
			},
		},
		{
			Name: "Comment",
			Columns: []*schema.Column{
				id(),
				fk("post_id", false),
				{Field: "body", Type: types.String{}},
			},
			Relations: []*schema.Relation{
				schema.BelongsTo("post", "Post"),
			},
		},
		{
			Name: "Tag",
			Columns: []*schema.Column{
				id(),
				{Field: "name", Type: types.String{Length: 64}, Unique: true},
			},
			Relations: []*schema.Relation{
				schema.BelongsToMany("posts", "Post"),
			},
		},
	}
}

// NewRegistry registers every blog entity in a new registry and validates
// the relations between them
func NewRegistry(opts ...schema.RegistryOption) (*schema.Registry, error) {
	reg := schema.NewRegistry(opts...)
	for _, def := range Definitions() {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// MustRegistry is NewRegistry that panics on error
func MustRegistry(opts ...schema.RegistryOption) *schema.Registry {
	reg, err := NewRegistry(opts...)
	if err != nil {
		panic(err)
	}
	return reg
}
