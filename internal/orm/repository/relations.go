package repository

import (
	"context"

	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/query"
)

// FindWithRelations finds an entity by primary key and loads the named
// relations. Relation names are checked before any SQL is issued.
func (r *Repository) FindWithRelations(ctx context.Context, id interface{}, relations ...string) (*entity.Entity, error) {
	if err := r.loader.Check(r.meta, relations...); err != nil {
		return nil, err
	}

	e, err := r.Find(ctx, id)
	if err != nil || e == nil {
		return nil, err
	}
	if err := r.loader.EagerLoad(ctx, []*entity.Entity{e}, relations...); err != nil {
		return nil, err
	}
	return e, nil
}

// FindAllWithRelations loads every entity and the named relations with one
// extra query per relation
func (r *Repository) FindAllWithRelations(ctx context.Context, relations ...string) ([]*entity.Entity, error) {
	return r.FindByWithRelations(ctx, nil, nil, 0, 0, relations...)
}

// FindByWithRelations is FindBy followed by a batched eager load of the
// named relations
func (r *Repository) FindByWithRelations(ctx context.Context, criteria map[string]interface{}, orderBy []query.Order, limit, offset int, relations ...string) ([]*entity.Entity, error) {
	return r.FindWhereWithRelations(ctx, criteriaFilters(criteria), orderBy, limit, offset, relations...)
}

// EagerLoad loads the named relations onto entities the caller already
// holds. Slots that are already loaded are left alone.
func (r *Repository) EagerLoad(ctx context.Context, entities []*entity.Entity, relations ...string) error {
	for _, e := range entities {
		if err := r.checkEntity(e); err != nil {
			return err
		}
	}
	return r.loader.EagerLoad(ctx, entities, relations...)
}

// LoadRelation lazily loads one relation of e with a single query
func (r *Repository) LoadRelation(ctx context.Context, e *entity.Entity, name string) error {
	if err := r.checkEntity(e); err != nil {
		return err
	}
	return e.LoadRelation(ctx, name, r.loader)
}
