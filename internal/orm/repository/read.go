package repository

import (
	"context"
	"fmt"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

// Find retrieves an entity by its primary key. It returns nil and no error
// when no row matches.
func (r *Repository) Find(ctx context.Context, id interface{}) (*entity.Entity, error) {
	if id == nil {
		return nil, nil
	}
	cond, err := r.pkCondition(id)
	if err != nil {
		return nil, err
	}
	return r.fetchOne(ctx, &query.Select{Table: r.meta.TableName(), Where: []*query.Condition{cond}})
}

// FindAll retrieves every entity of the table
func (r *Repository) FindAll(ctx context.Context) ([]*entity.Entity, error) {
	return r.FindBy(ctx, nil, nil, 0, 0)
}

// FindBy retrieves the entities matching every criterion. A nil criterion
// matches NULL and a slice matches any of its values. limit and offset are
// ignored when zero.
func (r *Repository) FindBy(ctx context.Context, criteria map[string]interface{}, orderBy []query.Order, limit, offset int) ([]*entity.Entity, error) {
	return r.FindWhere(ctx, criteriaFilters(criteria), orderBy, limit, offset)
}

// FindOneBy returns the first entity matching criteria, or nil
func (r *Repository) FindOneBy(ctx context.Context, criteria map[string]interface{}, orderBy []query.Order) (*entity.Entity, error) {
	sel, err := r.selectWhere(criteriaFilters(criteria), orderBy, 1, 0)
	if err != nil {
		return nil, err
	}
	return r.fetchOne(ctx, sel)
}

// Count returns the number of rows matching criteria
func (r *Repository) Count(ctx context.Context, criteria map[string]interface{}) (int64, error) {
	return r.CountWhere(ctx, criteriaFilters(criteria))
}

// Exists checks if a row exists by its primary key
func (r *Repository) Exists(ctx context.Context, id interface{}) (bool, error) {
	if id == nil {
		return false, nil
	}
	cond, err := r.pkCondition(id)
	if err != nil {
		return false, err
	}

	v, err := r.scalar(ctx, &query.Select{Kind: query.SelectExists, Table: r.meta.TableName(), Where: []*query.Condition{cond}})
	if err != nil {
		return false, fmt.Errorf("failed to check if %s exists: %w", r.meta.Name, err)
	}
	exists, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("failed to check if %s exists: unexpected result %T", r.meta.Name, v)
	}
	return exists, nil
}


func (r *Repository) fetchOne(ctx context.Context, sel *query.Select) (*entity.Entity, error) {
	exec := r.executor(ctx)
	sqlStr, args, err := sel.Build(exec.Dialect())
	if err != nil {
		return nil, err
	}

	row, err := exec.FetchOne(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", r.meta.Name, err)
	}
	if row == nil {
		return nil, nil
	}
	return entity.Hydrated(r.meta, row)
}

func (r *Repository) fetchAll(ctx context.Context, sel *query.Select) ([]*entity.Entity, error) {
	exec := r.executor(ctx)
	sqlStr, args, err := sel.Build(exec.Dialect())
	if err != nil {
		return nil, err
	}

	rows, err := exec.FetchAll(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.meta.Name, err)
	}
	return r.hydrateAll(rows)
}

func (r *Repository) hydrateAll(rows []sqlexec.Row) ([]*entity.Entity, error) {
	out := make([]*entity.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := entity.Hydrated(r.meta, row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	r.logger.Debug("hydrated entities", zap.String("entity", r.meta.Name), zap.Int("count", len(out)))
	return out, nil
}

func (r *Repository) scalar(ctx context.Context, sel *query.Select) (interface{}, error) {
	exec := r.executor(ctx)
	sqlStr, args, err := sel.Build(exec.Dialect())
	if err != nil {
		return nil, err
	}
	return exec.FetchScalar(ctx, sqlStr, args...)
}
