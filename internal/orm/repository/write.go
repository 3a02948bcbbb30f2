package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/types"
)

// Save inserts an entity without identity or one that was never stored,
// and updates it otherwise
func (r *Repository) Save(ctx context.Context, e *entity.Entity) error {
	if err := r.checkEntity(e); err != nil {
		return err
	}
	if e.IsDeleted() {
		return fmt.Errorf("%w: cannot save %s", ErrEntityDeleted, e)
	}
	if r.validateOnSave {
		if errs := e.Validate(); !errs.Empty() {
			return &ValidationError{Entity: r.meta.Name, Errors: errs}
		}
	}

	if !e.HasIdentity() || e.IsNew() {
		return r.Insert(ctx, e)
	}
	return r.Update(ctx, e)
}

// Insert stores every column of e. A database-generated primary key left
// nil is omitted and read back afterwards; a nil UUID primary key is
// generated before the insert.
func (r *Repository) Insert(ctx context.Context, e *entity.Entity) error {
	if err := r.checkEntity(e); err != nil {
		return err
	}
	if e.IsDeleted() {
		return fmt.Errorf("%w: cannot insert %s", ErrEntityDeleted, e)
	}

	pk := r.meta.PrimaryKey()
	if _, isUUID := pk.Type.(types.UUID); isUUID && e.ID() == nil {
		if err := e.SetRaw(pk.Field, uuid.New()); err != nil {
			return err
		}
	}

	values, err := e.ToStorageMap()
	if err != nil {
		return err
	}

	generated := pk.Generated() && values[pk.ColumnName()] == nil
	if generated {
		delete(values, pk.ColumnName())
	}

	ins := query.InsertMap(r.meta.TableName(), values)
	if generated {
		ins.Returning = pk.ColumnName()
	}

	exec := r.executor(ctx)
	sqlStr, args, err := ins.Build(exec.Dialect())
	if err != nil {
		return err
	}

	switch {
	case generated && exec.Dialect().SupportsReturning():
		id, err := exec.FetchScalar(ctx, sqlStr, args...)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.meta.Name, err)
		}
		if err := e.AssignID(id); err != nil {
			return err
		}
	case generated:
		res, err := exec.Execute(ctx, sqlStr, args...)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.meta.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read generated %s.%s: %w", r.meta.Name, pk.Field, err)
		}
		if err := e.AssignID(id); err != nil {
			return err
		}
	default:
		if _, err := exec.Execute(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.meta.Name, err)
		}
	}

	e.MarkSaved()
	r.logger.Debug("inserted entity",
		zap.String("entity", r.meta.Name),
		zap.String("table", r.meta.TableName()),
		zap.Any("id", e.ID()),
	)
	return nil
}

// Update writes the dirty columns of e. An entity without dirty columns is
// left alone and no SQL is issued.
func (r *Repository) Update(ctx context.Context, e *entity.Entity) error {
	if err := r.checkEntity(e); err != nil {
		return err
	}
	if e.IsDeleted() {
		return fmt.Errorf("%w: cannot update %s", ErrEntityDeleted, e)
	}

	set, dirty, err := e.ModifiedStorageMap()
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	if len(set) == 0 {
		// only non-column names were marked
		e.MarkSaved()
		return nil
	}

	cond, err := r.pkCondition(r.storedID(e))
	if err != nil {
		return err
	}

	exec := r.executor(ctx)
	sqlStr, args, err := (&query.Update{
		Table: r.meta.TableName(),
		Set:   set,
		Where: []*query.Condition{cond},
	}).Build(exec.Dialect())
	if err != nil {
		return err
	}

	if _, err := exec.Execute(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", e, err)
	}

	r.logger.Debug("updated entity",
		zap.String("entity", r.meta.Name),
		zap.Any("id", e.ID()),
		zap.Strings("fields", e.DirtyFields()),
	)
	e.MarkSaved()
	return nil
}

// Delete removes the stored row of e. Deleting an entity that was never
// stored succeeds without SQL. Related rows are not touched.
func (r *Repository) Delete(ctx context.Context, e *entity.Entity) error {
	if err := r.checkEntity(e); err != nil {
		return err
	}
	if e.IsDeleted() {
		return fmt.Errorf("%w: cannot delete %s twice", ErrEntityDeleted, e)
	}
	if e.IsNew() || !e.HasIdentity() {
		return nil
	}

	cond, err := r.pkCondition(r.storedID(e))
	if err != nil {
		return err
	}

	exec := r.executor(ctx)
	sqlStr, args, err := (&query.Delete{Table: r.meta.TableName(), Where: []*query.Condition{cond}}).Build(exec.Dialect())
	if err != nil {
		return err
	}

	if _, err := exec.Execute(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to delete %s: %w", e, err)
	}

	e.MarkDeleted()
	r.logger.Debug("deleted entity", zap.String("entity", r.meta.Name), zap.Any("id", e.ID()))
	return nil
}

// storedID is the identity of the stored row, which differs from ID when
// the primary key was changed since the last save
func (r *Repository) storedID(e *entity.Entity) interface{} {
	if id := e.OriginalID(); id != nil {
		return id
	}
	return e.ID()
}
