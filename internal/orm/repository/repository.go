// Package repository provides CRUD operations for one entity type:
// lookups, dynamic finders guarded against unknown columns, save routing
// with identity write-back, minimal updates, deletes and batched eager
// loading of relations.
package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/relationships"
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/sqlexec"
	"github.com/conduit-lang/orm/internal/orm/transaction"
)

// Option configures a Repository
type Option func(*Repository)

// WithLogger sets the repository and loader logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithValidateOnSave rejects entities whose Validate result is not empty
func WithValidateOnSave() Option {
	return func(r *Repository) {
		r.validateOnSave = true
	}
}

// Repository provides CRUD operations for one entity type. It is safe for
// concurrent use when its executor is.
type Repository struct {
	meta           *schema.EntityMeta
	db             sqlexec.Executor
	loader         *relationships.Loader
	logger         *zap.Logger
	validateOnSave bool

	// every accepted spelling (field or storage) -> storage column
	columns map[string]string
}

// New creates a repository for the named entity of reg
func New(reg *schema.Registry, entityName string, db sqlexec.Executor, opts ...Option) (*Repository, error) {
	meta, err := reg.Meta(entityName)
	if err != nil {
		return nil, err
	}
	return NewForMeta(meta, db, opts...), nil
}

// NewForMeta creates a repository for meta
func NewForMeta(meta *schema.EntityMeta, db sqlexec.Executor, opts ...Option) *Repository {
	r := &Repository{
		meta:    meta,
		db:      db,
		logger:  zap.NewNop(),
		columns: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, col := range meta.Columns() {
		r.columns[col.Field] = col.ColumnName()
		r.columns[col.ColumnName()] = col.ColumnName()
	}
	r.loader = relationships.NewLoader(db, relationships.WithLogger(r.logger))
	return r
}

// Meta returns the entity metadata
func (r *Repository) Meta() *schema.EntityMeta {
	return r.meta
}

// TableName returns the table the repository reads and writes
func (r *Repository) TableName() string {
	return r.meta.TableName()
}

// Loader returns the relation loader used by the repository
func (r *Repository) Loader() *relationships.Loader {
	return r.loader
}

// New creates an unsaved entity of the repository's type
func (r *Repository) New() *entity.Entity {
	return entity.New(r.meta)
}

// WithTransaction runs fn in a transaction. Repository calls made with the
// ctx passed to fn run on that transaction.
func (r *Repository) WithTransaction(ctx context.Context, fn transaction.Func) error {
	db, ok := r.db.(*sqlexec.DB)
	if !ok {
		return ErrNoTransactions
	}
	return transaction.NewManager(db, r.logger).WithTransaction(ctx, fn)
}

// executor returns the transaction carried by ctx, or the repository's executor
func (r *Repository) executor(ctx context.Context) sqlexec.Executor {
	return transaction.Executor(ctx, r.db)
}

// column resolves a caller-supplied name to its storage column
func (r *Repository) column(name string) (*schema.Column, error) {
	if _, ok := r.columns[name]; !ok {
		return nil, fmt.Errorf("%w: %q is not a column of %s", ErrInvalidColumn, name, r.meta.Name)
	}
	col, _ := r.meta.Column(name)
	return col, nil
}

// orders checks order keys and normalizes their directions
func (r *Repository) orders(orderBy []query.Order) ([]query.Order, error) {
	out := make([]query.Order, len(orderBy))
	for i, o := range orderBy {
		col, err := r.column(o.Column)
		if err != nil {
			return nil, err
		}
		dir := query.Asc
		if o.Direction != "" {
			if dir, err = query.ParseDirection(string(o.Direction)); err != nil {
				return nil, err
			}
		}
		out[i] = query.Order{Column: col.ColumnName(), Direction: dir}
	}
	return out, nil
}

// pkCondition matches the stored row of id
func (r *Repository) pkCondition(id interface{}) (*query.Condition, error) {
	pk := r.meta.PrimaryKey()
	encoded, err := pk.Type.Encode(id)
	if err != nil {
		return nil, fmt.Errorf("invalid %s.%s: %w", r.meta.Name, pk.Field, err)
	}
	return query.Eq(pk.ColumnName(), encoded), nil
}

func (r *Repository) checkEntity(e *entity.Entity) error {
	if e.Meta() != r.meta {
		return fmt.Errorf("%w: %s repository got %s", ErrEntityMismatch, r.meta.Name, e.Meta().Name)
	}
	return nil
}
