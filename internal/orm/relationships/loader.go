package relationships

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/sqlexec"
	"github.com/conduit-lang/orm/internal/orm/transaction"
)

var _ entity.RelationLoader = (*Loader)(nil)

// assignment is a relation value waiting to be stored on its entity
type assignment struct {
	target *entity.Entity
	name   string
	value  interface{}
}

// Fetch loads one relation of a single entity with one query. It backs
// entity.LoadRelation.
func (l *Loader) Fetch(ctx context.Context, e *entity.Entity, rel *schema.Relation) (interface{}, error) {
	values, err := l.batch(ctx, transaction.Executor(ctx, l.db), rel, []*entity.Entity{e})
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// EagerLoad loads the named relations for every entity in one batched query
// per relation and nesting level. Includes may be dotted ("posts.comments").
//
// Every name is checked before any SQL runs. Entities whose slot is already
// loaded are skipped, but nested includes still descend into what they
// hold. Nothing is assigned unless the whole call succeeds.
func (l *Loader) EagerLoad(ctx context.Context, entities []*entity.Entity, includes ...string) error {
	if len(entities) == 0 || len(includes) == 0 {
		return nil
	}

	meta := entities[0].Meta()
	for _, e := range entities[1:] {
		if e.Meta() != meta {
			return fmt.Errorf("%w: %s and %s", ErrMixedEntities, meta.Name, e.Meta().Name)
		}
	}

	tree := parseIncludes(includes)
	if err := l.resolve(meta, tree, 1, ""); err != nil {
		return err
	}

	var staged []assignment
	if err := l.load(ctx, transaction.Executor(ctx, l.db), entities, tree, &staged); err != nil {
		return err
	}

	for _, a := range staged {
		if err := a.target.SetRelation(a.name, a.value); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) load(ctx context.Context, exec sqlexec.Executor, entities []*entity.Entity, nodes []*include, staged *[]assignment) error {
	for _, n := range nodes {
		var pending []*entity.Entity
		var next collector

		for _, e := range entities {
			if v, ok := e.Relation(n.name); ok {
				next.add(v)
				continue
			}
			pending = append(pending, e)
		}

		if len(pending) > 0 {
			values, err := l.batch(ctx, exec, n.rel, pending)
			if err != nil {
				return fmt.Errorf("failed to load relationship %s: %w", n.name, err)
			}
			for i, e := range pending {
				*staged = append(*staged, assignment{target: e, name: n.name, value: values[i]})
				next.add(values[i])
			}

			l.logger.Debug("eager loaded relation",
				zap.String("entity", n.rel.Owner().Name),
				zap.String("relation", n.name),
				zap.Int("owners", len(pending)),
				zap.Int("related", len(next.entities)),
			)
		}

		if len(n.children) > 0 && len(next.entities) > 0 {
			if err := l.load(ctx, exec, next.entities, n.children, staged); err != nil {
				return err
			}
		}
	}
	return nil
}

// collector gathers the distinct related entities of one level
type collector struct {
	seen     map[*entity.Entity]struct{}
	entities []*entity.Entity
}

func (c *collector) add(value interface{}) {
	switch v := value.(type) {
	case *entity.Entity:
		c.push(v)
	case []*entity.Entity:
		for _, e := range v {
			c.push(e)
		}
	}
}

func (c *collector) push(e *entity.Entity) {
	if e == nil {
		return
	}
	if c.seen == nil {
		c.seen = make(map[*entity.Entity]struct{})
	}
	if _, ok := c.seen[e]; ok {
		return
	}
	c.seen[e] = struct{}{}
	c.entities = append(c.entities, e)
}
