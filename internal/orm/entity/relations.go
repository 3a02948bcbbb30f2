package entity

import (
	"context"
	"fmt"

	"github.com/conduit-lang/orm/internal/orm/schema"
)

func (e *Entity) relation(name string) (*schema.Relation, error) {
	rel, ok := e.meta.Relation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, e.meta.Name, name)
	}
	return rel, nil
}

// RelationLoaded reports whether the relation slot was filled
func (e *Entity) RelationLoaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// Relation returns the slot value and whether it was loaded
func (e *Entity) Relation(name string) (interface{}, bool) {
	v, ok := e.relations[name]
	return v, ok
}

// Related returns the loaded entity of a to-one relation. It returns nil
// when the relation is not loaded or has no related row.
func (e *Entity) Related(name string) *Entity {
	v, _ := e.relations[name].(*Entity)
	return v
}

// RelatedList returns the loaded entities of a to-many relation. It returns
// nil only when the relation is not loaded.
func (e *Entity) RelatedList(name string) []*Entity {
	v, _ := e.relations[name].([]*Entity)
	return v
}

// SetRelation fills a relation slot. To-one relations take *Entity or nil;
// to-many relations take []*Entity, where nil is stored as an empty list.
func (e *Entity) SetRelation(name string, value interface{}) error {
	rel, err := e.relation(name)
	if err != nil {
		return err
	}

	if rel.Kind.ToMany() {
		switch v := value.(type) {
		case nil:
			e.relations[name] = []*Entity{}
		case []*Entity:
			if v == nil {
				v = []*Entity{}
			}
			e.relations[name] = v
		default:
			return fmt.Errorf("%w: %s.%s expects []*Entity, got %T", ErrInvalidRelationValue, e.meta.Name, name, value)
		}
		return nil
	}

	switch v := value.(type) {
	case nil:
		e.relations[name] = (*Entity)(nil)
	case *Entity:
		e.relations[name] = v
	default:
		return fmt.Errorf("%w: %s.%s expects *Entity, got %T", ErrInvalidRelationValue, e.meta.Name, name, value)
	}
	return nil
}

// UnloadRelation resets a relation slot to not loaded
func (e *Entity) UnloadRelation(name string) {
	delete(e.relations, name)
}

// LoadedRelations returns the names of filled relation slots
func (e *Entity) LoadedRelations() []string {
	names := make([]string, 0, len(e.relations))
	for _, rel := range e.meta.Relations() {
		if _, ok := e.relations[rel.Name]; ok {
			names = append(names, rel.Name)
		}
	}
	return names
}

// LoadRelation fills a relation slot through loader. A slot that is already
// loaded is left alone and no query is issued.
func (e *Entity) LoadRelation(ctx context.Context, name string, loader RelationLoader) error {
	rel, err := e.relation(name)
	if err != nil {
		return err
	}
	if e.RelationLoaded(name) {
		return nil
	}

	value, err := loader.Fetch(ctx, e, rel)
	if err != nil {
		return fmt.Errorf("failed to load %s.%s: %w", e.meta.Name, name, err)
	}
	return e.SetRelation(name, value)
}
