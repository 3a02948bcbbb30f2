package relationships

import (
	"errors"

	"github.com/conduit-lang/orm/internal/orm/entity"
)

var (
	// ErrMaxDepthExceeded is returned when an include path is nested deeper
	// than the loader allows
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")

	// ErrUnknownRelationship is returned when an include names a relation the
	// entity does not declare. It is the same sentinel as
	// entity.ErrUnknownRelation.
	ErrUnknownRelationship = entity.ErrUnknownRelation

	// ErrInvalidRelationType is returned when an invalid relationship type is encountered
	ErrInvalidRelationType = errors.New("invalid relationship type")

	// ErrMixedEntities is returned when one eager load covers entities of
	// different types
	ErrMixedEntities = errors.New("eager load over mixed entity types")
)
