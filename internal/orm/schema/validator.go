package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a definition error with context
type ValidationError struct {
	Entity  string
	Field   string
	Message string
	Hint    string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// SchemaValidator validates entity definitions
type SchemaValidator struct{}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// ValidateStructural validates a single definition without cross-entity
// checks, so definitions may reference entities registered later.
func (v *SchemaValidator) ValidateStructural(def *Definition) error {
	if def == nil {
		return errors.New("schema validation failed: nil definition")
	}

	var errs []error
	add := func(field, msg, hint string) {
		errs = append(errs, &ValidationError{Entity: def.Name, Field: field, Message: msg, Hint: hint})
	}

	if ShortName(def.Name) == "" {
		add("", "entity name is required", "")
	}
	if len(def.Columns) == 0 {
		add("", "entity has no columns", "")
	}

	fields := make(map[string]bool)
	storage := make(map[string]bool)
	primaries := 0
	for _, col := range def.Columns {
		if col == nil || col.Field == "" {
			add("", "column without a field name", "")
			continue
		}
		if fields[col.Field] {
			add(col.Field, "duplicate field", "")
		}
		fields[col.Field] = true

		name := col.ColumnName()
		if storage[name] {
			add(col.Field, fmt.Sprintf("duplicate storage column %q", name), "")
		}
		storage[name] = true

		if col.Type == nil {
			add(col.Field, "column has no type", "use a type from the types package")
		}
		if col.Primary {
			primaries++
		}
		if col.AutoIncrement && !col.Primary {
			add(col.Field, "auto increment is only supported on the primary key", "")
		}
	}

	switch {
	case primaries == 0 && len(def.Columns) > 0:
		add("", "entity has no primary key", "mark one column with Primary: true")
	case primaries > 1:
		add("", "composite primary keys are not supported", "")
	}

	relations := make(map[string]bool)
	for _, rel := range def.Relations {
		if rel == nil || rel.Name == "" {
			add("", "relation without a name", "")
			continue
		}
		if relations[rel.Name] {
			add(rel.Name, "duplicate relation", "")
		}
		relations[rel.Name] = true
		if fields[rel.Name] {
			add(rel.Name, "relation name collides with a column field", "")
		}
		if rel.Related == "" {
			add(rel.Name, "relation has no related entity", "")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("schema validation failed for %s: %w", def.Name, errors.Join(errs...))
	}
	return nil
}

// ValidateRelations checks that every relation of a built entity resolves
// against the registry: the related entity exists and the key columns exist
// on the side of the relation that stores them.
func (v *SchemaValidator) ValidateRelations(meta *EntityMeta) error {
	var errs []error
	add := func(rel *Relation, msg string) {
		errs = append(errs, &ValidationError{Entity: meta.Name, Field: rel.Name, Message: msg})
	}

	for _, rel := range meta.relations {
		related, err := rel.RelatedMeta()
		if err != nil {
			add(rel, err.Error())
			continue
		}

		switch rel.Kind {
		case RelationHasOne, RelationHasMany:
			if !related.HasColumn(rel.ForeignKey()) {
				add(rel, fmt.Sprintf("foreign key %q does not exist on %s", rel.ForeignKey(), related.Name))
			}
			if !meta.HasColumn(rel.LocalKey()) {
				add(rel, fmt.Sprintf("local key %q does not exist on %s", rel.LocalKey(), meta.Name))
			}
		case RelationBelongsTo:
			if !meta.HasColumn(rel.ForeignKey()) {
				add(rel, fmt.Sprintf("foreign key %q does not exist on %s", rel.ForeignKey(), meta.Name))
			}
			ownerKey, _ := rel.OwnerKey()
			if !related.HasColumn(ownerKey) {
				add(rel, fmt.Sprintf("owner key %q does not exist on %s", ownerKey, related.Name))
			}
		case RelationBelongsToMany:
			relatedKey, _ := rel.RelatedKey()
			if !related.HasColumn(relatedKey) {
				add(rel, fmt.Sprintf("related key %q does not exist on %s", relatedKey, related.Name))
			}
			if !meta.HasColumn(rel.LocalKey()) {
				add(rel, fmt.Sprintf("local key %q does not exist on %s", rel.LocalKey(), meta.Name))
			}
		}
	}

	return errors.Join(errs...)
}
