package relationships

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

// pivotKeyAlias carries the owner key of each row of a belongs-to-many join
const pivotKeyAlias = "__pivot_key"

// batch loads rel for every owner with a single query and returns the slot
// values in owner order: *entity.Entity (or nil) for to-one relations and a
// non-nil []*entity.Entity for to-many relations
func (l *Loader) batch(ctx context.Context, exec sqlexec.Executor, rel *schema.Relation, owners []*entity.Entity) ([]interface{}, error) {
	related, err := rel.RelatedMeta()
	if err != nil {
		return nil, err
	}

	switch rel.Kind {
	case schema.RelationHasOne, schema.RelationHasMany:
		return l.loadHasOneOrMany(ctx, exec, rel, related, owners)
	case schema.RelationBelongsTo:
		return l.loadBelongsTo(ctx, exec, rel, related, owners)
	case schema.RelationBelongsToMany:
		return l.loadBelongsToMany(ctx, exec, rel, related, owners)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRelationType, rel)
	}
}

// loadHasOneOrMany batches SELECT * FROM related WHERE fk IN (local keys).
// HasOne keeps the last row per key; HasMany groups rows per key.
func (l *Loader) loadHasOneOrMany(ctx context.Context, exec sqlexec.Executor, rel *schema.Relation, related *schema.EntityMeta, owners []*entity.Entity) ([]interface{}, error) {
	localCol, err := keyColumn(rel.Owner(), rel.LocalKey(), rel)
	if err != nil {
		return nil, err
	}
	fkCol, err := keyColumn(related, rel.ForeignKey(), rel)
	if err != nil {
		return nil, err
	}

	values := emptyValues(rel, len(owners))
	keys, err := collectKeys(owners, localCol)
	if err != nil {
		return nil, err
	}
	if keys.empty() {
		return values, nil
	}

	rows, err := fetch(ctx, exec, &query.Select{
		Table: related.TableName(),
		Where: []*query.Condition{query.In(fkCol.ColumnName(), keys.args)},
	})
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*entity.Entity)
	for _, row := range rows {
		e, err := entity.Hydrated(related, row)
		if err != nil {
			return nil, err
		}
		k := keyString(e.Get(fkCol.Field))
		grouped[k] = append(grouped[k], e)
	}

	assign(values, owners, localCol, rel, grouped)
	return values, nil
}

// loadBelongsTo batches SELECT * FROM related WHERE owner_key IN (fk values).
// Owners with a null foreign key get nil and add nothing to the query.
func (l *Loader) loadBelongsTo(ctx context.Context, exec sqlexec.Executor, rel *schema.Relation, related *schema.EntityMeta, owners []*entity.Entity) ([]interface{}, error) {
	fkCol, err := keyColumn(rel.Owner(), rel.ForeignKey(), rel)
	if err != nil {
		return nil, err
	}
	ownerKey, err := rel.OwnerKey()
	if err != nil {
		return nil, err
	}
	ownerCol, err := keyColumn(related, ownerKey, rel)
	if err != nil {
		return nil, err
	}

	values := emptyValues(rel, len(owners))
	keys, err := collectKeys(owners, fkCol)
	if err != nil {
		return nil, err
	}
	if keys.empty() {
		return values, nil
	}

	rows, err := fetch(ctx, exec, &query.Select{
		Table: related.TableName(),
		Where: []*query.Condition{query.In(ownerCol.ColumnName(), keys.args)},
	})
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*entity.Entity)
	for _, row := range rows {
		e, err := entity.Hydrated(related, row)
		if err != nil {
			return nil, err
		}
		k := keyString(e.Get(ownerCol.Field))
		grouped[k] = append(grouped[k], e)
	}

	assign(values, owners, fkCol, rel, grouped)
	return values, nil
}

// loadBelongsToMany joins the related table to the pivot table and selects
// the pivot's owner key next to each related row to group rows per owner
func (l *Loader) loadBelongsToMany(ctx context.Context, exec sqlexec.Executor, rel *schema.Relation, related *schema.EntityMeta, owners []*entity.Entity) ([]interface{}, error) {
	localCol, err := keyColumn(rel.Owner(), rel.LocalKey(), rel)
	if err != nil {
		return nil, err
	}
	pivot, err := rel.PivotTable()
	if err != nil {
		return nil, err
	}
	relatedKey, err := rel.RelatedKey()
	if err != nil {
		return nil, err
	}
	if _, err := keyColumn(related, relatedKey, rel); err != nil {
		return nil, err
	}

	values := emptyValues(rel, len(owners))
	keys, err := collectKeys(owners, localCol)
	if err != nil {
		return nil, err
	}
	if keys.empty() {
		return values, nil
	}

	table := related.TableName()
	foreignPivotKey := pivot + "." + rel.ForeignPivotKey()
	rows, err := fetch(ctx, exec, &query.Select{
		Table: table,
		Columns: []query.Column{
			{Name: table + ".*"},
			{Name: foreignPivotKey, Alias: pivotKeyAlias},
		},
		Joins: []query.Join{{
			Table: pivot,
			Left:  pivot + "." + rel.RelatedPivotKey(),
			Right: table + "." + relatedKey,
		}},
		Where: []*query.Condition{query.In(foreignPivotKey, keys.args)},
	})
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*entity.Entity)
	for _, row := range rows {
		owner, err := localCol.Type.Decode(row[pivotKeyAlias])
		if err != nil {
			return nil, fmt.Errorf("failed to decode pivot key of %s: %w", rel, err)
		}
		e, err := entity.Hydrated(related, row)
		if err != nil {
			return nil, err
		}
		k := keyString(owner)
		grouped[k] = append(grouped[k], e)
	}

	assign(values, owners, localCol, rel, grouped)
	return values, nil
}

func fetch(ctx context.Context, exec sqlexec.Executor, sel *query.Select) ([]sqlexec.Row, error) {
	sqlStr, args, err := sel.Build(exec.Dialect())
	if err != nil {
		return nil, err
	}
	return exec.FetchAll(ctx, sqlStr, args...)
}

func keyColumn(meta *schema.EntityMeta, name string, rel *schema.Relation) (*schema.Column, error) {
	col, ok := meta.Column(name)
	if !ok {
		return nil, fmt.Errorf("relation %s: %s has no key column %q", rel, meta.Name, name)
	}
	return col, nil
}

// emptyValues returns the slot values of owners without related rows
func emptyValues(rel *schema.Relation, n int) []interface{} {
	values := make([]interface{}, n)
	for i := range values {
		if rel.Kind.ToMany() {
			values[i] = []*entity.Entity{}
		} else {
			values[i] = (*entity.Entity)(nil)
		}
	}
	return values
}

// assign copies grouped rows onto the owner slots by key
func assign(values []interface{}, owners []*entity.Entity, col *schema.Column, rel *schema.Relation, grouped map[string][]*entity.Entity) {
	for i, o := range owners {
		v := o.Get(col.Field)
		if v == nil {
			continue
		}
		matches := grouped[keyString(v)]
		if len(matches) == 0 {
			continue
		}
		if rel.Kind.ToMany() {
			values[i] = append([]*entity.Entity(nil), matches...)
		} else {
			values[i] = matches[len(matches)-1]
		}
	}
}

// keySet holds the distinct encoded key values of a batch
type keySet struct {
	seen map[string]struct{}
	args []interface{}
}

func (k *keySet) empty() bool {
	return len(k.args) == 0
}

func collectKeys(owners []*entity.Entity, col *schema.Column) (*keySet, error) {
	keys := &keySet{seen: make(map[string]struct{}, len(owners))}
	for _, o := range owners {
		v := o.Get(col.Field)
		if v == nil {
			continue
		}
		s := keyString(v)
		if _, ok := keys.seen[s]; ok {
			continue
		}
		keys.seen[s] = struct{}{}

		encoded, err := col.Type.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode key %s.%s: %w", o.Meta().Name, col.Field, err)
		}
		keys.args = append(keys.args, encoded)
	}
	return keys, nil
}

// keyString normalizes a decoded key for matching. Owner and related key
// columns may use different Go types for the same value.
func keyString(v interface{}) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
