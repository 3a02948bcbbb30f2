package repository

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/spf13/cast"

	"github.com/conduit-lang/orm/internal/orm/entity"
	"github.com/conduit-lang/orm/internal/orm/query"
)

// Filter is one WHERE term on a column of the entity. Column may use the
// field or the storage spelling. With OpEqual and OpNotEqual a nil Value
// becomes IS NULL / IS NOT NULL and a slice becomes IN / NOT IN.
type Filter struct {
	Column   string
	Operator query.Operator
	Value    interface{}
}

// Where builds an equality filter
func Where(column string, value interface{}) Filter {
	return Filter{Column: column, Operator: query.OpEqual, Value: value}
}

// FindWhere retrieves the entities matching every filter
func (r *Repository) FindWhere(ctx context.Context, filters []Filter, orderBy []query.Order, limit, offset int) ([]*entity.Entity, error) {
	sel, err := r.selectWhere(filters, orderBy, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.fetchAll(ctx, sel)
}

// FindWhereWithRelations is FindWhere followed by a batched eager load of
// the named relations. Relation names are checked before any SQL is issued.
func (r *Repository) FindWhereWithRelations(ctx context.Context, filters []Filter, orderBy []query.Order, limit, offset int, relations ...string) ([]*entity.Entity, error) {
	if err := r.loader.Check(r.meta, relations...); err != nil {
		return nil, err
	}

	list, err := r.FindWhere(ctx, filters, orderBy, limit, offset)
	if err != nil {
		return nil, err
	}
	if err := r.loader.EagerLoad(ctx, list, relations...); err != nil {
		return nil, err
	}
	return list, nil
}

// CountWhere returns the number of rows matching every filter
func (r *Repository) CountWhere(ctx context.Context, filters []Filter) (int64, error) {
	conds, err := r.filterConditions(filters)
	if err != nil {
		return 0, err
	}

	v, err := r.scalar(ctx, &query.Select{Kind: query.SelectCount, Table: r.meta.TableName(), Where: conds})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.meta.Name, err)
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: unexpected result %T", r.meta.Name, v)
	}
	return n, nil
}

// selectWhere validates every caller-supplied name before building the query
func (r *Repository) selectWhere(filters []Filter, orderBy []query.Order, limit, offset int) (*query.Select, error) {
	conds, err := r.filterConditions(filters)
	if err != nil {
		return nil, err
	}
	orders, err := r.orders(orderBy)
	if err != nil {
		return nil, err
	}
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("invalid limit %d or offset %d", limit, offset)
	}
	return &query.Select{
		Table:   r.meta.TableName(),
		Where:   conds,
		OrderBy: orders,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// criteriaFilters turns a criteria map into equality filters sorted by key
func criteriaFilters(criteria map[string]interface{}) []Filter {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]Filter, len(keys))
	for i, k := range keys {
		filters[i] = Where(k, criteria[k])
	}
	return filters
}

// filterConditions resolves columns and encodes values with the column's
// type. LIKE patterns are passed through as text.
func (r *Repository) filterConditions(filters []Filter) ([]*query.Condition, error) {
	conds := make([]*query.Condition, 0, len(filters))
	for _, f := range filters {
		col, err := r.column(f.Column)
		if err != nil {
			return nil, err
		}
		name := col.ColumnName()
		invalid := func(err error) error {
			return fmt.Errorf("invalid criteria value for %s.%s: %w", r.meta.Name, col.Field, err)
		}

		op := f.Operator
		if list, ok := listValues(f.Value); ok {
			switch op {
			case query.OpEqual, query.OpIn:
				op = query.OpIn
			case query.OpNotEqual, query.OpNotIn:
				op = query.OpNotIn
			default:
				return nil, invalid(fmt.Errorf("%w: %s does not take a list", query.ErrInvalidOperand, op))
			}
			encoded := make([]interface{}, len(list))
			for i, item := range list {
				if encoded[i], err = col.Type.Encode(item); err != nil {
					return nil, invalid(err)
				}
			}
			conds = append(conds, &query.Condition{Column: name, Operator: op, Value: encoded})
			continue
		}

		switch {
		case op == query.OpIsNull || op == query.OpIsNotNull:
			conds = append(conds, &query.Condition{Column: name, Operator: op})
			continue
		case op == query.OpIn || op == query.OpNotIn:
			return nil, invalid(fmt.Errorf("%w: %s requires a list", query.ErrInvalidOperand, op))
		case op == query.OpLike:
			pattern, err := cast.ToStringE(f.Value)
			if err == nil && f.Value == nil {
				err = fmt.Errorf("%w: LIKE requires a pattern", query.ErrInvalidOperand)
			}
			if err != nil {
				return nil, invalid(err)
			}
			conds = append(conds, &query.Condition{Column: name, Operator: op, Value: pattern})
			continue
		}

		encoded, err := col.Type.Encode(f.Value)
		if err != nil {
			return nil, invalid(err)
		}
		if encoded != nil {
			conds = append(conds, &query.Condition{Column: name, Operator: op, Value: encoded})
			continue
		}

		// NULL only compares through IS [NOT] NULL
		switch op {
		case query.OpEqual:
			conds = append(conds, &query.Condition{Column: name, Operator: query.OpIsNull})
		case query.OpNotEqual:
			conds = append(conds, &query.Condition{Column: name, Operator: query.OpIsNotNull})
		default:
			return nil, invalid(fmt.Errorf("%w: %s requires a value", query.ErrInvalidOperand, op))
		}
	}
	return conds, nil
}

// listValues unpacks a slice value. []byte is a scalar value.
func listValues(v interface{}) ([]interface{}, bool) {
	switch list := v.(type) {
	case nil, []byte:
		return nil, false
	case []interface{}:
		return list, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
