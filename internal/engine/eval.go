package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"admindata/internal/apperr"
	"admindata/internal/query"
	"admindata/internal/store"
)

// All evaluates the queryset and returns instances. Joined to-one
// relations are hydrated from the same row set; prefetched relations
// add one query each, independent of the number of base rows.
func (e *Executor) All(ctx context.Context, qs *query.Queryset) ([]*Instance, error) {
	if err := qs.Err(); err != nil {
		return nil, err
	}
	sel, err := buildSelect(e.Registry, e.Store.Dialect, qs)
	if err != nil {
		return nil, err
	}
	rows, err := e.Store.QueryRows(ctx, e.querier(ctx), sel.sql, sel.args...)
	if err != nil {
		return nil, apperr.Backend(err, "query %s", qs.Model().DottedName())
	}

	insts, err := e.hydrate(qs, sel, rows)
	if err != nil {
		return nil, err
	}
	if err := e.prefetchAll(ctx, qs, insts); err != nil {
		return nil, err
	}
	return insts, nil
}

// Count returns the size of the whole match set; any limit/offset
// window on the queryset is ignored.
func (e *Executor) Count(ctx context.Context, qs *query.Queryset) (int64, error) {
	if err := qs.Err(); err != nil {
		return 0, err
	}
	sqlStr, args, err := buildCount(e.Store.Dialect, qs)
	if err != nil {
		return 0, err
	}
	row, err := e.Store.QueryRow(ctx, e.querier(ctx), sqlStr, args...)
	if err != nil {
		return 0, apperr.Backend(err, "count %s", qs.Model().DottedName())
	}
	return toInt64(row["n"]), nil
}

// Exists reports whether at least one row matches.
func (e *Executor) Exists(ctx context.Context, qs *query.Queryset) (bool, error) {
	if err := qs.Err(); err != nil {
		return false, err
	}
	sqlStr, args, err := buildExists(e.Store.Dialect, qs)
	if err != nil {
		return false, err
	}
	rows, err := e.Store.QueryRows(ctx, e.querier(ctx), sqlStr, args...)
	if err != nil {
		return false, apperr.Backend(err, "exists %s", qs.Model().DottedName())
	}
	return len(rows) > 0, nil
}

// Values returns field-value projections instead of instances. With no
// fields the distinct fields (if set) or all model fields are used.
// Annotation names may be projected alongside stored fields.
func (e *Executor) Values(ctx context.Context, qs *query.Queryset, fields ...string) ([]map[string]any, error) {
	if err := qs.Err(); err != nil {
		return nil, err
	}
	m := qs.Model()

	requested := fields
	if len(requested) == 0 {
		if len(qs.DistinctFields()) > 0 {
			requested = qs.DistinctFields()
		} else {
			requested = m.FieldNames()
			for _, a := range qs.Annotations() {
				requested = append(requested, a.Name)
			}
		}
	}

	annotated := make(map[string]query.Annotation, len(qs.Annotations()))
	for _, a := range qs.Annotations() {
		annotated[a.Name] = a
	}

	var dbFields []string
	needAnnotations := false
	for _, f := range requested {
		if m.HasField(f) {
			dbFields = append(dbFields, f)
			continue
		}
		if _, ok := annotated[f]; ok {
			needAnnotations = true
			continue
		}
		return nil, apperr.Validation(fmt.Sprintf("unknown field %s on %s", f, m.DottedName()))
	}

	sqlStr, args, err := buildValuesSelect(e.Store.Dialect, qs, dbFields, needAnnotations)
	if err != nil {
		return nil, err
	}
	rows, err := e.Store.QueryRows(ctx, e.querier(ctx), sqlStr, args...)
	if err != nil {
		return nil, apperr.Backend(err, "values %s", m.DottedName())
	}
	if e.Store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, boolFields(m))
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		proj := make(map[string]any, len(requested))
		for _, f := range requested {
			if a, ok := annotated[f]; ok {
				v, err := runAnnotation(a, row)
				if err != nil {
					return nil, err
				}
				proj[f] = v
				continue
			}
			proj[f] = row[f]
		}
		out = append(out, proj)
	}
	return out, nil
}

// ValuesList returns positional tuples in the order fields are given.
func (e *Executor) ValuesList(ctx context.Context, qs *query.Queryset, fields ...string) ([][]any, error) {
	if len(fields) == 0 {
		return nil, apperr.Validation("values list requires at least one field")
	}
	maps, err := e.Values(ctx, qs, fields...)
	if err != nil {
		return nil, err
	}
	out := make([][]any, len(maps))
	for i, row := range maps {
		tuple := make([]any, len(fields))
		for j, f := range fields {
			tuple[j] = row[f]
		}
		out[i] = tuple
	}
	return out, nil
}

// ValuesFlat is the single-field form of ValuesList: bare values
// instead of one-element tuples.
func (e *Executor) ValuesFlat(ctx context.Context, qs *query.Queryset, field string) ([]any, error) {
	tuples, err := e.ValuesList(ctx, qs, field)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(tuples))
	for i, tuple := range tuples {
		out[i] = tuple[0]
	}
	return out, nil
}

// hydrate turns flat rows into instances: joined relation columns are
// peeled into related instances and annotations are evaluated per row.
func (e *Executor) hydrate(qs *query.Queryset, sel *selectQuery, rows []map[string]any) ([]*Instance, error) {
	m := qs.Model()

	if e.Store.Dialect.NeedsBoolFix() {
		cols := boolFields(m)
		for _, j := range sel.joined {
			for _, f := range boolFields(j.target) {
				cols = append(cols, j.alias+"__"+f)
			}
		}
		store.NormalizeBooleans(rows, cols)
	}

	insts := make([]*Instance, 0, len(rows))
	for _, row := range rows {
		inst := newInstance(m, row, true)
		for _, j := range sel.joined {
			prefix := j.alias + "__"
			sub := make(map[string]any)
			for k, v := range row {
				if strings.HasPrefix(k, prefix) {
					sub[strings.TrimPrefix(k, prefix)] = v
					delete(row, k)
				}
			}
			if sub[j.target.PrimaryKeyField()] == nil {
				inst.setRelated(j.alias, (*Instance)(nil))
			} else {
				inst.setRelated(j.alias, newInstance(j.target, sub, true))
			}
		}
		insts = append(insts, inst)
	}

	for _, inst := range insts {
		for _, a := range qs.Annotations() {
			v, err := runAnnotation(a, inst.data)
			if err != nil {
				return nil, err
			}
			inst.setAnnotation(a.Name, v)
		}
	}
	return insts, nil
}

func runAnnotation(a query.Annotation, rec map[string]any) (any, error) {
	v, err := expr.Run(a.Program, map[string]any{"record": rec})
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("annotation %s: %v", a.Name, err))
	}
	return v, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
