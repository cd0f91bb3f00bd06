package engine

import (
	"context"
	"fmt"
	"strings"

	"admindata/internal/apperr"
	"admindata/internal/metadata"
	"admindata/internal/query"
	"admindata/internal/store"
)

// Column alias carrying the owning key through a many-to-many prefetch
// join. Kept out of the target's namespace by the leading underscores.
const linkSourceCol = "__link_source"

func (e *Executor) prefetchAll(ctx context.Context, qs *query.Queryset, insts []*Instance) error {
	if len(insts) == 0 {
		return nil
	}
	m := qs.Model()
	for _, name := range qs.PrefetchedRelations() {
		// Relation existence was validated when the queryset was built.
		rel := m.GetRelation(name)
		if err := e.prefetchOne(ctx, m, rel, insts); err != nil {
			return err
		}
	}
	return nil
}

// prefetchOne loads one relation for a batch of instances with a
// single query keyed by the owners' identifiers, then attaches the
// grouped results. The query count never depends on len(insts).
func (e *Executor) prefetchOne(ctx context.Context, m *metadata.Model, rel *metadata.Relation, insts []*Instance) error {
	target, err := e.Registry.Resolve(rel.Target)
	if err != nil {
		return err
	}
	switch rel.Kind {
	case metadata.ManyToOne:
		return e.prefetchToOne(ctx, rel, target, insts)
	case metadata.OneToMany:
		return e.prefetchToMany(ctx, rel, target, insts)
	case metadata.ManyToMany:
		return e.prefetchManyToMany(ctx, rel, target, insts)
	}
	return apperr.Validation(fmt.Sprintf("unknown relation kind %s", rel.Kind))
}

func (e *Executor) prefetchToOne(ctx context.Context, rel *metadata.Relation, target *metadata.Model, insts []*Instance) error {
	var ids []any
	seen := make(map[string]bool)
	for _, inst := range insts {
		v := inst.Get(rel.Column)
		if v == nil {
			continue
		}
		if k := groupKey(v); !seen[k] {
			seen[k] = true
			ids = append(ids, v)
		}
	}
	if len(ids) == 0 {
		for _, inst := range insts {
			inst.setRelated(rel.Name, (*Instance)(nil))
		}
		return nil
	}

	d := e.Store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(target.FieldNames(), ", "), target.Table,
		d.InExpr(target.PrimaryKeyField(), pb, ids))
	rows, err := e.Store.QueryRows(ctx, e.querier(ctx), sqlStr, pb.Params()...)
	if err != nil {
		return apperr.Backend(err, "prefetch %s", rel.Name)
	}
	if d.NeedsBoolFix() {
		store.NormalizeBooleans(rows, boolFields(target))
	}

	byPK := make(map[string]*Instance, len(rows))
	for _, row := range rows {
		byPK[groupKey(row[target.PrimaryKeyField()])] = newInstance(target, row, true)
	}
	for _, inst := range insts {
		v := inst.Get(rel.Column)
		if v == nil {
			inst.setRelated(rel.Name, (*Instance)(nil))
			continue
		}
		inst.setRelated(rel.Name, byPK[groupKey(v)])
	}
	return nil
}

func (e *Executor) prefetchToMany(ctx context.Context, rel *metadata.Relation, target *metadata.Model, insts []*Instance) error {
	ids := ownerPKs(insts)
	d := e.Store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(target.FieldNames(), ", "), target.Table,
		d.InExpr(rel.TargetColumn, pb, ids),
		target.PrimaryKeyField())
	rows, err := e.Store.QueryRows(ctx, e.querier(ctx), sqlStr, pb.Params()...)
	if err != nil {
		return apperr.Backend(err, "prefetch %s", rel.Name)
	}
	if d.NeedsBoolFix() {
		store.NormalizeBooleans(rows, boolFields(target))
	}

	grouped := make(map[string][]*Instance)
	for _, row := range rows {
		k := groupKey(row[rel.TargetColumn])
		grouped[k] = append(grouped[k], newInstance(target, row, true))
	}
	attachGroups(insts, rel.Name, grouped)
	return nil
}

func (e *Executor) prefetchManyToMany(ctx context.Context, rel *metadata.Relation, target *metadata.Model, insts []*Instance) error {
	ids := ownerPKs(insts)
	d := e.Store.Dialect
	pb := d.NewParamBuilder()

	cols := make([]string, 0, len(target.Fields)+1)
	cols = append(cols, fmt.Sprintf("j.%s AS %s", rel.SourceJoinKey, linkSourceCol))
	for _, f := range target.FieldNames() {
		cols = append(cols, "t."+f)
	}
	sqlStr := fmt.Sprintf("SELECT %s FROM %s AS j JOIN %s AS t ON j.%s = t.%s WHERE %s ORDER BY t.%s",
		strings.Join(cols, ", "),
		rel.JoinTable, target.Table,
		rel.TargetJoinKey, target.PrimaryKeyField(),
		d.InExpr("j."+rel.SourceJoinKey, pb, ids),
		target.PrimaryKeyField())
	rows, err := e.Store.QueryRows(ctx, e.querier(ctx), sqlStr, pb.Params()...)
	if err != nil {
		return apperr.Backend(err, "prefetch %s", rel.Name)
	}
	if d.NeedsBoolFix() {
		store.NormalizeBooleans(rows, boolFields(target))
	}

	grouped := make(map[string][]*Instance)
	for _, row := range rows {
		k := groupKey(row[linkSourceCol])
		delete(row, linkSourceCol)
		grouped[k] = append(grouped[k], newInstance(target, row, true))
	}
	attachGroups(insts, rel.Name, grouped)
	return nil
}

func attachGroups(insts []*Instance, name string, grouped map[string][]*Instance) {
	for _, inst := range insts {
		children := grouped[groupKey(inst.PK())]
		if children == nil {
			children = []*Instance{}
		}
		inst.setRelated(name, children)
	}
}

func ownerPKs(insts []*Instance) []any {
	ids := make([]any, 0, len(insts))
	seen := make(map[string]bool, len(insts))
	for _, inst := range insts {
		if k := groupKey(inst.PK()); !seen[k] {
			seen[k] = true
			ids = append(ids, inst.PK())
		}
	}
	return ids
}

// groupKey normalizes key values for map grouping, so different integer
// widths of the same identifier (int64 from the driver, int from the
// caller) match.
func groupKey(v any) string {
	return fmt.Sprintf("%v", v)
}
