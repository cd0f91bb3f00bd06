package engine

import (
	"fmt"
	"strings"

	"admindata/internal/apperr"
	"admindata/internal/metadata"
	"admindata/internal/query"
	"admindata/internal/store"
)

// joinedRelation is a to-one relation pulled into the base SELECT via
// LEFT JOIN. Target columns are aliased "<name>__<column>" so hydration
// can peel them back out of the flat row.
type joinedRelation struct {
	rel    *metadata.Relation
	target *metadata.Model
	alias  string
}

type selectQuery struct {
	sql    string
	args   []any
	joined []joinedRelation
}

func buildSelect(reg *metadata.Registry, d store.Dialect, qs *query.Queryset) (*selectQuery, error) {
	m := qs.Model()
	pb := d.NewParamBuilder()

	var joins []joinedRelation
	for _, name := range qs.SelectedRelations() {
		rel := m.GetRelation(name)
		target, err := reg.Resolve(rel.Target)
		if err != nil {
			return nil, err
		}
		joins = append(joins, joinedRelation{rel: rel, target: target, alias: name})
	}

	qualify := len(joins) > 0
	col := func(name string) string {
		if qualify {
			return m.Table + "." + name
		}
		return name
	}

	baseCols := qs.OnlyFields()
	if len(baseCols) == 0 {
		baseCols = m.FieldNames()
	}
	selectCols := make([]string, 0, len(baseCols))
	for _, c := range baseCols {
		selectCols = append(selectCols, col(c))
	}
	for _, j := range joins {
		for _, tc := range j.target.FieldNames() {
			selectCols = append(selectCols, fmt.Sprintf("%s.%s AS %s__%s", j.alias, tc, j.alias, tc))
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if qs.IsDistinct() && len(qs.DistinctFields()) == 0 {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(selectCols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(m.Table)
	for _, j := range joins {
		fmt.Fprintf(&sb, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			j.target.Table, j.alias, m.Table, j.rel.Column, j.alias, j.target.PrimaryKeyField())
	}

	if where := qs.Where(); where != nil {
		clause, err := renderExpr(where, d, pb, col)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(clause)
	}

	if order := orderClause(m, qs.Orders(), col); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}

	writeWindow(&sb, d, pb, qs.LimitValue(), qs.OffsetValue())

	return &selectQuery{sql: sb.String(), args: pb.Params(), joined: joins}, nil
}

func buildCount(d store.Dialect, qs *query.Queryset) (string, []any, error) {
	m := qs.Model()
	pb := d.NewParamBuilder()
	ident := func(name string) string { return name }

	var where string
	if e := qs.Where(); e != nil {
		clause, err := renderExpr(e, d, pb, ident)
		if err != nil {
			return "", nil, err
		}
		where = " WHERE " + clause
	}

	// Count ignores the limit/offset window: it sizes the whole match
	// set, not the page.
	if qs.IsDistinct() && len(qs.DistinctFields()) > 0 {
		inner := fmt.Sprintf("SELECT DISTINCT %s FROM %s%s",
			strings.Join(qs.DistinctFields(), ", "), m.Table, where)
		return fmt.Sprintf("SELECT COUNT(*) AS n FROM (%s) AS distinct_rows", inner), pb.Params(), nil
	}
	return fmt.Sprintf("SELECT COUNT(*) AS n FROM %s%s", m.Table, where), pb.Params(), nil
}

func buildExists(d store.Dialect, qs *query.Queryset) (string, []any, error) {
	m := qs.Model()
	pb := d.NewParamBuilder()
	ident := func(name string) string { return name }

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT 1 FROM %s", m.Table)
	if e := qs.Where(); e != nil {
		clause, err := renderExpr(e, d, pb, ident)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(clause)
	}
	sb.WriteString(" LIMIT 1")
	return sb.String(), pb.Params(), nil
}

// buildValuesSelect builds the SQL behind Values/ValuesList. If the
// projection includes annotation names the full row is fetched so the
// expressions see every field; the projection is applied in memory.
func buildValuesSelect(d store.Dialect, qs *query.Queryset, dbFields []string, fetchAll bool) (string, []any, error) {
	m := qs.Model()
	pb := d.NewParamBuilder()
	ident := func(name string) string { return name }

	cols := dbFields
	if fetchAll {
		cols = m.FieldNames()
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if qs.IsDistinct() && !fetchAll {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(m.Table)

	if e := qs.Where(); e != nil {
		clause, err := renderExpr(e, d, pb, ident)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(clause)
	}
	if order := orderClause(m, qs.Orders(), ident); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	writeWindow(&sb, d, pb, qs.LimitValue(), qs.OffsetValue())
	return sb.String(), pb.Params(), nil
}

// orderClause renders ordering with a primary-key tie-break appended so
// paging over equal sort keys stays deterministic.
func orderClause(m *metadata.Model, orders []query.Order, col func(string) string) string {
	if len(orders) == 0 {
		return ""
	}
	parts := make([]string, 0, len(orders)+1)
	pkSeen := false
	pk := m.PrimaryKeyField()
	for _, o := range orders {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, col(o.Field)+" "+dir)
		if o.Field == pk {
			pkSeen = true
		}
	}
	if !pkSeen {
		parts = append(parts, col(pk)+" ASC")
	}
	return strings.Join(parts, ", ")
}

func writeWindow(sb *strings.Builder, d store.Dialect, pb store.ParamBuilder, limit, offset int) {
	if limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(pb.Add(limit))
	}
	if offset >= 0 {
		if limit < 0 && d.Name() == "sqlite" {
			// SQLite refuses OFFSET without LIMIT.
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ")
		sb.WriteString(pb.Add(offset))
	}
}

// renderExpr turns a predicate tree into a parameterized SQL clause.
// Field names were validated when the queryset was built.
func renderExpr(e query.Expr, d store.Dialect, pb store.ParamBuilder, col func(string) string) (string, error) {
	switch n := e.(type) {
	case query.Cond:
		return renderCond(n, d, pb, col)
	case query.Group:
		parts := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			s, err := renderExpr(c, d, pb, col)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, " "+n.Op+" ") + ")", nil
	case query.Negation:
		s, err := renderExpr(n.Child, d, pb, col)
		if err != nil {
			return "", err
		}
		return "NOT (" + s + ")", nil
	}
	return "", apperr.Validation(fmt.Sprintf("unsupported expression node %T", e))
}

func renderCond(c query.Cond, d store.Dialect, pb store.ParamBuilder, col func(string) string) (string, error) {
	field := col(c.Field)
	switch c.Op {
	case query.OpEq:
		if c.Value == nil {
			return field + " IS NULL", nil
		}
		return field + " = " + pb.Add(c.Value), nil
	case query.OpNe:
		if c.Value == nil {
			return field + " IS NOT NULL", nil
		}
		return field + " != " + pb.Add(c.Value), nil
	case query.OpLt:
		return field + " < " + pb.Add(c.Value), nil
	case query.OpLte:
		return field + " <= " + pb.Add(c.Value), nil
	case query.OpGt:
		return field + " > " + pb.Add(c.Value), nil
	case query.OpGte:
		return field + " >= " + pb.Add(c.Value), nil
	case query.OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			return "", apperr.Validation(fmt.Sprintf("in filter on %s requires a value list", c.Field))
		}
		return d.InExpr(field, pb, values), nil
	case query.OpIsNull:
		if null, _ := c.Value.(bool); null {
			return field + " IS NULL", nil
		}
		return field + " IS NOT NULL", nil
	case query.OpContains:
		s, ok := c.Value.(string)
		if !ok {
			return "", apperr.Validation(fmt.Sprintf("contains filter on %s requires a string", c.Field))
		}
		return d.LikeExpr(field, pb, s), nil
	}
	return "", apperr.Validation(fmt.Sprintf("unknown operator %s on %s", c.Op, c.Field))
}
