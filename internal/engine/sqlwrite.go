package engine

import (
	"fmt"
	"strings"

	"admindata/internal/metadata"
	"admindata/internal/store"
)

type writeQuery struct {
	sql  string
	args []any
}

// buildInsert renders INSERT ... RETURNING over the record. Columns
// follow model declaration order; auto timestamp fields get the
// dialect's now expression, absent columns fall back to their DDL
// defaults.
func buildInsert(m *metadata.Model, d store.Dialect, rec map[string]any) writeQuery {
	pb := d.NewParamBuilder()
	var cols, vals []string
	for _, f := range m.Fields {
		if f.IsAuto() {
			cols = append(cols, f.Name)
			vals = append(vals, d.NowExpr())
			continue
		}
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		cols = append(cols, f.Name)
		vals = append(vals, pb.Add(v))
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		m.Table,
		strings.Join(cols, ", "),
		strings.Join(vals, ", "),
		strings.Join(m.FieldNames(), ", "))
	return writeQuery{sql: sqlStr, args: pb.Params()}
}

// buildUpdate renders an UPDATE of the given fields for one row,
// refreshing auto-update timestamps and returning the stored row.
func buildUpdate(m *metadata.Model, d store.Dialect, fields []string, rec map[string]any, pk any) writeQuery {
	pb := d.NewParamBuilder()
	sets := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		sets = append(sets, f+" = "+pb.Add(rec[f]))
	}
	for _, f := range m.Fields {
		if f.Auto == "update" {
			sets = append(sets, f.Name+" = "+d.NowExpr())
		}
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s RETURNING %s",
		m.Table,
		strings.Join(sets, ", "),
		m.PrimaryKeyField(), pb.Add(pk),
		strings.Join(m.FieldNames(), ", "))
	return writeQuery{sql: sqlStr, args: pb.Params()}
}

func buildDelete(m *metadata.Model, d store.Dialect, pk any) writeQuery {
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		m.Table, m.PrimaryKeyField(), pb.Add(pk))
	return writeQuery{sql: sqlStr, args: pb.Params()}
}
