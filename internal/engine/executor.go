package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"admindata/internal/apperr"
	"admindata/internal/metadata"
	"admindata/internal/query"
	"admindata/internal/store"
)

// Executor runs queryset evaluations and record writes against one
// store. It is safe for concurrent use; per-operation state lives in
// the context (transactions) and in the instances it returns.
type Executor struct {
	Store    *store.Store
	Registry *metadata.Registry
}

func NewExecutor(s *store.Store, reg *metadata.Registry) *Executor {
	return &Executor{Store: s, Registry: reg}
}

// querier returns the context's transaction when inside an Atomic
// scope, the pooled connection otherwise.
func (e *Executor) querier(ctx context.Context) store.Querier {
	if tx := TxFrom(ctx); tx != nil {
		return tx
	}
	return e.Store.DB
}

// Atomic runs fn in a transaction scope on this executor's store.
func (e *Executor) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return Atomic(ctx, e.Store, fn)
}

// Create validates and inserts a new record, returning the persisted
// instance as stored (generated keys, defaults and auto timestamps
// filled in).
func (e *Executor) Create(ctx context.Context, m *metadata.Model, data map[string]any) (*Instance, error) {
	rec := make(map[string]any, len(data))
	for k, v := range data {
		if !m.HasField(k) {
			return nil, apperr.Validation(fmt.Sprintf("unknown field %s on %s", k, m.DottedName()))
		}
		rec[k] = v
	}

	applyDefaults(m, rec)
	if details := validateRecord(m, rec); len(details) > 0 {
		return nil, apperr.Validation("validation failed for "+m.DottedName(), details...)
	}
	if err := runChecks(m, rec); err != nil {
		return nil, err
	}

	d := e.Store.Dialect
	pk := m.PrimaryKey
	if _, ok := rec[pk.Field]; !ok && pk.Generated && pk.Type == "uuid" && d.UUIDDefault() == "" {
		// No server-side UUID generation on this backend.
		rec[pk.Field] = uuid.NewString()
	}

	ins := buildInsert(m, d, rec)
	row, err := e.Store.QueryRow(ctx, e.querier(ctx), ins.sql, ins.args...)
	if err != nil {
		return nil, e.writeError(err, m, "create")
	}
	if d.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, boolFields(m))
	}
	return newInstance(m, row, true), nil
}

// Get evaluates the queryset expecting exactly one row. Zero rows is
// NotFound, more than one is MultipleResults; the probe fetches at most
// two rows to decide.
func (e *Executor) Get(ctx context.Context, qs *query.Queryset) (*Instance, error) {
	if err := qs.Err(); err != nil {
		return nil, err
	}
	insts, err := e.All(ctx, qs.Limit(2))
	if err != nil {
		return nil, err
	}
	switch len(insts) {
	case 0:
		return nil, apperr.NotFound("no %s matches the query", qs.Model().DottedName())
	case 1:
		return insts[0], nil
	}
	return nil, apperr.MultipleResults("query for %s matched more than one row", qs.Model().DottedName())
}

// GetOrNone is Get with a nil result instead of NotFound.
func (e *Executor) GetOrNone(ctx context.Context, qs *query.Queryset) (*Instance, error) {
	inst, err := e.Get(ctx, qs)
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	return inst, err
}

// Save writes a persisted instance's modified fields back to the
// store. With explicit fields only those columns are written; otherwise
// the dirty set is. A clean instance with no explicit fields is a
// no-op. The instance is refreshed from the stored row.
func (e *Executor) Save(ctx context.Context, inst *Instance, fields ...string) error {
	m := inst.model
	if !inst.persisted {
		return apperr.Validation(fmt.Sprintf("%s instance is not persisted; use Create", m.DottedName()))
	}

	write := fields
	if len(write) > 0 {
		for _, f := range write {
			if !m.HasField(f) {
				return apperr.Validation(fmt.Sprintf("unknown field %s on %s", f, m.DottedName()))
			}
			if f == m.PrimaryKeyField() {
				return apperr.Validation(fmt.Sprintf("primary key %s is immutable", f))
			}
		}
	} else {
		write = inst.DirtyFields()
	}
	if len(write) == 0 {
		return nil
	}

	if err := runChecks(m, inst.data); err != nil {
		return err
	}

	upd := buildUpdate(m, e.Store.Dialect, write, inst.data, inst.PK())
	row, err := e.Store.QueryRow(ctx, e.querier(ctx), upd.sql, upd.args...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("%s %v no longer exists", m.DottedName(), inst.PK())
		}
		return e.writeError(err, m, "save")
	}
	if e.Store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, boolFields(m))
	}

	inst.clearDirty(fields)
	// Refresh from the stored row, keeping local edits that were not
	// part of this write.
	pending := make(map[string]any, len(inst.dirty))
	for f := range inst.dirty {
		pending[f] = inst.data[f]
	}
	inst.data = row
	for f, v := range pending {
		inst.data[f] = v
	}
	return nil
}

// Delete removes a persisted instance. Many-to-many link rows are
// cleared in the same transaction so no dangling references survive.
// Rows still referencing the record through a restrict relation make
// the whole operation fail with ConflictError.
func (e *Executor) Delete(ctx context.Context, inst *Instance) error {
	m := inst.model
	if !inst.persisted {
		return apperr.Validation(fmt.Sprintf("%s instance is not persisted", m.DottedName()))
	}
	d := e.Store.Dialect

	err := e.Atomic(ctx, func(ctx context.Context) error {
		for i := range m.Relations {
			rel := &m.Relations[i]
			if !rel.IsManyToMany() {
				continue
			}
			pb := d.NewParamBuilder()
			sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
				rel.JoinTable, rel.SourceJoinKey, pb.Add(inst.PK()))
			if _, err := e.Store.Exec(ctx, e.querier(ctx), sqlStr, pb.Params()...); err != nil {
				return e.writeError(err, m, "delete")
			}
		}

		del := buildDelete(m, d, inst.PK())
		n, err := e.Store.Exec(ctx, e.querier(ctx), del.sql, del.args...)
		if err != nil {
			return e.writeError(err, m, "delete")
		}
		if n == 0 {
			return apperr.NotFound("%s %v no longer exists", m.DottedName(), inst.PK())
		}
		return nil
	})
	if err != nil {
		return err
	}
	inst.persisted = false
	return nil
}

// FetchRelated loads the named relations onto the instance, one query
// per relation. Already-loaded relations are not refetched.
func (e *Executor) FetchRelated(ctx context.Context, inst *Instance, names ...string) error {
	for _, name := range names {
		if _, ok := inst.Related(name); ok {
			continue
		}
		rel := inst.model.GetRelation(name)
		if rel == nil {
			return apperr.Validation(fmt.Sprintf("unknown relation %s on %s", name, inst.model.DottedName()))
		}
		if err := e.prefetchOne(ctx, inst.model, rel, []*Instance{inst}); err != nil {
			return err
		}
	}
	return nil
}

// writeError classifies a storage failure from a write path.
func (e *Executor) writeError(err error, m *metadata.Model, op string) error {
	mapped := e.Store.MapError(err)
	switch {
	case errors.Is(mapped, store.ErrUniqueViolation):
		return apperr.Conflict("%s %s violates a unique constraint", m.DottedName(), op).Wrap(mapped)
	case errors.Is(mapped, store.ErrForeignKeyViolation):
		return apperr.Conflict("%s %s violates a referential constraint", m.DottedName(), op).Wrap(mapped)
	}
	return apperr.Backend(err, "%s %s failed", m.DottedName(), op)
}

// boolFields lists the model's boolean columns, for backends that
// return them as integers.
func boolFields(m *metadata.Model) []string {
	var fields []string
	for _, f := range m.Fields {
		if f.Type == "bool" || f.Type == "boolean" {
			fields = append(fields, f.Name)
		}
	}
	return fields
}
