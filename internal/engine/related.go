package engine

import (
	"context"
	"errors"
	"fmt"

	"admindata/internal/apperr"
	"admindata/internal/metadata"
	"admindata/internal/query"
	"admindata/internal/store"
)

// RelatedSet manages a to-many relation of one persisted instance:
// reads for one_to_many and many_to_many, link writes for many_to_many
// only (a one_to_many membership changes by saving the child's foreign
// key).
type RelatedSet struct {
	exec   *Executor
	owner  *Instance
	rel    *metadata.Relation
	target *metadata.Model
}

// Related returns the manager for a named to-many relation. To-one
// relations are loaded with FetchRelated or SelectRelated instead.
func (e *Executor) Related(inst *Instance, name string) (*RelatedSet, error) {
	m := inst.model
	rel := m.GetRelation(name)
	if rel == nil {
		return nil, apperr.Validation(fmt.Sprintf("unknown relation %s on %s", name, m.DottedName()))
	}
	if rel.IsToOne() {
		return nil, apperr.Validation(fmt.Sprintf("relation %s is to-one; use FetchRelated", name))
	}
	if !inst.persisted {
		return nil, apperr.Validation(fmt.Sprintf("%s instance must be persisted before accessing %s", m.DottedName(), name))
	}
	target, err := e.Registry.Resolve(rel.Target)
	if err != nil {
		return nil, err
	}
	return &RelatedSet{exec: e, owner: inst, rel: rel, target: target}, nil
}

// All returns the related instances ordered by their primary key.
func (r *RelatedSet) All(ctx context.Context) ([]*Instance, error) {
	if !r.rel.IsManyToMany() {
		qs := query.New(r.target).
			Filter(query.Eq(r.rel.TargetColumn, r.owner.PK())).
			OrderBy(r.target.PrimaryKeyField())
		return r.exec.All(ctx, qs)
	}

	e := r.exec
	if err := e.prefetchManyToMany(ctx, r.rel, r.target, []*Instance{r.owner}); err != nil {
		return nil, err
	}
	v, _ := r.owner.Related(r.rel.Name)
	return v.([]*Instance), nil
}

// Count sizes the related set without materializing it.
func (r *RelatedSet) Count(ctx context.Context) (int64, error) {
	e := r.exec
	d := e.Store.Dialect
	pb := d.NewParamBuilder()

	var sqlStr string
	if r.rel.IsManyToMany() {
		sqlStr = fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s = %s",
			r.rel.JoinTable, r.rel.SourceJoinKey, pb.Add(r.owner.PK()))
	} else {
		sqlStr = fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s = %s",
			r.target.Table, r.rel.TargetColumn, pb.Add(r.owner.PK()))
	}
	row, err := e.Store.QueryRow(ctx, e.querier(ctx), sqlStr, pb.Params()...)
	if err != nil {
		return 0, apperr.Backend(err, "count relation %s", r.rel.Name)
	}
	return toInt64(row["n"]), nil
}

// Add links the given persisted instances to the owner. Links that
// already exist are left alone, so Add is idempotent; the whole batch
// is written in one transaction.
func (r *RelatedSet) Add(ctx context.Context, others ...*Instance) error {
	if err := r.requireManyToMany("add to"); err != nil {
		return err
	}
	for _, other := range others {
		if other.model != r.target {
			return apperr.Validation(fmt.Sprintf("cannot add %s to relation %s of %s",
				other.model.DottedName(), r.rel.Name, r.owner.model.DottedName()))
		}
		if !other.persisted {
			return apperr.Validation(fmt.Sprintf("%s instance must be persisted before linking", r.target.DottedName()))
		}
	}
	if len(others) == 0 {
		return nil
	}

	e := r.exec
	d := e.Store.Dialect
	return e.Atomic(ctx, func(ctx context.Context) error {
		existing, err := r.linkedKeys(ctx)
		if err != nil {
			return err
		}
		for _, other := range others {
			if existing[groupKey(other.PK())] {
				continue
			}
			existing[groupKey(other.PK())] = true

			pb := d.NewParamBuilder()
			sqlStr := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
				r.rel.JoinTable, r.rel.SourceJoinKey, r.rel.TargetJoinKey,
				pb.Add(r.owner.PK()), pb.Add(other.PK()))
			if _, err := e.Store.Exec(ctx, e.querier(ctx), sqlStr, pb.Params()...); err != nil {
				// A concurrent writer may have created the link between
				// our read and this insert; that still means "linked".
				if errors.Is(e.Store.MapError(err), store.ErrUniqueViolation) {
					continue
				}
				return e.writeError(err, r.owner.model, "link "+r.rel.Name)
			}
		}
		return nil
	})
}

// Remove unlinks the given instances from the owner. Instances that
// were not linked are ignored.
func (r *RelatedSet) Remove(ctx context.Context, others ...*Instance) error {
	if err := r.requireManyToMany("remove from"); err != nil {
		return err
	}
	if len(others) == 0 {
		return nil
	}
	ids := make([]any, 0, len(others))
	for _, other := range others {
		if other.model != r.target {
			return apperr.Validation(fmt.Sprintf("cannot remove %s from relation %s of %s",
				other.model.DottedName(), r.rel.Name, r.owner.model.DottedName()))
		}
		ids = append(ids, other.PK())
	}

	e := r.exec
	d := e.Store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s",
		r.rel.JoinTable, r.rel.SourceJoinKey, pb.Add(r.owner.PK()),
		d.InExpr(r.rel.TargetJoinKey, pb, ids))
	if _, err := e.Store.Exec(ctx, e.querier(ctx), sqlStr, pb.Params()...); err != nil {
		return e.writeError(err, r.owner.model, "unlink "+r.rel.Name)
	}
	return nil
}

// Clear unlinks every related instance. Target rows are untouched.
func (r *RelatedSet) Clear(ctx context.Context) error {
	if err := r.requireManyToMany("clear"); err != nil {
		return err
	}
	e := r.exec
	pb := e.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		r.rel.JoinTable, r.rel.SourceJoinKey, pb.Add(r.owner.PK()))
	if _, err := e.Store.Exec(ctx, e.querier(ctx), sqlStr, pb.Params()...); err != nil {
		return e.writeError(err, r.owner.model, "clear "+r.rel.Name)
	}
	return nil
}

func (r *RelatedSet) requireManyToMany(op string) error {
	if r.rel.IsManyToMany() {
		return nil
	}
	return apperr.Validation(fmt.Sprintf(
		"cannot %s relation %s: membership in a one_to_many set changes by saving the child's foreign key", op, r.rel.Name))
}

func (r *RelatedSet) linkedKeys(ctx context.Context) (map[string]bool, error) {
	e := r.exec
	pb := e.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		r.rel.TargetJoinKey, r.rel.JoinTable, r.rel.SourceJoinKey, pb.Add(r.owner.PK()))
	rows, err := e.Store.QueryRows(ctx, e.querier(ctx), sqlStr, pb.Params()...)
	if err != nil {
		return nil, apperr.Backend(err, "read relation %s", r.rel.Name)
	}
	keys := make(map[string]bool, len(rows))
	for _, row := range rows {
		keys[groupKey(row[r.rel.TargetJoinKey])] = true
	}
	return keys, nil
}
