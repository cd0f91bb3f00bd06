package adapter

import (
	"context"

	"admindata/internal/engine"
	"admindata/internal/metadata"
	"admindata/internal/query"
	"admindata/internal/store"
)

// SQL adapts a relational store (PostgreSQL or SQLite) to the Adapter
// interface by binding a model registry to a queryset executor.
type SQL struct {
	name   string
	store  *store.Store
	models *metadata.Registry
	exec   *engine.Executor
}

var _ Adapter = (*SQL)(nil)

// NewSQL builds a SQL adapter over an open store.
func NewSQL(name string, s *store.Store, models *metadata.Registry) *SQL {
	return &SQL{
		name:   name,
		store:  s,
		models: models,
		exec:   engine.NewExecutor(s, models),
	}
}

// Store exposes the underlying store, for schema synchronization and
// instrumentation.
func (a *SQL) Store() *store.Store { return a.store }

func (a *SQL) Name() string               { return a.name }
func (a *SQL) Models() *metadata.Registry { return a.models }

func (a *SQL) Resolve(name string) (*metadata.Model, error) {
	return a.models.Resolve(name)
}

func (a *SQL) Describe(m *metadata.Model) []metadata.FieldInfo {
	return a.models.Describe(m)
}

func (a *SQL) Query(m *metadata.Model) *query.Queryset {
	return query.New(m)
}

func (a *SQL) All(ctx context.Context, qs *query.Queryset) ([]*engine.Instance, error) {
	return a.exec.All(ctx, qs)
}

func (a *SQL) Get(ctx context.Context, qs *query.Queryset) (*engine.Instance, error) {
	return a.exec.Get(ctx, qs)
}

func (a *SQL) GetOrNone(ctx context.Context, qs *query.Queryset) (*engine.Instance, error) {
	return a.exec.GetOrNone(ctx, qs)
}

func (a *SQL) Count(ctx context.Context, qs *query.Queryset) (int64, error) {
	return a.exec.Count(ctx, qs)
}

func (a *SQL) Exists(ctx context.Context, qs *query.Queryset) (bool, error) {
	return a.exec.Exists(ctx, qs)
}

func (a *SQL) Values(ctx context.Context, qs *query.Queryset, fields ...string) ([]map[string]any, error) {
	return a.exec.Values(ctx, qs, fields...)
}

func (a *SQL) ValuesList(ctx context.Context, qs *query.Queryset, fields ...string) ([][]any, error) {
	return a.exec.ValuesList(ctx, qs, fields...)
}

func (a *SQL) ValuesFlat(ctx context.Context, qs *query.Queryset, field string) ([]any, error) {
	return a.exec.ValuesFlat(ctx, qs, field)
}

func (a *SQL) Create(ctx context.Context, m *metadata.Model, data map[string]any) (*engine.Instance, error) {
	return a.exec.Create(ctx, m, data)
}

func (a *SQL) Save(ctx context.Context, inst *engine.Instance, fields ...string) error {
	return a.exec.Save(ctx, inst, fields...)
}

func (a *SQL) Delete(ctx context.Context, inst *engine.Instance) error {
	return a.exec.Delete(ctx, inst)
}

func (a *SQL) FetchRelated(ctx context.Context, inst *engine.Instance, names ...string) error {
	return a.exec.FetchRelated(ctx, inst, names...)
}

func (a *SQL) Related(inst *engine.Instance, name string) (*engine.RelatedSet, error) {
	return a.exec.Related(inst, name)
}

func (a *SQL) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return a.exec.Atomic(ctx, fn)
}

func (a *SQL) Close() error {
	a.store.Close()
	return nil
}
