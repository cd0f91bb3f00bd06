// Package adapter exposes the storage engine behind a flat, backend
// neutral interface and keeps named adapter instances in a process
// registry, so calling code binds to a name instead of a concrete
// backend.
package adapter

import (
	"context"

	"admindata/internal/engine"
	"admindata/internal/metadata"
	"admindata/internal/query"
)

// Adapter is the complete storage surface: model resolution and
// introspection, queryset evaluation, record writes, relation
// management and transaction scoping.
type Adapter interface {
	// Name identifies the adapter within a registry.
	Name() string

	// Models returns the model registry backing this adapter.
	Models() *metadata.Registry

	// Resolve looks up a model handle by dotted name ("app.Model").
	Resolve(name string) (*metadata.Model, error)

	// Describe lists the model's attributes: scalar fields, to-one
	// references and related collections.
	Describe(m *metadata.Model) []metadata.FieldInfo

	// Query starts an empty queryset over the model.
	Query(m *metadata.Model) *query.Queryset

	All(ctx context.Context, qs *query.Queryset) ([]*engine.Instance, error)
	Get(ctx context.Context, qs *query.Queryset) (*engine.Instance, error)
	GetOrNone(ctx context.Context, qs *query.Queryset) (*engine.Instance, error)
	Count(ctx context.Context, qs *query.Queryset) (int64, error)
	Exists(ctx context.Context, qs *query.Queryset) (bool, error)
	Values(ctx context.Context, qs *query.Queryset, fields ...string) ([]map[string]any, error)
	ValuesList(ctx context.Context, qs *query.Queryset, fields ...string) ([][]any, error)
	ValuesFlat(ctx context.Context, qs *query.Queryset, field string) ([]any, error)

	Create(ctx context.Context, m *metadata.Model, data map[string]any) (*engine.Instance, error)
	Save(ctx context.Context, inst *engine.Instance, fields ...string) error
	Delete(ctx context.Context, inst *engine.Instance) error

	// FetchRelated loads named relations onto an instance.
	FetchRelated(ctx context.Context, inst *engine.Instance, names ...string) error

	// Related returns the manager for a to-many relation.
	Related(inst *engine.Instance, name string) (*engine.RelatedSet, error)

	// Atomic runs fn in a transaction; nested calls join the outer scope.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases backend resources.
	Close() error
}
