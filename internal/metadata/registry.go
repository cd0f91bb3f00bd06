package metadata

import (
	"sort"
	"sync"

	"admindata/internal/apperr"
)

// Registry resolves dotted names ("app.Model") to model handles. It is
// written once at boot and read for the rest of the process lifetime;
// the lock exists so tests can stand up several registries side by side
// and reload safely.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register adds a model handle under its dotted name. Registering the
// same name twice is a conflict, never a silent overwrite.
func (r *Registry) Register(m *Model) error {
	if err := validateModel(m); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.DottedName()
	if _, exists := r.models[name]; exists {
		return apperr.Conflict("model %s is already registered", name)
	}
	r.models[name] = m
	return nil
}

// Resolve returns the cached handle for a dotted name. Idempotent and
// side-effect-free after registration.
func (r *Registry) Resolve(dotted string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[dotted]
	if !ok {
		return nil, apperr.NotFound("unknown model: %s", dotted)
	}
	return m, nil
}

// All returns the registered models sorted by dotted name.
func (r *Registry) All() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].DottedName() < models[j].DottedName()
	})
	return models
}

// Describe returns immutable per-attribute metadata for introspection.
// Scalar columns come first in declaration order, then relations.
func (r *Registry) Describe(m *Model) []FieldInfo {
	infos := make([]FieldInfo, 0, len(m.Fields)+len(m.Relations))
	for _, f := range m.Fields {
		infos = append(infos, FieldInfo{
			Name:     f.Name,
			Kind:     KindScalar,
			Type:     f.Type,
			Required: f.Required,
			Unique:   f.Unique,
			Nullable: f.Nullable,
		})
	}
	for _, rel := range m.Relations {
		kind := KindCollection
		if rel.IsToOne() {
			kind = KindReference
		}
		infos = append(infos, FieldInfo{
			Name:   rel.Name,
			Kind:   kind,
			Target: rel.Target,
		})
	}
	return infos
}

func validateModel(m *Model) error {
	var details []apperr.ErrorDetail

	if m.App == "" || m.Name == "" {
		details = append(details, apperr.ErrorDetail{
			Field: "name", Message: "model app and name are required",
		})
	}
	if m.Table == "" {
		details = append(details, apperr.ErrorDetail{
			Field: "table", Message: "model table is required",
		})
	}
	if m.GetField(m.PrimaryKey.Field) == nil {
		details = append(details, apperr.ErrorDetail{
			Field: "primary_key", Message: "primary key field is not declared in fields",
		})
	}
	for _, rel := range m.Relations {
		switch rel.Kind {
		case ManyToOne:
			if m.GetField(rel.Column) == nil {
				details = append(details, apperr.ErrorDetail{
					Field: rel.Name, Message: "many_to_one relation needs a declared FK column",
				})
			}
		case OneToMany:
			if rel.TargetColumn == "" {
				details = append(details, apperr.ErrorDetail{
					Field: rel.Name, Message: "one_to_many relation needs target_column",
				})
			}
		case ManyToMany:
			if rel.JoinTable == "" || rel.SourceJoinKey == "" || rel.TargetJoinKey == "" {
				details = append(details, apperr.ErrorDetail{
					Field: rel.Name, Message: "many_to_many relation needs join_table and join keys",
				})
			}
		default:
			details = append(details, apperr.ErrorDetail{
				Field: rel.Name, Message: "unknown relation kind: " + rel.Kind,
			})
		}
	}

	if len(details) > 0 {
		return apperr.Validation("invalid model definition", details...)
	}
	return nil
}
