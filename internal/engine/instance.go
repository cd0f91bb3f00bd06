package engine

import (
	"fmt"
	"sort"

	"admindata/internal/apperr"
	"admindata/internal/metadata"
)

// Instance is one record of a model: a field-value map plus dirty
// tracking for partial saves, per-row annotation values and a cache of
// loaded related objects. Instances returned by reads are persisted;
// Create returns a persisted instance reflecting the stored row.
type Instance struct {
	model       *metadata.Model
	data        map[string]any
	annotations map[string]any
	related     map[string]any
	dirty       map[string]struct{}
	persisted   bool
}

func newInstance(m *metadata.Model, data map[string]any, persisted bool) *Instance {
	return &Instance{
		model:     m,
		data:      data,
		persisted: persisted,
	}
}

// Model returns the model handle this instance belongs to.
func (i *Instance) Model() *metadata.Model { return i.model }

// PK returns the primary key value.
func (i *Instance) PK() any { return i.data[i.model.PrimaryKeyField()] }

// Persisted reports whether the instance is backed by a stored row.
func (i *Instance) Persisted() bool { return i.persisted }

// Get returns the value of a field, or nil if unset.
func (i *Instance) Get(name string) any { return i.data[name] }

// Set assigns a field value and marks it dirty so a subsequent Save
// writes it. The primary key cannot be reassigned.
func (i *Instance) Set(name string, value any) error {
	if !i.model.HasField(name) {
		return apperr.Validation(fmt.Sprintf("unknown field %s on %s", name, i.model.DottedName()))
	}
	if name == i.model.PrimaryKeyField() && i.persisted {
		return apperr.Validation(fmt.Sprintf("primary key %s is immutable", name))
	}
	i.data[name] = value
	if i.dirty == nil {
		i.dirty = make(map[string]struct{})
	}
	i.dirty[name] = struct{}{}
	return nil
}

// Data returns a copy of the field-value map.
func (i *Instance) Data() map[string]any {
	out := make(map[string]any, len(i.data))
	for k, v := range i.data {
		out[k] = v
	}
	return out
}

// DirtyFields returns the modified field names in sorted order.
func (i *Instance) DirtyFields() []string {
	if len(i.dirty) == 0 {
		return nil
	}
	fields := make([]string, 0, len(i.dirty))
	for f := range i.dirty {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Annotation returns a computed value attached by Annotate.
func (i *Instance) Annotation(name string) (any, bool) {
	v, ok := i.annotations[name]
	return v, ok
}

// Related returns a cached related object loaded by SelectRelated,
// PrefetchRelated or FetchRelated. To-one relations yield *Instance
// (possibly nil), to-many relations yield []*Instance.
func (i *Instance) Related(name string) (any, bool) {
	v, ok := i.related[name]
	return v, ok
}

func (i *Instance) setAnnotation(name string, v any) {
	if i.annotations == nil {
		i.annotations = make(map[string]any)
	}
	i.annotations[name] = v
}

func (i *Instance) setRelated(name string, v any) {
	if i.related == nil {
		i.related = make(map[string]any)
	}
	i.related[name] = v
}

// clearDirty drops dirty marks for the written fields; with no
// arguments it drops all of them.
func (i *Instance) clearDirty(fields []string) {
	if len(fields) == 0 {
		i.dirty = nil
		return
	}
	for _, f := range fields {
		delete(i.dirty, f)
	}
}
