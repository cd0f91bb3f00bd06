package metadata

// Model describes one persistent entity type. Handles are created at
// registration time and never mutated afterwards; callers treat them as
// opaque references.
type Model struct {
	App        string     `json:"app"`
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	Fields     []Field    `json:"fields"`
	Relations  []Relation `json:"relations,omitempty"`
	Checks     []Check    `json:"checks,omitempty"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

// Check is a write-time validation rule evaluated against the record
// being created or saved. The expression sees the record as `record`.
type Check struct {
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`
	Field      string `json:"field,omitempty"`
}

// DottedName returns the process-wide lookup key, e.g. "library.Author".
func (m *Model) DottedName() string {
	return m.App + "." + m.Name
}

// PrimaryKeyField returns the primary key attribute name.
func (m *Model) PrimaryKeyField() string {
	return m.PrimaryKey.Field
}

// GetField returns a pointer to the field with the given name, or nil.
func (m *Model) GetField(name string) *Field {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the model has a scalar field with the given name.
func (m *Model) HasField(name string) bool {
	return m.GetField(name) != nil
}

// FieldNames returns all column names.
func (m *Model) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// GetRelation returns the relation with the given accessor name, or nil.
func (m *Model) GetRelation(name string) *Relation {
	for i := range m.Relations {
		if m.Relations[i].Name == name {
			return &m.Relations[i]
		}
	}
	return nil
}

// WritableFields returns fields that can be set by the caller.
// Excludes auto-generated PKs and auto-timestamp fields.
func (m *Model) WritableFields() []Field {
	var fields []Field
	for _, f := range m.Fields {
		if f.Name == m.PrimaryKey.Field && m.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}
