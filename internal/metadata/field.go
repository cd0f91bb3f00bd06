package metadata

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Precision int      `json:"precision,omitempty"`
	Auto      string   `json:"auto,omitempty"` // "create" or "update"
}

// IsAuto returns true if the field is auto-managed by the engine.
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// Semantic kinds reported by Describe.
const (
	KindScalar     = "scalar"
	KindReference  = "reference"
	KindCollection = "collection"
)

// FieldInfo is the introspection view of one attribute: scalar columns,
// to-one references and related collections in a single flat list.
type FieldInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Type     string `json:"type,omitempty"`   // scalar storage type
	Target   string `json:"target,omitempty"` // dotted model name for relations
	Required bool   `json:"required,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}
