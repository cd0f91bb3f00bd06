package metadata

// Relation kinds.
const (
	ManyToOne  = "many_to_one"
	OneToMany  = "one_to_many"
	ManyToMany = "many_to_many"
)

// Referential delete policies for many_to_one relations.
const (
	OnDeleteRestrict = "restrict"
	OnDeleteCascade  = "cascade"
)

// Relation describes one related-object accessor on a model.
//
// many_to_one: Column is the FK column on the owning table.
// one_to_many: TargetColumn is the FK column on the target table.
// many_to_many: the link lives in JoinTable keyed by SourceJoinKey
// (owning pk) and TargetJoinKey (target pk).
type Relation struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Target        string `json:"target"` // dotted model name
	Column        string `json:"column,omitempty"`
	TargetColumn  string `json:"target_column,omitempty"`
	JoinTable     string `json:"join_table,omitempty"`
	SourceJoinKey string `json:"source_join_key,omitempty"`
	TargetJoinKey string `json:"target_join_key,omitempty"`
	OnDelete      string `json:"on_delete,omitempty"` // restrict (default) or cascade
}

func (r *Relation) IsManyToMany() bool {
	return r.Kind == ManyToMany
}

func (r *Relation) IsToOne() bool {
	return r.Kind == ManyToOne
}

// DeletePolicy returns the effective FK delete policy.
func (r *Relation) DeletePolicy() string {
	if r.OnDelete == OnDeleteCascade {
		return OnDeleteCascade
	}
	return OnDeleteRestrict
}
