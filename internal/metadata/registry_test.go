package metadata

import (
	"testing"

	"admindata/internal/apperr"
)

func authorModel() *Model {
	return &Model{
		App: "library", Name: "Author", Table: "authors",
		PrimaryKey: PrimaryKey{Field: "id", Type: "int", Generated: true},
		Fields: []Field{
			{Name: "id", Type: "int"},
			{Name: "name", Type: "string", Required: true},
		},
		Relations: []Relation{
			{Name: "books", Kind: OneToMany, Target: "library.Book", TargetColumn: "author_id"},
		},
	}
}

func TestRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(authorModel()); err != nil {
		t.Fatalf("register: %v", err)
	}

	m, err := reg.Resolve("library.Author")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Table != "authors" {
		t.Errorf("table = %s", m.Table)
	}

	// Resolution is idempotent: same handle every time.
	m2, err := reg.Resolve("library.Author")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if m != m2 {
		t.Error("expected the same handle on repeated resolution")
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(authorModel()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(authorModel()); !apperr.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestResolveUnknownModel(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Resolve("library.Nothing"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestRegisterValidatesModel(t *testing.T) {
	cases := []struct {
		name  string
		model *Model
	}{
		{"missing table", &Model{App: "a", Name: "B",
			PrimaryKey: PrimaryKey{Field: "id"}, Fields: []Field{{Name: "id", Type: "int"}}}},
		{"undeclared pk", &Model{App: "a", Name: "B", Table: "b",
			PrimaryKey: PrimaryKey{Field: "id"}, Fields: []Field{{Name: "x", Type: "int"}}}},
		{"m2o without fk column", &Model{App: "a", Name: "B", Table: "b",
			PrimaryKey: PrimaryKey{Field: "id"}, Fields: []Field{{Name: "id", Type: "int"}},
			Relations: []Relation{{Name: "r", Kind: ManyToOne, Target: "a.C", Column: "missing"}}}},
		{"m2m without join table", &Model{App: "a", Name: "B", Table: "b",
			PrimaryKey: PrimaryKey{Field: "id"}, Fields: []Field{{Name: "id", Type: "int"}},
			Relations: []Relation{{Name: "r", Kind: ManyToMany, Target: "a.C"}}}},
		{"unknown relation kind", &Model{App: "a", Name: "B", Table: "b",
			PrimaryKey: PrimaryKey{Field: "id"}, Fields: []Field{{Name: "id", Type: "int"}},
			Relations: []Relation{{Name: "r", Kind: "sideways", Target: "a.C"}}}},
	}
	for _, tc := range cases {
		reg := NewRegistry()
		if err := reg.Register(tc.model); !apperr.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestDescribe(t *testing.T) {
	reg := NewRegistry()
	m := authorModel()
	if err := reg.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}

	infos := reg.Describe(m)
	if len(infos) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(infos))
	}
	if infos[0].Name != "id" || infos[0].Kind != KindScalar {
		t.Errorf("first attribute = %+v", infos[0])
	}
	if infos[1].Required != true {
		t.Errorf("name must be reported required")
	}
	last := infos[2]
	if last.Name != "books" || last.Kind != KindCollection || last.Target != "library.Book" {
		t.Errorf("relation attribute = %+v", last)
	}
}

func TestDottedNameAndFieldLookups(t *testing.T) {
	m := authorModel()
	if m.DottedName() != "library.Author" {
		t.Errorf("dotted name = %s", m.DottedName())
	}
	if !m.HasField("name") || m.HasField("books") {
		t.Error("HasField must cover scalar fields only")
	}
	if m.GetRelation("books") == nil {
		t.Error("GetRelation failed")
	}
}
