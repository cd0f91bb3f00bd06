package engine_test

import (
	"context"
	"testing"

	"admindata/internal/engine"
	"admindata/internal/instrument"
	"admindata/internal/metadata"
	"admindata/internal/store"
)

// Test models: a small library domain covering every relation kind and
// delete policy.
//
//	Author 1-* Book (restrict), Book *-* Tag, Book 1-* Review (cascade)
func testModels(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()

	models := []*metadata.Model{
		{
			App: "library", Name: "Author", Table: "authors",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "name", Type: "string", Required: true},
				{Name: "email", Type: "string", Unique: true, Nullable: true},
				{Name: "active", Type: "boolean", Default: true},
			},
			Relations: []metadata.Relation{
				{Name: "books", Kind: metadata.OneToMany, Target: "library.Book", TargetColumn: "author_id"},
			},
		},
		{
			App: "library", Name: "Book", Table: "books",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "title", Type: "string", Required: true},
				{Name: "pages", Type: "int", Nullable: true},
				{Name: "format", Type: "string", Nullable: true, Enum: []string{"paper", "ebook"}},
				{Name: "author_id", Type: "int", Required: true},
				{Name: "created_at", Type: "timestamp", Auto: "create"},
				{Name: "updated_at", Type: "timestamp", Auto: "update"},
			},
			Relations: []metadata.Relation{
				{Name: "author", Kind: metadata.ManyToOne, Target: "library.Author", Column: "author_id"},
				{Name: "tags", Kind: metadata.ManyToMany, Target: "library.Tag",
					JoinTable: "book_tags", SourceJoinKey: "book_id", TargetJoinKey: "tag_id"},
				{Name: "reviews", Kind: metadata.OneToMany, Target: "library.Review", TargetColumn: "book_id"},
			},
			Checks: []metadata.Check{
				{Expression: "record.pages == nil or record.pages >= 0", Field: "pages", Message: "pages must be non-negative"},
			},
		},
		{
			App: "library", Name: "Tag", Table: "tags",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "name", Type: "string", Required: true, Unique: true},
			},
			Relations: []metadata.Relation{
				{Name: "books", Kind: metadata.ManyToMany, Target: "library.Book",
					JoinTable: "book_tags", SourceJoinKey: "tag_id", TargetJoinKey: "book_id"},
			},
		},
		{
			App: "library", Name: "Review", Table: "reviews",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "body", Type: "string", Required: true},
				{Name: "book_id", Type: "int", Required: true},
			},
			Relations: []metadata.Relation{
				{Name: "book", Kind: metadata.ManyToOne, Target: "library.Book", Column: "book_id",
					OnDelete: metadata.OnDeleteCascade},
			},
		},
		{
			App: "library", Name: "Note", Table: "notes",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "uuid"},
				{Name: "body", Type: "string", Required: true},
			},
		},
	}
	for _, m := range models {
		if err := reg.Register(m); err != nil {
			t.Fatalf("register %s: %v", m.Name, err)
		}
	}
	return reg
}

type testEnv struct {
	exec     *engine.Executor
	reg      *metadata.Registry
	recorder *instrument.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)

	reg := testModels(t)
	if err := store.NewSchema(s).Sync(ctx, reg); err != nil {
		t.Fatalf("sync schema: %v", err)
	}

	recorder := instrument.NewMemory()
	s.Recorder = recorder

	return &testEnv{
		exec:     engine.NewExecutor(s, reg),
		reg:      reg,
		recorder: recorder,
	}
}

func (env *testEnv) model(t *testing.T, dotted string) *metadata.Model {
	t.Helper()
	m, err := env.reg.Resolve(dotted)
	if err != nil {
		t.Fatalf("resolve %s: %v", dotted, err)
	}
	return m
}

func (env *testEnv) create(t *testing.T, dotted string, data map[string]any) *engine.Instance {
	t.Helper()
	inst, err := env.exec.Create(context.Background(), env.model(t, dotted), data)
	if err != nil {
		t.Fatalf("create %s: %v", dotted, err)
	}
	return inst
}

// createAuthorWithBooks seeds one author and n books, returning them.
func (env *testEnv) createAuthorWithBooks(t *testing.T, name string, n int) (*engine.Instance, []*engine.Instance) {
	t.Helper()
	author := env.create(t, "library.Author", map[string]any{"name": name})
	books := make([]*engine.Instance, n)
	for i := range books {
		books[i] = env.create(t, "library.Book", map[string]any{
			"title":     name + " book",
			"pages":     100 + i,
			"author_id": author.PK(),
		})
	}
	return author, books
}
