package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"admindata/internal/apperr"
	"admindata/internal/query"
)

func TestCreateReturnsStoredRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	book := env.create(t, "library.Book", map[string]any{
		"title":     "The Go Programming Language",
		"pages":     380,
		"author_id": env.create(t, "library.Author", map[string]any{"name": "Donovan"}).PK(),
	})

	if book.PK() == nil {
		t.Fatal("expected generated primary key")
	}
	if !book.Persisted() {
		t.Error("expected created instance to be persisted")
	}
	if got := book.Get("title").(string); got != "The Go Programming Language" {
		t.Errorf("title = %q", got)
	}
	if _, ok := book.Get("created_at").(time.Time); !ok {
		t.Errorf("expected auto create timestamp, got %T", book.Get("created_at"))
	}

	// The stored row must be readable through a fresh query.
	qs := query.New(env.model(t, "library.Book")).Filter(query.Eq("id", book.PK()))
	if _, err := env.exec.Get(ctx, qs); err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)

	author := env.create(t, "library.Author", map[string]any{"name": "Pike"})
	if got, ok := author.Get("active").(bool); !ok || !got {
		t.Errorf("expected active default true, got %v", author.Get("active"))
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.model(t, "library.Author")

	_, err := env.exec.Create(ctx, m, map[string]any{"email": "a@b.c"})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}

	_, err = env.exec.Create(ctx, m, map[string]any{"name": "X", "nickname": "x"})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
}

func TestCreateEnum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.create(t, "library.Author", map[string]any{"name": "Cox"})

	_, err := env.exec.Create(ctx, env.model(t, "library.Book"), map[string]any{
		"title": "B", "format": "vinyl", "author_id": author.PK(),
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected enum validation error, got %v", err)
	}
}

func TestCreateCheckRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.create(t, "library.Author", map[string]any{"name": "Cox"})

	_, err := env.exec.Create(ctx, env.model(t, "library.Book"), map[string]any{
		"title": "B", "pages": -10, "author_id": author.PK(),
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected check rule failure, got %v", err)
	}
}

func TestCreateGeneratesUUIDKey(t *testing.T) {
	env := newTestEnv(t)

	note := env.create(t, "library.Note", map[string]any{"body": "remember"})
	id, ok := note.PK().(string)
	if !ok || len(id) != 36 {
		t.Fatalf("expected client-generated uuid key, got %v", note.PK())
	}
}

func TestCreateUniqueConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.model(t, "library.Author")

	env.create(t, "library.Author", map[string]any{"name": "A", "email": "dup@example.com"})
	_, err := env.exec.Create(ctx, m, map[string]any{"name": "B", "email": "dup@example.com"})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}
}

func TestGetSingleRowSemantics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, books := env.createAuthorWithBooks(t, "Kernighan", 2)
	m := env.model(t, "library.Book")

	inst, err := env.exec.Get(ctx, query.New(m).Filter(query.Eq("id", books[0].PK())))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if inst.Get("title") != books[0].Get("title") {
		t.Errorf("got wrong row: %v", inst.Get("title"))
	}

	_, err = env.exec.Get(ctx, query.New(m).Filter(query.Eq("id", -1)))
	if !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound for zero matches, got %v", err)
	}

	_, err = env.exec.Get(ctx, query.New(m))
	if !apperr.IsMultipleResults(err) {
		t.Errorf("expected MultipleResults for two matches, got %v", err)
	}
}

func TestGetOrNone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.model(t, "library.Author")

	inst, err := env.exec.GetOrNone(ctx, query.New(m).Filter(query.Eq("id", -1)))
	if err != nil {
		t.Fatalf("expected nil error for zero matches, got %v", err)
	}
	if inst != nil {
		t.Errorf("expected nil instance, got %v", inst)
	}

	env.create(t, "library.Author", map[string]any{"name": "One"})
	env.create(t, "library.Author", map[string]any{"name": "Two"})
	_, err = env.exec.GetOrNone(ctx, query.New(m))
	if !apperr.IsMultipleResults(err) {
		t.Errorf("MultipleResults must survive GetOrNone, got %v", err)
	}
}

func TestSaveWritesOnlyDirtyFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, books := env.createAuthorWithBooks(t, "Thompson", 1)
	book := books[0]

	if err := book.Set("title", "Renamed"); err != nil {
		t.Fatalf("set: %v", err)
	}

	env.recorder.Reset()
	if err := env.exec.Save(ctx, book); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries := env.recorder.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(entries))
	}
	if !strings.Contains(entries[0].SQL, "title = ") {
		t.Errorf("update must include the dirty column: %s", entries[0].SQL)
	}
	if strings.Contains(entries[0].SQL, "pages = ") {
		t.Errorf("update must not include clean columns: %s", entries[0].SQL)
	}
	if len(book.DirtyFields()) != 0 {
		t.Errorf("dirty set must be cleared after save: %v", book.DirtyFields())
	}

	reread, err := env.exec.Get(ctx, query.New(env.model(t, "library.Book")).Filter(query.Eq("id", book.PK())))
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if got := reread.Get("title").(string); got != "Renamed" {
		t.Errorf("title not persisted: %q", got)
	}
}

func TestSaveExplicitFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, books := env.createAuthorWithBooks(t, "Ritchie", 1)
	book := books[0]

	book.Set("title", "Kept In Memory Only")
	book.Set("pages", 42)

	if err := env.exec.Save(ctx, book, "pages"); err != nil {
		t.Fatalf("save: %v", err)
	}

	reread, err := env.exec.Get(ctx, query.New(env.model(t, "library.Book")).Filter(query.Eq("id", book.PK())))
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if got := toInt(t, reread.Get("pages")); got != 42 {
		t.Errorf("pages = %d, want 42", got)
	}
	if got := reread.Get("title").(string); got == "Kept In Memory Only" {
		t.Error("title must not be written when only pages is requested")
	}
	// The local edit survives for a later save.
	if len(book.DirtyFields()) != 1 || book.DirtyFields()[0] != "title" {
		t.Errorf("remaining dirty fields = %v, want [title]", book.DirtyFields())
	}
}

func TestSaveCleanInstanceIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, books := env.createAuthorWithBooks(t, "Griesemer", 1)

	env.recorder.Reset()
	if err := env.exec.Save(ctx, books[0]); err != nil {
		t.Fatalf("save: %v", err)
	}
	if n := env.recorder.Count(); n != 0 {
		t.Errorf("clean save must not touch the database, got %d statements", n)
	}
}

func TestSavePrimaryKeyImmutable(t *testing.T) {
	env := newTestEnv(t)
	_, books := env.createAuthorWithBooks(t, "Lamport", 1)

	if err := books[0].Set("id", 999); !apperr.IsValidation(err) {
		t.Errorf("expected validation error reassigning pk, got %v", err)
	}
	if err := env.exec.Save(context.Background(), books[0], "id"); !apperr.IsValidation(err) {
		t.Errorf("expected validation error saving pk, got %v", err)
	}
}

func TestDeleteRemovesRowAndLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, books := env.createAuthorWithBooks(t, "Hoare", 1)
	book := books[0]
	tag := env.create(t, "library.Tag", map[string]any{"name": "classic"})

	set, err := env.exec.Related(book, "tags")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if err := set.Add(ctx, tag); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := env.exec.Delete(ctx, book); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if book.Persisted() {
		t.Error("deleted instance must be detached")
	}

	// The tag survives; only the link rows are gone.
	tagSet, err := env.exec.Related(tag, "books")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	n, err := tagSet.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 links after delete, got %d", n)
	}
	if _, err := env.exec.Get(ctx, query.New(env.model(t, "library.Tag")).Filter(query.Eq("id", tag.PK()))); err != nil {
		t.Errorf("tag row must survive link cleanup: %v", err)
	}
}

func TestDeleteRestrictedByReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author, _ := env.createAuthorWithBooks(t, "Dijkstra", 1)

	// Books reference the author with the default restrict policy.
	err := env.exec.Delete(ctx, author)
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict deleting referenced author, got %v", err)
	}
	if !author.Persisted() {
		t.Error("failed delete must leave the instance persisted")
	}
}

func TestDeleteCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, books := env.createAuthorWithBooks(t, "Liskov", 1)
	book := books[0]
	env.create(t, "library.Review", map[string]any{"body": "great", "book_id": book.PK()})

	if err := env.exec.Delete(ctx, book); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, err := env.exec.Count(ctx, query.New(env.model(t, "library.Review")))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected reviews cascade-deleted, got %d", n)
	}
}

func TestDeleteMissingRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.create(t, "library.Author", map[string]any{"name": "Gone"})

	other, err := env.exec.Get(ctx, query.New(env.model(t, "library.Author")).Filter(query.Eq("id", author.PK())))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := env.exec.Delete(ctx, author); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.exec.Delete(ctx, other); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound deleting an already-deleted row, got %v", err)
	}
}

func toInt(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	t.Fatalf("expected integer, got %T", v)
	return 0
}
