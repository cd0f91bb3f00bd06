package engine_test

import (
	"context"
	"testing"

	"admindata/internal/query"
)

func TestFilterChainEqualsCombinedAnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author, _ := env.createAuthorWithBooks(t, "Meyer", 3)
	env.createAuthorWithBooks(t, "Stroustrup", 2)
	m := env.model(t, "library.Book")

	chained := query.New(m).
		Filter(query.Eq("author_id", author.PK())).
		Filter(query.Gte("pages", 101))
	combined := query.New(m).
		Filter(query.And(query.Eq("author_id", author.PK()), query.Gte("pages", 101)))

	a, err := env.exec.All(ctx, chained)
	if err != nil {
		t.Fatalf("chained: %v", err)
	}
	b, err := env.exec.All(ctx, combined)
	if err != nil {
		t.Fatalf("combined: %v", err)
	}
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("expected 2 rows from both forms, got %d and %d", len(a), len(b))
	}
}

func TestFilterOperators(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "library.Author", map[string]any{"name": "Grace Hopper", "email": "grace@navy.mil"})
	env.create(t, "library.Author", map[string]any{"name": "Ada Lovelace"})
	m := env.model(t, "library.Author")

	cases := []struct {
		name string
		expr query.Expr
		want int
	}{
		{"contains", query.Contains("name", "race"), 1},
		{"in", query.In("name", "Grace Hopper", "Ada Lovelace", "Nobody"), 2},
		{"in empty", query.In("name"), 0},
		{"isnull", query.IsNull("email", true), 1},
		{"not null", query.IsNull("email", false), 1},
		{"ne", query.Ne("name", "Ada Lovelace"), 1},
		{"or", query.Or(query.Eq("name", "Grace Hopper"), query.Eq("name", "Ada Lovelace")), 2},
		{"not", query.Not(query.Contains("name", "Grace")), 1},
	}
	for _, tc := range cases {
		insts, err := env.exec.All(ctx, query.New(m).Filter(tc.expr))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(insts) != tc.want {
			t.Errorf("%s: got %d rows, want %d", tc.name, len(insts), tc.want)
		}
	}
}

func TestOrderByReplacesPreviousOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "library.Author", map[string]any{"name": "Charlie"})
	env.create(t, "library.Author", map[string]any{"name": "Alice"})
	env.create(t, "library.Author", map[string]any{"name": "Bob"})
	m := env.model(t, "library.Author")

	qs := query.New(m).OrderBy("-name").OrderBy("name")
	insts, err := env.exec.All(ctx, qs)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	got := make([]string, len(insts))
	for i, inst := range insts {
		got[i] = inst.Get("name").(string)
	}
	want := []string{"Alice", "Bob", "Charlie"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v (second OrderBy must replace the first)", got, want)
		}
	}
}

func TestLimitOffsetWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createAuthorWithBooks(t, "Knuth", 5)
	m := env.model(t, "library.Book")

	insts, err := env.exec.All(ctx, query.New(m).OrderBy("pages").Offset(1).Limit(2))
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(insts) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(insts))
	}
	if got := toInt(t, insts[0].Get("pages")); got != 101 {
		t.Errorf("window starts at pages=101, got %d", got)
	}

	// The most recent limit wins.
	insts, err = env.exec.All(ctx, query.New(m).Limit(1).Limit(4))
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(insts) != 4 {
		t.Errorf("expected 4 rows, got %d", len(insts))
	}
}

func TestCountIgnoresWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createAuthorWithBooks(t, "Backus", 5)
	m := env.model(t, "library.Book")

	n, err := env.exec.Count(ctx, query.New(m).Limit(2).Offset(1))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Errorf("count = %d, want 5 (window must not apply)", n)
	}
}

func TestExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.model(t, "library.Author")

	ok, err := env.exec.Exists(ctx, query.New(m))
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Error("empty table must not report existing rows")
	}

	env.create(t, "library.Author", map[string]any{"name": "Anyone"})
	ok, err = env.exec.Exists(ctx, query.New(m))
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Error("expected exists after insert")
	}
}

func TestOnlyRetainsPrimaryKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "library.Author", map[string]any{"name": "Naur", "email": "p@n.dk"})
	m := env.model(t, "library.Author")

	insts, err := env.exec.All(ctx, query.New(m).Only("name"))
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	inst := insts[0]
	if inst.PK() == nil {
		t.Error("pk must always be selected")
	}
	if inst.Get("name") == nil {
		t.Error("requested field missing")
	}
	if inst.Get("email") != nil {
		t.Error("unrequested field must not be loaded")
	}
}

func TestValuesProjection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "library.Author", map[string]any{"name": "Wirth", "email": "nw@ethz.ch"})
	m := env.model(t, "library.Author")

	rows, err := env.exec.Values(ctx, query.New(m), "name", "email")
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if len(rows[0]) != 2 {
		t.Errorf("projection must contain exactly the requested fields: %v", rows[0])
	}
	if rows[0]["name"] != "Wirth" {
		t.Errorf("name = %v", rows[0]["name"])
	}
}

func TestValuesListTupleOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "library.Author", map[string]any{"name": "Kay", "email": "alan@parc.com"})
	m := env.model(t, "library.Author")

	tuples, err := env.exec.ValuesList(ctx, query.New(m), "email", "name")
	if err != nil {
		t.Fatalf("values list: %v", err)
	}
	if len(tuples) != 1 || len(tuples[0]) != 2 {
		t.Fatalf("unexpected shape: %v", tuples)
	}
	if tuples[0][0] != "alan@parc.com" || tuples[0][1] != "Kay" {
		t.Errorf("tuple order must follow the requested fields: %v", tuples[0])
	}
}

func TestValuesFlatReturnsBareValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "library.Author", map[string]any{"name": "Hoare"})
	env.create(t, "library.Author", map[string]any{"name": "Liskov"})
	m := env.model(t, "library.Author")

	names, err := env.exec.ValuesFlat(ctx, query.New(m).OrderBy("name"), "name")
	if err != nil {
		t.Fatalf("values flat: %v", err)
	}
	if len(names) != 2 || names[0] != "Hoare" || names[1] != "Liskov" {
		t.Errorf("unexpected flat values: %v", names)
	}
}

func TestDistinctValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createAuthorWithBooks(t, "Repeat", 3) // same title three times
	m := env.model(t, "library.Book")

	rows, err := env.exec.Values(ctx, query.New(m).Distinct("title"))
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 distinct title, got %d", len(rows))
	}
}

func TestAnnotateComputedValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createAuthorWithBooks(t, "Torvalds", 1)
	m := env.model(t, "library.Book")

	qs := query.New(m).Annotate("long_read", "record.pages != nil && record.pages > 50")
	insts, err := env.exec.All(ctx, qs)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	v, ok := insts[0].Annotation("long_read")
	if !ok {
		t.Fatal("annotation missing")
	}
	if v != true {
		t.Errorf("long_read = %v, want true", v)
	}

	// Annotations project through Values alongside stored fields.
	rows, err := env.exec.Values(ctx, qs, "title", "long_read")
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if rows[0]["long_read"] != true {
		t.Errorf("values long_read = %v", rows[0]["long_read"])
	}
}
