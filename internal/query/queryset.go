package query

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"admindata/internal/apperr"
	"admindata/internal/metadata"
)

// Order is one ordering clause.
type Order struct {
	Field string
	Desc  bool
}

// Annotation is a named per-row computed value. The expression is
// compiled at construction time and evaluated in memory after fetch,
// with the row visible as `record`.
type Annotation struct {
	Name       string
	Expression string
	Program    *vm.Program
}

// Queryset is an immutable, lazily-evaluated query descriptor. Every
// transformation returns a new value; the receiver is never altered,
// so derived querysets share no mutable state. Construction never
// touches the storage engine.
//
// Field and relation names are validated as each transformation is
// applied. The first failure is recorded on the returned queryset:
// read it synchronously with Err, or receive it from any evaluation
// of the invalid queryset. It is never deferred past construction.
type Queryset struct {
	model       *metadata.Model
	where       Expr
	orders      []Order
	only        []string
	limit       int // -1 = unset
	offset      int // -1 = unset
	selectRel   []string
	prefetchRel []string
	annotations []Annotation
	distinct    bool
	distinctOn  []string
	err         error
}

// New returns an empty queryset over the model.
func New(m *metadata.Model) *Queryset {
	return &Queryset{model: m, limit: -1, offset: -1}
}

// Model returns the base model handle.
func (q *Queryset) Model() *metadata.Model { return q.model }

// Err reports the first construction-time validation failure, if any.
func (q *Queryset) Err() error { return q.err }

func (q *Queryset) clone() *Queryset {
	c := *q
	c.orders = append([]Order(nil), q.orders...)
	c.only = append([]string(nil), q.only...)
	c.selectRel = append([]string(nil), q.selectRel...)
	c.prefetchRel = append([]string(nil), q.prefetchRel...)
	c.annotations = append([]Annotation(nil), q.annotations...)
	c.distinctOn = append([]string(nil), q.distinctOn...)
	return &c
}

func (q *Queryset) fail(err error) *Queryset {
	c := q.clone()
	if c.err == nil {
		c.err = err
	}
	return c
}

// Filter intersects the existing predicate with expr (AND semantics):
// q.Filter(e1).Filter(e2) is equivalent to q.Filter(And(e1, e2)).
func (q *Queryset) Filter(e Expr) *Queryset {
	if q.err != nil {
		return q
	}
	if e == nil {
		return q
	}
	if err := q.validateExpr(e); err != nil {
		return q.fail(err)
	}
	c := q.clone()
	c.where = And(c.where, e)
	return c
}

// OrderBy replaces any previous ordering; it does not accumulate.
// Calling OrderBy twice leaves the queryset ordered only by the second
// call's fields. Prefix a field with "-" for descending order.
func (q *Queryset) OrderBy(fields ...string) *Queryset {
	if q.err != nil {
		return q
	}
	orders := make([]Order, 0, len(fields))
	for _, f := range fields {
		o := Order{Field: f}
		if strings.HasPrefix(f, "-") {
			o = Order{Field: f[1:], Desc: true}
		}
		if !q.model.HasField(o.Field) {
			return q.fail(apperr.Validation(
				fmt.Sprintf("unknown order field %s on %s", o.Field, q.model.DottedName())))
		}
		orders = append(orders, o)
	}
	c := q.clone()
	c.orders = orders
	return c
}

// Limit bounds the result window. Calling Limit twice keeps the most
// recent value; combined with Offset it forms a bounded window.
func (q *Queryset) Limit(n int) *Queryset {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.fail(apperr.Validation("limit must be non-negative"))
	}
	c := q.clone()
	c.limit = n
	return c
}

// Offset skips the first n rows. The most recent call wins.
func (q *Queryset) Offset(n int) *Queryset {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.fail(apperr.Validation("offset must be non-negative"))
	}
	c := q.clone()
	c.offset = n
	return c
}

// Only restricts the selected columns. The primary key is always
// retained so instances stay addressable and prefetching stays keyed.
// Combining Only with SelectRelated or PrefetchRelated is additive.
func (q *Queryset) Only(fields ...string) *Queryset {
	if q.err != nil {
		return q
	}
	cols := make([]string, 0, len(fields)+1)
	seen := make(map[string]bool, len(fields)+1)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			cols = append(cols, name)
		}
	}
	add(q.model.PrimaryKeyField())
	for _, f := range fields {
		if !q.model.HasField(f) {
			return q.fail(apperr.Validation(
				fmt.Sprintf("unknown field %s on %s", f, q.model.DottedName())))
		}
		add(f)
	}
	c := q.clone()
	c.only = cols
	return c
}

// SelectRelated eager-loads to-one relations in the same round trip by
// joining the target table. Only many_to_one relations qualify; use
// PrefetchRelated for collections.
func (q *Queryset) SelectRelated(relations ...string) *Queryset {
	if q.err != nil {
		return q
	}
	c := q.clone()
	for _, name := range relations {
		rel := q.model.GetRelation(name)
		if rel == nil {
			return q.fail(apperr.Validation(
				fmt.Sprintf("unknown relation %s on %s", name, q.model.DottedName())))
		}
		if !rel.IsToOne() {
			return q.fail(apperr.Validation(
				fmt.Sprintf("relation %s is not to-one; use PrefetchRelated", name)))
		}
		if !contains(c.selectRel, name) {
			c.selectRel = append(c.selectRel, name)
		}
	}
	return c
}

// PrefetchRelated eager-loads to-many and many-to-many relations with
// one additional query per relation, keyed by the parent identifiers,
// regardless of the number of rows in the base result.
func (q *Queryset) PrefetchRelated(relations ...string) *Queryset {
	if q.err != nil {
		return q
	}
	c := q.clone()
	for _, name := range relations {
		rel := q.model.GetRelation(name)
		if rel == nil {
			return q.fail(apperr.Validation(
				fmt.Sprintf("unknown relation %s on %s", name, q.model.DottedName())))
		}
		if !contains(c.prefetchRel, name) {
			c.prefetchRel = append(c.prefetchRel, name)
		}
	}
	return c
}

// Annotate attaches a named computed value to every returned row. The
// expression is compiled now; malformed expressions fail here, not at
// evaluation.
func (q *Queryset) Annotate(name string, expression string) *Queryset {
	if q.err != nil {
		return q
	}
	if name == "" {
		return q.fail(apperr.Validation("annotation name is required"))
	}
	prog, err := expr.Compile(expression)
	if err != nil {
		return q.fail(apperr.Validation(
			fmt.Sprintf("annotation %s: %v", name, err)))
	}
	c := q.clone()
	c.annotations = append(c.annotations, Annotation{
		Name: name, Expression: expression, Program: prog,
	})
	return c
}

// Distinct requests distinct rows. With no fields the whole row must
// be distinct; with fields, distinctness applies to Values and
// ValuesList projections over those fields.
func (q *Queryset) Distinct(fields ...string) *Queryset {
	if q.err != nil {
		return q
	}
	for _, f := range fields {
		if !q.model.HasField(f) {
			return q.fail(apperr.Validation(
				fmt.Sprintf("unknown field %s on %s", f, q.model.DottedName())))
		}
	}
	c := q.clone()
	c.distinct = true
	c.distinctOn = append([]string(nil), fields...)
	return c
}

// Accessors used by the executor. They expose copies or read-only
// views; callers must not mutate the returned slices.

func (q *Queryset) Where() Expr                   { return q.where }
func (q *Queryset) Orders() []Order               { return q.orders }
func (q *Queryset) OnlyFields() []string          { return q.only }
func (q *Queryset) LimitValue() int               { return q.limit }
func (q *Queryset) OffsetValue() int              { return q.offset }
func (q *Queryset) SelectedRelations() []string   { return q.selectRel }
func (q *Queryset) PrefetchedRelations() []string { return q.prefetchRel }
func (q *Queryset) Annotations() []Annotation     { return q.annotations }
func (q *Queryset) IsDistinct() bool              { return q.distinct }
func (q *Queryset) DistinctFields() []string      { return q.distinctOn }

func (q *Queryset) validateExpr(e Expr) error {
	var details []apperr.ErrorDetail
	visit(e, func(c Cond) {
		if !validOp(c.Op) {
			details = append(details, apperr.ErrorDetail{
				Field: c.Field, Message: "unknown operator: " + c.Op,
			})
			return
		}
		if !q.model.HasField(c.Field) {
			details = append(details, apperr.ErrorDetail{
				Field: c.Field, Message: "unknown field on " + q.model.DottedName(),
			})
		}
	})
	if len(details) > 0 {
		return apperr.Validation("invalid filter expression", details...)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
