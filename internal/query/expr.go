package query

// Comparison operators accepted in filter leaves.
const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpLt       = "lt"
	OpLte      = "lte"
	OpGt       = "gt"
	OpGte      = "gte"
	OpIn       = "in"
	OpIsNull   = "isnull"
	OpContains = "contains"
)

// Expr is an immutable predicate tree. Expressions carry no engine
// dependency; they are rendered to SQL only when a queryset holding
// them is evaluated. Combining expressions never mutates the operands.
type Expr interface {
	isExpr()
}

// Cond is a single field comparison leaf.
type Cond struct {
	Field string
	Op    string
	Value any
}

func (Cond) isExpr() {}

// Group is a boolean combination of child expressions.
type Group struct {
	Op       string // "AND" or "OR"
	Children []Expr
}

func (Group) isExpr() {}

// Negation inverts its child expression.
type Negation struct {
	Child Expr
}

func (Negation) isExpr() {}

func Eq(field string, value any) Expr  { return Cond{Field: field, Op: OpEq, Value: value} }
func Ne(field string, value any) Expr  { return Cond{Field: field, Op: OpNe, Value: value} }
func Lt(field string, value any) Expr  { return Cond{Field: field, Op: OpLt, Value: value} }
func Lte(field string, value any) Expr { return Cond{Field: field, Op: OpLte, Value: value} }
func Gt(field string, value any) Expr  { return Cond{Field: field, Op: OpGt, Value: value} }
func Gte(field string, value any) Expr { return Cond{Field: field, Op: OpGte, Value: value} }

// In matches rows whose field equals any of the given values. An empty
// value list matches nothing.
func In(field string, values ...any) Expr {
	return Cond{Field: field, Op: OpIn, Value: values}
}

// IsNull matches NULL when null is true, NOT NULL otherwise.
func IsNull(field string, null bool) Expr {
	return Cond{Field: field, Op: OpIsNull, Value: null}
}

// Contains matches substring occurrence (LIKE %value%).
func Contains(field string, value string) Expr {
	return Cond{Field: field, Op: OpContains, Value: value}
}

// And combines expressions conjunctively. Combination is associative
// and preserves operand order for deterministic SQL rendering.
func And(exprs ...Expr) Expr {
	return combine("AND", exprs)
}

// Or combines expressions disjunctively.
func Or(exprs ...Expr) Expr {
	return combine("OR", exprs)
}

// Not negates an expression.
func Not(e Expr) Expr {
	if e == nil {
		return nil
	}
	return Negation{Child: e}
}

func combine(op string, exprs []Expr) Expr {
	var children []Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		// Flatten same-op groups; this keeps AND-composition associative
		// without changing operand order.
		if g, ok := e.(Group); ok && g.Op == op {
			children = append(children, g.Children...)
			continue
		}
		children = append(children, e)
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return Group{Op: op, Children: children}
}

// visit walks every leaf of the tree.
func visit(e Expr, fn func(Cond)) {
	switch n := e.(type) {
	case Cond:
		fn(n)
	case Group:
		for _, c := range n.Children {
			visit(c, fn)
		}
	case Negation:
		visit(n.Child, fn)
	}
}

func validOp(op string) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpIsNull, OpContains:
		return true
	}
	return false
}
