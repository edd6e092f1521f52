// Package expr defines the scalar and aggregate expression trees that plan
// nodes carry.
//
// Expr is a sealed interface: only the types in this package implement it,
// so every pass over an expression can use an exhaustive type switch.
// Expressions are immutable values and hold no schema. They are checked
// against a schema with Validate.
package expr

import (
	"strings"

	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/schema"
)

// Expr is a node of an expression tree.
//
// Variants:
//   - ColumnRef: a field of the input record
//   - Literal: a constant
//   - Binary: comparison, arithmetic or boolean connective
//   - Call: function or aggregate application
//   - Cast: type conversion
type Expr interface {
	exprNode()
	String() string
}

// ColumnRef references an input field by name.
type ColumnRef struct {
	Name string
}

func (ColumnRef) exprNode() {}

func (c ColumnRef) String() string { return c.Name }

// Col is shorthand for ColumnRef{Name: name}.
func Col(name string) ColumnRef {
	return ColumnRef{Name: name}
}

// Literal is a constant value.
type Literal struct {
	Value ir.IRValue
}

func (Literal) exprNode() {}

func (l Literal) String() string { return ir.FormatIRValue(l.Value) }

// BinaryOp is an infix operator.
type BinaryOp string

const (
	OpEq     BinaryOp = "="
	OpNeq    BinaryOp = "<>"
	OpLt     BinaryOp = "<"
	OpLte    BinaryOp = "<="
	OpGt     BinaryOp = ">"
	OpGte    BinaryOp = ">="
	OpAdd    BinaryOp = "+"
	OpSub    BinaryOp = "-"
	OpMul    BinaryOp = "*"
	OpDiv    BinaryOp = "/"
	OpMod    BinaryOp = "%"
	OpAnd    BinaryOp = "AND"
	OpOr     BinaryOp = "OR"
	OpLike   BinaryOp = "LIKE"
	OpIn     BinaryOp = "IN"
	OpConcat BinaryOp = "||"
)

// ValidOps lists the supported binary operators.
var ValidOps = map[BinaryOp]bool{
	OpEq: true, OpNeq: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true,
	OpAnd: true, OpOr: true, OpLike: true, OpIn: true, OpConcat: true,
}

// Binary applies an infix operator.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (Binary) exprNode() {}

func (b Binary) String() string {
	return "(" + b.Left.String() + " " + string(b.Op) + " " + b.Right.String() + ")"
}

// Call applies a named function. Aggregates are calls whose name is in
// AggregateFunctions. A call without arguments renders as NAME(*).
type Call struct {
	Name string
	Args []Expr
}

func (Call) exprNode() {}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name + "(*)"
	}
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

// Cast converts Operand to Type.
type Cast struct {
	Operand Expr
	Type    schema.Type
}

func (Cast) exprNode() {}

func (c Cast) String() string {
	return "CAST(" + c.Operand.String() + " AS " + string(c.Type) + ")"
}

// AggregateFunctions are the call names treated as aggregates.
var AggregateFunctions = map[string]bool{
	"COUNT":        true,
	"SUM":          true,
	"MIN":          true,
	"MAX":          true,
	"AVG":          true,
	"TOPK":         true,
	"COLLECT_LIST": true,
	"COLLECT_SET":  true,
	"LATEST":       true,
	"EARLIEST":     true,
}

// IsAggregate reports whether e is an aggregate call.
func IsAggregate(e Expr) bool {
	c, ok := e.(Call)
	return ok && AggregateFunctions[strings.ToUpper(c.Name)]
}

// SelectExpression names one output column of a projection.
type SelectExpression struct {
	Name string
	Expr Expr
}

func (s SelectExpression) String() string {
	return s.Expr.String() + " AS " + s.Name
}
