package expr

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/schema"
)

// Walk visits e depth-first, parents before children.
// Returning false from fn skips the node's children.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch node := e.(type) {
	case Binary:
		Walk(node.Left, fn)
		Walk(node.Right, fn)
	case Call:
		for _, a := range node.Args {
			Walk(a, fn)
		}
	case Cast:
		Walk(node.Operand, fn)
	}
}

// Columns returns the distinct column names e references, in first-seen order.
func Columns(e Expr) []string {
	var cols []string
	seen := map[string]bool{}
	Walk(e, func(n Expr) bool {
		if c, ok := n.(ColumnRef); ok && !seen[c.Name] {
			seen[c.Name] = true
			cols = append(cols, c.Name)
		}
		return true
	})
	return cols
}

// ContainsAggregate reports whether any node of e is an aggregate call.
func ContainsAggregate(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if IsAggregate(n) {
			found = true
		}
		return !found
	})
	return found
}

// UnknownColumnError reports a column reference missing from the schema
// an expression is evaluated against.
type UnknownColumnError struct {
	Column string
	Schema *schema.Schema
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("column %q not found in %s", e.Column, e.Schema)
}

// Validate checks e is well formed and every column it references exists in s.
func Validate(e Expr, s *schema.Schema) error {
	if e == nil {
		return fmt.Errorf("expression is nil")
	}
	var err error
	Walk(e, func(n Expr) bool {
		if err != nil {
			return false
		}
		switch node := n.(type) {
		case ColumnRef:
			if _, ok := s.Field(node.Name); !ok {
				err = &UnknownColumnError{Column: node.Name, Schema: s}
			}
		case Literal:
			if !hasValue(node.Value) {
				err = fmt.Errorf("literal without value")
			}
		case Binary:
			if !ValidOps[node.Op] {
				err = fmt.Errorf("unknown operator %q", node.Op)
			} else if node.Left == nil || node.Right == nil {
				err = fmt.Errorf("operator %s is missing an operand", node.Op)
			}
		case Call:
			if node.Name == "" {
				err = fmt.Errorf("call without function name")
			} else if i := slices.Index(node.Args, nil); i >= 0 {
				err = fmt.Errorf("%s argument %d is nil", node.Name, i)
			}
		case Cast:
			if !schema.ValidTypes[node.Type] {
				err = fmt.Errorf("cast to unknown type %q", node.Type)
			} else if node.Operand == nil {
				err = fmt.Errorf("cast without operand")
			}
		default:
			err = fmt.Errorf("unsupported expression type: %T", n)
		}
		return err == nil
	})
	return err
}

// hasValue reports whether v and every element of an array v are set.
func hasValue(v ir.IRValue) bool {
	if v == nil {
		return false
	}
	if arr, ok := v.(ir.IRArray); ok {
		for _, elem := range arr {
			if !hasValue(elem) {
				return false
			}
		}
	}
	return true
}

// Equal reports structural equality of two expression trees.
func Equal(a, b Expr) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case ColumnRef:
		y, ok := b.(ColumnRef)
		return ok && x.Name == y.Name
	case Literal:
		y, ok := b.(Literal)
		return ok && literalEqual(x.Value, y.Value)
	case Binary:
		y, ok := b.(Binary)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case Call:
		y, ok := b.(Call)
		if !ok || !strings.EqualFold(x.Name, y.Name) || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !Equal(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	case Cast:
		y, ok := b.(Cast)
		return ok && x.Type == y.Type && Equal(x.Operand, y.Operand)
	default:
		return false
	}
}

func literalEqual(a, b ir.IRValue) bool {
	x, okA := a.(ir.IRArray)
	y, okB := b.(ir.IRArray)
	if okA != okB {
		return false
	}
	if !okA {
		return a == b
	}
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !literalEqual(x[i], y[i]) {
			return false
		}
	}
	return true
}

// EqualSelects reports structural equality of two select lists.
func EqualSelects(a, b []SelectExpression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !Equal(a[i].Expr, b[i].Expr) {
			return false
		}
	}
	return true
}
