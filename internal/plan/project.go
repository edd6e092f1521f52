package plan

import (
	"fmt"
	"slices"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/schema"
)

// ProjectNode evaluates one expression per output column.
//
// The key field is inherited from the source as is, even when the output
// schema drops that field. Downstream repartitioning decisions depend on how
// records are actually keyed, not on what is selected. An output column that
// reuses the key's name for another value does not make records keyed by it.
type ProjectNode struct {
	base
	singleSource
	expressions []expr.Expr
}

// NewProjectNode creates a projection of source. The i-th expression
// produces the i-th field of s, so their counts must agree.
func NewProjectNode(id NodeID, source Node, s *schema.Schema, expressions []expr.Expr) (*ProjectNode, error) {
	if err := checkHeader(id); err != nil {
		return nil, err
	}
	if err := checkSource(id, "source", source); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, configError(id, "schema is required")
	}
	if expressions == nil {
		return nil, configError(id, "expression list is required")
	}
	if s.Len() != len(expressions) {
		return nil, arityError(id, s.Len(), len(expressions))
	}
	if len(expressions) == 0 {
		return nil, queryError(id, "projection selects no columns")
	}
	if err := checkExpressions(id, expressions, 0, source.Schema(), s); err != nil {
		return nil, err
	}
	for i, e := range expressions {
		if expr.ContainsAggregate(e) {
			return nil, queryError(id, "column %q: aggregate %s outside an aggregation", s.FieldAt(i).Name, e)
		}
	}

	return &ProjectNode{
		base: base{
			id:         id,
			schema:     s,
			keyField:   source.KeyField(),
			outputType: source.OutputType(),
			keyRebound: rebindsKey(source, s, expressions),
		},
		singleSource: singleSource{source: source},
		expressions:  slices.Clone(expressions),
	}, nil
}

// Expressions returns a copy of the expression list.
func (n *ProjectNode) Expressions() []expr.Expr {
	return slices.Clone(n.expressions)
}

// SelectExpressions pairs each output field name with its expression.
func (n *ProjectNode) SelectExpressions() []expr.SelectExpression {
	return zipSelects(n.schema, 0, n.expressions)
}

func (n *ProjectNode) Accept(v Visitor, ctx any) (any, error) {
	return v.VisitProject(n, ctx)
}

func (n *ProjectNode) Compile(b Builder, cfg Config, cc *CompileContext) (Handle, error) {
	return cc.compile(n, func() (Handle, error) {
		h, err := n.source.Compile(b, cfg, cc)
		if err != nil {
			return nil, err
		}
		return b.Project(h, n.SelectExpressions())
	})
}

// rebindsKey reports whether the column named like the source's key holds
// anything other than the key itself.
func rebindsKey(source Node, out *schema.Schema, exprs []expr.Expr) bool {
	key := source.KeyField()
	if key == nil {
		return false
	}
	i := out.Index(key.Name)
	if i < 0 {
		return rebound(source)
	}
	col, ok := exprs[i].(expr.ColumnRef)
	return !ok || !source.keyedBy(col.Name)
}

// zipSelects pairs fields of out starting at offset with exprs.
func zipSelects(out *schema.Schema, offset int, exprs []expr.Expr) []expr.SelectExpression {
	selects := make([]expr.SelectExpression, len(exprs))
	for i, e := range exprs {
		selects[i] = expr.SelectExpression{Name: out.FieldAt(offset + i).Name, Expr: e}
	}
	return selects
}

// checkExpressions validates each expression against the input schema. The
// field of out at offset+i names expression i in error messages.
func checkExpressions(id NodeID, exprs []expr.Expr, offset int, in, out *schema.Schema) error {
	for i, e := range exprs {
		if e == nil {
			return configError(id, "expression %d is nil", i)
		}
		if err := expr.Validate(e, in); err != nil {
			return &Error{
				Code:    ErrCodeQueryDefinition,
				NodeID:  id,
				Message: fmt.Sprintf("column %q: %v", out.FieldAt(offset+i).Name, err),
				Cause:   err,
			}
		}
	}
	return nil
}
