package plan

import (
	"github.com/roach88/streamplan/internal/expr"
)

// FilterNode keeps records for which a predicate holds. Schema, key field,
// output type and partitioning pass through.
type FilterNode struct {
	base
	singleSource
	predicate expr.Expr
}

// NewFilterNode creates a filter over source.
func NewFilterNode(id NodeID, source Node, predicate expr.Expr) (*FilterNode, error) {
	if err := checkHeader(id); err != nil {
		return nil, err
	}
	if err := checkSource(id, "source", source); err != nil {
		return nil, err
	}
	if predicate == nil {
		return nil, configError(id, "predicate is required")
	}
	if err := expr.Validate(predicate, source.Schema()); err != nil {
		return nil, &Error{Code: ErrCodeQueryDefinition, NodeID: id, Message: "predicate: " + err.Error(), Cause: err}
	}
	if expr.ContainsAggregate(predicate) {
		return nil, queryError(id, "predicate %s contains an aggregate", predicate)
	}

	return &FilterNode{
		base: base{
			id:         id,
			schema:     source.Schema(),
			keyField:   source.KeyField(),
			outputType: source.OutputType(),
			keyRebound: rebound(source),
		},
		singleSource: singleSource{source: source},
		predicate:    predicate,
	}, nil
}

// Predicate returns the filter condition.
func (n *FilterNode) Predicate() expr.Expr { return n.predicate }

func (n *FilterNode) Accept(v Visitor, ctx any) (any, error) {
	return v.VisitFilter(n, ctx)
}

func (n *FilterNode) Compile(b Builder, cfg Config, cc *CompileContext) (Handle, error) {
	return cc.compile(n, func() (Handle, error) {
		h, err := n.source.Compile(b, cfg, cc)
		if err != nil {
			return nil, err
		}
		return b.Filter(h, n.predicate)
	})
}
