package plan

import "fmt"

// Visitor is one pass over a plan. Each node's Accept calls exactly one of
// these methods. Visitors decide themselves whether and when to descend into
// a node's sources.
type Visitor interface {
	VisitScan(n *ScanNode, ctx any) (any, error)
	VisitFilter(n *FilterNode, ctx any) (any, error)
	VisitProject(n *ProjectNode, ctx any) (any, error)
	VisitAggregate(n *AggregateNode, ctx any) (any, error)
	VisitJoin(n *JoinNode, ctx any) (any, error)
	VisitSink(n *SinkNode, ctx any) (any, error)
}

// TypedVisitor is a Visitor with a typed context and result.
type TypedVisitor[C, R any] interface {
	VisitScan(n *ScanNode, ctx C) (R, error)
	VisitFilter(n *FilterNode, ctx C) (R, error)
	VisitProject(n *ProjectNode, ctx C) (R, error)
	VisitAggregate(n *AggregateNode, ctx C) (R, error)
	VisitJoin(n *JoinNode, ctx C) (R, error)
	VisitSink(n *SinkNode, ctx C) (R, error)
}

// Visit dispatches n to the matching method of v.
func Visit[C, R any](n Node, v TypedVisitor[C, R], ctx C) (R, error) {
	var zero R
	out, err := n.Accept(typedAdapter[C, R]{v: v}, ctx)
	if err != nil {
		return zero, err
	}
	if out == nil {
		// A nil interface result boxes to a nil any.
		return zero, nil
	}
	r, ok := out.(R)
	if !ok {
		return zero, fmt.Errorf("visit %s: result has type %T, want %T", n.ID(), out, zero)
	}
	return r, nil
}

type typedAdapter[C, R any] struct {
	v TypedVisitor[C, R]
}

func typedContext[C any](ctx any) C {
	c, _ := ctx.(C)
	return c
}

func (a typedAdapter[C, R]) VisitScan(n *ScanNode, ctx any) (any, error) {
	return wrap[R](a.v.VisitScan(n, typedContext[C](ctx)))
}

func (a typedAdapter[C, R]) VisitFilter(n *FilterNode, ctx any) (any, error) {
	return wrap[R](a.v.VisitFilter(n, typedContext[C](ctx)))
}

func (a typedAdapter[C, R]) VisitProject(n *ProjectNode, ctx any) (any, error) {
	return wrap[R](a.v.VisitProject(n, typedContext[C](ctx)))
}

func (a typedAdapter[C, R]) VisitAggregate(n *AggregateNode, ctx any) (any, error) {
	return wrap[R](a.v.VisitAggregate(n, typedContext[C](ctx)))
}

func (a typedAdapter[C, R]) VisitJoin(n *JoinNode, ctx any) (any, error) {
	return wrap[R](a.v.VisitJoin(n, typedContext[C](ctx)))
}

func (a typedAdapter[C, R]) VisitSink(n *SinkNode, ctx any) (any, error) {
	return wrap[R](a.v.VisitSink(n, typedContext[C](ctx)))
}

func wrap[R any](r R, err error) (any, error) {
	return r, err
}
