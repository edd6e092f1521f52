package plan

import (
	"slices"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/schema"
)

// AggregateNode groups records and computes aggregates per group.
//
// The output schema lists the grouping columns followed by the aggregate
// columns. The result is a table keyed by the grouping key: output field 0
// when grouping by a single expression, unkeyed for a composite key.
type AggregateNode struct {
	base
	singleSource
	groupBy    []expr.Expr
	aggregates []expr.Expr
	window     WindowPolicy
	emit       EmitMode
}

// NewAggregateNode creates an aggregation of source. An empty emit mode
// means CHANGES.
func NewAggregateNode(id NodeID, source Node, s *schema.Schema, groupBy, aggregates []expr.Expr, window WindowPolicy, emit EmitMode) (*AggregateNode, error) {
	if err := checkHeader(id); err != nil {
		return nil, err
	}
	if err := checkSource(id, "source", source); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, configError(id, "schema is required")
	}
	if groupBy == nil {
		return nil, configError(id, "group-by list is required")
	}
	if aggregates == nil {
		return nil, configError(id, "aggregate list is required")
	}
	if want := len(groupBy) + len(aggregates); s.Len() != want {
		return nil, arityError(id, s.Len(), want)
	}
	if len(groupBy) == 0 {
		return nil, queryError(id, "aggregation requires at least one grouping expression")
	}

	if err := checkExpressions(id, groupBy, 0, source.Schema(), s); err != nil {
		return nil, err
	}
	for i, e := range groupBy {
		if expr.ContainsAggregate(e) {
			return nil, queryError(id, "grouping column %q: aggregate %s is not allowed", s.FieldAt(i).Name, e)
		}
	}
	if err := checkExpressions(id, aggregates, len(groupBy), source.Schema(), s); err != nil {
		return nil, err
	}
	for i, e := range aggregates {
		if !expr.ContainsAggregate(e) {
			return nil, queryError(id, "column %q: %s is not an aggregate", s.FieldAt(len(groupBy)+i).Name, e)
		}
	}

	window = window.normalize()
	if err := window.Validate(); err != nil {
		return nil, &Error{Code: ErrCodeQueryDefinition, NodeID: id, Message: err.Error(), Cause: err}
	}
	switch emit {
	case "":
		emit = EmitChanges
	case EmitChanges:
	case EmitFinal:
		if !window.Windowed() {
			return nil, queryError(id, "EMIT FINAL requires a windowed aggregation")
		}
	default:
		return nil, configError(id, "unknown emit mode %q", emit)
	}

	var key *schema.Field
	if len(groupBy) == 1 {
		f := s.FieldAt(0)
		key = &f
	}

	return &AggregateNode{
		base: base{
			id:         id,
			schema:     s,
			keyField:   key,
			outputType: Table,
		},
		singleSource: singleSource{source: source},
		groupBy:      slices.Clone(groupBy),
		aggregates:   slices.Clone(aggregates),
		window:       window,
		emit:         emit,
	}, nil
}

// GroupBy returns a copy of the grouping expressions.
func (n *AggregateNode) GroupBy() []expr.Expr { return slices.Clone(n.groupBy) }

// Aggregates returns a copy of the aggregate expressions.
func (n *AggregateNode) Aggregates() []expr.Expr { return slices.Clone(n.aggregates) }

func (n *AggregateNode) Window() WindowPolicy { return n.window }

func (n *AggregateNode) Emit() EmitMode { return n.emit }

// GroupBySelects pairs the grouping columns of the output schema with their
// expressions.
func (n *AggregateNode) GroupBySelects() []expr.SelectExpression {
	return zipSelects(n.schema, 0, n.groupBy)
}

// AggregateSelects pairs the aggregate columns of the output schema with
// their expressions.
func (n *AggregateNode) AggregateSelects() []expr.SelectExpression {
	return zipSelects(n.schema, len(n.groupBy), n.aggregates)
}

// NeedsRepartition reports whether the source must be rekeyed by the
// grouping key first. Only a single grouping column holding the source's
// key avoids it.
func (n *AggregateNode) NeedsRepartition() bool {
	if len(n.groupBy) != 1 {
		return true
	}
	col, ok := n.groupBy[0].(expr.ColumnRef)
	return !ok || !n.source.keyedBy(col.Name)
}

func (n *AggregateNode) Accept(v Visitor, ctx any) (any, error) {
	return v.VisitAggregate(n, ctx)
}

func (n *AggregateNode) Compile(b Builder, cfg Config, cc *CompileContext) (Handle, error) {
	return cc.compile(n, func() (Handle, error) {
		h, err := n.source.Compile(b, cfg, cc)
		if err != nil {
			return nil, err
		}

		if n.NeedsRepartition() {
			if !cfg.allowRepartition() {
				return nil, &Error{
					Code:    ErrCodeCoPartitioning,
					NodeID:  n.id,
					Message: "source keyed by " + quoteKey(n.source.KeyField()) + " must be repartitioned by the grouping key, and repartitioning is denied",
					Details: map[string]string{
						"source_key":   schema.KeyName(n.source.KeyField()),
						"grouping_key": groupKeyString(n.groupBy),
					},
				}
			}
			partitions, err := cc.partitions(n.source)
			if err != nil {
				return nil, err
			}
			h, err = b.Repartition(h, n.GroupBy(), partitions)
			if err != nil {
				return nil, err
			}
		}

		return b.Aggregate(h, AggregateSpec{
			GroupBy:    n.GroupBySelects(),
			Aggregates: n.AggregateSelects(),
			Window:     n.window,
			Emit:       n.emit,
			StoreName:  StateStoreName(cfg, n.id, "Aggregate"),
		})
	})
}

func quoteKey(f *schema.Field) string {
	if f == nil {
		return "nothing"
	}
	return `"` + f.Name + `"`
}

func groupKeyString(exprs []expr.Expr) string {
	s := ""
	for i, e := range exprs {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s
}
