package plan

import (
	"errors"
	"strconv"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/schema"
)

// JoinNode joins two sources on left key = right key.
//
// Supported shapes are stream-stream (windowed), stream-table and
// table-table (both unwindowed). A table on the left joined to a stream on
// the right is rejected. Both sides must end up co-partitioned: the same
// partition count and keyed by their join keys.
type JoinNode struct {
	base
	joinType   JoinType
	left       Node
	right      Node
	leftKey    string
	rightKey   string
	window     WindowPolicy
	leftAlias  string
	rightAlias string
}

// NewJoinNode creates a join. When aliases are given, output fields are
// named alias.field; otherwise the two sides' field names must not collide.
// An empty joinType means INNER.
func NewJoinNode(id NodeID, joinType JoinType, left, right Node, leftKey, rightKey string, window WindowPolicy, leftAlias, rightAlias string) (*JoinNode, error) {
	if err := checkHeader(id); err != nil {
		return nil, err
	}
	if err := checkSource(id, "left source", left); err != nil {
		return nil, err
	}
	if err := checkSource(id, "right source", right); err != nil {
		return nil, err
	}
	switch joinType {
	case "":
		joinType = JoinInner
	case JoinInner, JoinLeft, JoinOuter:
	default:
		return nil, configError(id, "unknown join type %q", joinType)
	}
	if leftKey == "" || rightKey == "" {
		return nil, configError(id, "both join keys are required")
	}
	if _, ok := left.Schema().Field(leftKey); !ok {
		return nil, queryError(id, "left join key %q not found in %s", leftKey, left.Schema())
	}
	if _, ok := right.Schema().Field(rightKey); !ok {
		return nil, queryError(id, "right join key %q not found in %s", rightKey, right.Schema())
	}

	window = window.normalize()
	if err := window.Validate(); err != nil {
		return nil, &Error{Code: ErrCodeQueryDefinition, NodeID: id, Message: err.Error(), Cause: err}
	}
	lt, rt := left.OutputType(), right.OutputType()
	switch {
	case lt == Stream && rt == Stream:
		if !window.Windowed() {
			return nil, queryError(id, "stream-stream join requires a window")
		}
	case lt == Table && rt == Stream:
		return nil, queryError(id, "table-stream join is not supported; put the stream on the left")
	default:
		if window.Windowed() {
			return nil, queryError(id, "%s-%s join cannot be windowed", lower(lt), lower(rt))
		}
		if lt == Stream && joinType == JoinOuter {
			return nil, queryError(id, "stream-table join does not support OUTER")
		}
	}

	fields := make([]schema.Field, 0, left.Schema().Len()+right.Schema().Len())
	for _, f := range left.Schema().Fields() {
		fields = append(fields, schema.Field{Name: aliased(leftAlias, f.Name), Type: f.Type})
	}
	for _, f := range right.Schema().Fields() {
		fields = append(fields, schema.Field{Name: aliased(rightAlias, f.Name), Type: f.Type})
	}
	out, err := schema.New(fields...)
	if err != nil {
		var dup *schema.DuplicateFieldError
		if errors.As(err, &dup) {
			return nil, &Error{
				Code:    ErrCodeQueryDefinition,
				NodeID:  id,
				Message: "field name " + strconv.Quote(dup.Name) + " appears on both sides of the join",
				Details: map[string]string{"field": dup.Name},
				Cause:   err,
			}
		}
		return nil, &Error{Code: ErrCodeQueryDefinition, NodeID: id, Message: err.Error(), Cause: err}
	}

	key, _ := out.Field(aliased(leftAlias, leftKey))
	outputType := Stream
	if lt == Table && rt == Table {
		outputType = Table
	}

	return &JoinNode{
		base: base{
			id:         id,
			schema:     out,
			keyField:   &key,
			outputType: outputType,
		},
		joinType:   joinType,
		left:       left,
		right:      right,
		leftKey:    leftKey,
		rightKey:   rightKey,
		window:     window,
		leftAlias:  leftAlias,
		rightAlias: rightAlias,
	}, nil
}

func aliased(alias, name string) string {
	if alias == "" {
		return name
	}
	return alias + "." + name
}

func lower(t OutputType) string {
	if t == Table {
		return "table"
	}
	return "stream"
}

func (n *JoinNode) JoinType() JoinType { return n.joinType }

func (n *JoinNode) Left() Node { return n.left }

func (n *JoinNode) Right() Node { return n.right }

func (n *JoinNode) LeftKey() string { return n.leftKey }

func (n *JoinNode) RightKey() string { return n.rightKey }

func (n *JoinNode) Window() WindowPolicy { return n.window }

func (n *JoinNode) LeftAlias() string { return n.leftAlias }

func (n *JoinNode) RightAlias() string { return n.rightAlias }

func (n *JoinNode) Sources() []Node { return []Node{n.left, n.right} }

// Condition returns left key = right key over the output column names.
func (n *JoinNode) Condition() expr.Expr {
	return expr.Binary{
		Op:    expr.OpEq,
		Left:  expr.Col(aliased(n.leftAlias, n.leftKey)),
		Right: expr.Col(aliased(n.rightAlias, n.rightKey)),
	}
}

// side says which source absorbs a partition count mismatch.
type side int

const (
	sideNone side = iota
	sideLeft
	sideRight
)

// reconcile picks the partition count both sides end up with. A stream side
// facing a table is repartitioned to the table's count; between two streams
// the side with fewer partitions is. Two tables cannot be repartitioned.
func (n *JoinNode) reconcile(lp, rp int) (int, side, error) {
	if lp == rp {
		return lp, sideNone, nil
	}
	lt, rt := n.left.OutputType(), n.right.OutputType()
	switch {
	case lt == Table && rt == Table:
		return 0, sideNone, &Error{
			Code:    ErrCodeConfiguration,
			NodeID:  n.id,
			Message: "tables have " + strconv.Itoa(lp) + " and " + strconv.Itoa(rp) + " partitions and cannot be repartitioned",
			Details: map[string]string{
				"left_partitions":  strconv.Itoa(lp),
				"right_partitions": strconv.Itoa(rp),
			},
		}
	case rt == Table:
		return rp, sideLeft, nil
	case lp < rp:
		return rp, sideLeft, nil
	default:
		return lp, sideRight, nil
	}
}

// Partitions returns the partition count after co-partitioning.
func (n *JoinNode) Partitions(oracle PartitionOracle) (int, error) {
	lp, err := n.left.Partitions(oracle)
	if err != nil {
		return 0, err
	}
	rp, err := n.right.Partitions(oracle)
	if err != nil {
		return 0, err
	}
	target, _, err := n.reconcile(lp, rp)
	return target, err
}

func (n *JoinNode) Accept(v Visitor, ctx any) (any, error) {
	return v.VisitJoin(n, ctx)
}

func (n *JoinNode) Compile(b Builder, cfg Config, cc *CompileContext) (Handle, error) {
	return cc.compile(n, func() (Handle, error) {
		lh, err := n.left.Compile(b, cfg, cc)
		if err != nil {
			return nil, err
		}
		rh, err := n.right.Compile(b, cfg, cc)
		if err != nil {
			return nil, err
		}

		lp, err := cc.partitions(n.left)
		if err != nil {
			return nil, err
		}
		rp, err := cc.partitions(n.right)
		if err != nil {
			return nil, err
		}
		target, absorb, err := n.reconcile(lp, rp)
		if err != nil {
			return nil, err
		}

		rekeyLeft := !n.left.keyedBy(n.leftKey)
		rekeyRight := !n.right.keyedBy(n.rightKey)
		if rekeyLeft && n.left.OutputType() == Table {
			return nil, tableKeyError(n.id, "left", n.left, n.leftKey)
		}
		if rekeyRight && n.right.OutputType() == Table {
			return nil, tableKeyError(n.id, "right", n.right, n.rightKey)
		}
		repartitionLeft := rekeyLeft || absorb == sideLeft
		repartitionRight := rekeyRight || absorb == sideRight

		if (repartitionLeft || repartitionRight) && !cfg.allowRepartition() {
			return nil, NewCoPartitioningError(n.id, lp, rp,
				schema.KeyName(n.left.KeyField()), schema.KeyName(n.right.KeyField()))
		}
		if repartitionLeft {
			if lh, err = b.Repartition(lh, []expr.Expr{expr.Col(n.leftKey)}, target); err != nil {
				return nil, err
			}
		}
		if repartitionRight {
			if rh, err = b.Repartition(rh, []expr.Expr{expr.Col(n.rightKey)}, target); err != nil {
				return nil, err
			}
		}

		return b.Join(lh, rh, JoinSpec{
			Type:      n.joinType,
			LeftKey:   n.leftKey,
			RightKey:  n.rightKey,
			Condition: n.Condition(),
			Window:    n.window,
			StoreName: StateStoreName(cfg, n.id, "Join"),
		})
	})
}

func tableKeyError(id NodeID, role string, table Node, joinKey string) error {
	if rebound(table) && table.KeyField().Name == joinKey {
		return queryError(id, "%s table column %q does not hold the table key", role, joinKey)
	}
	return queryError(id, "%s table is keyed by %s, not by join key %q", role, quoteKey(table.KeyField()), joinKey)
}
