package plan

import (
	"github.com/roach88/streamplan/internal/schema"
)

// NodeID identifies a node within a plan. State store names derive from it,
// so it must be stable across restarts of the same query.
type NodeID string

// OutputType says whether a node emits append-only events or
// latest-value-per-key updates.
type OutputType string

const (
	Stream OutputType = "STREAM"
	Table  OutputType = "TABLE"
)

// Node is one operator of a logical plan.
//
// This is a sealed interface: only the node types in this package implement
// it. Schema, KeyField and OutputType are computed by the constructor and
// never change.
type Node interface {
	planNode()

	ID() NodeID

	// Sources returns the child nodes in order. Empty for a scan.
	Sources() []Node

	Schema() *schema.Schema

	// KeyField returns the field records are keyed by, or nil if unkeyed.
	KeyField() *schema.Field

	OutputType() OutputType

	// Partitions infers the node's partition count.
	Partitions(oracle PartitionOracle) (int, error)

	// Accept calls the one visitor method matching the node's variant,
	// passing ctx through unchanged.
	Accept(v Visitor, ctx any) (any, error)

	// Compile compiles the sources and then applies this node's operator.
	Compile(b Builder, cfg Config, cc *CompileContext) (Handle, error)

	// keyedBy reports whether records are keyed by the value of column.
	keyedBy(column string) bool
}

// base holds the derived properties every node carries.
type base struct {
	id         NodeID
	schema     *schema.Schema
	keyField   *schema.Field
	outputType OutputType

	// keyRebound is set when the output column named like the key field
	// holds some other value than the key.
	keyRebound bool
}

func (*base) planNode() {}

func (b *base) ID() NodeID { return b.id }

func (b *base) Schema() *schema.Schema { return b.schema }

func (b *base) KeyField() *schema.Field { return b.keyField }

func (b *base) OutputType() OutputType { return b.outputType }

func (b *base) keyedBy(column string) bool {
	return b.keyField != nil && b.keyField.Name == column && !b.keyRebound
}

// singleSource is embedded by operators with exactly one source. Partition
// count defers to the source.
type singleSource struct {
	source Node
}

// Source returns the node's only source.
func (s *singleSource) Source() Node { return s.source }

func (s *singleSource) Sources() []Node { return []Node{s.source} }

func (s *singleSource) Partitions(oracle PartitionOracle) (int, error) {
	return s.source.Partitions(oracle)
}

// rebound reports whether n's key field name no longer carries the key.
func rebound(n Node) bool {
	key := n.KeyField()
	return key != nil && !n.keyedBy(key.Name)
}

func checkHeader(id NodeID) error {
	if id == "" {
		return configError(id, "node id is required")
	}
	return nil
}

func checkSource(id NodeID, role string, source Node) error {
	if source == nil {
		return configError(id, "%s is required", role)
	}
	if _, ok := source.(*SinkNode); ok {
		return queryError(id, "%s %s is a sink and cannot feed another operator", role, source.ID())
	}
	return nil
}

// Kind names a node's variant: SCAN, FILTER, PROJECT, AGGREGATE, JOIN or SINK.
func Kind(n Node) string {
	switch n.(type) {
	case *ScanNode:
		return "SCAN"
	case *FilterNode:
		return "FILTER"
	case *ProjectNode:
		return "PROJECT"
	case *AggregateNode:
		return "AGGREGATE"
	case *JoinNode:
		return "JOIN"
	case *SinkNode:
		return "SINK"
	default:
		return "UNKNOWN"
	}
}

// Walk visits the tree rooted at n in pre-order, left source before right.
// Returning false from fn skips the node's sources.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, s := range n.Sources() {
		Walk(s, fn)
	}
}
