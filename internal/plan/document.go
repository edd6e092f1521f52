package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/schema"
)

// Document is the serialized form of a plan.
type Document struct {
	Version string        `json:"version"`
	Root    *NodeDocument `json:"root"`
}

// NodeDocument is the serialized form of one node. It carries exactly the
// constructor arguments of the variant named by Type; derived properties
// are recomputed when the document is decoded.
type NodeDocument struct {
	Type string `json:"type"`
	ID   NodeID `json:"id"`

	// scan
	Stream     string         `json:"stream,omitempty"`
	Schema     *schema.Schema `json:"schema,omitempty"`
	KeyField   string         `json:"key_field,omitempty"`
	OutputType OutputType     `json:"output_type,omitempty"`

	// filter, project, aggregate, sink
	Source      *NodeDocument    `json:"source,omitempty"`
	Predicate   *expr.Document   `json:"predicate,omitempty"`
	Expressions []*expr.Document `json:"expressions,omitempty"`
	GroupBy     []*expr.Document `json:"group_by,omitempty"`
	Aggregates  []*expr.Document `json:"aggregates,omitempty"`
	Emit        EmitMode         `json:"emit,omitempty"`
	Destination string           `json:"destination,omitempty"`

	// join
	JoinType   JoinType      `json:"join_type,omitempty"`
	Left       *NodeDocument `json:"left,omitempty"`
	Right      *NodeDocument `json:"right,omitempty"`
	LeftKey    string        `json:"left_key,omitempty"`
	RightKey   string        `json:"right_key,omitempty"`
	LeftAlias  string        `json:"left_alias,omitempty"`
	RightAlias string        `json:"right_alias,omitempty"`

	// aggregate, join
	Window *WindowDocument `json:"window,omitempty"`
}

// WindowDocument is the serialized form of a WindowPolicy, in milliseconds.
type WindowDocument struct {
	Type      WindowType `json:"type"`
	SizeMs    int64      `json:"size_ms,omitempty"`
	AdvanceMs int64      `json:"advance_ms,omitempty"`
	GapMs     int64      `json:"gap_ms,omitempty"`
	GraceMs   int64      `json:"grace_ms,omitempty"`
}

// Node type names used in documents.
const (
	docScan      = "scan"
	docFilter    = "filter"
	docProject   = "project"
	docAggregate = "aggregate"
	docJoin      = "join"
	docSink      = "sink"
)

// ToDocument converts a plan tree to its document form.
func ToDocument(root Node) (*Document, error) {
	if root == nil {
		return nil, configError("", "plan root is required")
	}
	nd, err := Visit[struct{}, *NodeDocument](root, encoder{}, struct{}{})
	if err != nil {
		return nil, err
	}
	return &Document{Version: ir.DocumentVersion, Root: nd}, nil
}

// MarshalDocument encodes a plan tree as indented JSON.
func MarshalDocument(root Node) ([]byte, error) {
	doc, err := ToDocument(root)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return append(data, '\n'), nil
}

// UnmarshalDocument decodes a JSON plan document, re-running every node
// constructor. Unknown fields are rejected.
func UnmarshalDocument(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return FromDocument(&doc)
}

// UnmarshalYAMLDocument decodes a YAML plan document with the same field
// names as the JSON form.
func UnmarshalYAMLDocument(data []byte) (Node, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode plan yaml: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert plan yaml: %w", err)
	}
	return UnmarshalDocument(jsonData)
}

// Fingerprint returns a content hash of the plan's canonical document.
// Equal plans have equal fingerprints regardless of how they were built.
func Fingerprint(root Node) (string, error) {
	data, err := MarshalDocument(root)
	if err != nil {
		return "", err
	}
	return ir.HashJSON(ir.DomainPlan, data)
}

// FromDocument rebuilds a plan tree from its document form.
func FromDocument(doc *Document) (Node, error) {
	if doc == nil {
		return nil, fmt.Errorf("plan document is nil")
	}
	if doc.Version != ir.DocumentVersion {
		return nil, fmt.Errorf("unsupported plan document version %q (want %q)", doc.Version, ir.DocumentVersion)
	}
	return decodeNode(doc.Root)
}

func decodeNode(d *NodeDocument) (Node, error) {
	if d == nil {
		return nil, fmt.Errorf("node document is nil")
	}
	switch d.Type {
	case docScan:
		return NewScanNode(d.ID, d.Stream, d.Schema, d.KeyField, d.OutputType)

	case docFilter:
		source, err := decodeSource(d, d.Source)
		if err != nil {
			return nil, err
		}
		predicate, err := decodeExpr(d.ID, "predicate", d.Predicate)
		if err != nil {
			return nil, err
		}
		return NewFilterNode(d.ID, source, predicate)

	case docProject:
		source, err := decodeSource(d, d.Source)
		if err != nil {
			return nil, err
		}
		exprs, err := decodeExprs(d.ID, "expressions", d.Expressions)
		if err != nil {
			return nil, err
		}
		return NewProjectNode(d.ID, source, d.Schema, exprs)

	case docAggregate:
		source, err := decodeSource(d, d.Source)
		if err != nil {
			return nil, err
		}
		groupBy, err := decodeExprs(d.ID, "group_by", d.GroupBy)
		if err != nil {
			return nil, err
		}
		aggregates, err := decodeExprs(d.ID, "aggregates", d.Aggregates)
		if err != nil {
			return nil, err
		}
		return NewAggregateNode(d.ID, source, d.Schema, groupBy, aggregates, decodeWindow(d.Window), d.Emit)

	case docJoin:
		left, err := decodeSource(d, d.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeSource(d, d.Right)
		if err != nil {
			return nil, err
		}
		return NewJoinNode(d.ID, d.JoinType, left, right, d.LeftKey, d.RightKey, decodeWindow(d.Window), d.LeftAlias, d.RightAlias)

	case docSink:
		source, err := decodeSource(d, d.Source)
		if err != nil {
			return nil, err
		}
		return NewSinkNode(d.ID, source, d.Destination)

	default:
		return nil, configError(d.ID, "unknown node type %q", d.Type)
	}
}

func decodeSource(parent, d *NodeDocument) (Node, error) {
	if d == nil {
		return nil, configError(parent.ID, "%s node is missing a source", parent.Type)
	}
	return decodeNode(d)
}

func decodeExpr(id NodeID, field string, d *expr.Document) (expr.Expr, error) {
	if d == nil {
		return nil, nil
	}
	e, err := expr.FromDocument(d)
	if err != nil {
		return nil, &Error{Code: ErrCodeConfiguration, NodeID: id, Message: field + ": " + err.Error(), Cause: err}
	}
	return e, nil
}

// decodeExprs always returns a non-nil slice: an absent list in a document
// is an empty list.
func decodeExprs(id NodeID, field string, docs []*expr.Document) ([]expr.Expr, error) {
	exprs := make([]expr.Expr, len(docs))
	for i, d := range docs {
		e, err := decodeExpr(id, fmt.Sprintf("%s[%d]", field, i), d)
		if err != nil {
			return nil, err
		}
		exprs[i] = e
	}
	return exprs, nil
}

func decodeWindow(d *WindowDocument) WindowPolicy {
	if d == nil {
		return NoWindow
	}
	return WindowPolicy{
		Type:    d.Type,
		Size:    time.Duration(d.SizeMs) * time.Millisecond,
		Advance: time.Duration(d.AdvanceMs) * time.Millisecond,
		Gap:     time.Duration(d.GapMs) * time.Millisecond,
		Grace:   time.Duration(d.GraceMs) * time.Millisecond,
	}
}

func encodeWindow(w WindowPolicy) *WindowDocument {
	if !w.Windowed() {
		return nil
	}
	return &WindowDocument{
		Type:      w.Type,
		SizeMs:    w.Size.Milliseconds(),
		AdvanceMs: w.Advance.Milliseconds(),
		GapMs:     w.Gap.Milliseconds(),
		GraceMs:   w.Grace.Milliseconds(),
	}
}

func encodeExprs(id NodeID, exprs []expr.Expr) ([]*expr.Document, error) {
	docs := make([]*expr.Document, len(exprs))
	for i, e := range exprs {
		d, err := expr.ToDocument(e)
		if err != nil {
			return nil, fmt.Errorf("node %s expression %d: %w", id, i, err)
		}
		docs[i] = d
	}
	return docs, nil
}

// encoder converts nodes to documents.
type encoder struct{}

func (e encoder) source(n Node) (*NodeDocument, error) {
	return Visit[struct{}, *NodeDocument](n, e, struct{}{})
}

func (encoder) VisitScan(n *ScanNode, _ struct{}) (*NodeDocument, error) {
	return &NodeDocument{
		Type:       docScan,
		ID:         n.ID(),
		Stream:     n.Stream(),
		Schema:     n.Schema(),
		KeyField:   schema.KeyName(n.KeyField()),
		OutputType: n.OutputType(),
	}, nil
}

func (e encoder) VisitFilter(n *FilterNode, _ struct{}) (*NodeDocument, error) {
	source, err := e.source(n.Source())
	if err != nil {
		return nil, err
	}
	predicate, err := expr.ToDocument(n.Predicate())
	if err != nil {
		return nil, fmt.Errorf("node %s predicate: %w", n.ID(), err)
	}
	return &NodeDocument{Type: docFilter, ID: n.ID(), Source: source, Predicate: predicate}, nil
}

func (e encoder) VisitProject(n *ProjectNode, _ struct{}) (*NodeDocument, error) {
	source, err := e.source(n.Source())
	if err != nil {
		return nil, err
	}
	exprs, err := encodeExprs(n.ID(), n.expressions)
	if err != nil {
		return nil, err
	}
	return &NodeDocument{Type: docProject, ID: n.ID(), Source: source, Schema: n.Schema(), Expressions: exprs}, nil
}

func (e encoder) VisitAggregate(n *AggregateNode, _ struct{}) (*NodeDocument, error) {
	source, err := e.source(n.Source())
	if err != nil {
		return nil, err
	}
	groupBy, err := encodeExprs(n.ID(), n.groupBy)
	if err != nil {
		return nil, err
	}
	aggregates, err := encodeExprs(n.ID(), n.aggregates)
	if err != nil {
		return nil, err
	}
	return &NodeDocument{
		Type:       docAggregate,
		ID:         n.ID(),
		Source:     source,
		Schema:     n.Schema(),
		GroupBy:    groupBy,
		Aggregates: aggregates,
		Window:     encodeWindow(n.Window()),
		Emit:       n.Emit(),
	}, nil
}

func (e encoder) VisitJoin(n *JoinNode, _ struct{}) (*NodeDocument, error) {
	left, err := e.source(n.Left())
	if err != nil {
		return nil, err
	}
	right, err := e.source(n.Right())
	if err != nil {
		return nil, err
	}
	return &NodeDocument{
		Type:       docJoin,
		ID:         n.ID(),
		JoinType:   n.JoinType(),
		Left:       left,
		Right:      right,
		LeftKey:    n.LeftKey(),
		RightKey:   n.RightKey(),
		LeftAlias:  n.LeftAlias(),
		RightAlias: n.RightAlias(),
		Window:     encodeWindow(n.Window()),
	}, nil
}

func (e encoder) VisitSink(n *SinkNode, _ struct{}) (*NodeDocument, error) {
	source, err := e.source(n.Source())
	if err != nil {
		return nil, err
	}
	return &NodeDocument{Type: docSink, ID: n.ID(), Source: source, Destination: n.Destination()}, nil
}
