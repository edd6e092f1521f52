package expr

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/schema"
)

// Document kinds.
const (
	KindColumn  = "column"
	KindLiteral = "literal"
	KindNull    = "null"
	KindArray   = "array"
	KindBinary  = "binary"
	KindCall    = "call"
	KindCast    = "cast"
)

// Document is the serialized form of an Expr. Exactly the fields of the
// variant named by Kind are set.
//
// Null literals get their own kind because canonical JSON has no null. For
// the same reason array literals list one document per element.
type Document struct {
	Kind    string          `json:"kind"`
	Name    string          `json:"name,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Op      BinaryOp        `json:"op,omitempty"`
	Left    *Document       `json:"left,omitempty"`
	Right   *Document       `json:"right,omitempty"`
	Args    []*Document     `json:"args,omitempty"`
	Operand *Document       `json:"operand,omitempty"`
	Type    schema.Type     `json:"type,omitempty"`

	Elements []*Document `json:"elements,omitempty"`
}

// ToDocument converts an expression tree to its document form.
func ToDocument(e Expr) (*Document, error) {
	switch node := e.(type) {
	case ColumnRef:
		return &Document{Kind: KindColumn, Name: node.Name}, nil

	case Literal:
		if _, ok := node.Value.(ir.IRNull); ok {
			return &Document{Kind: KindNull}, nil
		}
		if node.Value == nil {
			return nil, fmt.Errorf("literal without value")
		}
		if arr, ok := node.Value.(ir.IRArray); ok {
			doc := &Document{Kind: KindArray, Elements: make([]*Document, len(arr))}
			for i, v := range arr {
				elem, err := ToDocument(Literal{Value: v})
				if err != nil {
					return nil, fmt.Errorf("array element %d: %w", i, err)
				}
				doc.Elements[i] = elem
			}
			return doc, nil
		}
		data, err := ir.MarshalIRValue(node.Value)
		if err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		return &Document{Kind: KindLiteral, Value: data}, nil

	case Binary:
		left, err := ToDocument(node.Left)
		if err != nil {
			return nil, fmt.Errorf("left of %s: %w", node.Op, err)
		}
		right, err := ToDocument(node.Right)
		if err != nil {
			return nil, fmt.Errorf("right of %s: %w", node.Op, err)
		}
		return &Document{Kind: KindBinary, Op: node.Op, Left: left, Right: right}, nil

	case Call:
		doc := &Document{Kind: KindCall, Name: node.Name}
		for i, a := range node.Args {
			arg, err := ToDocument(a)
			if err != nil {
				return nil, fmt.Errorf("%s arg %d: %w", node.Name, i, err)
			}
			doc.Args = append(doc.Args, arg)
		}
		return doc, nil

	case Cast:
		operand, err := ToDocument(node.Operand)
		if err != nil {
			return nil, fmt.Errorf("cast operand: %w", err)
		}
		return &Document{Kind: KindCast, Operand: operand, Type: node.Type}, nil

	case nil:
		return nil, fmt.Errorf("expression is nil")

	default:
		return nil, fmt.Errorf("unsupported expression type: %T", e)
	}
}

// FromDocument rebuilds an expression tree from its document form.
func FromDocument(doc *Document) (Expr, error) {
	if doc == nil {
		return nil, fmt.Errorf("expression document is nil")
	}
	switch doc.Kind {
	case KindColumn:
		if doc.Name == "" {
			return nil, fmt.Errorf("column: name is required")
		}
		return ColumnRef{Name: doc.Name}, nil

	case KindNull:
		return Literal{Value: ir.IRNull{}}, nil

	case KindLiteral:
		if len(bytes.TrimSpace(doc.Value)) == 0 {
			return nil, fmt.Errorf("literal: value is required")
		}
		v, err := ir.UnmarshalIRValue(doc.Value)
		if err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		return Literal{Value: v}, nil

	case KindArray:
		arr := make(ir.IRArray, len(doc.Elements))
		for i, d := range doc.Elements {
			elem, err := FromDocument(d)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			lit, ok := elem.(Literal)
			if !ok {
				return nil, fmt.Errorf("array element %d: %s is not a literal", i, d.Kind)
			}
			arr[i] = lit.Value
		}
		return Literal{Value: arr}, nil

	case KindBinary:
		if !ValidOps[doc.Op] {
			return nil, fmt.Errorf("binary: unknown operator %q", doc.Op)
		}
		left, err := FromDocument(doc.Left)
		if err != nil {
			return nil, fmt.Errorf("left of %s: %w", doc.Op, err)
		}
		right, err := FromDocument(doc.Right)
		if err != nil {
			return nil, fmt.Errorf("right of %s: %w", doc.Op, err)
		}
		return Binary{Op: doc.Op, Left: left, Right: right}, nil

	case KindCall:
		if doc.Name == "" {
			return nil, fmt.Errorf("call: name is required")
		}
		var args []Expr
		for i, a := range doc.Args {
			arg, err := FromDocument(a)
			if err != nil {
				return nil, fmt.Errorf("%s arg %d: %w", doc.Name, i, err)
			}
			args = append(args, arg)
		}
		return Call{Name: doc.Name, Args: args}, nil

	case KindCast:
		if !schema.ValidTypes[doc.Type] {
			return nil, fmt.Errorf("cast: unknown type %q", doc.Type)
		}
		operand, err := FromDocument(doc.Operand)
		if err != nil {
			return nil, fmt.Errorf("cast operand: %w", err)
		}
		return Cast{Operand: operand, Type: doc.Type}, nil

	default:
		return nil, fmt.Errorf("unknown expression kind %q", doc.Kind)
	}
}

// Marshal encodes e as JSON.
func Marshal(e Expr) ([]byte, error) {
	doc, err := ToDocument(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Unmarshal decodes JSON produced by Marshal.
func Unmarshal(data []byte) (Expr, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}
	return FromDocument(&doc)
}
