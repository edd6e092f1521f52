package plan

import (
	"github.com/roach88/streamplan/internal/schema"
)

// ScanNode reads a named stream or table. Its schema and key field come from
// catalog metadata supplied by the caller.
type ScanNode struct {
	base
	stream string
}

// NewScanNode creates a scan of stream. keyField names the field the stream
// is keyed by, or is empty for an unkeyed stream. An empty outputType means
// STREAM.
func NewScanNode(id NodeID, stream string, s *schema.Schema, keyField string, outputType OutputType) (*ScanNode, error) {
	if err := checkHeader(id); err != nil {
		return nil, err
	}
	if stream == "" {
		return nil, configError(id, "stream name is required")
	}
	if s == nil {
		return nil, configError(id, "schema is required")
	}
	switch outputType {
	case "":
		outputType = Stream
	case Stream, Table:
	default:
		return nil, configError(id, "unknown output type %q", outputType)
	}

	key, err := schema.KeyField(s, keyField)
	if err != nil {
		return nil, &Error{Code: ErrCodeQueryDefinition, NodeID: id, Message: err.Error(), Cause: err}
	}

	return &ScanNode{
		base: base{
			id:         id,
			schema:     s,
			keyField:   key,
			outputType: outputType,
		},
		stream: stream,
	}, nil
}

// Stream returns the name of the scanned stream.
func (n *ScanNode) Stream() string { return n.stream }

func (n *ScanNode) Sources() []Node { return nil }

// Partitions asks the oracle for the stream's partition count. Oracle errors
// are returned unchanged.
func (n *ScanNode) Partitions(oracle PartitionOracle) (int, error) {
	return oracle.PartitionCount(n.stream)
}

func (n *ScanNode) Accept(v Visitor, ctx any) (any, error) {
	return v.VisitScan(n, ctx)
}

func (n *ScanNode) Compile(b Builder, cfg Config, cc *CompileContext) (Handle, error) {
	return cc.compile(n, func() (Handle, error) {
		return b.Scan(n.stream)
	})
}
