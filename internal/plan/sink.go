package plan

// SinkNode writes its source to a named destination stream. A sink is
// always the root of a plan.
type SinkNode struct {
	base
	singleSource
	destination string
}

// NewSinkNode creates a sink of source into destination.
func NewSinkNode(id NodeID, source Node, destination string) (*SinkNode, error) {
	if err := checkHeader(id); err != nil {
		return nil, err
	}
	if err := checkSource(id, "source", source); err != nil {
		return nil, err
	}
	if destination == "" {
		return nil, configError(id, "destination is required")
	}

	return &SinkNode{
		base: base{
			id:         id,
			schema:     source.Schema(),
			keyField:   source.KeyField(),
			outputType: source.OutputType(),
			keyRebound: rebound(source),
		},
		singleSource: singleSource{source: source},
		destination:  destination,
	}, nil
}

// Destination returns the destination stream name.
func (n *SinkNode) Destination() string { return n.destination }

func (n *SinkNode) Accept(v Visitor, ctx any) (any, error) {
	return v.VisitSink(n, ctx)
}

// Compile compiles the source and writes it to the destination. A
// destination that already exists must declare exactly this node's schema;
// a missing one is created with it. The returned handle is the source's.
func (n *SinkNode) Compile(b Builder, cfg Config, cc *CompileContext) (Handle, error) {
	return cc.compile(n, func() (Handle, error) {
		h, err := n.source.Compile(b, cfg, cc)
		if err != nil {
			return nil, err
		}
		if cc.catalog == nil {
			return nil, configError(n.id, "no destination catalog configured")
		}

		existing, ok, err := cc.catalog.Destination(n.destination)
		if err != nil {
			return nil, err
		}
		if ok {
			if !existing.Equal(n.schema) {
				return nil, &Error{
					Code:    ErrCodeQueryDefinition,
					NodeID:  n.id,
					Message: "destination " + n.destination + " declares " + existing.String() + " but the query produces " + n.schema.String(),
					Details: map[string]string{
						"expected": existing.String(),
						"actual":   n.schema.String(),
					},
				}
			}
		} else {
			partitions, err := cc.partitions(n.source)
			if err != nil {
				return nil, err
			}
			if err := cc.catalog.CreateDestination(n.destination, n.schema, partitions); err != nil {
				return nil, err
			}
			cc.logger.Info("created destination", "node", n.id, "destination", n.destination, "partitions", partitions)
		}

		if err := b.Sink(h, n.destination); err != nil {
			return nil, err
		}
		return h, nil
	})
}
