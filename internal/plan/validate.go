package plan

import (
	"fmt"

	"github.com/roach88/streamplan/internal/schema"
)

// ValidationResult holds the advisory findings of Validate.
type ValidationResult struct {
	// Warnings lists plan properties worth knowing about that do not prevent
	// compilation, such as implicit repartitions.
	Warnings []string
}

// Validate checks tree-level invariants that no single constructor can see:
// node ids are unique, every key a node derives itself names a field of its
// own schema, and pass-through nodes keep their source's key.
//
// Validate is a pure function with no side effects.
func Validate(root Node) (*ValidationResult, error) {
	if root == nil {
		return nil, configError("", "plan root is required")
	}
	v := &validator{seen: make(map[NodeID]bool)}
	if _, err := Visit[*validator, struct{}](root, v, v); err != nil {
		return nil, err
	}
	return &ValidationResult{Warnings: v.warnings}, nil
}

// validator accumulates warnings during traversal.
type validator struct {
	seen     map[NodeID]bool
	warnings []string
}

func (v *validator) addWarning(id NodeID, format string, args ...any) {
	v.warnings = append(v.warnings, string(id)+": "+fmt.Sprintf(format, args...))
}

// enter checks the invariants shared by all nodes and then validates the
// sources.
func (v *validator) enter(n Node, checkKey bool) error {
	if v.seen[n.ID()] {
		return configError(n.ID(), "node id is used more than once in the plan")
	}
	v.seen[n.ID()] = true

	if key := n.KeyField(); checkKey && key != nil {
		f, ok := n.Schema().Field(key.Name)
		if !ok || f.Type != key.Type {
			return queryError(n.ID(), "key field %s is not part of the output schema %s", key, n.Schema())
		}
	}

	for _, s := range n.Sources() {
		if _, err := Visit[*validator, struct{}](s, v, v); err != nil {
			return err
		}
	}
	return nil
}

// passThrough validates a node whose key is its source's key. The key may be
// absent from the schema when a projection below dropped it.
func (v *validator) passThrough(n Node, source Node) error {
	if !schema.SameKey(n.KeyField(), source.KeyField()) {
		return queryError(n.ID(), "key field %s differs from source key %s", quoteKey(n.KeyField()), quoteKey(source.KeyField()))
	}
	return v.enter(n, false)
}

func (v *validator) VisitScan(n *ScanNode, _ *validator) (struct{}, error) {
	return struct{}{}, v.enter(n, true)
}

func (v *validator) VisitFilter(n *FilterNode, _ *validator) (struct{}, error) {
	return struct{}{}, v.passThrough(n, n.Source())
}

func (v *validator) VisitProject(n *ProjectNode, _ *validator) (struct{}, error) {
	if key := n.KeyField(); key != nil {
		if _, ok := n.Schema().Field(key.Name); !ok {
			v.addWarning(n.ID(), "output drops key field %q; records stay keyed by it", key.Name)
		}
	}
	return struct{}{}, v.passThrough(n, n.Source())
}

func (v *validator) VisitAggregate(n *AggregateNode, _ *validator) (struct{}, error) {
	if n.NeedsRepartition() {
		v.addWarning(n.ID(), "source keyed by %s is repartitioned by %s", quoteKey(n.Source().KeyField()), groupKeyString(n.groupBy))
	}
	return struct{}{}, v.enter(n, true)
}

func (v *validator) VisitJoin(n *JoinNode, _ *validator) (struct{}, error) {
	if !n.Left().keyedBy(n.LeftKey()) && n.Left().OutputType() == Stream {
		v.addWarning(n.ID(), "left source keyed by %s is repartitioned by %q", quoteKey(n.Left().KeyField()), n.LeftKey())
	}
	if !n.Right().keyedBy(n.RightKey()) && n.Right().OutputType() == Stream {
		v.addWarning(n.ID(), "right source keyed by %s is repartitioned by %q", quoteKey(n.Right().KeyField()), n.RightKey())
	}
	return struct{}{}, v.enter(n, true)
}

func (v *validator) VisitSink(n *SinkNode, _ *validator) (struct{}, error) {
	return struct{}{}, v.passThrough(n, n.Source())
}
