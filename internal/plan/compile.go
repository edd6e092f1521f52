package plan

import (
	"fmt"
	"log/slog"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/schema"
)

// Handle is an opaque reference to a compiled dataflow, owned by a Builder.
type Handle any

// PartitionOracle reports partition counts of named streams.
// Unknown streams yield an error wrapping ErrStreamNotFound.
type PartitionOracle interface {
	PartitionCount(stream string) (int, error)
}

// DestinationCatalog resolves and creates sink destinations.
type DestinationCatalog interface {
	// Destination returns the declared schema of an existing destination.
	// The bool is false when the destination does not exist.
	Destination(name string) (*schema.Schema, bool, error)

	CreateDestination(name string, s *schema.Schema, partitions int) error
}

// Builder applies operators to dataflow handles. Errors it returns are
// surfaced by Compile unchanged.
type Builder interface {
	Scan(stream string) (Handle, error)
	Filter(h Handle, predicate expr.Expr) (Handle, error)
	Project(h Handle, selects []expr.SelectExpression) (Handle, error)
	Repartition(h Handle, keys []expr.Expr, partitions int) (Handle, error)
	Aggregate(h Handle, spec AggregateSpec) (Handle, error)
	Join(left, right Handle, spec JoinSpec) (Handle, error)
	Sink(h Handle, destination string) error
}

// AggregateSpec describes a group-by/aggregate step.
type AggregateSpec struct {
	GroupBy    []expr.SelectExpression
	Aggregates []expr.SelectExpression
	Window     WindowPolicy
	Emit       EmitMode
	StoreName  string
}

// JoinSpec describes a join step. Condition is LeftKey = RightKey.
type JoinSpec struct {
	Type      JoinType
	LeftKey   string
	RightKey  string
	Condition expr.Expr
	Window    WindowPolicy
	StoreName string
}

// RepartitionPolicy says whether compile may insert repartition steps.
type RepartitionPolicy string

const (
	RepartitionAllow RepartitionPolicy = "allow"
	RepartitionDeny  RepartitionPolicy = "deny"
)

// Config controls compilation.
type Config struct {
	// Repartition governs whether mismatched keys or partition counts are
	// fixed with a repartition step or rejected with a co-partitioning error.
	Repartition RepartitionPolicy `json:"repartition" yaml:"repartition" mapstructure:"repartition"`

	// StateStorePrefix is prepended to every state store name.
	StateStorePrefix string `json:"state_store_prefix" yaml:"state_store_prefix" mapstructure:"state_store_prefix"`
}

// DefaultConfig allows repartitioning and uses no store prefix.
func DefaultConfig() Config {
	return Config{Repartition: RepartitionAllow}
}

// Validate checks the repartition policy is one of allow or deny.
func (c Config) Validate() error {
	switch c.Repartition {
	case RepartitionAllow, RepartitionDeny:
		return nil
	default:
		return configError("", "repartition policy must be %q or %q, got %q",
			RepartitionAllow, RepartitionDeny, c.Repartition)
	}
}

func (c Config) allowRepartition() bool {
	return c.Repartition == RepartitionAllow
}

// StateStoreName derives the state store of a stateful operator from its node
// id, so a restarted query reattaches to the same store.
func StateStoreName(cfg Config, id NodeID, operator string) string {
	return fmt.Sprintf("%s%s-%s-store", cfg.StateStorePrefix, id, operator)
}

// NodeState is a node's position in the compile lifecycle.
type NodeState int

const (
	StateConstructed NodeState = iota
	StateSchemaValidated
	StateCompiling
	StateCompiled
)

func (s NodeState) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateSchemaValidated:
		return "schema_validated"
	case StateCompiling:
		return "compiling"
	case StateCompiled:
		return "compiled"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

// CompileContext carries the collaborators of one compile pass and tracks
// the lifecycle state of each node. Use a fresh context per pass.
type CompileContext struct {
	oracle  PartitionOracle
	catalog DestinationCatalog
	logger  *slog.Logger
	states  map[NodeID]NodeState
}

// ContextOption configures a CompileContext.
type ContextOption func(*CompileContext)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ContextOption {
	return func(cc *CompileContext) {
		cc.logger = l
	}
}

// NewCompileContext creates a context for one compile pass. catalog may be
// nil for plans without sinks.
func NewCompileContext(oracle PartitionOracle, catalog DestinationCatalog, opts ...ContextOption) *CompileContext {
	cc := &CompileContext{
		oracle:  oracle,
		catalog: catalog,
		logger:  slog.Default(),
		states:  make(map[NodeID]NodeState),
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// State returns the lifecycle state of the node with the given id.
func (cc *CompileContext) State(id NodeID) NodeState {
	return cc.states[id]
}

func (cc *CompileContext) markValidated(root Node) {
	Walk(root, func(n Node) bool {
		if cc.states[n.ID()] == StateConstructed {
			cc.states[n.ID()] = StateSchemaValidated
		}
		return true
	})
}

func (cc *CompileContext) partitions(n Node) (int, error) {
	if cc.oracle == nil {
		return 0, configError(n.ID(), "no partition oracle configured")
	}
	return n.Partitions(cc.oracle)
}

// compile runs fn for n, guarding the lifecycle. A node id that is already
// compiling or compiled in this pass means the tree shares or duplicates a
// node.
func (cc *CompileContext) compile(n Node, fn func() (Handle, error)) (Handle, error) {
	id := n.ID()
	switch cc.states[id] {
	case StateCompiling, StateCompiled:
		return nil, configError(id, "node compiled twice in one pass (state %s)", cc.states[id])
	}
	cc.states[id] = StateCompiling
	cc.logger.Debug("compiling node", "node", id, "kind", Kind(n))

	h, err := fn()
	if err != nil {
		return nil, err
	}
	cc.states[id] = StateCompiled
	return h, nil
}

// Compile validates the plan rooted at root and compiles it with b.
func Compile(root Node, b Builder, cfg Config, cc *CompileContext) (Handle, error) {
	if root == nil {
		return nil, configError("", "plan root is required")
	}
	if b == nil {
		return nil, configError(root.ID(), "builder is required")
	}
	if cc == nil {
		return nil, configError(root.ID(), "compile context is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	result, err := Validate(root)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		cc.logger.Warn("plan warning", "root", root.ID(), "warning", w)
	}
	cc.markValidated(root)

	h, err := root.Compile(b, cfg, cc)
	if err != nil {
		cc.logger.Debug("compile failed", "root", root.ID(), "error", err)
		return nil, err
	}
	cc.logger.Info("compiled plan", "root", root.ID(), "nodes", len(cc.states))
	return h, nil
}
