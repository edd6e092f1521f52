package plan

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/schema"
)

var errBuilder = errors.New("builder exploded")

// recordingBuilder records each call as a line of text and hands out
// sequential handles h1, h2, ...
type recordingBuilder struct {
	calls  []string
	specs  []any
	next   int
	failOn string
}

func (b *recordingBuilder) record(op, format string, args ...any) (Handle, error) {
	b.calls = append(b.calls, op+" "+fmt.Sprintf(format, args...))
	if op == b.failOn {
		return nil, errBuilder
	}
	b.next++
	return fmt.Sprintf("h%d", b.next), nil
}

func (b *recordingBuilder) Scan(stream string) (Handle, error) {
	return b.record("scan", "%s", stream)
}

func (b *recordingBuilder) Filter(h Handle, predicate expr.Expr) (Handle, error) {
	return b.record("filter", "%v %s", h, predicate)
}

func (b *recordingBuilder) Project(h Handle, selects []expr.SelectExpression) (Handle, error) {
	parts := make([]string, len(selects))
	for i, s := range selects {
		parts[i] = s.String()
	}
	return b.record("project", "%v %s", h, strings.Join(parts, ", "))
}

func (b *recordingBuilder) Repartition(h Handle, keys []expr.Expr, partitions int) (Handle, error) {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return b.record("repartition", "%v by %s into %d", h, strings.Join(parts, ", "), partitions)
}

func (b *recordingBuilder) Aggregate(h Handle, spec AggregateSpec) (Handle, error) {
	b.specs = append(b.specs, spec)
	return b.record("aggregate", "%v store=%s", h, spec.StoreName)
}

func (b *recordingBuilder) Join(left, right Handle, spec JoinSpec) (Handle, error) {
	b.specs = append(b.specs, spec)
	return b.record("join", "%v %v %s %s store=%s", left, right, spec.Type, spec.Condition, spec.StoreName)
}

func (b *recordingBuilder) Sink(h Handle, destination string) error {
	_, err := b.record("sink", "%v %s", h, destination)
	return err
}

// stubOracle answers from a fixed map.
type stubOracle map[string]int

func (o stubOracle) PartitionCount(stream string) (int, error) {
	n, ok := o[stream]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrStreamNotFound, stream)
	}
	return n, nil
}

// stubCatalog holds destinations in a map and records creations.
type stubCatalog struct {
	destinations map[string]*schema.Schema
	created      []string
	err          error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{destinations: make(map[string]*schema.Schema)}
}

func (c *stubCatalog) Destination(name string) (*schema.Schema, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	s, ok := c.destinations[name]
	return s, ok, nil
}

func (c *stubCatalog) CreateDestination(name string, s *schema.Schema, partitions int) error {
	c.destinations[name] = s
	c.created = append(c.created, fmt.Sprintf("%s %s partitions=%d", name, s, partitions))
	return nil
}

var (
	ordersSchema = schema.MustNew(
		schema.Field{Name: "id", Type: schema.Int},
		schema.Field{Name: "customer_id", Type: schema.Int},
		schema.Field{Name: "amount", Type: schema.Double},
		schema.Field{Name: "status", Type: schema.String},
	)
	customersSchema = schema.MustNew(
		schema.Field{Name: "id", Type: schema.Int},
		schema.Field{Name: "name", Type: schema.String},
		schema.Field{Name: "region", Type: schema.String},
	)
	revenueSchema = schema.MustNew(
		schema.Field{Name: "region", Type: schema.String},
		schema.Field{Name: "total", Type: schema.Double},
		schema.Field{Name: "orders", Type: schema.Bigint},
	)
)

func scanOrders(t *testing.T) *ScanNode {
	t.Helper()
	n, err := NewScanNode("scan-orders", "orders", ordersSchema, "id", Stream)
	require.NoError(t, err)
	return n
}

func scanCustomers(t *testing.T) *ScanNode {
	t.Helper()
	n, err := NewScanNode("scan-customers", "customers", customersSchema, "id", Table)
	require.NoError(t, err)
	return n
}

// revenuePlan builds:
//
//	sink <- aggregate by region <- join customers <- filter shipped <- scan orders
func revenuePlan(t *testing.T) *SinkNode {
	t.Helper()

	filter, err := NewFilterNode("filter-shipped", scanOrders(t), expr.Binary{
		Op:    expr.OpEq,
		Left:  expr.Col("status"),
		Right: expr.Literal{Value: ir.IRString("shipped")},
	})
	require.NoError(t, err)

	join, err := NewJoinNode("join-customers", JoinInner, filter, scanCustomers(t),
		"customer_id", "id", NoWindow, "o", "c")
	require.NoError(t, err)

	agg, err := NewAggregateNode("revenue-by-region", join, revenueSchema,
		[]expr.Expr{expr.Col("c.region")},
		[]expr.Expr{
			expr.Call{Name: "SUM", Args: []expr.Expr{expr.Col("o.amount")}},
			expr.Call{Name: "COUNT"},
		},
		Tumbling(time.Hour), EmitChanges)
	require.NoError(t, err)

	sink, err := NewSinkNode("sink-revenue", agg, "revenue_by_region")
	require.NoError(t, err)
	return sink
}

// exprs returns column references for names.
func exprs(names ...string) []expr.Expr {
	out := make([]expr.Expr, len(names))
	for i, n := range names {
		out[i] = expr.Col(n)
	}
	return out
}

func revenueOracle() stubOracle {
	return stubOracle{"orders": 6, "customers": 4}
}
