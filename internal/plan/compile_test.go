package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_RevenuePlan(t *testing.T) {
	catalog := newStubCatalog()
	b := &recordingBuilder{}
	cc := NewCompileContext(revenueOracle(), catalog)
	cfg := Config{Repartition: RepartitionAllow, StateStorePrefix: "app-"}

	h, err := Compile(revenuePlan(t), b, cfg, cc)
	require.NoError(t, err)

	assert.Equal(t, "h7", h)
	assert.Equal(t, []string{
		"scan orders",
		"filter h1 (status = 'shipped')",
		"scan customers",
		"repartition h2 by customer_id into 4",
		"join h4 h3 INNER (o.customer_id = c.id) store=app-join-customers-Join-store",
		"repartition h5 by c.region into 4",
		"aggregate h6 store=app-revenue-by-region-Aggregate-store",
		"sink h7 revenue_by_region",
	}, b.calls)
	assert.Equal(t, []string{"revenue_by_region " + revenueSchema.String() + " partitions=4"}, catalog.created)

	for _, id := range []NodeID{"scan-orders", "filter-shipped", "scan-customers", "join-customers", "revenue-by-region", "sink-revenue"} {
		assert.Equal(t, StateCompiled, cc.State(id), id)
	}
}

func TestCompile_NodeCompiledTwiceInOnePass(t *testing.T) {
	scan := scanOrders(t)
	cc := NewCompileContext(stubOracle{"orders": 1}, nil)
	b := &recordingBuilder{}

	_, err := scan.Compile(b, DefaultConfig(), cc)
	require.NoError(t, err)
	assert.Equal(t, StateCompiled, cc.State(scan.ID()))

	_, err = scan.Compile(b, DefaultConfig(), cc)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, []string{"scan orders"}, b.calls)

	// A fresh context compiles the same immutable node again.
	_, err = scan.Compile(b, DefaultConfig(), NewCompileContext(stubOracle{"orders": 1}, nil))
	require.NoError(t, err)
}

func TestCompile_DuplicateNodeIDs(t *testing.T) {
	left, err := NewScanNode("scan", "orders", ordersSchema, "customer_id", Stream)
	require.NoError(t, err)
	right, err := NewScanNode("scan", "customers", customersSchema, "id", Table)
	require.NoError(t, err)
	join, err := NewJoinNode("join", JoinInner, left, right, "customer_id", "id", NoWindow, "o", "c")
	require.NoError(t, err)

	b := &recordingBuilder{}
	_, err = Compile(join, b, DefaultConfig(), NewCompileContext(stubOracle{"orders": 1, "customers": 1}, nil))
	assert.True(t, IsConfigurationError(err))
	assert.ErrorContains(t, err, "more than once")
	assert.Empty(t, b.calls)
}

func TestCompile_LifecycleStates(t *testing.T) {
	cc := NewCompileContext(stubOracle{}, nil)
	assert.Equal(t, StateConstructed, cc.State("anything"))

	plan := revenuePlan(t)
	cc.markValidated(plan)
	assert.Equal(t, StateSchemaValidated, cc.State("scan-customers"))

	assert.Equal(t, "compiling", StateCompiling.String())
}

func TestCompile_RejectsBadInput(t *testing.T) {
	scan := scanOrders(t)
	cc := NewCompileContext(stubOracle{"orders": 1}, nil)

	_, err := Compile(nil, &recordingBuilder{}, DefaultConfig(), cc)
	assert.True(t, IsConfigurationError(err))

	_, err = Compile(scan, nil, DefaultConfig(), cc)
	assert.True(t, IsConfigurationError(err))

	_, err = Compile(scan, &recordingBuilder{}, Config{}, cc)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorContains(t, err, "repartition policy")

	_, err = Compile(scan, &recordingBuilder{}, DefaultConfig(), nil)
	assert.True(t, IsConfigurationError(err))
}

func TestCompile_SinkWithoutCatalog(t *testing.T) {
	_, err := Compile(revenuePlan(t), &recordingBuilder{}, DefaultConfig(), NewCompileContext(revenueOracle(), nil))
	assert.True(t, IsConfigurationError(err))
	assert.ErrorContains(t, err, "destination catalog")
}

func TestCompile_UnknownStream(t *testing.T) {
	b := &recordingBuilder{}
	_, err := Compile(revenuePlan(t), b, DefaultConfig(), NewCompileContext(stubOracle{"orders": 6}, newStubCatalog()))
	assert.ErrorIs(t, err, ErrStreamNotFound)
	assert.ErrorContains(t, err, "customers")
}

func TestStateStoreName(t *testing.T) {
	assert.Equal(t, "agg-Aggregate-store", StateStoreName(DefaultConfig(), "agg", "Aggregate"))
	assert.Equal(t, "q1_agg-Aggregate-store", StateStoreName(Config{StateStorePrefix: "q1_"}, "agg", "Aggregate"))
}

func TestValidate_Warnings(t *testing.T) {
	result, err := Validate(revenuePlan(t))
	require.NoError(t, err)
	assert.Equal(t, []string{
		`revenue-by-region: source keyed by "o.customer_id" is repartitioned by c.region`,
		`join-customers: left source keyed by "id" is repartitioned by "customer_id"`,
	}, result.Warnings)

	result, err = Validate(scanOrders(t))
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
}

func TestValidate_ProjectDroppingKey(t *testing.T) {
	project, err := NewProjectNode("project", scanOrders(t), amountOnly(), exprs("amount"))
	require.NoError(t, err)

	result, err := Validate(project)
	require.NoError(t, err)
	assert.Equal(t, []string{`project: output drops key field "id"; records stay keyed by it`}, result.Warnings)
}

func TestKindAndWalk(t *testing.T) {
	var kinds []string
	Walk(revenuePlan(t), func(n Node) bool {
		kinds = append(kinds, Kind(n)+":"+string(n.ID()))
		return true
	})
	assert.Equal(t, []string{
		"SINK:sink-revenue",
		"AGGREGATE:revenue-by-region",
		"JOIN:join-customers",
		"FILTER:filter-shipped",
		"SCAN:scan-orders",
		"SCAN:scan-customers",
	}, kinds)
}

func TestWindowPolicy(t *testing.T) {
	assert.NoError(t, NoWindow.Validate())
	assert.NoError(t, WindowPolicy{}.Validate())
	assert.False(t, WindowPolicy{}.Windowed())
	assert.NoError(t, Session(time.Minute).Validate())
	assert.Error(t, Session(0).Validate())
	assert.Error(t, Tumbling(-time.Minute).Validate())
	assert.Error(t, WindowPolicy{Type: "SLIDING", Size: time.Minute}.Validate())
	assert.Error(t, NoWindow.WithGrace(time.Minute).Validate())
	assert.Error(t, Tumbling(time.Minute).WithGrace(-1).Validate())

	assert.Equal(t, "NONE", NoWindow.String())
	assert.Equal(t, "HOPPING(5m0s, 1m0s) GRACE 30s", Hopping(5*time.Minute, time.Minute).WithGrace(time.Minute/2).String())
	assert.Equal(t, "SESSION(1m0s)", Session(time.Minute).String())
}
