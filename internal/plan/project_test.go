package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/schema"
)

func amountOnly() *schema.Schema {
	return schema.MustNew(schema.Field{Name: "amount", Type: schema.Double})
}

func TestProject_KeepsSourceKeyWhenKeyDropped(t *testing.T) {
	scan := scanOrders(t)
	project, err := NewProjectNode("project", scan, amountOnly(), []expr.Expr{expr.Col("amount")})
	require.NoError(t, err)

	require.NotNil(t, project.KeyField())
	assert.Same(t, scan.KeyField(), project.KeyField())
	assert.Equal(t, "id", project.KeyField().Name)
	assert.Equal(t, -1, project.Schema().Index("id"))

	oracle := stubOracle{"orders": 4}
	got, err := project.Partitions(oracle)
	require.NoError(t, err)
	want, err := scan.Partitions(oracle)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
	assert.Equal(t, want, got)
}

func TestProject_SelectExpressionsLineUpWithSchema(t *testing.T) {
	out := schema.MustNew(
		schema.Field{Name: "order_id", Type: schema.Int},
		schema.Field{Name: "gross", Type: schema.Double},
		schema.Field{Name: "label", Type: schema.String},
	)
	exprs := []expr.Expr{
		expr.Col("id"),
		expr.Binary{Op: expr.OpMul, Left: expr.Col("amount"), Right: expr.Cast{Operand: expr.Literal{Value: ir.IRString("1.2")}, Type: schema.Double}},
		expr.Call{Name: "UCASE", Args: []expr.Expr{expr.Col("status")}},
	}
	project, err := NewProjectNode("project", scanOrders(t), out, exprs)
	require.NoError(t, err)

	selects := project.SelectExpressions()
	require.Len(t, selects, out.Len())
	for i, s := range selects {
		assert.Equal(t, out.FieldAt(i).Name, s.Name)
		assert.True(t, expr.Equal(exprs[i], s.Expr))
	}
	assert.Equal(t, Stream, project.OutputType())
}

func TestProject_ArityMismatchFailsAtConstruction(t *testing.T) {
	two := schema.MustNew(
		schema.Field{Name: "id", Type: schema.Int},
		schema.Field{Name: "amount", Type: schema.Double},
	)
	_, err := NewProjectNode("project", scanOrders(t), two,
		[]expr.Expr{expr.Col("id"), expr.Col("amount"), expr.Col("status")})

	require.Error(t, err)
	assert.True(t, IsQueryDefinitionError(err))
	assert.False(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "2")
	assert.Contains(t, err.Error(), "3")

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, NodeID("project"), pe.NodeID)
	assert.Equal(t, map[string]string{"expected": "2", "actual": "3"}, pe.Details)
}

func TestProject_MissingInputsAreConfigurationErrors(t *testing.T) {
	scan := scanOrders(t)
	tests := []struct {
		name   string
		source Node
		schema *schema.Schema
		exprs  []expr.Expr
	}{
		{"nil source", nil, amountOnly(), []expr.Expr{expr.Col("amount")}},
		{"nil schema", scan, nil, []expr.Expr{expr.Col("amount")}},
		{"nil expressions", scan, amountOnly(), nil},
		{"nil expression", scan, amountOnly(), []expr.Expr{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProjectNode("p1", tt.source, tt.schema, tt.exprs)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Contains(t, err.Error(), "node=p1")
		})
	}
}

func TestProject_UnknownColumn(t *testing.T) {
	_, err := NewProjectNode("project", scanOrders(t), amountOnly(), []expr.Expr{expr.Col("price")})
	require.Error(t, err)
	assert.True(t, IsQueryDefinitionError(err))

	var unknown *expr.UnknownColumnError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "price", unknown.Column)
}

func TestProject_RejectsAggregates(t *testing.T) {
	_, err := NewProjectNode("project", scanOrders(t), amountOnly(),
		[]expr.Expr{expr.Call{Name: "SUM", Args: []expr.Expr{expr.Col("amount")}}})
	assert.True(t, IsQueryDefinitionError(err))
}

func TestProject_CompileCallsScanThenProject(t *testing.T) {
	project, err := NewProjectNode("project", scanOrders(t), amountOnly(), []expr.Expr{expr.Col("amount")})
	require.NoError(t, err)

	b := &recordingBuilder{}
	h, err := Compile(project, b, DefaultConfig(), NewCompileContext(stubOracle{"orders": 4}, nil))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"scan orders",
		"project h1 amount AS amount",
	}, b.calls)
	assert.Equal(t, "h2", h)
}

func TestProject_CompileStopsOnBuilderError(t *testing.T) {
	project, err := NewProjectNode("project", scanOrders(t), amountOnly(), []expr.Expr{expr.Col("amount")})
	require.NoError(t, err)

	b := &recordingBuilder{failOn: "scan"}
	h, err := Compile(project, b, DefaultConfig(), NewCompileContext(stubOracle{}, nil))
	assert.Nil(t, h)
	assert.Same(t, errBuilder, err)
	assert.Equal(t, []string{"scan orders"}, b.calls)
}

func TestProject_DroppedKeyFeedsFilterAndSink(t *testing.T) {
	project, err := NewProjectNode("project", scanOrders(t), amountOnly(), []expr.Expr{expr.Col("amount")})
	require.NoError(t, err)

	t.Run("sink", func(t *testing.T) {
		sink, err := NewSinkNode("sink", project, "amounts")
		require.NoError(t, err)

		catalog := newStubCatalog()
		b := &recordingBuilder{}
		_, err = Compile(sink, b, DefaultConfig(), NewCompileContext(stubOracle{"orders": 3}, catalog))
		require.NoError(t, err)

		assert.Equal(t, []string{
			"scan orders",
			"project h1 amount AS amount",
			"sink h2 amounts",
		}, b.calls)
		assert.Equal(t, []string{"amounts [amount DOUBLE] partitions=3"}, catalog.created)
	})

	t.Run("filter then sink", func(t *testing.T) {
		filter, err := NewFilterNode("filter", project, expr.Binary{
			Op:    expr.OpGt,
			Left:  expr.Col("amount"),
			Right: expr.Literal{Value: ir.IRInt(10)},
		})
		require.NoError(t, err)
		assert.Same(t, project.KeyField(), filter.KeyField())

		sink, err := NewSinkNode("sink", filter, "large_amounts")
		require.NoError(t, err)

		result, err := Validate(sink)
		require.NoError(t, err)
		assert.Equal(t, []string{`project: output drops key field "id"; records stay keyed by it`}, result.Warnings)

		b := &recordingBuilder{}
		_, err = Compile(sink, b, DefaultConfig(), NewCompileContext(stubOracle{"orders": 3}, newStubCatalog()))
		require.NoError(t, err)
		assert.Equal(t, []string{
			"scan orders",
			"project h1 amount AS amount",
			"filter h2 (amount > 10)",
			"sink h3 large_amounts",
		}, b.calls)
	})
}

func TestProject_ReusedKeyNameIsNotTheKey(t *testing.T) {
	reused := schema.MustNew(schema.Field{Name: "id", Type: schema.Double})
	counts := schema.MustNew(
		schema.Field{Name: "id", Type: schema.Double},
		schema.Field{Name: "n", Type: schema.Bigint},
	)

	tests := []struct {
		name            string
		selects         []expr.Expr
		wantRepartition bool
	}{
		{"key passed through", []expr.Expr{expr.Col("id")}, false},
		{"other column under the key name", []expr.Expr{expr.Col("amount")}, true},
		{"expression under the key name", []expr.Expr{expr.Cast{Operand: expr.Col("customer_id"), Type: schema.Double}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project, err := NewProjectNode("project", scanOrders(t), reused, tt.selects)
			require.NoError(t, err)
			assert.Equal(t, "id", project.KeyField().Name)

			// A filter in between keeps the distinction.
			filter, err := NewFilterNode("filter", project, expr.Binary{
				Op: expr.OpGt, Left: expr.Col("id"), Right: expr.Literal{Value: ir.IRInt(0)},
			})
			require.NoError(t, err)

			agg, err := NewAggregateNode("count-by-id", filter, counts,
				[]expr.Expr{expr.Col("id")}, []expr.Expr{expr.Call{Name: "COUNT"}}, NoWindow, EmitChanges)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRepartition, agg.NeedsRepartition())

			b := &recordingBuilder{}
			_, err = Compile(agg, b, DefaultConfig(), NewCompileContext(stubOracle{"orders": 6}, nil))
			require.NoError(t, err)
			if tt.wantRepartition {
				assert.Contains(t, b.calls, "repartition h3 by id into 6")
			} else {
				assert.NotContains(t, b.calls, "repartition h3 by id into 6")
			}

			_, err = Compile(agg, &recordingBuilder{}, Config{Repartition: RepartitionDeny}, NewCompileContext(stubOracle{"orders": 6}, nil))
			assert.Equal(t, tt.wantRepartition, IsCoPartitioningError(err))
		})
	}
}

func TestProject_ReusedKeyNameRekeysJoin(t *testing.T) {
	// customer_id selected as "id" while records stay keyed by orders.id.
	out := schema.MustNew(
		schema.Field{Name: "id", Type: schema.Int},
		schema.Field{Name: "amount", Type: schema.Double},
	)
	project, err := NewProjectNode("project", scanOrders(t), out, exprs("customer_id", "amount"))
	require.NoError(t, err)

	join, err := NewJoinNode("join", JoinInner, project, scanCustomers(t), "id", "id", NoWindow, "o", "c")
	require.NoError(t, err)

	result, err := Validate(join)
	require.NoError(t, err)
	assert.Contains(t, result.Warnings, `join: left source keyed by "id" is repartitioned by "id"`)

	b := &recordingBuilder{}
	_, err = Compile(join, b, DefaultConfig(), NewCompileContext(stubOracle{"orders": 4, "customers": 4}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"scan orders",
		"project h1 customer_id AS id, amount AS amount",
		"scan customers",
		"repartition h2 by id into 4",
		"join h4 h3 INNER (o.id = c.id) store=join-Join-store",
	}, b.calls)
}

func TestProject_NilCallArgument(t *testing.T) {
	_, err := NewProjectNode("project", scanOrders(t), amountOnly(),
		[]expr.Expr{expr.Call{Name: "UCASE", Args: []expr.Expr{nil}}})
	require.Error(t, err)
	assert.True(t, IsQueryDefinitionError(err))
	assert.Contains(t, err.Error(), "UCASE argument 0 is nil")
}
