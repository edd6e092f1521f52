package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScenario(t *testing.T, name string) *Result {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{
		"revenue_by_region",
		"revenue_deny",
		"unknown_stream",
		"arity_mismatch",
		"shipped_orders",
		"sink_mismatch",
		"order_amounts",
		"large_amounts",
	} {
		t.Run(name, func(t *testing.T) {
			result := runScenario(t, name)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_RecordsCompiledQuery(t *testing.T) {
	result := runScenario(t, "revenue_by_region")

	assert.Equal(t, defaultQueryID, result.QueryID)
	assert.Len(t, result.Fingerprint, 64)
	require.NotNil(t, result.Topology)
	assert.Len(t, result.Topology.Steps, 8)
	assert.Equal(t, []Created{{
		Name:       "revenue_by_region",
		Schema:     "[region STRING, total DOUBLE, orders BIGINT]",
		Partitions: 4,
	}}, result.Created)
}

func TestRun_FingerprintStableAcrossRuns(t *testing.T) {
	a := runScenario(t, "revenue_by_region")
	b := runScenario(t, "revenue_by_region")
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestRun_ErrorCodes(t *testing.T) {
	tests := map[string]string{
		"revenue_deny":   "CO_PARTITIONING",
		"unknown_stream": ErrCodeStreamNotFound,
		"arity_mismatch": "QUERY_DEFINITION",
		"sink_mismatch":  "QUERY_DEFINITION",
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			result := runScenario(t, name)
			assert.Equal(t, code, result.ErrorCode)
			assert.Nil(t, result.Topology)
			assert.Empty(t, result.QueryID)
		})
	}
}

func TestRun_UnexpectedSuccessFails(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/revenue_deny.yaml")
	require.NoError(t, err)
	s.Config.Repartition = "allow"

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "plan compiled")
}

func TestRun_WrongErrorCodeFails(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/unknown_stream.yaml")
	require.NoError(t, err)
	s.Expect.Error = "CONFIGURATION"
	s.Expect.Contains = "nothing like this"

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 2)
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/revenue_by_region.yaml")
	require.NoError(t, err)
	s.Config.Repartition = "deny"

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "compile failed")
}

func TestRun_BadCatalog(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/revenue_by_region.yaml")
	require.NoError(t, err)
	s.Catalog = t.TempDir()

	_, err = Run(s)
	assert.ErrorContains(t, err, "load catalog")
}

func TestGolden(t *testing.T) {
	for _, name := range []string{"revenue_by_region", "revenue_deny", "shipped_orders"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}
