package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashJSON_IgnoresFormatting(t *testing.T) {
	a, err := HashJSON(DomainPlan, []byte(`{"type":"scan","id":"s1"}`))
	require.NoError(t, err)
	b, err := HashJSON(DomainPlan, []byte("{\n  \"id\": \"s1\",\n  \"type\": \"scan\"\n}"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashJSON_DomainSeparation(t *testing.T) {
	doc := []byte(`{"id":"s1"}`)

	plan, err := HashJSON(DomainPlan, doc)
	require.NoError(t, err)
	catalog, err := HashJSON(DomainCatalog, doc)
	require.NoError(t, err)

	assert.NotEqual(t, plan, catalog)
}

func TestHashValue(t *testing.T) {
	a, err := HashValue(DomainCatalog, map[string]any{"name": "orders", "partitions": 4})
	require.NoError(t, err)
	b, err := HashValue(DomainCatalog, map[string]any{"partitions": 4, "name": "orders"})
	require.NoError(t, err)
	c, err := HashValue(DomainCatalog, map[string]any{"partitions": 6, "name": "orders"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err = HashValue(DomainCatalog, map[string]any{"x": 0.5})
	assert.Error(t, err)
}
