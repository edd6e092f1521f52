package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/streamplan/internal/catalog"
	"github.com/roach88/streamplan/internal/plan"
	"github.com/roach88/streamplan/internal/schema"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// pragma reads a pragma's current value.
func pragma(t *testing.T, s *Store, name string) string {
	t.Helper()
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		t.Fatalf("read pragma %s: %v", name, err)
	}
	return value
}

func ordersSpec() *catalog.StreamSpec {
	return &catalog.StreamSpec{
		Name: "orders",
		Schema: schema.MustNew(
			schema.Field{Name: "id", Type: schema.Int},
			schema.Field{Name: "customer_id", Type: schema.Int},
			schema.Field{Name: "amount", Type: schema.Double},
		),
		KeyField:   "id",
		Type:       plan.Stream,
		Partitions: 6,
	}
}

func customersSpec() *catalog.StreamSpec {
	return &catalog.StreamSpec{
		Name: "customers",
		Schema: schema.MustNew(
			schema.Field{Name: "id", Type: schema.Int},
			schema.Field{Name: "region", Type: schema.String},
		),
		KeyField:   "id",
		Type:       plan.Table,
		Partitions: 4,
	}
}

func testQuery(id, name, fingerprint string) Query {
	return Query{
		ID:              id,
		Name:            name,
		Fingerprint:     fingerprint,
		Document:        `{"version":"1"}`,
		Topology:        `{"steps":[]}`,
		CompilerVersion: "0.1.0",
		CatalogHash:     "catalog-" + fingerprint,
	}
}
