package catalog

import (
	"fmt"
	"sync"

	"github.com/tidwall/btree"

	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/plan"
	"github.com/roach88/streamplan/internal/schema"
)

// Catalog is an in-memory set of stream specs ordered by name.
// It answers partition counts for compile and records sink destinations.
// Safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[*StreamSpec]
}

var (
	_ plan.PartitionOracle    = (*Catalog)(nil)
	_ plan.DestinationCatalog = (*Catalog)(nil)
)

func byName(a, b *StreamSpec) bool { return a.Name < b.Name }

// New returns a catalog holding specs. A spec that fails validation or a
// repeated name is an error.
func New(specs ...*StreamSpec) (*Catalog, error) {
	c := &Catalog{tree: btree.NewBTreeG(byName)}
	for i, spec := range specs {
		if spec == nil {
			return nil, fmt.Errorf("stream spec %d is nil", i)
		}
		if _, ok := c.tree.Get(spec); ok {
			return nil, fmt.Errorf("stream %s declared more than once", spec.Name)
		}
		if err := c.Put(spec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Put validates spec and stores it, replacing any stream of the same name.
func (c *Catalog) Put(spec *StreamSpec) error {
	if spec == nil {
		return fmt.Errorf("stream spec is nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.tree.Set(spec)
	c.mu.Unlock()
	return nil
}

// Stream looks up a stream by name.
func (c *Catalog) Stream(name string) (*StreamSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Get(&StreamSpec{Name: name})
}

// Streams returns every stream in name order.
func (c *Catalog) Streams() []*StreamSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*StreamSpec, 0, c.tree.Len())
	c.tree.Scan(func(s *StreamSpec) bool {
		out = append(out, s)
		return true
	})
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Len()
}

// PartitionCount implements plan.PartitionOracle.
func (c *Catalog) PartitionCount(stream string) (int, error) {
	spec, ok := c.Stream(stream)
	if !ok {
		return 0, fmt.Errorf("%w: %s", plan.ErrStreamNotFound, stream)
	}
	return spec.Partitions, nil
}

// Destination implements plan.DestinationCatalog. Any stream can be a
// destination.
func (c *Catalog) Destination(name string) (*schema.Schema, bool, error) {
	spec, ok := c.Stream(name)
	if !ok {
		return nil, false, nil
	}
	return spec.Schema, true, nil
}

// CreateDestination implements plan.DestinationCatalog. The new stream is
// unkeyed.
func (c *Catalog) CreateDestination(name string, s *schema.Schema, partitions int) error {
	spec := &StreamSpec{Name: name, Schema: s, Type: plan.Stream, Partitions: partitions}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tree.Get(spec); ok {
		return fmt.Errorf("create destination: stream %s already exists", name)
	}
	c.tree.Set(spec)
	return nil
}

// Scan builds a scan node for stream using its catalog metadata.
func (c *Catalog) Scan(id plan.NodeID, stream string) (*plan.ScanNode, error) {
	spec, ok := c.Stream(stream)
	if !ok {
		return nil, fmt.Errorf("%w: %s", plan.ErrStreamNotFound, stream)
	}
	return plan.NewScanNode(id, spec.Name, spec.Schema, spec.KeyField, spec.Type)
}

// Fingerprint hashes the catalog contents. Two catalogs with the same
// streams have the same fingerprint regardless of insertion order.
func (c *Catalog) Fingerprint() (string, error) {
	streams := c.Streams()
	doc := make([]any, len(streams))
	for i, s := range streams {
		fields := make([]any, s.Schema.Len())
		for j, f := range s.Schema.Fields() {
			fields[j] = map[string]any{"name": f.Name, "type": string(f.Type)}
		}
		entry := map[string]any{
			"name":       s.Name,
			"type":       string(s.Type),
			"partitions": s.Partitions,
			"fields":     fields,
		}
		if s.KeyField != "" {
			entry["key_field"] = s.KeyField
		}
		doc[i] = entry
	}
	return ir.HashValue(ir.DomainCatalog, doc)
}
