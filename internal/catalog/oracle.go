package catalog

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/streamplan/internal/plan"
)

// CachingOracle memoises partition counts from another oracle. Errors are
// not cached, so a stream created later is picked up on the next lookup.
// Safe for concurrent use.
type CachingOracle struct {
	next   plan.PartitionOracle
	counts *xsync.MapOf[string, int]
}

var _ plan.PartitionOracle = (*CachingOracle)(nil)

func NewCachingOracle(next plan.PartitionOracle) *CachingOracle {
	return &CachingOracle{
		next:   next,
		counts: xsync.NewMapOf[string, int](),
	}
}

func (o *CachingOracle) PartitionCount(stream string) (int, error) {
	if n, ok := o.counts.Load(stream); ok {
		return n, nil
	}
	n, err := o.next.PartitionCount(stream)
	if err != nil {
		return 0, err
	}
	actual, _ := o.counts.LoadOrStore(stream, n)
	return actual, nil
}

// Cached reports how many streams have a cached count.
func (o *CachingOracle) Cached() int {
	return o.counts.Size()
}
