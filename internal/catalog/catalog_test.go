package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamplan/internal/plan"
	"github.com/roach88/streamplan/internal/schema"
)

func TestCompileStream(t *testing.T) {
	v := cuecontext.New().CompileString(`
stream: orders: {
	key:        "id"
	partitions: 6
	fields: {
		id:     "INT"
		amount: float
		tags:   [...string]
		meta:   {...}
		total:  number
		count:  int
	}
}`)
	spec, err := CompileStream(v.LookupPath(cue.ParsePath("stream.orders")))
	require.NoError(t, err)

	assert.Equal(t, "orders", spec.Name)
	assert.Equal(t, plan.Stream, spec.Type)
	assert.Equal(t, 6, spec.Partitions)
	assert.Equal(t, "id", spec.KeyField)
	assert.Equal(t, "[id INT, amount DOUBLE, tags ARRAY, meta STRUCT, total DOUBLE, count BIGINT]", spec.Schema.String())
}

func TestCompileStream_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		want  string
	}{
		{
			name:  "missing partitions",
			src:   `s: {fields: {a: string}}`,
			field: "partitions",
			want:  "required",
		},
		{
			name:  "zero partitions",
			src:   `s: {partitions: 0, fields: {a: string}}`,
			field: "partitions",
			want:  "positive",
		},
		{
			name:  "unknown SQL type",
			src:   `s: {partitions: 1, fields: {a: "DECIMAL"}}`,
			field: "type",
			want:  "DECIMAL",
		},
		{
			name:  "bad output type",
			src:   `s: {partitions: 1, type: "QUEUE", fields: {a: string}}`,
			field: "type",
			want:  "QUEUE",
		},
		{
			name:  "key not a field",
			src:   `s: {partitions: 1, key: "b", fields: {a: string}}`,
			field: "key",
			want:  `"b"`,
		},
		{
			name:  "no fields",
			src:   `s: {partitions: 1, fields: {}}`,
			field: "fields",
			want:  "at least one",
		},
		{
			name:  "missing fields",
			src:   `s: {partitions: 1}`,
			field: "fields",
			want:  "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			_, err := CompileStream(v.LookupPath(cue.ParsePath("s")))
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.want)
		})
	}
}

func TestLoadDir(t *testing.T) {
	result, errs := LoadDir("testdata/streams", LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Streams, 2)

	customers, orders := result.Streams[0], result.Streams[1]
	assert.Equal(t, "customers", customers.Name)
	assert.Equal(t, plan.Table, customers.Type)
	assert.Equal(t, "[id BIGINT, name STRING, region STRING, vip BOOLEAN]", customers.Schema.String())
	assert.Equal(t, "orders", orders.Name)
	assert.Equal(t, 6, orders.Partitions)
}

func TestLoadDir_IgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"orders.cue", "customers.cue"} {
		data, err := os.ReadFile(filepath.Join("testdata", "streams", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive", "old.cue"),
		[]byte("package streams\n\nstream: ghost: {partitions: 1, fields: {a: \"INT\"}}\n"), 0644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	result, errs := LoadDir(dir, LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, 2, result.FileCount)
	assert.Len(t, result.Streams, 2)
}

func TestLoadDir_Modes(t *testing.T) {
	_, errs := LoadDir("testdata/invalid", LoadModeFailFast)
	require.Len(t, errs, 1)

	result, errs := LoadDir("testdata/invalid", LoadModeCollectAll)
	require.Len(t, errs, 2)
	require.Len(t, result.Streams, 1)
	assert.Equal(t, "sessions", result.Streams[0].Name)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, StageCompile, le.Stage)
	assert.Equal(t, "clicks", le.Stream)
	assert.Equal(t, "type", le.Field)
	assert.True(t, le.Pos.IsValid())
	assert.Contains(t, le.Error(), "streams.cue")

	require.ErrorAs(t, errs[1], &le)
	assert.Equal(t, "views", le.Stream)
	assert.Equal(t, "partitions", le.Field)
}

func TestLoadDir_NotFound(t *testing.T) {
	_, errs := LoadDir("testdata/nope", LoadModeFailFast)
	require.Len(t, errs, 1)
	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, StageNotFound, le.Stage)

	_, errs = LoadDir(t.TempDir(), LoadModeFailFast)
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, StageNoFiles, le.Stage)
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	streams, err := LoadString(`
stream: orders: {key: "id", partitions: 6, fields: {id: "INT", customer_id: "INT", amount: "DOUBLE", status: "STRING"}}
stream: customers: {type: "TABLE", key: "id", partitions: 4, fields: {id: "INT", name: "STRING", region: "STRING"}}
`)
	require.NoError(t, err)
	c, err := New(streams...)
	require.NoError(t, err)
	return c
}

func TestCatalog_Oracle(t *testing.T) {
	c := testCatalog(t)

	n, err := c.PartitionCount("orders")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	_, err = c.PartitionCount("payments")
	assert.ErrorIs(t, err, plan.ErrStreamNotFound)
	assert.ErrorContains(t, err, "payments")

	var names []string
	for _, s := range c.Streams() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"customers", "orders"}, names)
}

func TestCatalog_Destinations(t *testing.T) {
	c := testCatalog(t)
	out := schema.MustNew(schema.Field{Name: "region", Type: schema.String})

	_, ok, err := c.Destination("by_region")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.CreateDestination("by_region", out, 4))
	got, ok, err := c.Destination("by_region")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, out.Equal(got))

	n, err := c.PartitionCount("by_region")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.ErrorContains(t, c.CreateDestination("by_region", out, 4), "already exists")
	assert.Error(t, c.CreateDestination("empty", out, 0))
}

func TestCatalog_Scan(t *testing.T) {
	c := testCatalog(t)
	scan, err := c.Scan("scan-customers", "customers")
	require.NoError(t, err)
	assert.Equal(t, plan.Table, scan.OutputType())
	assert.Equal(t, "id", scan.KeyField().Name)

	_, err = c.Scan("scan-x", "x")
	assert.ErrorIs(t, err, plan.ErrStreamNotFound)
}

func TestCatalog_Fingerprint(t *testing.T) {
	a, err := testCatalog(t).Fingerprint()
	require.NoError(t, err)

	streams := testCatalog(t).Streams()
	reversed, err := New(streams[1], streams[0])
	require.NoError(t, err)
	b, err := reversed.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c := testCatalog(t)
	require.NoError(t, c.CreateDestination("out", schema.MustNew(schema.Field{Name: "a", Type: schema.Int}), 1))
	d, err := c.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestNew_RejectsDuplicatesAndInvalid(t *testing.T) {
	s := schema.MustNew(schema.Field{Name: "a", Type: schema.Int})
	spec := &StreamSpec{Name: "a", Schema: s, Type: plan.Stream, Partitions: 1}

	_, err := New(spec, spec)
	assert.ErrorContains(t, err, "more than once")

	_, err = New(&StreamSpec{Name: "b", Schema: s, Type: plan.Stream, Partitions: 1, KeyField: "z"})
	assert.ErrorContains(t, err, `"z"`)

	_, err = New(spec, nil)
	assert.ErrorContains(t, err, "stream spec 1 is nil")
}

type countingOracle struct {
	calls atomic.Int32
	fail  bool
}

func (o *countingOracle) PartitionCount(stream string) (int, error) {
	o.calls.Add(1)
	if o.fail {
		return 0, fmt.Errorf("%w: %s", plan.ErrStreamNotFound, stream)
	}
	return len(stream), nil
}

func TestCachingOracle(t *testing.T) {
	next := &countingOracle{}
	o := NewCachingOracle(next)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := o.PartitionCount("orders")
			assert.NoError(t, err)
			assert.Equal(t, 6, n)
		}()
	}
	wg.Wait()

	calls := next.calls.Load()
	_, err := o.PartitionCount("orders")
	require.NoError(t, err)
	assert.Equal(t, calls, next.calls.Load())
	assert.Equal(t, 1, o.Cached())
}

func TestCachingOracle_DoesNotCacheErrors(t *testing.T) {
	next := &countingOracle{fail: true}
	o := NewCachingOracle(next)

	_, err := o.PartitionCount("orders")
	assert.True(t, errors.Is(err, plan.ErrStreamNotFound))
	assert.Equal(t, 0, o.Cached())

	next.fail = false
	n, err := o.PartitionCount("orders")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int32(2), next.calls.Load())
}
