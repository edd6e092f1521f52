package queryid

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	var gen Generator = UUIDv7Generator{}

	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 500; i++ {
		id := gen.Generate()
		require.Len(t, id, 36)

		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())

		require.False(t, seen[id], "id %s generated twice", id)
		seen[id] = true
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("q-1", "q-2")
	assert.Equal(t, "q-1", gen.Generate())
	assert.Equal(t, "q-2", gen.Generate())
	assert.Equal(t, "q-2", gen.Generate())

	assert.Equal(t, "query-0", NewFixedGenerator().Generate())
}

func TestFixedGenerator_Concurrent(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	gen := NewFixedGenerator(ids...)

	var (
		mu  sync.Mutex
		got = make(map[string]bool)
		wg  sync.WaitGroup
	)
	for i := 0; i < len(ids); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			got[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, got, len(ids))
}
