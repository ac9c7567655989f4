package ids

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexerInternIsStable(t *testing.T) {
	ix := NewIndexer[string]()

	a1 := ix.Intern("a")
	b1 := ix.Intern("b")
	a2 := ix.Intern("a")

	assert.Equal(t, a1, a2, "interning the same key twice must return the same id")
	assert.NotEqual(t, a1, b1, "distinct keys must get distinct ids")

	id, ok := ix.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, a1, id)

	_, ok = ix.Lookup("missing")
	assert.False(t, ok)
}

func TestIndexerLenAndEach(t *testing.T) {
	ix := NewIndexer[int]()
	want := map[int]ID{}
	for i := 0; i < 200; i++ {
		want[i] = ix.Intern(i)
	}

	assert.Equal(t, 200, ix.Len())

	got := map[int]ID{}
	ix.Each(func(k int, id ID) { got[k] = id })
	assert.Equal(t, want, got)
}

func TestIndexerConcurrentInternNoDuplicates(t *testing.T) {
	ix := NewIndexer[int]()

	const n = 2000
	var wg sync.WaitGroup
	ids := make([]ID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every goroutine interns the same small key set, so
			// concurrent compute-if-absent must converge on one id
			// per key regardless of scheduling.
			ids[i] = ix.Intern(i % 10)
		}(i)
	}
	wg.Wait()

	seen := map[int]ID{}
	for i := 0; i < n; i++ {
		key := i % 10
		if prev, ok := seen[key]; ok {
			assert.Equal(t, prev, ids[i], "key %d got two different ids", key)
		} else {
			seen[key] = ids[i]
		}
	}
	assert.Equal(t, 10, ix.Len())
}
