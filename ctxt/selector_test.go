package ctxt

import (
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cspta/cspta/heap"
)

func TestInsensitiveAlwaysEmpty(t *testing.T) {
	pool := NewPool()
	sel := NewInsensitive(pool)

	caller := pool.Intern("somewhere")
	got := sel.SelectContext(nil, caller, 7, true, nil)
	assert.Same(t, pool.Empty(), got)
	assert.Same(t, pool.Empty(), sel.SelectHeapContext(nil, caller))
}

func TestKCallAppendsCallSiteAndTruncates(t *testing.T) {
	pool := NewPool()
	sel := NewKCall(pool, 1)

	caller := pool.Empty()
	c1 := sel.SelectContext("cs1", caller, 0, false, nil)
	require.Equal(t, 1, c1.Len())

	c2 := sel.SelectContext("cs2", c1, 0, false, nil)
	require.Equal(t, 1, c2.Len(), "1-call keeps only the most recent call site")
	assert.NotSame(t, c1, c2)

	assert.Same(t, c1, sel.SelectHeapContext(nil, c1), "k-call heap context is the truncated caller context")
}

func TestKObjContextDerivesFromReceiverAllocation(t *testing.T) {
	pool := NewPool()
	sel := NewKObj(pool, 2)

	// Object 10 was allocated under heap context hctx0.
	hctx0 := pool.Intern("allocSiteA")
	sel.RecordAllocation(10, hctx0)

	callee := sel.SelectContext(nil, pool.Empty(), 10, true, nil)
	assert.Equal(t, []any{heap.Obj(10), "allocSiteA"}, intsToObjs(callee.Elems()))

	// Static calls fall back to the caller's context untouched.
	caller := pool.Intern("caller-ctx")
	assert.Same(t, caller, sel.SelectContext(nil, caller, 0, false, nil))

	// Heap contexts one level down are k-1 long.
	heapCtx := sel.SelectHeapContext(nil, callee)
	assert.LessOrEqual(t, heapCtx.Len(), 1)
}

func TestKTypeUsesDeclaringType(t *testing.T) {
	pool := NewPool()
	sel := NewKType(pool, 1)

	sel.RecordAllocation(5, pool.Empty())
	got := sel.SelectContext(nil, pool.Empty(), 5, true, types.Typ[types.Int])
	require.Equal(t, 1, got.Len())
	assert.Equal(t, types.Typ[types.Int].String(), got.Elems()[0])
}

func intsToObjs(elems []any) []any {
	return elems
}
