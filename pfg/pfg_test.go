package pfg

import (
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ptset"
)

func TestAddEdgeDeduplicatesBySrcDstKindFilter(t *testing.T) {
	g := NewGraph()
	src := cs.Pointer{Kind: cs.KindCSVar, Global: 1}
	dst := cs.Pointer{Kind: cs.KindCSVar, Global: 2}

	_, added1 := g.AddEdge(src, dst, LocalAssign, nil)
	_, added2 := g.AddEdge(src, dst, LocalAssign, nil)
	_, added3 := g.AddEdge(src, dst, Cast, types.Typ[types.Int])

	assert.True(t, added1)
	assert.False(t, added2, "identical (src,dst,kind,filter) must not be re-added")
	assert.True(t, added3, "a different kind/filter is a distinct edge")
	require.Len(t, g.Out(src), 2)
}

func TestOutEnumeratesOnlyOutgoingEdges(t *testing.T) {
	g := NewGraph()
	a := cs.Pointer{Kind: cs.KindCSVar, Global: 1}
	b := cs.Pointer{Kind: cs.KindCSVar, Global: 2}
	c := cs.Pointer{Kind: cs.KindCSVar, Global: 3}

	g.AddEdge(a, b, LocalAssign, nil)
	g.AddEdge(a, c, LocalAssign, nil)
	g.AddEdge(b, c, LocalAssign, nil)

	assert.Len(t, g.Out(a), 2)
	assert.Len(t, g.Out(b), 1)
	assert.Empty(t, g.Out(c))
}

func TestApplyPassesThroughWithNilFilter(t *testing.T) {
	delta := []ptset.Obj{1, 2, 3}
	out := Apply(nil, func(ptset.Obj) types.Type { return nil }, delta)
	assert.Equal(t, delta, out)
}

func TestApplyFiltersByAssignability(t *testing.T) {
	types_ := map[ptset.Obj]types.Type{
		1: types.Typ[types.Int],
		2: types.Typ[types.String],
		3: types.Typ[types.Int],
	}
	typeOf := func(o ptset.Obj) types.Type { return types_[o] }

	out := Apply(types.Typ[types.Int], typeOf, []ptset.Obj{1, 2, 3})
	assert.Equal(t, []ptset.Obj{1, 3}, out)
}

func TestApplyDropsObjectsWithUnknownType(t *testing.T) {
	typeOf := func(ptset.Obj) types.Type { return nil }
	out := Apply(types.Typ[types.Int], typeOf, []ptset.Obj{1})
	assert.Empty(t, out)
}
