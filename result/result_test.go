package result

import (
	"context"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ctxt"
	"github.com/cspta/cspta/heap"
	"github.com/cspta/cspta/ptset"
	"github.com/cspta/cspta/solver"
)

// fakeValue is a minimal ssa.Value stand-in, mirroring the embedding trick
// package cs, heap, and solver's own tests use.
type fakeValue struct {
	ssa.Value
	name string
}

// fakeCall is a minimal ssa.CallInstruction stand-in: the result package
// only ever stores a Site value, never calls its methods.
type fakeCall struct {
	ssa.CallInstruction
}

func newTestSolver(t *testing.T) (*solver.Solver, *cs.Manager) {
	t.Helper()
	csMgr := cs.NewManager()
	pool := ctxt.NewPool()
	s := solver.New(nil, csMgr, heap.NewModel(), pool, ctxt.NewInsensitive(pool), nil, nil)
	return s, csMgr
}

func TestEachKindIteratorsDelegateToTheManager(t *testing.T) {
	s, csMgr := newTestSolver(t)
	pool := ctxt.NewPool()
	fn := new(ssa.Function)
	cm, _ := csMgr.InternMethod(fn, pool.Empty())

	csMgr.InternCSVar(cm, &fakeValue{name: "v"})
	csMgr.InternInstanceField(3, types.NewVar(0, nil, "f", types.Typ[types.Int]))
	csMgr.InternArrayIndex(4)
	csMgr.InternStaticField(nil)

	r := New(s, nil)

	var nVars, nFields, nArrs, nStatics int
	r.EachCSVar(func(cs.Pointer, cs.CSVar) { nVars++ })
	r.EachInstanceField(func(cs.Pointer, cs.InstanceField) { nFields++ })
	r.EachArrayIndex(func(cs.Pointer, cs.ArrayIndex) { nArrs++ })
	r.EachStaticField(func(cs.Pointer, cs.StaticField) { nStatics++ })

	assert.Equal(t, 1, nVars)
	assert.Equal(t, 1, nFields)
	assert.Equal(t, 1, nArrs)
	assert.Equal(t, 1, nStatics)
}

func TestReachableMethodsAndIsReachableAfterSolve(t *testing.T) {
	s, csMgr := newTestSolver(t)
	fn := new(ssa.Function)

	edges, err := s.Solve(context.Background(), []*ssa.Function{fn})
	require.NoError(t, err)

	r := New(s, edges)
	pool := ctxt.NewPool()
	cm, _ := csMgr.InternMethod(fn, s.Pool.Empty())

	assert.True(t, r.IsReachable(cm))
	assert.Contains(t, r.ReachableMethods(), cm)

	other := cs.CSMethod{Fn: new(ssa.Function), Ctx: pool.Empty()}
	assert.False(t, r.IsReachable(other), "a CSMethod never interned reports unreachable, not an error")
}

func TestVarPTSUnionsAcrossEveryContextOfTheSameValue(t *testing.T) {
	s, csMgr := newTestSolver(t)
	pool := ctxt.NewPool()
	fn := new(ssa.Function)
	v := &fakeValue{name: "shared"}

	cmA, _ := csMgr.InternMethod(fn, pool.Empty())
	cmB, _ := csMgr.InternMethod(fn, pool.Intern("ctxB"))
	pA := csMgr.InternCSVar(cmA, v)
	pB := csMgr.InternCSVar(cmB, v)
	require.NotEqual(t, pA, pB, "distinct contexts must intern distinct CSVar pointers for the same ssa.Value")

	objA := s.Heap.GetObj(&fakeValue{name: "obj-a"})
	objB := s.Heap.GetObj(&fakeValue{name: "obj-b"})
	require.NoError(t, s.AddPointsTo(pA, []ptset.Obj{objA}))
	require.NoError(t, s.AddPointsTo(pB, []ptset.Obj{objB}))

	// Drain the worklist the AddPointsTo calls populated.
	_, err := s.Solve(context.Background(), nil)
	require.NoError(t, err)

	r := New(s, nil)
	merged := r.VarPTS(v)
	assert.True(t, merged.Has(objA), "VarPTS must union the context-A pointer's objects")
	assert.True(t, merged.Has(objB), "VarPTS must union the context-B pointer's objects")
}

func TestPointsToSizeIsZeroForAnUnseenPointer(t *testing.T) {
	s, _ := newTestSolver(t)
	r := New(s, nil)
	p := cs.Pointer{Kind: cs.KindCSVar, Global: 99}
	assert.Equal(t, 0, r.PointsToSize(p))
}

func TestCallGraphSkipsEdgesWithoutResolvedEndpoints(t *testing.T) {
	s, _ := newTestSolver(t)
	caller := new(ssa.Function)
	callee := new(ssa.Function)
	edges := []solver.CallEdge{
		{Site: &fakeCall{}, Caller: cs.CSMethod{Fn: caller}, Callee: cs.CSMethod{Fn: callee}, Kind: solver.Static},
		{Site: &fakeCall{}, Caller: cs.CSMethod{}, Callee: cs.CSMethod{Fn: callee}, Kind: solver.Static},
	}
	r := New(s, edges)

	cg := r.CallGraph()
	require.NotNil(t, cg)
	// One edge has a nil Caller.Fn and must be skipped; the valid edge must
	// produce exactly one caller node and one callee node, next to the
	// root node callgraph.New(nil) creates for the nil function.
	assert.Len(t, cg.Nodes, 3)
}

func TestAliasQueryReportsDisjointVarsAsNonAliasing(t *testing.T) {
	s, csMgr := newTestSolver(t)
	pool := ctxt.NewPool()
	fn := new(ssa.Function)
	cm, _ := csMgr.InternMethod(fn, pool.Empty())

	a := &fakeValue{name: "a"}
	b := &fakeValue{name: "b"}
	csMgr.InternCSVar(cm, a)
	csMgr.InternCSVar(cm, b)

	r := New(s, nil)
	assert.False(t, AliasQuery(r, a, b), "two values with empty points-to sets never alias")
}
