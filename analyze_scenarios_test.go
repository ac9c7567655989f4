package cspta

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/plugin"
	"github.com/cspta/cspta/ptset"
	"github.com/cspta/cspta/result"
)

// buildScenarioProgram parses and SSA-builds a single-file main package,
// mirroring buildTestProgram's ssautil.BuildPackage grounding, and returns
// both the program and the built main function for instruction lookup.
func buildScenarioProgram(t *testing.T, src string) (*ssa.Program, *ssa.Function) {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "input.go", src, 0)
	require.NoError(t, err)

	mainPkg, _, err := ssautil.BuildPackage(&types.Config{Importer: importer.Default()}, fset,
		types.NewPackage("main", ""), []*ast.File{f}, ssa.SanityCheckFunctions)
	require.NoError(t, err)

	mainFn := mainPkg.Func("main")
	require.NotNil(t, mainFn)
	return mainPkg.Prog, mainFn
}

// namedAllocs returns every *ssa.Alloc in fn whose allocated type's name
// (after stripping the pointer) equals typeName, in instruction order.
func namedAllocs(fn *ssa.Function, typeName string) []*ssa.Alloc {
	var out []*ssa.Alloc
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			alloc, ok := instr.(*ssa.Alloc)
			if !ok {
				continue
			}
			elem := alloc.Type().(*types.Pointer).Elem()
			if named, ok := elem.(*types.Named); ok && named.Obj().Name() == typeName {
				out = append(out, alloc)
			}
		}
	}
	return out
}

func objOf(t *testing.T, r *result.Result, v ssa.Value) ptset.Obj {
	t.Helper()
	pts := r.VarPTS(v)
	require.Equal(t, 1, pts.Len(), "expected exactly one object in PTS(%v)", v)
	return pts.Slice()[0]
}

func TestScenarioAliasViaAssignmentInsensitive(t *testing.T) {
	const src = `
package main

type A struct{}

var sink *A

func main() {
	a := new(A)
	b := a
	sink = b
}
`
	prog, mainFn := buildScenarioProgram(t, src)
	r, err := Analyze(context.Background(), Config{}, prog, []*ssa.Function{mainFn})
	require.NoError(t, err)

	allocs := namedAllocs(mainFn, "A")
	require.Len(t, allocs, 1)
	obj := objOf(t, r, allocs[0])

	// Every local use of the allocated *A value (the Alloc result itself,
	// reused directly by SSA for both "a" and "b") must resolve to the
	// same single object.
	aPTS := r.VarPTS(allocs[0])
	assert.Equal(t, 1, aPTS.Len())
	assert.True(t, aPTS.Has(obj))

	var sawMain bool
	for _, cm := range r.ReachableMethods() {
		if cm.Fn == mainFn {
			sawMain = true
		}
	}
	assert.True(t, sawMain)
}

func TestScenarioVirtualDispatchDiscoversMethod(t *testing.T) {
	const src = `
package main

type I interface{ M() }

type C struct{}

func (c *C) M() {}

func main() {
	var x I = new(C)
	x.M()
}
`
	prog, mainFn := buildScenarioProgram(t, src)
	r, err := Analyze(context.Background(), Config{}, prog, []*ssa.Function{mainFn})
	require.NoError(t, err)

	var cMethod *ssa.Function
	for _, cm := range r.ReachableMethods() {
		if cm.Fn != nil && cm.Fn.Name() == "M" {
			cMethod = cm.Fn
		}
	}
	require.NotNil(t, cMethod, "C.M must be discovered reachable via virtual dispatch")

	var sawEdgeToM bool
	for _, e := range r.CallEdges() {
		if e.Callee.Fn == cMethod {
			sawEdgeToM = true
		}
	}
	assert.True(t, sawEdgeToM, "the call graph must contain an edge into C.M, not a generic I.M")
}

func TestScenarioFieldStoreLoad(t *testing.T) {
	const src = `
package main

type B struct{}

type A struct{ F *B }

var sink *B

func main() {
	a := new(A)
	b := new(B)
	a.F = b
	c := a.F
	sink = c
}
`
	prog, mainFn := buildScenarioProgram(t, src)
	r, err := Analyze(context.Background(), Config{}, prog, []*ssa.Function{mainFn})
	require.NoError(t, err)

	bAllocs := namedAllocs(mainFn, "B")
	require.Len(t, bAllocs, 1)
	objB := objOf(t, r, bAllocs[0])

	var cPTS *ptset.PTS
	for _, b := range mainFn.Blocks {
		for _, instr := range b.Instrs {
			if u, ok := instr.(*ssa.UnOp); ok && u.Op == token.MUL {
				if _, isField := u.X.(*ssa.FieldAddr); isField {
					p := r.VarPTS(u)
					cPTS = p
				}
			}
		}
	}
	require.NotNil(t, cPTS, "expected a load-through-field instruction for a.F")
	assert.True(t, cPTS.Has(objB), "PTS(c) must contain the object stored into a.F")
}

func TestScenarioCastFilterExcludesUnrelatedType(t *testing.T) {
	const src = `
package main

type A struct{}
type B struct{}
type C struct{}

func main() {
	var x interface{} = new(A)
	var y interface{} = new(B)
	z := x
	z = y
	c, _ := z.(*C)
	_ = c
}
`
	prog, mainFn := buildScenarioProgram(t, src)
	r, err := Analyze(context.Background(), Config{}, prog, []*ssa.Function{mainFn})
	require.NoError(t, err)

	for _, b := range mainFn.Blocks {
		for _, instr := range b.Instrs {
			if ta, ok := instr.(*ssa.TypeAssert); ok {
				pts := r.VarPTS(ta)
				assert.Equal(t, 0, pts.Len(), "neither A nor B implements/equals C, so the asserted value's PTS must be empty")
			}
		}
	}

	var sawMain bool
	for _, cm := range r.ReachableMethods() {
		if cm.Fn == mainFn {
			sawMain = true
		}
	}
	assert.True(t, sawMain, "the call graph still reflects a reachable main despite the filtered cast")
}

func TestScenarioOneCallSensitivityDistinguishesContexts(t *testing.T) {
	const src = `
package main

type T interface{}

func id(t T) T { return t }

type A struct{}
type B struct{}

var sinkA, sinkB T

func main() {
	sinkA = id(new(A))
	sinkB = id(new(B))
}
`
	prog, mainFn := buildScenarioProgram(t, src)

	ciResult, err := Analyze(context.Background(), Config{CS: "ci"}, prog, []*ssa.Function{mainFn})
	require.NoError(t, err)

	allocAs := namedAllocs(mainFn, "A")
	allocBs := namedAllocs(mainFn, "B")
	require.Len(t, allocAs, 1)
	require.Len(t, allocBs, 1)
	objA := objOf(t, ciResult, allocAs[0])
	objB := objOf(t, ciResult, allocBs[0])

	var calls []*ssa.Call
	for _, b := range mainFn.Blocks {
		for _, instr := range b.Instrs {
			if call, ok := instr.(*ssa.Call); ok && call.Call.StaticCallee() != nil && call.Call.StaticCallee().Name() == "id" {
				calls = append(calls, call)
			}
		}
	}
	require.Len(t, calls, 2)

	for _, call := range calls {
		pts := ciResult.VarPTS(call)
		assert.True(t, pts.Has(objA), "under ci both call sites must see Obj(s7)")
		assert.True(t, pts.Has(objB), "under ci both call sites must see Obj(s8)")
	}

	kCallResult, err := Analyze(context.Background(), Config{CS: "1-call"}, prog, []*ssa.Function{mainFn})
	require.NoError(t, err)

	objA1 := objOf(t, kCallResult, allocAs[0])
	objB1 := objOf(t, kCallResult, allocBs[0])

	pts1 := kCallResult.VarPTS(calls[0])
	pts2 := kCallResult.VarPTS(calls[1])
	assert.True(t, pts1.Has(objA1), "the first call site (id(new(A))) must see Obj(s7)")
	assert.False(t, pts1.Has(objB1), "under 1-call, the first call site must not see Obj(s8)")
	assert.True(t, pts2.Has(objB1), "the second call site (id(new(B))) must see Obj(s8)")
	assert.False(t, pts2.Has(objA1), "under 1-call, the second call site must not see Obj(s7)")
}

// injectPlugin is the "dummy plugin" scenario 6 describes: on observing the
// designated method become reachable, it seeds a synthetic object into a
// chosen CSVar directly through the Host, bypassing any real instruction.
type injectPlugin struct {
	plugin.BasePlugin
	target *ssa.Function
	xVal   ssa.Value
	ran    bool
	obj    ptset.Obj
}

func (p *injectPlugin) Name() string { return "inject-test" }

func (p *injectPlugin) OnNewMethod(h plugin.Host, m cs.CSMethod) {
	if m.Fn != p.target {
		return
	}
	p.obj = h.NewSyntheticObj("scenario6", p.xVal.Type())
	p.ran = true
	ptr := h.CSVarPointer(m, p.xVal)
	_ = h.AddPointsTo(ptr, []ptset.Obj{p.obj})
}

func TestScenarioPluginHookInjectsASyntheticObject(t *testing.T) {
	// id's parameter x is used as the injection target: a *ssa.Function's
	// Params are always materialized ssa.Values, unlike a plain local
	// variable, which the builder may lift away entirely when unused.
	const src = `
package main

func id(x interface{}) interface{} { return x }

func main() {
	_ = id(nil)
}
`
	prog, mainFn := buildScenarioProgram(t, src)

	idFn := prog.Package(mainFn.Pkg.Pkg).Func("id")
	require.NotNil(t, idFn)
	require.NotEmpty(t, idFn.Params)
	xVal := idFn.Params[0]

	p := &injectPlugin{target: idFn, xVal: xVal}
	cfg := Config{ExtraPlugins: []plugin.Plugin{p}}

	r, err := Analyze(context.Background(), cfg, prog, []*ssa.Function{mainFn})
	require.NoError(t, err)

	pts := r.VarPTS(xVal)
	require.True(t, p.ran, "the plugin must have run and recorded its synthetic object")
	assert.True(t, pts.Has(p.obj), "the synthetic object injected by the plugin must survive to the frozen result")
}
