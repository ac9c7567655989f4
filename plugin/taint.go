package plugin

import (
	"go/token"
	"go/types"
	"sync"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ptset"
	"github.com/cspta/cspta/solver"
)

// Source, Sink, and Sanitizer mirror gosec's taint.Config shape: a
// package/receiver/method triple rather than a raw string, so a
// configuration can be built without knowing go/ssa's RelString format.
// Only function sources (IsFunc) are resolved: a type-based source ("any
// parameter of this type is tainted on entry") would need the set of
// program entry points, which Host does not expose, and is left as a
// documented gap rather than guessed at.
type Source struct {
	Package string
	Name    string
	Pointer bool
	IsFunc  bool
}

// Sink is a call that must never receive tainted data on the argument
// positions named by CheckArgs (or any argument, if CheckArgs is empty).
type Sink struct {
	Package   string
	Receiver  string
	Method    string
	Pointer   bool
	CheckArgs []int
}

// Sanitizer is recorded for config-shape fidelity with gosec's taint
// package. It is a deliberate no-op here: a call to any external function
// without an SSA body (the common shape a sanitizer takes) already breaks
// the solver's own argument-to-result wiring, since wireReturns only
// connects a result to Return statements the callee's own body executes.
// An external sanitizer's result is therefore already untainted by
// construction; naming it in Sanitizers documents intent without needing
// extra machinery.
type Sanitizer struct {
	Package  string
	Receiver string
	Method   string
	Pointer  bool
}

// TaintConfig is the configuration surface that the `taint-config` option
// names; its presence is what enables the taint plugin.
type TaintConfig struct {
	Sources    []Source
	Sinks      []Sink
	Sanitizers []Sanitizer
}

// Finding is a detected source-to-sink flow.
type Finding struct {
	Source  Source
	Sink    Sink
	SinkPos token.Pos
}

type sinkSite struct {
	sink    Sink
	pos     token.Pos
	argPtrs []cs.Pointer
}

// TaintAnalysis marks sources, tracks taint Objs, and reports sinks
// directly on the solver's own PTS and call-graph primitives, with no
// separate heap abstraction of its own: a source call mints a synthetic
// Obj and seeds it into the call result's points-to set like any ordinary
// allocation; a sink call is recorded and checked against the frozen PTS
// once the solve completes.
type TaintAnalysis struct {
	BasePlugin
	sources map[string]Source
	sinks   map[string]Sink

	mu        sync.Mutex
	tainted   map[ptset.Obj]Source
	sinkSites []sinkSite
	findings  []Finding
}

// NewTaintAnalysis indexes cfg for fast lookup by call-site key.
func NewTaintAnalysis(cfg TaintConfig) *TaintAnalysis {
	t := &TaintAnalysis{
		sources: make(map[string]Source),
		sinks:   make(map[string]Sink),
		tainted: make(map[ptset.Obj]Source),
	}
	for _, src := range cfg.Sources {
		if src.IsFunc {
			t.sources[src.Package+"."+src.Name] = src
		}
	}
	for _, sink := range cfg.Sinks {
		t.sinks[funcKey(sink.Package, sink.Receiver, sink.Method, sink.Pointer)] = sink
	}
	return t
}

func (t *TaintAnalysis) Name() string { return "taint" }

func (t *TaintAnalysis) OnNewCallEdge(h Host, edge solver.CallEdge) {
	callee := edge.Callee.Fn
	if callee == nil {
		return
	}
	key := calleeKey(callee)

	if src, ok := t.sources[key]; ok {
		call, ok := edge.Site.(*ssa.Call)
		if !ok {
			return
		}
		resultType := calleeResultType(callee)
		obj := h.NewSyntheticObj("taint-source:"+key, resultType)
		t.mu.Lock()
		t.tainted[obj] = src
		t.mu.Unlock()
		resultPtr := h.CSVarPointer(edge.Caller, call)
		h.AddPointsTo(resultPtr, []ptset.Obj{obj})
		return
	}

	if sink, ok := t.sinks[key]; ok {
		common := edge.Site.Common()
		var argVals []ssa.Value
		if len(sink.CheckArgs) > 0 {
			for _, idx := range sink.CheckArgs {
				if idx < len(common.Args) {
					argVals = append(argVals, common.Args[idx])
				}
			}
		} else {
			argVals = common.Args
		}
		argPtrs := make([]cs.Pointer, 0, len(argVals))
		for _, a := range argVals {
			argPtrs = append(argPtrs, h.CSVarPointer(edge.Caller, a))
		}
		t.mu.Lock()
		t.sinkSites = append(t.sinkSites, sinkSite{sink: sink, pos: edge.Site.Pos(), argPtrs: argPtrs})
		t.mu.Unlock()
	}
}

// Finish checks every recorded sink call's argument pointers against the
// frozen points-to sets for any tainted synthetic Obj.
func (t *TaintAnalysis) Finish(h Host) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ss := range t.sinkSites {
	argLoop:
		for _, ap := range ss.argPtrs {
			pts := h.PTS(ap)
			if pts == nil {
				continue
			}
			for obj, src := range t.tainted {
				if pts.Has(obj) {
					t.findings = append(t.findings, Finding{Source: src, Sink: ss.sink, SinkPos: ss.pos})
					break argLoop
				}
			}
		}
	}
}

// Findings returns every detected source-to-sink flow. Safe to call only
// after the solve has completed.
func (t *TaintAnalysis) Findings() []Finding {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Finding, len(t.findings))
	copy(out, t.findings)
	return out
}

func calleeResultType(fn *ssa.Function) types.Type {
	results := fn.Signature.Results()
	if results == nil || results.Len() == 0 {
		return types.Typ[types.UnsafePointer]
	}
	return results.At(0).Type()
}

// calleeKey builds the same "(pkg.Recv).Method" / "pkg.Func" shape gosec's
// taint package uses for its lookup keys, from the resolved callee rather
// than the static-only callgraph.CHA gosec builds against.
func calleeKey(fn *ssa.Function) string {
	pkg := ""
	if fn.Pkg != nil && fn.Pkg.Pkg != nil {
		pkg = fn.Pkg.Pkg.Path()
	}
	recv := fn.Signature.Recv()
	if recv == nil {
		return pkg + "." + fn.Name()
	}
	rt := recv.Type()
	pointer := false
	if pt, ok := rt.(*types.Pointer); ok {
		pointer = true
		rt = pt.Elem()
	}
	recvName := fn.Name()
	if named, ok := rt.(*types.Named); ok {
		recvName = named.Obj().Name()
	}
	return funcKey(pkg, recvName, fn.Name(), pointer)
}

func funcKey(pkg, receiver, method string, pointer bool) string {
	if receiver == "" {
		return pkg + "." + method
	}
	recv := pkg + "." + receiver
	if pointer {
		recv = "*" + recv
	}
	return "(" + recv + ")." + method
}
