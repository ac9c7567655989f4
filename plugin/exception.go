package plugin

import (
	"sync"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/pfg"
)

type pcSite struct {
	cm  cs.CSMethod
	val ssa.Value
}

// ExceptionAnalysis threads thrown objects along catch-handler chains as a
// separate PFG subgraph, adapted to Go's panic/recover: the common idiom is
// `panic(v)` in a function F, recovered by `recover()` inside a closure G
// that F defers, where G.Parent() == F. When a newly-reachable closure is
// found to contain a recover() call, this plugin searches F and its
// bounded-depth callees (the same recursion-with-depth-limit idiom used to
// scope a taint-propagation traversal) for already-discovered panic sites
// and links each one to the recover result with a plain LocalAssign edge:
// a separate, additive PFG subgraph, never replacing the solver's own
// edges.
//
// This is a deliberate approximation: a panic discovered in F *after* G has
// already been walked is not retrofitted (the solver's incremental
// discovery order determines what has been recorded so far), and depth
// bounds callee search the same way EAR taint's call-span option does.
type ExceptionAnalysis struct {
	BasePlugin
	maxDepth uint

	mu       sync.Mutex
	panics   map[*ssa.Function][]pcSite
	recovers map[*ssa.Function][]pcSite
}

// NewExceptionAnalysis returns a ready ExceptionAnalysis. maxDepth bounds
// how many call hops from a deferred closure's enclosing function are
// searched for panic sites; 0 defaults to 5.
func NewExceptionAnalysis(maxDepth uint) *ExceptionAnalysis {
	if maxDepth == 0 {
		maxDepth = 5
	}
	return &ExceptionAnalysis{
		maxDepth: maxDepth,
		panics:   make(map[*ssa.Function][]pcSite),
		recovers: make(map[*ssa.Function][]pcSite),
	}
}

func (e *ExceptionAnalysis) Name() string { return "exception" }

func (e *ExceptionAnalysis) OnNewMethod(h Host, m cs.CSMethod) {
	fn := m.Fn
	if fn == nil || fn.Blocks == nil {
		return
	}

	var newPanics, newRecovers []pcSite
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			switch v := instr.(type) {
			case *ssa.Panic:
				newPanics = append(newPanics, pcSite{cm: m, val: v.X})
			case *ssa.Call:
				if blt, ok := v.Call.Value.(*ssa.Builtin); ok && blt.Name() == "recover" {
					newRecovers = append(newRecovers, pcSite{cm: m, val: v})
				}
			}
		}
	}
	if len(newPanics) == 0 && len(newRecovers) == 0 {
		return
	}

	e.mu.Lock()
	e.panics[fn] = append(e.panics[fn], newPanics...)
	e.recovers[fn] = append(e.recovers[fn], newRecovers...)
	e.mu.Unlock()

	if len(newRecovers) == 0 {
		return
	}
	parent := fn.Parent()
	if parent == nil {
		return
	}

	callees := e.boundedDepthCallees(parent, e.maxDepth)
	e.mu.Lock()
	defer e.mu.Unlock()
	for callee := range callees {
		for _, p := range e.panics[callee] {
			for _, r := range newRecovers {
				panicPtr := h.CSVarPointer(p.cm, p.val)
				recoverPtr := h.CSVarPointer(r.cm, r.val)
				h.AddEdge(panicPtr, recoverPtr, pfg.LocalAssign, nil)
			}
		}
	}
}

func (e *ExceptionAnalysis) boundedDepthCallees(fn *ssa.Function, depth uint) map[*ssa.Function]bool {
	result := map[*ssa.Function]bool{fn: true}
	e.calleeFunctions(fn, result, depth)
	return result
}

func (e *ExceptionAnalysis) calleeFunctions(fn *ssa.Function, result map[*ssa.Function]bool, depth uint) {
	if depth == 0 || fn.Blocks == nil {
		return
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			call, ok := instr.(*ssa.Call)
			if !ok {
				continue
			}
			callee := call.Call.StaticCallee()
			if callee != nil && len(callee.Blocks) > 0 && !result[callee] {
				result[callee] = true
				e.calleeFunctions(callee, result, depth-1)
			}
		}
	}
}
