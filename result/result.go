// Package result implements the frozen, read-only view of a completed
// analysis: every query a client (a plugin's Finish hook, a CLI report, a
// test) makes after solver.Solver.Solve returns goes through here rather
// than back into the solver directly, so the solver's mutable worklist
// state never leaks past its own package.
package result

import (
	"go/types"

	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ids"
	"github.com/cspta/cspta/ptset"
	"github.com/cspta/cspta/solver"
)

// Result is the frozen view: PTS(pointer) for every pointer kind;
// iteration over all CSVars, instance-field pointers, array pointers,
// static-field pointers; the call graph (reachable methods, edges); the
// context-insensitive projection. It is only meaningful once the solver
// that produced it has returned from Solve; querying it earlier returns
// whatever partial state the solver happens to hold, which is never done
// by this module's own callers.
type Result struct {
	solver *solver.Solver
	csMgr  *cs.Manager
	edges  []solver.CallEdge
}

// New wraps a solver and the call-graph edges its Solve call returned.
func New(s *solver.Solver, edges []solver.CallEdge) *Result {
	return &Result{solver: s, csMgr: s.CSMgr, edges: edges}
}

// PTS returns the points-to set for p, for any pointer kind, or nil if p
// never received a points-to element.
func (r *Result) PTS(p cs.Pointer) *ptset.PTS { return r.solver.PTS(p) }

// Describe is the reverse lookup from a pointer back to its kind-specific
// payload (CSVar, InstanceField, ArrayIndex, or StaticField; only the one
// matching p.Kind is populated).
func (r *Result) Describe(p cs.Pointer) (cs.CSVar, cs.InstanceField, cs.ArrayIndex, cs.StaticField) {
	return r.csMgr.Describe(p)
}

// EachCSVar calls f once per interned (method, ssa.Value) pointer.
func (r *Result) EachCSVar(f func(cs.Pointer, cs.CSVar)) { r.csMgr.EachCSVar(f) }

// EachInstanceField calls f once per interned (obj, field) pointer.
func (r *Result) EachInstanceField(f func(cs.Pointer, cs.InstanceField)) {
	r.csMgr.EachInstanceField(f)
}

// EachArrayIndex calls f once per interned array-index pointer.
func (r *Result) EachArrayIndex(f func(cs.Pointer, cs.ArrayIndex)) { r.csMgr.EachArrayIndex(f) }

// EachStaticField calls f once per interned package-level-global pointer.
func (r *Result) EachStaticField(f func(cs.Pointer, cs.StaticField)) { r.csMgr.EachStaticField(f) }

// ReachableMethods returns every CSMethod the solver marked reachable, in
// no particular order.
func (r *Result) ReachableMethods() []cs.CSMethod {
	var out []cs.CSMethod
	r.csMgr.EachMethod(func(cm cs.CSMethod, id ids.ID) {
		if r.solver.Reachable(id) {
			out = append(out, cm)
		}
	})
	return out
}

// IsReachable reports whether cm was ever marked reachable. cm must be a
// CSMethod already returned by this Result or interned by the caller
// through the same cs.Manager; an unknown CSMethod reports false.
func (r *Result) IsReachable(cm cs.CSMethod) bool {
	id, ok := r.csMgr.MethodID(cm)
	return ok && r.solver.Reachable(id)
}

// CallEdges returns the full context-sensitive call graph: one CallEdge
// per (call site, resolved callee) pair the solver discovered.
func (r *Result) CallEdges() []solver.CallEdge { return r.edges }

// VarPTS is the context-insensitive projection: the union, over every
// context a function was analyzed under, of the
// points-to sets of the CSVar for SSA value v. A value reachable under
// three different call-site contexts reports the merged points-to set
// here, the same shape golang.org/x/tools/go/pointer's Pointer.PointsTo
// presents to callers who never asked for context sensitivity.
func (r *Result) VarPTS(v ssa.Value) *ptset.PTS {
	var out ptset.PTS
	r.csMgr.EachCSVar(func(_ cs.Pointer, csvar cs.CSVar) {
		if csvar.Value != v {
			return
		}
		if pts := r.PTS(r.csMgr.InternCSVar(csvar.Method, csvar.Value)); pts != nil && pts.Len() > 0 {
			out.AddAll(pts.Slice())
		}
	})
	return &out
}

// CallGraph projects the context-sensitive call graph down to the
// context-insensitive shape golang.org/x/tools/go/callgraph represents
// (one *callgraph.Node per *ssa.Function, collapsing every context a
// function was analyzed under into the same node), grounded directly on
// go/callgraph/static.CallGraph's CreateNode/AddEdge usage. A context-blind
// consumer, such as an existing x/tools-based visualizer or a diff against
// a CHA/RTA baseline, can use this without knowing CSMethod exists.
func (r *Result) CallGraph() *callgraph.Graph {
	cg := callgraph.New(nil)
	nodes := make(map[*ssa.Function]*callgraph.Node)
	node := func(fn *ssa.Function) *callgraph.Node {
		if n, ok := nodes[fn]; ok {
			return n
		}
		n := cg.CreateNode(fn)
		nodes[fn] = n
		return n
	}
	for _, e := range r.edges {
		if e.Caller.Fn == nil || e.Callee.Fn == nil {
			continue
		}
		callgraph.AddEdge(node(e.Caller.Fn), e.Site, node(e.Callee.Fn))
	}
	return cg
}

// PointsToSize reports len(PTS(p)), 0 for a pointer with no recorded
// points-to set. A convenience for reporting/debugging code that wants a
// count without worrying about the nil case.
func (r *Result) PointsToSize(p cs.Pointer) int {
	pts := r.PTS(p)
	if pts == nil {
		return 0
	}
	return pts.Len()
}

// AliasQuery reports whether ssa.Values a and b may alias anywhere in the
// program, taking the context-insensitive union of each: true iff their
// VarPTS sets intersect.
func AliasQuery(r *Result, a, b ssa.Value) bool {
	pa := r.VarPTS(a)
	pb := r.VarPTS(b)
	if pa.Len() == 0 || pb.Len() == 0 {
		return false
	}
	if pa.Len() > pb.Len() {
		pa, pb = pb, pa
	}
	for _, o := range pa.Slice() {
		if pb.Has(o) {
			return true
		}
	}
	return false
}

// TypeOf returns the declared type backing Obj o, or nil if o is unknown
// to the heap model. Exposed here so result consumers never need to import
// package heap directly.
func (r *Result) TypeOf(o ptset.Obj) types.Type {
	return r.solver.Heap.TypeOf(o)
}
