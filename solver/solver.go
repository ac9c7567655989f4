// Package solver implements the worklist-driven subset-based fixpoint
// engine: it closes the pointer flow graph, resolves
// virtual/interface/static/dynamic calls on the fly as receiver objects
// become known, and grows the reachable-method set and call graph
// monotonically until the worklist drains.
package solver

import (
	"context"
	"go/types"
	"io"
	"log"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ctxt"
	"github.com/cspta/cspta/errs"
	"github.com/cspta/cspta/heap"
	"github.com/cspta/cspta/ids"
	"github.com/cspta/cspta/pfg"
	"github.com/cspta/cspta/ptset"
)

// CallKind classifies how a call-graph edge's callee was resolved.
type CallKind uint8

const (
	Virtual CallKind = iota
	Interface
	Static
	Special
	Dynamic
)

func (k CallKind) String() string {
	switch k {
	case Virtual:
		return "virtual"
	case Interface:
		return "interface"
	case Static:
		return "static"
	case Special:
		return "special"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// CallEdge is one call-graph edge: (call site in caller, resolved callee,
// dispatch kind).
type CallEdge struct {
	Site   ssa.CallInstruction
	Caller cs.CSMethod
	Callee cs.CSMethod
	Kind   CallKind
}

type callEdgeKey struct {
	site   ssa.CallInstruction
	callee ids.ID
}

// Hooks is the solver's view of the plugin bus: the set of lifecycle
// events plugins observe. Declared here rather than in package plugin so
// that solver does not depend on plugin, avoiding an import cycle:
// plugin.Bus implements Hooks, and the solver in turn implements
// plugin.Host so plugins can call back in.
type Hooks interface {
	OnStart()
	OnNewMethod(cs.CSMethod)
	OnNewCallEdge(CallEdge)
	OnNewPointsToSet(cs.Pointer, []ptset.Obj)
	OnNewCSMethod(cs.CSMethod)
	OnUnresolvedCall(site ssa.CallInstruction, caller cs.CSMethod)
	OnFinish()
}

// NoopHooks is a Hooks implementation that does nothing; used when no
// plugins are registered.
type NoopHooks struct{}

func (NoopHooks) OnStart()                                                {}
func (NoopHooks) OnNewMethod(cs.CSMethod)                                 {}
func (NoopHooks) OnNewCallEdge(CallEdge)                                  {}
func (NoopHooks) OnNewPointsToSet(cs.Pointer, []ptset.Obj)                {}
func (NoopHooks) OnNewCSMethod(cs.CSMethod)                               {}
func (NoopHooks) OnUnresolvedCall(ssa.CallInstruction, cs.CSMethod)       {}
func (NoopHooks) OnFinish()                                               {}

type workItem struct {
	p     cs.Pointer
	delta []ptset.Obj
}

// pendingCall records an unresolved dispatch waiting on deltas to a
// receiver (virtual/interface) or a first-class function value (dynamic).
type pendingCall struct {
	site   ssa.CallInstruction
	caller cs.CSMethod
	kind   CallKind
}

type fieldAccess struct {
	field  *types.Var
	value  ssa.Value
	store  bool
	caller cs.CSMethod
}

type arrayAccess struct {
	value  ssa.Value
	store  bool
	caller cs.CSMethod
}

type returnKey struct {
	method ids.ID
	index  int
}

// Solver is the worklist-driven fixpoint engine. It is single-use: after
// Solve returns, the solver is frozen and any further mutation attempt
// (from a misbehaving plugin) raises an InternalInvariantError instead of
// silently corrupting the result.
type Solver struct {
	Prog     *ssa.Program
	CSMgr    *cs.Manager
	Heap     *heap.Model
	Pool     *ctxt.Pool
	Selector ctxt.Selector
	Logger   *log.Logger
	Hooks    Hooks

	pfg *pfg.Graph

	pts      map[cs.Pointer]*ptset.PTS
	worklist []workItem

	reachable map[ids.ID]bool

	callEdges map[callEdgeKey]bool
	edges     []CallEdge

	pendingCalls map[cs.Pointer][]*pendingCall
	instFields   map[cs.Pointer][]*fieldAccess
	arrays       map[cs.Pointer][]*arrayAccess

	funcObjs    map[ptset.Obj]*ssa.Function
	funcObjSeen map[cs.Pointer]bool

	returnVals map[returnKey][]cs.Pointer

	frozen bool
}

// New returns a Solver ready to have entry points marked reachable and
// Solve invoked.
func New(prog *ssa.Program, csMgr *cs.Manager, heapModel *heap.Model, pool *ctxt.Pool, selector ctxt.Selector, logger *log.Logger, hooks Hooks) *Solver {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return &Solver{
		Prog:         prog,
		CSMgr:        csMgr,
		Heap:         heapModel,
		Pool:         pool,
		Selector:     selector,
		Logger:       logger,
		Hooks:        hooks,
		pfg:          pfg.NewGraph(),
		pts:          make(map[cs.Pointer]*ptset.PTS),
		reachable:    make(map[ids.ID]bool),
		callEdges:    make(map[callEdgeKey]bool),
		pendingCalls: make(map[cs.Pointer][]*pendingCall),
		instFields:   make(map[cs.Pointer][]*fieldAccess),
		arrays:       make(map[cs.Pointer][]*arrayAccess),
		funcObjs:     make(map[ptset.Obj]*ssa.Function),
		funcObjSeen:  make(map[cs.Pointer]bool),
		returnVals:   make(map[returnKey][]cs.Pointer),
	}
}

// PFG exposes the underlying pointer flow graph for the result view.
func (s *Solver) PFG() *pfg.Graph { return s.pfg }

// PTS returns the current points-to set for p, or nil if p has never
// received a delta. Callers (the result view, tests) must not mutate it.
func (s *Solver) PTS(p cs.Pointer) *ptset.PTS { return s.pts[p] }

// Reachable reports whether the CSMethod with dense id methodID has been
// marked reachable.
func (s *Solver) Reachable(methodID ids.ID) bool { return s.reachable[methodID] }

// Solve marks every function in entries reachable under the insensitive
// context and drains the worklist until it empties or ctx is cancelled.
// On success it returns the full call-graph edge list and freezes the
// solver; on cancellation it returns an errs.Cancelled error and leaves
// the solver unfrozen: partial state is left untouched, not freezable.
func (s *Solver) Solve(ctx context.Context, entries []*ssa.Function) ([]CallEdge, error) {
	if s.frozen {
		return nil, errs.InternalInvariantf("Solve called on an already-frozen solver")
	}
	s.Hooks.OnStart()
	for _, fn := range entries {
		cm, id := s.CSMgr.InternMethod(fn, s.Pool.Empty())
		s.markReachable(cm, id)
	}

	for len(s.worklist) > 0 {
		select {
		case <-ctx.Done():
			return nil, errs.Cancelledf(ctx.Err())
		default:
		}
		item := s.worklist[0]
		s.worklist = s.worklist[1:]
		s.propagate(item.p, item.delta)
		s.Hooks.OnNewPointsToSet(item.p, item.delta)
	}

	s.frozen = true
	s.Hooks.OnFinish()
	return s.edges, nil
}

// addPointsTo unions a delta into p's points-to set: only the truly new
// elements are unioned in and pushed to the worklist.
func (s *Solver) addPointsTo(p cs.Pointer, delta []ptset.Obj) {
	if len(delta) == 0 {
		return
	}
	pts, ok := s.pts[p]
	if !ok {
		pts = &ptset.PTS{}
		s.pts[p] = pts
	}
	added := pts.AddAll(delta)
	if len(added) == 0 {
		return
	}
	s.worklist = append(s.worklist, workItem{p: p, delta: added})
}

// addPFGEdge adds a pointer flow graph edge: edges are deduplicated, and
// adding one against a non-empty source immediately
// enqueues the filtered current points-to set for the target, so edge
// addition and delta propagation commute regardless of which happens
// "first" in program order.
func (s *Solver) addPFGEdge(src, dst cs.Pointer, kind pfg.EdgeKind, filter types.Type) {
	_, added := s.pfg.AddEdge(src, dst, kind, filter)
	if !added {
		return
	}
	srcPTS, ok := s.pts[src]
	if !ok || srcPTS.Len() == 0 {
		return
	}
	delta := srcPTS.Slice()
	if filter != nil {
		delta = pfg.Apply(filter, s.Heap.TypeOf, delta)
	}
	s.addPointsTo(dst, delta)
}

// propagate is one worklist pop: fan a delta at p out along every outgoing
// PFG edge, and re-drive any pending virtual/dynamic call or field/array
// access keyed on p.
func (s *Solver) propagate(p cs.Pointer, delta []ptset.Obj) {
	for _, e := range s.pfg.Out(p) {
		d := delta
		if e.Kind == pfg.Cast {
			d = pfg.Apply(e.Filter, s.Heap.TypeOf, d)
		}
		if len(d) == 0 {
			continue
		}
		s.addPointsTo(e.Dst, d)
	}

	if calls, ok := s.pendingCalls[p]; ok {
		for _, pc := range calls {
			for _, o := range delta {
				s.dispatch(pc, o)
			}
		}
	}
	if fas, ok := s.instFields[p]; ok {
		for _, fa := range fas {
			for _, o := range delta {
				s.materializeField(fa, o)
			}
		}
	}
	if aas, ok := s.arrays[p]; ok {
		for _, aa := range aas {
			for _, o := range delta {
				s.materializeArray(aa, o)
			}
		}
	}
}

func (s *Solver) materializeField(fa *fieldAccess, o ptset.Obj) {
	fieldPtr := s.CSMgr.InternInstanceField(heap.Obj(o), fa.field)
	valuePtr := s.varPtr(fa.caller, fa.value)
	if fa.store {
		s.addPFGEdge(valuePtr, fieldPtr, pfg.InstanceStore, nil)
	} else {
		s.addPFGEdge(fieldPtr, valuePtr, pfg.InstanceLoad, nil)
	}
}

func (s *Solver) materializeArray(aa *arrayAccess, o ptset.Obj) {
	arrPtr := s.CSMgr.InternArrayIndex(heap.Obj(o))
	valuePtr := s.varPtr(aa.caller, aa.value)
	if aa.store {
		s.addPFGEdge(valuePtr, arrPtr, pfg.ArrayStore, nil)
	} else {
		s.addPFGEdge(arrPtr, valuePtr, pfg.ArrayLoad, nil)
	}
}

// registerFieldAccess records a field store/load statement keyed by the
// receiver CSVar and immediately flushes it against any points-to elements
// the receiver already carries (an earlier statement in the same method
// may have already allocated into it before this statement is reached).
func (s *Solver) registerFieldAccess(recv cs.Pointer, fa *fieldAccess) {
	s.instFields[recv] = append(s.instFields[recv], fa)
	if pts, ok := s.pts[recv]; ok && pts.Len() > 0 {
		for _, o := range pts.Slice() {
			s.materializeField(fa, o)
		}
	}
}

func (s *Solver) registerArrayAccess(recv cs.Pointer, aa *arrayAccess) {
	s.arrays[recv] = append(s.arrays[recv], aa)
	if pts, ok := s.pts[recv]; ok && pts.Len() > 0 {
		for _, o := range pts.Slice() {
			s.materializeArray(aa, o)
		}
	}
}

// registerPendingCall records an unresolved virtual/interface/dynamic call
// keyed by its receiver/function-value CSVar and immediately dispatches
// against any objects already in that pointer's points-to set.
func (s *Solver) registerPendingCall(recv cs.Pointer, pc *pendingCall) {
	s.pendingCalls[recv] = append(s.pendingCalls[recv], pc)
	if pts, ok := s.pts[recv]; ok && pts.Len() > 0 {
		for _, o := range pts.Slice() {
			s.dispatch(pc, o)
		}
	}
}

func (s *Solver) dispatch(pc *pendingCall, o ptset.Obj) {
	if pc.kind == Dynamic {
		s.dispatchDynamic(pc, o)
		return
	}
	s.dispatchVirtual(pc, o)
}

func (s *Solver) dispatchVirtual(pc *pendingCall, o ptset.Obj) {
	declType := s.Heap.TypeOf(o)
	fn := s.resolveMethod(declType, pc.site)
	if fn == nil {
		s.Hooks.OnUnresolvedCall(pc.site, pc.caller)
		return
	}
	s.processCall(pc.site, pc.caller, o, true, pc.kind, fn)
}

func (s *Solver) dispatchDynamic(pc *pendingCall, o ptset.Obj) {
	fn, ok := s.funcObjs[o]
	if !ok {
		s.Hooks.OnUnresolvedCall(pc.site, pc.caller)
		return
	}
	s.processCall(pc.site, pc.caller, 0, false, pc.kind, fn)
}

// resolveMethod dispatches a virtual/interface call statically known only
// by its abstract *types.Func (ssa.CallCommon.Method) against the
// receiver's declared concrete type. This is prog.LookupMethod's own body
// (go/ssa/methods.go), inlined so a method genuinely absent from declType
// (a mismatched pointer/value receiver shape the heap model's declared
// type doesn't cover) reports as an unresolved call instead of panicking.
func (s *Solver) resolveMethod(declType types.Type, site ssa.CallInstruction) *ssa.Function {
	if declType == nil {
		return nil
	}
	common := site.Common()
	meth := common.Method
	if meth == nil {
		return nil
	}
	sel := s.Prog.MethodSets.MethodSet(declType).Lookup(meth.Pkg(), meth.Name())
	if sel == nil {
		// declType may be the pointer-less value type while the method is
		// defined on *T, or vice versa; retry with the other shape.
		var alt types.Type
		if ptr, ok := declType.(*types.Pointer); ok {
			alt = ptr.Elem()
		} else {
			alt = types.NewPointer(declType)
		}
		sel = s.Prog.MethodSets.MethodSet(alt).Lookup(meth.Pkg(), meth.Name())
		if sel == nil {
			return nil
		}
	}
	return s.Prog.MethodValue(sel)
}

// markReachable implements reachability discovery: the first time a
// CSMethod is seen, broadcast onNewCSMethod/onNewMethod and walk its
// statements exactly once.
func (s *Solver) markReachable(cm cs.CSMethod, methodID ids.ID) {
	if s.reachable[methodID] {
		return
	}
	s.reachable[methodID] = true
	s.Hooks.OnNewCSMethod(cm)
	s.Hooks.OnNewMethod(cm)
	s.processMethod(cm)
}

// varPtr interns the CSVar pointer for v and, if v is itself a bare
// function reference (a package-level func used as a value without a
// closure), lazily seeds its points-to set with the function object so
// dynamic dispatch through it resolves, mirroring how *ssa.MakeClosure
// results are seeded at allocation time.
func (s *Solver) varPtr(cm cs.CSMethod, v ssa.Value) cs.Pointer {
	p := s.CSMgr.InternCSVar(cm, v)
	if fn, ok := v.(*ssa.Function); ok {
		s.ensureFuncObj(p, fn)
	}
	return p
}

func (s *Solver) ensureFuncObj(p cs.Pointer, fn *ssa.Function) {
	if s.funcObjSeen[p] {
		return
	}
	s.funcObjSeen[p] = true
	obj := s.Heap.GetObj(fn)
	s.funcObjs[obj] = fn
	s.addPointsTo(p, []ptset.Obj{obj})
}

func structField(addr *ssa.FieldAddr) *types.Var {
	ptrType := addr.X.Type().Underlying().(*types.Pointer)
	st := ptrType.Elem().Underlying().(*types.Struct)
	return st.Field(addr.Field)
}
