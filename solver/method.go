package solver

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/pfg"
	"github.com/cspta/cspta/ptset"
)

// processMethod walks a newly-reachable CSMethod's instructions exactly
// once, translating each into points-to facts and PFG edges. Functions with
// no body (external/intrinsic) contribute no statements.
func (s *Solver) processMethod(cm cs.CSMethod) {
	fn := cm.Fn
	if fn == nil || fn.Blocks == nil {
		return
	}
	// Return operands are registered before any call is processed, so a
	// recursive call met during this walk already sees every return value.
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if ret, ok := instr.(*ssa.Return); ok {
				s.processReturn(cm, ret)
			}
		}
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if _, ok := instr.(*ssa.Return); ok {
				continue
			}
			s.processInstr(cm, instr)
		}
	}
}

func (s *Solver) processInstr(cm cs.CSMethod, instr ssa.Instruction) {
	switch v := instr.(type) {
	case *ssa.Alloc:
		s.processAlloc(cm, v, v)
	case *ssa.MakeMap:
		s.processAlloc(cm, v, v)
	case *ssa.MakeChan:
		s.processAlloc(cm, v, v)
	case *ssa.MakeSlice:
		s.processAlloc(cm, v, v)
	case *ssa.MakeInterface:
		s.processMakeInterface(cm, v)
	case *ssa.MakeClosure:
		s.processMakeClosure(cm, v)
	case *ssa.Phi:
		s.processPhi(cm, v)
	case *ssa.ChangeType:
		s.processCast(cm, v.X, v, v.Type())
	case *ssa.ChangeInterface:
		s.processCast(cm, v.X, v, v.Type())
	case *ssa.TypeAssert:
		s.processCast(cm, v.X, v, v.AssertedType)
	case *ssa.Extract:
		s.processExtract(cm, v)
	case *ssa.Store:
		s.processStore(cm, v)
	case *ssa.UnOp:
		if v.Op == token.MUL {
			s.processLoad(cm, v)
		}
	case *ssa.Call:
		s.processCallInstr(cm, v)
	case *ssa.Go:
		s.processCallInstr(cm, v)
	case *ssa.Defer:
		s.processCallInstr(cm, v)
	case *ssa.Return:
		s.processReturn(cm, v)
	}
}

// processAlloc handles `x = new T()` and friends: allocate a fresh Obj
// under the current heap context and seed x's points-to set with it.
func (s *Solver) processAlloc(cm cs.CSMethod, v ssa.Value, site ssa.Value) ptset.Obj {
	heapCtx := s.Selector.SelectHeapContext(site, cm.Ctx)
	obj := s.Heap.GetObjContext(site, heapCtx)
	s.Selector.RecordAllocation(obj, heapCtx)
	p := s.varPtr(cm, v)
	s.addPointsTo(p, []ptset.Obj{obj})
	return obj
}

// processMakeInterface boxes a concrete value into an interface value. This
// is a copy, not a fresh allocation: the interface must carry forward the
// boxed value's own object identity and declared type, not a new object
// typed as the interface itself, or later dispatch on that interface value
// could never resolve to a concrete method and cast filters downstream
// would see the wrong type.
func (s *Solver) processMakeInterface(cm cs.CSMethod, v *ssa.MakeInterface) {
	src := s.varPtr(cm, v.X)
	dst := s.varPtr(cm, v)
	s.addPFGEdge(src, dst, pfg.LocalAssign, nil)
}

// processMakeClosure allocates the closure's Obj like any other allocation
// site and additionally records which *ssa.Function it invokes, so a
// dynamic call dispatched through it resolves.
func (s *Solver) processMakeClosure(cm cs.CSMethod, v *ssa.MakeClosure) {
	obj := s.processAlloc(cm, v, v)
	if fn, ok := v.Fn.(*ssa.Function); ok {
		if _, known := s.funcObjs[obj]; !known {
			s.funcObjs[obj] = fn
		}
	}
}

// processPhi is the only place a plain "copy" PFG edge is needed: SSA
// value uses elsewhere already refer to the defining value directly (same
// ssa.Value, same CSVar), but a Phi merges several distinct predecessors
// into one new CSVar.
func (s *Solver) processPhi(cm cs.CSMethod, phi *ssa.Phi) {
	dst := s.varPtr(cm, phi)
	for _, e := range phi.Edges {
		if e == nil {
			continue // edge from an unreachable predecessor block
		}
		src := s.varPtr(cm, e)
		s.addPFGEdge(src, dst, pfg.LocalAssign, nil)
	}
}

// processCast handles `x = (T) y`: a filtered PFG edge, covering
// ChangeType, ChangeInterface, and TypeAssert.
func (s *Solver) processCast(cm cs.CSMethod, x, dst ssa.Value, filter types.Type) {
	src := s.varPtr(cm, x)
	dstPtr := s.varPtr(cm, dst)
	s.addPFGEdge(src, dstPtr, pfg.Cast, filter)
}

// processExtract copies the tuple-typed source value (a comma-ok
// TypeAssert, or a multi-result call) through to the individual result
// value. The tuple CSVar is not split per slot, so every Extract of it sees
// the union of what the tuple holds. A multi-result call's return slots are
// wired straight to their own Extract values by wireReturns, so the
// callee's returns never flow into that call's tuple CSVar.
func (s *Solver) processExtract(cm cs.CSMethod, ex *ssa.Extract) {
	src := s.varPtr(cm, ex.Tuple)
	dst := s.varPtr(cm, ex)
	s.addPFGEdge(src, dst, pfg.LocalAssign, nil)
}

func (s *Solver) processStore(cm cs.CSMethod, st *ssa.Store) {
	switch addr := st.Addr.(type) {
	case *ssa.FieldAddr:
		recv := s.varPtr(cm, addr.X)
		field := structField(addr)
		s.registerFieldAccess(recv, &fieldAccess{field: field, value: st.Val, store: true, caller: cm})
	case *ssa.IndexAddr:
		recv := s.varPtr(cm, addr.X)
		s.registerArrayAccess(recv, &arrayAccess{value: st.Val, store: true, caller: cm})
	case *ssa.Global:
		srcPtr := s.varPtr(cm, st.Val)
		dstPtr := s.CSMgr.InternStaticField(addr)
		s.addPFGEdge(srcPtr, dstPtr, pfg.StaticStore, nil)
	}
}

func (s *Solver) processLoad(cm cs.CSMethod, u *ssa.UnOp) {
	switch addr := u.X.(type) {
	case *ssa.FieldAddr:
		recv := s.varPtr(cm, addr.X)
		field := structField(addr)
		s.registerFieldAccess(recv, &fieldAccess{field: field, value: u, store: false, caller: cm})
	case *ssa.IndexAddr:
		recv := s.varPtr(cm, addr.X)
		s.registerArrayAccess(recv, &arrayAccess{value: u, store: false, caller: cm})
	case *ssa.Global:
		srcPtr := s.CSMgr.InternStaticField(addr)
		dstPtr := s.varPtr(cm, u)
		s.addPFGEdge(srcPtr, dstPtr, pfg.StaticLoad, nil)
	}
}

// processCallInstr dispatches a *ssa.Call/*ssa.Go/*ssa.Defer by how the
// callee is known: invoke-mode (virtual/interface), a statically known
// callee (static/special), or a first-class function value (dynamic).
func (s *Solver) processCallInstr(cm cs.CSMethod, site ssa.CallInstruction) {
	common := site.Common()
	switch {
	case common.IsInvoke():
		s.processInvokeCall(cm, site, common)
	case common.StaticCallee() != nil:
		s.processStaticCall(cm, site, common)
	default:
		s.processDynamicCall(cm, site, common)
	}
}

func (s *Solver) processInvokeCall(cm cs.CSMethod, site ssa.CallInstruction, common *ssa.CallCommon) {
	recvPtr := s.varPtr(cm, common.Value)
	kind := Virtual
	if types.IsInterface(common.Value.Type()) {
		kind = Interface
	}
	s.registerPendingCall(recvPtr, &pendingCall{site: site, caller: cm, kind: kind})
}

func (s *Solver) processStaticCall(cm cs.CSMethod, site ssa.CallInstruction, common *ssa.CallCommon) {
	fn := common.StaticCallee()
	kind := Static
	if fn.Synthetic != "" {
		kind = Special
	}
	s.processCall(site, cm, 0, false, kind, fn)
}

func (s *Solver) processDynamicCall(cm cs.CSMethod, site ssa.CallInstruction, common *ssa.CallCommon) {
	fnPtr := s.varPtr(cm, common.Value)
	s.registerPendingCall(fnPtr, &pendingCall{site: site, caller: cm, kind: Dynamic})
}

func (s *Solver) processReturn(cm cs.CSMethod, ret *ssa.Return) {
	methodID, ok := s.CSMgr.MethodID(cm)
	if !ok {
		return
	}
	for i, r := range ret.Results {
		p := s.varPtr(cm, r)
		key := returnKey{method: methodID, index: i}
		s.returnVals[key] = append(s.returnVals[key], p)
	}
}
