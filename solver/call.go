package solver

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/heap"
	"github.com/cspta/cspta/ids"
	"github.com/cspta/cspta/pfg"
	"github.com/cspta/cspta/ptset"
)

// processCall resolves the callee's context, interns the CSMethod, records
// the call-graph edge and marks the callee reachable the first time this
// (site, calleeMethod) pair is seen, and wires argument-to-parameter and
// return-to-result edges.
//
// The (site, calleeMethod) guard only dedups the call-graph edge and the
// reachability/return work, which depend on the callee alone. wireArgs still
// runs on every dispatch: a virtual call site can route two distinct
// receiver objects of the same concrete type to the same callee context (so
// the same key), and each such object must still be bound into the callee's
// "this" parameter, not just the first one seen.
//
// recv/hasRecv are zero/false for static and dynamic calls, which have no
// "this" binding.
func (s *Solver) processCall(site ssa.CallInstruction, caller cs.CSMethod, recv ptset.Obj, hasRecv bool, kind CallKind, fn *ssa.Function) {
	var recvType types.Type
	if hasRecv {
		recvType = s.Heap.TypeOf(recv)
	}
	calleeCtx := s.Selector.SelectContext(site, caller.Ctx, heap.Obj(recv), hasRecv, recvType)
	calleeM, methodID := s.CSMgr.InternMethod(fn, calleeCtx)

	key := callEdgeKey{site: site, callee: methodID}
	if !s.callEdges[key] {
		s.callEdges[key] = true

		edge := CallEdge{Site: site, Caller: caller, Callee: calleeM, Kind: kind}
		s.edges = append(s.edges, edge)
		s.Hooks.OnNewCallEdge(edge)

		s.markReachable(calleeM, methodID)
		s.wireReturns(site, caller, calleeM, methodID, fn)
	}

	s.wireArgs(site, caller, calleeM, recv, hasRecv, fn)
}

// wireArgs binds the receiver into the callee's "this" parameter (when
// present) and adds parameter-passing edges from each argument CSVar at
// the call site to the corresponding parameter CSVar of the callee.
func (s *Solver) wireArgs(site ssa.CallInstruction, caller cs.CSMethod, calleeM cs.CSMethod, recv ptset.Obj, hasRecv bool, fn *ssa.Function) {
	params := fn.Params
	offset := 0
	if hasRecv && fn.Signature.Recv() != nil && len(params) > 0 {
		thisPtr := s.CSMgr.InternCSVar(calleeM, params[0])
		s.addPointsTo(thisPtr, []ptset.Obj{recv})
		offset = 1
	}

	args := site.Common().Args
	for i, a := range args {
		pi := i + offset
		if pi >= len(params) {
			break
		}
		argPtr := s.varPtr(caller, a)
		paramPtr := s.CSMgr.InternCSVar(calleeM, params[pi])
		s.addPFGEdge(argPtr, paramPtr, pfg.ParamPassing, nil)
	}
}

// wireReturns runs once per (site, calleeMethod): it binds the call site's
// result CSVar (if the result is used) to every CSVar that package-level
// Return statements of the callee have already registered for that result
// slot. Because markReachable runs
// processMethod synchronously, by the time wireReturns executes the
// callee's Return instructions (if its body has already been walked, here
// or from an earlier call edge) have already populated returnVals.
func (s *Solver) wireReturns(site ssa.CallInstruction, caller cs.CSMethod, calleeM cs.CSMethod, methodID ids.ID, fn *ssa.Function) {
	callVal := callResultValue(site)
	if callVal == nil || fn.Signature.Results() == nil {
		return
	}
	n := fn.Signature.Results().Len()
	for i := 0; i < n; i++ {
		slotVal := resultSlotValue(callVal, n, i)
		if slotVal == nil {
			continue
		}
		resultPtr := s.varPtr(caller, slotVal)
		key := returnKey{method: methodID, index: i}
		for _, retPtr := range s.returnVals[key] {
			s.addPFGEdge(retPtr, resultPtr, pfg.Return, nil)
		}
	}
}

// callResultValue returns the ssa.Value a *ssa.Call instruction produces,
// or nil for *ssa.Go/*ssa.Defer (which have no result value).
func callResultValue(site ssa.CallInstruction) ssa.Value {
	call, ok := site.(*ssa.Call)
	if !ok {
		return nil
	}
	return call
}

// resultSlotValue returns the ssa.Value carrying return slot index of a
// call's result: the call value itself when there is exactly one result,
// or the matching *ssa.Extract among the call's referrers when there are
// several (SSA represents multi-result calls as a tuple, consumed only
// through Extract instructions).
func resultSlotValue(callVal ssa.Value, numResults, index int) ssa.Value {
	if numResults <= 1 {
		if index == 0 {
			return callVal
		}
		return nil
	}
	refs := callVal.Referrers()
	if refs == nil {
		return nil
	}
	for _, instr := range *refs {
		if ex, ok := instr.(*ssa.Extract); ok && ex.Tuple == callVal && ex.Index == index {
			return ex
		}
	}
	return nil
}
