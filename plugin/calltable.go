package plugin

import (
	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
)

// calleeArgTable maps a callee's canonical name (ssa.Function.RelString(nil),
// e.g. "sort.Slice" or "(*sync.Once).Do") to the argument position holding a
// callback function value. It grounds ThreadHandler's "Thread.start
// dispatching to Thread.run" and LambdaAnalysis's lambda-desugaring in Go
// terms: standard-library APIs that invoke a caller-supplied function
// internally, where the body of that internal invocation never appears in
// the caller's own SSA and so the solver's ordinary call-edge construction
// cannot see it.
type calleeArgTable map[string]int

// dispatchKnownCallbacks inspects a resolved call edge against tbl and, for
// the literal function/closure case, marks the callback target reachable
// directly, approximating the effect of a call the callee's external body
// would otherwise have made. Callbacks reached only through a variable (not
// a literal *ssa.Function or *ssa.MakeClosure at the call site) are not
// resolved: doing so soundly would require watching the argument pointer's
// points-to set grow, which needs access to the solver's internal
// Obj->Function table that Host does not expose. This is a deliberate,
// documented precision gap for that callback argument's own dispatch, not
// a soundness one.
func dispatchKnownCallbacks(h Host, tbl calleeArgTable, site ssa.CallInstruction, caller cs.CSMethod) {
	common := site.Common()
	callee := common.StaticCallee()
	if callee == nil {
		return
	}
	argIndex, ok := tbl[callee.RelString(nil)]
	if !ok || argIndex >= len(common.Args) {
		return
	}
	switch fv := common.Args[argIndex].(type) {
	case *ssa.Function:
		h.MarkReachable(fv, nil)
	case *ssa.MakeClosure:
		if target, ok := fv.Fn.(*ssa.Function); ok {
			h.MarkReachable(target, nil)
		}
	}
}
