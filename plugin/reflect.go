package plugin

import (
	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/ptset"
	"github.com/cspta/cspta/solver"
)

// ReflectionHandler resolves reflect.TypeOf/reflect.ValueOf-style calls by
// static-type propagation: when one is called on a value whose static type
// is visible at the call site (an *ssa.MakeInterface wrapping a concrete
// type, the shape every non-trivial interface conversion takes in SSA), a
// synthetic Obj tagged by that concrete type is seeded into the call
// result's points-to set. The richer log-driven resolution strategies are
// left unimplemented (DESIGN.md records the decision).
type ReflectionHandler struct {
	BasePlugin
}

// NewReflectionHandler returns a ready ReflectionHandler.
func NewReflectionHandler() *ReflectionHandler { return &ReflectionHandler{} }

func (r *ReflectionHandler) Name() string { return "reflect" }

func (r *ReflectionHandler) OnNewCallEdge(h Host, edge solver.CallEdge) {
	call, ok := edge.Site.(*ssa.Call)
	if !ok {
		return
	}
	common := call.Common()
	callee := common.StaticCallee()
	if callee == nil || len(common.Args) == 0 {
		return
	}
	switch callee.RelString(nil) {
	case "reflect.TypeOf", "reflect.ValueOf":
	default:
		return
	}
	mi, ok := common.Args[0].(*ssa.MakeInterface)
	if !ok {
		return
	}
	concrete := mi.X.Type()
	obj := h.NewSyntheticObj("reflect:"+concrete.String(), concrete)
	resultPtr := h.CSVarPointer(edge.Caller, call)
	h.AddPointsTo(resultPtr, []ptset.Obj{obj})
}
