// Package pfg implements the pointer flow graph: a directed graph over
// cs.Pointer nodes whose labeled edges determine how a points-to delta at
// the source propagates to the target.
package pfg

import (
	"go/types"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ptset"
)

// EdgeKind labels a PFG edge with the propagation rule that applies to it.
type EdgeKind uint8

const (
	// LocalAssign propagates a delta unchanged: PTS(t) ⋃= Δ.
	LocalAssign EdgeKind = iota
	// Cast filters the delta by the edge's Filter type: PTS(t) ⋃= {o ∈
	// Δ : type(o) ≼ Filter}.
	Cast
	// InstanceStore and InstanceLoad (and the Array and Static kinds)
	// label concrete edges that propagate like LocalAssign. The solver
	// adds the instance and array ones per receiver object once a delta
	// reaches the receiver CSVar (value -> recv.f for a store, recv.f ->
	// value for a load); the statement itself is tracked by the solver,
	// not by an edge (see package solver).
	InstanceStore
	InstanceLoad
	ArrayStore
	ArrayLoad
	StaticStore
	StaticLoad
	// ParamPassing propagates an argument to a resolved callee's
	// parameter.
	ParamPassing
	// Return propagates a callee's return value to the call site's
	// result CSVar.
	Return
)

func (k EdgeKind) String() string {
	switch k {
	case LocalAssign:
		return "local-assign"
	case Cast:
		return "cast"
	case InstanceStore:
		return "instance-store"
	case InstanceLoad:
		return "instance-load"
	case ArrayStore:
		return "array-store"
	case ArrayLoad:
		return "array-load"
	case StaticStore:
		return "static-store"
	case StaticLoad:
		return "static-load"
	case ParamPassing:
		return "parameter-passing"
	case Return:
		return "return"
	default:
		return "unknown"
	}
}

// Edge is one PFG edge, (source, target, kind, optional type filter).
type Edge struct {
	Src    cs.Pointer
	Dst    cs.Pointer
	Kind   EdgeKind
	Filter types.Type // non-nil only for Kind == Cast
}

type edgeKey struct {
	src, dst cs.Pointer
	kind     EdgeKind
	filter   types.Type
}

// Graph is the pointer flow graph: deduplicated edges indexed by source
// pointer, so the solver can enumerate a pointer's outgoing edges in
// O(out-degree) per worklist pop.
type Graph struct {
	out  map[cs.Pointer][]Edge
	seen map[edgeKey]bool
}

// NewGraph returns an empty PFG.
func NewGraph() *Graph {
	return &Graph{
		out:  make(map[cs.Pointer][]Edge),
		seen: make(map[edgeKey]bool),
	}
}

// AddEdge inserts (src -> dst, kind, filter) if it is not already present
// and reports whether it was newly added. Edges are deduplicated by
// (src,dst,kind,filter).
func (g *Graph) AddEdge(src, dst cs.Pointer, kind EdgeKind, filter types.Type) (Edge, bool) {
	key := edgeKey{src: src, dst: dst, kind: kind, filter: filter}
	e := Edge{Src: src, Dst: dst, Kind: kind, Filter: filter}
	if g.seen[key] {
		return e, false
	}
	g.seen[key] = true
	g.out[src] = append(g.out[src], e)
	return e, true
}

// Out returns the outgoing edges of p. Callers must not mutate the
// returned slice.
func (g *Graph) Out(p cs.Pointer) []Edge {
	return g.out[p]
}

// Apply filters delta through a Cast edge's type filter using ≼
// (assignability, approximated here by go/types' AssignableTo, which is
// the standard library's subtype-compatible relation and needs no
// third-party type-compatibility library). typeOf resolves an object id
// to its declared type; LocalAssign and all other non-filtering kinds
// pass delta through untouched, so this is only ever called for Cast
// edges from the solver.
func Apply(filter types.Type, typeOf func(o ptset.Obj) types.Type, delta []ptset.Obj) []ptset.Obj {
	if filter == nil {
		return delta
	}
	var out []ptset.Obj
	for _, o := range delta {
		t := typeOf(o)
		if t != nil && types.AssignableTo(t, filter) {
			out = append(out, o)
		}
	}
	return out
}
