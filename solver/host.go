package solver

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ctxt"
	"github.com/cspta/cspta/errs"
	"github.com/cspta/cspta/pfg"
	"github.com/cspta/cspta/ptset"
)

// This file implements plugin.Host: the callback surface plugins get so
// they can add PFG edges, add to points-to sets, declare a method
// reachable, or register a synthetic Obj in response to a lifecycle hook.
// It is implemented here, not declared here, so package plugin can declare
// the Host interface without solver importing plugin.

// AddPointsTo lets a plugin add obj to p's points-to set, re-entering the
// worklist exactly as a statement-derived addPointsTo would. Returns an
// InternalInvariantError if called after the solver has frozen.
func (s *Solver) AddPointsTo(p cs.Pointer, objs []ptset.Obj) error {
	if s.frozen {
		return errs.InternalInvariantf("plugin attempted addPointsTo after freeze")
	}
	s.addPointsTo(p, objs)
	return nil
}

// AddEdge lets a plugin add a PFG edge, flushing any existing delta at src
// immediately, exactly as a statement-derived addPFGEdge would.
func (s *Solver) AddEdge(src, dst cs.Pointer, kind pfg.EdgeKind, filter types.Type) error {
	if s.frozen {
		return errs.InternalInvariantf("plugin attempted addPFGEdge after freeze")
	}
	s.addPFGEdge(src, dst, kind, filter)
	return nil
}

// MarkReachable lets a plugin declare fn reachable under ctx, simulating
// an implicit call; used by ClassInitializer/ThreadHandler style plugins
// to seed <clinit>/Thread.run-equivalent entry points.
func (s *Solver) MarkReachable(fn *ssa.Function, c *ctxt.Context) (cs.CSMethod, error) {
	if s.frozen {
		return cs.CSMethod{}, errs.InternalInvariantf("plugin attempted MarkReachable after freeze")
	}
	if c == nil {
		c = s.Pool.Empty()
	}
	cm, id := s.CSMgr.InternMethod(fn, c)
	s.markReachable(cm, id)
	return cm, nil
}

// NewSyntheticObj lets a plugin mint an object not tied to any real
// allocation site, e.g. the taint plugin's source markers or the
// reflection handler's resolved targets.
func (s *Solver) NewSyntheticObj(tag string, t types.Type) ptset.Obj {
	return s.Heap.NewSynthetic(tag, t)
}

// CSVarPointer interns the CSVar pointer for (cm, v), the same identity a
// statement-derived access to v from within cm would use. Plugins that
// need to name a specific pointer (e.g. the taint plugin reporting a sink
// argument) use this rather than reaching into package cs directly.
func (s *Solver) CSVarPointer(cm cs.CSMethod, v ssa.Value) cs.Pointer {
	return s.varPtr(cm, v)
}

// Describe exposes the CS manager's reverse lookup so plugins can inspect
// a pointer's kind-specific payload without importing package cs's
// internals directly.
func (s *Solver) Describe(p cs.Pointer) (cs.CSVar, cs.InstanceField, cs.ArrayIndex, cs.StaticField) {
	return s.CSMgr.Describe(p)
}
