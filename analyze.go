package cspta

import (
	"context"
	"errors"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ctxt"
	"github.com/cspta/cspta/errs"
	"github.com/cspta/cspta/heap"
	"github.com/cspta/cspta/plugin"
	"github.com/cspta/cspta/result"
	"github.com/cspta/cspta/solver"
)

// Analyze runs the whole-program context-sensitive pointer analysis over
// prog, marking every function in entries reachable under the insensitive
// context and draining the worklist to a fixpoint, then returns the frozen
// Result. Analyze validates cfg before doing any analysis work, raising a
// ConfigurationError ahead of anything else.
//
// ctx governs cancellation: an expired or cancelled ctx aborts mid-solve
// and Analyze returns the wrapped *errs.Error (Kind Cancelled), leaving no
// Result to query.
func Analyze(ctx context.Context, cfg Config, prog *ssa.Program, entries []*ssa.Function) (*result.Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pool := ctxt.NewPool()
	selector, err := cfg.selector(pool)
	if err != nil {
		return nil, err
	}

	heapModel := heap.NewModel()
	if !cfg.DistinguishStringConstants {
		heapModel.MergeStringConstants = cfg.MergeStringObjects
	}

	csMgr := cs.NewManager()
	bus := plugin.NewBus(cfg.logger(), cfg.buildPlugins()...)

	s := solver.New(prog, csMgr, heapModel, pool, selector, cfg.logger(), bus)
	bus.BindHost(s)

	edges, err := s.Solve(ctx, entries)
	if err != nil {
		return nil, err
	}
	if pluginErr := bus.Err(); pluginErr != nil {
		name := "plugin"
		var fpe *plugin.FatalPluginError
		if errors.As(pluginErr, &fpe) {
			name = fpe.Plugin
		}
		return nil, errs.Pluginf(name, pluginErr)
	}
	return result.New(s, edges), nil
}
