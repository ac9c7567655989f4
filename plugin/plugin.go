// Package plugin implements the analysis-lifecycle hook contract: a bus
// fans out solver events (onStart, onNewMethod, onNewCallEdge,
// onNewPointsToSet, onNewCSMethod, onUnresolvedCall, onFinish) to
// registered plugins in registration order, and plugins call back into the
// solver through Host to add PFG edges, addPointsTo, mark a method
// reachable, or mint a synthetic Obj.
//
// The bus implements solver.Hooks; package solver implements Host (see
// solver/host.go) without importing this package, so the two packages
// depend on each other only through the Hooks/Host interfaces, never
// directly.
package plugin

import (
	"context"
	"fmt"
	"go/types"
	"io"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
	"github.com/cspta/cspta/ctxt"
	"github.com/cspta/cspta/pfg"
	"github.com/cspta/cspta/ptset"
	"github.com/cspta/cspta/solver"
)

// Host is the callback surface a plugin uses to inject constraints, mirrored
// from solver/host.go's implementation on *solver.Solver. It is declared
// here (not in package solver) so solver need not import plugin.
type Host interface {
	AddPointsTo(p cs.Pointer, objs []ptset.Obj) error
	AddEdge(src, dst cs.Pointer, kind pfg.EdgeKind, filter types.Type) error
	MarkReachable(fn *ssa.Function, c *ctxt.Context) (cs.CSMethod, error)
	NewSyntheticObj(tag string, t types.Type) ptset.Obj
	CSVarPointer(cm cs.CSMethod, v ssa.Value) cs.Pointer
	Describe(p cs.Pointer) (cs.CSVar, cs.InstanceField, cs.ArrayIndex, cs.StaticField)

	// PTS exposes the current (or, after Solve returns, frozen) points-to
	// set for p. Plugins use it to read back state they or the solver
	// seeded; TaintAnalysis's Finish hook is the primary consumer.
	PTS(p cs.Pointer) *ptset.PTS
}

// Plugin is the hook contract: an explicit interface with default no-op
// methods, not abstract-method inheritance. Concrete plugins embed
// BasePlugin and override only the hooks they care about.
type Plugin interface {
	Name() string
	Start(ctx context.Context, h Host) error
	OnNewMethod(h Host, m cs.CSMethod)
	OnNewCallEdge(h Host, edge solver.CallEdge)
	OnNewPointsToSet(h Host, p cs.Pointer, delta []ptset.Obj)
	OnNewCSMethod(h Host, m cs.CSMethod)
	OnUnresolvedCall(h Host, site ssa.CallInstruction, caller cs.CSMethod)
	Finish(h Host)
}

// BasePlugin supplies no-op implementations of every Plugin method except
// Name, which has no sensible default. Embed it and override selectively.
type BasePlugin struct{}

func (BasePlugin) Start(context.Context, Host) error                         { return nil }
func (BasePlugin) OnNewMethod(Host, cs.CSMethod)                             {}
func (BasePlugin) OnNewCallEdge(Host, solver.CallEdge)                       {}
func (BasePlugin) OnNewPointsToSet(Host, cs.Pointer, []ptset.Obj)            {}
func (BasePlugin) OnNewCSMethod(Host, cs.CSMethod)                          {}
func (BasePlugin) OnUnresolvedCall(Host, ssa.CallInstruction, cs.CSMethod) {}
func (BasePlugin) Finish(Host)                                              {}

// FatalPluginError is how a plugin marks an error fatal. A plugin hook
// panics with *FatalPluginError to request this;
// the bus recovers the panic, records it, and keeps running the remaining
// plugins (so one plugin's fatal request never masks another's output),
// surfacing it afterwards through Bus.Err. The solve itself is not stopped:
// Analyze checks Bus.Err only once Solve has returned.
type FatalPluginError struct {
	Plugin string
	Err    error
}

func (e *FatalPluginError) Error() string {
	return fmt.Sprintf("plugin %q: fatal: %v", e.Plugin, e.Err)
}

func (e *FatalPluginError) Unwrap() error { return e.Err }

// Bus aggregates registered plugins into a single composite and implements
// solver.Hooks. Every hook except OnStart runs plugins sequentially, in
// registration order, on the solver's own goroutine: the canonical
// fixpoint loop is single-threaded, and a hook that calls back into Host
// mutates worklist/PTS state that is not safe for concurrent mutation.
// OnStart is the one lifecycle point where plugins typically only perform
// independent setup (parsing a reflection log, opening a taint-config
// file) with nothing yet to race on, so it fans out through errgroup.
type Bus struct {
	logger  *log.Logger
	plugins []Plugin

	mu    sync.Mutex
	host  Host
	fatal error
}

// NewBus returns a Bus ready to BindHost once the solver exists. logger
// defaults to a discarding logger when nil.
func NewBus(logger *log.Logger, plugins ...Plugin) *Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bus{logger: logger, plugins: plugins}
}

// BindHost wires the bus to the solver that will drive it. Solver
// construction needs Hooks before the Solver (the future Host) exists, so
// binding happens as a second step: solver.New(..., bus) then
// bus.BindHost(theSolver).
func (b *Bus) BindHost(h Host) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.host = h
}

// Err reports the first fatal error any plugin raised, or nil.
func (b *Bus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fatal
}

func (b *Bus) recordFatal(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fatal == nil {
		b.fatal = err
	}
}

// guard recovers a panicking hook, logging non-fatal ones and recording
// *FatalPluginError ones without ever letting one plugin's failure stop the
// rest from running: exceptions from one plugin must not mask others.
func (b *Bus) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if fpe, ok := r.(*FatalPluginError); ok {
				b.recordFatal(fpe)
				return
			}
			if err, ok := r.(error); ok {
				b.logger.Printf("plugin %q: %v", name, err)
				return
			}
			b.logger.Printf("plugin %q: panic: %v", name, r)
		}
	}()
	fn()
}

func (b *Bus) host_() Host {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host
}

func (b *Bus) OnStart() {
	h := b.host_()
	g, ctx := errgroup.WithContext(context.Background())
	for _, p := range b.plugins {
		p := p
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					if fpe, ok := r.(*FatalPluginError); ok {
						err = fpe
						return
					}
					b.logger.Printf("plugin %q: panic during Start: %v", p.Name(), r)
				}
			}()
			return p.Start(ctx, h)
		})
	}
	if err := g.Wait(); err != nil {
		b.logger.Printf("plugin start: %v", err)
		b.recordFatal(err)
	}
}

func (b *Bus) OnNewMethod(m cs.CSMethod) {
	h := b.host_()
	for _, p := range b.plugins {
		p := p
		b.guard(p.Name(), func() { p.OnNewMethod(h, m) })
	}
}

func (b *Bus) OnNewCallEdge(edge solver.CallEdge) {
	h := b.host_()
	for _, p := range b.plugins {
		p := p
		b.guard(p.Name(), func() { p.OnNewCallEdge(h, edge) })
	}
}

func (b *Bus) OnNewPointsToSet(p cs.Pointer, delta []ptset.Obj) {
	h := b.host_()
	for _, pl := range b.plugins {
		pl := pl
		b.guard(pl.Name(), func() { pl.OnNewPointsToSet(h, p, delta) })
	}
}

func (b *Bus) OnNewCSMethod(m cs.CSMethod) {
	h := b.host_()
	for _, p := range b.plugins {
		p := p
		b.guard(p.Name(), func() { p.OnNewCSMethod(h, m) })
	}
}

func (b *Bus) OnUnresolvedCall(site ssa.CallInstruction, caller cs.CSMethod) {
	h := b.host_()
	for _, p := range b.plugins {
		p := p
		b.guard(p.Name(), func() { p.OnUnresolvedCall(h, site, caller) })
	}
}

func (b *Bus) OnFinish() {
	h := b.host_()
	for _, p := range b.plugins {
		p := p
		b.guard(p.Name(), func() { p.Finish(h) })
	}
}
