// Package heap implements the allocation-site heap model: every abstract
// object's identity is its allocation site, optionally paired with a heap
// context, and every object carries the declared concrete type of its
// allocation. Two allocation sites always yield distinct objects; the
// same (site, heap context) pair always yields the same object.
package heap

import (
	"go/constant"
	"go/types"
	"sync"

	"fmt"

	"golang.org/x/sync/singleflight"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/types/typeutil"

	"github.com/cspta/cspta/ids"
)

// Obj is the dense id of an abstract heap object. It is what every
// points-to set (package ptset) actually stores.
type Obj = ids.ID

// Site identifies an allocation instruction: the solver passes *ssa.Alloc,
// *ssa.MakeClosure, *ssa.MakeMap, *ssa.MakeChan, *ssa.MakeSlice, and
// *ssa.Function (for function objects). A *ssa.Const string literal is
// also accepted and is folded per the string-constant merge toggles.
// ssa.Value identity is stable and comparable (pointer identity of the
// underlying struct), so it is used directly rather than reified into a
// synthetic integer.
type Site = ssa.Value

// HeapCtx is an opaque heap-context token produced by a context selector
// (package ctxt). The heap model treats it as an opaque comparable key: it
// never interprets the token, it only uses it to distinguish the same
// allocation site analyzed under different heap contexts. Insensitive
// selectors always pass the same value, their pool's empty context.
type HeapCtx any

// key is the full identity of an abstract object. site is typed any rather
// than Site so that a synthetic marker (synSite) can share the same dense
// id space as real allocation sites (see NewSynthetic) without requiring
// plugins to implement the large ssa.Value interface.
type key struct {
	site any
	hctx HeapCtx
}

// synSite identifies a synthetic object a plugin registers directly,
// rather than one tied to a real allocation instruction. Interning is
// idempotent in the tag: requesting the same tag twice returns the same
// Obj, matching the CS manager's compute-if-absent convention elsewhere
// in this module.
type synSite string

// Model is the heap abstraction: it hands out dense Obj ids for
// (allocation site, heap context) pairs and remembers each object's
// declared type. It is safe for concurrent use; the front end may walk
// multiple functions' instructions in parallel, and plugins may request
// synthetic objects while the solver is draining its worklist.
type Model struct {
	ix    *ids.Indexer[key]
	mu    sync.RWMutex
	types map[Obj]types.Type

	// MergeStringConstants collapses every string-literal allocation
	// into a single shared Obj per distinct literal value (configurable
	// via the distinguish-string-constants option) rather than one per
	// occurrence in the program.
	MergeStringConstants bool
	// MergeAllConstants additionally merges every string constant,
	// regardless of value, into one Obj. Only meaningful when
	// MergeStringConstants is also true.
	MergeAllConstants bool

	strMu    sync.Mutex
	strConst map[string]Site // canonical representative site per literal value
	oneConst Site             // representative site when MergeAllConstants

	canon typeutil.Map // canonicalizes declared types, as go/callgraph/vta does for propagation types

	// sf collapses duplicate concurrent declared-type computations for the
	// same (site, hctx) pair, supporting concurrent interning without
	// duplicating work: the id itself is already deduplicated by
	// ix.Intern, but two goroutines racing to populate m.types for a
	// brand-new id would otherwise both walk and canonicalize the
	// declared type.
	sf singleflight.Group
}

// NewModel returns an empty heap model.
func NewModel() *Model {
	return &Model{
		ix:       ids.NewIndexer[key](),
		types:    make(map[Obj]types.Type),
		strConst: make(map[string]Site),
	}
}

// GetObj returns the Obj for site under the nil heap context. The solver
// uses it for function objects; its allocation sites always go through
// GetObjContext with the selector's heap context, whatever the selector.
func (m *Model) GetObj(site Site) Obj {
	return m.GetObjContext(site, nil)
}

// GetObjContext returns the Obj for (site, hctx), assigning a fresh one on
// first use. String-constant allocations are folded per the
// MergeStringConstants/MergeAllConstants toggles before the (site, hctx)
// pair is interned, so merged constants share one Obj across every call
// site and every heap context.
func (m *Model) GetObjContext(site Site, hctx HeapCtx) Obj {
	if c, ok := site.(*ssa.Const); ok && m.MergeStringConstants && c.Value != nil && c.Value.Kind() == constant.String {
		hctx = nil
	}
	site = m.canonicalSite(site)
	id := m.ix.Intern(key{site: site, hctx: hctx})
	m.ensureType(id, site)
	return id
}

// ensureType populates m.types[id] exactly once, collapsing concurrent
// callers racing to compute the same new id's declared type through a
// singleflight.Group keyed by id.
func (m *Model) ensureType(id Obj, site Site) {
	m.mu.RLock()
	_, known := m.types[id]
	m.mu.RUnlock()
	if known {
		return
	}
	m.sf.Do(fmt.Sprintf("%d", id), func() (any, error) {
		m.mu.RLock()
		_, known := m.types[id]
		m.mu.RUnlock()
		if known {
			return nil, nil
		}
		t := m.canonicalize(declaredType(site))
		m.mu.Lock()
		m.types[id] = t
		m.mu.Unlock()
		return nil, nil
	})
}

// canonicalSite resolves site to its merge representative when string
// constant merging is enabled; otherwise it is the identity function.
func (m *Model) canonicalSite(site Site) Site {
	c, ok := site.(*ssa.Const)
	if !ok || !m.MergeStringConstants || c.Value == nil || c.Value.Kind() != constant.String {
		return site
	}
	m.strMu.Lock()
	defer m.strMu.Unlock()
	if m.MergeAllConstants {
		if m.oneConst == nil {
			m.oneConst = site
		}
		return m.oneConst
	}
	lit := c.Value.String()
	if rep, ok := m.strConst[lit]; ok {
		return rep
	}
	m.strConst[lit] = site
	return site
}

// NewSynthetic returns the Obj for a plugin-registered synthetic object
// identified by tag (e.g. "reflect.Value", a taint source marker), carrying
// declared type t. Requesting the same tag again returns the same Obj.
func (m *Model) NewSynthetic(tag string, t types.Type) Obj {
	id := m.ix.Intern(key{site: synSite(tag)})
	m.mu.RLock()
	_, known := m.types[id]
	m.mu.RUnlock()
	if known {
		return id
	}
	m.sf.Do("synthetic:"+tag, func() (any, error) {
		m.mu.RLock()
		_, known := m.types[id]
		m.mu.RUnlock()
		if known {
			return nil, nil
		}
		ct := m.canonicalize(t)
		m.mu.Lock()
		m.types[id] = ct
		m.mu.Unlock()
		return nil, nil
	})
	return id
}

// TypeOf returns the declared type of obj, which must have been produced
// by this model.
func (m *Model) TypeOf(obj Obj) types.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[obj]
}

// canonicalize interns t through the model's typeutil.Map so that two
// go/types.Type values describing the same type (but not identical via
// ==, e.g. reconstructed generic instantiations) compare equal when used
// as cast-filter targets.
func (m *Model) canonicalize(t types.Type) types.Type {
	if t == nil {
		return nil
	}
	if v := m.canon.At(t); v != nil {
		return v.(types.Type)
	}
	m.canon.Set(t, t)
	return t
}

func declaredType(site Site) types.Type {
	if site == nil {
		return nil
	}
	return site.Type()
}
