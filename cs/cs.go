// Package cs implements the context-sensitive manager: it interns the
// analysis's context-sensitive entities (CSVar, CSObj, CSMethod,
// instance-field pointers, array-index pointers, and static-field
// pointers) and assigns each a small id; the solver keys every pointer's
// points-to set and outgoing edges by the resulting cs.Pointer value.
package cs

import (
	"go/types"
	"sync"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/ctxt"
	"github.com/cspta/cspta/heap"
	"github.com/cspta/cspta/ids"
)

// CSObj is a context-sensitive abstract object. The heap context is folded
// into the Obj identity itself (see package heap), so a CSObj is simply
// the heap.Obj it wraps; the alias exists so call sites can spell out the
// domain vocabulary.
type CSObj = heap.Obj

// CSMethod is a (method, context) pair. Its reachability is monotone: once
// reachable, always reachable (enforced by the solver, not by this type).
type CSMethod struct {
	Fn  *ssa.Function
	Ctx *ctxt.Context
}

// PointerKind tags which of the four pointer shapes a Pointer value is.
type PointerKind uint8

const (
	// KindCSVar is a (CSMethod, ssa.Value) pointer: a local variable,
	// parameter, or any other SSA value that can hold a reference.
	KindCSVar PointerKind = iota
	// KindInstanceField is an (Obj, field) pointer.
	KindInstanceField
	// KindArrayIndex is an (Obj) pointer conflating all indices of one
	// abstract array object.
	KindArrayIndex
	// KindStaticField is a (package-level global) pointer.
	KindStaticField
)

func (k PointerKind) String() string {
	switch k {
	case KindCSVar:
		return "csvar"
	case KindInstanceField:
		return "instfield"
	case KindArrayIndex:
		return "arrindex"
	case KindStaticField:
		return "staticfield"
	default:
		return "unknown"
	}
}

// Pointer is a tagged union over the four pointer shapes, carrying a
// dense id within its kind's own
// sub-indexer plus a globally unique id across all kinds (Global, which
// also indexes the manager's reverse-lookup table). The solver and the
// PFG use the whole Pointer value as a map key.
type Pointer struct {
	Kind   PointerKind
	Local  ids.ID // dense id within this kind's own indexer
	Global ids.ID // dense id across all kinds, assigned once at first intern
}

type varKey struct {
	method ids.ID // dense id of the owning CSMethod
	value  ssa.Value
}

type fieldKey struct {
	recv  heap.Obj
	field *types.Var
}

// Manager interns CSMethods and the four pointer shapes and assigns every
// distinct entity a dense id. It is safe for concurrent use: the pointer
// maps and the reverse-lookup table live behind a single mutex, and the
// CSMethod indexer synchronizes itself. The CS manager is not on the
// solver's innermost per-delta hot path (pointers and methods are created
// once per distinct entity, not once per points-to delta), so a single
// mutex trades a lock-free or striped design for a simpler, still-correct
// implementation; this is recorded as a deliberate simplification in
// DESIGN.md rather than left implicit.
type Manager struct {
	methodIx *ids.Indexer[CSMethod]

	mu        sync.Mutex
	nextGlobal ids.ID

	varIDs    map[varKey]Pointer
	fieldIDs  map[fieldKey]Pointer
	arrIDs    map[heap.Obj]Pointer
	staticIDs map[*ssa.Global]Pointer

	info []pointerInfo // indexed by Pointer.Global
}

// pointerInfo is the reverse-lookup payload for a global pointer id,
// used by the result package and by debugging output (package print
// style, as golang.org/x/tools/go/pointer's print.go renders constraints
// from node ids).
type pointerInfo struct {
	self  Pointer
	kind  PointerKind
	csvar CSVar
	field InstanceField
	arr   ArrayIndex
	static StaticField
}

// CSVar is a (CSMethod, ssa.Value) pointer.
type CSVar struct {
	Method CSMethod
	Value  ssa.Value
}

// InstanceField is an (Obj, field) pointer: `recv.f`.
type InstanceField struct {
	Recv  heap.Obj
	Field *types.Var
}

// ArrayIndex is an (Obj) pointer for `recv[*]`, conflating every index.
type ArrayIndex struct {
	Recv heap.Obj
}

// StaticField is a (package-level global) pointer.
type StaticField struct {
	Global *ssa.Global
}

// NewManager returns an empty CS manager.
func NewManager() *Manager {
	return &Manager{
		methodIx:  ids.NewIndexer[CSMethod](),
		varIDs:    make(map[varKey]Pointer),
		fieldIDs:  make(map[fieldKey]Pointer),
		arrIDs:    make(map[heap.Obj]Pointer),
		staticIDs: make(map[*ssa.Global]Pointer),
	}
}

// InternMethod returns the dense id for (fn, ctx), assigning one on first
// use.
func (m *Manager) InternMethod(fn *ssa.Function, ctx *ctxt.Context) (CSMethod, ids.ID) {
	cm := CSMethod{Fn: fn, Ctx: ctx}
	return cm, m.methodIx.Intern(cm)
}

// MethodID returns the dense id for an already-interned CSMethod.
func (m *Manager) MethodID(cm CSMethod) (ids.ID, bool) {
	return m.methodIx.Lookup(cm)
}

// NumMethods reports how many distinct CSMethods have been interned.
func (m *Manager) NumMethods() int { return m.methodIx.Len() }

// EachMethod calls f once per interned CSMethod.
func (m *Manager) EachMethod(f func(CSMethod, ids.ID)) { m.methodIx.Each(f) }

func (m *Manager) nextGlobalLocked() ids.ID {
	id := m.nextGlobal
	m.nextGlobal++
	return id
}

// InternCSVar returns the Pointer for (method, v), assigning a new global
// and local id on first use.
func (m *Manager) InternCSVar(method CSMethod, v ssa.Value) Pointer {
	methodID, _ := m.MethodID(method)
	key := varKey{method: methodID, value: v}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.varIDs[key]; ok {
		return p
	}
	p := Pointer{Kind: KindCSVar, Local: ids.ID(len(m.varIDs)), Global: m.nextGlobalLocked()}
	m.varIDs[key] = p
	m.recordLocked(p, pointerInfo{kind: KindCSVar, csvar: CSVar{Method: method, Value: v}})
	return p
}

// InternInstanceField returns the Pointer for recv.field.
func (m *Manager) InternInstanceField(recv heap.Obj, field *types.Var) Pointer {
	key := fieldKey{recv: recv, field: field}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.fieldIDs[key]; ok {
		return p
	}
	p := Pointer{Kind: KindInstanceField, Local: ids.ID(len(m.fieldIDs)), Global: m.nextGlobalLocked()}
	m.fieldIDs[key] = p
	m.recordLocked(p, pointerInfo{kind: KindInstanceField, field: InstanceField{Recv: recv, Field: field}})
	return p
}

// InternArrayIndex returns the Pointer for recv[*].
func (m *Manager) InternArrayIndex(recv heap.Obj) Pointer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.arrIDs[recv]; ok {
		return p
	}
	p := Pointer{Kind: KindArrayIndex, Local: ids.ID(len(m.arrIDs)), Global: m.nextGlobalLocked()}
	m.arrIDs[recv] = p
	m.recordLocked(p, pointerInfo{kind: KindArrayIndex, arr: ArrayIndex{Recv: recv}})
	return p
}

// InternStaticField returns the Pointer for a package-level global.
func (m *Manager) InternStaticField(g *ssa.Global) Pointer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.staticIDs[g]; ok {
		return p
	}
	p := Pointer{Kind: KindStaticField, Local: ids.ID(len(m.staticIDs)), Global: m.nextGlobalLocked()}
	m.staticIDs[g] = p
	m.recordLocked(p, pointerInfo{kind: KindStaticField, static: StaticField{Global: g}})
	return p
}

func (m *Manager) recordLocked(p Pointer, info pointerInfo) {
	info.self = p
	for int(p.Global) >= len(m.info) {
		m.info = append(m.info, pointerInfo{})
	}
	m.info[p.Global] = info
}

// NumPointers reports how many distinct pointers (of any kind) have been
// interned.
func (m *Manager) NumPointers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.nextGlobal)
}

// Describe returns the kind-specific payload of p for diagnostics and for
// the result package's iteration accessors.
func (m *Manager) Describe(p Pointer) (CSVar, InstanceField, ArrayIndex, StaticField) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.info[p.Global]
	return info.csvar, info.field, info.arr, info.static
}

// EachPointer calls f once per interned pointer of any kind, in interning
// order. The result package uses this to build its per-kind iterators
// (CSVars, instance-field pointers, array pointers, static-field pointers)
// without needing its own copy of the four intern maps.
func (m *Manager) EachPointer(f func(Pointer)) {
	m.mu.Lock()
	snapshot := make([]Pointer, len(m.info))
	for i, info := range m.info {
		snapshot[i] = info.self
	}
	m.mu.Unlock()
	for _, p := range snapshot {
		f(p)
	}
}

// EachCSVar calls f once per interned CSVar pointer.
func (m *Manager) EachCSVar(f func(Pointer, CSVar)) {
	m.EachPointer(func(p Pointer) {
		if p.Kind != KindCSVar {
			return
		}
		csvar, _, _, _ := m.Describe(p)
		f(p, csvar)
	})
}

// EachInstanceField calls f once per interned instance-field pointer.
func (m *Manager) EachInstanceField(f func(Pointer, InstanceField)) {
	m.EachPointer(func(p Pointer) {
		if p.Kind != KindInstanceField {
			return
		}
		_, field, _, _ := m.Describe(p)
		f(p, field)
	})
}

// EachArrayIndex calls f once per interned array-index pointer.
func (m *Manager) EachArrayIndex(f func(Pointer, ArrayIndex)) {
	m.EachPointer(func(p Pointer) {
		if p.Kind != KindArrayIndex {
			return
		}
		_, _, arr, _ := m.Describe(p)
		f(p, arr)
	})
}

// EachStaticField calls f once per interned static-field pointer.
func (m *Manager) EachStaticField(f func(Pointer, StaticField)) {
	m.EachPointer(func(p Pointer) {
		if p.Kind != KindStaticField {
			return
		}
		_, _, _, static := m.Describe(p)
		f(p, static)
	})
}

func (cm CSMethod) String() string {
	if cm.Fn == nil {
		return "<nil>"
	}
	return cm.Fn.String() + cm.Ctx.String()
}
