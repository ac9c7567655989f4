package ctxt

import (
	"fmt"
	"go/types"
	"sync"

	"github.com/cspta/cspta/heap"
)

// Selector chooses the callee context at a dispatch and the heap context
// under which a new allocation is materialized. The four variants (ci,
// k-call, k-obj, k-type) all implement this one interface: there is no
// class hierarchy, just four small structs offering pluggable dispatch
// without a deep type hierarchy.
type Selector interface {
	// Name identifies the variant, e.g. "2-call", used in diagnostics and
	// to satisfy the cs configuration option.
	Name() string

	// SelectContext computes the callee context for a call from a method
	// executing under callerCtx. hasRecv is false for static calls, in
	// which case recvObj/recvType are ignored and k-obj/k-type fall back
	// to callerCtx.
	SelectContext(site any, callerCtx *Context, recvObj heap.Obj, hasRecv bool, recvType types.Type) *Context

	// SelectHeapContext computes the heap context for an allocation
	// executing under callerCtx.
	SelectHeapContext(site any, callerCtx *Context) *Context

	// RecordAllocation remembers the heap context an object was created
	// under, so that a later call through that object as a receiver can
	// recover it (k-obj/k-type). Insensitive and k-call selectors ignore
	// this since they never consult an object's allocation context.
	RecordAllocation(obj heap.Obj, heapCtx *Context)
}

// Insensitive is the context-insensitive selector: every method has
// exactly one, empty, context.
type Insensitive struct {
	pool *Pool
}

// NewInsensitive returns the ci selector.
func NewInsensitive(pool *Pool) *Insensitive { return &Insensitive{pool: pool} }

func (s *Insensitive) Name() string { return "ci" }

func (s *Insensitive) SelectContext(any, *Context, heap.Obj, bool, types.Type) *Context {
	return s.pool.Empty()
}

func (s *Insensitive) SelectHeapContext(any, *Context) *Context {
	return s.pool.Empty()
}

func (s *Insensitive) RecordAllocation(heap.Obj, *Context) {}

// KCall is the k-call-site-sensitive selector: the callee context is the
// caller's context with the call site prepended, truncated to the k most
// recent call sites. Heap contexts for k-call are simply the (truncated)
// caller context.
type KCall struct {
	K    int
	pool *Pool
}

// NewKCall returns a k-call selector. k must be >= 1.
func NewKCall(pool *Pool, k int) *KCall { return &KCall{K: k, pool: pool} }

func (s *KCall) Name() string { return fmt.Sprintf("%d-call", s.K) }

func (s *KCall) SelectContext(site any, callerCtx *Context, _ heap.Obj, _ bool, _ types.Type) *Context {
	return s.pool.Append(callerCtx, site, s.K)
}

func (s *KCall) SelectHeapContext(_ any, callerCtx *Context) *Context {
	return s.pool.Truncate(callerCtx, s.K)
}

func (s *KCall) RecordAllocation(heap.Obj, *Context) {}

// objHeapContexts is the shared bookkeeping k-obj and k-type both need:
// the heap context each object was allocated under.
type objHeapContexts struct {
	mu  sync.RWMutex
	ctx map[heap.Obj]*Context
}

func newObjHeapContexts() *objHeapContexts {
	return &objHeapContexts{ctx: make(map[heap.Obj]*Context)}
}

func (o *objHeapContexts) record(obj heap.Obj, hctx *Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.ctx[obj]; !ok {
		o.ctx[obj] = hctx
	}
}

func (o *objHeapContexts) get(obj heap.Obj, pool *Pool) *Context {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if c, ok := o.ctx[obj]; ok {
		return c
	}
	return pool.Empty()
}

// KObj is the k-object-sensitive selector: the callee context is the
// receiver object's heap context with the receiver object itself
// prepended, truncated to k. Heap contexts nested one level deeper are
// k-1 long, the standard Smaragdakis formulation of object sensitivity.
type KObj struct {
	K    int
	pool *Pool
	objs *objHeapContexts
}

// NewKObj returns a k-obj selector. k must be >= 1.
func NewKObj(pool *Pool, k int) *KObj {
	return &KObj{K: k, pool: pool, objs: newObjHeapContexts()}
}

func (s *KObj) Name() string { return fmt.Sprintf("%d-obj", s.K) }

func (s *KObj) SelectContext(_ any, callerCtx *Context, recvObj heap.Obj, hasRecv bool, _ types.Type) *Context {
	if !hasRecv {
		return callerCtx
	}
	base := s.objs.get(recvObj, s.pool)
	return s.pool.Append(base, recvObj, s.K)
}

func (s *KObj) SelectHeapContext(_ any, callerCtx *Context) *Context {
	if s.K <= 1 {
		return s.pool.Empty()
	}
	return s.pool.Truncate(callerCtx, s.K-1)
}

func (s *KObj) RecordAllocation(obj heap.Obj, hctx *Context) {
	s.objs.record(obj, hctx)
}

// KType is the k-type-sensitive selector: identical to KObj except the
// element appended (and looked up) is the receiver's declaring type
// rather than the object identity itself.
type KType struct {
	K    int
	pool *Pool
	objs *objHeapContexts
}

// NewKType returns a k-type selector. k must be >= 1.
func NewKType(pool *Pool, k int) *KType {
	return &KType{K: k, pool: pool, objs: newObjHeapContexts()}
}

func (s *KType) Name() string { return fmt.Sprintf("%d-type", s.K) }

func (s *KType) SelectContext(_ any, callerCtx *Context, recvObj heap.Obj, hasRecv bool, recvType types.Type) *Context {
	if !hasRecv {
		return callerCtx
	}
	base := s.objs.get(recvObj, s.pool)
	return s.pool.Append(base, typeKey(recvType), s.K)
}

func (s *KType) SelectHeapContext(_ any, callerCtx *Context) *Context {
	if s.K <= 1 {
		return s.pool.Empty()
	}
	return s.pool.Truncate(callerCtx, s.K-1)
}

func (s *KType) RecordAllocation(obj heap.Obj, hctx *Context) {
	s.objs.record(obj, hctx)
}

// typeKey returns a stable, comparable representative for t to use as a
// context element. types.Type values from the same go/types.Info are
// already pointer-comparable for identical types, but defensively keying
// on the canonical string form avoids surprises from types produced by
// distinct *types.Package instances describing what is semantically the
// same type.
func typeKey(t types.Type) any {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
