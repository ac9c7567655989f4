// Package ctxt implements context interning and the pluggable context
// selector: an ordered, length-bounded tuple of call sites, receiver
// objects, or receiver types, canonicalized so that structurally equal
// contexts compare in O(1) by pointer identity.
package ctxt

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/heap"
)

// CallSite identifies a call instruction. ssa.CallInstruction covers both
// *ssa.Call and *ssa.Go/*ssa.Defer, all of which the k-call selector
// treats as call-site context elements.
type CallSite = ssa.CallInstruction

// Context is an interned, immutable tuple of context elements. The empty
// Context (Len() == 0) is the distinguished context-insensitive context;
// a Pool's Empty method always returns the same *Context value.
//
// Context values are only ever produced by a Pool, which guarantees that
// structurally equal tuples share one *Context, so callers may compare
// contexts with ==.
type Context struct {
	elems []any
	key   string
}

// Len reports the number of elements in the context.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.elems)
}

// Elems returns the context's elements, most-recent first (index 0 is the
// most recently appended element, the one a k-truncation keeps). Callers
// must not mutate the returned slice.
func (c *Context) Elems() []any {
	if c == nil {
		return nil
	}
	return c.elems
}

func (c *Context) String() string {
	if c.Len() == 0 {
		return "[]"
	}
	return "[" + c.key + "]"
}

// Pool interns Context values. Structurally equal element sequences
// always yield the same *Context pointer. Safe for concurrent use, since
// the front end may drive multiple call sites' context computation in
// parallel during a parallel solve.
type Pool struct {
	mu     sync.Mutex
	byKey  map[string]*Context
	empty  *Context
}

// NewPool returns a Pool with its distinguished empty context preinterned.
func NewPool() *Pool {
	p := &Pool{byKey: make(map[string]*Context)}
	p.empty = &Context{}
	p.byKey[""] = p.empty
	return p
}

// Empty returns the context-insensitive (zero-length) context.
func (p *Pool) Empty() *Context {
	return p.empty
}

// Intern returns the canonical *Context for the given element sequence,
// creating it on first use. elems must contain only comparable,
// stably-printable values: CallSite (pointer identity), heap.Obj (dense
// id), or types.Type (canonicalized by package heap before use).
func (p *Pool) Intern(elems ...any) *Context {
	if len(elems) == 0 {
		return p.empty
	}
	key := elemsKey(elems)
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.byKey[key]; ok {
		return c
	}
	c := &Context{elems: append([]any(nil), elems...), key: key}
	p.byKey[key] = c
	return c
}

// Append returns the context formed by prepending elem to base (elem
// becomes the new most-recent element) and truncating to at most k
// elements, keeping the k most recent. k <= 0 means unbounded.
func (p *Pool) Append(base *Context, elem any, k int) *Context {
	elems := make([]any, 0, base.Len()+1)
	elems = append(elems, elem)
	elems = append(elems, base.Elems()...)
	if k > 0 && len(elems) > k {
		elems = elems[:k]
	}
	return p.Intern(elems...)
}

// Truncate returns base kept to its k most recent elements (no-op if base
// is already that short or k <= 0).
func (p *Pool) Truncate(base *Context, k int) *Context {
	if k <= 0 || base.Len() <= k {
		return base
	}
	return p.Intern(base.Elems()[:k]...)
}

func elemsKey(elems []any) string {
	var b strings.Builder
	for i, e := range elems {
		if i > 0 {
			b.WriteByte('|')
		}
		switch v := e.(type) {
		case heap.Obj:
			fmt.Fprintf(&b, "o%d", v)
		case CallSite:
			fmt.Fprintf(&b, "c%p", v)
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}
