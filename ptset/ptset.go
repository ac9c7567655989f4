// Package ptset implements a hybrid points-to set representation: each
// abstract pointer owns one, and the representation grows one-way as
// elements are added, from empty, to an inline singleton, to a small sorted
// array, to a bitset once the set outgrows smallThreshold. Every mutator
// reports the delta it added so the solver can push exactly the new
// elements onto its worklist instead of recomputing a set difference
// against the previous snapshot.
//
// This generalizes the map-backed nodeset in golang.org/x/tools/go/pointer
// (one representation, O(1) membership but no small-set locality and no
// delta tracking) into a three-tier scheme.
package ptset

import "github.com/cspta/cspta/ids"

// Obj is the id of an abstract heap object, as assigned by the heap
// model's ids.Indexer (see package heap). ptset only ever deals in the
// dense id, never the object itself.
type Obj = ids.ID

// smallThreshold is the largest size at which PTS keeps a sorted array
// before promoting to a bitset, chosen to keep the very common near-empty
// pointers (the overwhelming majority in any real program) allocation-free.
const smallThreshold = 8

type kind uint8

const (
	kindEmpty kind = iota
	kindSingleton
	kindSmall
	kindLarge
)

// PTS is a points-to set. The zero value is the empty set.
type PTS struct {
	k    kind
	elem Obj    // valid when k == kindSingleton
	arr  []Obj  // sorted, unique, valid when k == kindSmall
	bits *words // valid when k == kindLarge
}

// Len reports the number of elements in the set.
func (p *PTS) Len() int {
	switch p.k {
	case kindEmpty:
		return 0
	case kindSingleton:
		return 1
	case kindSmall:
		return len(p.arr)
	default:
		return p.bits.count()
	}
}

// Has reports whether o is in the set.
func (p *PTS) Has(o Obj) bool {
	switch p.k {
	case kindEmpty:
		return false
	case kindSingleton:
		return p.elem == o
	case kindSmall:
		_, found := search(p.arr, o)
		return found
	default:
		return p.bits.has(o)
	}
}

// AddAll unions delta into p and returns the subset of delta that was not
// already present, the elements the solver must propagate further. The
// returned slice is owned by the caller; PTS keeps no reference to it.
//
// This is the one surface that can change p's representation kind; every
// transition (empty->singleton->small->large) is one-way, matching the
// monotonicity of points-to sets under a forward-only fixpoint.
func (p *PTS) AddAll(delta []Obj) []Obj {
	if len(delta) == 0 {
		return nil
	}
	var added []Obj
	for _, o := range delta {
		if p.add(o) {
			added = append(added, o)
		}
	}
	return added
}

// Add is the single-element case of AddAll.
func (p *PTS) Add(o Obj) bool {
	return p.add(o)
}

func (p *PTS) add(o Obj) bool {
	switch p.k {
	case kindEmpty:
		p.k = kindSingleton
		p.elem = o
		return true

	case kindSingleton:
		if p.elem == o {
			return false
		}
		p.arr = make([]Obj, 0, 4)
		p.arr = append(p.arr, p.elem, o)
		if p.arr[0] > p.arr[1] {
			p.arr[0], p.arr[1] = p.arr[1], p.arr[0]
		}
		p.k = kindSmall
		return true

	case kindSmall:
		i, found := search(p.arr, o)
		if found {
			return false
		}
		if len(p.arr) == smallThreshold {
			p.promote()
			return p.bits.add(o)
		}
		p.arr = append(p.arr, 0)
		copy(p.arr[i+1:], p.arr[i:])
		p.arr[i] = o
		return true

	default: // kindLarge
		return p.bits.add(o)
	}
}

// promote moves a full small array into a bitset representation.
func (p *PTS) promote() {
	b := newWords()
	for _, o := range p.arr {
		b.add(o)
	}
	p.bits = b
	p.arr = nil
	p.k = kindLarge
}

// Union merges other into p and returns the delta (elements newly added
// to p), without modifying other.
func (p *PTS) Union(other *PTS) []Obj {
	if other == nil {
		return nil
	}
	var added []Obj
	other.Each(func(o Obj) {
		if p.add(o) {
			added = append(added, o)
		}
	})
	return added
}

// Each calls f once for every element, in ascending id order for the
// small/large representations (the singleton and empty cases are
// trivially ordered). Callers must not mutate p from f.
func (p *PTS) Each(f func(Obj)) {
	switch p.k {
	case kindEmpty:
		return
	case kindSingleton:
		f(p.elem)
	case kindSmall:
		for _, o := range p.arr {
			f(o)
		}
	default:
		p.bits.each(f)
	}
}

// Slice materializes the set as a freshly allocated, ascending-order slice.
func (p *PTS) Slice() []Obj {
	out := make([]Obj, 0, p.Len())
	p.Each(func(o Obj) { out = append(out, o) })
	return out
}

// Diff returns the elements of p not present in other (p \ other), as a
// freshly allocated slice. Used by property checks and tests; the solver's
// hot path uses AddAll's returned delta instead of Diff, since Diff
// re-walks the whole receiver.
func (p *PTS) Diff(other *PTS) []Obj {
	var out []Obj
	p.Each(func(o Obj) {
		if other == nil || !other.Has(o) {
			out = append(out, o)
		}
	})
	return out
}

// search finds o in the sorted slice arr, returning its index (insertion
// point when not found) and whether it was found.
func search(arr []Obj, o Obj) (int, bool) {
	lo, hi := 0, len(arr)
	for lo < hi {
		mid := (lo + hi) / 2
		if arr[mid] < o {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(arr) && arr[lo] == o
}
