// Package ids assigns small, non-negative integer identities to arbitrary
// comparable keys the first time they are seen. Every interned domain in
// the solver (objects, pointers, methods, statements, variables) goes
// through one of these so the rest of the analysis can address them with
// plain ints instead of pointers or map keys.
package ids

import "sync"

// ID is a dense identifier, assigned by an Indexer starting from whatever
// residue its owning shard happens to draw first; callers must not treat 0
// as an unassigned sentinel.
type ID uint32

// Indexer hands out a unique ID to each distinct key of type K
// the first time it is interned, and the same ID on every later call with
// an equal key. It is safe for concurrent use: the front end may build IR
// on multiple goroutines and plugins may intern lazily while the solver
// runs, so insertion is a striped-lock compute-if-absent rather than a bare
// map under one lock.
type Indexer[K comparable] struct {
	shards [indexerShards]indexerShard[K]
}

type indexerShard[K comparable] struct {
	mu   sync.Mutex
	ids  map[K]ID
	keys []K
}

const indexerShards = 32

// NewIndexer returns an empty Indexer for key type K.
func NewIndexer[K comparable]() *Indexer[K] {
	ix := &Indexer[K]{}
	for i := range ix.shards {
		ix.shards[i].ids = make(map[K]ID)
	}
	return ix
}

func shardFor[K comparable](ix *Indexer[K], k K) *indexerShard[K] {
	h := hashKey(k)
	return &ix.shards[h%indexerShards]
}

// Intern returns the dense id for k, assigning a fresh one if k has not
// been seen before. IDs are global across shards (monotonic counter
// guarded by a dedicated shard-0-adjacent lock would serialize all
// insertions, so instead each shard owns a disjoint residue class of the
// id space: id = shardIndex + shardCount*sequenceWithinShard). This keeps
// concurrent Intern calls from contending on a single counter while keeping
// ids small enough for bitset indexing; when shards fill unevenly the ids
// are not contiguous.
func (ix *Indexer[K]) Intern(k K) ID {
	s := shardFor(ix, k)
	h := int(hashKey(k) % indexerShards)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[k]; ok {
		return id
	}
	seq := len(s.keys)
	id := ID(h + seq*indexerShards)
	s.ids[k] = id
	s.keys = append(s.keys, k)
	return id
}

// Lookup returns the id for k without assigning one, and reports whether k
// has been interned.
func (ix *Indexer[K]) Lookup(k K) (ID, bool) {
	s := shardFor(ix, k)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[k]
	return id, ok
}

// Len returns the number of distinct keys interned so far.
func (ix *Indexer[K]) Len() int {
	n := 0
	for i := range ix.shards {
		ix.shards[i].mu.Lock()
		n += len(ix.shards[i].keys)
		ix.shards[i].mu.Unlock()
	}
	return n
}

// Each calls f once for every interned (key, id) pair, in unspecified
// order. f must not call back into Intern on the same Indexer.
func (ix *Indexer[K]) Each(f func(K, ID)) {
	for i := range ix.shards {
		s := &ix.shards[i]
		s.mu.Lock()
		for _, k := range s.keys {
			f(k, s.ids[k])
		}
		s.mu.Unlock()
	}
}

// hashKey is a cheap, non-cryptographic scatter of an arbitrary comparable
// key into shard space. It only needs to distribute keys roughly evenly;
// collisions across distinct keys are harmless since the shard itself
// still disambiguates by map lookup.
func hashKey[K comparable](k K) uint64 {
	// Every key shape goes through anyHash (fnv-1a over the key's "%#v"
	// form); no shape is special-cased.
	return anyHash(k)
}
