package ids

import (
	"fmt"
	"hash/fnv"
)

// anyHash scatters an arbitrary comparable key for shard selection. The
// key space here (allocation sites, (method,context) pairs, (obj,field)
// pairs) is small relative to program size, so the formatting cost is
// negligible next to the constraint-solving work it gates; callers that
// need a hot-path hash (the bitset-backed points-to sets in package ptset)
// key directly on the dense ID this package hands back, not on this hash.
func anyHash(k any) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%#v", k)
	return h.Sum64()
}
