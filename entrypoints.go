package cspta

import (
	"strings"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// EntryPoints returns every function ssautil.AllFunctions discovers in
// prog, optionally confined to application packages (the `only-app`
// option). This is entry-point *seeding*, not reachability: Analyze still
// discovers the true reachable set on the fly as the solver walks from
// whichever functions are passed to it. Callers that already know their
// program's real entry points (a main package's func main, a set of
// exported API functions, test functions) should pass those directly to
// Analyze instead of this whole-program over-approximation.
func EntryPoints(prog *ssa.Program, onlyApp bool) []*ssa.Function {
	all := ssautil.AllFunctions(prog)
	out := make([]*ssa.Function, 0, len(all))
	for fn := range all {
		if fn == nil || fn.Pkg == nil || fn.Pkg.Pkg == nil {
			continue
		}
		if onlyApp && isStdlibPath(fn.Pkg.Pkg.Path()) {
			continue
		}
		out = append(out, fn)
	}
	return out
}

// isStdlibPath reports whether path names a standard-library import path,
// using the same heuristic golint/vet-family tools use: a standard-library
// import path never contains a dot in its first path segment (a module
// host name always does, e.g. "github.com/..."). The bare path "main", which
// a main package built without a module path carries, is reported as not
// standard library.
func isStdlibPath(path string) bool {
	if path == "main" {
		return false
	}
	first := path
	if i := strings.IndexByte(path, '/'); i >= 0 {
		first = path[:i]
	}
	return !strings.Contains(first, ".")
}
