package plugin

import (
	"sync"

	"golang.org/x/tools/go/ssa"

	"github.com/cspta/cspta/cs"
)

// ClassInitializer marks a package's initializer reachable on first use of
// that package, the Go analogue of marking a class's static initializer
// reachable on first use of the class: the first time any method of a
// package becomes reachable, the package's synthetic "init" function
// (go/ssa's fusion of package-level var initializers and user init funcs,
// in declaration/import order) is marked reachable too, under the
// context-insensitive context. Without this plugin a pointer analysis
// seeded only from main's entry points would never visit a package's
// initializers unless main happened to reach them through an ordinary
// call.
type ClassInitializer struct {
	BasePlugin

	mu   sync.Mutex
	seen map[*ssa.Package]bool
}

// NewClassInitializer returns a ready ClassInitializer.
func NewClassInitializer() *ClassInitializer {
	return &ClassInitializer{seen: make(map[*ssa.Package]bool)}
}

func (c *ClassInitializer) Name() string { return "classinit" }

func (c *ClassInitializer) OnNewMethod(h Host, m cs.CSMethod) {
	fn := m.Fn
	if fn == nil || fn.Pkg == nil {
		return
	}
	pkg := fn.Pkg

	c.mu.Lock()
	if c.seen[pkg] {
		c.mu.Unlock()
		return
	}
	c.seen[pkg] = true
	c.mu.Unlock()

	initFn := pkg.Func("init")
	if initFn == nil || initFn == fn {
		return
	}
	h.MarkReachable(initFn, nil)
}
