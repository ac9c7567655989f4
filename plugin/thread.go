package plugin

import (
	"github.com/cspta/cspta/solver"
)

// threadCallbacks models concurrency-scheduling APIs that dispatch to a
// callback in Go: an ordinary `go f()` already produces a call edge
// through the solver's own statement handling, so the one gap this plugin
// fills is the handful of standard-library APIs that schedule a callback
// from inside a body the solver never walks (the stdlib function has no
// SSA body in a typical build). The main goroutine itself needs no seeding
// here: the front end supplies main.main directly as a Solve entry point.
var threadCallbacks = calleeArgTable{
	"(*sync.Once).Do": 1,
	"time.AfterFunc":  1,
}

// ThreadHandler resolves the concurrency-scheduling half of that gap.
type ThreadHandler struct {
	BasePlugin
}

// NewThreadHandler returns a ready ThreadHandler.
func NewThreadHandler() *ThreadHandler { return &ThreadHandler{} }

func (t *ThreadHandler) Name() string { return "thread" }

func (t *ThreadHandler) OnNewCallEdge(h Host, edge solver.CallEdge) {
	dispatchKnownCallbacks(h, threadCallbacks, edge.Site, edge.Caller)
}
