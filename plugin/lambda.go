package plugin

import (
	"github.com/cspta/cspta/solver"
)

// lambdaCallbacks desugars lambda/bootstrap-style constructs into synthetic
// method targets. Go's SSA builder already desugars closures into explicit
// *ssa.MakeClosure values (processMakeClosure handles those directly), so
// the remaining gap is the same shape as ThreadHandler's but for ordinary
// (non-concurrency) higher-order standard-library functions.
var lambdaCallbacks = calleeArgTable{
	"sort.Slice":       1,
	"sort.SliceStable": 1,
	"sort.Search":      1,
}

// LambdaAnalysis resolves calls through those higher-order entry points.
type LambdaAnalysis struct {
	BasePlugin
}

// NewLambdaAnalysis returns a ready LambdaAnalysis.
func NewLambdaAnalysis() *LambdaAnalysis { return &LambdaAnalysis{} }

func (l *LambdaAnalysis) Name() string { return "lambda" }

func (l *LambdaAnalysis) OnNewCallEdge(h Host, edge solver.CallEdge) {
	dispatchKnownCallbacks(h, lambdaCallbacks, edge.Site, edge.Caller)
}
