// Package cspta is the analysis core's external interface: a Config
// validated eagerly (ConfigurationError before any analysis work), and
// Analyze, which wires a *ssa.Program and entry points through the
// cs/ctxt/heap/pfg/solver/plugin/result packages into a frozen Result.
package cspta

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/cspta/cspta/ctxt"
	"github.com/cspta/cspta/errs"
	"github.com/cspta/cspta/plugin"
)

// SolverKind selects the fixpoint engine variant the `solver` option names.
type SolverKind string

const (
	// SolverDefault is the optimized engine: delta propagation, the hybrid
	// points-to-set representation, and on-the-fly edge filtering.
	SolverDefault SolverKind = "default"
	// SolverSimple is accepted by validation; no separate reference
	// engine exists, so Analyze runs the default engine for it too.
	SolverSimple SolverKind = "simple"
)

// ReflectionInference selects the strategy used for resolving reflective
// calls.
type ReflectionInference string

const (
	ReflectionOff            ReflectionInference = "off"
	ReflectionStringConstant ReflectionInference = "string-constant"
	ReflectionSolar          ReflectionInference = "solar"
)

// Config is the core's external configuration surface, modeled on
// `go/pointer`'s `pointer.Config` and `go/analysis`'s struct-literal
// (flag-free) style: a typed struct validated once, eagerly, before any
// analysis work starts.
type Config struct {
	// Solver names the fixpoint engine variant. Zero value is
	// SolverDefault. Both values pass validation; Analyze runs the same
	// solver.Solver engine for either.
	Solver SolverKind

	// CS selects the context-sensitivity variant: "ci", "1-call"/"1-cfa",
	// "2-call"/"2-cfa", "1-obj"/"1-object", "2-obj"/"2-object", "1-type",
	// "2-type". Zero value is "ci".
	CS string

	// OnlyApp records the only-app choice. Analyze does not read it and
	// does not restrict the analysis to application packages; EntryPoints
	// applies that filter through its own onlyApp argument.
	OnlyApp bool

	// DistinguishStringConstants, when true, leaves heap.Model's
	// MergeStringConstants off regardless of MergeStringObjects.
	DistinguishStringConstants bool

	// MergeStringObjects sets heap.Model's MergeStringConstants (one shared
	// Obj per distinct string literal value) unless
	// DistinguishStringConstants is set. The solver allocates no objects
	// for *ssa.Const values, so neither toggle changes an analysis result.
	MergeStringObjects bool

	// MergeStringBuilders and MergeExceptionObjects are accepted for
	// configuration-shape fidelity but are documented no-ops: see
	// DESIGN.md's Config entry for why no heap-model hook
	// currently distinguishes a strings.Builder/bytes.Buffer allocation
	// from any other struct allocation, and why Go's panic/recover (a
	// plain `any` value, not a Throwable hierarchy) gives
	// MergeExceptionObjects nothing type-identifiable to merge on.
	MergeStringBuilders  bool
	MergeExceptionObjects bool

	// TaintConfig, if non-nil, enables the taint plugin.
	TaintConfig *plugin.TaintConfig

	// ReflectionInference selects the reflective-call resolution
	// strategy. Zero value is ReflectionOff. ReflectionSolar is accepted
	// and validated but not implemented (see DESIGN.md's Open Question
	// decision); only ReflectionStringConstant wires the reflect plugin.
	ReflectionInference ReflectionInference

	// ReflectionLog is a path to an externally supplied reflection log.
	// Accepted for configuration-shape fidelity; no log reader is wired
	// since the front end provides no file-system access point to bind
	// one to (see DESIGN.md).
	ReflectionLog string

	// ExceptionSearchDepth bounds ExceptionAnalysis's bounded-depth callee
	// search. 0 defaults to 5 (plugin.NewExceptionAnalysis's own default).
	ExceptionSearchDepth uint

	// EnableThreadHandler, EnableLambdaAnalysis, EnableClassInitializer,
	// EnableExceptionAnalysis, EnableTimer turn on the corresponding
	// built-in plugin. All default to false; Analyze only ever registers
	// the plugins a caller opts into; the taint/reflection plugins are
	// instead gated on TaintConfig/ReflectionInference directly, whose
	// presence enables the respective plugin.
	EnableThreadHandler     bool
	EnableLambdaAnalysis    bool
	EnableClassInitializer  bool
	EnableExceptionAnalysis bool
	EnableTimer             bool

	// ExtraPlugins are registered after the built-ins, in the order
	// given; registration order is observable but not load-bearing for
	// fixpoint correctness.
	ExtraPlugins []plugin.Plugin

	// Logger receives the plugin diagnostics the plugin bus logs; the
	// solver writes nothing to it. Defaults to a discarding logger.
	Logger *log.Logger
}

// validate rejects an unknown or invalid option value before any analysis
// work starts, raising a ConfigurationError.
func (c *Config) validate() error {
	switch c.Solver {
	case "", SolverDefault, SolverSimple:
	default:
		return errs.Configurationf("unknown solver value %q", c.Solver)
	}
	if _, err := parseCSKind(c.CS); err != nil {
		return err
	}
	switch c.ReflectionInference {
	case "", ReflectionOff, ReflectionStringConstant, ReflectionSolar:
	default:
		return errs.Configurationf("unknown reflection-inference value %q", c.ReflectionInference)
	}
	return nil
}

// logger returns c.Logger, defaulting to a discarding logger.
func (c *Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.New(io.Discard, "", 0)
}

// csKind is the parsed shape of Config.CS: a family name plus its k
// parameter (0 for "ci").
type csKind struct {
	family string // "ci", "call", "obj", "type"
	k      int
}

// parseCSKind parses Config.CS, accepting every documented alias
// ("1-call"/"1-cfa" are synonyms, etc.). An empty string means "ci".
func parseCSKind(raw string) (csKind, error) {
	if raw == "" || raw == "ci" {
		return csKind{family: "ci"}, nil
	}
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return csKind{}, errs.Configurationf("unknown cs value %q", raw)
	}
	k, err := strconv.Atoi(parts[0])
	if err != nil || k < 1 {
		return csKind{}, errs.Configurationf("unknown cs value %q", raw)
	}
	switch parts[1] {
	case "call", "cfa":
		return csKind{family: "call", k: k}, nil
	case "obj", "object":
		return csKind{family: "obj", k: k}, nil
	case "type":
		return csKind{family: "type", k: k}, nil
	default:
		return csKind{}, errs.Configurationf("unknown cs value %q", raw)
	}
}

// selector builds the ctxt.Selector Config.CS names.
func (c *Config) selector(pool *ctxt.Pool) (ctxt.Selector, error) {
	kind, err := parseCSKind(c.CS)
	if err != nil {
		return nil, err
	}
	switch kind.family {
	case "ci":
		return ctxt.NewInsensitive(pool), nil
	case "call":
		return ctxt.NewKCall(pool, kind.k), nil
	case "obj":
		return ctxt.NewKObj(pool, kind.k), nil
	case "type":
		return ctxt.NewKType(pool, kind.k), nil
	default:
		return nil, errs.Configurationf("unknown cs value %q", c.CS)
	}
}

// buildPlugins assembles the plugin list Analyze registers with the bus,
// in a fixed, documented order: Timer first, so it measures the whole
// run, then the built-ins a caller opted into, then taint/reflection
// (gated on their own config presence), then any caller-supplied
// ExtraPlugins last.
func (c *Config) buildPlugins() []plugin.Plugin {
	var plugins []plugin.Plugin
	if c.EnableTimer {
		plugins = append(plugins, plugin.NewTimer())
	}
	if c.EnableClassInitializer {
		plugins = append(plugins, plugin.NewClassInitializer())
	}
	if c.EnableThreadHandler {
		plugins = append(plugins, plugin.NewThreadHandler())
	}
	if c.EnableLambdaAnalysis {
		plugins = append(plugins, plugin.NewLambdaAnalysis())
	}
	if c.EnableExceptionAnalysis {
		plugins = append(plugins, plugin.NewExceptionAnalysis(c.ExceptionSearchDepth))
	}
	if c.ReflectionInference == ReflectionStringConstant {
		plugins = append(plugins, plugin.NewReflectionHandler())
	}
	if c.TaintConfig != nil {
		plugins = append(plugins, plugin.NewTaintAnalysis(*c.TaintConfig))
	}
	plugins = append(plugins, c.ExtraPlugins...)
	return plugins
}

func (k csKind) String() string {
	if k.family == "ci" {
		return "ci"
	}
	return fmt.Sprintf("%d-%s", k.k, k.family)
}
