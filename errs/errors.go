// Package errs defines the error taxonomy surfaced at the analysis core's
// boundary: configuration errors, front-end inconsistencies, plugin
// failures, cancellation, and internal invariant violations.
package errs

import (
	errors "golang.org/x/xerrors"
)

// Kind classifies a core-boundary error so callers can branch on it with
// errors.As without depending on a concrete type per kind.
type Kind uint8

const (
	// Configuration marks an unknown or invalid option value, raised
	// before any analysis work starts.
	Configuration Kind = iota
	// FrontEnd marks inconsistent input from the IR/type-system binding
	// (e.g. a call whose declaring type cannot be resolved). Fatal.
	FrontEnd
	// Plugin marks a failure raised by a plugin hook. Non-fatal unless
	// the plugin marked it fatal.
	Plugin
	// Cancelled marks cooperative termination via a cancellation signal
	// or an expired wall-clock budget.
	Cancelled
	// InternalInvariant marks a violated solver invariant (a PTS shrank,
	// the freeze barrier was crossed after Solve returned). Always fatal;
	// indicates a bug in the solver or a plugin.
	InternalInvariant
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case FrontEnd:
		return "front-end"
	case Plugin:
		return "plugin"
	case Cancelled:
		return "cancelled"
	case InternalInvariant:
		return "internal-invariant"
	default:
		return "unknown"
	}
}

// Error is a core-boundary error tagged with its Kind. Errors wrapping it
// chain via %w, so errors.As(err, *Error) recovers the Kind regardless of
// how many layers wrapped it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// Configurationf builds a ConfigurationError for an unknown or invalid
// option value.
func Configurationf(format string, args ...any) error {
	return newf(Configuration, format, args...)
}

// FrontEndf builds a FrontEndError for inconsistent input from the IR
// binding.
func FrontEndf(format string, args ...any) error {
	return newf(FrontEnd, format, args...)
}

// Pluginf builds a PluginError, identifying the offending plugin by name.
func Pluginf(plugin string, cause error) error {
	return &Error{Kind: Plugin, Err: errors.Errorf("plugin %q: %w", plugin, cause)}
}

// Cancelledf builds a Cancelled error wrapping the triggering context error.
func Cancelledf(cause error) error {
	return &Error{Kind: Cancelled, Err: errors.Errorf("analysis cancelled: %w", cause)}
}

// InternalInvariantf builds an InternalInvariantError describing the
// violated invariant.
func InternalInvariantf(format string, args ...any) error {
	return newf(InternalInvariant, format, args...)
}

// Is reports whether the first *Error in err's chain carries the given
// Kind; a *Error further down the chain is not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
