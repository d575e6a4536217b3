// Package apperr defines the error kinds from which every component's
// failures are built. Kinds are sentinel values, not types: callers compare
// with errors.Is and wrap with fmt.Errorf("...: %w", kind) to attach context.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// TransientUpstream covers network errors, rate-limit rejections and
	// provider 5xx responses. Policy: retry at the next tick, never crash
	// the loop, contributes to failover.
	TransientUpstream = errors.New("transient upstream failure")

	// StaleData is returned when every adapter's data is older than its
	// freshness bound. Policy: serve with an age tag; past the hard limit,
	// escalate to SourceUnavailable.
	StaleData = errors.New("stale data")

	// SourceUnavailable is raised when all adapters failed and no
	// last-known-good quote is within the staleness limit.
	SourceUnavailable = errors.New("source unavailable")

	// ValidationError covers a user command with missing or malformed
	// slots. Policy: respond with a targeted clarification, do not execute.
	ValidationError = errors.New("validation error")

	// AuthorizationDenied is returned for a user not on the allow-list.
	AuthorizationDenied = errors.New("authorization denied")

	// RiskViolation covers an attempt to open a position that exceeds
	// sizing or consecutive-loss limits. Policy: refuse, no state mutation.
	RiskViolation = errors.New("risk violation")

	// PipelineOverrun marks a tick whose processing exceeded the cadence
	// interval. Policy: log at warn, skip overdue ticks, continue.
	PipelineOverrun = errors.New("pipeline overrun")

	// AnalysisTimeout is raised when a logical LLM call exceeds its total
	// wall-clock budget. Policy: fall back to rule-based advice.
	AnalysisTimeout = errors.New("analysis timeout")

	// ConfigurationError covers invalid or missing required configuration
	// at startup. Policy: refuse to start.
	ConfigurationError = errors.New("configuration error")
)

// Wrap attaches context to a sentinel kind while keeping errors.Is working.
func Wrap(kind error, format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &wrapped{kind: kind, msg: msg}
}

type wrapped struct {
	kind error
	msg  string
}

func (w *wrapped) Error() string { return w.msg + ": " + w.kind.Error() }
func (w *wrapped) Unwrap() error { return w.kind }
