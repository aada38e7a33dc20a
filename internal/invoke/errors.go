package invoke

import "fmt"

// AttemptError records one classified failure from a single candidate
// attempt, in the order attempts were made (spec §4.F/§7: "a framework-kind
// error whose nested field lists every attempt's classified error in
// order").
type AttemptError struct {
	Destination string
	Code        string
	Message     string
	Err         error
}

func (a AttemptError) Error() string {
	if a.Destination == "" {
		return fmt.Sprintf("%s: %s", a.Code, a.Message)
	}
	return fmt.Sprintf("%s (%s): %s", a.Destination, a.Code, a.Message)
}

func (a AttemptError) Unwrap() error { return a.Err }

// Framework-level error codes (spec §4.F step 3).
const (
	CodeUnreachable    = "UNREACHABLE"
	CodeNotImplemented = "NOT_IMPLEMENTED"
	CodeTimeout        = "TIMEOUT"
	CodeUnknownActor   = "UNKNOWN_ACTOR"
	CodeUnregistered   = "UNREGISTERED"
	CodeTimedOut       = "TIMED_OUT"
)

// FrameworkError is raised on exhaustion of every candidate across every
// backoff cycle, or on caller-deadline cancellation. It is always
// retriable in principle (the caller decides whether to retry the whole
// call again); Nested preserves every attempt's classification for
// triage (spec §7: "carry the full causal chain").
type FrameworkError struct {
	Code   string
	Nested []AttemptError
}

func (e *FrameworkError) Error() string {
	if len(e.Nested) == 0 {
		return fmt.Sprintf("invoke: framework error %s", e.Code)
	}
	return fmt.Sprintf("invoke: framework error %s after %d attempt(s): %s", e.Code, len(e.Nested), e.Nested[0].Error())
}

// Unwrap exposes every nested attempt so errors.Is/errors.As can walk the
// full causal chain (Go 1.20+ multi-unwrap, spec SPEC_FULL §"Errors").
func (e *FrameworkError) Unwrap() []error {
	out := make([]error, len(e.Nested))
	for i, a := range e.Nested {
		out[i] = a
	}
	return out
}

// ApplicationError is raised by the callee's own logic and is never
// retried; it propagates verbatim to the caller (spec §7).
type ApplicationError struct {
	Code       string
	Message    string
	Template   string
	Parameters map[string]any
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("invoke: application error %s: %s", e.Code, e.Message)
}

// Unwrap satisfies the multi-unwrap shape alongside FrameworkError, though
// an application error has no nested causes of its own.
func (e *ApplicationError) Unwrap() []error { return nil }
