// Package invoke implements the remote invocation engine from spec §4.F: a
// proxy that resolves an actor's host candidates from the placement
// registry, tries each in turn through an abstract Remote transport, and
// classifies failures into retriable framework errors or terminal
// application errors.
package invoke

import (
	"context"
	"time"

	"github.com/arborfield/actorcore/internal/placement"
)

// InvokeOptions is the wire-agnostic call description handed to a Remote
// (spec §6: "To remote transport").
type InvokeOptions struct {
	Destination string
	ActorType   string
	ID          []string
	ActionName  string
	Arguments   any
	Deadline    time.Time
}

// RemoteError is the callee-classified failure shape carried inside
// InvokeResult.Content (spec §6).
type RemoteError struct {
	Kind       string // "framework" or "application"
	Code       string
	Message    string
	Template   string
	Parameters map[string]any
}

// Content is the successful-or-classified payload of an InvokeResult.
type Content struct {
	Result []byte
	Error  *RemoteError
}

// InvokeResult is what a Remote returns for one attempt. ErrorCode, when
// non-empty, is a framework-level transport failure (connection refused,
// no such actor locally, etc.) distinct from a Content.Error returned by
// the callee's own code.
type InvokeResult struct {
	ErrorCode    string
	ErrorMessage string
	Content      *Content
}

// Remote is the abstract transport spec §6 specifies: "Remote { invoke(options) → result }".
type Remote interface {
	Invoke(ctx context.Context, opts InvokeOptions) (InvokeResult, error)
}

// BackoffConfig configures ExponentialBackOff (spec §6's backoff.baseMs /
// backoff.attempts).
type BackoffConfig struct {
	Base  time.Duration
	Count int
}

// DefaultBackoff matches spec §6's documented defaults.
var DefaultBackoff = BackoffConfig{Base: 10 * time.Millisecond, Count: 4}

// Engine ties a placement registry to a Remote transport and runs the
// candidate-iteration/backoff/retry algorithm of spec §4.F.
type Engine struct {
	Registry *placement.Registry
	Waiter   *placement.Waiter
	Remote   Remote
	Backoff  BackoffConfig
}

// NewEngine returns an Engine with DefaultBackoff; override Backoff on the
// returned value to customize.
func NewEngine(reg *placement.Registry, remote Remote) *Engine {
	return &Engine{
		Registry: reg,
		Waiter:   placement.NewWaiter(reg),
		Remote:   remote,
		Backoff:  DefaultBackoff,
	}
}

// Portal is the caller-facing retrieve<I>(type,id) → proxy surface (spec
// §4.F).
type Portal struct {
	engine *Engine
}

// NewPortal wraps engine in a Portal.
func NewPortal(engine *Engine) *Portal {
	return &Portal{engine: engine}
}

// Retrieve returns a Proxy bound to actorType/id; every call it makes runs
// the full candidate-resolution/backoff/retry sequence independently (spec
// §4.F step 6: "multiple concurrent proxy calls are independent").
func (p *Portal) Retrieve(actorType string, id []string) *Proxy {
	return &Proxy{engine: p.engine, actorType: actorType, id: id}
}

// Proxy marshals one actor's method calls to the invocation engine. A
// single proxy call is strictly sequential internally; Go's normal call
// semantics already guarantee that for any one goroutine, so Proxy needs no
// internal locking of its own — spec §4.F step 6's ordering guarantee holds
// by construction as long as one goroutine doesn't issue two concurrent
// calls on the same Proxy (which would be a caller bug, same as calling any
// non-reentrant client concurrently).
type Proxy struct {
	engine    *Engine
	actorType string
	id        []string
}

// Invoke runs actionName(arguments) against the actor, retrying across
// candidates and backoff cycles per spec §4.F, and returns either the
// callee's raw result bytes, an *ApplicationError (terminal, propagated
// verbatim), or a *FrameworkError (exhausted retries or deadline).
func (p *Proxy) Invoke(ctx context.Context, actionName string, arguments any) ([]byte, error) {
	return p.engine.invoke(ctx, p.actorType, p.id, actionName, arguments)
}

func (e *Engine) invoke(ctx context.Context, actorType string, id []string, actionName string, arguments any) ([]byte, error) {
	delays := ExponentialBackOff(e.Backoff.Base, e.Backoff.Count)
	var attempts []AttemptError

	for cycle := 0; cycle <= e.Backoff.Count; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, &FrameworkError{Code: CodeTimedOut, Nested: attempts}
		}

		candidates := e.Registry.Resolve(actorType, id)
		if len(candidates) == 0 {
			waitCtx, cancel := context.WithTimeout(ctx, delays[cycle])
			resolved, err := e.Waiter.ResolveWait(waitCtx, actorType, id)
			cancel()
			if err != nil {
				attempts = append(attempts, AttemptError{Code: CodeUnregistered, Message: "no placement mapping", Err: err})
				if ctx.Err() != nil {
					return nil, &FrameworkError{Code: CodeTimedOut, Nested: attempts}
				}
				continue
			}
			candidates = resolved
		}

		for _, dest := range candidates {
			opts := InvokeOptions{
				Destination: dest,
				ActorType:   actorType,
				ID:          id,
				ActionName:  actionName,
				Arguments:   arguments,
			}
			result, err := e.Remote.Invoke(ctx, opts)
			if err != nil {
				attempts = append(attempts, AttemptError{Destination: dest, Code: CodeUnreachable, Message: err.Error(), Err: err})
				continue // framework error: next candidate, same cycle
			}
			if result.ErrorCode != "" {
				attempts = append(attempts, AttemptError{Destination: dest, Code: result.ErrorCode, Message: result.ErrorMessage})
				continue
			}
			if result.Content == nil {
				attempts = append(attempts, AttemptError{Destination: dest, Code: CodeUnreachable, Message: "empty content"})
				continue
			}
			if result.Content.Error != nil {
				ce := result.Content.Error
				if ce.Kind == "application" {
					return nil, &ApplicationError{Code: ce.Code, Message: ce.Message, Template: ce.Template, Parameters: ce.Parameters}
				}
				attempts = append(attempts, AttemptError{Destination: dest, Code: ce.Code, Message: ce.Message})
				continue
			}
			return result.Content.Result, nil
		}

		if cycle < e.Backoff.Count {
			select {
			case <-time.After(delays[cycle]):
			case <-ctx.Done():
				return nil, &FrameworkError{Code: CodeTimedOut, Nested: attempts}
			}
		}
	}

	return nil, &FrameworkError{Code: lastCode(attempts), Nested: attempts}
}

func lastCode(attempts []AttemptError) string {
	if len(attempts) == 0 {
		return CodeUnregistered
	}
	return attempts[len(attempts)-1].Code
}
