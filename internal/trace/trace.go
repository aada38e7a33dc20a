// Package trace implements the scope tree from spec §4.D: a tree of named
// segments carrying a correlation-id chain and accumulated attributes,
// propagated through cooperative suspension as an explicitly threaded
// context.Context value rather than a module-level global (spec §9:
// "never rely on module-level singletons").
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type scopeKey struct{}

// Event is emitted on scope enter/exit.
type Event struct {
	Kind          string // "enter" or "exit"
	Scope         *Scope
	Monotonic     time.Time
	Wall          time.Time
	Err           error // set on "exit" if the scope's fn returned/panicked with an error
}

// Sink receives every enter/exit event across every scope rooted from a
// given Tracer. Implementations must not block significantly; Emit is
// called synchronously from branch/perform.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Scope is one node in the scope tree: uid, optional parent, an inherited
// and extendable correlation-id list, and accumulated attributes.
type Scope struct {
	UID            string
	ParentUID      string
	Name           string
	CorrelationIDs []string

	mu         sync.Mutex
	attrs      map[string]any
	startMono  time.Time
	startWall  time.Time

	sink Sink
}

// Tracer owns the sink every Scope created under it reports to. A Tracer is
// the root of zero or more independent scope trees (one per call to
// Branch(ctx, ...) with a background ctx).
type Tracer struct {
	sink Sink
}

// New returns a Tracer whose scopes emit events to sink. A nil sink is
// valid: events are simply dropped.
func New(sink Sink) *Tracer {
	return &Tracer{sink: sink}
}

// Current returns the scope propagated through ctx, or nil if ctx carries
// none.
func Current(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// Branch opens a child of the scope currently carried by ctx (or a new root
// if ctx carries none), returning a context that carries it so that
// cooperative suspension (sleeps, I/O waits, channel receives) observes the
// same scope on resumption — the propagation is ordinary Go context value
// passing, which survives goroutine-free suspension by construction.
func (tr *Tracer) Branch(ctx context.Context, name string, id string, attrs map[string]any) (context.Context, *Scope) {
	parent := Current(ctx)
	s := &Scope{
		Name:      name,
		startMono: time.Now(),
		startWall: time.Now(),
		sink:      tr.sink,
	}
	if id != "" {
		s.UID = id
	} else {
		s.UID = uuid.NewString()
	}
	if parent != nil {
		s.ParentUID = parent.UID
		s.CorrelationIDs = append(append([]string(nil), parent.CorrelationIDs...), s.UID)
	} else {
		s.CorrelationIDs = []string{s.UID}
	}
	if len(attrs) > 0 {
		s.attrs = make(map[string]any, len(attrs))
		for k, v := range attrs {
			s.attrs[k] = v
		}
	}
	s.emit(Event{Kind: "enter", Scope: s, Monotonic: s.startMono, Wall: s.startWall})
	return context.WithValue(ctx, scopeKey{}, s), s
}

// Finish emits the scope's exit event. err, if non-nil, is attached to the
// exit event (spec §4.D: perform "always finishes the scope, even on
// error").
func (s *Scope) Finish(err error) {
	s.emit(Event{Kind: "exit", Scope: s, Monotonic: time.Now(), Wall: time.Now(), Err: err})
}

// SetAttr records an attribute on the scope, visible on its exit event.
func (s *Scope) SetAttr(key string, value any) {
	s.mu.Lock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
	s.mu.Unlock()
}

// Attrs returns a snapshot of the scope's accumulated attributes.
func (s *Scope) Attrs() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

func (s *Scope) emit(e Event) {
	if s.sink != nil {
		s.sink.Emit(e)
	}
}

// Perform runs fn within a new scope branched off ctx, always finishing the
// scope — on panic, it records the recovered value as the exit error and
// re-raises (spec §4.D/§7: "perform records the exception and re-raises").
func (tr *Tracer) Perform(ctx context.Context, name string, fn func(ctx context.Context, s *Scope) error) (err error) {
	childCtx, s := tr.Branch(ctx, name, "", nil)
	defer func() {
		if r := recover(); r != nil {
			s.Finish(panicError{r})
			panic(r)
		}
		s.Finish(err)
	}()
	err = fn(childCtx, s)
	return err
}

type panicError struct{ v any }

func (p panicError) Error() string { return "trace: scope panicked" }
func (p panicError) Unwrap() error {
	if e, ok := p.v.(error); ok {
		return e
	}
	return nil
}
