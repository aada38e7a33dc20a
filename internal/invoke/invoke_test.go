package invoke

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arborfield/actorcore/internal/placement"
)

// fakeRemote lets each test script a per-destination sequence of results.
type fakeRemote struct {
	mu      sync.Mutex
	calls   int32
	scripts map[string][]func() (InvokeResult, error)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{scripts: make(map[string][]func() (InvokeResult, error))}
}

func (f *fakeRemote) on(dest string, steps ...func() (InvokeResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[dest] = append(f.scripts[dest], steps...)
}

func (f *fakeRemote) Invoke(ctx context.Context, opts InvokeOptions) (InvokeResult, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	steps := f.scripts[opts.Destination]
	var step func() (InvokeResult, error)
	if len(steps) > 0 {
		step = steps[0]
		f.scripts[opts.Destination] = steps[1:]
	}
	f.mu.Unlock()
	if step == nil {
		return InvokeResult{ErrorCode: CodeUnreachable, ErrorMessage: "no script left"}, nil
	}
	return step()
}

func okResult(body []byte) func() (InvokeResult, error) {
	return func() (InvokeResult, error) {
		return InvokeResult{Content: &Content{Result: body}}, nil
	}
}

func frameworkFail(code string) func() (InvokeResult, error) {
	return func() (InvokeResult, error) {
		return InvokeResult{ErrorCode: code, ErrorMessage: code}, nil
	}
}

func applicationFail(code, msg string) func() (InvokeResult, error) {
	return func() (InvokeResult, error) {
		return InvokeResult{Content: &Content{Error: &RemoteError{Kind: "application", Code: code, Message: msg}}}, nil
	}
}

func fastBackoff() BackoffConfig {
	return BackoffConfig{Base: 5 * time.Millisecond, Count: 3}
}

// Scenario: actor type never registered — engine waits out every backoff
// window and finally reports UNREGISTERED, taking at least as long as the
// registry-wait timeouts it burned through.
func TestInvokeUnregisteredActorTypeTimesOut(t *testing.T) {
	reg := placement.New()
	remote := newFakeRemote()
	engine := NewEngine(reg, remote)
	engine.Backoff = fastBackoff()
	portal := NewPortal(engine)

	start := time.Now()
	_, err := portal.Retrieve("Widget", []string{"w1"}).Invoke(context.Background(), "Do", nil)
	elapsed := time.Since(start)

	var fe *FrameworkError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FrameworkError, got %v (%T)", err, err)
	}
	if fe.Code != CodeUnregistered && fe.Code != CodeTimedOut {
		t.Fatalf("expected UNREGISTERED/TIMED_OUT, got %s", fe.Code)
	}
	if elapsed < 40*time.Millisecond {
		t.Fatalf("expected engine to burn through registry-wait timeouts, only took %v", elapsed)
	}
}

// Scenario: the one registered candidate returns a framework error on every
// attempt across every backoff cycle; engine exhausts retries and surfaces
// a FrameworkError whose Nested chain has one entry per cycle.
func TestInvokeFrameworkErrorEveryAttemptExhaustsRetries(t *testing.T) {
	reg := placement.New()
	reg.AddMapping(placement.Mapping{Type: "Widget", Node: "n1", Version: "v1"})
	remote := newFakeRemote()
	for i := 0; i < 6; i++ {
		remote.on("n1", frameworkFail(CodeUnreachable))
	}
	engine := NewEngine(reg, remote)
	engine.Backoff = fastBackoff()
	portal := NewPortal(engine)

	_, err := portal.Retrieve("Widget", []string{"w1"}).Invoke(context.Background(), "Do", nil)

	var fe *FrameworkError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FrameworkError, got %v (%T)", err, err)
	}
	if len(fe.Nested) < int(engine.Backoff.Count+1) {
		t.Fatalf("expected at least %d nested attempts, got %d", engine.Backoff.Count+1, len(fe.Nested))
	}
	for _, a := range fe.Nested {
		if a.Code != CodeUnreachable {
			t.Fatalf("expected every nested attempt to be %s, got %s", CodeUnreachable, a.Code)
		}
	}
}

// Scenario: the callee raises an application error on the very first
// attempt; the engine must terminate immediately without retrying any
// other candidate or burning a backoff cycle.
func TestInvokeApplicationErrorTerminatesImmediately(t *testing.T) {
	reg := placement.New()
	reg.AddMapping(placement.Mapping{Type: "Widget", Node: "n1", Version: "v1"})
	reg.AddMapping(placement.Mapping{Type: "Widget", Node: "n2", Version: "v1"})
	remote := newFakeRemote()
	remote.on("n1", applicationFail("BAD_INPUT", "invalid quantity"))
	remote.on("n2", okResult([]byte("should never be reached")))
	engine := NewEngine(reg, remote)
	engine.Backoff = fastBackoff()
	portal := NewPortal(engine)

	start := time.Now()
	_, err := portal.Retrieve("Widget", []string{"w1"}).Invoke(context.Background(), "Do", nil)
	elapsed := time.Since(start)

	var ae *ApplicationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *ApplicationError, got %v (%T)", err, err)
	}
	if ae.Code != "BAD_INPUT" {
		t.Fatalf("expected code BAD_INPUT, got %s", ae.Code)
	}
	if elapsed > 30*time.Millisecond {
		t.Fatalf("expected immediate termination, took %v", elapsed)
	}
}

// Scenario: the placement mapping is installed only after the engine has
// already started waiting on the registry's change stream; the call must
// succeed once the mapping appears, without requiring a full extra cycle.
func TestInvokeLateMappingInstalledStillSucceeds(t *testing.T) {
	reg := placement.New()
	remote := newFakeRemote()
	remote.on("n1", okResult([]byte("ok")))
	engine := NewEngine(reg, remote)
	engine.Backoff = fastBackoff()
	portal := NewPortal(engine)

	go func() {
		time.Sleep(30 * time.Millisecond)
		reg.AddMapping(placement.Mapping{Type: "Widget", Node: "n1", Version: "v1"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := portal.Retrieve("Widget", []string{"w1"}).Invoke(ctx, "Do", nil)
	if err != nil {
		t.Fatalf("expected success once mapping installed, got error: %v", err)
	}
	if string(result) != "ok" {
		t.Fatalf("unexpected result %q", result)
	}
}

// Scenario: a version-2 candidate without a matching bindIdx is attempted
// first and fails; the engine falls back to the bind-matched version-1
// candidate and succeeds, never trying the non-matching version-1 entry.
func TestInvokeBindIdxFallbackSucceedsOnLowerVersion(t *testing.T) {
	reg := placement.New()
	bindIdx1 := 1
	reg.AddMapping(placement.Mapping{Type: "Widget", Node: "A", Version: "v1", BindIdx: &bindIdx1})
	reg.AddMapping(placement.Mapping{Type: "Widget", Node: "B", Version: "v1", BindIdx: &bindIdx1})
	bindIdx0 := 0
	reg.AddMapping(placement.Mapping{Type: "Widget", Node: "C", Version: "v2", BindIdx: &bindIdx0})

	remote := newFakeRemote()
	remote.on("C", frameworkFail(CodeUnreachable))
	remote.on("A", okResult([]byte("from-A")))
	remote.on("B", func() (InvokeResult, error) {
		return InvokeResult{}, errors.New("B must never be called")
	})

	engine := NewEngine(reg, remote)
	engine.Backoff = fastBackoff()
	portal := NewPortal(engine)

	id := []string{"B", "A"}
	result, err := portal.Retrieve("Widget", id).Invoke(context.Background(), "Do", nil)
	if err != nil {
		t.Fatalf("expected success via fallback to A, got error: %v", err)
	}
	if string(result) != "from-A" {
		t.Fatalf("expected result from A, got %q", result)
	}
}

func TestExponentialBackOffGrowsByFactorFour(t *testing.T) {
	delays := ExponentialBackOff(10*time.Millisecond, 4)
	if len(delays) != 5 {
		t.Fatalf("expected 5 delays, got %d", len(delays))
	}
	mins := []time.Duration{10, 40, 160, 640, 2560}
	for i, min := range mins {
		lo := min * time.Millisecond
		hi := time.Duration(float64(lo) * 1.25)
		if delays[i] < lo || delays[i] > hi {
			t.Fatalf("delay[%d]=%v outside expected [%v,%v]", i, delays[i], lo, hi)
		}
	}
}
