package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestLockSequenceScenarioSeed mirrors spec §8 scenario 3: beginExclusive
// ("A", []), then beginShared("B", ["A"]) resolves immediately because its
// reentrancy token matches the exclusive holder; endShared("B"),
// endExclusive("A").
func TestLockSequenceScenarioSeed(t *testing.T) {
	l := New(PriorityShared)
	ctx := context.Background()

	if err := l.BeginExclusive(ctx, "A", nil); err != nil {
		t.Fatalf("BeginExclusive(A): %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.BeginShared(ctx, "B", []Token{"A"}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("BeginShared(B) with matching reentrancy token: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("BeginShared(B) did not resolve immediately")
	}

	if err := l.EndShared("B"); err != nil {
		t.Fatalf("EndShared(B): %v", err)
	}
	if err := l.EndExclusive("A"); err != nil {
		t.Fatalf("EndExclusive(A): %v", err)
	}
}

func TestNoUpgradeRejectedImmediately(t *testing.T) {
	l := New(PriorityShared)
	ctx := context.Background()
	if err := l.BeginShared(ctx, "A", nil); err != nil {
		t.Fatalf("BeginShared(A): %v", err)
	}
	err := l.BeginExclusive(ctx, "A", []Token{"A"})
	if !errors.Is(err, ErrNoUpgrade) {
		t.Fatalf("BeginExclusive upgrade attempt: got %v, want ErrNoUpgrade", err)
	}
}

func TestEndWithoutBeginFails(t *testing.T) {
	l := New(PriorityShared)
	if err := l.EndShared("ghost"); !errors.Is(err, ErrTokenNotHeld) {
		t.Fatalf("EndShared(ghost): got %v, want ErrTokenNotHeld", err)
	}
	if err := l.EndExclusive("ghost"); !errors.Is(err, ErrTokenNotHeld) {
		t.Fatalf("EndExclusive(ghost): got %v, want ErrTokenNotHeld", err)
	}
}

func TestSharedHoldersBlockExclusive(t *testing.T) {
	l := New(PriorityShared)
	ctx := context.Background()
	if err := l.BeginShared(ctx, "A", nil); err != nil {
		t.Fatalf("BeginShared(A): %v", err)
	}

	if l.TryBeginExclusive("B", nil) {
		t.Fatalf("TryBeginExclusive should fail while a shared holder exists")
	}

	exclCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.BeginExclusive(exclCtx, "B", nil); err == nil {
		t.Fatalf("BeginExclusive(B) should not be granted while A holds shared")
	}
}

func TestExclusiveExcludesConcurrentShared(t *testing.T) {
	l := New(PriorityShared)
	ctx := context.Background()
	if err := l.BeginExclusive(ctx, "A", nil); err != nil {
		t.Fatalf("BeginExclusive(A): %v", err)
	}
	if l.TryBeginShared("B", nil) {
		t.Fatalf("TryBeginShared should fail while a non-reentrant exclusive holder exists")
	}
}

func TestFinalizeRejectsPendingWithTakenOver(t *testing.T) {
	l := New(PriorityShared)
	ctx := context.Background()
	if err := l.BeginExclusive(ctx, "A", nil); err != nil {
		t.Fatalf("BeginExclusive(A): %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.BeginShared(ctx, "B", nil) }()
	time.Sleep(20 * time.Millisecond) // let B enqueue

	l.Finalize()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTakenOver) {
			t.Fatalf("pending BeginShared after Finalize: got %v, want ErrTakenOver", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Finalize did not wake the pending waiter")
	}

	if err := l.BeginExclusive(ctx, "C", nil); !errors.Is(err, ErrTakenOver) {
		t.Fatalf("BeginExclusive after Finalize: got %v, want ErrTakenOver", err)
	}
}

func TestTakeOverThenFinalizeForCompaction(t *testing.T) {
	l := New(PriorityShared)
	ctx := context.Background()
	if err := l.BeginShared(ctx, "reader", nil); err != nil {
		t.Fatalf("BeginShared(reader): %v", err)
	}

	takeOverDone := make(chan error, 1)
	go func() { takeOverDone <- l.TakeOver(ctx, "compactor") }()
	time.Sleep(20 * time.Millisecond)

	if err := l.EndShared("reader"); err != nil {
		t.Fatalf("EndShared(reader): %v", err)
	}

	select {
	case err := <-takeOverDone:
		if err != nil {
			t.Fatalf("TakeOver(compactor): %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("TakeOver did not resolve once the shared holder released")
	}
	l.Finalize()

	if l.TryBeginShared("late", nil) {
		t.Fatalf("TryBeginShared should fail after Finalize")
	}
}

func TestConcurrentGrantsAreSafe(t *testing.T) {
	l := New(PriorityShared)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		tok := Token(string(rune('a' + i%20)))
		go func(tok Token) {
			defer wg.Done()
			if err := l.BeginShared(ctx, tok, nil); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
			l.EndShared(tok)
		}(tok)
	}
	wg.Wait()
	snap := l.Snapshot()
	if snap.SharedHolders != 0 || snap.ExclusiveHolders != 0 {
		t.Fatalf("expected lock idle after all holders released, got %+v", snap)
	}
}
