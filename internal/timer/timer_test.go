package timer

import (
	"sync"
	"testing"
	"time"
)

func TestRepeatFiresExactlyRepeatCount(t *testing.T) {
	var mu sync.Mutex
	var fires []time.Time

	start := time.Now()
	h := Repeat(func() {
		mu.Lock()
		fires = append(fires, time.Now())
		mu.Unlock()
	}, "t", 50*time.Millisecond, 0, 3)

	time.Sleep(400 * time.Millisecond)
	h.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(fires) != 3 {
		t.Fatalf("expected exactly 3 firings, got %d", len(fires))
	}
	if fires[0].Sub(start) > 30*time.Millisecond {
		t.Fatalf("first firing should be near-immediate (delay=0), got %v after start", fires[0].Sub(start))
	}
}

// TestTimerScenarioSeed mirrors spec §8 scenario 4, scaled down to a 50ms
// interval and 5 firings: once the first firing is observed, PauseFor(400ms)
// is issued from a goroutine; the gap between the first and second firing
// must be far larger than the other gaps, which stay close to the interval.
func TestTimerScenarioSeed(t *testing.T) {
	var mu sync.Mutex
	var fires []time.Time

	h := Repeat(func() {
		mu.Lock()
		fires = append(fires, time.Now())
		mu.Unlock()
	}, "t", 50*time.Millisecond, 0, 5)

	// Pause for one extended interval as soon as the first firing is
	// observed — run from a goroutine started after h is fully assigned,
	// so there's no data race on h itself.
	go func() {
		for {
			mu.Lock()
			n := len(fires)
			mu.Unlock()
			if n >= 1 {
				h.PauseFor(400 * time.Millisecond)
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	time.Sleep(1200 * time.Millisecond)
	h.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(fires) != 5 {
		t.Fatalf("expected exactly 5 firings, got %d: %v", len(fires), fires)
	}
	gapPaused := fires[1].Sub(fires[0])
	if gapPaused < 300*time.Millisecond {
		t.Fatalf("paused gap should be close to 400ms, got %v", gapPaused)
	}
	for i := 2; i < len(fires); i++ {
		gap := fires[i].Sub(fires[i-1])
		if gap > 200*time.Millisecond {
			t.Fatalf("post-pause gap %d should revert near the 50ms interval, got %v", i, gap)
		}
	}
}

func TestPauseWithoutDurationBlocksUntilResume(t *testing.T) {
	var mu sync.Mutex
	fires := 0

	h := Repeat(func() {
		mu.Lock()
		fires++
		mu.Unlock()
	}, "t", 30*time.Millisecond, 30*time.Millisecond, 0)

	time.Sleep(100 * time.Millisecond)
	h.Pause()
	mu.Lock()
	afterPause := fires
	mu.Unlock()

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	stillSame := fires == afterPause
	mu.Unlock()
	if !stillSame {
		t.Fatalf("firings continued to accumulate while paused")
	}

	h.Resume()
	time.Sleep(100 * time.Millisecond)
	h.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if fires <= afterPause {
		t.Fatalf("expected firings to resume after Resume, stuck at %d", fires)
	}
}

func TestCancelStopsFutureFirings(t *testing.T) {
	var mu sync.Mutex
	fires := 0
	h := Repeat(func() {
		mu.Lock()
		fires++
		mu.Unlock()
	}, "t", 20*time.Millisecond, 0, 0)

	time.Sleep(60 * time.Millisecond)
	h.Cancel()
	mu.Lock()
	afterCancel := fires
	mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fires != afterCancel {
		t.Fatalf("expected no firings after Cancel, got %d more", fires-afterCancel)
	}
}

func TestCallbackPanicIsSwallowedAndRoutedToOnError(t *testing.T) {
	var mu sync.Mutex
	var recovered []any
	var fires int

	h := Repeat(func() {
		mu.Lock()
		fires++
		mu.Unlock()
		panic("boom")
	}, "t", 20*time.Millisecond, 0, 3).WithOnError(func(name string, r any) {
		mu.Lock()
		recovered = append(recovered, r)
		mu.Unlock()
	})

	time.Sleep(150 * time.Millisecond)
	h.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if fires != 3 {
		t.Fatalf("expected all 3 firings to run despite panics, got %d", fires)
	}
	if len(recovered) != 3 {
		t.Fatalf("expected 3 recovered panics, got %d", len(recovered))
	}
}

func TestZeroIntervalFiresPromptly(t *testing.T) {
	var mu sync.Mutex
	fires := 0
	h := Repeat(func() {
		mu.Lock()
		fires++
		mu.Unlock()
	}, "t", 0, 0, 1)

	time.Sleep(30 * time.Millisecond)
	h.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if fires != 1 {
		t.Fatalf("expected 1 prompt firing, got %d", fires)
	}
}
