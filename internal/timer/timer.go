// Package timer implements the cooperative repeating timer from spec §4.D:
// schedule a callback after an initial delay, then on a fixed interval, with
// pause/resume/cancel controls that take effect on the next scheduling
// decision rather than by tearing down and rebuilding the underlying clock.
package timer

import (
	"sync"
	"time"
)

// Callback is invoked on every firing. A panic inside Callback is recovered
// and routed to OnError (if bound via WithOnError) rather than propagated —
// the schedule continues (spec §7: "timer callback exceptions are logged to
// the current scope and swallowed").
type Callback func()

// OnError receives a recovered callback panic. Timer.onError defaults to a
// no-op; bind one with WithOnError to route failures into internal/trace.
type OnError func(name string, recovered any)

type command struct {
	kind     commandKind
	duration time.Duration
	hasDur   bool
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdCancel
)

// Timer is a single repeating schedule. Construct with Repeat.
type Timer struct {
	name     string
	interval time.Duration
	cb       Callback
	onError  OnError

	cmds chan command
	done chan struct{}

	mu       sync.Mutex
	canceled bool
}

// Handle is the caller-facing control surface spec §4.D returns from
// repeat(): cancel, pause, resume.
type Handle struct {
	t *Timer
}

// Repeat schedules cb under name: first after delay (interval if delay<0),
// then every interval, for at most repeatCount firings (repeatCount<=0 means
// unbounded). interval==0 fires "as soon as the host loop is ready" — here,
// on the next scheduler tick via a zero-duration timer.
func Repeat(cb Callback, name string, interval time.Duration, delay time.Duration, repeatCount int) *Handle {
	t := &Timer{
		name:     name,
		interval: interval,
		cb:       cb,
		cmds:     make(chan command, 4),
		done:     make(chan struct{}),
	}
	if delay < 0 {
		delay = interval
	}
	go t.run(delay, repeatCount)
	return &Handle{t: t}
}

// WithOnError binds a failure sink, replacing the default swallow-only
// behavior. Must be called before the first firing to take effect
// deterministically; safe to call any time otherwise (picked up on the next
// recovered panic).
func (h *Handle) WithOnError(fn OnError) *Handle {
	h.t.mu.Lock()
	h.t.onError = fn
	h.t.mu.Unlock()
	return h
}

func (t *Timer) run(firstDelay time.Duration, repeatCount int) {
	defer close(t.done)

	fired := 0
	paused := false

	timer := time.NewTimer(firstDelay)
	defer timer.Stop()

	for {
		select {
		case cmd := <-t.cmds:
			switch cmd.kind {
			case cmdCancel:
				if !timer.Stop() {
					<-drain(timer)
				}
				return
			case cmdPause:
				if !timer.Stop() {
					<-drain(timer)
				}
				if cmd.hasDur {
					// "a single firing is scheduled after d; subsequent
					// firings revert to interval" — the schedule keeps
					// running, just with this one interval substituted.
					paused = false
					timer.Reset(cmd.duration)
				} else {
					paused = true
				}
			case cmdResume:
				if !paused {
					continue
				}
				paused = false
				d := t.interval
				if cmd.hasDur {
					d = cmd.duration
				}
				timer.Reset(d)
			}

		case <-timer.C:
			if paused {
				// A stray fire race with a pause that arrived just after
				// the channel was already readable; ignore and let the
				// next Resume rearm the clock.
				continue
			}
			t.fire()
			fired++
			if repeatCount > 0 && fired >= repeatCount {
				return
			}
			timer.Reset(t.interval)

		case <-t.done:
			return
		}
	}
}

func drain(timer *time.Timer) <-chan time.Time {
	ch := make(chan time.Time, 1)
	select {
	case v := <-timer.C:
		ch <- v
	default:
	}
	return ch
}

func (t *Timer) fire() {
	defer func() {
		if r := recover(); r != nil {
			t.mu.Lock()
			onError := t.onError
			t.mu.Unlock()
			if onError != nil {
				onError(t.name, r)
			}
		}
	}()
	t.cb()
}

// Cancel stops future firings. If a callback is currently running, Cancel
// returns once it completes.
func (h *Handle) Cancel() {
	h.t.mu.Lock()
	if h.t.canceled {
		h.t.mu.Unlock()
		return
	}
	h.t.canceled = true
	h.t.mu.Unlock()

	select {
	case h.t.cmds <- command{kind: cmdCancel}:
	case <-h.t.done:
		return
	}
	<-h.t.done
}

// Pause suppresses firings until Resume is called.
func (h *Handle) Pause() {
	h.send(command{kind: cmdPause})
}

// PauseFor suppresses firings but schedules exactly one firing after d,
// after which the schedule reverts to the original interval.
func (h *Handle) PauseFor(d time.Duration) {
	h.send(command{kind: cmdPause, duration: d, hasDur: true})
}

// Resume reverses a Pause. The next firing is after interval.
func (h *Handle) Resume() {
	h.send(command{kind: cmdResume})
}

// ResumeAfter reverses a Pause with the next firing after d instead of the
// default interval. A later call to Resume/ResumeAfter still governs only
// the single next firing — it may not shorten intervals already implied by
// a firing that has already occurred (spec §4.D).
func (h *Handle) ResumeAfter(d time.Duration) {
	h.send(command{kind: cmdResume, duration: d, hasDur: true})
}

func (h *Handle) send(cmd command) {
	select {
	case h.t.cmds <- cmd:
	case <-h.t.done:
	}
}
