// Package lock implements the shared/exclusive reentrant lock from spec
// §4.C: a single state machine per lock, with FIFO-ordered shared and
// exclusive waiter queues, reentrancy tokens that let a holder take a
// second, compatible lock without deadlocking itself, and a take-over path
// that disables the lock for good once a new exclusive holder claims it.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Token identifies a lock holder or waiter. Two requests that share a
// reentrancy token are treated as the same logical caller for grant
// purposes (spec §4.C's "reentrancy tokens").
type Token string

// Priority biases which waiter queue is drained first when both a shared
// and an exclusive request become grantable in the same state change.
type Priority int

const (
	PriorityShared Priority = iota
	PriorityExclusive
)

// Failure modes (spec §4.C).
var (
	ErrTakenOver    = errors.New("lock: TAKEN_OVER")
	ErrNoUpgrade    = errors.New("lock: NO_UPGRADE")
	ErrTokenNotHeld = errors.New("lock: TOKEN_NOT_HELD")
)

type waiter struct {
	token      Token
	reentrancy []Token
	grantedCh  chan error
}

// Lock is the shared/exclusive state machine. Zero value is not usable;
// construct with New.
type Lock struct {
	mu sync.Mutex

	shared    map[Token]int // holder -> reentrant hold count
	exclusive []Token       // holders, len>1 only under reentrancy

	pendingShared    []*waiter
	pendingExclusive []*waiter

	priority Priority
	disabled bool
}

// New returns an idle lock with the given scheduling priority hint.
func New(priority Priority) *Lock {
	return &Lock{shared: make(map[Token]int), priority: priority}
}

func hasToken(list []Token, t Token) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func withToken(reentrancy []Token, token Token) []Token {
	out := make([]Token, len(reentrancy)+1)
	copy(out, reentrancy)
	out[len(reentrancy)] = token
	return out
}

func anyMatches(reentrancy []Token, holder Token) bool {
	for _, r := range reentrancy {
		if r == holder {
			return true
		}
	}
	return false
}

// reentrantWithExclusive reports whether any of reentrancy matches an
// existing exclusive holder.
func (l *Lock) reentrantWithExclusive(reentrancy []Token) bool {
	for _, h := range l.exclusive {
		if anyMatches(reentrancy, h) {
			return true
		}
	}
	return false
}

func (l *Lock) reentrantWithShared(reentrancy []Token) bool {
	for h := range l.shared {
		if anyMatches(reentrancy, h) {
			return true
		}
	}
	return false
}

// sharedGrantable implements spec §4.C's shared grant rule.
func (l *Lock) sharedGrantable(reentrancy []Token) bool {
	if len(l.exclusive) > 0 && !l.reentrantWithExclusive(reentrancy) {
		return false
	}
	if l.priority == PriorityExclusive && len(l.pendingExclusive) > 0 && !l.reentrantWithExclusive(reentrancy) {
		return false
	}
	return true
}

// exclusiveGrantable implements spec §4.C's exclusive grant rule. It does
// not check for the upgrade-deadlock case; callers must reject NO_UPGRADE
// before ever queuing.
func (l *Lock) exclusiveGrantable(reentrancy []Token) bool {
	if len(l.shared) > 0 {
		return false
	}
	if len(l.exclusive) > 0 && !l.reentrantWithExclusive(reentrancy) {
		return false
	}
	return true
}

// BeginShared blocks until a shared hold is granted to token, or ctx is
// done, or the lock is taken over.
func (l *Lock) BeginShared(ctx context.Context, token Token, reentrancy []Token) error {
	l.mu.Lock()
	if l.disabled {
		l.mu.Unlock()
		return ErrTakenOver
	}
	if l.sharedGrantable(reentrancy) && len(l.pendingShared) == 0 {
		l.shared[token]++
		l.mu.Unlock()
		return nil
	}
	w := &waiter{token: token, reentrancy: reentrancy, grantedCh: make(chan error, 1)}
	l.pendingShared = append(l.pendingShared, w)
	l.mu.Unlock()
	return l.waitShared(ctx, w)
}

// BeginExclusive blocks until an exclusive hold is granted to token, or
// ctx is done, or the lock is taken over. It fails immediately with
// NO_UPGRADE if the requester already holds a shared lock via a matching
// reentrancy token (spec §4.C: upgrading would deadlock).
func (l *Lock) BeginExclusive(ctx context.Context, token Token, reentrancy []Token) error {
	l.mu.Lock()
	if l.disabled {
		l.mu.Unlock()
		return ErrTakenOver
	}
	if l.reentrantWithShared(withToken(reentrancy, token)) {
		l.mu.Unlock()
		return ErrNoUpgrade
	}
	if l.exclusiveGrantable(reentrancy) && len(l.pendingExclusive) == 0 {
		l.exclusive = append(l.exclusive, token)
		l.mu.Unlock()
		return nil
	}
	w := &waiter{token: token, reentrancy: reentrancy, grantedCh: make(chan error, 1)}
	l.pendingExclusive = append(l.pendingExclusive, w)
	l.mu.Unlock()
	return l.waitExclusive(ctx, w)
}

// waitShared blocks until w is granted/rejected or ctx is done. On
// cancellation it splices w out of the pending queue under the lock so a
// context deadline never leaves a phantom holder that could later be
// granted to nobody.
func (l *Lock) waitShared(ctx context.Context, w *waiter) error {
	select {
	case err := <-w.grantedCh:
		return err
	case <-ctx.Done():
		l.mu.Lock()
		for i, p := range l.pendingShared {
			if p == w {
				l.pendingShared = append(l.pendingShared[:i], l.pendingShared[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		select {
		case err := <-w.grantedCh:
			return err
		default:
			return ctx.Err()
		}
	}
}

func (l *Lock) waitExclusive(ctx context.Context, w *waiter) error {
	select {
	case err := <-w.grantedCh:
		return err
	case <-ctx.Done():
		l.mu.Lock()
		for i, p := range l.pendingExclusive {
			if p == w {
				l.pendingExclusive = append(l.pendingExclusive[:i], l.pendingExclusive[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		select {
		case err := <-w.grantedCh:
			return err
		default:
			return ctx.Err()
		}
	}
}

// TryBeginShared attempts a non-blocking shared grant.
func (l *Lock) TryBeginShared(token Token, reentrancy []Token) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disabled || len(l.pendingShared) > 0 || !l.sharedGrantable(reentrancy) {
		return false
	}
	l.shared[token]++
	return true
}

// TryBeginExclusive attempts a non-blocking exclusive grant.
func (l *Lock) TryBeginExclusive(token Token, reentrancy []Token) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disabled || len(l.pendingExclusive) > 0 {
		return false
	}
	if l.reentrantWithShared(withToken(reentrancy, token)) {
		return false
	}
	if !l.exclusiveGrantable(reentrancy) {
		return false
	}
	l.exclusive = append(l.exclusive, token)
	return true
}

// EndShared releases one shared hold for token.
func (l *Lock) EndShared(token Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.shared[token]
	if !ok || n == 0 {
		return fmt.Errorf("%w: %q", ErrTokenNotHeld, token)
	}
	if n == 1 {
		delete(l.shared, token)
	} else {
		l.shared[token] = n - 1
	}
	l.reevaluate()
	return nil
}

// EndExclusive releases one exclusive hold for token.
func (l *Lock) EndExclusive(token Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := -1
	for i, h := range l.exclusive {
		if h == token {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %q", ErrTokenNotHeld, token)
	}
	l.exclusive = append(l.exclusive[:idx], l.exclusive[idx+1:]...)
	l.reevaluate()
	return nil
}

// TakeOver enqueues an exclusive request for token and pins the lock's
// scheduling priority to exclusive, so pending and future shared requests
// yield to it. It does not by itself disable the lock; pair it with
// Finalize once the exclusive hold is granted and the caller is ready to
// shut out every other waiter for good.
func (l *Lock) TakeOver(ctx context.Context, token Token) error {
	l.mu.Lock()
	l.priority = PriorityExclusive
	l.mu.Unlock()
	return l.BeginExclusive(ctx, token, nil)
}

// Finalize rejects every pending waiter with TAKEN_OVER and disables the
// lock: no further Begin* call is ever granted.
func (l *Lock) Finalize() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disabled = true
	for _, w := range l.pendingShared {
		w.grantedCh <- ErrTakenOver
	}
	for _, w := range l.pendingExclusive {
		w.grantedCh <- ErrTakenOver
	}
	l.pendingShared = nil
	l.pendingExclusive = nil
}

// reevaluate grants as many head-of-queue waiters as are currently
// grantable, in FIFO order within each queue, processing the
// priority-favored queue first so a batch of requests that all become
// grantable in one step are granted atomically (spec §4.C fairness rule).
// Must be called with l.mu held.
func (l *Lock) reevaluate() {
	if l.priority == PriorityExclusive {
		l.drainExclusive()
		l.drainShared()
	} else {
		l.drainShared()
		l.drainExclusive()
	}
}

func (l *Lock) drainShared() {
	for len(l.pendingShared) > 0 {
		w := l.pendingShared[0]
		if !l.sharedGrantable(w.reentrancy) {
			return
		}
		l.pendingShared = l.pendingShared[1:]
		l.shared[w.token]++
		w.grantedCh <- nil
	}
}

func (l *Lock) drainExclusive() {
	for len(l.pendingExclusive) > 0 {
		w := l.pendingExclusive[0]
		if !l.exclusiveGrantable(w.reentrancy) {
			return
		}
		l.pendingExclusive = l.pendingExclusive[1:]
		l.exclusive = append(l.exclusive, w.token)
		w.grantedCh <- nil
	}
}

// Snapshot reports the lock's current holder/waiter counts, for status
// reporting (cmd/actorctl lock status).
type Snapshot struct {
	SharedHolders    int
	ExclusiveHolders int
	PendingShared    int
	PendingExclusive int
	Disabled         bool
}

func (l *Lock) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		SharedHolders:    len(l.shared),
		ExclusiveHolders: len(l.exclusive),
		PendingShared:    len(l.pendingShared),
		PendingExclusive: len(l.pendingExclusive),
		Disabled:         l.disabled,
	}
}
