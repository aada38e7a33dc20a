package placement

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Waiter polls a Registry's change stream until Resolve returns a non-empty
// candidate list for a (type, id) pair or the context is done, collapsing
// concurrent callers waiting on the same type onto one backing wait (spec
// §4.F invokes this repeatedly while a mapping hasn't arrived yet; without
// collapsing, every blocked invocation would independently re-walk the
// watch stream on every registry change).
type Waiter struct {
	reg *Registry
	sf  singleflight.Group
}

// NewWaiter returns a Waiter bound to reg.
func NewWaiter(reg *Registry) *Waiter {
	return &Waiter{reg: reg}
}

// ResolveWait blocks until Resolve(actorType, id) is non-empty or ctx is
// done. Concurrent calls for the same actorType share one underlying wait
// loop; each still receives its own id-specific Resolve result once that
// shared wait wakes.
func (w *Waiter) ResolveWait(ctx context.Context, actorType string, id []string) ([]string, error) {
	if candidates := w.reg.Resolve(actorType, id); len(candidates) > 0 {
		return candidates, nil
	}

	for {
		_, err, _ := w.sf.Do(actorType, func() (any, error) {
			seq := w.reg.Seq()
			_, waitErr := w.reg.WaitForChange(ctx, seq)
			return nil, waitErr
		})
		if err != nil {
			return nil, err
		}
		if candidates := w.reg.Resolve(actorType, id); len(candidates) > 0 {
			return candidates, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}
