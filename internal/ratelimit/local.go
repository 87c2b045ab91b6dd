package ratelimit

import (
	"context"
	"sync"
	"time"
)

type localWindow struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
	pruned  bool
}

// LocalFixedWindowLimiter keeps counters in process memory. Each key has its
// own mutex so unrelated keys never contend.
type LocalFixedWindowLimiter struct {
	windows sync.Map
	now     func() time.Time
}

func NewLocalFixedWindowLimiter() *LocalFixedWindowLimiter {
	return &LocalFixedWindowLimiter{now: time.Now}
}

func (l *LocalFixedWindowLimiter) Allow(_ context.Context, key string, policy Policy) (Decision, error) {
	policy = normalizePolicy(policy)
	for {
		v, _ := l.windows.LoadOrStore(key, &localWindow{})
		w := v.(*localWindow)
		w.mu.Lock()
		if w.pruned {
			w.mu.Unlock()
			continue
		}
		d := w.take(l.now(), policy)
		w.mu.Unlock()
		return d, nil
	}
}

// take must be called with w.mu held. An elapsed window is reset to a count
// of one in the same critical section as the check.
func (w *localWindow) take(now time.Time, policy Policy) Decision {
	if !now.Before(w.resetAt) {
		w.count = 1
		w.resetAt = now.Add(policy.Window)
		return Decision{Allowed: true, Remaining: policy.Limit - 1, ResetAt: w.resetAt}
	}
	if w.count >= policy.Limit {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now), ResetAt: w.resetAt}
	}
	w.count++
	return Decision{Allowed: true, Remaining: policy.Limit - w.count, ResetAt: w.resetAt}
}

// Prune drops windows that have already elapsed and returns how many went.
func (l *LocalFixedWindowLimiter) Prune() int {
	now := l.now()
	removed := 0
	l.windows.Range(func(k, v any) bool {
		w := v.(*localWindow)
		w.mu.Lock()
		if !now.Before(w.resetAt) && !w.pruned {
			w.pruned = true
			l.windows.Delete(k)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}
