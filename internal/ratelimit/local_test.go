package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter() (*LocalFixedWindowLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLocalFixedWindowLimiter()
	l.now = clock.Now
	return l, clock
}

func TestLocalLimiterExactCeilingAndReset(t *testing.T) {
	l, clock := newTestLimiter()
	policy := Policy{Window: 15 * time.Minute, Limit: 3}
	ctx := context.Background()

	for i := 0; i < policy.Limit; i++ {
		d, err := l.Allow(ctx, "reset:1.2.3.4", policy)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
		if d.Remaining != policy.Limit-i-1 {
			t.Fatalf("remaining=%d want %d", d.Remaining, policy.Limit-i-1)
		}
	}

	clock.Advance(5 * time.Minute)
	d, err := l.Allow(ctx, "reset:1.2.3.4", policy)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected limit+1 call to be rejected")
	}
	if d.RetryAfter != 10*time.Minute {
		t.Fatalf("retry after=%v want 10m", d.RetryAfter)
	}

	clock.Advance(10 * time.Minute)
	d, err = l.Allow(ctx, "reset:1.2.3.4", policy)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !d.Allowed || d.Remaining != policy.Limit-1 {
		t.Fatalf("expected fresh window after expiry, got %+v", d)
	}
}

func TestLocalLimiterKeysAreIsolated(t *testing.T) {
	l, _ := newTestLimiter()
	policy := Policy{Window: time.Minute, Limit: 1}
	ctx := context.Background()

	if d, _ := l.Allow(ctx, Key(OpLogin, "a"), policy); !d.Allowed {
		t.Fatal("first key should be allowed")
	}
	if d, _ := l.Allow(ctx, Key(OpLogin, "a"), policy); d.Allowed {
		t.Fatal("first key second call should be limited")
	}
	if d, _ := l.Allow(ctx, Key(OpLogin, "b"), policy); !d.Allowed {
		t.Fatal("other key should not be affected")
	}
}

func TestLocalLimiterConcurrentBurstHonorsLimit(t *testing.T) {
	l, _ := newTestLimiter()
	policy := Policy{Window: time.Hour, Limit: 20}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), "same-actor", policy)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != int64(policy.Limit) {
		t.Fatalf("expected exactly %d allowed, got %d", policy.Limit, got)
	}
}

func TestLocalLimiterPrune(t *testing.T) {
	l, clock := newTestLimiter()
	ctx := context.Background()
	_, _ = l.Allow(ctx, "short", Policy{Window: time.Minute, Limit: 1})
	_, _ = l.Allow(ctx, "long", Policy{Window: time.Hour, Limit: 1})

	clock.Advance(2 * time.Minute)
	if removed := l.Prune(); removed != 1 {
		t.Fatalf("expected 1 pruned window, got %d", removed)
	}
	if d, _ := l.Allow(ctx, "long", Policy{Window: time.Hour, Limit: 1}); d.Allowed {
		t.Fatal("unexpired window must survive prune")
	}
	if d, _ := l.Allow(ctx, "short", Policy{Window: time.Minute, Limit: 1}); !d.Allowed {
		t.Fatal("pruned key should start a new window")
	}
}

func TestPolicyForDefaults(t *testing.T) {
	cases := map[Operation]Policy{
		OpPasswordResetRequest: {Window: 15 * time.Minute, Limit: 3},
		OpPasswordResetSubmit:  {Window: 15 * time.Minute, Limit: 5},
		OpEmailVerifyResend:    {Window: 15 * time.Minute, Limit: 3},
		OpEmailVerifySubmit:    {Window: 15 * time.Minute, Limit: 10},
	}
	for op, want := range cases {
		if got := PolicyFor(op); got != want {
			t.Fatalf("PolicyFor(%s)=%+v want %+v", op, got, want)
		}
	}
}
