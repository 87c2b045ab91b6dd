package service

import (
	"context"
	"sync"
	"time"
)

// SessionMissCache remembers session token digests that resolved to nothing,
// so replayed or guessed cookies stop reaching the database. Tokens are
// random and never reissued, so a miss stays a miss and needs no
// invalidation.
type SessionMissCache interface {
	Contains(ctx context.Context, tokenHash string) (bool, error)
	Add(ctx context.Context, tokenHash string, ttl time.Duration) error
}

type NoopSessionMissCache struct{}

func NewNoopSessionMissCache() *NoopSessionMissCache { return &NoopSessionMissCache{} }

func (NoopSessionMissCache) Contains(context.Context, string) (bool, error) { return false, nil }

func (NoopSessionMissCache) Add(context.Context, string, time.Duration) error { return nil }

type InMemorySessionMissCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewInMemorySessionMissCache() *InMemorySessionMissCache {
	return &InMemorySessionMissCache{entries: make(map[string]time.Time), now: time.Now}
}

func (c *InMemorySessionMissCache) Contains(_ context.Context, tokenHash string) (bool, error) {
	now := c.now()
	c.mu.RLock()
	expiresAt, ok := c.entries[tokenHash]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !now.Before(expiresAt) {
		c.mu.Lock()
		if exp, still := c.entries[tokenHash]; still && !now.Before(exp) {
			delete(c.entries, tokenHash)
		}
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemorySessionMissCache) Add(_ context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[tokenHash] = c.now().Add(ttl)
	c.mu.Unlock()
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (c *InMemorySessionMissCache) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, exp := range c.entries {
		if !now.Before(exp) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
