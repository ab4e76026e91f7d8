package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/ratelimit"
)

// DefaultStateCacheTTL bounds how stale a cached rate limit snapshot may get.
// The persisted row stays authoritative; the cache only absorbs repeated
// reads between writes.
const DefaultStateCacheTTL = 5 * time.Second

type stateEntry struct {
	state     *ratelimit.State
	expiresAt time.Time
}

// InMemoryStateCache is a short-TTL cache for rate limit state keyed by
// (user, platform). Entries are copies; callers never share the cached value
// with the database row.
type InMemoryStateCache struct {
	mu      sync.RWMutex
	entries map[string]stateEntry
	ttl     time.Duration
}

// NewInMemoryStateCache creates a state cache with the default TTL.
func NewInMemoryStateCache() *InMemoryStateCache {
	return NewInMemoryStateCacheWithTTL(DefaultStateCacheTTL)
}

// NewInMemoryStateCacheWithTTL creates a state cache with a custom TTL.
func NewInMemoryStateCacheWithTTL(ttl time.Duration) *InMemoryStateCache {
	if ttl <= 0 {
		ttl = DefaultStateCacheTTL
	}
	return &InMemoryStateCache{
		entries: make(map[string]stateEntry),
		ttl:     ttl,
	}
}

// Get returns the cached state if present and not expired.
func (c *InMemoryStateCache) Get(userID uuid.UUID, code platform.Code) (*ratelimit.State, bool) {
	key := stateCacheKey(userID, code)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.Invalidate(userID, code)
		return nil, false
	}

	copied := *entry.state
	return &copied, true
}

// Set stores a copy of the state under the (user, platform) key.
func (c *InMemoryStateCache) Set(userID uuid.UUID, code platform.Code, state *ratelimit.State) {
	if state == nil {
		return
	}
	copied := *state

	c.mu.Lock()
	c.entries[stateCacheKey(userID, code)] = stateEntry{
		state:     &copied,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Invalidate drops the cached state for the (user, platform) key.
func (c *InMemoryStateCache) Invalidate(userID uuid.UUID, code platform.Code) {
	c.mu.Lock()
	delete(c.entries, stateCacheKey(userID, code))
	c.mu.Unlock()
}

// Size returns the number of cached entries, expired ones included.
func (c *InMemoryStateCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func stateCacheKey(userID uuid.UUID, code platform.Code) string {
	return fmt.Sprintf("%s:%s", userID, code)
}
