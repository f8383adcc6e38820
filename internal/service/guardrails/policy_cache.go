package guardrails

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurum-labs/aurum/internal/model"
)

// PolicySet is one tenant's effective policies, defaults included.
type PolicySet map[model.PolicyType]model.GuardrailPolicy

// PolicyCache is a short-TTL in-memory cache of per-tenant policy sets. It
// saves a policy query on every guardrail evaluation; admin updates call
// Invalidate so a change is visible on the next message.
type PolicyCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]cachedPolicies
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

type cachedPolicies struct {
	set       PolicySet
	expiresAt time.Time
}

// NewPolicyCache creates a cache with the given TTL. A ttl <= 0 disables
// caching: Get always misses.
// Call Close to stop the background eviction goroutine.
func NewPolicyCache(ttl time.Duration) *PolicyCache {
	c := &PolicyCache{
		entries: make(map[uuid.UUID]cachedPolicies),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Get returns the cached set and true if a valid entry exists.
func (c *PolicyCache) Get(tenantID uuid.UUID) (PolicySet, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tenantID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.set, true
}

// Set stores a tenant's policy set with the configured TTL.
func (c *PolicyCache) Set(tenantID uuid.UUID, set PolicySet) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tenantID] = cachedPolicies{
		set:       set,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops a tenant's entry.
func (c *PolicyCache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}

// Close stops the background eviction goroutine. Safe to call more than once.
func (c *PolicyCache) Close() {
	c.once.Do(func() { close(c.done) })
}

// evictLoop removes expired entries every minute.
func (c *PolicyCache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *PolicyCache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}
