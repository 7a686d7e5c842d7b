package relaypool

import (
	"sort"
	"sync"
	"time"
)

// dedupCache is the pool's at-most-once delivery guard:
// lazily cleaned on a 60s gate, entries expire after ttl, and the cache
// is trimmed to maxSize by oldest timestamp if cleanup alone does not
// bring it under the limit.
type dedupCache struct {
	mu          sync.Mutex
	entries     map[string]int64 // event id -> seen-at unix seconds
	ttl         time.Duration
	maxSize     int
	lastCleanup int64
}

func newDedupCache(ttl time.Duration, maxSize int) *dedupCache {
	return &dedupCache{
		entries: make(map[string]int64),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Admit reports whether id has not been seen before, recording it if so.
// A false return means the event is a duplicate and must be dropped.
func (c *dedupCache) Admit(id string) bool {
	now := time.Now().Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeCleanup(now)

	if _, seen := c.entries[id]; seen {
		return false
	}
	c.entries[id] = now
	return true
}

func (c *dedupCache) maybeCleanup(now int64) {
	if now-c.lastCleanup <= 60 {
		return
	}
	c.lastCleanup = now

	cutoff := now - int64(c.ttl.Seconds())
	for id, ts := range c.entries {
		if ts < cutoff {
			delete(c.entries, id)
		}
	}

	if len(c.entries) <= c.maxSize {
		return
	}

	type idTime struct {
		id string
		ts int64
	}
	ordered := make([]idTime, 0, len(c.entries))
	for id, ts := range c.entries {
		ordered = append(ordered, idTime{id, ts})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ts < ordered[j].ts })

	excess := len(ordered) - c.maxSize
	for i := 0; i < excess; i++ {
		delete(c.entries, ordered[i].id)
	}
}

// Len reports the number of tracked ids, for tests and diagnostics.
func (c *dedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
