package classifier

import (
	"sort"
	"strings"
	"sync"
)

// memoCache is a bounded memoization cache for classification results.
// Eviction is oldest-first by insertion order. It is a performance
// optimization, not a correctness boundary: a lost update under concurrent
// writes is acceptable.
type memoCache struct {
	mu       sync.RWMutex
	entries  map[string]*Result
	order    []string
	capacity int
}

func newMemoCache(capacity int) *memoCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &memoCache{
		entries:  make(map[string]*Result, capacity),
		capacity: capacity,
	}
}

// memoKey builds a normalized cache key from the query and the routing-relevant
// subset of the context map.
func memoKey(query string, qctx map[string]string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(query)))

	keys := make([]string, 0, len(qctx))
	for k := range qctx {
		switch k {
		case "farm_id", "region", "crop", "agent_preference":
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.ToLower(qctx[k]))
	}
	return b.String()
}

func (c *memoCache) get(key string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *memoCache) put(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = r

	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *memoCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
