package identity

import "container/list"

// Cache is a bounded natural key to user ID map with first-in first-out
// eviction. It only ever short-circuits store lookups; a miss is always safe.
type Cache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key string
	id  int64
}

// NewCache returns a cache holding at most capacity keys; capacity < 1 disables caching.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached ID for key.
func (c *Cache) Get(key string) (int64, bool) {
	if el, ok := c.entries[key]; ok {
		return el.Value.(cacheEntry).id, true
	}
	return 0, false
}

// Put stores key, evicting the oldest entry when full.
func (c *Cache) Put(key string, id int64) {
	if c.capacity < 1 {
		return
	}
	if el, ok := c.entries[key]; ok {
		el.Value = cacheEntry{key: key, id: id}
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(cacheEntry).key)
	}
	c.entries[key] = c.order.PushBack(cacheEntry{key: key, id: id})
}

// Len returns the number of cached keys.
func (c *Cache) Len() int { return c.order.Len() }

// Reset drops every entry.
func (c *Cache) Reset() {
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}
