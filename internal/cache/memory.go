package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is a byte-bounded LRU of synthesized clips.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[string]*list.Element
	order    *list.List // front is most recently used

	hits, misses, evictions int64
}

type clip struct {
	key     string
	audio   []byte
	addedAt time.Time
}

// NewMemoryCache creates a memory cache holding at most capacity bytes.
func NewMemoryCache(capacity int64) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the clip stored under key and marks it recently used.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return elem.Value.(*clip).audio, true
}

// Put stores audio under key, evicting least recently used clips as needed.
func (c *MemoryCache) Put(key string, audio []byte) error {
	n := int64(len(audio))
	if n > c.capacity {
		return ErrItemTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		old := elem.Value.(*clip)
		c.size += n - int64(len(old.audio))
		old.audio = audio
		old.addedAt = time.Now()
		c.order.MoveToFront(elem)
	} else {
		c.items[key] = c.order.PushFront(&clip{key: key, audio: audio, addedAt: time.Now()})
		c.size += n
	}

	for c.size > c.capacity {
		if !c.evictOldest() {
			break
		}
	}
	return nil
}

// Delete removes key if present.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

// Contains reports whether key is cached without touching recency.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Clear drops every clip.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
}

// Prune drops clips stored before now minus maxAge and returns how many.
func (c *MemoryCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*clip).addedAt.Before(cutoff) {
			c.remove(elem)
			pruned++
		}
		elem = prev
	}
	return pruned
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Level:     LevelMemory,
		Capacity:  c.capacity,
		Size:      c.size,
		Items:     len(c.items),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// evictOldest must be called with c.mu held.
func (c *MemoryCache) evictOldest() bool {
	elem := c.order.Back()
	if elem == nil {
		return false
	}
	c.remove(elem)
	c.evictions++
	return true
}

func (c *MemoryCache) remove(elem *list.Element) {
	entry := c.order.Remove(elem).(*clip)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.audio))
}
