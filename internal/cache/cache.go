package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpurt/handle"
)

// Cache maps content keys to pooled GPU objects and recycles released
// objects instead of destroying them.
//
// Each entry is either checked out (owned by a recording) or free. A free
// entry is handed out again by Acquire for an equal key immediately, and is
// only passed to the destroy callback by CullAll once the GPU has finished
// the epoch in which it was released.
//
// Native objects are created by the caller between a missed Acquire and
// Insert, so the cache lock is never held across creation.
//
// Cache is safe for concurrent use.
// Cache must not be copied after creation (has mutex).
type Cache[K comparable] struct {
	mu      sync.Mutex
	entries map[handle.Handle]*cacheEntry[K]
	free    map[K]*lruList[handle.Handle] // oldest release at the tail

	hits   atomic.Uint64
	misses atomic.Uint64
	culled atomic.Uint64
}

// cacheEntry holds one cached object.
type cacheEntry[K comparable] struct {
	key         K
	lastRelease uint64
	checkedOut  bool
	node        *lruNode[handle.Handle] // set while free
}

// New creates an empty cache.
func New[K comparable]() *Cache[K] {
	return &Cache[K]{
		entries: make(map[handle.Handle]*cacheEntry[K]),
		free:    make(map[K]*lruList[handle.Handle]),
	}
}

// Acquire checks out a free entry with an equal key. The entry released
// longest ago is preferred. Returns false on a miss.
func (c *Cache[K]) Acquire(key K) (handle.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, ok := c.free[key]
	if !ok || list.Len() == 0 {
		c.misses.Add(1)
		return handle.Invalid, false
	}
	h, _ := list.RemoveOldest()
	if list.Len() == 0 {
		delete(c.free, key)
	}
	e := c.entries[h]
	e.checkedOut = true
	e.node = nil
	c.hits.Add(1)
	return h, true
}

// Insert adds a newly created object as a checked-out entry.
func (c *Cache[K]) Insert(key K, h handle.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[h]; ok {
		panic(fmt.Sprintf("cache: insert of %v already cached", h))
	}
	c.entries[h] = &cacheEntry[K]{key: key, checkedOut: true}
}

// GetOrCreate acquires a free entry for key, or calls create and inserts the
// result. create runs without the cache lock held. created reports a miss.
func (c *Cache[K]) GetOrCreate(key K, create func() (handle.Handle, error)) (h handle.Handle, created bool, err error) {
	if h, ok := c.Acquire(key); ok {
		return h, false, nil
	}
	h, err = create()
	if err != nil {
		return handle.Invalid, false, err
	}
	c.Insert(key, h)
	return h, true, nil
}

// Free returns a checked-out entry to the cache. epoch is the CPU epoch of
// the last submission that may use the object. Freeing an entry that is not
// checked out, or under a different key, panics.
func (c *Cache[K]) Free(h handle.Handle, key K, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[h]
	if !ok {
		panic(fmt.Sprintf("cache: free of unknown %v", h))
	}
	if !e.checkedOut {
		panic(fmt.Sprintf("cache: double free of %v", h))
	}
	if e.key != key {
		panic(fmt.Sprintf("cache: free of %v under a different key", h))
	}
	e.checkedOut = false
	e.lastRelease = epoch
	list, ok := c.free[key]
	if !ok {
		list = newLRUList[handle.Handle]()
		c.free[key] = list
	}
	e.node = list.PushFront(h)
}

// CullAll removes every free entry released at or before gpu and passes it to
// destroy. destroy runs after the cache lock is released. Returns the number
// of culled entries.
func (c *Cache[K]) CullAll(gpu uint64, destroy func(handle.Handle, K)) int {
	type victim struct {
		h   handle.Handle
		key K
	}
	var victims []victim

	c.mu.Lock()
	for h, e := range c.entries {
		if e.checkedOut || e.lastRelease > gpu {
			continue
		}
		c.unlinkFree(e)
		delete(c.entries, h)
		victims = append(victims, victim{h: h, key: e.key})
	}
	c.mu.Unlock()

	for _, v := range victims {
		destroy(v.h, v.key)
	}
	c.culled.Add(uint64(len(victims)))
	return len(victims)
}

// Drain removes every free entry regardless of epoch and returns the number
// of entries still checked out. Only call it after the GPU is idle.
func (c *Cache[K]) Drain(destroy func(handle.Handle, K)) (leaked int) {
	c.mu.Lock()
	for _, e := range c.entries {
		if e.checkedOut {
			leaked++
		}
	}
	c.mu.Unlock()
	c.CullAll(^uint64(0), destroy)
	return leaked
}

// unlinkFree removes a free entry from its key list. Caller must hold c.mu.
func (c *Cache[K]) unlinkFree(e *cacheEntry[K]) {
	list, ok := c.free[e.key]
	if !ok || e.node == nil {
		return
	}
	list.Remove(e.node)
	e.node = nil
	if list.Len() == 0 {
		delete(c.free, e.key)
	}
}

// Len returns the number of cached entries, checked out or free.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K]) Stats() Stats {
	c.mu.Lock()
	s := Stats{Entries: len(c.entries)}
	for _, list := range c.free {
		s.Free += list.Len()
	}
	c.mu.Unlock()

	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.Culled = c.culled.Load()
	s.HitRate = hitRate(s.Hits, s.Misses)
	return s
}

// Stats contains cache statistics.
type Stats struct {
	// Entries is the number of cached objects, checked out or free.
	Entries int
	// Free is the number of entries available for reuse.
	Free int
	// Hits counts acquisitions served from a free entry.
	Hits uint64
	// Misses counts acquisitions that required a new object.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0 when nothing was acquired.
	HitRate float64
	// Culled counts entries passed to a destroy callback.
	Culled uint64
}

// Add accumulates o into s.
func (s Stats) Add(o Stats) Stats {
	s.Entries += o.Entries
	s.Free += o.Free
	s.Hits += o.Hits
	s.Misses += o.Misses
	s.Culled += o.Culled
	s.HitRate = hitRate(s.Hits, s.Misses)
	return s
}

func hitRate(hits, misses uint64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
