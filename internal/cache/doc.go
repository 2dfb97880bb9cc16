// Package cache provides content-addressed caches of pooled GPU objects with
// epoch-gated eviction.
//
// # Cache[K]
//
// Objects are keyed by their creation descriptor (buffers, textures, render
// targets) or by a content hash (pipeline states, shader views). Releasing
// an object returns it to the cache tagged with the CPU epoch of its last
// use:
//
//	h, ok := c.Acquire(desc)
//	if !ok {
//		h = create(desc)
//		c.Insert(desc, h)
//	}
//	...
//	c.Free(h, desc, cpuEpoch)
//
// A released object may be acquired again for the same key right away.
// It is destroyed only by CullAll, once the completed GPU epoch has reached
// its release epoch.
//
// # ShardedCache[K]
//
// The same cache split over 16 shards for keys hit by many recording
// goroutines at once.
//
// # Thread Safety
//
// Both Cache and ShardedCache are safe for concurrent use.
// Neither should be copied after creation (they contain mutexes).
package cache
