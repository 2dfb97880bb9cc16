package cache

import (
	"hash/fnv"

	"github.com/gogpu/gpurt/handle"
)

// Default configuration constants.
const (
	// DefaultShardCount is the number of shards for reduced lock contention.
	// Must be a power of 2 for fast modulo via bitwise AND.
	DefaultShardCount = 16

	// shardMask is used for fast shard selection (DefaultShardCount - 1).
	shardMask = DefaultShardCount - 1
)

// Hasher is a function that computes a hash for a key.
// Used by ShardedCache for shard selection.
type Hasher[K any] func(K) uint64

// StringHasher computes FNV-1a hash of a string key.
func StringHasher(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s)) // fnv.Write never returns an error
	return h.Sum64()
}

// Uint64Hasher returns the key itself as the hash (identity hash).
// Suitable for keys that already are content hashes.
func Uint64Hasher(u uint64) uint64 {
	return u
}

// ShardedCache spreads a Cache over 16 independently locked shards. It is
// used for the PSO and shader-view caches, which every recording goroutine
// hits on almost every draw.
type ShardedCache[K comparable] struct {
	shards [DefaultShardCount]*Cache[K]
	hasher Hasher[K]
}

// NewSharded creates a sharded cache. The hasher selects the shard for a key.
func NewSharded[K comparable](hasher Hasher[K]) *ShardedCache[K] {
	c := &ShardedCache[K]{hasher: hasher}
	for i := range c.shards {
		c.shards[i] = New[K]()
	}
	return c
}

// getShard returns the shard for a given key.
// Uses bitwise AND for fast modulo (only works with power-of-2 shard count).
func (c *ShardedCache[K]) getShard(key K) *Cache[K] {
	return c.shards[c.hasher(key)&shardMask]
}

// Acquire checks out a free entry with an equal key.
func (c *ShardedCache[K]) Acquire(key K) (handle.Handle, bool) {
	return c.getShard(key).Acquire(key)
}

// Insert adds a newly created object as a checked-out entry.
func (c *ShardedCache[K]) Insert(key K, h handle.Handle) {
	c.getShard(key).Insert(key, h)
}

// GetOrCreate acquires a free entry for key or creates one.
func (c *ShardedCache[K]) GetOrCreate(key K, create func() (handle.Handle, error)) (handle.Handle, bool, error) {
	return c.getShard(key).GetOrCreate(key, create)
}

// Free returns a checked-out entry to its shard.
func (c *ShardedCache[K]) Free(h handle.Handle, key K, epoch uint64) {
	c.getShard(key).Free(h, key, epoch)
}

// CullAll culls every shard. Returns the total number of culled entries.
func (c *ShardedCache[K]) CullAll(gpu uint64, destroy func(handle.Handle, K)) int {
	n := 0
	for _, s := range c.shards {
		n += s.CullAll(gpu, destroy)
	}
	return n
}

// Drain drains every shard and returns the number of leaked entries.
func (c *ShardedCache[K]) Drain(destroy func(handle.Handle, K)) int {
	n := 0
	for _, s := range c.shards {
		n += s.Drain(destroy)
	}
	return n
}

// Len returns the total number of entries across all shards.
func (c *ShardedCache[K]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

// ShardLen returns the number of entries in each shard.
// Useful for debugging load distribution.
func (c *ShardedCache[K]) ShardLen() [DefaultShardCount]int {
	var lens [DefaultShardCount]int
	for i, s := range c.shards {
		lens[i] = s.Len()
	}
	return lens
}

// Stats returns statistics summed over all shards.
func (c *ShardedCache[K]) Stats() Stats {
	var total Stats
	for _, s := range c.shards {
		total = total.Add(s.Stats())
	}
	return total
}
