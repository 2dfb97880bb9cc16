package cache

import (
	"testing"

	"github.com/gogpu/gpurt/handle"
)

func BenchmarkCacheAcquireFree(b *testing.B) {
	c := New[bufferDesc]()
	pool := handle.NewPool[bufferDesc](handle.KindBuffer)
	d := bufferDesc{size: 4096}
	h := pool.Acquire()
	c.Insert(d, h)
	c.Free(h, d, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, _ := c.Acquire(d)
		c.Free(h, d, uint64(i))
	}
}

func BenchmarkCacheMiss(b *testing.B) {
	c := New[bufferDesc]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Acquire(bufferDesc{size: uint64(i)})
	}
}

func BenchmarkShardedCacheAcquireFree(b *testing.B) {
	c := NewSharded[uint64](Uint64Hasher)
	pool := handle.NewPool[struct{}](handle.KindGraphicsPSO)
	for k := uint64(0); k < 64; k++ {
		c.Insert(k, pool.Acquire())
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		var k uint64
		for pb.Next() {
			k = (k + 1) % 64
			if h, ok := c.Acquire(k); ok {
				c.Free(h, k, 1)
			}
		}
	})
}

func BenchmarkStringHasher(b *testing.B) {
	for i := 0; i < b.N; i++ {
		StringHasher("graphics-pso:opaque:bgra8")
	}
}
