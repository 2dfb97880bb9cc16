package gpurt

import (
	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/internal/cache"
)

// CacheStats contains statistics of one object cache.
type CacheStats = cache.Stats

// Stats is a snapshot of the runtime state.
type Stats struct {
	// CPUEpoch is the epoch the next submission signals.
	CPUEpoch uint64
	// GPUEpoch is the last epoch known to be complete.
	GPUEpoch uint64

	// Submissions counts successful submissions.
	Submissions uint64
	// Barriers counts barriers produced by state reconciliation.
	Barriers uint64

	Buffers       CacheStats
	Textures      CacheStats
	RenderTargets CacheStats
	GraphicsPSOs  CacheStats
	ComputePSOs   CacheStats
	ShaderViews   CacheStats

	// Samplers and Shaders are the sizes of the LRU caches.
	Samplers int
	Shaders  int

	// Live is the number of allocated handles per object kind.
	Live map[handle.Kind]int
	// Deferred is the number of objects waiting for destruction.
	Deferred int
	// Recording is the number of frames currently recording.
	Recording int
}

// Stats returns a snapshot of the runtime state. It returns the zero Stats
// before Initialize and after Destroy.
func (c *Context) Stats() Stats {
	if c.ready() != nil {
		return Stats{}
	}
	s := Stats{
		CPUEpoch:      c.epochs.CPU(),
		GPUEpoch:      c.epochs.GPU(),
		Submissions:   c.submissions.Load(),
		Barriers:      c.barrierOps.Load(),
		Buffers:       c.buffers.Stats(),
		Textures:      c.textures.Stats(),
		RenderTargets: c.targets.Stats(),
		GraphicsPSOs:  c.graphicsPSOs.Stats(),
		ComputePSOs:   c.computePSOs.Stats(),
		ShaderViews:   c.graphicsViews.Stats().Add(c.computeViews.Stats()),
		Samplers:      c.samplers.Len(),
		Shaders:       c.shaders.Len(),
		Live:          make(map[handle.Kind]int, numKinds),
		Recording:     c.slots.Len(),
	}
	for k, p := range c.pools {
		if p != nil {
			s.Live[handle.Kind(k)] = p.Len()
		}
	}
	for _, q := range c.graveyard {
		if q != nil {
			s.Deferred += q.Len()
		}
	}
	return s
}
