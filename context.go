package gpurt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/gpurt/backend"
	"github.com/gogpu/gpurt/cmdstream"
	"github.com/gogpu/gpurt/gpucore"
	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/internal/cache"
	"github.com/gogpu/gpurt/internal/deferred"
	"github.com/gogpu/gpurt/internal/epoch"
	"github.com/gogpu/gpurt/internal/ring"
	"github.com/gogpu/gpurt/state"
)

// numKinds covers every kind of pooled object, indexed by handle.Kind.
const numKinds = int(handle.KindSampler) + 1

// resource is the pool slot of every object the runtime owns.
type resource struct {
	native gpucore.Object

	// persistent objects are created by Context.Create* and released
	// through the deferred queue. The others belong to a cache.
	persistent bool
	// retired is set by Release; the slot stays live until the deferred
	// queue destroys it.
	retired bool

	// Cache key, depending on the kind.
	buffer  gpucore.BufferDesc
	texture gpucore.TextureDesc
	target  gpucore.RenderTargetDesc
	sampler gpucore.SamplerDesc
	hash    uint64

	// bindings lists the resources of a shader view and the state each
	// must be in while the view is bound.
	bindings []viewBinding
}

type viewBinding struct {
	h     handle.Handle
	state state.State
}

// frameSlot is the reusable recording state behind one concurrent Frame.
type frameSlot struct {
	stream   *cmdstream.Writer
	tracker  *state.Tracker
	acquired []handle.Handle

	// uploadBuf is created on the first upload of the slot.
	uploadBuf handle.Handle
}

// Context owns a backend and every object created on it.
//
// A Context is created with New, made usable with Initialize and torn down
// with Destroy. Frames are recorded with BeginFrame and handed back with
// Submit or Frame.Discard. Several frames may record concurrently, one per
// goroutine; submission is serialized.
//
// Objects acquired by a frame come from content-addressed caches and go
// back to them when the frame is submitted or discarded. They are destroyed
// only once the GPU has finished the last submission that used them.
type Context struct {
	opts options
	be   backend.Backend

	mu          sync.RWMutex
	initialized bool
	destroyed   bool
	lost        atomic.Bool

	epochs *epoch.Tracker
	pools  [numKinds]*handle.Pool[resource]

	buffers       *cache.Cache[gpucore.BufferDesc]
	textures      *cache.Cache[gpucore.TextureDesc]
	targets       *cache.Cache[gpucore.RenderTargetDesc]
	graphicsPSOs  *cache.ShardedCache[uint64]
	computePSOs   *cache.ShardedCache[uint64]
	graphicsViews *cache.ShardedCache[uint64]
	computeViews  *cache.ShardedCache[uint64]

	samplerMu sync.Mutex
	samplers  *lru.Cache[gpucore.SamplerDesc, handle.Handle]

	shaderMu sync.Mutex
	shaders  *lru.Cache[string, []uint32]

	graveyard [numKinds]*deferred.Queue[handle.Handle]

	// forgotten collects destroyed handles until the next submission drops
	// them from the master state table.
	forgetMu  sync.Mutex
	forgotten []handle.Handle

	submitMu   sync.Mutex
	master     *state.Master
	allocators *ring.Allocators[backend.Allocator]
	barriers   []state.Barrier

	slots       *handle.Pool[struct{}]
	frameSlots  []*frameSlot
	uploads     *ring.Set
	descriptors *ring.Set

	submissions atomic.Uint64
	barrierOps  atomic.Uint64
}

// New creates a Context. Call Initialize before use.
//
// Example:
//
//	rt := gpurt.New(gpurt.WithFramesInFlight(3))
//	if err := rt.Initialize(); err != nil {
//	    return err
//	}
//	defer rt.Destroy()
func New(opts ...Option) *Context {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Context{opts: o}
}

// Initialize selects and initializes the backend and allocates the
// runtime state. Calling it again is a no-op.
func (c *Context) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if c.initialized {
		return nil
	}

	be, err := c.openBackend()
	if err != nil {
		return err
	}

	allocs := make([]backend.Allocator, 0, c.opts.framesInFlight)
	for range c.opts.framesInFlight {
		a, err := be.NewAllocator()
		if err != nil {
			for _, a := range allocs {
				a.Destroy()
			}
			be.Close()
			return fmt.Errorf("gpurt: create command allocator: %w", err)
		}
		allocs = append(allocs, a)
	}

	c.be = be
	c.epochs = epoch.NewTracker(be.Fence())
	for k := handle.KindBuffer; k <= handle.KindSampler; k++ {
		c.pools[k] = handle.NewPool[resource](k)
		c.graveyard[k] = deferred.New(c.destroyObject)
	}
	c.buffers = cache.New[gpucore.BufferDesc]()
	c.textures = cache.New[gpucore.TextureDesc]()
	c.targets = cache.New[gpucore.RenderTargetDesc]()
	c.graphicsPSOs = cache.NewSharded(cache.Uint64Hasher)
	c.computePSOs = cache.NewSharded(cache.Uint64Hasher)
	c.graphicsViews = cache.NewSharded(cache.Uint64Hasher)
	c.computeViews = cache.NewSharded(cache.Uint64Hasher)

	// Sizes are validated by the options, so the constructors cannot fail.
	c.samplers, _ = lru.NewWithEvict(c.opts.samplerCacheSize, func(_ gpucore.SamplerDesc, h handle.Handle) {
		c.retire(h)
	})
	c.shaders, _ = lru.New[string, []uint32](c.opts.shaderCacheSize)

	c.master = state.NewMaster()
	c.allocators = ring.NewAllocators(allocs)

	c.slots = handle.NewFixed[struct{}](handle.KindCommandList, c.opts.maxRecording)
	c.frameSlots = make([]*frameSlot, c.opts.maxRecording)
	for i := range c.frameSlots {
		c.frameSlots[i] = &frameSlot{
			stream:  cmdstream.NewWriter(c.opts.streamCapacity),
			tracker: state.NewTracker(),
		}
	}
	c.uploads = ring.NewSet(c.opts.maxRecording, c.opts.uploadRingSize, c.opts.framesInFlight)
	c.descriptors = ring.NewSet(c.opts.maxRecording, c.opts.descriptorRingSize, c.opts.framesInFlight)

	c.initialized = true
	attachBackend(be)
	slogger().Info("gpurt: context initialized",
		"backend", be.Name(),
		"framesInFlight", c.opts.framesInFlight,
		"maxRecording", c.opts.maxRecording)
	return nil
}

// openBackend returns an initialized backend chosen by the options.
func (c *Context) openBackend() (backend.Backend, error) {
	switch {
	case c.opts.backend != nil:
		if err := c.opts.backend.Init(); err != nil {
			return nil, fmt.Errorf("gpurt: init backend %s: %w", c.opts.backend.Name(), err)
		}
		return c.opts.backend, nil

	case c.opts.backendName != "":
		be := backend.Get(c.opts.backendName)
		if be == nil {
			return nil, fmt.Errorf("%w: %q is not registered", ErrNoBackend, c.opts.backendName)
		}
		if err := be.Init(); err != nil {
			return nil, fmt.Errorf("gpurt: init backend %s: %w", c.opts.backendName, err)
		}
		return be, nil

	default:
		be, err := backend.InitDefault()
		if errors.Is(err, backend.ErrBackendNotAvailable) {
			return nil, ErrNoBackend
		}
		if err != nil {
			return nil, fmt.Errorf("gpurt: init default backend: %w", err)
		}
		return be, nil
	}
}

// Destroy waits for the GPU, destroys every object and closes the backend.
// Objects still held by the caller or by unfinished frames are reported at
// warn level and destroyed as well. The Context cannot be used afterwards.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return
	}
	c.destroyed = true
	if !c.initialized {
		return
	}
	c.initialized = false

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.flushTimeout)
	defer cancel()
	if err := c.epochs.Flush(ctx); err != nil {
		slogger().Warn("gpurt: flush before destroy failed", "err", err)
	}

	if n := c.slots.Len(); n > 0 {
		slogger().Warn("gpurt: frames still recording at destroy", "count", n)
	}
	for _, fs := range c.frameSlots {
		if fs.uploadBuf.IsValid() {
			c.destroyObject(fs.uploadBuf)
			fs.uploadBuf = handle.Invalid
		}
	}

	leaked := c.drainCaches()
	if leaked > 0 {
		slogger().Warn("gpurt: cache entries still checked out at destroy", "count", leaked)
	}
	c.samplers.Purge()
	for _, q := range c.graveyard {
		if q != nil {
			q.Drain()
		}
	}

	// What is left was never released by its owner.
	for _, p := range c.pools {
		if p == nil || p.Len() == 0 {
			continue
		}
		slogger().Warn("gpurt: leaked handles", "kind", p.Kind(), "count", p.Len())
		var live []handle.Handle
		p.Each(func(h handle.Handle, _ *resource) {
			live = append(live, h)
		})
		for _, h := range live {
			c.destroyObject(h)
		}
	}

	c.allocators.Each(func(a backend.Allocator) {
		a.Destroy()
	})
	detachBackend(c.be)
	c.be.Close()
	slogger().Info("gpurt: context destroyed", "epoch", c.epochs.LastSignaled())
}

// ready reports whether the Context may be used.
func (c *Context) ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.destroyed:
		return ErrDestroyed
	case !c.initialized:
		return ErrNotInitialized
	}
	return nil
}

// Backend returns the backend in use, or nil before Initialize.
func (c *Context) Backend() backend.Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.be
}

// CPUEpoch returns the epoch the next submission will signal.
func (c *Context) CPUEpoch() uint64 { return c.epochs.CPU() }

// GPUEpoch returns the last epoch known to be complete on the GPU. It never
// exceeds the last signaled epoch.
func (c *Context) GPUEpoch() uint64 { return c.epochs.GPU() }

// Resolve returns the native object behind h. It implements
// backend.Resources and panics on a stale handle.
func (c *Context) Resolve(h handle.Handle) gpucore.Object {
	return c.pool(h).Get(h).native
}

func (c *Context) pool(h handle.Handle) *handle.Pool[resource] {
	k := h.Kind()
	if int(k) >= numKinds || c.pools[k] == nil {
		panic(fmt.Sprintf("gpurt: %v has no pool", h))
	}
	return c.pools[k]
}

// create reserves a slot, creates the native object without holding any
// lock and populates the slot.
func (c *Context) create(kind handle.Kind, r resource, fn func() (gpucore.Object, error)) (handle.Handle, error) {
	p := c.pools[kind]
	h := p.Acquire()
	obj, err := fn()
	if err != nil {
		p.Release(h)
		return handle.Invalid, fmt.Errorf("gpurt: create %s: %w", kind, err)
	}
	r.native = obj
	p.Set(h, r)
	return h, nil
}

// destroyObject destroys the native object of h and frees its slot.
func (c *Context) destroyObject(h handle.Handle) {
	p := c.pool(h)
	obj := p.Get(h).native
	p.Release(h)
	c.be.Destroy(h.Kind(), obj)

	c.forgetMu.Lock()
	c.forgotten = append(c.forgotten, h)
	c.forgetMu.Unlock()
}

// retire schedules h for destruction once the GPU can no longer use it.
func (c *Context) retire(h handle.Handle) {
	c.graveyard[h.Kind()].Free(h, c.epochs.GPU(), c.epochs.CPU())
}

// forgetDestroyed drops destroyed handles from the master state table.
// Caller holds submitMu.
func (c *Context) forgetDestroyed() {
	c.forgetMu.Lock()
	dead := c.forgotten
	c.forgotten = nil
	c.forgetMu.Unlock()

	for _, h := range dead {
		c.master.Forget(h)
	}
}

// CreateBuffer creates a buffer owned by the caller until Release.
func (c *Context) CreateBuffer(desc gpucore.BufferDesc) (handle.Handle, error) {
	if err := c.ready(); err != nil {
		return handle.Invalid, err
	}
	return c.create(handle.KindBuffer, resource{persistent: true, buffer: desc}, func() (gpucore.Object, error) {
		return c.be.CreateBuffer(desc)
	})
}

// CreateTexture creates a texture owned by the caller until Release.
func (c *Context) CreateTexture(desc gpucore.TextureDesc) (handle.Handle, error) {
	if err := c.ready(); err != nil {
		return handle.Invalid, err
	}
	desc = desc.Normalize()
	return c.create(handle.KindTexture, resource{persistent: true, texture: desc}, func() (gpucore.Object, error) {
		return c.be.CreateTexture(desc)
	})
}

// CreateRenderTarget creates a render target owned by the caller until
// Release.
func (c *Context) CreateRenderTarget(desc gpucore.RenderTargetDesc) (handle.Handle, error) {
	if err := c.ready(); err != nil {
		return handle.Invalid, err
	}
	desc = desc.Normalize()
	return c.create(handle.KindRenderTarget, resource{persistent: true, target: desc}, func() (gpucore.Object, error) {
		return c.be.CreateRenderTarget(desc)
	})
}

// Release hands a persistent object to the deferred destruction queue. It
// is destroyed once the GPU has finished every submission recorded before
// the release. h must not be used afterwards; releasing it twice panics.
func (c *Context) Release(h handle.Handle) error {
	if err := c.ready(); err != nil {
		return err
	}
	var persistent, retired bool
	c.pool(h).Update(h, func(r *resource) {
		persistent, retired = r.persistent, r.retired
		if persistent {
			r.retired = true
		}
	})
	if !persistent {
		return fmt.Errorf("%w: %v", ErrNotPersistent, h)
	}
	if retired {
		panic(fmt.Sprintf("gpurt: release of already released %v", h))
	}
	c.retire(h)
	return nil
}

// WriteBuffer copies data into a buffer. The write is ordered before the
// next submission, so the caller must not overwrite a range the GPU may
// still be reading.
func (c *Context) WriteBuffer(h handle.Handle, offset uint64, data []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.be.WriteBuffer(c.Resolve(h), offset, data); err != nil {
		return fmt.Errorf("gpurt: write %v: %w", h, err)
	}
	return nil
}

// ReadBuffer copies buffer contents into dst. Call it after the submission
// writing the range has completed, for example after WaitIdle.
func (c *Context) ReadBuffer(h handle.Handle, offset uint64, dst []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.be.ReadBuffer(c.Resolve(h), offset, dst); err != nil {
		return fmt.Errorf("gpurt: read %v: %w", h, err)
	}
	return nil
}

// WaitIdle blocks until the GPU has finished all submitted work, then
// destroys every released object, including cache entries that are free.
func (c *Context) WaitIdle(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if err := c.epochs.Flush(ctx); err != nil {
		return fmt.Errorf("gpurt: wait idle: %w", err)
	}
	gpu := c.epochs.GPU()
	c.cullCaches(gpu)
	for _, q := range c.graveyard {
		if q != nil {
			q.Drain()
		}
	}
	c.forgetDestroyed()
	return nil
}

// Trim destroys every free cache entry the GPU is done with, ignoring the
// retention window. It returns the number of destroyed entries.
func (c *Context) Trim() int {
	if c.ready() != nil {
		return 0
	}
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	n := c.cullCaches(c.epochs.GPU())
	c.forgetDestroyed()
	return n
}

func destroyKeyed[K any](c *Context) func(handle.Handle, K) {
	return func(h handle.Handle, _ K) { c.destroyObject(h) }
}

// cullCaches destroys the free entries released at or before epoch.
func (c *Context) cullCaches(epoch uint64) int {
	n := c.buffers.CullAll(epoch, destroyKeyed[gpucore.BufferDesc](c))
	n += c.textures.CullAll(epoch, destroyKeyed[gpucore.TextureDesc](c))
	n += c.targets.CullAll(epoch, destroyKeyed[gpucore.RenderTargetDesc](c))
	hashed := destroyKeyed[uint64](c)
	n += c.graphicsPSOs.CullAll(epoch, hashed)
	n += c.computePSOs.CullAll(epoch, hashed)
	n += c.graphicsViews.CullAll(epoch, hashed)
	n += c.computeViews.CullAll(epoch, hashed)
	if n > 0 {
		slogger().Debug("gpurt: culled cache entries", "count", n, "epoch", epoch)
	}
	return n
}

// drainCaches destroys every free entry and returns the number still
// checked out.
func (c *Context) drainCaches() int {
	leaked := c.buffers.Drain(destroyKeyed[gpucore.BufferDesc](c))
	leaked += c.textures.Drain(destroyKeyed[gpucore.TextureDesc](c))
	leaked += c.targets.Drain(destroyKeyed[gpucore.RenderTargetDesc](c))
	hashed := destroyKeyed[uint64](c)
	leaked += c.graphicsPSOs.Drain(hashed)
	leaked += c.computePSOs.Drain(hashed)
	leaked += c.graphicsViews.Drain(hashed)
	leaked += c.computeViews.Drain(hashed)
	return leaked
}

// releaseCached returns a frame-acquired object to its cache with the
// given release epoch.
func (c *Context) releaseCached(h handle.Handle, epoch uint64) {
	r := c.pool(h).Get(h)
	switch h.Kind() {
	case handle.KindBuffer:
		c.buffers.Free(h, r.buffer, epoch)
	case handle.KindTexture:
		c.textures.Free(h, r.texture, epoch)
	case handle.KindRenderTarget:
		c.targets.Free(h, r.target, epoch)
	case handle.KindGraphicsPSO:
		c.graphicsPSOs.Free(h, r.hash, epoch)
	case handle.KindComputePSO:
		c.computePSOs.Free(h, r.hash, epoch)
	case handle.KindGraphicsShaderView:
		c.graphicsViews.Free(h, r.hash, epoch)
	case handle.KindComputeShaderView:
		c.computeViews.Free(h, r.hash, epoch)
	default:
		panic(fmt.Sprintf("gpurt: %v is not a cached object", h))
	}
}
