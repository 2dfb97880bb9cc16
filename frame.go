package gpurt

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpurt/backend"
	"github.com/gogpu/gpurt/cmdstream"
	"github.com/gogpu/gpurt/gpucore"
	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/internal/ring"
	"github.com/gogpu/gpurt/state"
)

// uploadAlignment is the alignment of every upload ring allocation. It
// satisfies buffer copy, uniform offset and texture copy offset rules.
const uploadAlignment = 256

// UploadSlice is a range of a frame's upload buffer holding uploaded data.
// It is valid as a copy source until the frame's submission completes.
type UploadSlice struct {
	Buffer handle.Handle
	Offset uint64
	Size   uint64
}

// Frame records commands for one submission.
//
// A Frame is used by one goroutine at a time. Acquire methods hand out
// pooled objects that stay valid until the frame is submitted or discarded.
// Recording methods transition the resources they touch to the state the
// command needs; the first touch of a resource is resolved at submission
// against the state left by earlier submissions.
//
// Recording into a finished frame panics.
type Frame struct {
	c     *Context
	label string
	slot  handle.Handle
	fs    *frameSlot

	upload      *ring.Linear
	descriptors *ring.Linear

	inPass bool
	err    error
	done   bool
}

// BeginFrame starts recording a frame. When the recording slot's rings
// still hold data of an unfinished submission, it waits for the GPU until
// ctx is done. ErrTooManyFrames is returned when every slot is recording.
func (c *Context) BeginFrame(ctx context.Context, label string) (*Frame, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	h, ok := c.slots.TryAcquire()
	if !ok {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyFrames, c.opts.maxRecording)
	}

	i := int(h.Index())
	f := &Frame{
		c:           c,
		label:       label,
		slot:        h,
		fs:          c.frameSlots[i],
		upload:      c.uploads.Ring(i),
		descriptors: c.descriptors.Ring(i),
	}
	for _, r := range []*ring.Linear{f.upload, f.descriptors} {
		if r.TryBeginFrame(c.epochs.GPU()) {
			continue
		}
		if err := c.epochs.WaitFor(ctx, r.PendingEpoch()); err != nil {
			c.slots.Release(h)
			return nil, fmt.Errorf("gpurt: wait for frame slot: %w", err)
		}
		r.OnBeginFrame()
	}
	f.fs.stream.Reset()
	f.fs.tracker.Reset()
	f.fs.acquired = f.fs.acquired[:0]
	return f, nil
}

// Label returns the label given to BeginFrame.
func (f *Frame) Label() string { return f.label }

// Commands returns the number of recorded commands.
func (f *Frame) Commands() int { return f.fs.stream.Count() }

// Remaining returns the free command stream capacity in bytes.
func (f *Frame) Remaining() int { return f.fs.stream.Remaining() }

// Discard drops the recording and returns every acquired object to its
// cache. It never advances an epoch. Discarding a finished frame is a no-op.
func (f *Frame) Discard() {
	if f.done {
		return
	}
	f.c.submitMu.Lock()
	defer f.c.submitMu.Unlock()
	f.finish(f.c.epochs.CPU(), false)
}

// finish releases the frame's cache entries at epoch and frees its slot.
// submitted marks the slot's rings as used by that epoch.
func (f *Frame) finish(epoch uint64, submitted bool) {
	for _, h := range f.fs.acquired {
		f.c.releaseCached(h, epoch)
	}
	if submitted {
		f.upload.MarkSubmitted(epoch)
		f.descriptors.MarkSubmitted(epoch)
	}
	f.fs.acquired = f.fs.acquired[:0]
	f.done = true
	f.c.slots.Release(f.slot)
}

func (f *Frame) check() error {
	if f.done {
		return fmt.Errorf("%w: %q", ErrFrameDone, f.label)
	}
	return nil
}

func (f *Frame) add(cmd cmdstream.Command) {
	if f.done {
		panic(fmt.Sprintf("gpurt: %s recorded into finished frame %q", cmd.Tag(), f.label))
	}
	f.fs.stream.Add(cmd)
}

// keep records a cache acquisition to undo when the frame finishes.
func (f *Frame) keep(h handle.Handle, err error) (handle.Handle, error) {
	if err != nil {
		return handle.Invalid, err
	}
	f.fs.acquired = append(f.fs.acquired, h)
	return h, nil
}

// AcquireBuffer returns a buffer matching desc for the lifetime of the
// frame. A buffer released by an earlier frame is reused when one matches;
// its previous contents are not cleared.
func (f *Frame) AcquireBuffer(desc gpucore.BufferDesc) (handle.Handle, error) {
	if err := f.check(); err != nil {
		return handle.Invalid, err
	}
	c := f.c
	return f.keep(lookup(c.buffers.GetOrCreate, desc, "buffer", func() (handle.Handle, error) {
		return c.create(handle.KindBuffer, resource{buffer: desc}, func() (gpucore.Object, error) {
			return c.be.CreateBuffer(desc)
		})
	}))
}

// AcquireTexture returns a texture matching desc for the lifetime of the
// frame.
func (f *Frame) AcquireTexture(desc gpucore.TextureDesc) (handle.Handle, error) {
	if err := f.check(); err != nil {
		return handle.Invalid, err
	}
	c := f.c
	desc = desc.Normalize()
	return f.keep(lookup(c.textures.GetOrCreate, desc, "texture", func() (handle.Handle, error) {
		return c.create(handle.KindTexture, resource{texture: desc}, func() (gpucore.Object, error) {
			return c.be.CreateTexture(desc)
		})
	}))
}

// AcquireRenderTarget returns a render target matching desc for the
// lifetime of the frame.
func (f *Frame) AcquireRenderTarget(desc gpucore.RenderTargetDesc) (handle.Handle, error) {
	if err := f.check(); err != nil {
		return handle.Invalid, err
	}
	c := f.c
	desc = desc.Normalize()
	return f.keep(lookup(c.targets.GetOrCreate, desc, "render target", func() (handle.Handle, error) {
		return c.create(handle.KindRenderTarget, resource{target: desc}, func() (gpucore.Object, error) {
			return c.be.CreateRenderTarget(desc)
		})
	}))
}

// AcquireGraphicsPSO returns a graphics pipeline for desc, keyed by the
// content hash of its shaders, layout and fixed-function state.
func (f *Frame) AcquireGraphicsPSO(desc *gpucore.GraphicsPSODesc) (handle.Handle, error) {
	if err := f.check(); err != nil {
		return handle.Invalid, err
	}
	c := f.c
	hash := desc.Hash()
	return f.keep(lookup(c.graphicsPSOs.GetOrCreate, hash, "graphics pso", func() (handle.Handle, error) {
		return c.create(handle.KindGraphicsPSO, resource{hash: hash}, func() (gpucore.Object, error) {
			return c.be.CreateGraphicsPSO(desc)
		})
	}))
}

// AcquireComputePSO returns a compute pipeline for desc.
func (f *Frame) AcquireComputePSO(desc *gpucore.ComputePSODesc) (handle.Handle, error) {
	if err := f.check(); err != nil {
		return handle.Invalid, err
	}
	c := f.c
	hash := desc.Hash()
	return f.keep(lookup(c.computePSOs.GetOrCreate, hash, "compute pso", func() (handle.Handle, error) {
		return c.create(handle.KindComputePSO, resource{hash: hash}, func() (gpucore.Object, error) {
			return c.be.CreateComputePSO(desc)
		})
	}))
}

// AcquireGraphicsView returns a shader view for use with graphics
// pipelines.
func (f *Frame) AcquireGraphicsView(desc *gpucore.ShaderViewDesc) (handle.Handle, error) {
	return f.acquireView(handle.KindGraphicsShaderView, desc)
}

// AcquireComputeView returns a shader view for use with compute pipelines.
func (f *Frame) AcquireComputeView(desc *gpucore.ShaderViewDesc) (handle.Handle, error) {
	return f.acquireView(handle.KindComputeShaderView, desc)
}

func (f *Frame) acquireView(kind handle.Kind, desc *gpucore.ShaderViewDesc) (handle.Handle, error) {
	if err := f.check(); err != nil {
		return handle.Invalid, err
	}
	c := f.c
	views := c.graphicsViews
	if kind == handle.KindComputeShaderView {
		views = c.computeViews
	}
	hash := desc.Hash()
	return f.keep(lookup(views.GetOrCreate, hash, kind.String(), func() (handle.Handle, error) {
		bound := make([]gpucore.Object, len(desc.Resources))
		var bindings []viewBinding
		for i, r := range desc.Resources {
			b, ok := desc.Layout.Find(r.Slot)
			if !ok {
				return handle.Invalid, fmt.Errorf("gpurt: view %q binds slot %d missing from its layout", desc.Label, r.Slot)
			}
			bound[i] = c.Resolve(r.Resource)
			if s := backend.BindingState(b.Type); s != state.Undefined {
				bindings = append(bindings, viewBinding{h: r.Resource, state: s})
			}
		}
		return c.create(kind, resource{hash: hash, bindings: bindings}, func() (gpucore.Object, error) {
			return c.be.CreateShaderView(desc, bound)
		})
	}))
}

// AcquireSampler returns the shared sampler for desc. Samplers are
// immutable and kept in a bounded LRU cache; a sampler evicted from it is
// destroyed through the deferred queue.
func (f *Frame) AcquireSampler(desc gpucore.SamplerDesc) (handle.Handle, error) {
	if err := f.check(); err != nil {
		return handle.Invalid, err
	}
	c := f.c
	c.samplerMu.Lock()
	defer c.samplerMu.Unlock()

	if h, ok := c.samplers.Get(desc); ok {
		return h, nil
	}
	h, err := c.create(handle.KindSampler, resource{sampler: desc}, func() (gpucore.Object, error) {
		return c.be.CreateSampler(desc)
	})
	if err != nil {
		return handle.Invalid, err
	}
	c.samplers.Add(desc, h)
	return h, nil
}

// lookup acquires key through get, the GetOrCreate method of a cache.Cache
// or cache.ShardedCache.
func lookup[K comparable](get func(K, func() (handle.Handle, error)) (handle.Handle, bool, error), key K, what string, create func() (handle.Handle, error)) (handle.Handle, error) {
	h, created, err := get(key, create)
	if err != nil {
		return handle.Invalid, err
	}
	if created {
		slogger().Debug("gpurt: cache miss", "object", what, "handle", h)
	}
	return h, nil
}

// Upload copies data into the frame's upload ring and returns where it
// landed. The slice can be used as the source of CopyBuffer and
// CopyBufferToTexture in this frame.
func (f *Frame) Upload(data []byte) (UploadSlice, error) {
	if err := f.check(); err != nil {
		return UploadSlice{}, err
	}
	c := f.c
	if !f.fs.uploadBuf.IsValid() {
		desc := gpucore.BufferDesc{
			Size:  c.opts.uploadRingSize,
			Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
		}
		h, err := c.create(handle.KindBuffer, resource{persistent: true, buffer: desc}, func() (gpucore.Object, error) {
			return c.be.CreateBuffer(desc)
		})
		if err != nil {
			return UploadSlice{}, err
		}
		f.fs.uploadBuf = h
	}

	size := uint64(len(data))
	off, ok := f.upload.Alloc(size, uploadAlignment)
	if !ok {
		return UploadSlice{}, fmt.Errorf("%w: %d bytes, %d of %d in use", ErrUploadRingFull, size, f.upload.Used(), f.upload.Cap())
	}
	if err := c.be.WriteBuffer(c.Resolve(f.fs.uploadBuf), off, data); err != nil {
		return UploadSlice{}, fmt.Errorf("gpurt: upload: %w", err)
	}
	return UploadSlice{Buffer: f.fs.uploadBuf, Offset: off, Size: size}, nil
}

// AllocDescriptors reserves n consecutive descriptors from the frame's
// descriptor ring and returns the first index. It reports false when the
// ring is full; the caller may submit and retry in a new frame.
func (f *Frame) AllocDescriptors(n uint64) (uint64, bool) {
	if f.done {
		return 0, false
	}
	return f.descriptors.Alloc(n, 1)
}

// Transition records that h is used in target state from here on. Most
// callers rely on the recording methods, which transition implicitly.
func (f *Frame) Transition(h handle.Handle, target state.State) {
	if f.done {
		panic(fmt.Sprintf("gpurt: transition of %v recorded into finished frame %q", h, f.label))
	}
	if f.inPass {
		// A first touch resolves at submission; a change of a known state
		// cannot be recorded until the pass ends.
		if cur, known := f.fs.tracker.Current(h); known && cur != target {
			if f.err == nil {
				f.err = fmt.Errorf("%w: %v %v -> %v", ErrTransitionInPass, h, cur, target)
			}
			return
		}
	}
	before, known := f.fs.tracker.Transition(h, target)
	if !known || before == target {
		return
	}
	f.add(cmdstream.Transition{Resource: h, Before: before, After: target})
}

// BeginRenderPass transitions the pass targets and opens a render pass.
func (f *Frame) BeginRenderPass(pass cmdstream.BeginRenderPass) {
	for _, h := range pass.Color {
		if h.IsValid() {
			f.Transition(h, state.RenderTarget)
		}
	}
	if pass.Depth.IsValid() {
		f.Transition(pass.Depth, state.DepthWrite)
	}
	f.add(pass)
	f.inPass = true
}

// EndRenderPass closes the open render pass.
func (f *Frame) EndRenderPass() {
	f.add(cmdstream.EndRenderPass{})
	f.inPass = false
}

// BeginComputePass opens a compute pass.
func (f *Frame) BeginComputePass() {
	f.add(cmdstream.BeginComputePass{})
	f.inPass = true
}

// EndComputePass closes the open compute pass.
func (f *Frame) EndComputePass() {
	f.add(cmdstream.EndComputePass{})
	f.inPass = false
}

// SetGraphicsPipeline binds a graphics pipeline.
func (f *Frame) SetGraphicsPipeline(pso handle.Handle) {
	f.add(cmdstream.SetGraphicsPipeline{PSO: pso})
}

// SetComputePipeline binds a compute pipeline.
func (f *Frame) SetComputePipeline(pso handle.Handle) {
	f.add(cmdstream.SetComputePipeline{PSO: pso})
}

// SetShaderView binds a shader view to slot and transitions its resources
// to the states their bindings require. Inside a pass this only works for
// resources first touched by the view or already in the required state;
// use Transition before the pass otherwise.
func (f *Frame) SetShaderView(slot uint32, view handle.Handle) {
	for _, b := range f.c.pool(view).Get(view).bindings {
		f.Transition(b.h, b.state)
	}
	f.add(cmdstream.SetShaderView{Slot: slot, View: view})
}

// SetVertexBuffer binds a vertex buffer.
func (f *Frame) SetVertexBuffer(slot uint32, buf handle.Handle, offset uint64) {
	f.Transition(buf, state.Vertex)
	f.add(cmdstream.SetVertexBuffer{Slot: slot, Buffer: buf, Offset: offset})
}

// SetIndexBuffer binds an index buffer.
func (f *Frame) SetIndexBuffer(buf handle.Handle, format cmdstream.IndexFormat, offset uint64) {
	f.Transition(buf, state.Index)
	f.add(cmdstream.SetIndexBuffer{Buffer: buf, Format: format, Offset: offset})
}

// SetViewport sets the viewport of the open render pass.
func (f *Frame) SetViewport(vp cmdstream.SetViewport) {
	f.add(vp)
}

// SetScissor sets the scissor rectangle of the open render pass.
func (f *Frame) SetScissor(x, y, width, height uint32) {
	f.add(cmdstream.SetScissor{X: x, Y: y, Width: width, Height: height})
}

// Draw records a non-indexed draw.
func (f *Frame) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	f.add(cmdstream.Draw{
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	})
}

// DrawIndexed records an indexed draw.
func (f *Frame) DrawIndexed(d cmdstream.DrawIndexed) {
	f.add(d)
}

// Dispatch records a compute dispatch.
func (f *Frame) Dispatch(x, y, z uint32) {
	f.add(cmdstream.Dispatch{X: x, Y: y, Z: z})
}

// CopyBuffer copies size bytes between buffers.
func (f *Frame) CopyBuffer(src, dst handle.Handle, srcOffset, dstOffset, size uint64) {
	f.Transition(src, state.CopySrc)
	f.Transition(dst, state.CopyDst)
	f.add(cmdstream.CopyBuffer{Src: src, Dst: dst, SrcOffset: srcOffset, DstOffset: dstOffset, Size: size})
}

// CopyBufferToTexture copies buffer rows into a texture region.
func (f *Frame) CopyBufferToTexture(cp cmdstream.CopyBufferToTexture) {
	f.Transition(cp.Src, state.CopySrc)
	f.Transition(cp.Dst, state.CopyDst)
	f.add(cp)
}

// CopyTextureToBuffer copies a texture region into buffer rows.
func (f *Frame) CopyTextureToBuffer(cp cmdstream.CopyTextureToBuffer) {
	f.Transition(cp.Src, state.CopySrc)
	f.Transition(cp.Dst, state.CopyDst)
	f.add(cp)
}
