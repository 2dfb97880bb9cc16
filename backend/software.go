package backend

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpurt/cmdstream"
	"github.com/gogpu/gpurt/gpucore"
	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/state"
)

// SoftwareBackend is a CPU-based backend. Buffers and textures live in host
// memory; copies and render target clears execute on Submit, draws and
// dispatches are only counted.
//
// Every command is checked against the resource states the runtime
// tracked: a barrier whose Before does not match the resource, or a copy
// from a buffer that is not in CopySrc, loses the device. This makes it the
// reference backend for testing barrier generation.
type SoftwareBackend struct {
	mu          sync.Mutex
	initialized bool
	lost        bool
	manual      bool
	fence       *softwareFence
	submitted   uint64
	live        int
	stats       SoftwareStats
}

// SoftwareStats counts the work a SoftwareBackend executed.
type SoftwareStats struct {
	Submissions uint64
	Lists       uint64
	Barriers    uint64
	Draws       uint64
	Dispatches  uint64
	Copies      uint64
	Clears      uint64
}

// SoftwareOption configures a SoftwareBackend.
type SoftwareOption func(*SoftwareBackend)

// WithManualCompletion makes the fence advance only through Complete, so
// tests can hold the GPU timeline back.
func WithManualCompletion() SoftwareOption {
	return func(b *SoftwareBackend) {
		b.manual = true
	}
}

// init registers the software backend on package import.
func init() {
	Register(BackendSoftware, func() Backend {
		return NewSoftwareBackend()
	})
}

// NewSoftwareBackend creates a new software backend.
func NewSoftwareBackend(opts ...SoftwareOption) *SoftwareBackend {
	b := &SoftwareBackend{fence: newSoftwareFence()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the backend identifier.
func (b *SoftwareBackend) Name() string {
	return BackendSoftware
}

// Init initializes the backend.
func (b *SoftwareBackend) Init() error {
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return nil
}

// Close releases all backend resources.
func (b *SoftwareBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.live != 0 {
		slogger().Warn("software backend: closed with live objects", "count", b.live)
	}
	b.initialized = false
}

// Fence returns the timeline signaled by Submit.
func (b *SoftwareBackend) Fence() gpucore.Fence { return b.fence }

// Complete advances the fence to value, capped at the last submitted
// value. Only meaningful with WithManualCompletion.
func (b *SoftwareBackend) Complete(value uint64) {
	b.mu.Lock()
	value = min(value, b.submitted)
	b.mu.Unlock()
	b.fence.signal(value)
}

// Stats returns execution counters.
func (b *SoftwareBackend) Stats() SoftwareStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Live returns the number of created objects not yet destroyed.
func (b *SoftwareBackend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// swResource is a buffer, texture or render target in host memory.
type swResource struct {
	data  []byte
	state state.State

	// Textures and render targets only.
	width, height uint32
	bpp           uint32
}

type swPipeline struct {
	label   string
	compute bool
}

type swView struct {
	bound []gpucore.Object
	need  []state.State
}

type swSampler struct {
	desc gpucore.SamplerDesc
}

func (b *SoftwareBackend) created(obj gpucore.Object) (gpucore.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	b.live++
	return obj, nil
}

// CreateBuffer creates a host buffer.
func (b *SoftwareBackend) CreateBuffer(desc gpucore.BufferDesc) (gpucore.Object, error) {
	return b.created(&swResource{data: make([]byte, desc.Size)})
}

// CreateTexture creates a host texture holding mip level 0.
func (b *SoftwareBackend) CreateTexture(desc gpucore.TextureDesc) (gpucore.Object, error) {
	bpp := bytesPerPixel(desc.Format)
	n := uint64(desc.Width) * uint64(desc.Height) * uint64(max(desc.DepthOrLayers, 1)) * uint64(bpp)
	return b.created(&swResource{data: make([]byte, n), width: desc.Width, height: desc.Height, bpp: bpp})
}

// CreateRenderTarget creates a host attachment.
func (b *SoftwareBackend) CreateRenderTarget(desc gpucore.RenderTargetDesc) (gpucore.Object, error) {
	bpp := bytesPerPixel(desc.Format)
	n := uint64(desc.Width) * uint64(desc.Height) * uint64(bpp)
	return b.created(&swResource{data: make([]byte, n), width: desc.Width, height: desc.Height, bpp: bpp})
}

// CreateGraphicsPSO records the pipeline label.
func (b *SoftwareBackend) CreateGraphicsPSO(desc *gpucore.GraphicsPSODesc) (gpucore.Object, error) {
	return b.created(&swPipeline{label: desc.Label})
}

// CreateComputePSO records the pipeline label.
func (b *SoftwareBackend) CreateComputePSO(desc *gpucore.ComputePSODesc) (gpucore.Object, error) {
	return b.created(&swPipeline{label: desc.Label, compute: true})
}

// CreateShaderView records the bound objects and the state each binding
// requires.
func (b *SoftwareBackend) CreateShaderView(desc *gpucore.ShaderViewDesc, bound []gpucore.Object) (gpucore.Object, error) {
	v := &swView{bound: append([]gpucore.Object(nil), bound...), need: make([]state.State, len(desc.Resources))}
	for i, r := range desc.Resources {
		bind, ok := desc.Layout.Find(r.Slot)
		if !ok {
			return nil, fmt.Errorf("software backend: view binds slot %d missing from layout", r.Slot)
		}
		v.need[i] = BindingState(bind.Type)
	}
	return b.created(v)
}

// CreateSampler records the sampler descriptor.
func (b *SoftwareBackend) CreateSampler(desc gpucore.SamplerDesc) (gpucore.Object, error) {
	return b.created(&swSampler{desc: desc})
}

// Destroy releases an object.
func (b *SoftwareBackend) Destroy(_ handle.Kind, _ gpucore.Object) {
	b.mu.Lock()
	b.live--
	b.mu.Unlock()
}

// WriteBuffer copies data into a host buffer.
func (b *SoftwareBackend) WriteBuffer(buf gpucore.Object, offset uint64, data []byte) error {
	r := buf.(*swResource)
	if offset+uint64(len(data)) > uint64(len(r.data)) {
		return fmt.Errorf("software backend: write of %d bytes at %d overflows %d-byte buffer", len(data), offset, len(r.data))
	}
	b.mu.Lock()
	copy(r.data[offset:], data)
	b.mu.Unlock()
	return nil
}

// ReadBuffer copies host buffer contents into dst.
func (b *SoftwareBackend) ReadBuffer(buf gpucore.Object, offset uint64, dst []byte) error {
	r := buf.(*swResource)
	if offset+uint64(len(dst)) > uint64(len(r.data)) {
		return fmt.Errorf("software backend: read of %d bytes at %d overflows %d-byte buffer", len(dst), offset, len(r.data))
	}
	b.mu.Lock()
	copy(dst, r.data[offset:])
	b.mu.Unlock()
	return nil
}

// BindingState returns the resource state a shader binding requires.
func BindingState(t gpucore.BindingType) state.State {
	switch t {
	case gpucore.BindingTypeUniformBuffer:
		return state.Uniform
	case gpucore.BindingTypeStorageBuffer, gpucore.BindingTypeStorageTexture:
		return state.Storage
	case gpucore.BindingTypeReadOnlyStorageBuffer, gpucore.BindingTypeSampledTexture:
		return state.ShaderRead
	default:
		return state.Undefined
	}
}

func bytesPerPixel(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 4
	}
}

// swAllocator hands out host command lists.
type swAllocator struct {
	begun int
}

func (a *swAllocator) Begin(label string) (CommandList, error) {
	a.begun++
	return &swCommandList{label: label}, nil
}

func (a *swAllocator) Reset()   { a.begun = 0 }
func (a *swAllocator) Destroy() {}

// NewAllocator creates a command allocator.
func (b *SoftwareBackend) NewAllocator() (Allocator, error) {
	return &swAllocator{}, nil
}

// swCommandList is a list of operations executed in order on Submit.
type swCommandList struct {
	label     string
	ops       []func(st *SoftwareStats) error
	finished  bool
	discarded bool
}

func (l *swCommandList) Finish() error {
	if l.discarded {
		return fmt.Errorf("%w: finish of discarded list %q", ErrInvalidCommand, l.label)
	}
	l.finished = true
	return nil
}

func (l *swCommandList) Discard() {
	l.discarded = true
	l.ops = nil
}

// Translate validates the stream structure and records host operations.
func (b *SoftwareBackend) Translate(cl CommandList, barriers []state.Barrier, p *cmdstream.Parser, res Resources) error {
	t := &swTranslator{cl: cl.(*swCommandList), res: res, p: p}
	for _, br := range barriers {
		t.transition(br.Handle, br.Before, br.After)
	}
	if err := cmdstream.Walk(p, t); err != nil {
		return err
	}
	if t.err == nil && (t.inRender || t.inCompute) {
		t.fail("stream ends inside a pass")
	}
	return t.err
}

// Submit executes lists in order and signals the fence.
func (b *SoftwareBackend) Submit(lists []CommandList, signal uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lost {
		return ErrDeviceLost
	}
	for _, l := range lists {
		cl := l.(*swCommandList)
		if !cl.finished {
			return fmt.Errorf("%w: submit of unfinished list %q", ErrInvalidCommand, cl.label)
		}
	}
	for _, l := range lists {
		cl := l.(*swCommandList)
		for _, op := range cl.ops {
			if err := op(&b.stats); err != nil {
				b.lost = true
				slogger().Warn("software backend: device lost", "list", cl.label, "err", err)
				return fmt.Errorf("%w: %w", ErrDeviceLost, err)
			}
		}
		b.stats.Lists++
	}
	b.stats.Submissions++
	b.submitted = signal
	if !b.manual {
		b.fence.signal(signal)
	}
	return nil
}

// swTranslator turns records into host operations.
type swTranslator struct {
	cl  *swCommandList
	res Resources
	p   *cmdstream.Parser
	err error

	inRender, inCompute bool
	graphicsPSO         bool
	computePSO          bool
}

func (t *swTranslator) fail(format string, args ...any) {
	if t.err == nil {
		t.err = fmt.Errorf("%w: %s (stream offset %d)", ErrInvalidCommand, fmt.Sprintf(format, args...), t.p.Offset())
	}
}

func (t *swTranslator) op(fn func(st *SoftwareStats) error) {
	t.cl.ops = append(t.cl.ops, fn)
}

func (t *swTranslator) resource(h handle.Handle) *swResource {
	return t.res.Resolve(h).(*swResource)
}

// require records a check that h is in a state including need.
func (t *swTranslator) require(h handle.Handle, need state.State) {
	r := t.resource(h)
	t.op(func(*SoftwareStats) error {
		if !r.state.Has(need) {
			return fmt.Errorf("%w: %v is %v, needs %v", ErrInvalidState, h, r.state, need)
		}
		return nil
	})
}

func (t *swTranslator) transition(h handle.Handle, before, after state.State) {
	r := t.resource(h)
	t.op(func(st *SoftwareStats) error {
		if r.state != before {
			return fmt.Errorf("%w: %v is %v, barrier expects %v", ErrInvalidState, h, r.state, before)
		}
		r.state = after
		st.Barriers++
		return nil
	})
}

func (t *swTranslator) BeginRenderPass(c *cmdstream.BeginRenderPass) {
	if t.inRender || t.inCompute {
		t.fail("render pass begun inside a pass")
		return
	}
	t.inRender = true
	t.graphicsPSO = false

	for _, h := range c.Color {
		if !h.IsValid() {
			continue
		}
		t.require(h, state.RenderTarget)
		if c.Load == cmdstream.LoadOpClear {
			r := t.resource(h)
			px := clearPixel(c.ClearColor, r.bpp)
			t.op(func(st *SoftwareStats) error {
				for i := 0; i+len(px) <= len(r.data); i += len(px) {
					copy(r.data[i:], px)
				}
				st.Clears++
				return nil
			})
		}
	}
	if c.Depth.IsValid() {
		t.require(c.Depth, state.DepthWrite)
	}
}

// clearPixel converts a normalized color to a pixel of bpp bytes.
func clearPixel(c [4]float32, bpp uint32) []byte {
	px := make([]byte, bpp)
	for i := range px {
		v := c[min(i, 3)]
		px[i] = uint8(math.Round(float64(min(max(v, 0), 1)) * 255))
	}
	return px
}

func (t *swTranslator) EndRenderPass(*cmdstream.EndRenderPass) {
	if !t.inRender {
		t.fail("end of render pass outside one")
	}
	t.inRender = false
}

func (t *swTranslator) BeginComputePass(*cmdstream.BeginComputePass) {
	if t.inRender || t.inCompute {
		t.fail("compute pass begun inside a pass")
		return
	}
	t.inCompute = true
	t.computePSO = false
}

func (t *swTranslator) EndComputePass(*cmdstream.EndComputePass) {
	if !t.inCompute {
		t.fail("end of compute pass outside one")
	}
	t.inCompute = false
}

func (t *swTranslator) SetGraphicsPipeline(c *cmdstream.SetGraphicsPipeline) {
	if p, ok := t.res.Resolve(c.PSO).(*swPipeline); !ok || p.compute {
		t.fail("%v is not a graphics pipeline", c.PSO)
		return
	}
	t.graphicsPSO = true
}

func (t *swTranslator) SetComputePipeline(c *cmdstream.SetComputePipeline) {
	if p, ok := t.res.Resolve(c.PSO).(*swPipeline); !ok || !p.compute {
		t.fail("%v is not a compute pipeline", c.PSO)
		return
	}
	t.computePSO = true
}

func (t *swTranslator) SetShaderView(c *cmdstream.SetShaderView) {
	v := t.res.Resolve(c.View).(*swView)
	for i, obj := range v.bound {
		r, ok := obj.(*swResource)
		if !ok || v.need[i] == state.Undefined {
			continue
		}
		need := v.need[i]
		view := c.View
		t.op(func(*SoftwareStats) error {
			if !r.state.Has(need) {
				return fmt.Errorf("%w: resource %d of %v is %v, needs %v", ErrInvalidState, i, view, r.state, need)
			}
			return nil
		})
	}
}

func (t *swTranslator) SetVertexBuffer(c *cmdstream.SetVertexBuffer) {
	t.require(c.Buffer, state.Vertex)
}

func (t *swTranslator) SetIndexBuffer(c *cmdstream.SetIndexBuffer) {
	t.require(c.Buffer, state.Index)
}

func (t *swTranslator) SetViewport(*cmdstream.SetViewport) {
	if !t.inRender {
		t.fail("viewport set outside a render pass")
	}
}

func (t *swTranslator) SetScissor(*cmdstream.SetScissor) {
	if !t.inRender {
		t.fail("scissor set outside a render pass")
	}
}

func (t *swTranslator) Draw(*cmdstream.Draw) { t.draw() }

func (t *swTranslator) DrawIndexed(*cmdstream.DrawIndexed) { t.draw() }

func (t *swTranslator) draw() {
	if !t.inRender || !t.graphicsPSO {
		t.fail("draw outside a render pass or without a graphics pipeline")
		return
	}
	t.op(func(st *SoftwareStats) error {
		st.Draws++
		return nil
	})
}

func (t *swTranslator) Dispatch(*cmdstream.Dispatch) {
	if !t.inCompute || !t.computePSO {
		t.fail("dispatch outside a compute pass or without a compute pipeline")
		return
	}
	t.op(func(st *SoftwareStats) error {
		st.Dispatches++
		return nil
	})
}

func (t *swTranslator) CopyBuffer(c *cmdstream.CopyBuffer) {
	if t.inRender || t.inCompute {
		t.fail("copy inside a pass")
		return
	}
	src, dst := t.resource(c.Src), t.resource(c.Dst)
	cp := *c
	t.op(func(st *SoftwareStats) error {
		if !src.state.Has(state.CopySrc) || !dst.state.Has(state.CopyDst) {
			return fmt.Errorf("%w: copy %v (%v) -> %v (%v)", ErrInvalidState, cp.Src, src.state, cp.Dst, dst.state)
		}
		if cp.SrcOffset+cp.Size > uint64(len(src.data)) || cp.DstOffset+cp.Size > uint64(len(dst.data)) {
			return fmt.Errorf("%w: copy of %d bytes out of bounds", ErrInvalidCommand, cp.Size)
		}
		copy(dst.data[cp.DstOffset:cp.DstOffset+cp.Size], src.data[cp.SrcOffset:])
		st.Copies++
		return nil
	})
}

func (t *swTranslator) CopyBufferToTexture(c *cmdstream.CopyBufferToTexture) {
	if t.inRender || t.inCompute {
		t.fail("copy inside a pass")
		return
	}
	src, dst := t.resource(c.Src), t.resource(c.Dst)
	cp := *c
	t.op(func(st *SoftwareStats) error {
		if !src.state.Has(state.CopySrc) || !dst.state.Has(state.CopyDst) {
			return fmt.Errorf("%w: copy %v (%v) -> %v (%v)", ErrInvalidState, cp.Src, src.state, cp.Dst, dst.state)
		}
		if err := copyRows(dst, src, cp.Offset, cp.BytesPerRow, cp.MipLevel, cp.Size, true); err != nil {
			return err
		}
		st.Copies++
		return nil
	})
}

func (t *swTranslator) CopyTextureToBuffer(c *cmdstream.CopyTextureToBuffer) {
	if t.inRender || t.inCompute {
		t.fail("copy inside a pass")
		return
	}
	src, dst := t.resource(c.Src), t.resource(c.Dst)
	cp := *c
	t.op(func(st *SoftwareStats) error {
		if !src.state.Has(state.CopySrc) || !dst.state.Has(state.CopyDst) {
			return fmt.Errorf("%w: copy %v (%v) -> %v (%v)", ErrInvalidState, cp.Src, src.state, cp.Dst, dst.state)
		}
		if err := copyRows(src, dst, cp.Offset, cp.BytesPerRow, cp.MipLevel, cp.Size, false); err != nil {
			return err
		}
		st.Copies++
		return nil
	})
}

// copyRows copies a region between a tightly packed texture and a buffer
// with the given row pitch. toTexture selects the direction.
func copyRows(tex, buf *swResource, offset uint64, bytesPerRow, mip uint32, size cmdstream.Extent, toTexture bool) error {
	if mip != 0 || size.Depth > 1 || size.Width > tex.width || size.Height > tex.height {
		return fmt.Errorf("%w: texture copy region %+v unsupported", ErrInvalidCommand, size)
	}
	row := uint64(size.Width) * uint64(tex.bpp)
	pitch := uint64(tex.width) * uint64(tex.bpp)
	if uint64(bytesPerRow) < row {
		return fmt.Errorf("%w: bytes per row %d below row size %d", ErrInvalidCommand, bytesPerRow, row)
	}
	if size.Height > 0 && offset+uint64(size.Height-1)*uint64(bytesPerRow)+row > uint64(len(buf.data)) {
		return fmt.Errorf("%w: texture copy overflows buffer", ErrInvalidCommand)
	}
	for y := uint64(0); y < uint64(size.Height); y++ {
		b := buf.data[offset+y*uint64(bytesPerRow):][:row]
		t := tex.data[y*pitch:][:row]
		if toTexture {
			copy(t, b)
		} else {
			copy(b, t)
		}
	}
	return nil
}

func (t *swTranslator) Transition(c *cmdstream.Transition) {
	if t.inRender || t.inCompute {
		// Passes cannot contain barriers on real hardware either.
		t.fail("transition of %v inside a pass", c.Resource)
		return
	}
	t.transition(c.Resource, c.Before, c.After)
}

// softwareFence is a fence signaled from the host.
type softwareFence struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value uint64
}

func newSoftwareFence() *softwareFence {
	f := &softwareFence{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *softwareFence) signal(v uint64) {
	f.mu.Lock()
	if v > f.value {
		f.value = v
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Completed returns the highest signaled value.
func (f *softwareFence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Wait blocks until value is signaled or ctx is done.
func (f *softwareFence) Wait(ctx context.Context, value uint64) error {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for f.value < value {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.cond.Wait()
	}
	return nil
}
