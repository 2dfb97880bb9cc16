package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpurt/backend"
	"github.com/gogpu/gpurt/cmdstream"
	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/state"
)

// allocator records lists on one HAL encoder, one list at a time, and keeps
// the finished command buffers until Reset.
type allocator struct {
	device    hal.Device
	encoder   hal.CommandEncoder
	recording bool
	finished  []hal.CommandBuffer
}

func (a *allocator) Begin(label string) (backend.CommandList, error) {
	if a.recording {
		return nil, fmt.Errorf("%w: allocator already recording", backend.ErrInvalidCommand)
	}
	if err := a.encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding %q: %w", label, err)
	}
	a.recording = true
	return &commandList{alloc: a, label: label}, nil
}

// Reset frees every command buffer finished since the last reset.
func (a *allocator) Reset() {
	for _, cb := range a.finished {
		a.device.FreeCommandBuffer(cb)
	}
	a.finished = a.finished[:0]
}

func (a *allocator) Destroy() {
	if a.recording {
		a.encoder.DiscardEncoding()
		a.recording = false
	}
	a.Reset()
	a.encoder = nil
}

// commandList is the list being recorded on its allocator's encoder.
type commandList struct {
	alloc *allocator
	label string
	buf   hal.CommandBuffer
	done  bool
}

func (l *commandList) Finish() error {
	if l.done {
		return fmt.Errorf("%w: list %q already finished", backend.ErrInvalidCommand, l.label)
	}
	buf, err := l.alloc.encoder.EndEncoding()
	l.alloc.recording = false
	l.done = true
	if err != nil {
		return fmt.Errorf("native: end encoding %q: %w", l.label, err)
	}
	l.buf = buf
	l.alloc.finished = append(l.alloc.finished, buf)
	return nil
}

func (l *commandList) Discard() {
	if l.done {
		return
	}
	l.alloc.encoder.DiscardEncoding()
	l.alloc.recording = false
	l.done = true
}

// Translate records barriers and the parsed stream on cl's encoder.
func (b *Backend) Translate(cl backend.CommandList, barriers []state.Barrier, p *cmdstream.Parser, res backend.Resources) error {
	l := cl.(*commandList)
	t := &translator{enc: l.alloc.encoder, res: res}
	for _, br := range barriers {
		t.transition(br.Handle, br.Before, br.After)
	}
	t.flushBarriers()
	if err := cmdstream.Walk(p, t); err != nil {
		return err
	}
	if t.err == nil && t.inPass() {
		t.fail("stream ends inside a pass")
	}
	if t.err == nil {
		t.flushBarriers()
	}
	return t.err
}

// viewportSetter and scissorSetter are implemented by HAL render passes
// that support dynamic viewport and scissor state.
type (
	viewportSetter interface {
		SetViewport(x, y, width, height, minDepth, maxDepth float32)
	}
	scissorSetter interface {
		SetScissorRect(x, y, width, height uint32)
	}
)

// translator records stream commands on a HAL encoder.
type translator struct {
	enc hal.CommandEncoder
	res backend.Resources
	rp  hal.RenderPassEncoder
	cp  hal.ComputePassEncoder
	err error

	pending []hal.TextureBarrier
}

func (t *translator) fail(format string, args ...any) {
	if t.err == nil {
		t.err = fmt.Errorf("%w: %s", backend.ErrInvalidCommand, fmt.Sprintf(format, args...))
	}
}

// transition queues a texture barrier. Buffer barriers are implicit in the
// HAL and are dropped.
func (t *translator) transition(h handle.Handle, before, after state.State) {
	tex, ok := t.res.Resolve(h).(*texture)
	if !ok {
		return
	}
	t.pending = append(t.pending, hal.TextureBarrier{
		Texture: tex.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: textureUsage(before),
			NewUsage: textureUsage(after),
		},
	})
}

func (t *translator) flushBarriers() {
	if len(t.pending) == 0 {
		return
	}
	t.enc.TransitionTextures(t.pending)
	t.pending = nil
}

// textureUsage maps a resource state to the HAL usage that selects its
// image layout.
func textureUsage(s state.State) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if s&(state.RenderTarget|state.DepthWrite|state.DepthRead) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s&state.ShaderRead != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if s&state.Storage != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if s&state.CopySrc != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if s&state.CopyDst != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	return u
}

func loadOp(op cmdstream.LoadOp) gputypes.LoadOp {
	if op == cmdstream.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	// LoadOpDiscard has no HAL equivalent.
	return gputypes.LoadOpClear
}

func storeOp(op cmdstream.StoreOp) gputypes.StoreOp {
	if op == cmdstream.StoreOpDiscard {
		return gputypes.StoreOpDiscard
	}
	return gputypes.StoreOpStore
}

func (t *translator) inPass() bool { return t.rp != nil || t.cp != nil }

func (t *translator) BeginRenderPass(c *cmdstream.BeginRenderPass) {
	if t.inPass() {
		t.fail("render pass begun inside a pass")
		return
	}
	t.flushBarriers()

	desc := &hal.RenderPassDescriptor{Label: "gpurt-render-pass"}
	clearColor := gputypes.Color{
		R: float64(c.ClearColor[0]),
		G: float64(c.ClearColor[1]),
		B: float64(c.ClearColor[2]),
		A: float64(c.ClearColor[3]),
	}
	for _, h := range c.Color {
		if !h.IsValid() {
			continue
		}
		tex := t.res.Resolve(h).(*texture)
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       tex.view,
			LoadOp:     loadOp(c.Load),
			StoreOp:    storeOp(c.Store),
			ClearValue: clearColor,
		})
	}
	if c.Depth.IsValid() {
		tex := t.res.Resolve(c.Depth).(*texture)
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              tex.view,
			DepthLoadOp:       loadOp(c.Load),
			DepthStoreOp:      storeOp(c.Store),
			DepthClearValue:   c.ClearDepth,
			StencilLoadOp:     loadOp(c.Load),
			StencilStoreOp:    storeOp(c.Store),
			StencilClearValue: c.ClearStencil,
		}
	}
	t.rp = t.enc.BeginRenderPass(desc)
}

func (t *translator) EndRenderPass(*cmdstream.EndRenderPass) {
	if t.rp == nil {
		t.fail("end of render pass outside one")
		return
	}
	t.rp.End()
	t.rp = nil
}

func (t *translator) BeginComputePass(*cmdstream.BeginComputePass) {
	if t.inPass() {
		t.fail("compute pass begun inside a pass")
		return
	}
	t.flushBarriers()
	t.cp = t.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "gpurt-compute-pass"})
}

func (t *translator) EndComputePass(*cmdstream.EndComputePass) {
	if t.cp == nil {
		t.fail("end of compute pass outside one")
		return
	}
	t.cp.End()
	t.cp = nil
}

func (t *translator) SetGraphicsPipeline(c *cmdstream.SetGraphicsPipeline) {
	p, ok := t.res.Resolve(c.PSO).(*graphicsPipeline)
	if !ok || t.rp == nil {
		t.fail("graphics pipeline %v set outside a render pass", c.PSO)
		return
	}
	t.rp.SetPipeline(p.raw)
}

func (t *translator) SetComputePipeline(c *cmdstream.SetComputePipeline) {
	p, ok := t.res.Resolve(c.PSO).(*computePipeline)
	if !ok || t.cp == nil {
		t.fail("compute pipeline %v set outside a compute pass", c.PSO)
		return
	}
	t.cp.SetPipeline(p.raw)
}

func (t *translator) SetShaderView(c *cmdstream.SetShaderView) {
	v := t.res.Resolve(c.View).(*shaderView)
	switch {
	case t.rp != nil:
		t.rp.SetBindGroup(c.Slot, v.group, nil)
	case t.cp != nil:
		t.cp.SetBindGroup(c.Slot, v.group, nil)
	default:
		t.fail("shader view %v set outside a pass", c.View)
	}
}

func (t *translator) SetVertexBuffer(c *cmdstream.SetVertexBuffer) {
	if t.rp == nil {
		t.fail("vertex buffer set outside a render pass")
		return
	}
	t.rp.SetVertexBuffer(c.Slot, t.res.Resolve(c.Buffer).(*buffer).raw, c.Offset)
}

func (t *translator) SetIndexBuffer(c *cmdstream.SetIndexBuffer) {
	if t.rp == nil {
		t.fail("index buffer set outside a render pass")
		return
	}
	format := gputypes.IndexFormatUint16
	if c.Format == cmdstream.IndexFormatUint32 {
		format = gputypes.IndexFormatUint32
	}
	t.rp.SetIndexBuffer(t.res.Resolve(c.Buffer).(*buffer).raw, format, c.Offset)
}

func (t *translator) SetViewport(c *cmdstream.SetViewport) {
	if t.rp == nil {
		t.fail("viewport set outside a render pass")
		return
	}
	if vs, ok := t.rp.(viewportSetter); ok {
		vs.SetViewport(c.X, c.Y, c.Width, c.Height, c.MinDepth, c.MaxDepth)
	}
}

func (t *translator) SetScissor(c *cmdstream.SetScissor) {
	if t.rp == nil {
		t.fail("scissor set outside a render pass")
		return
	}
	if ss, ok := t.rp.(scissorSetter); ok {
		ss.SetScissorRect(c.X, c.Y, c.Width, c.Height)
	}
}

func (t *translator) Draw(c *cmdstream.Draw) {
	if t.rp == nil {
		t.fail("draw outside a render pass")
		return
	}
	t.rp.Draw(c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)
}

func (t *translator) DrawIndexed(c *cmdstream.DrawIndexed) {
	if t.rp == nil {
		t.fail("indexed draw outside a render pass")
		return
	}
	t.rp.DrawIndexed(c.IndexCount, c.InstanceCount, c.FirstIndex, c.BaseVertex, c.FirstInstance)
}

func (t *translator) Dispatch(c *cmdstream.Dispatch) {
	if t.cp == nil {
		t.fail("dispatch outside a compute pass")
		return
	}
	t.cp.Dispatch(c.X, c.Y, c.Z)
}

func (t *translator) CopyBuffer(c *cmdstream.CopyBuffer) {
	if t.inPass() {
		t.fail("copy inside a pass")
		return
	}
	t.flushBarriers()
	t.enc.CopyBufferToBuffer(
		t.res.Resolve(c.Src).(*buffer).raw,
		t.res.Resolve(c.Dst).(*buffer).raw,
		[]hal.BufferCopy{{SrcOffset: c.SrcOffset, DstOffset: c.DstOffset, Size: c.Size}},
	)
}

func textureCopy(tex *texture, mip uint32, offset uint64, bytesPerRow, rowsPerImage uint32, size cmdstream.Extent) hal.BufferTextureCopy {
	return hal.BufferTextureCopy{
		BufferLayout: hal.ImageDataLayout{
			Offset:       offset,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: rowsPerImage,
		},
		TextureBase: hal.ImageCopyTexture{
			Texture:  tex.raw,
			MipLevel: mip,
		},
		Size: hal.Extent3D{
			Width:              size.Width,
			Height:             size.Height,
			DepthOrArrayLayers: max(size.Depth, 1),
		},
	}
}

func (t *translator) CopyBufferToTexture(c *cmdstream.CopyBufferToTexture) {
	if t.inPass() {
		t.fail("copy inside a pass")
		return
	}
	t.flushBarriers()
	tex := t.res.Resolve(c.Dst).(*texture)
	t.enc.CopyBufferToTexture(
		t.res.Resolve(c.Src).(*buffer).raw,
		tex.raw,
		[]hal.BufferTextureCopy{textureCopy(tex, c.MipLevel, c.Offset, c.BytesPerRow, c.RowsPerImage, c.Size)},
	)
}

func (t *translator) CopyTextureToBuffer(c *cmdstream.CopyTextureToBuffer) {
	if t.inPass() {
		t.fail("copy inside a pass")
		return
	}
	t.flushBarriers()
	tex := t.res.Resolve(c.Src).(*texture)
	t.enc.CopyTextureToBuffer(
		tex.raw,
		t.res.Resolve(c.Dst).(*buffer).raw,
		[]hal.BufferTextureCopy{textureCopy(tex, c.MipLevel, c.Offset, c.BytesPerRow, c.RowsPerImage, c.Size)},
	)
}

func (t *translator) Transition(c *cmdstream.Transition) {
	if t.inPass() {
		t.fail("transition of %v inside a pass", c.Resource)
		return
	}
	t.transition(c.Resource, c.Before, c.After)
}
