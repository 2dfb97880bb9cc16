package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpurt/backend"
	"github.com/gogpu/gpurt/gpucore"
	"github.com/gogpu/gpurt/handle"
)

// Native objects handed to the runtime as gpucore.Object.
type (
	buffer struct {
		raw  hal.Buffer
		size uint64
	}

	// texture backs both textures and render targets.
	texture struct {
		raw    hal.Texture
		view   hal.TextureView
		width  uint32
		height uint32
		format gputypes.TextureFormat
	}

	graphicsPipeline struct {
		raw  hal.RenderPipeline
		objs pipelineObjects
	}

	computePipeline struct {
		raw  hal.ComputePipeline
		objs pipelineObjects
	}

	shaderView struct {
		group  hal.BindGroup
		layout hal.BindGroupLayout
	}

	sampler struct {
		raw hal.Sampler
	}
)

// checkReady reports ErrNotInitialized or ErrDeviceLost. Callers hold b.mu.
func (b *Backend) checkReady() error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if b.lost {
		return backend.ErrDeviceLost
	}
	return nil
}

// CreateBuffer creates a GPU buffer. Copy usages are always added.
func (b *Backend) CreateBuffer(desc gpucore.BufferDesc) (gpucore.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkReady(); err != nil {
		return nil, err
	}

	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gpurt-buffer",
		Size:  desc.Size,
		Usage: desc.Usage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create buffer of %d bytes: %w", desc.Size, err)
	}
	b.live++
	return &buffer{raw: raw, size: desc.Size}, nil
}

// CreateTexture creates a texture and its default view.
func (b *Backend) CreateTexture(desc gpucore.TextureDesc) (gpucore.Object, error) {
	desc = desc.Normalize()
	return b.createTexture(&hal.TextureDescriptor{
		Label: "gpurt-texture",
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.DepthOrLayers,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.SampleCount,
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         desc.Usage | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
}

// CreateRenderTarget creates a color or depth attachment and its view.
func (b *Backend) CreateRenderTarget(desc gpucore.RenderTargetDesc) (gpucore.Object, error) {
	desc = desc.Normalize()
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc
	if !desc.IsDepth() {
		usage |= gputypes.TextureUsageTextureBinding
	}
	return b.createTexture(&hal.TextureDescriptor{
		Label:         "gpurt-render-target",
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   desc.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         usage,
	})
}

func (b *Backend) createTexture(desc *hal.TextureDescriptor) (gpucore.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkReady(); err != nil {
		return nil, err
	}

	raw, err := b.device.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("native: create %dx%d texture: %w", desc.Size.Width, desc.Size.Height, err)
	}
	view, err := b.device.CreateTextureView(raw, &hal.TextureViewDescriptor{Label: desc.Label + "-view"})
	if err != nil {
		b.device.DestroyTexture(raw)
		return nil, fmt.Errorf("native: create texture view: %w", err)
	}
	b.live++
	return &texture{raw: raw, view: view, width: desc.Size.Width, height: desc.Size.Height, format: desc.Format}, nil
}

// CreateGraphicsPSO creates the shader modules, layout and render pipeline
// of desc.
func (b *Backend) CreateGraphicsPSO(desc *gpucore.GraphicsPSODesc) (gpucore.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkReady(); err != nil {
		return nil, err
	}

	var objs pipelineObjects
	vs, err := createShaderModule(b.device, desc.Label+"-vs", desc.Vertex.SPIRV)
	if err != nil {
		return nil, fmt.Errorf("native: create vertex shader: %w", err)
	}
	objs.modules = append(objs.modules, vs)

	var fragment *hal.FragmentState
	if len(desc.Fragment.SPIRV) > 0 {
		fs, err := createShaderModule(b.device, desc.Label+"-fs", desc.Fragment.SPIRV)
		if err != nil {
			objs.destroy(b.device)
			return nil, fmt.Errorf("native: create fragment shader: %w", err)
		}
		objs.modules = append(objs.modules, fs)
		fragment = &hal.FragmentState{
			Module:     fs,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    colorTargets(desc),
		}
	}

	if err := b.createLayout(&objs, desc.Label, desc.Layout); err != nil {
		objs.destroy(b.device)
		return nil, err
	}

	samples := max(desc.SampleCount, 1)
	raw, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: objs.layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    vertexLayouts(desc.VertexBuffers),
		},
		Fragment:     fragment,
		DepthStencil: depthStencil(desc),
		Primitive: gputypes.PrimitiveState{
			Topology: desc.Topology,
			CullMode: desc.CullMode,
		},
		Multisample: gputypes.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		objs.destroy(b.device)
		return nil, fmt.Errorf("native: create render pipeline %q: %w", desc.Label, err)
	}
	b.live++
	return &graphicsPipeline{raw: raw, objs: objs}, nil
}

// CreateComputePSO creates the shader module, layout and compute pipeline
// of desc.
func (b *Backend) CreateComputePSO(desc *gpucore.ComputePSODesc) (gpucore.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkReady(); err != nil {
		return nil, err
	}

	var objs pipelineObjects
	cs, err := createShaderModule(b.device, desc.Label+"-cs", desc.Compute.SPIRV)
	if err != nil {
		return nil, fmt.Errorf("native: create compute shader: %w", err)
	}
	objs.modules = append(objs.modules, cs)

	if err := b.createLayout(&objs, desc.Label, desc.Layout); err != nil {
		objs.destroy(b.device)
		return nil, err
	}

	raw, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: objs.layout,
		Compute: hal.ComputeState{
			Module:     cs,
			EntryPoint: desc.Compute.EntryPoint,
		},
	})
	if err != nil {
		objs.destroy(b.device)
		return nil, fmt.Errorf("native: create compute pipeline %q: %w", desc.Label, err)
	}
	b.live++
	return &computePipeline{raw: raw, objs: objs}, nil
}

// createLayout creates the bind group layout and pipeline layout of a
// pipeline into objs.
func (b *Backend) createLayout(objs *pipelineObjects, label string, layout gpucore.ShaderLayout) error {
	var groups []hal.BindGroupLayout
	if len(layout.Bindings) > 0 {
		bgl, err := b.bindGroupLayout(label, layout)
		if err != nil {
			return err
		}
		objs.groups = append(objs.groups, bgl)
		groups = objs.groups
	}
	pl, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "-layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		return fmt.Errorf("native: create pipeline layout: %w", err)
	}
	objs.layout = pl
	return nil
}

func (b *Backend) bindGroupLayout(label string, layout gpucore.ShaderLayout) (hal.BindGroupLayout, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(layout.Bindings))
	for _, bind := range layout.Bindings {
		typ, ok := bufferBindingType(bind.Type)
		if !ok {
			return nil, fmt.Errorf("%w: slot %d", gpucore.ErrUnsupportedBinding, bind.Slot)
		}
		entry := gputypes.BindGroupLayoutEntry{
			Binding: bind.Slot,
			Buffer:  &gputypes.BufferBindingLayout{Type: typ},
		}
		setVisibility(&entry, bind.Stages)
		entries = append(entries, entry)
	}
	bgl, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "-bgl",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create bind group layout: %w", err)
	}
	return bgl, nil
}

// CreateShaderView creates a bind group over bound, which holds one buffer
// per desc.Resources entry.
func (b *Backend) CreateShaderView(desc *gpucore.ShaderViewDesc, bound []gpucore.Object) (gpucore.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkReady(); err != nil {
		return nil, err
	}

	bgl, err := b.bindGroupLayout(desc.Label, desc.Layout)
	if err != nil {
		return nil, err
	}
	entries := make([]gputypes.BindGroupEntry, len(desc.Resources))
	for i, r := range desc.Resources {
		buf, ok := bound[i].(*buffer)
		if !ok {
			b.device.DestroyBindGroupLayout(bgl)
			return nil, fmt.Errorf("%w: slot %d is not a buffer", gpucore.ErrUnsupportedBinding, r.Slot)
		}
		size := r.Size
		if size == 0 {
			size = buf.size - r.Offset
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding: r.Slot,
			Resource: gputypes.BufferBinding{
				Buffer: buf.raw.NativeHandle(),
				Offset: r.Offset,
				Size:   size,
			},
		}
	}
	group, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  bgl,
		Entries: entries,
	})
	if err != nil {
		b.device.DestroyBindGroupLayout(bgl)
		return nil, fmt.Errorf("native: create bind group: %w", err)
	}
	b.live++
	return &shaderView{group: group, layout: bgl}, nil
}

// CreateSampler creates a sampler.
func (b *Backend) CreateSampler(desc gpucore.SamplerDesc) (gpucore.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkReady(); err != nil {
		return nil, err
	}

	address := gputypes.AddressModeClampToEdge
	if desc.Repeat {
		address = gputypes.AddressModeRepeat
	}
	filter := gputypes.FilterModeNearest
	if desc.Linear {
		filter = gputypes.FilterModeLinear
	}
	raw, err := b.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "gpurt-sampler",
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create sampler: %w", err)
	}
	b.live++
	return &sampler{raw: raw}, nil
}

// Destroy releases a native object created by this backend.
func (b *Backend) Destroy(kind handle.Kind, obj gpucore.Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return
	}

	switch o := obj.(type) {
	case *buffer:
		b.device.DestroyBuffer(o.raw)
	case *texture:
		b.device.DestroyTextureView(o.view)
		b.device.DestroyTexture(o.raw)
	case *graphicsPipeline:
		b.device.DestroyRenderPipeline(o.raw)
		o.objs.destroy(b.device)
	case *computePipeline:
		b.device.DestroyComputePipeline(o.raw)
		o.objs.destroy(b.device)
	case *shaderView:
		b.device.DestroyBindGroup(o.group)
		b.device.DestroyBindGroupLayout(o.layout)
	case *sampler:
		b.device.DestroySampler(o.raw)
	default:
		panic(fmt.Sprintf("native: destroy of foreign %s object %T", kind, obj))
	}
	b.live--
}

// WriteBuffer uploads data through the queue.
func (b *Backend) WriteBuffer(obj gpucore.Object, offset uint64, data []byte) error {
	buf := obj.(*buffer)
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("native: write of %d bytes at %d overflows %d-byte buffer", len(data), offset, buf.size)
	}
	if len(data) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkReady(); err != nil {
		return err
	}
	b.queue.WriteBuffer(buf.raw, offset, data)
	return nil
}

// ReadBuffer reads buffer contents back through the queue.
func (b *Backend) ReadBuffer(obj gpucore.Object, offset uint64, dst []byte) error {
	buf := obj.(*buffer)
	if offset+uint64(len(dst)) > buf.size {
		return fmt.Errorf("native: read of %d bytes at %d overflows %d-byte buffer", len(dst), offset, buf.size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkReady(); err != nil {
		return err
	}
	if err := b.queue.ReadBuffer(buf.raw, offset, dst); err != nil {
		return fmt.Errorf("native: read buffer: %w", err)
	}
	return nil
}

func bufferBindingType(t gpucore.BindingType) (gputypes.BufferBindingType, bool) {
	switch t {
	case gpucore.BindingTypeUniformBuffer:
		return gputypes.BufferBindingTypeUniform, true
	case gpucore.BindingTypeStorageBuffer:
		return gputypes.BufferBindingTypeStorage, true
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		return gputypes.BufferBindingTypeReadOnlyStorage, true
	default:
		return 0, false
	}
}

func setVisibility(e *gputypes.BindGroupLayoutEntry, s gpucore.Stage) {
	if s&gpucore.StageVertex != 0 {
		e.Visibility |= gputypes.ShaderStageVertex
	}
	if s&gpucore.StageFragment != 0 {
		e.Visibility |= gputypes.ShaderStageFragment
	}
	if s&gpucore.StageCompute != 0 {
		e.Visibility |= gputypes.ShaderStageCompute
	}
}

func vertexLayouts(in []gpucore.VertexBuffer) []gputypes.VertexBufferLayout {
	out := make([]gputypes.VertexBufferLayout, len(in))
	for i, vb := range in {
		attrs := make([]gputypes.VertexAttribute, len(vb.Attributes))
		for j, a := range vb.Attributes {
			attrs[j] = gputypes.VertexAttribute{Format: a.Format, Offset: a.Offset, ShaderLocation: a.Location}
		}
		out[i] = gputypes.VertexBufferLayout{
			ArrayStride: vb.Stride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  attrs,
		}
	}
	return out
}

func colorTargets(desc *gpucore.GraphicsPSODesc) []gputypes.ColorTargetState {
	targets := make([]gputypes.ColorTargetState, len(desc.ColorFormats))
	for i, f := range desc.ColorFormats {
		targets[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
		if desc.Blend {
			premul := gputypes.BlendStatePremultiplied()
			targets[i].Blend = &premul
		}
	}
	return targets
}

func depthStencil(desc *gpucore.GraphicsPSODesc) *hal.DepthStencilState {
	if desc.DepthFormat == gputypes.TextureFormatUndefined {
		return nil
	}
	keep := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	compare := desc.DepthCompare
	if compare == 0 {
		compare = gputypes.CompareFunctionAlways
	}
	return &hal.DepthStencilState{
		Format:            desc.DepthFormat,
		DepthWriteEnabled: desc.DepthWrite,
		DepthCompare:      compare,
		StencilFront:      keep,
		StencilBack:       keep,
	}
}
