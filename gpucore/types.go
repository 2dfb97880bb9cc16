package gpucore

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpurt/handle"
)

// Object is a native object created by a Device. The runtime stores it in
// the pool slot of the handle that names it and never looks inside.
type Object any

// BufferDesc describes a buffer. It is comparable and used as the buffer
// cache key, so two equal descriptors may share a pooled buffer.
type BufferDesc struct {
	// Size is the buffer size in bytes.
	Size uint64

	// Stride is the element stride of a structured buffer, 0 for raw bytes.
	Stride uint32

	// Usage is the set of allowed usages.
	Usage gputypes.BufferUsage
}

// TextureDesc describes a sampled or storage texture.
type TextureDesc struct {
	Width         uint32
	Height        uint32
	DepthOrLayers uint32
	MipLevels     uint32
	SampleCount   uint32
	Dimension     gputypes.TextureDimension
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
}

// Normalize fills zero fields with their defaults so that descriptors that
// create identical textures compare equal.
func (d TextureDesc) Normalize() TextureDesc {
	if d.DepthOrLayers == 0 {
		d.DepthOrLayers = 1
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	if d.Dimension == 0 {
		d.Dimension = gputypes.TextureDimension2D
	}
	return d
}

// RenderTargetDesc describes a color or depth-stencil attachment.
type RenderTargetDesc struct {
	Width       uint32
	Height      uint32
	Format      gputypes.TextureFormat
	SampleCount uint32
}

// Normalize fills zero fields with their defaults.
func (d RenderTargetDesc) Normalize() RenderTargetDesc {
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return d
}

// IsDepth reports whether the target is a depth-stencil attachment.
func (d RenderTargetDesc) IsDepth() bool {
	return d.Format == gputypes.TextureFormatDepth24PlusStencil8
}

// SamplerDesc describes an immutable sampler.
type SamplerDesc struct {
	Linear bool // linear filtering instead of nearest
	Repeat bool // repeat addressing instead of clamp to edge
}

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampler is a texture sampler binding.
	BindingTypeSampler

	// BindingTypeSampledTexture is a sampled texture binding.
	BindingTypeSampledTexture

	// BindingTypeStorageTexture is a storage texture binding.
	BindingTypeStorageTexture
)

// IsBuffer reports whether the binding holds a buffer.
func (t BindingType) IsBuffer() bool {
	return t >= BindingTypeUniformBuffer && t <= BindingTypeReadOnlyStorageBuffer
}

// Stage is a set of shader stages a binding is visible to.
type Stage uint8

// Shader stages.
const (
	StageVertex Stage = 1 << iota
	StageFragment
	StageCompute
)

// Binding is one slot of a shader layout.
type Binding struct {
	Slot   uint32
	Type   BindingType
	Stages Stage
}

// ShaderLayout lists the bindings of the single argument group a pipeline
// reads.
type ShaderLayout struct {
	Bindings []Binding
}

// ViewResource binds one resource to a layout slot.
type ViewResource struct {
	Slot     uint32
	Resource handle.Handle
	Offset   uint64
	Size     uint64 // 0 binds the rest of the buffer
}

// ShaderViewDesc describes a shader view: a layout plus the resources bound
// to its slots.
type ShaderViewDesc struct {
	Label     string
	Layout    ShaderLayout
	Resources []ViewResource
}

// Find returns the layout binding for slot.
func (l ShaderLayout) Find(slot uint32) (Binding, bool) {
	for _, b := range l.Bindings {
		if b.Slot == slot {
			return b, true
		}
	}
	return Binding{}, false
}
