package gpucore

import (
	"context"
	"errors"

	"github.com/gogpu/gpurt/handle"
)

// ErrUnsupportedBinding is returned by a Device that cannot bind the
// requested resource type in a shader view.
var ErrUnsupportedBinding = errors.New("gpucore: unsupported binding type")

// Device is the native creation boundary. The runtime calls it when a cache
// misses and when a cached or deferred object is finally destroyed.
//
// Create calls happen outside every pool and cache lock and may run
// concurrently. Destroy is called exactly once per created object, after
// the GPU has finished every submission that referenced it.
type Device interface {
	// CreateBuffer creates a buffer.
	CreateBuffer(desc BufferDesc) (Object, error)

	// CreateTexture creates a texture. desc is already normalized.
	CreateTexture(desc TextureDesc) (Object, error)

	// CreateRenderTarget creates a color or depth attachment.
	CreateRenderTarget(desc RenderTargetDesc) (Object, error)

	// CreateGraphicsPSO creates a graphics pipeline state.
	CreateGraphicsPSO(desc *GraphicsPSODesc) (Object, error)

	// CreateComputePSO creates a compute pipeline state.
	CreateComputePSO(desc *ComputePSODesc) (Object, error)

	// CreateShaderView creates a shader view. bound holds the native object
	// of each entry of desc.Resources, in order.
	CreateShaderView(desc *ShaderViewDesc, bound []Object) (Object, error)

	// CreateSampler creates a sampler.
	CreateSampler(desc SamplerDesc) (Object, error)

	// Destroy destroys an object previously created for kind.
	Destroy(kind handle.Kind, obj Object)

	// WriteBuffer copies data into a buffer at offset, ordered before the
	// next submission.
	WriteBuffer(buf Object, offset uint64, data []byte) error

	// ReadBuffer copies buffer contents into dst. The caller makes sure the
	// GPU is done writing the range.
	ReadBuffer(buf Object, offset uint64, dst []byte) error
}

// Fence is a monotonically increasing GPU timeline.
type Fence interface {
	// Completed returns the highest value the GPU has reached.
	Completed() uint64

	// Wait blocks until the GPU reaches value or ctx is done.
	Wait(ctx context.Context, value uint64) error
}
