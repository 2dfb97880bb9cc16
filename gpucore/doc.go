// Package gpucore defines the boundary between the gpurt runtime and a
// native graphics API.
//
// The runtime never creates native objects itself. On a cache miss it
// calls a [Device] with a descriptor and stores the returned [Object] in
// the pool slot of a fresh handle; when the object is finally safe to
// destroy it hands it back through [Device.Destroy].
//
// # Descriptors
//
// [BufferDesc], [TextureDesc], [RenderTargetDesc] and [SamplerDesc] are
// comparable and serve directly as cache keys. Pipeline states and shader
// views contain slices, so they are keyed by an FNV-1a content hash
// instead:
//
//	desc := &gpucore.ComputePSODesc{
//	    Label:   "blur",
//	    Compute: gpucore.ShaderCode{SPIRV: spirv},
//	    Layout: gpucore.ShaderLayout{Bindings: []gpucore.Binding{
//	        {Slot: 0, Type: gpucore.BindingTypeStorageBuffer, Stages: gpucore.StageCompute},
//	    }},
//	}
//	key := desc.Hash()
//
// Labels never take part in a hash.
//
// # Fences
//
// A [Fence] is the GPU timeline the runtime's epoch tracker reads. Backends
// signal it on every submission with the value the tracker assigns.
package gpucore
