package gpucore

import (
	"encoding/binary"
	"hash"
	"hash/fnv"

	"github.com/gogpu/gputypes"
)

// ShaderCode is a compiled shader stage.
type ShaderCode struct {
	// SPIRV is the compiled module as little-endian words.
	SPIRV []uint32

	// EntryPoint defaults to "vs_main", "fs_main" or "main" by stage.
	EntryPoint string
}

// VertexAttribute describes one attribute of a vertex buffer.
type VertexAttribute struct {
	Format   gputypes.VertexFormat
	Offset   uint64
	Location uint32
}

// VertexBuffer describes the layout of one vertex buffer slot.
type VertexBuffer struct {
	Stride     uint64
	Attributes []VertexAttribute
}

// GraphicsPSODesc describes a graphics pipeline state.
type GraphicsPSODesc struct {
	// Label is a debug name. It is not part of the content hash.
	Label string

	Vertex   ShaderCode
	Fragment ShaderCode
	Layout   ShaderLayout

	VertexBuffers []VertexBuffer
	ColorFormats  []gputypes.TextureFormat

	// DepthFormat is TextureFormatUndefined for pipelines without depth.
	DepthFormat  gputypes.TextureFormat
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction

	Topology    gputypes.PrimitiveTopology
	CullMode    gputypes.CullMode
	Blend       bool // premultiplied alpha blending
	SampleCount uint32
}

// ComputePSODesc describes a compute pipeline state.
type ComputePSODesc struct {
	// Label is a debug name. It is not part of the content hash.
	Label string

	Compute ShaderCode
	Layout  ShaderLayout
}

// Hash returns the FNV-1a content hash of the shader code, layout and
// fixed-function state.
func (d *GraphicsPSODesc) Hash() uint64 {
	h := fnv.New64a()

	hashShader(h, &d.Vertex)
	hashShader(h, &d.Fragment)
	hashLayout(h, &d.Layout)

	hashWriteUint32(h, uint32(len(d.VertexBuffers))) //nolint:gosec // G115: small count
	for i := range d.VertexBuffers {
		vb := &d.VertexBuffers[i]
		hashWriteUint64(h, vb.Stride)
		hashWriteUint32(h, uint32(len(vb.Attributes))) //nolint:gosec // G115: small count
		for _, a := range vb.Attributes {
			hashWriteUint32(h, uint32(a.Format))
			hashWriteUint64(h, a.Offset)
			hashWriteUint32(h, a.Location)
		}
	}

	hashWriteUint32(h, uint32(len(d.ColorFormats))) //nolint:gosec // G115: small count
	for _, f := range d.ColorFormats {
		hashWriteUint32(h, uint32(f))
	}
	hashWriteUint32(h, uint32(d.DepthFormat))
	hashWriteBool(h, d.DepthWrite)
	hashWriteUint32(h, uint32(d.DepthCompare))
	hashWriteUint32(h, uint32(d.Topology))
	hashWriteUint32(h, uint32(d.CullMode))
	hashWriteBool(h, d.Blend)
	hashWriteUint32(h, d.SampleCount)

	return h.Sum64()
}

// Hash returns the FNV-1a content hash of the shader code and layout.
func (d *ComputePSODesc) Hash() uint64 {
	h := fnv.New64a()
	hashShader(h, &d.Compute)
	hashLayout(h, &d.Layout)
	return h.Sum64()
}

// Hash returns the FNV-1a content hash of the layout and the bound
// resources. Handles carry their generation, so a view over a recycled
// slot hashes differently from a view over its previous occupant.
func (d *ShaderViewDesc) Hash() uint64 {
	h := fnv.New64a()
	hashLayout(h, &d.Layout)
	hashWriteUint32(h, uint32(len(d.Resources))) //nolint:gosec // G115: small count
	for _, r := range d.Resources {
		hashWriteUint32(h, r.Slot)
		hashWriteUint64(h, uint64(r.Resource))
		hashWriteUint64(h, r.Offset)
		hashWriteUint64(h, r.Size)
	}
	return h.Sum64()
}

func hashShader(h hash.Hash64, s *ShaderCode) {
	hashWriteString(h, s.EntryPoint)
	hashWriteUint32(h, uint32(len(s.SPIRV))) //nolint:gosec // G115: module size fits in 32 bits
	var buf [4]byte
	for _, w := range s.SPIRV {
		binary.LittleEndian.PutUint32(buf[:], w)
		_, _ = h.Write(buf[:])
	}
}

func hashLayout(h hash.Hash64, l *ShaderLayout) {
	hashWriteUint32(h, uint32(len(l.Bindings))) //nolint:gosec // G115: small count
	for _, b := range l.Bindings {
		hashWriteUint32(h, b.Slot)
		hashWriteUint32(h, uint32(b.Type))
		hashWriteUint32(h, uint32(b.Stages))
	}
}

// hashWriteUint32 writes a uint32 to the hash.
func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteUint64 writes a uint64 to the hash.
func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteString writes a length-prefixed string to the hash.
//
//nolint:gosec // G115: entry point names are short
func hashWriteString(h hash.Hash64, s string) {
	hashWriteUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s))
}

// hashWriteBool writes a bool to the hash.
func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
