// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdstream

import (
	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/state"
)

// Tag identifies a command record. It is the first byte of every record.
type Tag uint8

// Command tags. New tags must be appended and given an entry in recordSize.
const (
	TagInvalid Tag = iota
	TagBeginRenderPass
	TagEndRenderPass
	TagBeginComputePass
	TagEndComputePass
	TagSetGraphicsPipeline
	TagSetComputePipeline
	TagSetShaderView
	TagSetVertexBuffer
	TagSetIndexBuffer
	TagSetViewport
	TagSetScissor
	TagDraw
	TagDrawIndexed
	TagDispatch
	TagCopyBuffer
	TagCopyBufferToTexture
	TagCopyTextureToBuffer
	TagTransition

	tagCount
)

var tagNames = [tagCount]string{
	TagInvalid:             "invalid",
	TagBeginRenderPass:     "begin-render-pass",
	TagEndRenderPass:       "end-render-pass",
	TagBeginComputePass:    "begin-compute-pass",
	TagEndComputePass:      "end-compute-pass",
	TagSetGraphicsPipeline: "set-graphics-pipeline",
	TagSetComputePipeline:  "set-compute-pipeline",
	TagSetShaderView:       "set-shader-view",
	TagSetVertexBuffer:     "set-vertex-buffer",
	TagSetIndexBuffer:      "set-index-buffer",
	TagSetViewport:         "set-viewport",
	TagSetScissor:          "set-scissor",
	TagDraw:                "draw",
	TagDrawIndexed:         "draw-indexed",
	TagDispatch:            "dispatch",
	TagCopyBuffer:          "copy-buffer",
	TagCopyBufferToTexture: "copy-buffer-to-texture",
	TagCopyTextureToBuffer: "copy-texture-to-buffer",
	TagTransition:          "transition",
}

func (t Tag) String() string {
	if t < tagCount {
		return tagNames[t]
	}
	return "unknown"
}

// MaxColorTargets is the number of color attachments a render pass can name.
const MaxColorTargets = 4

// LoadOp selects what happens to an attachment at the start of a pass.
type LoadOp uint8

// Load operations.
const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDiscard
)

// StoreOp selects what happens to an attachment at the end of a pass.
type StoreOp uint8

// Store operations.
const (
	StoreOpStore StoreOp = iota
	StoreOpDiscard
)

// IndexFormat is the element type of an index buffer.
type IndexFormat uint8

// Index formats.
const (
	IndexFormatUint16 IndexFormat = iota
	IndexFormatUint32
)

// Command is one fixed-size record. The set of implementations is closed:
// every record type in this package, passed by value.
type Command interface {
	Tag() Tag
	encode(e *encoder)
}

// BeginRenderPass starts a render pass over up to MaxColorTargets render
// targets and an optional depth target. Unused targets are handle.Invalid.
type BeginRenderPass struct {
	Color        [MaxColorTargets]handle.Handle
	Depth        handle.Handle
	Load         LoadOp
	Store        StoreOp
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32
}

// EndRenderPass ends the current render pass.
type EndRenderPass struct{}

// BeginComputePass starts a compute pass.
type BeginComputePass struct{}

// EndComputePass ends the current compute pass.
type EndComputePass struct{}

// SetGraphicsPipeline binds a graphics PSO.
type SetGraphicsPipeline struct {
	PSO handle.Handle
}

// SetComputePipeline binds a compute PSO.
type SetComputePipeline struct {
	PSO handle.Handle
}

// SetShaderView binds a graphics or compute shader view to a slot.
type SetShaderView struct {
	Slot uint32
	View handle.Handle
}

// SetVertexBuffer binds a vertex buffer to a slot.
type SetVertexBuffer struct {
	Slot   uint32
	Buffer handle.Handle
	Offset uint64
}

// SetIndexBuffer binds the index buffer.
type SetIndexBuffer struct {
	Buffer handle.Handle
	Format IndexFormat
	Offset uint64
}

// SetViewport sets the viewport transform.
type SetViewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// SetScissor sets the scissor rectangle.
type SetScissor struct {
	X, Y, Width, Height uint32
}

// Draw issues a non-indexed draw.
type Draw struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// DrawIndexed issues an indexed draw.
type DrawIndexed struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// Dispatch issues a compute dispatch.
type Dispatch struct {
	X, Y, Z uint32
}

// CopyBuffer copies Size bytes between buffers.
type CopyBuffer struct {
	Src       handle.Handle
	Dst       handle.Handle
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// Extent is a texture region size.
type Extent struct {
	Width, Height, Depth uint32
}

// CopyBufferToTexture copies buffer rows into one mip level of a texture.
type CopyBufferToTexture struct {
	Src          handle.Handle
	Offset       uint64
	BytesPerRow  uint32
	RowsPerImage uint32
	Dst          handle.Handle
	MipLevel     uint32
	Size         Extent
}

// CopyTextureToBuffer copies one mip level of a texture into buffer rows.
type CopyTextureToBuffer struct {
	Src          handle.Handle
	MipLevel     uint32
	Size         Extent
	Dst          handle.Handle
	Offset       uint64
	BytesPerRow  uint32
	RowsPerImage uint32
}

// Transition is an explicit resource barrier.
type Transition struct {
	Resource handle.Handle
	Before   state.State
	After    state.State
}

func (BeginRenderPass) Tag() Tag     { return TagBeginRenderPass }
func (EndRenderPass) Tag() Tag       { return TagEndRenderPass }
func (BeginComputePass) Tag() Tag    { return TagBeginComputePass }
func (EndComputePass) Tag() Tag      { return TagEndComputePass }
func (SetGraphicsPipeline) Tag() Tag { return TagSetGraphicsPipeline }
func (SetComputePipeline) Tag() Tag  { return TagSetComputePipeline }
func (SetShaderView) Tag() Tag       { return TagSetShaderView }
func (SetVertexBuffer) Tag() Tag     { return TagSetVertexBuffer }
func (SetIndexBuffer) Tag() Tag      { return TagSetIndexBuffer }
func (SetViewport) Tag() Tag         { return TagSetViewport }
func (SetScissor) Tag() Tag          { return TagSetScissor }
func (Draw) Tag() Tag                { return TagDraw }
func (DrawIndexed) Tag() Tag         { return TagDrawIndexed }
func (Dispatch) Tag() Tag            { return TagDispatch }
func (CopyBuffer) Tag() Tag          { return TagCopyBuffer }
func (CopyBufferToTexture) Tag() Tag { return TagCopyBufferToTexture }
func (CopyTextureToBuffer) Tag() Tag { return TagCopyTextureToBuffer }
func (Transition) Tag() Tag          { return TagTransition }

// decodeRecord reads the payload of a t record, or returns nil for an
// unknown tag.
func decodeRecord(t Tag, d *decoder) Command {
	switch t {
	case TagBeginRenderPass:
		var c BeginRenderPass
		c.decode(d)
		return c
	case TagEndRenderPass:
		return EndRenderPass{}
	case TagBeginComputePass:
		return BeginComputePass{}
	case TagEndComputePass:
		return EndComputePass{}
	case TagSetGraphicsPipeline:
		return SetGraphicsPipeline{PSO: d.handle()}
	case TagSetComputePipeline:
		return SetComputePipeline{PSO: d.handle()}
	case TagSetShaderView:
		var c SetShaderView
		c.decode(d)
		return c
	case TagSetVertexBuffer:
		var c SetVertexBuffer
		c.decode(d)
		return c
	case TagSetIndexBuffer:
		var c SetIndexBuffer
		c.decode(d)
		return c
	case TagSetViewport:
		var c SetViewport
		c.decode(d)
		return c
	case TagSetScissor:
		var c SetScissor
		c.decode(d)
		return c
	case TagDraw:
		var c Draw
		c.decode(d)
		return c
	case TagDrawIndexed:
		var c DrawIndexed
		c.decode(d)
		return c
	case TagDispatch:
		var c Dispatch
		c.decode(d)
		return c
	case TagCopyBuffer:
		var c CopyBuffer
		c.decode(d)
		return c
	case TagCopyBufferToTexture:
		var c CopyBufferToTexture
		c.decode(d)
		return c
	case TagCopyTextureToBuffer:
		var c CopyTextureToBuffer
		c.decode(d)
		return c
	case TagTransition:
		var c Transition
		c.decode(d)
		return c
	}
	return nil
}
