// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdstream

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/state"
)

// recordSize is the payload size in bytes of each record, excluding the
// tag byte. The parser advances by this table, so it must cover every tag.
var recordSize = [tagCount]int{
	TagInvalid:             -1,
	TagBeginRenderPass:     MaxColorTargets*8 + 8 + 1 + 1 + 16 + 4 + 4,
	TagEndRenderPass:       0,
	TagBeginComputePass:    0,
	TagEndComputePass:      0,
	TagSetGraphicsPipeline: 8,
	TagSetComputePipeline:  8,
	TagSetShaderView:       4 + 8,
	TagSetVertexBuffer:     4 + 8 + 8,
	TagSetIndexBuffer:      8 + 1 + 8,
	TagSetViewport:         6 * 4,
	TagSetScissor:          4 * 4,
	TagDraw:                4 * 4,
	TagDrawIndexed:         5 * 4,
	TagDispatch:            3 * 4,
	TagCopyBuffer:          2*8 + 3*8,
	TagCopyBufferToTexture: 8 + 8 + 4 + 4 + 8 + 4 + 12,
	TagCopyTextureToBuffer: 8 + 4 + 12 + 8 + 8 + 4 + 4,
	TagTransition:          8 + 4 + 4,
}

// RecordSize returns the encoded size of a t record including its tag byte,
// or -1 for an unknown tag.
func RecordSize(t Tag) int {
	if t == TagInvalid || t >= tagCount {
		return -1
	}
	return 1 + recordSize[t]
}

func init() {
	// Every tag must round-trip through the size table.
	var zeros [256]byte
	for t := TagInvalid + 1; t < tagCount; t++ {
		n := recordSize[t]
		d := decoder{b: zeros[:n]}
		c := decodeRecord(t, &d)
		if c == nil || c.Tag() != t || d.off != n {
			panic(fmt.Sprintf("cmdstream: size table mismatch for %s", t))
		}
		e := encoder{}
		c.encode(&e)
		if len(e.b) != n {
			panic(fmt.Sprintf("cmdstream: %s encodes %d bytes, table says %d", t, len(e.b), n))
		}
	}
}

// encoder appends little-endian fields.
type encoder struct{ b []byte }

func (e *encoder) u8(v uint8)             { e.b = append(e.b, v) }
func (e *encoder) u32(v uint32)           { e.b = binary.LittleEndian.AppendUint32(e.b, v) }
func (e *encoder) u64(v uint64)           { e.b = binary.LittleEndian.AppendUint64(e.b, v) }
func (e *encoder) f32(v float32)          { e.u32(math.Float32bits(v)) }
func (e *encoder) handle(h handle.Handle) { e.u64(uint64(h)) }
func (e *encoder) state(s state.State)    { e.u32(uint32(s)) }
func (e *encoder) i32(v int32)            { e.u32(uint32(v)) } //nolint:gosec // G115: bit-preserving

func (e *encoder) extent(x Extent) {
	e.u32(x.Width)
	e.u32(x.Height)
	e.u32(x.Depth)
}

// decoder reads little-endian fields. Callers check the length up front.
type decoder struct {
	b   []byte
	off int
}

func (d *decoder) u8() uint8 {
	v := d.b[d.off]
	d.off++
	return v
}

func (d *decoder) u32() uint32 {
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v
}

func (d *decoder) f32() float32         { return math.Float32frombits(d.u32()) }
func (d *decoder) handle() handle.Handle { return handle.Handle(d.u64()) }
func (d *decoder) state() state.State    { return state.State(d.u32()) }
func (d *decoder) i32() int32            { return int32(d.u32()) } //nolint:gosec // G115: bit-preserving
func (d *decoder) extent() Extent        { return Extent{Width: d.u32(), Height: d.u32(), Depth: d.u32()} }

func (c BeginRenderPass) encode(e *encoder) {
	for _, h := range c.Color {
		e.handle(h)
	}
	e.handle(c.Depth)
	e.u8(uint8(c.Load))
	e.u8(uint8(c.Store))
	for _, f := range c.ClearColor {
		e.f32(f)
	}
	e.f32(c.ClearDepth)
	e.u32(c.ClearStencil)
}

func (c *BeginRenderPass) decode(d *decoder) {
	for i := range c.Color {
		c.Color[i] = d.handle()
	}
	c.Depth = d.handle()
	c.Load = LoadOp(d.u8())
	c.Store = StoreOp(d.u8())
	for i := range c.ClearColor {
		c.ClearColor[i] = d.f32()
	}
	c.ClearDepth = d.f32()
	c.ClearStencil = d.u32()
}

func (EndRenderPass) encode(*encoder)    {}
func (BeginComputePass) encode(*encoder) {}
func (EndComputePass) encode(*encoder)   {}

func (c SetGraphicsPipeline) encode(e *encoder) { e.handle(c.PSO) }
func (c SetComputePipeline) encode(e *encoder)  { e.handle(c.PSO) }

func (c SetShaderView) encode(e *encoder) {
	e.u32(c.Slot)
	e.handle(c.View)
}

func (c *SetShaderView) decode(d *decoder) {
	c.Slot = d.u32()
	c.View = d.handle()
}

func (c SetVertexBuffer) encode(e *encoder) {
	e.u32(c.Slot)
	e.handle(c.Buffer)
	e.u64(c.Offset)
}

func (c *SetVertexBuffer) decode(d *decoder) {
	c.Slot = d.u32()
	c.Buffer = d.handle()
	c.Offset = d.u64()
}

func (c SetIndexBuffer) encode(e *encoder) {
	e.handle(c.Buffer)
	e.u8(uint8(c.Format))
	e.u64(c.Offset)
}

func (c *SetIndexBuffer) decode(d *decoder) {
	c.Buffer = d.handle()
	c.Format = IndexFormat(d.u8())
	c.Offset = d.u64()
}

func (c SetViewport) encode(e *encoder) {
	e.f32(c.X)
	e.f32(c.Y)
	e.f32(c.Width)
	e.f32(c.Height)
	e.f32(c.MinDepth)
	e.f32(c.MaxDepth)
}

func (c *SetViewport) decode(d *decoder) {
	c.X, c.Y, c.Width, c.Height = d.f32(), d.f32(), d.f32(), d.f32()
	c.MinDepth, c.MaxDepth = d.f32(), d.f32()
}

func (c SetScissor) encode(e *encoder) {
	e.u32(c.X)
	e.u32(c.Y)
	e.u32(c.Width)
	e.u32(c.Height)
}

func (c *SetScissor) decode(d *decoder) {
	c.X, c.Y, c.Width, c.Height = d.u32(), d.u32(), d.u32(), d.u32()
}

func (c Draw) encode(e *encoder) {
	e.u32(c.VertexCount)
	e.u32(c.InstanceCount)
	e.u32(c.FirstVertex)
	e.u32(c.FirstInstance)
}

func (c *Draw) decode(d *decoder) {
	c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance = d.u32(), d.u32(), d.u32(), d.u32()
}

func (c DrawIndexed) encode(e *encoder) {
	e.u32(c.IndexCount)
	e.u32(c.InstanceCount)
	e.u32(c.FirstIndex)
	e.i32(c.BaseVertex)
	e.u32(c.FirstInstance)
}

func (c *DrawIndexed) decode(d *decoder) {
	c.IndexCount, c.InstanceCount, c.FirstIndex = d.u32(), d.u32(), d.u32()
	c.BaseVertex = d.i32()
	c.FirstInstance = d.u32()
}

func (c Dispatch) encode(e *encoder) {
	e.u32(c.X)
	e.u32(c.Y)
	e.u32(c.Z)
}

func (c *Dispatch) decode(d *decoder) {
	c.X, c.Y, c.Z = d.u32(), d.u32(), d.u32()
}

func (c CopyBuffer) encode(e *encoder) {
	e.handle(c.Src)
	e.handle(c.Dst)
	e.u64(c.SrcOffset)
	e.u64(c.DstOffset)
	e.u64(c.Size)
}

func (c *CopyBuffer) decode(d *decoder) {
	c.Src, c.Dst = d.handle(), d.handle()
	c.SrcOffset, c.DstOffset, c.Size = d.u64(), d.u64(), d.u64()
}

func (c CopyBufferToTexture) encode(e *encoder) {
	e.handle(c.Src)
	e.u64(c.Offset)
	e.u32(c.BytesPerRow)
	e.u32(c.RowsPerImage)
	e.handle(c.Dst)
	e.u32(c.MipLevel)
	e.extent(c.Size)
}

func (c *CopyBufferToTexture) decode(d *decoder) {
	c.Src = d.handle()
	c.Offset = d.u64()
	c.BytesPerRow, c.RowsPerImage = d.u32(), d.u32()
	c.Dst = d.handle()
	c.MipLevel = d.u32()
	c.Size = d.extent()
}

func (c CopyTextureToBuffer) encode(e *encoder) {
	e.handle(c.Src)
	e.u32(c.MipLevel)
	e.extent(c.Size)
	e.handle(c.Dst)
	e.u64(c.Offset)
	e.u32(c.BytesPerRow)
	e.u32(c.RowsPerImage)
}

func (c *CopyTextureToBuffer) decode(d *decoder) {
	c.Src = d.handle()
	c.MipLevel = d.u32()
	c.Size = d.extent()
	c.Dst = d.handle()
	c.Offset = d.u64()
	c.BytesPerRow, c.RowsPerImage = d.u32(), d.u32()
}

func (c Transition) encode(e *encoder) {
	e.handle(c.Resource)
	e.state(c.Before)
	e.state(c.After)
}

func (c *Transition) decode(d *decoder) {
	c.Resource = d.handle()
	c.Before, c.After = d.state(), d.state()
}
