// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdstream

// Visitor receives one call per command. Record pointers are only valid for
// the duration of the call.
type Visitor interface {
	BeginRenderPass(*BeginRenderPass)
	EndRenderPass(*EndRenderPass)
	BeginComputePass(*BeginComputePass)
	EndComputePass(*EndComputePass)
	SetGraphicsPipeline(*SetGraphicsPipeline)
	SetComputePipeline(*SetComputePipeline)
	SetShaderView(*SetShaderView)
	SetVertexBuffer(*SetVertexBuffer)
	SetIndexBuffer(*SetIndexBuffer)
	SetViewport(*SetViewport)
	SetScissor(*SetScissor)
	Draw(*Draw)
	DrawIndexed(*DrawIndexed)
	Dispatch(*Dispatch)
	CopyBuffer(*CopyBuffer)
	CopyBufferToTexture(*CopyBufferToTexture)
	CopyTextureToBuffer(*CopyTextureToBuffer)
	Transition(*Transition)
}

// NopVisitor ignores every command. Embed it to implement only the methods
// a consumer cares about.
type NopVisitor struct{}

func (NopVisitor) BeginRenderPass(*BeginRenderPass)         {}
func (NopVisitor) EndRenderPass(*EndRenderPass)             {}
func (NopVisitor) BeginComputePass(*BeginComputePass)       {}
func (NopVisitor) EndComputePass(*EndComputePass)           {}
func (NopVisitor) SetGraphicsPipeline(*SetGraphicsPipeline) {}
func (NopVisitor) SetComputePipeline(*SetComputePipeline)   {}
func (NopVisitor) SetShaderView(*SetShaderView)             {}
func (NopVisitor) SetVertexBuffer(*SetVertexBuffer)         {}
func (NopVisitor) SetIndexBuffer(*SetIndexBuffer)           {}
func (NopVisitor) SetViewport(*SetViewport)                 {}
func (NopVisitor) SetScissor(*SetScissor)                   {}
func (NopVisitor) Draw(*Draw)                               {}
func (NopVisitor) DrawIndexed(*DrawIndexed)                 {}
func (NopVisitor) Dispatch(*Dispatch)                       {}
func (NopVisitor) CopyBuffer(*CopyBuffer)                   {}
func (NopVisitor) CopyBufferToTexture(*CopyBufferToTexture) {}
func (NopVisitor) CopyTextureToBuffer(*CopyTextureToBuffer) {}
func (NopVisitor) Transition(*Transition)                   {}

// Visit calls the v method matching c.
func Visit(c Command, v Visitor) {
	switch c := c.(type) {
	case BeginRenderPass:
		v.BeginRenderPass(&c)
	case EndRenderPass:
		v.EndRenderPass(&c)
	case BeginComputePass:
		v.BeginComputePass(&c)
	case EndComputePass:
		v.EndComputePass(&c)
	case SetGraphicsPipeline:
		v.SetGraphicsPipeline(&c)
	case SetComputePipeline:
		v.SetComputePipeline(&c)
	case SetShaderView:
		v.SetShaderView(&c)
	case SetVertexBuffer:
		v.SetVertexBuffer(&c)
	case SetIndexBuffer:
		v.SetIndexBuffer(&c)
	case SetViewport:
		v.SetViewport(&c)
	case SetScissor:
		v.SetScissor(&c)
	case Draw:
		v.Draw(&c)
	case DrawIndexed:
		v.DrawIndexed(&c)
	case Dispatch:
		v.Dispatch(&c)
	case CopyBuffer:
		v.CopyBuffer(&c)
	case CopyBufferToTexture:
		v.CopyBufferToTexture(&c)
	case CopyTextureToBuffer:
		v.CopyTextureToBuffer(&c)
	case Transition:
		v.Transition(&c)
	}
}

// Walk parses the rest of p and hands every record to the matching v method.
// It switches on the tag directly instead of building Command values.
func Walk(p *Parser, v Visitor) error {
	for p.err == nil && p.off < len(p.data) {
		t, payload, err := p.record()
		if err != nil {
			p.err = err
			return err
		}
		d := decoder{b: payload}
		switch t {
		case TagBeginRenderPass:
			var c BeginRenderPass
			c.decode(&d)
			v.BeginRenderPass(&c)
		case TagEndRenderPass:
			v.EndRenderPass(&EndRenderPass{})
		case TagBeginComputePass:
			v.BeginComputePass(&BeginComputePass{})
		case TagEndComputePass:
			v.EndComputePass(&EndComputePass{})
		case TagSetGraphicsPipeline:
			c := SetGraphicsPipeline{PSO: d.handle()}
			v.SetGraphicsPipeline(&c)
		case TagSetComputePipeline:
			c := SetComputePipeline{PSO: d.handle()}
			v.SetComputePipeline(&c)
		case TagSetShaderView:
			var c SetShaderView
			c.decode(&d)
			v.SetShaderView(&c)
		case TagSetVertexBuffer:
			var c SetVertexBuffer
			c.decode(&d)
			v.SetVertexBuffer(&c)
		case TagSetIndexBuffer:
			var c SetIndexBuffer
			c.decode(&d)
			v.SetIndexBuffer(&c)
		case TagSetViewport:
			var c SetViewport
			c.decode(&d)
			v.SetViewport(&c)
		case TagSetScissor:
			var c SetScissor
			c.decode(&d)
			v.SetScissor(&c)
		case TagDraw:
			var c Draw
			c.decode(&d)
			v.Draw(&c)
		case TagDrawIndexed:
			var c DrawIndexed
			c.decode(&d)
			v.DrawIndexed(&c)
		case TagDispatch:
			var c Dispatch
			c.decode(&d)
			v.Dispatch(&c)
		case TagCopyBuffer:
			var c CopyBuffer
			c.decode(&d)
			v.CopyBuffer(&c)
		case TagCopyBufferToTexture:
			var c CopyBufferToTexture
			c.decode(&d)
			v.CopyBufferToTexture(&c)
		case TagCopyTextureToBuffer:
			var c CopyTextureToBuffer
			c.decode(&d)
			v.CopyTextureToBuffer(&c)
		case TagTransition:
			var c Transition
			c.decode(&d)
			v.Transition(&c)
		}
	}
	return p.err
}
