// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package handle provides opaque handles and the slot pools that back every
// pooled GPU object in gpurt.
//
// A Handle packs three fields into a uint64:
//
//	bits  0..31  slot index
//	bits 32..55  generation (24 bits, never zero for a live handle)
//	bits 56..63  object kind
//
// The generation is bumped every time a slot is released, so a handle kept
// after its release no longer matches the slot and is rejected on lookup.
// The zero Handle is never issued and is used as "no object".
package handle

import "fmt"

// Kind identifies the object type a handle refers to.
type Kind uint8

// Object kinds.
const (
	KindInvalid Kind = iota
	KindBuffer
	KindTexture
	KindRenderTarget
	KindGraphicsPSO
	KindComputePSO
	KindGraphicsShaderView
	KindComputeShaderView
	KindSampler
	KindCommandList
)

var kindNames = [...]string{
	KindInvalid:            "invalid",
	KindBuffer:             "buffer",
	KindTexture:            "texture",
	KindRenderTarget:       "render-target",
	KindGraphicsPSO:        "graphics-pso",
	KindComputePSO:         "compute-pso",
	KindGraphicsShaderView: "graphics-shader-view",
	KindComputeShaderView:  "compute-shader-view",
	KindSampler:            "sampler",
	KindCommandList:        "command-list",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Handle is an opaque reference to a pooled object.
type Handle uint64

// Invalid is the zero handle. No pool ever returns it.
const Invalid Handle = 0

const (
	indexBits = 32
	genBits   = 24
	genMask   = 1<<genBits - 1
	genShift  = indexBits
	kindShift = indexBits + genBits
)

// New packs a handle from its parts. The generation is truncated to 24 bits.
func New(kind Kind, generation, index uint32) Handle {
	return Handle(uint64(kind)<<kindShift | uint64(generation&genMask)<<genShift | uint64(index))
}

// Index returns the slot index.
func (h Handle) Index() uint32 { return uint32(h) } //nolint:gosec // G115: low 32 bits by construction

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint32 { return uint32(h>>genShift) & genMask } //nolint:gosec // G115: masked to 24 bits

// Kind returns the object kind.
func (h Handle) Kind() Kind { return Kind(h >> kindShift) }

// IsValid reports whether h is not the zero handle.
func (h Handle) IsValid() bool { return h != Invalid }

// String formats the handle as kind#index.generation.
func (h Handle) String() string {
	if h == Invalid {
		return "handle(invalid)"
	}
	return fmt.Sprintf("%s#%d.%d", h.Kind(), h.Index(), h.Generation())
}

// nextGeneration advances a slot generation, skipping zero on wraparound.
func nextGeneration(g uint32) uint32 {
	g = (g + 1) & genMask
	if g == 0 {
		g = 1
	}
	return g
}
