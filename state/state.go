// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package state tracks GPU resource states and derives the minimal set of
// barriers needed between them.
//
// Tracking is split in two:
//
//   - a Tracker per recording remembers, for each resource it touched, the
//     state it assumed on first use and the state it left the resource in.
//     It is owned by one goroutine and needs no lock.
//   - a single Master holds the authoritative state of every resource as of
//     the last submission. It is only read and written while submitting.
//
// At submission each Tracker is reconciled against the Master: a barrier is
// emitted for every resource whose assumed initial state differs from the
// Master's, and the Master then takes the recording's final states.
package state

import (
	"strings"

	"github.com/gogpu/gpurt/handle"
)

// State is a bitmask of the ways a resource is accessed by the GPU.
type State uint32

// Resource states. Undefined means the contents are not needed.
const (
	Undefined    State = 0
	CopySrc      State = 1 << 0
	CopyDst      State = 1 << 1
	Vertex       State = 1 << 2
	Index        State = 1 << 3
	Uniform      State = 1 << 4
	ShaderRead   State = 1 << 5
	Storage      State = 1 << 6
	RenderTarget State = 1 << 7
	DepthWrite   State = 1 << 8
	DepthRead    State = 1 << 9
	Present      State = 1 << 10
	Indirect     State = 1 << 11
)

var stateNames = []struct {
	s    State
	name string
}{
	{CopySrc, "copy-src"},
	{CopyDst, "copy-dst"},
	{Vertex, "vertex"},
	{Index, "index"},
	{Uniform, "uniform"},
	{ShaderRead, "shader-read"},
	{Storage, "storage"},
	{RenderTarget, "render-target"},
	{DepthWrite, "depth-write"},
	{DepthRead, "depth-read"},
	{Present, "present"},
	{Indirect, "indirect"},
}

// writeStates are the states that allow the GPU to modify a resource.
const writeStates = CopyDst | Storage | RenderTarget | DepthWrite

// Has reports whether all bits of o are set in s.
func (s State) Has(o State) bool { return s&o == o }

// IsWrite reports whether s includes a writable access.
func (s State) IsWrite() bool { return s&writeStates != 0 }

// String returns the states joined by '|'.
func (s State) String() string {
	if s == Undefined {
		return "undefined"
	}
	var parts []string
	for _, n := range stateNames {
		if s&n.s != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Barrier is a transition of one resource between two states.
type Barrier struct {
	Handle handle.Handle
	Before State
	After  State
}
