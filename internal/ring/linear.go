// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ring

import (
	"fmt"
	"math/bits"
)

// Linear is a circular bump allocator reclaimed wholesale at frame
// boundaries.
//
// Allocations of the current frame are bumped from the head. OnBeginFrame
// moves to the next of N frame slots and releases everything the oldest
// slot allocated in one step. An allocation never straddles the end of the
// buffer: it is padded to the start instead, or fails when the padding does
// not fit.
//
// Linear is not safe for concurrent use. Each recording slot owns its own
// ring, see Set.
type Linear struct {
	capacity uint64
	head     uint64 // absolute position, grows monotonically
	tail     uint64 // absolute position of the oldest live byte

	frame  uint64
	ends   []uint64 // head at the end of each frame slot
	epochs []uint64 // submission epoch of each frame slot, 0 if none
}

// NewLinear creates a ring of capacity units split across frames slots.
func NewLinear(capacity uint64, frames int) *Linear {
	if capacity == 0 || frames <= 0 {
		panic(fmt.Sprintf("ring: invalid linear ring capacity=%d frames=%d", capacity, frames))
	}
	return &Linear{
		capacity: capacity,
		ends:     make([]uint64, frames),
		epochs:   make([]uint64, frames),
	}
}

// Alloc reserves size units aligned to align (a power of two, 0 meaning 1)
// and returns the offset. It returns false when the ring cannot hold the
// allocation; the ring is left unchanged in that case.
func (r *Linear) Alloc(size, align uint64) (uint64, bool) {
	if align == 0 {
		align = 1
	}
	if bits.OnesCount64(align) != 1 {
		panic(fmt.Sprintf("ring: alignment %d is not a power of two", align))
	}
	if size == 0 || size > r.capacity {
		return 0, false
	}

	off := r.head % r.capacity
	start := (off + align - 1) &^ (align - 1)
	if start+size > r.capacity {
		// Wrap: skip the rest of the buffer, offset 0 is always aligned.
		start = r.capacity
	}
	end := r.head + (start - off) + size
	if end-r.tail > r.capacity {
		return 0, false
	}
	r.head = end
	return start % r.capacity, true
}

// OnBeginFrame advances to the next frame slot and releases the span of the
// slot allocated N frames ago. The caller is responsible for that frame
// being complete on the GPU; see TryBeginFrame.
func (r *Linear) OnBeginFrame() {
	n := uint64(len(r.ends))
	r.ends[r.frame%n] = r.head
	r.frame++
	if r.frame >= n {
		r.tail = r.ends[r.frame%n]
	}
	r.epochs[r.frame%n] = 0
}

// TryBeginFrame calls OnBeginFrame if the frame it would release has
// completed on the GPU. It reports whether the frame was started.
func (r *Linear) TryBeginFrame(gpu uint64) bool {
	if r.PendingEpoch() > gpu {
		return false
	}
	r.OnBeginFrame()
	return true
}

// PendingEpoch returns the submission epoch the next OnBeginFrame would
// release, or 0 when it releases nothing that was submitted.
func (r *Linear) PendingEpoch() uint64 {
	n := uint64(len(r.ends))
	if r.frame+1 < n {
		return 0
	}
	return r.epochs[(r.frame+1)%n]
}

// MarkSubmitted records the epoch under which the current frame's
// allocations were submitted.
func (r *Linear) MarkSubmitted(epoch uint64) {
	r.epochs[r.frame%uint64(len(r.epochs))] = epoch
}

// Used returns the number of live units, padding included.
func (r *Linear) Used() uint64 { return r.head - r.tail }

// Cap returns the ring capacity.
func (r *Linear) Cap() uint64 { return r.capacity }

// Frames returns the number of frame slots.
func (r *Linear) Frames() int { return len(r.ends) }

// Reset releases every allocation. Only call it when the GPU is idle.
func (r *Linear) Reset() {
	r.head, r.tail, r.frame = 0, 0, 0
	clear(r.ends)
	clear(r.epochs)
}
