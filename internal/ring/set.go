// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ring

// Set holds one independent Linear ring per recording slot, so recording
// goroutines never share a ring.
type Set struct {
	rings []*Linear
}

// NewSet creates slots rings of capacity units with frames frame slots each.
func NewSet(slots int, capacity uint64, frames int) *Set {
	s := &Set{rings: make([]*Linear, slots)}
	for i := range s.rings {
		s.rings[i] = NewLinear(capacity, frames)
	}
	return s
}

// Ring returns the ring of slot i.
func (s *Set) Ring(i int) *Linear { return s.rings[i] }

// Len returns the number of rings.
func (s *Set) Len() int { return len(s.rings) }

// Used returns the live units summed over all rings. The caller must make
// sure no ring is being allocated from.
func (s *Set) Used() uint64 {
	var n uint64
	for _, r := range s.rings {
		n += r.Used()
	}
	return n
}

// Reset resets every ring.
func (s *Set) Reset() {
	for _, r := range s.rings {
		r.Reset()
	}
}
