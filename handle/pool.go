// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package handle

import (
	"fmt"
	"sync"
)

// pageSize is the number of slots per storage page. Pages are never
// reallocated, so a pointer returned by Get stays valid until the slot is
// released.
const pageSize = 256

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Pool is a stable-index slot allocator with a free list.
//
// A growable pool (New) appends storage pages on demand. A fixed pool
// (NewFixed) has a hard capacity and treats exhaustion as a fatal contract
// violation; use TryAcquire to check without panicking.
//
// Slot acquire and release are serialized by the pool mutex. Callers reserve
// a slot first and populate it afterwards (Set or through Get), so slow
// native object creation never runs under the pool lock.
//
// Releasing a handle twice, or using a handle after its release, panics.
type Pool[T any] struct {
	mu    sync.RWMutex
	kind  Kind
	limit int // 0 means unbounded
	pages [][]slot[T]
	next  uint32 // first never-used index
	free  []uint32
	live  int
}

// NewPool creates a growable pool issuing handles of the given kind.
func NewPool[T any](kind Kind) *Pool[T] {
	return &Pool[T]{kind: kind}
}

// NewFixed creates a pool with a fixed capacity. Acquire panics when all
// slots are in use.
func NewFixed[T any](kind Kind, capacity int) *Pool[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("handle: fixed %s pool capacity must be positive, got %d", kind, capacity))
	}
	return &Pool[T]{kind: kind, limit: capacity}
}

// Kind returns the kind of handles issued by the pool.
func (p *Pool[T]) Kind() Kind { return p.kind }

// Acquire reserves a slot and returns its handle in O(1).
func (p *Pool[T]) Acquire() Handle {
	h, ok := p.TryAcquire()
	if !ok {
		panic(fmt.Sprintf("handle: %s pool exhausted (capacity %d)", p.kind, p.limit))
	}
	return h
}

// TryAcquire is like Acquire but reports false instead of panicking when a
// fixed pool is full. Growable pools always succeed.
func (p *Pool[T]) TryAcquire() (Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idx uint32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		if p.limit > 0 && int(p.next) >= p.limit {
			return Invalid, false
		}
		idx = p.next
		p.next++
		if int(idx/pageSize) >= len(p.pages) {
			p.pages = append(p.pages, make([]slot[T], pageSize))
		}
	}

	s := &p.pages[idx/pageSize][idx%pageSize]
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	p.live++
	return New(p.kind, s.gen, idx), true
}

// Release returns the slot to the free list in O(1) and invalidates every
// outstanding copy of h.
func (p *Pool[T]) Release(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.lookup(h, "release")
	var zero T
	s.value = zero
	s.live = false
	s.gen = nextGeneration(s.gen)
	p.free = append(p.free, h.Index())
	p.live--
}

// Get returns a pointer to the slot value for h. The pointer stays valid
// until h is released.
func (p *Pool[T]) Get(h Handle) *T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &p.lookup(h, "get").value
}

// Set stores v in the slot for h.
func (p *Pool[T]) Set(h Handle, v T) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.lookup(h, "set").value = v
}

// Update calls fn with the slot value for h while holding the pool lock
// exclusively, so fn can test and set fields atomically.
func (p *Pool[T]) Update(h Handle, fn func(v *T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.lookup(h, "update").value)
}

// Contains reports whether h refers to a live slot of this pool.
func (p *Pool[T]) Contains(h Handle) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if h.Kind() != p.kind || h.Index() >= p.next {
		return false
	}
	s := &p.pages[h.Index()/pageSize][h.Index()%pageSize]
	return s.live && s.gen == h.Generation()
}

// Len returns the number of live slots.
func (p *Pool[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.live
}

// Cap returns the fixed capacity, or 0 for a growable pool.
func (p *Pool[T]) Cap() int { return p.limit }

// Each calls fn for every live slot in index order. fn must not acquire or
// release slots of the same pool.
func (p *Pool[T]) Each(fn func(Handle, *T)) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := uint32(0); i < p.next; i++ {
		s := &p.pages[i/pageSize][i%pageSize]
		if s.live {
			fn(New(p.kind, s.gen, i), &s.value)
		}
	}
}

// lookup validates h against the pool. Caller must hold p.mu.
func (p *Pool[T]) lookup(h Handle, op string) *slot[T] {
	if h.Kind() != p.kind {
		panic(fmt.Sprintf("handle: %s of %v in %s pool", op, h, p.kind))
	}
	idx := h.Index()
	if idx >= p.next {
		panic(fmt.Sprintf("handle: %s of %v out of range (%d slots)", op, h, p.next))
	}
	s := &p.pages[idx/pageSize][idx%pageSize]
	if !s.live || s.gen != h.Generation() {
		panic(fmt.Sprintf("handle: %s of released or stale %v (slot generation %d)", op, h, s.gen))
	}
	return s
}
