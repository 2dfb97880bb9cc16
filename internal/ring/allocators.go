// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ring

import (
	"context"
	"errors"
	"sync"
)

// ErrAllBusy is returned by Allocators.Acquire when every slot is checked
// out and none can become free by waiting on the GPU.
var ErrAllBusy = errors.New("ring: all allocator slots are checked out")

// WaitFunc blocks until the GPU epoch reaches value and returns the new
// completed epoch.
type WaitFunc func(ctx context.Context, value uint64) (uint64, error)

// Allocators is a ring of N native command allocators (or any object that
// may only be reset once the GPU is done with it). Each slot remembers the
// epoch of its last submission.
//
// Allocators is safe for concurrent use.
type Allocators[T any] struct {
	mu    sync.Mutex
	slots []allocSlot[T]
	next  int
}

type allocSlot[T any] struct {
	value T
	epoch uint64
	busy  bool
}

// NewAllocators creates a ring over values.
func NewAllocators[T any](values []T) *Allocators[T] {
	a := &Allocators[T]{slots: make([]allocSlot[T], len(values))}
	for i, v := range values {
		a.slots[i].value = v
	}
	return a
}

// TryAcquire checks out the next slot whose last submission has completed
// at gpu. It never blocks.
func (a *Allocators[T]) TryAcquire(gpu uint64) (slot int, v T, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.slots {
		idx := (a.next + i) % len(a.slots)
		s := &a.slots[idx]
		if s.busy || s.epoch > gpu {
			continue
		}
		s.busy = true
		a.next = (idx + 1) % len(a.slots)
		return idx, s.value, true
	}
	var zero T
	return -1, zero, false
}

// Acquire is TryAcquire falling back to waiting for the oldest pending
// slot through wait.
func (a *Allocators[T]) Acquire(ctx context.Context, gpu uint64, wait WaitFunc) (int, T, error) {
	for {
		if slot, v, ok := a.TryAcquire(gpu); ok {
			return slot, v, nil
		}
		target, ok := a.oldestPending()
		if !ok {
			var zero T
			return -1, zero, ErrAllBusy
		}
		var err error
		if gpu, err = wait(ctx, target); err != nil {
			var zero T
			return -1, zero, err
		}
	}
}

func (a *Allocators[T]) oldestPending() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var best uint64
	found := false
	for i := range a.slots {
		s := &a.slots[i]
		if s.busy {
			continue
		}
		if !found || s.epoch < best {
			best, found = s.epoch, true
		}
	}
	return best, found
}

// Retire returns a checked-out slot after its commands were submitted under
// epoch.
func (a *Allocators[T]) Retire(slot int, epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots[slot].busy = false
	a.slots[slot].epoch = epoch
}

// Release returns a checked-out slot whose commands were never submitted.
func (a *Allocators[T]) Release(slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots[slot].busy = false
}

// Len returns the number of slots.
func (a *Allocators[T]) Len() int { return len(a.slots) }

// Each calls fn for every slot value, for teardown.
func (a *Allocators[T]) Each(fn func(T)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.slots {
		fn(a.slots[i].value)
	}
}
