// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package deferred postpones destruction of GPU objects until the GPU has
// provably stopped using them.
//
// A Queue keeps two generations of pending objects. Freed objects enter
// the new generation. Once the GPU epoch is at least two past the epoch at
// which the old generation was sealed, the old generation is destroyed and
// the new one takes its place:
//
//	q := deferred.New(func(h handle.Handle) { dev.DestroyBuffer(h) })
//	q.Free(h, tracker.GPU(), tracker.CPU())
//	...
//	q.FreeAllPending(tracker.GPU(), tracker.CPU()) // once per submit
//
// The two-epoch margin tolerates backends whose completion signaling lags
// the fence value by one submission.
package deferred

import "sync"

// Margin is the number of GPU epochs that must pass after a generation is
// sealed before it is destroyed.
const Margin = 2

// Queue is a double-buffered deferred destruction queue for one object kind.
//
// Queue is safe for concurrent use. The destroy callback runs without the
// queue lock held.
type Queue[T any] struct {
	mu       sync.Mutex
	destroy  func(T)
	old      []T
	new      []T
	oldEpoch uint64
}

// New creates a queue that passes objects to destroy once they are safe.
func New[T any](destroy func(T)) *Queue[T] {
	return &Queue[T]{destroy: destroy}
}

// Free schedules v for destruction. gpu and cpu are the current completed
// and next-to-signal epochs.
func (q *Queue[T]) Free(v T, gpu, cpu uint64) {
	q.FreeAllPending(gpu, cpu)

	q.mu.Lock()
	q.new = append(q.new, v)
	q.mu.Unlock()
}

// FreeAllPending destroys the old generation if the GPU has advanced far
// enough, then rotates new into old. It returns the number of destroyed
// objects and may be called any number of times.
func (q *Queue[T]) FreeAllPending(gpu, cpu uint64) int {
	q.mu.Lock()
	if gpu < q.oldEpoch+Margin {
		q.mu.Unlock()
		return 0
	}
	victims := q.old
	q.old, q.new = q.new, victims[:0:0]
	q.oldEpoch = cpu
	q.mu.Unlock()

	for _, v := range victims {
		q.destroy(v)
	}
	return len(victims)
}

// Drain destroys every pending object regardless of epoch. Call it only
// after the GPU is idle.
func (q *Queue[T]) Drain() int {
	q.mu.Lock()
	victims := append(q.old, q.new...)
	q.old, q.new = nil, nil
	q.mu.Unlock()

	for _, v := range victims {
		q.destroy(v)
	}
	return len(victims)
}

// Len returns the number of objects awaiting destruction.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.old) + len(q.new)
}

// OldEpoch returns the CPU epoch at which the current old generation was
// sealed.
func (q *Queue[T]) OldEpoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.oldEpoch
}
