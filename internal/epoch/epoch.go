// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package epoch tracks submitted (CPU) and completed (GPU) work as a pair of
// monotonic counters backed by a timeline fence.
//
// CPU is the value the next submission will signal. It starts at 1 and is
// incremented once per successful submission. GPU is the highest value the
// fence has been observed to reach; it starts at 0 and is refreshed only by
// Refresh, WaitFor and Flush. GPU never exceeds the last signaled value.
package epoch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrFenceRegressed is returned when a fence reports a completed value lower
// than one observed earlier.
var ErrFenceRegressed = errors.New("epoch: fence completed value went backwards")

// Fence is a monotonically increasing GPU timeline.
type Fence interface {
	// Completed returns the highest value the GPU has signaled. It must not
	// block.
	Completed() uint64

	// Wait blocks until the fence reaches value or ctx is done.
	Wait(ctx context.Context, value uint64) error
}

// Tracker owns the CPU and GPU epoch counters.
//
// SignalAndAdvance must be serialized by the caller (the submission lock).
// GPU, CPU and Refresh are safe for concurrent use.
type Tracker struct {
	fence Fence

	mu  sync.Mutex // serializes fence queries
	cpu atomic.Uint64
	gpu atomic.Uint64
}

// NewTracker creates a tracker over fence with CPU = 1 and GPU = 0.
func NewTracker(fence Fence) *Tracker {
	t := &Tracker{fence: fence}
	t.cpu.Store(1)
	return t
}

// CPU returns the value the next submission will signal.
func (t *Tracker) CPU() uint64 { return t.cpu.Load() }

// LastSignaled returns the value signaled by the most recent submission,
// or 0 before the first one.
func (t *Tracker) LastSignaled() uint64 { return t.cpu.Load() - 1 }

// GPU returns the cached completed value without querying the fence.
func (t *Tracker) GPU() uint64 { return t.gpu.Load() }

// Refresh queries the fence and updates the cached GPU value.
func (t *Tracker) Refresh() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observe(t.fence.Completed())
}

// observe folds a fence reading into the cached value. Caller holds t.mu.
func (t *Tracker) observe(v uint64) (uint64, error) {
	prev := t.gpu.Load()
	if v < prev {
		return prev, fmt.Errorf("%w: %d < %d", ErrFenceRegressed, v, prev)
	}
	if limit := t.LastSignaled(); v > limit {
		// GPU never passes the last signaled value.
		slogger().Debug("epoch: clamping fence value", "fence", v, "signaled", limit)
		v = limit
	}
	t.gpu.Store(v)
	return v, nil
}

// SignalAndAdvance hands the current CPU value to signal and, when signal
// succeeds, increments CPU. On failure CPU is unchanged. Returns the value
// that was signaled.
func (t *Tracker) SignalAndAdvance(signal func(value uint64) error) (uint64, error) {
	v := t.cpu.Load()
	if err := signal(v); err != nil {
		return 0, err
	}
	t.cpu.Store(v + 1)
	return v, nil
}

// WaitFor blocks until the GPU has completed value, then refreshes.
// Values that were never signaled are clamped to the last signaled one.
func (t *Tracker) WaitFor(ctx context.Context, value uint64) error {
	if limit := t.LastSignaled(); value > limit {
		value = limit
	}
	if value == 0 || t.GPU() >= value {
		return nil
	}
	if err := t.fence.Wait(ctx, value); err != nil {
		return fmt.Errorf("epoch: wait for %d: %w", value, err)
	}
	_, err := t.Refresh()
	return err
}

// Flush blocks until all signaled work has completed.
func (t *Tracker) Flush(ctx context.Context) error {
	return t.WaitFor(ctx, t.LastSignaled())
}

// Completed reports whether work signaled with value is known to be done,
// using the cached GPU value.
func (t *Tracker) Completed(value uint64) bool { return t.GPU() >= value }
