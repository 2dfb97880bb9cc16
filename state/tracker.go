// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import "github.com/gogpu/gpurt/handle"

// Entry is the state of one resource within a recording.
type Entry struct {
	Handle handle.Handle

	// Required is the state the recording assumes the resource is in when
	// the recording starts executing.
	Required State

	// Current is the state the recording leaves the resource in.
	Current State
}

// Tracker records the resource states assumed and produced by one command
// recording. A Tracker is not safe for concurrent use.
type Tracker struct {
	index   map[handle.Handle]int
	entries []Entry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{index: make(map[handle.Handle]int)}
}

// Transition moves h to target within this recording.
//
// The first transition of h returns known=false: the state before it is the
// resource's state at submission time, which is resolved by reconciliation.
// Later transitions return the state h was left in by the previous one.
// A returned before equal to target means no barrier is needed.
func (t *Tracker) Transition(h handle.Handle, target State) (before State, known bool) {
	if i, ok := t.index[h]; ok {
		e := &t.entries[i]
		before = e.Current
		e.Current = target
		return before, true
	}
	t.index[h] = len(t.entries)
	t.entries = append(t.entries, Entry{Handle: h, Required: target, Current: target})
	return Undefined, false
}

// Current returns the state h was left in, if h was touched.
func (t *Tracker) Current(h handle.Handle) (State, bool) {
	i, ok := t.index[h]
	if !ok {
		return Undefined, false
	}
	return t.entries[i].Current, true
}

// Entries returns the touched resources in first-touch order. The slice is
// owned by the tracker and valid until the next Transition or Reset.
func (t *Tracker) Entries() []Entry { return t.entries }

// Len returns the number of touched resources.
func (t *Tracker) Len() int { return len(t.entries) }

// Reset clears the tracker for reuse.
func (t *Tracker) Reset() {
	clear(t.index)
	t.entries = t.entries[:0]
}
