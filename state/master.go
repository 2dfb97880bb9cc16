// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import "github.com/gogpu/gpurt/handle"

// Master is the authoritative last-known state of every resource.
//
// Master has no lock of its own: it must only be used while holding the
// submission lock, which also serializes the native submissions whose
// ordering the recorded states describe.
type Master struct {
	states map[handle.Handle]State
}

// NewMaster returns an empty master table. Unknown resources are Undefined.
func NewMaster() *Master {
	return &Master{states: make(map[handle.Handle]State)}
}

// Get returns the last known state of h.
func (m *Master) Get(h handle.Handle) (State, bool) {
	s, ok := m.states[h]
	return s, ok
}

// Set records s as the state of h.
func (m *Master) Set(h handle.Handle, s State) { m.states[h] = s }

// Forget drops h, typically when the resource is destroyed.
func (m *Master) Forget(h handle.Handle) { delete(m.states, h) }

// Len returns the number of tracked resources.
func (m *Master) Len() int { return len(m.states) }

// Reconcile appends to dst the barriers needed before t's commands run and
// updates the master to t's final states.
func (m *Master) Reconcile(dst []Barrier, t *Tracker) []Barrier {
	b := m.Begin()
	dst = b.Reconcile(dst, t)
	b.Commit()
	return dst
}

// Batch reconciles several recordings that are submitted together. Updates
// are staged until Commit so that a failed submission leaves the master
// untouched; recordings are applied in the order they are reconciled, so
// each sees the states left by the previous ones.
type Batch struct {
	m       *Master
	overlay map[handle.Handle]State
}

// Begin starts a batch over m.
func (m *Master) Begin() *Batch {
	return &Batch{m: m, overlay: make(map[handle.Handle]State)}
}

func (b *Batch) get(h handle.Handle) State {
	if s, ok := b.overlay[h]; ok {
		return s
	}
	return b.m.states[h]
}

// Reconcile appends to dst one barrier for every resource whose required
// state differs from its known state, then stages t's final states.
func (b *Batch) Reconcile(dst []Barrier, t *Tracker) []Barrier {
	for _, e := range t.entries {
		if before := b.get(e.Handle); before != e.Required {
			dst = append(dst, Barrier{Handle: e.Handle, Before: before, After: e.Required})
		}
		b.overlay[e.Handle] = e.Current
	}
	return dst
}

// Commit applies the staged states to the master.
func (b *Batch) Commit() {
	for h, s := range b.overlay {
		b.m.states[h] = s
	}
	clear(b.overlay)
}
