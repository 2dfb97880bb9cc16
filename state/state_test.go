// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import (
	"testing"

	"github.com/gogpu/gpurt/handle"
)

var (
	texA = handle.New(handle.KindTexture, 1, 0)
	texB = handle.New(handle.KindTexture, 1, 1)
	bufA = handle.New(handle.KindBuffer, 1, 0)
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Undefined, "undefined"},
		{ShaderRead, "shader-read"},
		{CopySrc | ShaderRead, "copy-src|shader-read"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
	if !(CopyDst | Vertex).IsWrite() {
		t.Error("CopyDst|Vertex should be a write state")
	}
	if ShaderRead.IsWrite() {
		t.Error("ShaderRead should not be a write state")
	}
}

func TestTrackerFirstTransitionUnknown(t *testing.T) {
	tr := NewTracker()

	if _, known := tr.Transition(texA, RenderTarget); known {
		t.Fatal("first transition reported a known before state")
	}
	before, known := tr.Transition(texA, ShaderRead)
	if !known || before != RenderTarget {
		t.Fatalf("second transition = (%v, %v), want (render-target, true)", before, known)
	}
	if cur, ok := tr.Current(texA); !ok || cur != ShaderRead {
		t.Errorf("Current() = (%v, %v), want (shader-read, true)", cur, ok)
	}

	entries := tr.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d, want 1", len(entries))
	}
	if entries[0].Required != RenderTarget || entries[0].Current != ShaderRead {
		t.Errorf("entry = %+v, want required render-target, current shader-read", entries[0])
	}
}

func TestTrackerKeepsFirstTouchOrder(t *testing.T) {
	tr := NewTracker()
	tr.Transition(texB, ShaderRead)
	tr.Transition(bufA, Vertex)
	tr.Transition(texA, CopyDst)
	tr.Transition(texB, RenderTarget)

	want := []handle.Handle{texB, bufA, texA}
	for i, e := range tr.Entries() {
		if e.Handle != want[i] {
			t.Errorf("Entries()[%d] = %v, want %v", i, e.Handle, want[i])
		}
	}

	tr.Reset()
	if tr.Len() != 0 {
		t.Errorf("Len() = %d after Reset, want 0", tr.Len())
	}
	if _, ok := tr.Current(texB); ok {
		t.Error("Current() found an entry after Reset")
	}
}

// Transitioning to the same state twice produces one barrier from the
// implicit pre-state and nothing else.
func TestRedundantTransitionElided(t *testing.T) {
	m := NewMaster()
	tr := NewTracker()

	inStream := 0
	for i := 0; i < 2; i++ {
		if before, known := tr.Transition(texA, ShaderRead); known && before != ShaderRead {
			inStream++
		}
	}
	if inStream != 0 {
		t.Errorf("in-stream barriers = %d, want 0", inStream)
	}

	barriers := m.Reconcile(nil, tr)
	if len(barriers) != 1 {
		t.Fatalf("reconcile barriers = %d, want 1", len(barriers))
	}
	if b := barriers[0]; b.Before != Undefined || b.After != ShaderRead {
		t.Errorf("barrier = %+v, want undefined -> shader-read", b)
	}

	// A later recording that assumes the state already reached emits nothing.
	tr2 := NewTracker()
	tr2.Transition(texA, ShaderRead)
	if got := m.Reconcile(nil, tr2); len(got) != 0 {
		t.Errorf("second reconcile barriers = %v, want none", got)
	}
}

func TestReconcileUpdatesMasterToCurrent(t *testing.T) {
	m := NewMaster()
	m.Set(texA, ShaderRead)

	tr := NewTracker()
	tr.Transition(texA, RenderTarget)
	tr.Transition(texA, CopySrc)

	barriers := m.Reconcile(nil, tr)
	if len(barriers) != 1 || barriers[0].Before != ShaderRead || barriers[0].After != RenderTarget {
		t.Fatalf("barriers = %+v, want shader-read -> render-target", barriers)
	}
	if s, _ := m.Get(texA); s != CopySrc {
		t.Errorf("master state = %v, want copy-src", s)
	}
}

// Lists submitted together see each other's effects in submission order.
func TestBatchSequentialLists(t *testing.T) {
	m := NewMaster()

	first := NewTracker()
	first.Transition(texA, RenderTarget)

	second := NewTracker()
	second.Transition(texA, ShaderRead)

	b := m.Begin()
	got := b.Reconcile(nil, first)
	got = b.Reconcile(got, second)

	want := []Barrier{
		{Handle: texA, Before: Undefined, After: RenderTarget},
		{Handle: texA, Before: RenderTarget, After: ShaderRead},
	}
	if len(got) != len(want) {
		t.Fatalf("barriers = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("barrier[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, ok := m.Get(texA); ok {
		t.Error("master updated before Commit")
	}
	b.Commit()
	if s, _ := m.Get(texA); s != ShaderRead {
		t.Errorf("master state = %v after Commit, want shader-read", s)
	}
}

func TestMasterForget(t *testing.T) {
	m := NewMaster()
	m.Set(bufA, CopyDst)
	m.Forget(bufA)
	if _, ok := m.Get(bufA); ok {
		t.Error("Get() found a forgotten handle")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}
