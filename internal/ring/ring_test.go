// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ring

import (
	"context"
	"errors"
	"testing"
)

func TestLinearWrapFailsWithoutRelease(t *testing.T) {
	r := NewLinear(1024, 1)

	off, ok := r.Alloc(600, 1)
	if !ok || off != 0 {
		t.Fatalf("first Alloc = %d, %v; want 0, true", off, ok)
	}
	if _, ok := r.Alloc(600, 1); ok {
		t.Fatal("second Alloc(600) succeeded while the first 600 are live")
	}
	if r.Used() != 600 {
		t.Errorf("Used() = %d after failed alloc, want 600", r.Used())
	}
}

func TestLinearWrapSucceedsAfterRelease(t *testing.T) {
	r := NewLinear(1024, 1)

	if _, ok := r.Alloc(600, 1); !ok {
		t.Fatal("first Alloc failed")
	}
	r.OnBeginFrame()

	off, ok := r.Alloc(600, 1)
	if !ok {
		t.Fatal("Alloc after release failed")
	}
	if off != 0 {
		t.Errorf("offset = %d, want 0 (padded past the end)", off)
	}
	if r.Used() != 1024 {
		t.Errorf("Used() = %d, want 1024 (600 + 424 padding)", r.Used())
	}
}

func TestLinearAlignment(t *testing.T) {
	r := NewLinear(256, 2)

	tests := []struct {
		size, align, want uint64
	}{
		{size: 3, align: 1, want: 0},
		{size: 16, align: 16, want: 16},
		{size: 1, align: 0, want: 32},
		{size: 8, align: 64, want: 64},
	}
	for _, tt := range tests {
		got, ok := r.Alloc(tt.size, tt.align)
		if !ok || got != tt.want {
			t.Errorf("Alloc(%d, %d) = %d, %v; want %d", tt.size, tt.align, got, ok, tt.want)
		}
		if got%max(tt.align, 1) != 0 {
			t.Errorf("offset %d not aligned to %d", got, tt.align)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("Alloc with alignment 3 did not panic")
		}
	}()
	r.Alloc(1, 3)
}

func TestLinearRejectsOversize(t *testing.T) {
	r := NewLinear(64, 1)
	if _, ok := r.Alloc(65, 1); ok {
		t.Error("Alloc larger than the ring succeeded")
	}
	if _, ok := r.Alloc(0, 1); ok {
		t.Error("zero-size Alloc succeeded")
	}
}

func TestLinearReleasesOldestFrame(t *testing.T) {
	r := NewLinear(300, 3)

	for frame := 0; frame < 3; frame++ {
		if _, ok := r.Alloc(100, 1); !ok {
			t.Fatalf("frame %d: Alloc failed", frame)
		}
		if frame < 2 {
			r.OnBeginFrame()
		}
	}
	if _, ok := r.Alloc(1, 1); ok {
		t.Fatal("ring full, Alloc should fail")
	}

	r.OnBeginFrame() // releases frame 0 only
	if r.Used() != 200 {
		t.Errorf("Used() = %d, want 200", r.Used())
	}
	if off, ok := r.Alloc(100, 1); !ok || off != 0 {
		t.Errorf("Alloc = %d, %v; want reuse of frame 0 at 0", off, ok)
	}
}

func TestLinearTryBeginFrameIsEpochGated(t *testing.T) {
	r := NewLinear(128, 2)

	if r.PendingEpoch() != 0 {
		t.Fatalf("PendingEpoch() = %d on a fresh ring", r.PendingEpoch())
	}
	r.Alloc(64, 1)
	r.MarkSubmitted(5)
	if !r.TryBeginFrame(0) {
		t.Fatal("second frame slot was never used, TryBeginFrame should succeed")
	}
	r.Alloc(64, 1)
	r.MarkSubmitted(6)

	if got := r.PendingEpoch(); got != 5 {
		t.Fatalf("PendingEpoch() = %d, want 5", got)
	}
	if r.TryBeginFrame(4) {
		t.Fatal("TryBeginFrame(4) released a frame submitted at 5")
	}
	if r.Used() != 128 {
		t.Errorf("Used() = %d after refused begin, want 128", r.Used())
	}
	if !r.TryBeginFrame(5) {
		t.Fatal("TryBeginFrame(5) refused a completed frame")
	}
	if r.Used() != 64 {
		t.Errorf("Used() = %d, want 64", r.Used())
	}
}

func TestLinearReset(t *testing.T) {
	r := NewLinear(64, 2)
	r.Alloc(60, 1)
	r.MarkSubmitted(3)
	r.Reset()
	if r.Used() != 0 || r.PendingEpoch() != 0 {
		t.Errorf("after Reset Used() = %d, PendingEpoch() = %d", r.Used(), r.PendingEpoch())
	}
}

func TestAllocatorsTryAcquire(t *testing.T) {
	a := NewAllocators([]string{"a", "b"})

	s0, v0, ok := a.TryAcquire(0)
	if !ok || v0 != "a" {
		t.Fatalf("TryAcquire = %d, %q, %v", s0, v0, ok)
	}
	s1, v1, ok := a.TryAcquire(0)
	if !ok || v1 != "b" {
		t.Fatalf("TryAcquire = %d, %q, %v", s1, v1, ok)
	}
	if _, _, ok := a.TryAcquire(0); ok {
		t.Fatal("TryAcquire succeeded with every slot checked out")
	}

	a.Retire(s0, 3)
	a.Release(s1)
	if slot, _, ok := a.TryAcquire(2); !ok || slot != s1 {
		t.Errorf("TryAcquire(2) = %d, %v; want unsubmitted slot %d", slot, ok, s1)
	}
	if _, _, ok := a.TryAcquire(2); ok {
		t.Error("TryAcquire(2) returned a slot submitted at 3")
	}
	if slot, _, ok := a.TryAcquire(3); !ok || slot != s0 {
		t.Errorf("TryAcquire(3) = %d, %v; want %d", slot, ok, s0)
	}
}

func TestAllocatorsAcquireWaits(t *testing.T) {
	a := NewAllocators([]int{10, 20})
	s0, _, _ := a.TryAcquire(0)
	s1, _, _ := a.TryAcquire(0)
	a.Retire(s0, 4)
	a.Retire(s1, 2)

	var waited []uint64
	wait := func(_ context.Context, v uint64) (uint64, error) {
		waited = append(waited, v)
		return v, nil
	}
	slot, v, err := a.Acquire(context.Background(), 1, wait)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if slot != s1 || v != 20 {
		t.Errorf("Acquire() = %d, %d; want slot %d value 20", slot, v, s1)
	}
	if len(waited) != 1 || waited[0] != 2 {
		t.Errorf("waited for %v, want [2]", waited)
	}
}

func TestAllocatorsAcquireErrors(t *testing.T) {
	a := NewAllocators([]int{1})
	s, _, _ := a.TryAcquire(0)

	never := func(context.Context, uint64) (uint64, error) {
		t.Fatal("wait called with every slot checked out")
		return 0, nil
	}
	if _, _, err := a.Acquire(context.Background(), 0, never); !errors.Is(err, ErrAllBusy) {
		t.Fatalf("Acquire() error = %v, want ErrAllBusy", err)
	}

	a.Retire(s, 9)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	failing := func(ctx context.Context, _ uint64) (uint64, error) { return 0, ctx.Err() }
	if _, _, err := a.Acquire(ctx, 0, failing); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestSet(t *testing.T) {
	s := NewSet(3, 100, 2)
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if s.Ring(1).Frames() != 2 || s.Ring(1).Cap() != 100 {
		t.Errorf("ring = %d frames, cap %d, want 2 frames, cap 100", s.Ring(1).Frames(), s.Ring(1).Cap())
	}
	s.Ring(0).Alloc(10, 1)
	s.Ring(2).Alloc(30, 1)
	if s.Ring(0) == s.Ring(1) {
		t.Fatal("slots share a ring")
	}
	if s.Used() != 40 {
		t.Errorf("Used() = %d, want 40", s.Used())
	}
	s.Reset()
	if s.Used() != 0 {
		t.Errorf("Used() = %d after Reset, want 0", s.Used())
	}
}

func BenchmarkLinearAlloc(b *testing.B) {
	r := NewLinear(1<<20, 3)
	for i := 0; i < b.N; i++ {
		if _, ok := r.Alloc(256, 16); !ok {
			r.OnBeginFrame()
		}
	}
}
