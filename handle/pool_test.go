// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package handle

import (
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
)

func expectPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", want)
		}
		msg, _ := r.(string)
		if !strings.Contains(msg, want) {
			t.Fatalf("panic = %q, want substring %q", msg, want)
		}
	}()
	fn()
}

func TestHandlePacking(t *testing.T) {
	h := New(KindTexture, 7, 42)
	if h.Kind() != KindTexture {
		t.Errorf("Kind() = %v, want %v", h.Kind(), KindTexture)
	}
	if h.Generation() != 7 {
		t.Errorf("Generation() = %d, want 7", h.Generation())
	}
	if h.Index() != 42 {
		t.Errorf("Index() = %d, want 42", h.Index())
	}
	if got := h.String(); got != "texture#42.7" {
		t.Errorf("String() = %q, want %q", got, "texture#42.7")
	}
	if Invalid.IsValid() {
		t.Error("Invalid.IsValid() = true")
	}
}

func TestNextGenerationSkipsZero(t *testing.T) {
	if g := nextGeneration(genMask); g != 1 {
		t.Errorf("nextGeneration(max) = %d, want 1", g)
	}
	if g := nextGeneration(3); g != 4 {
		t.Errorf("nextGeneration(3) = %d, want 4", g)
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool[int](KindBuffer)

	a := p.Acquire()
	b := p.Acquire()
	if a == b {
		t.Fatal("two live handles are equal")
	}
	if !a.IsValid() || !b.IsValid() {
		t.Fatal("pool returned the invalid handle")
	}
	p.Set(a, 10)
	*p.Get(b) = 20
	if v := *p.Get(a); v != 10 {
		t.Errorf("Get(a) = %d, want 10", v)
	}
	if v := *p.Get(b); v != 20 {
		t.Errorf("Get(b) = %d, want 20", v)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}

	p.Release(a)
	c := p.Acquire()
	if c.Index() != a.Index() {
		t.Errorf("reacquired index = %d, want reused %d", c.Index(), a.Index())
	}
	if c == a {
		t.Error("reacquired handle equals released handle; generation not bumped")
	}
	if v := *p.Get(c); v != 0 {
		t.Errorf("reused slot value = %d, want zero", v)
	}
}

func TestPoolStaleHandlePanics(t *testing.T) {
	p := NewPool[string](KindSampler)
	h := p.Acquire()
	p.Release(h)

	expectPanic(t, "stale", func() { p.Get(h) })
	expectPanic(t, "stale", func() { p.Release(h) })

	_ = p.Acquire() // reuses the slot with a new generation
	expectPanic(t, "stale", func() { p.Get(h) })
}

func TestPoolUpdate(t *testing.T) {
	p := NewPool[int](KindBuffer)
	h := p.Acquire()
	p.Set(h, 41)

	p.Update(h, func(v *int) { *v++ })
	if got := *p.Get(h); got != 42 {
		t.Errorf("Get() after Update = %d, want 42", got)
	}

	p.Release(h)
	expectPanic(t, "stale", func() { p.Update(h, func(*int) {}) })
}

func TestPoolWrongKindPanics(t *testing.T) {
	p := NewPool[int](KindBuffer)
	_ = p.Acquire()
	expectPanic(t, "texture pool", func() {
		NewPool[int](KindTexture).Get(New(KindBuffer, 1, 0))
	})
	expectPanic(t, "out of range", func() { p.Get(New(KindBuffer, 1, 99)) })
}

func TestPoolContains(t *testing.T) {
	p := NewPool[int](KindBuffer)
	h := p.Acquire()
	if !p.Contains(h) {
		t.Error("Contains(live) = false")
	}
	p.Release(h)
	if p.Contains(h) {
		t.Error("Contains(released) = true")
	}
	if p.Contains(New(KindTexture, 1, 0)) {
		t.Error("Contains(other kind) = true")
	}
}

func TestFixedPoolExhaustion(t *testing.T) {
	p := NewFixed[int](KindCommandList, 2)
	a := p.Acquire()
	_ = p.Acquire()

	if _, ok := p.TryAcquire(); ok {
		t.Fatal("TryAcquire succeeded on a full pool")
	}
	expectPanic(t, "exhausted", func() { p.Acquire() })

	p.Release(a)
	if _, ok := p.TryAcquire(); !ok {
		t.Fatal("TryAcquire failed after a release")
	}
	if p.Cap() != 2 {
		t.Errorf("Cap() = %d, want 2", p.Cap())
	}
}

func TestPoolGrowsAcrossPages(t *testing.T) {
	p := NewPool[int](KindBuffer)
	first := p.Acquire()
	ptr := p.Get(first)
	*ptr = 99

	for i := 0; i < pageSize*3; i++ {
		p.Acquire()
	}
	if p.Get(first) != ptr {
		t.Error("slot address moved after growth")
	}
	if *ptr != 99 {
		t.Errorf("value = %d, want 99", *ptr)
	}
}

func TestPoolEachReportsLeaks(t *testing.T) {
	p := NewPool[int](KindBuffer)
	var hs []Handle
	for i := 0; i < 5; i++ {
		hs = append(hs, p.Acquire())
	}
	p.Release(hs[1])
	p.Release(hs[3])

	var seen []Handle
	p.Each(func(h Handle, _ *int) { seen = append(seen, h) })
	want := []Handle{hs[0], hs[2], hs[4]}
	if len(seen) != len(want) {
		t.Fatalf("Each visited %d slots, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Each[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

// No two live handles ever alias the same slot, for any acquire/release order.
func TestPoolUniqueness(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	p := NewPool[int](KindBuffer)
	live := make(map[uint32]Handle)
	var order []Handle

	for step := 0; step < 5000; step++ {
		if len(order) == 0 || rng.IntN(3) != 0 {
			h := p.Acquire()
			if prev, ok := live[h.Index()]; ok {
				t.Fatalf("step %d: %v aliases live %v", step, h, prev)
			}
			live[h.Index()] = h
			order = append(order, h)
			continue
		}
		i := rng.IntN(len(order))
		h := order[i]
		order[i] = order[len(order)-1]
		order = order[:len(order)-1]
		delete(live, h.Index())
		p.Release(h)
	}
	if p.Len() != len(live) {
		t.Errorf("Len() = %d, want %d", p.Len(), len(live))
	}
}

func TestPoolConcurrent(t *testing.T) {
	p := NewPool[int](KindBuffer)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h := p.Acquire()
				p.Set(h, g)
				if v := *p.Get(h); v != g {
					t.Errorf("goroutine %d read %d", g, v)
					return
				}
				p.Release(h)
			}
		}(g)
	}
	wg.Wait()
	if p.Len() != 0 {
		t.Errorf("Len() = %d after concurrent run, want 0", p.Len())
	}
}

func BenchmarkPoolAcquireRelease(b *testing.B) {
	p := NewPool[[64]byte](KindBuffer)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		p.Release(p.Acquire())
	}
}
