// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package epoch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// testFence completes values only when told to.
type testFence struct {
	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	waits     int
}

func newTestFence() *testFence {
	f := &testFence{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *testFence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *testFence) complete(v uint64) {
	f.mu.Lock()
	f.completed = v
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *testFence) Wait(ctx context.Context, v uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	for f.completed < v {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.cond.Wait()
	}
	return nil
}

func submit(t *testing.T, tr *Tracker) uint64 {
	t.Helper()
	v, err := tr.SignalAndAdvance(func(uint64) error { return nil })
	if err != nil {
		t.Fatalf("SignalAndAdvance() error = %v", err)
	}
	return v
}

func TestTrackerInitialValues(t *testing.T) {
	tr := NewTracker(newTestFence())
	if tr.CPU() != 1 {
		t.Errorf("CPU() = %d, want 1", tr.CPU())
	}
	if tr.GPU() != 0 {
		t.Errorf("GPU() = %d, want 0", tr.GPU())
	}
	if tr.LastSignaled() != 0 {
		t.Errorf("LastSignaled() = %d, want 0", tr.LastSignaled())
	}
}

// Two submissions with no GPU progress: GPU stays at 0 and never passes CPU.
func TestTrackerGPUNeverExceedsCPU(t *testing.T) {
	f := newTestFence()
	tr := NewTracker(f)

	if v := submit(t, tr); v != 1 || tr.CPU() != 2 {
		t.Fatalf("first submit signaled %d, CPU %d; want 1, 2", v, tr.CPU())
	}
	if v := submit(t, tr); v != 2 || tr.CPU() != 3 {
		t.Fatalf("second submit signaled %d, CPU %d; want 2, 3", v, tr.CPU())
	}

	gpu, err := tr.Refresh()
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if gpu != 0 {
		t.Errorf("GPU = %d before completion, want 0", gpu)
	}

	f.complete(1)
	if gpu, _ = tr.Refresh(); gpu != 1 {
		t.Errorf("GPU = %d, want 1", gpu)
	}

	// A misbehaving fence reporting past the last signal is clamped.
	f.complete(10)
	if gpu, _ = tr.Refresh(); gpu != 2 {
		t.Errorf("GPU = %d, want clamp to 2", gpu)
	}
	if tr.GPU() > tr.CPU() {
		t.Errorf("GPU %d > CPU %d", tr.GPU(), tr.CPU())
	}
}

func TestTrackerGPUIsCached(t *testing.T) {
	f := newTestFence()
	tr := NewTracker(f)
	submit(t, tr)
	f.complete(1)

	if tr.GPU() != 0 {
		t.Errorf("GPU() = %d before Refresh, want cached 0", tr.GPU())
	}
	if _, err := tr.Refresh(); err != nil {
		t.Fatal(err)
	}
	if !tr.Completed(1) {
		t.Error("Completed(1) = false after Refresh")
	}
}

func TestTrackerSignalFailureKeepsCPU(t *testing.T) {
	tr := NewTracker(newTestFence())
	boom := errors.New("device lost")

	_, err := tr.SignalAndAdvance(func(uint64) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if tr.CPU() != 1 {
		t.Errorf("CPU() = %d after failed signal, want 1", tr.CPU())
	}
}

func TestTrackerRegressionIsReported(t *testing.T) {
	f := newTestFence()
	tr := NewTracker(f)
	submit(t, tr)
	submit(t, tr)
	f.complete(2)
	if _, err := tr.Refresh(); err != nil {
		t.Fatal(err)
	}

	f.complete(1)
	gpu, err := tr.Refresh()
	if !errors.Is(err, ErrFenceRegressed) {
		t.Fatalf("error = %v, want ErrFenceRegressed", err)
	}
	if gpu != 2 {
		t.Errorf("GPU = %d after regression, want 2", gpu)
	}
}

func TestTrackerFlushBlocksUntilComplete(t *testing.T) {
	f := newTestFence()
	tr := NewTracker(f)
	submit(t, tr)
	submit(t, tr)

	done := make(chan error, 1)
	go func() { done <- tr.Flush(context.Background()) }()

	select {
	case err := <-done:
		t.Fatalf("Flush returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	f.complete(2)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Flush did not return after completion")
	}
	if tr.GPU() != 2 {
		t.Errorf("GPU() = %d after Flush, want 2", tr.GPU())
	}
}

func TestTrackerFlushWithoutSubmissions(t *testing.T) {
	f := newTestFence()
	tr := NewTracker(f)
	if err := tr.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if f.waits != 0 {
		t.Errorf("fence waited %d times, want 0", f.waits)
	}
}

func TestTrackerWaitForCanceled(t *testing.T) {
	f := newTestFence()
	tr := NewTracker(f)
	submit(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.WaitFor(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitFor() error = %v, want context.Canceled", err)
	}
}
