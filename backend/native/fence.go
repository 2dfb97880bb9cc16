package native

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// fence adapts a HAL timeline fence to gpucore.Fence.
//
// HAL exposes waits but no value query, so Completed polls each submitted
// value above the last one observed with a zero timeout.
type fence struct {
	device hal.Device
	raw    hal.Fence
	poll   time.Duration

	signaled  atomic.Uint64
	completed atomic.Uint64
}

func (f *fence) submitted(v uint64) {
	f.signaled.Store(v)
}

func (f *fence) observe(v uint64) {
	for {
		cur := f.completed.Load()
		if v <= cur || f.completed.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Completed returns the highest value the GPU is known to have reached.
func (f *fence) Completed() uint64 {
	done := f.completed.Load()
	last := f.signaled.Load()
	for v := done + 1; v <= last; v++ {
		ok, err := f.device.Wait(f.raw, v, 0)
		if err != nil || !ok {
			break
		}
		done = v
	}
	f.observe(done)
	return f.completed.Load()
}

// Wait blocks until value completes or ctx is done.
func (f *fence) Wait(ctx context.Context, value uint64) error {
	for {
		if f.completed.Load() >= value {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := f.device.Wait(f.raw, value, f.poll)
		if err != nil {
			return fmt.Errorf("native: wait for fence value %d: %w", value, err)
		}
		if ok {
			f.observe(value)
			return nil
		}
	}
}
