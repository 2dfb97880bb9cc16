package gpurt

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gpurt/backend"
	"github.com/gogpu/gpurt/cmdstream"
)

// Submit translates frames into native command lists and submits them
// together under one new epoch, which it returns.
//
// Frames are reconciled against the global resource states in argument
// order, so each frame sees the states left by the previous one. On
// success every object the frames acquired goes back to its cache, released
// at the returned epoch. On failure nothing is submitted, the epoch does
// not advance and the frames are discarded.
//
// A native submission failure loses the device: the error wraps
// ErrDeviceLost and every later Submit fails.
func (c *Context) Submit(frames ...*Frame) (uint64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	for i, f := range frames {
		if f.c != c {
			panic("gpurt: submit of a frame from another context")
		}
		for _, prev := range frames[:i] {
			if prev == f {
				panic(fmt.Sprintf("gpurt: frame %q submitted twice in one call", f.label))
			}
		}
		if f.done {
			return 0, fmt.Errorf("%w: %q", ErrFrameDone, f.label)
		}
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if c.lost.Load() {
		c.abandon(frames)
		return 0, ErrDeviceLost
	}
	for _, f := range frames {
		if f.err != nil {
			c.abandon(frames)
			return 0, fmt.Errorf("gpurt: frame %q: %w", f.label, f.err)
		}
	}

	gpu, err := c.epochs.Refresh()
	if err != nil {
		c.abandon(frames)
		return 0, fmt.Errorf("gpurt: refresh epoch: %w", err)
	}
	c.forgetDestroyed()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.flushTimeout)
	defer cancel()
	slot, alloc, err := c.allocators.Acquire(ctx, gpu, c.waitEpoch)
	if err != nil {
		c.abandon(frames)
		return 0, fmt.Errorf("gpurt: acquire command allocator: %w", err)
	}
	alloc.Reset()

	lists := make([]backend.CommandList, 0, len(frames))
	fail := func(err error) (uint64, error) {
		for _, l := range lists {
			l.Discard()
		}
		alloc.Reset()
		c.allocators.Release(slot)
		c.abandon(frames)
		return 0, err
	}

	batch := c.master.Begin()
	barriers := 0
	for _, f := range frames {
		c.barriers = batch.Reconcile(c.barriers[:0], f.fs.tracker)
		barriers += len(c.barriers)

		cl, err := alloc.Begin(f.label)
		if err != nil {
			return fail(fmt.Errorf("gpurt: begin command list %q: %w", f.label, err))
		}
		lists = append(lists, cl)
		p := cmdstream.NewParser(f.fs.stream.Bytes())
		if err := c.be.Translate(cl, c.barriers, p, c); err != nil {
			return fail(fmt.Errorf("gpurt: translate frame %q: %w", f.label, err))
		}
		if err := cl.Finish(); err != nil {
			return fail(fmt.Errorf("gpurt: finish frame %q: %w", f.label, err))
		}
		slogger().Debug("gpurt: frame translated",
			"frame", f.label,
			"commands", f.fs.stream.Count(),
			"barriers", len(c.barriers))
	}

	v, err := c.epochs.SignalAndAdvance(func(v uint64) error {
		return c.be.Submit(lists, v)
	})
	if err != nil {
		if errors.Is(err, ErrDeviceLost) {
			c.lost.Store(true)
			slogger().Warn("gpurt: device lost", "epoch", c.epochs.CPU(), "err", err)
		}
		return fail(fmt.Errorf("gpurt: submit: %w", err))
	}

	batch.Commit()
	c.allocators.Retire(slot, v)
	c.submissions.Add(1)
	c.barrierOps.Add(uint64(barriers))
	for _, f := range frames {
		f.finish(v, true)
	}
	c.collect(gpu)
	return v, nil
}

// waitEpoch adapts the epoch tracker to ring.WaitFunc.
func (c *Context) waitEpoch(ctx context.Context, value uint64) (uint64, error) {
	if err := c.epochs.WaitFor(ctx, value); err != nil {
		return 0, err
	}
	return c.epochs.GPU(), nil
}

// abandon finishes frames that will never reach the GPU. Their cache
// entries are released at the next epoch, which is as conservative as a
// submission.
func (c *Context) abandon(frames []*Frame) {
	cpu := c.epochs.CPU()
	for _, f := range frames {
		f.finish(cpu, false)
	}
}

// collect destroys what the GPU has finished with. Caller holds submitMu.
func (c *Context) collect(gpu uint64) {
	if gpu >= c.opts.cacheRetain {
		c.cullCaches(gpu - c.opts.cacheRetain)
	}
	cpu := c.epochs.CPU()
	destroyed := 0
	for _, q := range c.graveyard {
		if q != nil {
			destroyed += q.FreeAllPending(gpu, cpu)
		}
	}
	if destroyed > 0 {
		slogger().Debug("gpurt: destroyed released objects", "count", destroyed, "gpu", gpu)
	}
}
