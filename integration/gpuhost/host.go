// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuhost

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpurt"
	"github.com/gogpu/gpurt/backend"
	"github.com/gogpu/gpurt/backend/native"
	"github.com/gogpu/gpurt/gpucore"
)

var (
	// ErrHostClosed is returned when operations are attempted on a closed host.
	ErrHostClosed = errors.New("gpuhost: host is closed")

	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("gpuhost: nil DeviceProvider")
)

// Host owns a gpurt.Context running on a shared device.
type Host struct {
	rt     *gpurt.Context
	format gputypes.TextureFormat
	closed atomic.Bool
}

// New creates a Host on the device and queue of provider. The provider's
// device is never destroyed by the host.
func New(provider gpucontext.DeviceProvider, opts ...gpurt.Option) (*Host, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	be, err := native.NewFromProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("gpuhost: %w", err)
	}
	return newHost(be, provider.SurfaceFormat(), opts...)
}

// MustNew is like New but panics on error.
func MustNew(provider gpucontext.DeviceProvider, opts ...gpurt.Option) *Host {
	h, err := New(provider, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

func newHost(be backend.Backend, format gputypes.TextureFormat, opts ...gpurt.Option) (*Host, error) {
	opts = append([]gpurt.Option{gpurt.WithBackend(be)}, opts...)
	rt := gpurt.New(opts...)
	if err := rt.Initialize(); err != nil {
		return nil, fmt.Errorf("gpuhost: %w", err)
	}
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	return &Host{rt: rt, format: format}, nil
}

// Runtime returns the underlying runtime, or nil once the host is closed.
func (h *Host) Runtime() *gpurt.Context {
	if h.closed.Load() {
		return nil
	}
	return h.rt
}

// SurfaceFormat returns the color format of the provider's surface.
func (h *Host) SurfaceFormat() gputypes.TextureFormat { return h.format }

// SurfaceTarget describes an offscreen render target compatible with the
// provider's surface.
func (h *Host) SurfaceTarget(width, height uint32) gpucore.RenderTargetDesc {
	return gpucore.RenderTargetDesc{Width: width, Height: height, Format: h.format}
}

// Frame records one frame with fn and submits it. When fn fails the frame
// is discarded and fn's error is returned. It returns the submission epoch.
func (h *Host) Frame(ctx context.Context, label string, fn func(*gpurt.Frame) error) (uint64, error) {
	if h.closed.Load() {
		return 0, ErrHostClosed
	}
	f, err := h.rt.BeginFrame(ctx, label)
	if err != nil {
		return 0, err
	}
	if err := fn(f); err != nil {
		f.Discard()
		return 0, err
	}
	return h.rt.Submit(f)
}

// Close waits for the GPU and destroys the runtime. Close is idempotent.
func (h *Host) Close() {
	if h.closed.Swap(true) {
		return
	}
	h.rt.Destroy()
}
