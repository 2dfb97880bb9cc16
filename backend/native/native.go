// Package native implements backend.Backend on the gogpu/wgpu HAL.
//
// Init opens a Vulkan device when one is available and falls back to the
// HAL noop device otherwise. A device owned by another component, such as a
// gogpu window, can be shared through NewFromProvider.
//
// Importing the package registers the backend under backend.BackendNative:
//
//	import _ "github.com/gogpu/gpurt/backend/native"
package native

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpurt/backend"
	"github.com/gogpu/gpurt/gpucore"
)

// defaultPollInterval bounds a single HAL fence wait so Fence.Wait can
// observe context cancellation.
const defaultPollInterval = 10 * time.Millisecond

func init() {
	backend.Register(backend.BackendNative, func() backend.Backend {
		return New()
	})
}

// Option configures a Backend.
type Option func(*Backend)

// WithNoopDevice skips the platform device and opens the HAL noop device.
func WithNoopDevice() Option {
	return func(b *Backend) {
		b.forceNoop = true
	}
}

// WithPollInterval sets how long a single fence wait blocks before the
// context is checked again.
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.poll = d
		}
	}
}

// Backend is a HAL device driven by command streams.
//
// Thread Safety: object creation, destruction and Submit are serialized by
// an internal mutex. Translate only touches the command list it is given.
type Backend struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string

	// external is set when the device belongs to a provider and must not
	// be destroyed by Close.
	external  bool
	forceNoop bool
	poll      time.Duration

	fence       *fence
	initialized bool
	lost        bool
	live        int
}

// New creates a backend that opens its own device on Init.
func New(opts ...Option) *Backend {
	b := &Backend{poll: defaultPollInterval}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFromDevice creates a backend over an existing HAL device and queue.
// Close leaves them open.
func NewFromDevice(device hal.Device, queue hal.Queue, opts ...Option) *Backend {
	b := New(opts...)
	b.device = device
	b.queue = queue
	b.external = true
	return b
}

// NewFromProvider shares the device of a gpucontext provider. The provider
// must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNotHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNotHAL)
	}
	return NewFromDevice(device, queue, opts...), nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendNative
}

// Adapter returns the name of the opened adapter, or "" for a shared
// device.
func (b *Backend) Adapter() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adapter
}

// Live returns the number of created objects not yet destroyed.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// Init opens the device, unless one was provided, and creates the
// submission fence.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if b.device == nil {
		if err := b.open(); err != nil {
			return err
		}
	}

	raw, err := b.device.CreateFence()
	if err != nil {
		b.release()
		return fmt.Errorf("native: create fence: %w", err)
	}
	b.fence = &fence{device: b.device, raw: raw, poll: b.poll}
	b.initialized = true
	slogger().Info("native: backend initialized", "adapter", b.adapter, "external", b.external)
	return nil
}

func (b *Backend) open() error {
	var (
		dev *opened
		err error
	)
	if !b.forceNoop {
		dev, err = openPlatform()
		if err != nil {
			slogger().Warn("native: platform device unavailable, using noop device", "err", err)
		}
	}
	if dev == nil {
		if dev, err = openNoop(); err != nil {
			return err
		}
	}
	b.instance = dev.instance
	b.device = dev.device
	b.queue = dev.queue
	b.adapter = dev.adapter
	return nil
}

// release destroys what the backend opened itself.
func (b *Backend) release() {
	if !b.external && b.device != nil {
		b.device.Destroy()
	}
	if b.instance != nil {
		b.instance.Destroy()
	}
	b.instance = nil
	b.device = nil
	b.queue = nil
}

// Close destroys the fence and, for an owned device, the device.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}
	if b.live != 0 {
		slogger().Warn("native: closed with live objects", "count", b.live)
	}
	b.device.DestroyFence(b.fence.raw)
	b.fence = nil
	b.release()
	b.initialized = false
	slogger().Info("native: backend closed")
}

// Fence returns the timeline signaled by Submit.
func (b *Backend) Fence() gpucore.Fence { return b.fence }

// Submit submits finished lists in order, signaling the fence with signal.
// A queue error loses the device.
func (b *Backend) Submit(lists []backend.CommandList, signal uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if b.lost {
		return backend.ErrDeviceLost
	}

	bufs := make([]hal.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl := l.(*commandList)
		if cl.buf == nil {
			return fmt.Errorf("%w: submit of unfinished list %q", backend.ErrInvalidCommand, cl.label)
		}
		bufs = append(bufs, cl.buf)
	}
	if err := b.queue.Submit(bufs, b.fence.raw, signal); err != nil {
		b.lost = true
		slogger().Warn("native: submit failed, device lost", "epoch", signal, "err", err)
		return fmt.Errorf("%w: %w", backend.ErrDeviceLost, err)
	}
	b.fence.submitted(signal)
	return nil
}

// NewAllocator creates a command allocator backed by one HAL encoder.
func (b *Backend) NewAllocator() (backend.Allocator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gpurt-allocator"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	return &allocator{device: b.device, encoder: enc}, nil
}

// SetLogger sets the package logger. It lets gpurt.SetLogger reach the
// backend without importing this package.
func (b *Backend) SetLogger(l *slog.Logger) { SetLogger(l) }
