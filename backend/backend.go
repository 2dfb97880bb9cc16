package backend

import (
	"errors"

	"github.com/gogpu/gpurt/cmdstream"
	"github.com/gogpu/gpurt/gpucore"
	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/state"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrDeviceLost is returned once a submission failed. The backend
	// rejects every later submission.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrInvalidState is returned when a command uses a resource in a
	// state it was not transitioned to.
	ErrInvalidState = errors.New("backend: resource in invalid state")

	// ErrInvalidCommand is returned for a command recorded where it is
	// not allowed, such as a draw outside a render pass.
	ErrInvalidCommand = errors.New("backend: invalid command")
)

// Backend translates command streams into native work and owns the native
// device.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	gpucore.Device

	// Name returns the backend identifier (e.g., "software", "native").
	Name() string

	// Init opens the native device.
	Init() error

	// Close releases the native device. Every object must be destroyed.
	Close()

	// Fence returns the timeline signaled by Submit.
	Fence() gpucore.Fence

	// NewAllocator creates a command allocator.
	NewAllocator() (Allocator, error)

	// Translate records barriers followed by the parsed stream into cl.
	// Native objects obtained from res must not be retained after the
	// call returns. Side effects are confined to cl.
	Translate(cl CommandList, barriers []state.Barrier, p *cmdstream.Parser, res Resources) error

	// Submit submits finished lists in order and signals the fence with
	// signal once they complete.
	Submit(lists []CommandList, signal uint64) error
}

// Allocator owns the memory of the command lists begun from it. It may
// only be reset once the GPU finished every list it produced.
type Allocator interface {
	// Begin starts a fresh command list.
	Begin(label string) (CommandList, error)

	// Reset recycles every list begun since the last reset.
	Reset()

	// Destroy releases the allocator.
	Destroy()
}

// CommandList is a native command buffer being recorded.
type CommandList interface {
	// Finish ends recording.
	Finish() error

	// Discard abandons a list that will not be submitted.
	Discard()
}

// Resources resolves handles to native objects during Translate.
type Resources interface {
	// Resolve returns the native object of h. It panics on a stale handle.
	Resolve(h handle.Handle) gpucore.Object
}
