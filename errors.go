package gpurt

import (
	"errors"

	"github.com/gogpu/gpurt/backend"
)

// Sentinel errors returned by Context and Frame.
var (
	// ErrNotInitialized is returned when a Context is used before Initialize.
	ErrNotInitialized = errors.New("gpurt: context not initialized")

	// ErrDestroyed is returned when a Context is used after Destroy.
	ErrDestroyed = errors.New("gpurt: context destroyed")

	// ErrFrameDone is returned when a Frame is used after it was submitted
	// or discarded.
	ErrFrameDone = errors.New("gpurt: frame already submitted or discarded")

	// ErrNoBackend is returned by Initialize when no backend is registered.
	ErrNoBackend = errors.New("gpurt: no backend available")

	// ErrTooManyFrames is returned by BeginFrame when every recording slot
	// is in use.
	ErrTooManyFrames = errors.New("gpurt: too many frames recording")

	// ErrUploadRingFull is returned by Frame.Upload when the frame's upload
	// ring cannot hold the data.
	ErrUploadRingFull = errors.New("gpurt: upload ring full")

	// ErrTransitionInPass is reported by Submit when a frame needed a state
	// transition while a pass was open.
	ErrTransitionInPass = errors.New("gpurt: resource transition inside a pass")

	// ErrNotPersistent is returned by Context.Release for a handle that was
	// acquired from a cache rather than created.
	ErrNotPersistent = errors.New("gpurt: handle is not a persistent resource")

	// ErrDeviceLost wraps a failed native submission. A context whose
	// device is lost rejects every further submission.
	ErrDeviceLost = backend.ErrDeviceLost
)
