package native

import "errors"

// Package errors for the HAL backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNotHAL is returned when a device provider does not expose HAL
	// device and queue objects.
	ErrNotHAL = errors.New("native: provider does not expose HAL types")
)
