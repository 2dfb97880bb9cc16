// Package gpurt is a cross-backend GPU command and resource runtime.
//
// # Overview
//
// gpurt sits underneath a renderer. Frames record device-independent draw,
// dispatch, copy and transition commands into a compact binary stream.
// Buffers, textures, render targets, pipelines and shader views are pooled
// and cached by content, and nothing is reused or destroyed while the GPU
// may still be reading it.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpurt"
//	    _ "github.com/gogpu/gpurt/backend/native"
//	)
//
//	rt := gpurt.New()
//	if err := rt.Initialize(); err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Destroy()
//
//	f, _ := rt.BeginFrame(ctx, "main")
//	dst, _ := f.AcquireBuffer(gpucore.BufferDesc{Size: 1024})
//	src, _ := f.Upload(data)
//	f.CopyBuffer(src.Buffer, dst, src.Offset, 0, src.Size)
//	epoch, err := rt.Submit(f)
//
// # Epochs
//
// Every submission signals a new CPU epoch on the backend fence. The GPU
// epoch is the last value the fence is known to have reached and never
// exceeds the last signaled epoch. An object released under epoch E is
// destroyed only once the GPU epoch reaches E; persistent objects passed to
// Release wait two more epochs in the deferred destruction queue.
//
// # Resource states
//
// Each frame tracks the states its commands need. The first use of a
// resource in a frame is resolved at submission against the state left by
// earlier submissions, producing the minimal set of barriers; redundant
// transitions are never emitted.
//
// # Architecture
//
// The runtime is organized into:
//   - Public API: Context, Frame, Stats
//   - handle: generation-checked handles and slot pools
//   - cmdstream: command records, writer, parser and visitor
//   - state: per-frame and global resource state tracking
//   - gpucore: descriptors and the native creation boundary
//   - backend: backend contract, registry and software backend
//   - backend/native: gogpu/wgpu HAL backend
//   - internal: epoch tracker, caches, deferred queue, ring allocators
package gpurt

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
