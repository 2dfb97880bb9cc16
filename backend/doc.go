// Package backend defines the native side of the runtime: the interface a
// graphics API implements to create objects, translate command streams and
// submit them against a timeline fence.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The software backend is registered on import:
//
//	import _ "github.com/gogpu/gpurt/backend"
//
// The native backend, built on the gogpu/wgpu HAL, registers itself when
// its package is imported:
//
//	import _ "github.com/gogpu/gpurt/backend/native"
//
// # Backend Selection
//
// Use Default() to get the best available backend, Get() to request one by
// name, or InitDefault() to initialize the first backend that opens:
//
//	b, err := backend.InitDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
// # Translation
//
// Translate receives the barriers reconciled against the master state
// cache and a parser over one frame's command stream. Backends record into
// a CommandList obtained from an Allocator; Submit hands the finished lists
// to the queue in order and signals the fence with the submission epoch.
//
// # Available Backends
//
//   - "software": host memory, validates every resource state (always available)
//   - "native": Vulkan through gogpu/wgpu, falling back to the HAL noop device
package backend
