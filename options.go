package gpurt

import (
	"time"

	"github.com/gogpu/gpurt/backend"
)

// Option configures a Context during creation.
//
// Example:
//
//	// Defaults: best registered backend, double buffering
//	rt := gpurt.New()
//
//	// Triple buffering on the software backend
//	rt := gpurt.New(
//	    gpurt.WithBackend(backend.NewSoftwareBackend()),
//	    gpurt.WithFramesInFlight(3),
//	)
type Option func(*options)

// options holds the configuration of a Context.
type options struct {
	backend            backend.Backend
	backendName        string
	framesInFlight     int
	maxRecording       int
	streamCapacity     int
	uploadRingSize     uint64
	descriptorRingSize uint64
	cacheRetain        uint64
	shaderCacheSize    int
	samplerCacheSize   int
	flushTimeout       time.Duration
}

// defaultOptions returns the default context options.
func defaultOptions() options {
	return options{
		framesInFlight:     2,
		maxRecording:       8,
		streamCapacity:     64 << 10,
		uploadRingSize:     4 << 20,
		descriptorRingSize: 4096,
		cacheRetain:        8,
		shaderCacheSize:    128,
		samplerCacheSize:   256,
		flushTimeout:       5 * time.Second,
	}
}

// WithBackend uses b instead of a backend from the registry. Initialize
// calls b.Init and Destroy calls b.Close.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithBackendName selects a registered backend by name, for example
// backend.BackendSoftware. By default the highest-priority registered
// backend that initializes is used.
func WithBackendName(name string) Option {
	return func(o *options) {
		o.backendName = name
	}
}

// WithFramesInFlight sets how many submissions may be pending on the GPU
// before recording blocks. It sizes the command allocator ring and the
// frame slots of every upload and descriptor ring. Default 2.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.framesInFlight = n
		}
	}
}

// WithMaxRecordingFrames sets how many frames may record concurrently.
// Default 8.
func WithMaxRecordingFrames(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecording = n
		}
	}
}

// WithStreamCapacity sets the command stream capacity of each frame in
// bytes. Recording past it panics. Default 64 KiB.
func WithStreamCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.streamCapacity = n
		}
	}
}

// WithUploadRingSize sets the size in bytes of each recording slot's
// upload buffer. Default 4 MiB.
func WithUploadRingSize(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.uploadRingSize = n
		}
	}
}

// WithDescriptorRingSize sets the number of descriptors in each recording
// slot's descriptor ring. Default 4096.
func WithDescriptorRingSize(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.descriptorRingSize = n
		}
	}
}

// WithCacheRetainEpochs sets how many completed epochs a released cache
// entry is kept for reuse before Submit destroys it. Zero destroys entries
// as soon as the GPU is done with them. Default 8.
func WithCacheRetainEpochs(n uint64) Option {
	return func(o *options) {
		o.cacheRetain = n
	}
}

// WithShaderCacheSize sets the number of compiled shaders kept by
// CompileShader. Default 128.
func WithShaderCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shaderCacheSize = n
		}
	}
}

// WithSamplerCacheSize sets the number of samplers kept alive. Evicted
// samplers are destroyed through the deferred queue. Default 256.
func WithSamplerCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.samplerCacheSize = n
		}
	}
}

// WithFlushTimeout bounds the GPU waits done by BeginFrame and Destroy.
// Default 5s.
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushTimeout = d
		}
	}
}
