package gpurt

import (
	"testing"
	"time"

	"github.com/gogpu/gpurt/backend"
)

// TestDefaultOptions verifies the documented defaults.
func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()

	if o.backend != nil || o.backendName != "" {
		t.Error("default options should not pin a backend")
	}
	if o.framesInFlight != 2 {
		t.Errorf("framesInFlight = %d, want 2", o.framesInFlight)
	}
	if o.maxRecording != 8 {
		t.Errorf("maxRecording = %d, want 8", o.maxRecording)
	}
	if o.streamCapacity != 64<<10 {
		t.Errorf("streamCapacity = %d, want 64 KiB", o.streamCapacity)
	}
	if o.uploadRingSize != 4<<20 {
		t.Errorf("uploadRingSize = %d, want 4 MiB", o.uploadRingSize)
	}
	if o.cacheRetain != 8 {
		t.Errorf("cacheRetain = %d, want 8", o.cacheRetain)
	}
	if o.flushTimeout != 5*time.Second {
		t.Errorf("flushTimeout = %v, want 5s", o.flushTimeout)
	}
}

// TestOptionsApplied tests that every option reaches the Context.
func TestOptionsApplied(t *testing.T) {
	sw := backend.NewSoftwareBackend()
	rt := New(
		WithBackend(sw),
		WithBackendName(backend.BackendSoftware),
		WithFramesInFlight(3),
		WithMaxRecordingFrames(4),
		WithStreamCapacity(1024),
		WithUploadRingSize(4096),
		WithDescriptorRingSize(64),
		WithCacheRetainEpochs(0),
		WithShaderCacheSize(4),
		WithSamplerCacheSize(2),
		WithFlushTimeout(time.Second),
	)

	o := rt.opts
	if o.backend != sw {
		t.Error("WithBackend not applied")
	}
	if o.backendName != backend.BackendSoftware {
		t.Errorf("backendName = %q", o.backendName)
	}
	checks := []struct {
		name      string
		got, want uint64
	}{
		{"framesInFlight", uint64(o.framesInFlight), 3},
		{"maxRecording", uint64(o.maxRecording), 4},
		{"streamCapacity", uint64(o.streamCapacity), 1024},
		{"uploadRingSize", o.uploadRingSize, 4096},
		{"descriptorRingSize", o.descriptorRingSize, 64},
		{"cacheRetain", o.cacheRetain, 0},
		{"shaderCacheSize", uint64(o.shaderCacheSize), 4},
		{"samplerCacheSize", uint64(o.samplerCacheSize), 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if o.flushTimeout != time.Second {
		t.Errorf("flushTimeout = %v, want 1s", o.flushTimeout)
	}
}

// TestOptionsIgnoreInvalid tests that non-positive sizes keep the defaults.
func TestOptionsIgnoreInvalid(t *testing.T) {
	rt := New(
		WithFramesInFlight(0),
		WithMaxRecordingFrames(-1),
		WithStreamCapacity(0),
		WithUploadRingSize(0),
		WithShaderCacheSize(0),
		WithFlushTimeout(-time.Second),
	)
	def := defaultOptions()
	if rt.opts.framesInFlight != def.framesInFlight ||
		rt.opts.maxRecording != def.maxRecording ||
		rt.opts.streamCapacity != def.streamCapacity ||
		rt.opts.uploadRingSize != def.uploadRingSize ||
		rt.opts.shaderCacheSize != def.shaderCacheSize ||
		rt.opts.flushTimeout != def.flushTimeout {
		t.Errorf("invalid values changed options: %+v", rt.opts)
	}
}
