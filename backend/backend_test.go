package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpurt/cmdstream"
	"github.com/gogpu/gpurt/gpucore"
	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/state"
)

// objects resolves handles from a plain map.
type objects map[handle.Handle]gpucore.Object

func (o objects) Resolve(h handle.Handle) gpucore.Object { return o[h] }

func newTestBackend(t *testing.T, opts ...SoftwareOption) *SoftwareBackend {
	t.Helper()
	b := NewSoftwareBackend(opts...)
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return b
}

// record translates cmds into a finished list.
func record(t *testing.T, b *SoftwareBackend, res objects, barriers []state.Barrier, cmds ...cmdstream.Command) CommandList {
	t.Helper()
	w := cmdstream.NewWriter(4096)
	for _, c := range cmds {
		w.Add(c)
	}
	alloc, err := b.NewAllocator()
	if err != nil {
		t.Fatalf("NewAllocator() error = %v", err)
	}
	cl, err := alloc.Begin("test")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := b.Translate(cl, barriers, cmdstream.NewParser(w.Bytes()), res); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if err := cl.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	return cl
}

// mustCreate unwraps a Create* result. It panics on error so that it can
// wrap the two-value call directly.
func mustCreate(obj gpucore.Object, err error) gpucore.Object {
	if err != nil {
		panic("create: " + err.Error())
	}
	return obj
}

var (
	bufA = handle.New(handle.KindBuffer, 1, 0)
	bufB = handle.New(handle.KindBuffer, 1, 1)
	rt   = handle.New(handle.KindRenderTarget, 1, 0)
	pso  = handle.New(handle.KindGraphicsPSO, 1, 0)
)

func TestSoftwareBackendName(t *testing.T) {
	b := NewSoftwareBackend()
	if b.Name() != "software" {
		t.Errorf("Name() = %q, want %q", b.Name(), "software")
	}
}

func TestSoftwareBackendNotInitialized(t *testing.T) {
	b := NewSoftwareBackend()
	if _, err := b.CreateBuffer(gpucore.BufferDesc{Size: 16}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CreateBuffer before Init error = %v, want ErrNotInitialized", err)
	}
}

func TestSoftwareBackendCopyBuffer(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()

	res := objects{
		bufA: mustCreate(b.CreateBuffer(gpucore.BufferDesc{Size: 8})),
		bufB: mustCreate(b.CreateBuffer(gpucore.BufferDesc{Size: 8})),
	}
	if err := b.WriteBuffer(res[bufA], 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatal(err)
	}

	barriers := []state.Barrier{
		{Handle: bufA, Before: state.Undefined, After: state.CopySrc},
		{Handle: bufB, Before: state.Undefined, After: state.CopyDst},
	}
	cl := record(t, b, res, barriers, cmdstream.CopyBuffer{Src: bufA, Dst: bufB, SrcOffset: 2, DstOffset: 0, Size: 4})
	if err := b.Submit([]CommandList{cl}, 1); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got := make([]byte, 4)
	if err := b.ReadBuffer(res[bufB], 0, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Errorf("copied bytes = %v, want [3 4 5 6]", got)
	}
	if b.Fence().Completed() != 1 {
		t.Errorf("fence = %d, want 1", b.Fence().Completed())
	}
	if s := b.Stats(); s.Copies != 1 || s.Barriers != 2 || s.Submissions != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	for _, obj := range res {
		b.Destroy(handle.KindBuffer, obj)
	}
	if b.Live() != 0 {
		t.Errorf("Live() = %d after destroying everything", b.Live())
	}
}

func TestSoftwareBackendMissingBarrierLosesDevice(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()

	res := objects{
		bufA: mustCreate(b.CreateBuffer(gpucore.BufferDesc{Size: 8})),
		bufB: mustCreate(b.CreateBuffer(gpucore.BufferDesc{Size: 8})),
	}
	cl := record(t, b, res, nil, cmdstream.CopyBuffer{Src: bufA, Dst: bufB, Size: 4})
	err := b.Submit([]CommandList{cl}, 1)
	if !errors.Is(err, ErrDeviceLost) || !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Submit() error = %v, want device lost by invalid state", err)
	}
	if b.Fence().Completed() != 0 {
		t.Error("failed submission signaled the fence")
	}

	ok := record(t, b, res, nil)
	if err := b.Submit([]CommandList{ok}, 2); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Submit() after loss error = %v, want ErrDeviceLost", err)
	}
}

func TestSoftwareBackendBarrierBeforeMismatch(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()

	res := objects{bufA: mustCreate(b.CreateBuffer(gpucore.BufferDesc{Size: 8}))}
	cl := record(t, b, res, []state.Barrier{{Handle: bufA, Before: state.CopyDst, After: state.CopySrc}})
	if err := b.Submit([]CommandList{cl}, 1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Submit() error = %v, want ErrInvalidState", err)
	}
}

func TestSoftwareBackendClearAndReadback(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()

	res := objects{
		rt: mustCreate(b.CreateRenderTarget(gpucore.RenderTargetDesc{
			Width: 2, Height: 2, Format: gputypes.TextureFormatRGBA8Unorm,
		})),
		bufA: mustCreate(b.CreateBuffer(gpucore.BufferDesc{Size: 256 * 2})),
		pso:  mustCreate(b.CreateGraphicsPSO(&gpucore.GraphicsPSODesc{Label: "fill"})),
	}

	pass := cmdstream.BeginRenderPass{Load: cmdstream.LoadOpClear, ClearColor: [4]float32{1, 0, 0, 1}}
	pass.Color[0] = rt
	cl := record(t, b, res,
		[]state.Barrier{
			{Handle: rt, Before: state.Undefined, After: state.RenderTarget},
			{Handle: bufA, Before: state.Undefined, After: state.CopyDst},
		},
		pass,
		cmdstream.SetGraphicsPipeline{PSO: pso},
		cmdstream.Draw{VertexCount: 3, InstanceCount: 1},
		cmdstream.EndRenderPass{},
		cmdstream.Transition{Resource: rt, Before: state.RenderTarget, After: state.CopySrc},
		cmdstream.CopyTextureToBuffer{
			Src: rt, Dst: bufA, BytesPerRow: 256,
			Size: cmdstream.Extent{Width: 2, Height: 2, Depth: 1},
		},
	)
	if err := b.Submit([]CommandList{cl}, 1); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	row := make([]byte, 8)
	for y := range 2 {
		if err := b.ReadBuffer(res[bufA], uint64(y*256), row); err != nil {
			t.Fatal(err)
		}
		want := []byte{255, 0, 0, 255, 255, 0, 0, 255}
		if !bytes.Equal(row, want) {
			t.Errorf("row %d = %v, want %v", y, row, want)
		}
	}
	if s := b.Stats(); s.Draws != 1 || s.Clears != 1 {
		t.Errorf("Stats() = %+v, want one draw and one clear", s)
	}
}

func TestSoftwareBackendStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		cmds []cmdstream.Command
	}{
		{"draw outside pass", []cmdstream.Command{cmdstream.Draw{VertexCount: 3}}},
		{"dispatch without pipeline", []cmdstream.Command{
			cmdstream.BeginComputePass{}, cmdstream.Dispatch{X: 1, Y: 1, Z: 1}, cmdstream.EndComputePass{},
		}},
		{"unterminated pass", []cmdstream.Command{cmdstream.BeginComputePass{}}},
		{"nested pass", []cmdstream.Command{cmdstream.BeginComputePass{}, cmdstream.BeginComputePass{}}},
		{"transition in pass", []cmdstream.Command{
			cmdstream.BeginComputePass{},
			cmdstream.Transition{Resource: bufA, Before: state.Undefined, After: state.Storage},
			cmdstream.EndComputePass{},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t)
			defer b.Close()
			res := objects{bufA: mustCreate(b.CreateBuffer(gpucore.BufferDesc{Size: 4}))}

			w := cmdstream.NewWriter(1024)
			for _, c := range tt.cmds {
				w.Add(c)
			}
			alloc, _ := b.NewAllocator()
			cl, _ := alloc.Begin(tt.name)
			err := b.Translate(cl, nil, cmdstream.NewParser(w.Bytes()), res)
			if !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("Translate() error = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestSoftwareBackendErrorOffset(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()

	w := cmdstream.NewWriter(64)
	w.Add(cmdstream.Draw{VertexCount: 3, InstanceCount: 1})
	alloc, _ := b.NewAllocator()
	cl, _ := alloc.Begin("offset")

	err := b.Translate(cl, nil, cmdstream.NewParser(w.Bytes()), objects{})
	want := fmt.Sprintf("stream offset %d", cmdstream.RecordSize(cmdstream.TagDraw))
	if err == nil || !strings.Contains(err.Error(), want) {
		t.Errorf("Translate() error = %v, want it to mention %q", err, want)
	}
}

func TestSoftwareBackendSubmitUnfinished(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()

	alloc, _ := b.NewAllocator()
	cl, _ := alloc.Begin("open")
	if err := b.Submit([]CommandList{cl}, 1); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Submit() of unfinished list error = %v, want ErrInvalidCommand", err)
	}
	cl.Discard()
	if err := cl.Finish(); err == nil {
		t.Error("Finish() of discarded list succeeded")
	}
}

func TestSoftwareBackendManualCompletion(t *testing.T) {
	b := newTestBackend(t, WithManualCompletion())
	defer b.Close()

	for v := uint64(1); v <= 2; v++ {
		if err := b.Submit([]CommandList{record(t, b, objects{}, nil)}, v); err != nil {
			t.Fatalf("Submit(%d) error = %v", v, err)
		}
	}
	if b.Fence().Completed() != 0 {
		t.Fatalf("fence advanced to %d without completion", b.Fence().Completed())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Fence().Wait(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}

	done := make(chan error, 1)
	go func() { done <- b.Fence().Wait(context.Background(), 2) }()
	b.Complete(1)
	b.Complete(5)
	if err := <-done; err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if got := b.Fence().Completed(); got != 2 {
		t.Errorf("Completed() = %d, want 2 (capped at last submission)", got)
	}
}

func TestBindingState(t *testing.T) {
	tests := []struct {
		typ  gpucore.BindingType
		want state.State
	}{
		{gpucore.BindingTypeUniformBuffer, state.Uniform},
		{gpucore.BindingTypeStorageBuffer, state.Storage},
		{gpucore.BindingTypeReadOnlyStorageBuffer, state.ShaderRead},
		{gpucore.BindingTypeSampledTexture, state.ShaderRead},
		{gpucore.BindingTypeStorageTexture, state.Storage},
		{gpucore.BindingTypeSampler, state.Undefined},
	}
	for _, tt := range tests {
		if got := BindingState(tt.typ); got != tt.want {
			t.Errorf("BindingState(%v) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	// Software backend is auto-registered via init()
	if !IsRegistered("software") {
		t.Error("software backend should be auto-registered")
	}

	b := Get("software")
	if b == nil {
		t.Fatal("Get(software) returned nil")
	}
	if b.Name() != "software" {
		t.Errorf("Get(software).Name() = %q, want %q", b.Name(), "software")
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	if b := Get("nonexistent"); b != nil {
		t.Error("Get(nonexistent) should return nil")
	}
}

func TestRegistryAvailable(t *testing.T) {
	found := false
	for _, name := range Available() {
		if name == "software" {
			found = true
			break
		}
	}
	if !found {
		t.Error("Available() should include 'software'")
	}
}

func TestRegistryDefault(t *testing.T) {
	b := Default()
	if b == nil {
		t.Fatal("Default() returned nil")
	}
	if b.Name() != "software" {
		t.Logf("Default() returned %q (may vary based on available backends)", b.Name())
	}
}

func TestRegistryMustDefault(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustDefault() panicked: %v", r)
		}
	}()
	if b := MustDefault(); b == nil {
		t.Error("MustDefault() returned nil")
	}
}

func TestRegistryInitDefault(t *testing.T) {
	b, err := InitDefault()
	if err != nil {
		t.Fatalf("InitDefault() error = %v", err)
	}
	defer b.Close()

	if _, err := b.CreateBuffer(gpucore.BufferDesc{Size: 4}); err != nil {
		t.Errorf("backend from InitDefault() not usable: %v", err)
	}
}

func TestRegistryUnregister(t *testing.T) {
	Register("test-backend", func() Backend { return NewSoftwareBackend() })
	if !IsRegistered("test-backend") {
		t.Error("test-backend should be registered")
	}

	Unregister("test-backend")
	if IsRegistered("test-backend") {
		t.Error("test-backend should be unregistered")
	}
}
