// Command gpurtdemo records and submits frames on a gpurt backend and
// prints runtime statistics.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpurt"
	"github.com/gogpu/gpurt/backend"
	_ "github.com/gogpu/gpurt/backend/native"
	"github.com/gogpu/gpurt/cmdstream"
	"github.com/gogpu/gpurt/gpucore"
	"github.com/gogpu/gpurt/handle"
)

func main() {
	var (
		name    = flag.String("backend", "", "backend name (native, software); empty selects the best available")
		frames  = flag.Int("frames", 16, "number of frames to submit")
		size    = flag.Int("size", 64, "render target width and height")
		verbose = flag.Bool("v", false, "log runtime events")
	)
	flag.Parse()

	if *verbose {
		gpurt.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var opts []gpurt.Option
	if *name != "" {
		opts = append(opts, gpurt.WithBackendName(*name))
	}
	rt := gpurt.New(opts...)
	if err := rt.Initialize(); err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer rt.Destroy()

	dim := uint32(*size)
	readback, err := rt.CreateBuffer(gpucore.BufferDesc{
		Size:  uint64(alignedRow(dim)) * uint64(dim),
		Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead,
	})
	if err != nil {
		log.Fatalf("Failed to create readback buffer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < *frames; i++ {
		if err := drawFrame(ctx, rt, i, dim, readback); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
	}
	if err := rt.WaitIdle(ctx); err != nil {
		log.Fatalf("Failed to wait for GPU: %v", err)
	}
	elapsed := time.Since(start)

	pixel := make([]byte, 4)
	if err := rt.ReadBuffer(readback, 0, pixel); err != nil {
		log.Fatalf("Failed to read back: %v", err)
	}
	printStats(rt, elapsed, pixel)
}

// drawFrame uploads a counter, clears a render target to a color derived
// from the frame number and copies the target into readback.
func drawFrame(ctx context.Context, rt *gpurt.Context, i int, dim uint32, readback handle.Handle) error {
	f, err := rt.BeginFrame(ctx, "demo")
	if err != nil {
		return err
	}

	counter := make([]byte, 16)
	binary.LittleEndian.PutUint64(counter, uint64(i))
	src, err := f.Upload(counter)
	if err != nil {
		f.Discard()
		return err
	}
	dst, err := f.AcquireBuffer(gpucore.BufferDesc{
		Size:  16,
		Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageStorage,
	})
	if err != nil {
		f.Discard()
		return err
	}
	f.CopyBuffer(src.Buffer, dst, src.Offset, 0, src.Size)

	target, err := f.AcquireRenderTarget(gpucore.RenderTargetDesc{
		Width: dim, Height: dim, Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		f.Discard()
		return err
	}
	t := float32(i%8) / 7
	pass := cmdstream.BeginRenderPass{Load: cmdstream.LoadOpClear, ClearColor: [4]float32{t, 0.5, 1 - t, 1}}
	pass.Color[0] = target
	f.BeginRenderPass(pass)
	f.EndRenderPass()
	f.CopyTextureToBuffer(cmdstream.CopyTextureToBuffer{
		Src:         target,
		Size:        cmdstream.Extent{Width: dim, Height: dim, Depth: 1},
		Dst:         readback,
		BytesPerRow: alignedRow(dim),
	})

	_, err = rt.Submit(f)
	return err
}

func alignedRow(width uint32) uint32 {
	return (width*4 + 255) &^ 255
}

func printStats(rt *gpurt.Context, elapsed time.Duration, pixel []byte) {
	s := rt.Stats()
	log.Printf("Backend %s: %d submissions in %v", rt.Backend().Name(), s.Submissions, elapsed)
	log.Printf("Epochs: cpu=%d gpu=%d, barriers=%d", s.CPUEpoch, s.GPUEpoch, s.Barriers)
	log.Printf("Buffers: %d entries, %.0f%% hits", s.Buffers.Entries, s.Buffers.HitRate*100)
	log.Printf("Render targets: %d entries, %.0f%% hits", s.RenderTargets.Entries, s.RenderTargets.HitRate*100)
	log.Printf("Last pixel: %v", pixel)
	if _, ok := rt.Backend().(*backend.SoftwareBackend); ok {
		log.Printf("Software backend: no GPU work was executed")
	}
}
