// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdstream

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpurt/handle"
	"github.com/gogpu/gpurt/state"
)

var (
	testRT     = handle.New(handle.KindRenderTarget, 1, 3)
	testBuf    = handle.New(handle.KindBuffer, 2, 5)
	testTex    = handle.New(handle.KindTexture, 1, 9)
	testPSO    = handle.New(handle.KindGraphicsPSO, 4, 1)
	testView   = handle.New(handle.KindGraphicsShaderView, 1, 2)
	testCompPS = handle.New(handle.KindComputePSO, 1, 0)
)

// allCommands returns one non-zero sample of every record type.
func allCommands() []Command {
	return []Command{
		BeginRenderPass{
			Color:        [MaxColorTargets]handle.Handle{testRT},
			Load:         LoadOpClear,
			Store:        StoreOpStore,
			ClearColor:   [4]float32{0.1, 0.2, 0.3, 1},
			ClearDepth:   1,
			ClearStencil: 7,
		},
		SetGraphicsPipeline{PSO: testPSO},
		SetShaderView{Slot: 1, View: testView},
		SetVertexBuffer{Slot: 0, Buffer: testBuf, Offset: 256},
		SetIndexBuffer{Buffer: testBuf, Format: IndexFormatUint32, Offset: 1024},
		SetViewport{X: 0, Y: 0, Width: 800, Height: 600, MinDepth: 0, MaxDepth: 1},
		SetScissor{X: 10, Y: 20, Width: 30, Height: 40},
		Draw{VertexCount: 3, InstanceCount: 1},
		DrawIndexed{IndexCount: 6, InstanceCount: 2, FirstIndex: 3, BaseVertex: -4, FirstInstance: 1},
		EndRenderPass{},
		BeginComputePass{},
		SetComputePipeline{PSO: testCompPS},
		Dispatch{X: 64, Y: 2, Z: 1},
		EndComputePass{},
		CopyBuffer{Src: testBuf, Dst: testBuf, SrcOffset: 8, DstOffset: 16, Size: 32},
		CopyBufferToTexture{Src: testBuf, Offset: 64, BytesPerRow: 256, RowsPerImage: 4, Dst: testTex, MipLevel: 1, Size: Extent{64, 4, 1}},
		CopyTextureToBuffer{Src: testTex, MipLevel: 0, Size: Extent{2, 2, 1}, Dst: testBuf, Offset: 128, BytesPerRow: 256, RowsPerImage: 2},
		Transition{Resource: testTex, Before: state.CopyDst, After: state.ShaderRead},
	}
}

func TestEveryTagHasSample(t *testing.T) {
	seen := make(map[Tag]bool)
	for _, c := range allCommands() {
		seen[c.Tag()] = true
	}
	for tag := TagInvalid + 1; tag < tagCount; tag++ {
		if !seen[tag] {
			t.Errorf("no sample command for %s", tag)
		}
		if RecordSize(tag) < 1 {
			t.Errorf("RecordSize(%s) = %d", tag, RecordSize(tag))
		}
	}
	if RecordSize(TagInvalid) != -1 || RecordSize(tagCount) != -1 {
		t.Error("RecordSize should reject invalid tags")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	cmds := allCommands()
	w := NewWriter(4096)
	for _, c := range cmds {
		w.Add(c)
	}
	if w.Count() != len(cmds) {
		t.Fatalf("Count() = %d, want %d", w.Count(), len(cmds))
	}

	p := NewParser(w.Bytes())
	var got []Command
	for p.Next() {
		got = append(got, p.Command())
	}
	if err := p.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != len(cmds) {
		t.Fatalf("parsed %d commands, want %d", len(got), len(cmds))
	}
	for i := range cmds {
		if got[i] != cmds[i] {
			t.Errorf("command %d = %#v, want %#v", i, got[i], cmds[i])
		}
	}
}

// Re-encoding the parsed commands reproduces the stream byte for byte.
func TestStreamPayloadsByteIdentical(t *testing.T) {
	w := NewWriter(4096)
	for _, c := range allCommands() {
		w.Add(c)
	}
	p := NewParser(w.Bytes())
	w2 := NewWriter(4096)
	for p.Next() {
		w2.Add(p.Command())
	}
	if !bytes.Equal(w.Bytes(), w2.Bytes()) {
		t.Error("re-encoded stream differs from the original")
	}
}

func TestParserResetRestarts(t *testing.T) {
	w := NewWriter(256)
	w.Add(Draw{VertexCount: 3, InstanceCount: 1})
	w.Add(Dispatch{X: 1, Y: 1, Z: 1})

	p := NewParser(w.Bytes())
	for p.Next() {
	}
	if p.Next() {
		t.Fatal("exhausted parser yielded another command")
	}
	if p.Offset() != w.Len() {
		t.Errorf("Offset() at end = %d, want %d", p.Offset(), w.Len())
	}
	p.Reset()
	if p.Offset() != 0 {
		t.Errorf("Offset() after Reset = %d, want 0", p.Offset())
	}
	if !p.Next() {
		t.Fatal("Next() = false after Reset")
	}
	if p.Offset() != RecordSize(TagDraw) {
		t.Errorf("Offset() after first record = %d, want %d", p.Offset(), RecordSize(TagDraw))
	}
	if _, ok := p.Command().(Draw); !ok {
		t.Errorf("first command after Reset = %T, want Draw", p.Command())
	}
}

func TestWriterOverflowPanics(t *testing.T) {
	w := NewWriter(RecordSize(TagDraw) + 2)
	w.Add(Draw{VertexCount: 3})

	if w.TryAdd(Draw{}) {
		t.Fatal("TryAdd succeeded without room")
	}
	if w.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", w.Remaining())
	}

	defer func() {
		r := recover()
		msg, _ := r.(string)
		if !strings.Contains(msg, "overflows") {
			t.Fatalf("panic = %v, want overflow message", r)
		}
	}()
	w.Add(Dispatch{})
}

func TestWriterReset(t *testing.T) {
	w := NewWriter(128)
	w.Add(EndRenderPass{})
	w.Add(Draw{})
	w.Reset()
	if w.Len() != 0 || w.Count() != 0 || w.Remaining() != 128 {
		t.Errorf("after Reset: Len=%d Count=%d Remaining=%d", w.Len(), w.Count(), w.Remaining())
	}
}

func TestParserErrors(t *testing.T) {
	w := NewWriter(128)
	w.Add(Draw{VertexCount: 1})
	full := w.Bytes()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"unknown tag", []byte{0xEE, 1, 2}, ErrUnknownTag},
		{"invalid tag", []byte{0}, ErrUnknownTag},
		{"truncated", full[:len(full)-3], ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(tt.data)
			for p.Next() {
			}
			if !errors.Is(p.Err(), tt.want) {
				t.Errorf("Err() = %v, want %v", p.Err(), tt.want)
			}
			if _, err := Count(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Count() error = %v, want %v", err, tt.want)
			}
		})
	}
}

type recordingVisitor struct {
	NopVisitor
	draws      []Draw
	dispatches int
	order      []Tag
}

func (v *recordingVisitor) Draw(c *Draw) {
	v.draws = append(v.draws, *c)
	v.order = append(v.order, TagDraw)
}

func (v *recordingVisitor) Dispatch(*Dispatch) {
	v.dispatches++
	v.order = append(v.order, TagDispatch)
}

func (v *recordingVisitor) Transition(*Transition) {
	v.order = append(v.order, TagTransition)
}

func TestWalkDispatchesInOrder(t *testing.T) {
	w := NewWriter(512)
	w.Add(Transition{Resource: testTex, Before: state.Undefined, After: state.RenderTarget})
	w.Add(Draw{VertexCount: 3, InstanceCount: 1})
	w.Add(SetScissor{Width: 1, Height: 1})
	w.Add(Dispatch{X: 1, Y: 1, Z: 1})
	w.Add(Draw{VertexCount: 6, InstanceCount: 1})

	v := &recordingVisitor{}
	if err := Walk(NewParser(w.Bytes()), v); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []Tag{TagTransition, TagDraw, TagDispatch, TagDraw}
	if len(v.order) != len(want) {
		t.Fatalf("visited %v, want %v", v.order, want)
	}
	for i := range want {
		if v.order[i] != want[i] {
			t.Errorf("visit %d = %s, want %s", i, v.order[i], want[i])
		}
	}
	if v.draws[1].VertexCount != 6 {
		t.Errorf("second draw VertexCount = %d, want 6", v.draws[1].VertexCount)
	}
}

func TestVisitMatchesWalk(t *testing.T) {
	w := NewWriter(4096)
	for _, c := range allCommands() {
		w.Add(c)
	}

	walked := &recordingVisitor{}
	if err := Walk(NewParser(w.Bytes()), walked); err != nil {
		t.Fatal(err)
	}
	visited := &recordingVisitor{}
	p := NewParser(w.Bytes())
	for p.Next() {
		Visit(p.Command(), visited)
	}
	if len(walked.order) != len(visited.order) {
		t.Fatalf("Walk visited %d, Visit %d", len(walked.order), len(visited.order))
	}
}

func BenchmarkWriteParse(b *testing.B) {
	w := NewWriter(64 << 10)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		w.Reset()
		for j := 0; j < 256; j++ {
			w.Add(SetVertexBuffer{Slot: 0, Buffer: testBuf})
			w.Add(Draw{VertexCount: 3, InstanceCount: 1})
		}
		_ = Walk(NewParser(w.Bytes()), NopVisitor{})
	}
}
