// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cmdstream encodes device-independent GPU commands into a compact
// byte stream and decodes them for a backend translator.
//
// # Wire format
//
// A stream is a concatenation of records. Each record is a one-byte Tag
// followed by a fixed-size little-endian payload; the payload size depends
// only on the tag (see RecordSize). Payloads hold plain values and handles,
// never pointers, so a stream can be stored, copied and replayed as bytes.
//
// # Typed view
//
// Producers append Command values with a Writer. Consumers either iterate
// typed Command values with a Parser, or call Walk with a Visitor, which
// switches on the tag and hands each record to the matching method without
// boxing it.
//
//	w := cmdstream.NewWriter(64 << 10)
//	w.Add(cmdstream.BeginComputePass{})
//	w.Add(cmdstream.SetComputePipeline{PSO: pso})
//	w.Add(cmdstream.Dispatch{X: 64, Y: 1, Z: 1})
//	w.Add(cmdstream.EndComputePass{})
//
//	err := cmdstream.Walk(cmdstream.NewParser(w.Bytes()), translator)
package cmdstream
