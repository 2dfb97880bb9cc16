// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdstream

import "fmt"

// Writer appends commands to a fixed-capacity byte buffer.
//
// The buffer never grows: writing past the capacity is a contract violation
// and panics. Use Remaining or TryAdd when the caller can recover by
// submitting early.
type Writer struct {
	enc   encoder
	limit int
	count int
}

// NewWriter returns a writer with room for capacity bytes.
func NewWriter(capacity int) *Writer {
	return &Writer{enc: encoder{b: make([]byte, 0, capacity)}, limit: capacity}
}

// Add appends c. It panics if c does not fit in the remaining capacity.
func (w *Writer) Add(c Command) {
	if !w.TryAdd(c) {
		panic(fmt.Sprintf("cmdstream: %s record of %d bytes overflows stream (%d of %d bytes left)",
			c.Tag(), RecordSize(c.Tag()), w.Remaining(), w.limit))
	}
}

// TryAdd appends c and reports whether it fit.
func (w *Writer) TryAdd(c Command) bool {
	n := RecordSize(c.Tag())
	if n < 0 {
		panic(fmt.Sprintf("cmdstream: unknown tag %d", c.Tag()))
	}
	if n > w.Remaining() {
		return false
	}
	w.enc.u8(uint8(c.Tag()))
	c.encode(&w.enc)
	w.count++
	return true
}

// Remaining returns the free capacity in bytes.
func (w *Writer) Remaining() int { return w.limit - len(w.enc.b) }

// Cap returns the capacity in bytes.
func (w *Writer) Cap() int { return w.limit }

// Len returns the number of encoded bytes.
func (w *Writer) Len() int { return len(w.enc.b) }

// Count returns the number of commands written since the last Reset.
func (w *Writer) Count() int { return w.count }

// Bytes returns the encoded stream. It aliases the writer's buffer and is
// valid until the next Reset.
func (w *Writer) Bytes() []byte { return w.enc.b }

// Reset rewinds the writer, keeping its buffer.
func (w *Writer) Reset() {
	w.enc.b = w.enc.b[:0]
	w.count = 0
}
