// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdstream

import (
	"errors"
	"fmt"
)

// Parse errors.
var (
	// ErrUnknownTag is returned for a record whose tag has no size entry.
	ErrUnknownTag = errors.New("cmdstream: unknown tag")

	// ErrTruncated is returned when the stream ends inside a record.
	ErrTruncated = errors.New("cmdstream: truncated record")
)

// Parser reads commands from an encoded stream in a single forward pass.
//
// Typical use:
//
//	p := cmdstream.NewParser(w.Bytes())
//	for p.Next() {
//		handle(p.Command())
//	}
//	if err := p.Err(); err != nil {
//		...
//	}
//
// Once Next has returned false the parser stays exhausted until Reset.
type Parser struct {
	data []byte
	off  int
	cmd  Command
	err  error
}

// NewParser returns a parser over data. data is not copied.
func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

// Next decodes the next command. It returns false at the end of the stream
// or on error.
func (p *Parser) Next() bool {
	p.cmd = nil
	if p.err != nil || p.off >= len(p.data) {
		return false
	}
	t, payload, err := p.record()
	if err != nil {
		p.err = err
		return false
	}
	d := decoder{b: payload}
	p.cmd = decodeRecord(t, &d)
	return true
}

// record slices the next record and advances past it.
func (p *Parser) record() (Tag, []byte, error) {
	t := Tag(p.data[p.off])
	n := RecordSize(t)
	if n < 0 {
		return t, nil, fmt.Errorf("%w %d at offset %d", ErrUnknownTag, t, p.off)
	}
	if p.off+n > len(p.data) {
		return t, nil, fmt.Errorf("%w: %s at offset %d needs %d bytes, %d left",
			ErrTruncated, t, p.off, n, len(p.data)-p.off)
	}
	payload := p.data[p.off+1 : p.off+n]
	p.off += n
	return t, payload, nil
}

// Command returns the command decoded by the last successful Next.
func (p *Parser) Command() Command { return p.cmd }

// Offset returns the byte offset of the next record.
func (p *Parser) Offset() int { return p.off }

// Err returns the first error encountered.
func (p *Parser) Err() error { return p.err }

// Reset rewinds the parser to the start of its stream.
func (p *Parser) Reset() {
	p.off = 0
	p.cmd = nil
	p.err = nil
}

// Count returns the number of records in data, validating every tag and
// record boundary.
func Count(data []byte) (int, error) {
	p := Parser{data: data}
	n := 0
	for p.off < len(p.data) {
		if _, _, err := p.record(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
