// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

import (
	"bufio"
	"io"

	"github.com/juju/errors"
)

// ErrStreamClosed is the cause of every error caused by the stream ending
// mid frame or during resynchronization.
var ErrStreamClosed = errors.New("end of input stream")

// IsStreamClosed reports whether err was caused by the stream ending.
func IsStreamClosed(err error) bool {
	return errors.Cause(err) == ErrStreamClosed
}

// Reader pulls headers and payloads from a byte stream and realigns it on
// frame boundaries. It remembers the last two bytes consumed so that a
// resync started right after a terminator skips nothing.
type Reader struct {
	r  io.Reader
	br io.ByteReader

	prev, last byte
}

// NewReader wraps r. Sources that are not byte readers get buffered.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{r: r}
	if br, ok := r.(io.ByteReader); ok {
		rd.br = br
	} else {
		b := bufio.NewReader(r)
		rd.r, rd.br = b, b
	}
	return rd
}

// ReadHeader reads exactly HeaderSize bytes. Any short read is fatal for the
// stream.
func (r *Reader) ReadHeader() (Header, []byte, error) {
	raw := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.r, raw)
	r.track(raw[:n])
	if err != nil {
		return Header{}, raw[:n], streamError(err, "read header")
	}
	return ParseHeader(raw), raw, nil
}

// ReadPayload reads n bytes. When the stream fails after some bytes arrived
// it returns the partial payload together with the error, so the caller can
// still report the frame.
func (r *Reader) ReadPayload(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(r.r, buf)
	r.track(buf[:got])
	if err != nil {
		return buf[:got], streamError(err, "read payload")
	}
	return buf, nil
}

// Aligned reports whether the last two bytes consumed were a terminator.
func (r *Reader) Aligned() bool {
	return r.prev == TerminatorHi && r.last == TerminatorLo
}

// SkipToBoundary consumes bytes until the last two bytes read are E5 1A and
// returns how many bytes it skipped.
func (r *Reader) SkipToBoundary() (int, error) {
	skipped := 0
	for !r.Aligned() {
		b, err := r.br.ReadByte()
		if err != nil {
			return skipped, streamError(err, "resync")
		}
		r.prev, r.last = r.last, b
		skipped++
	}
	return skipped, nil
}

func (r *Reader) track(b []byte) {
	switch n := len(b); {
	case n >= 2:
		r.prev, r.last = b[n-2], b[n-1]
	case n == 1:
		r.prev, r.last = r.last, b[0]
	}
}

func streamError(err error, op string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Annotate(ErrStreamClosed, op)
	}
	return errors.Annotate(err, op)
}
