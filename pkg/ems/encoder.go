// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

import (
	"time"

	"github.com/juju/errors"
)

// MaxBodySize is the largest body a single frame can carry.
const MaxBodySize = MaxFrameLength - TrailerSize

// EncodeFrame builds the wire form of a frame carrying body: the header with
// its length set, the body, the checksum, a break marker and the terminator.
func EncodeFrame(h Header, body []byte) ([]byte, error) {
	if len(body) > MaxBodySize {
		return nil, errors.NotValidf("body of %d bytes (max %d)", len(body), MaxBodySize)
	}
	h.Length = uint16(len(body) + TrailerSize)

	out := make([]byte, 0, HeaderSize+int(h.Length))
	out = h.AppendBinary(out)
	out = append(out, body...)
	return append(out, CRC8(body), BreakMarker, TerminatorHi, TerminatorLo), nil
}

// Encoder stamps frames the way a gateway does: wall clock seconds and a
// millisecond tick count since the encoder started.
type Encoder struct {
	start time.Time
	now   func() time.Time
}

// NewEncoder creates an encoder whose tick counter starts now.
func NewEncoder() *Encoder {
	return &Encoder{start: time.Now(), now: time.Now}
}

// Header returns a header for a frame sent at the current time.
func (e *Encoder) Header() Header {
	now := e.now()
	return Header{
		Timestamp: uint32(now.Unix()),
		Ticks:     uint32(now.Sub(e.start).Milliseconds()),
	}
}

// Encode builds a stamped frame carrying body.
func (e *Encoder) Encode(body []byte) ([]byte, error) {
	return EncodeFrame(e.Header(), body)
}
