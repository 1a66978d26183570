// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Header is the fixed prefix the gateway writes before every payload.
type Header struct {
	Timestamp uint32 // gateway clock, unix seconds
	Ticks     uint32 // free running millisecond counter
	Length    uint16 // payload bytes that follow, trailer included
}

// ParseHeader decodes a header from the first HeaderSize bytes of b.
func ParseHeader(b []byte) Header {
	_ = b[HeaderSize-1]
	return Header{
		Timestamp: binary.LittleEndian.Uint32(b[0:4]),
		Ticks:     binary.LittleEndian.Uint32(b[4:8]),
		Length:    binary.LittleEndian.Uint16(b[8:10]),
	}
}

// AppendBinary appends the wire form of the header to b.
func (h Header) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Timestamp)
	b = binary.LittleEndian.AppendUint32(b, h.Ticks)
	return binary.LittleEndian.AppendUint16(b, h.Length)
}

// Valid reports whether the declared length is within bounds.
func (h Header) Valid() bool {
	return h.Length >= MinFrameLength && h.Length <= MaxFrameLength
}

// BodyLength is the telegram body size implied by the declared length. It is
// negative for declared lengths below TrailerSize.
func (h Header) BodyLength() int {
	return int(h.Length) - TrailerSize
}

// Time returns the gateway timestamp.
func (h Header) Time() time.Time {
	return time.Unix(int64(h.Timestamp), 0).UTC()
}

// String renders the header the way it is written to the log collector:
// date, time, seconds.millis of the tick counter and the declared length.
// The hour is not zero padded.
func (h Header) String() string {
	t := h.Time()
	return fmt.Sprintf("%s %d:%s %d.%03d {%d}",
		t.Format("06-01-02"), t.Hour(), t.Format("04:05"),
		h.Ticks/1000, h.Ticks%1000, h.Length)
}

// Frame is one header and payload as read from the stream.
type Frame struct {
	Header    Header
	RawHeader []byte
	Payload   []byte
}

// Telegram is the body of an accepted frame with its header attached.
type Telegram struct {
	Header     Header
	Body       []byte
	CRC        byte
	ReceivedAt time.Time
}

// Len returns the body length.
func (t *Telegram) Len() int {
	return len(t.Body)
}
