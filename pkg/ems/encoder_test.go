// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

import (
	"bytes"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameLayout(t *testing.T) {
	body := []byte{0x08, 0x00, 0x18, 0x00, 0x1F}
	frame, err := EncodeFrame(Header{Timestamp: 1, Ticks: 2, Length: 99}, body)
	require.NoError(t, err)
	require.Len(t, frame, HeaderSize+len(body)+TrailerSize)

	h := ParseHeader(frame)
	assert.Equal(t, uint32(1), h.Timestamp)
	assert.Equal(t, uint32(2), h.Ticks)
	assert.Equal(t, uint16(len(body)+TrailerSize), h.Length, "declared length is recomputed")

	payload := frame[HeaderSize:]
	assert.Equal(t, body, payload[:len(body)])
	assert.Equal(t, CRC8(body), payload[len(body)])
	assert.Equal(t, BreakMarker, payload[len(body)+1])
	assert.Equal(t, []byte{TerminatorHi, TerminatorLo}, payload[len(body)+2:])
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(Header{}, make([]byte, MaxBodySize+1))
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))

	_, err = EncodeFrame(Header{}, make([]byte, MaxBodySize))
	assert.NoError(t, err)
}

func TestEncoderStampsFrames(t *testing.T) {
	start := time.Unix(1700000000, 0)
	now := start
	e := &Encoder{start: start, now: func() time.Time { return now }}

	now = start.Add(1500 * time.Millisecond)
	frame, err := e.Encode([]byte{1, 2, 3})
	require.NoError(t, err)

	h := ParseHeader(frame)
	assert.Equal(t, uint32(1700000001), h.Timestamp)
	assert.Equal(t, uint32(1500), h.Ticks)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bodies := [][]byte{
		{0x00, 0x00, 0x00},
		{0xE5, 0x1A, 0xE5, 0x1A},
		bytes.Repeat([]byte{0xFF}, MaxBodySize),
	}
	for _, body := range bodies {
		frame, err := EncodeFrame(Header{Timestamp: 42}, body)
		require.NoError(t, err)

		d := NewDecoder(bytes.NewReader(frame))
		tg, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, body, tg.Body)
		assert.Equal(t, uint32(42), tg.Header.Timestamp)
	}
}
