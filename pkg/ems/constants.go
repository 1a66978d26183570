// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ems frames, validates and resynchronizes the EMS telegram stream
// produced by a bus gateway.
//
// Every frame is a 10 byte little-endian header followed by a payload of the
// declared length: the telegram body, the bus checksum, the UART break marker
// and the fixed terminator E5 1A. The stream carries no start marker, so
// alignment is kept through the declared lengths and recovered by scanning
// forward to the next terminator.
package ems

// Frame layout
const (
	HeaderSize  = 10 // sntp timestamp, tick count, declared length
	TrailerSize = 4  // checksum, break marker, terminator

	MinFrameLength = 2   // smallest accepted declared length
	MaxFrameLength = 128 // largest accepted declared length
)

// Terminator bytes closing every payload
const (
	TerminatorHi byte = 0xE5
	TerminatorLo byte = 0x1A
)

// BreakMarker is the byte the gateway writes for a UART break. Its value is
// never validated on the receive side.
const BreakMarker byte = 0x00

// Decoder defaults
const (
	DefaultMinTelegramSize = 3
	DefaultMaxShortFrames  = 64
)

// Verbosity levels understood by the decoder
const (
	VerbosityQuiet  = 0
	VerbosityCRC    = 1 // log the computed checksum of accepted frames
	VerbosityFrames = 2 // dump every frame before validation
)

// crcPolynomial is the feedback value of the bus checksum.
const crcPolynomial byte = 0x0C
