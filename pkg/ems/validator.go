// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

import (
	"fmt"

	"github.com/juju/errors"
)

// Reason classifies a rejected frame.
type Reason int

const (
	ReasonInvalidHeader Reason = iota
	ReasonLengthMismatch
	ReasonMissingTerminator
	ReasonInvalidBodyLength
	ReasonCRCMismatch
	ReasonShortFrames
)

// String returns a short name for the reason
func (r Reason) String() string {
	switch r {
	case ReasonInvalidHeader:
		return "invalid header"
	case ReasonLengthMismatch:
		return "length mismatch"
	case ReasonMissingTerminator:
		return "missing terminator"
	case ReasonInvalidBodyLength:
		return "invalid body length"
	case ReasonCRCMismatch:
		return "CRC mismatch"
	case ReasonShortFrames:
		return "short frames"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// FrameError is returned for every frame the validator rejects. The stream
// stays usable; the decoder resynchronizes before reading the next frame
// unless Resync reports false.
type FrameError struct {
	Reason Reason
	Frame  Frame

	// Reason specific values: declared vs read length, computed vs received
	// checksum, or the number of consecutive short frames.
	Want, Got int
}

func (e *FrameError) Error() string {
	switch e.Reason {
	case ReasonInvalidHeader:
		return fmt.Sprintf("invalid EMS package header: declared length %d", e.Frame.Header.Length)
	case ReasonLengthMismatch:
		return fmt.Sprintf("length mismatch: %d vs %d", e.Want, e.Got)
	case ReasonMissingTerminator:
		return "missing end of frame signature"
	case ReasonInvalidBodyLength:
		return fmt.Sprintf("invalid body length %d", e.Got)
	case ReasonCRCMismatch:
		return fmt.Sprintf("CRC mismatch: %02X vs %02X", e.Want, e.Got)
	case ReasonShortFrames:
		return fmt.Sprintf("%d consecutive frames below minimum telegram size", e.Got)
	default:
		return e.Reason.String()
	}
}

// Resync reports whether the stream must be realigned after this error.
func (e *FrameError) Resync() bool {
	return e.Reason != ReasonShortFrames
}

// IsRejection reports whether err is a frame rejection rather than a stream
// failure.
func IsRejection(err error) bool {
	_, ok := errors.Cause(err).(*FrameError)
	return ok
}

// AsFrameError returns the *FrameError behind err, if any.
func AsFrameError(err error) (*FrameError, bool) {
	fe, ok := errors.Cause(err).(*FrameError)
	return fe, ok
}

// errShortTelegram marks a well formed frame whose body is too small to be a
// telegram. It never leaves the package.
var errShortTelegram = errors.New("telegram below minimum size")

// ValidateHeader checks the declared length bounds.
func ValidateHeader(f *Frame) error {
	if !f.Header.Valid() {
		return &FrameError{Reason: ReasonInvalidHeader, Frame: *f, Got: int(f.Header.Length)}
	}
	return nil
}

// Validate applies the payload checks in order and stops at the first
// failure. On success it returns the telegram body and its checksum.
// Bodies shorter than minSize skip the checksum and yield errShortTelegram.
func Validate(f *Frame, minSize int) ([]byte, byte, error) {
	if err := ValidateHeader(f); err != nil {
		return nil, 0, err
	}

	declared := int(f.Header.Length)
	if len(f.Payload) != declared {
		return nil, 0, &FrameError{Reason: ReasonLengthMismatch, Frame: *f, Want: declared, Got: len(f.Payload)}
	}

	n := len(f.Payload)
	if f.Payload[n-2] != TerminatorHi || f.Payload[n-1] != TerminatorLo {
		return nil, 0, &FrameError{Reason: ReasonMissingTerminator, Frame: *f}
	}

	bodyLen := f.Header.BodyLength()
	if bodyLen < 0 {
		return nil, 0, &FrameError{Reason: ReasonInvalidBodyLength, Frame: *f, Got: bodyLen}
	}
	if bodyLen < minSize {
		return nil, 0, errShortTelegram
	}

	body := f.Payload[:bodyLen]
	received := f.Payload[bodyLen]
	computed := CRC8(body)
	if computed != received {
		return nil, 0, &FrameError{Reason: ReasonCRCMismatch, Frame: *f, Want: int(computed), Got: int(received)}
	}
	return body, received, nil
}
