// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Decoder turns a gateway byte stream into validated telegrams. It handles
// one session: once Next returns a stream error the decoder is spent.
type Decoder struct {
	rd    *Reader
	log   logrus.FieldLogger
	stats *Statistics

	minSize   int
	maxShort  int
	verbosity func() int
	now       func() time.Time

	shortRun int
	resync   bool
	fatal    error
}

// Option configures a Decoder
type Option func(*Decoder)

// WithLogger sets the logger used for frame dumps and checksum debug output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Decoder) { d.log = l }
}

// WithStatistics records every frame outcome in s.
func WithStatistics(s *Statistics) Option {
	return func(d *Decoder) { d.stats = s }
}

// WithMinTelegramSize sets the smallest body that is checksummed and emitted.
func WithMinTelegramSize(n int) Option {
	return func(d *Decoder) { d.minSize = n }
}

// WithMaxShortFrames bounds the run of consecutive short frames Next skips
// before reporting it. Zero means unbounded.
func WithMaxShortFrames(n int) Option {
	return func(d *Decoder) { d.maxShort = n }
}

// WithVerbosity sets the source of the current verbosity level.
func WithVerbosity(level func() int) Option {
	return func(d *Decoder) { d.verbosity = level }
}

// WithClock overrides the clock stamping received telegrams.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// NewDecoder creates a decoder reading frames from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	d := &Decoder{
		rd:        NewReader(r),
		log:       discard,
		minSize:   DefaultMinTelegramSize,
		maxShort:  DefaultMaxShortFrames,
		verbosity: func() int { return VerbosityQuiet },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next accepted telegram.
//
// A *FrameError reports a rejected frame; the stream is realigned on the next
// call. Any other error is fatal for the stream and is returned again by
// every later call.
func (d *Decoder) Next() (*Telegram, error) {
	if d.fatal != nil {
		return nil, d.fatal
	}
	if d.resync {
		skipped, err := d.rd.SkipToBoundary()
		d.stats.RecordResync(skipped)
		if err != nil {
			d.fatal = err
			return nil, err
		}
		d.resync = false
		if skipped > 0 {
			d.log.Debugf("resynchronized after skipping %d bytes", skipped)
		}
	}

	for {
		tg, err := d.readTelegram()
		switch {
		case err == nil:
			d.shortRun = 0
			d.stats.RecordTelegram()
			return tg, nil

		case err == errShortTelegram:
			d.stats.RecordShortFrame()
			d.shortRun++
			if d.maxShort > 0 && d.shortRun >= d.maxShort {
				run := d.shortRun
				d.shortRun = 0
				return nil, &FrameError{Reason: ReasonShortFrames, Got: run}
			}

		default:
			d.shortRun = 0
			if fe, ok := err.(*FrameError); ok {
				d.stats.RecordRejection(fe.Reason)
				d.resync = fe.Resync()
				return nil, fe
			}
			if d.fatal == nil {
				d.fatal = err
			}
			return nil, err
		}
	}
}

// Reader exposes the underlying frame reader.
func (d *Decoder) Reader() *Reader {
	return d.rd
}

func (d *Decoder) readTelegram() (*Telegram, error) {
	h, raw, err := d.rd.ReadHeader()
	if err != nil {
		return nil, err
	}
	frame := Frame{Header: h, RawHeader: raw}
	if err := ValidateHeader(&frame); err != nil {
		d.dump(&frame)
		return nil, err
	}

	frame.Payload, err = d.rd.ReadPayload(int(h.Length))
	if err != nil {
		if len(frame.Payload) == 0 {
			return nil, err
		}
		// The partial frame is still reported; the stream error surfaces on
		// the following call.
		d.log.Infof("incomplete payload: got %d of %d bytes", len(frame.Payload), h.Length)
		d.fatal = err
	}
	d.dump(&frame)

	body, crc, err := Validate(&frame, d.minSize)
	if err != nil {
		return nil, err
	}
	if d.verbosity() >= VerbosityCRC {
		d.log.Debugf("computed CRC: %02X", crc)
	}
	return &Telegram{
		Header:     h,
		Body:       body,
		CRC:        crc,
		ReceivedAt: d.now(),
	}, nil
}

func (d *Decoder) dump(f *Frame) {
	if d.verbosity() >= VerbosityFrames {
		d.log.Debug(FormatFrame(f))
	}
}
