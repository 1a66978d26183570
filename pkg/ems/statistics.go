// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

import (
	"fmt"
	"sync"
	"time"
)

// Counters holds the frame statistics at one point in time.
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	TotalFrames uint64 // every header read, whatever the outcome
	Telegrams   uint64
	ShortFrames uint64

	InvalidHeaders     uint64
	LengthMismatches   uint64
	MissingTerminators uint64
	InvalidBodyLengths uint64
	CRCErrors          uint64
	ShortFrameRuns     uint64

	Resyncs      uint64
	SkippedBytes uint64
	Connects     uint64

	// Rates (calculated)
	TelegramRate float64 // telegrams/sec
	ErrorRate    float64 // rejections/sec
}

// Rejections is the number of frames rejected for any reason.
func (c *Counters) Rejections() uint64 {
	return c.InvalidHeaders + c.LengthMismatches + c.MissingTerminators + c.InvalidBodyLengths + c.CRCErrors
}

// Statistics tracks frame outcomes. It is safe for concurrent use and a nil
// *Statistics ignores every update.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.Reset()
	return s
}

func (s *Statistics) update(fn func(c *Counters)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	fn(&s.c)
	s.c.LastUpdateTime = time.Now()
	s.mu.Unlock()
}

// RecordTelegram counts an accepted frame.
func (s *Statistics) RecordTelegram() {
	s.update(func(c *Counters) {
		c.TotalFrames++
		c.Telegrams++
	})
}

// RecordShortFrame counts a well formed frame below the minimum size.
func (s *Statistics) RecordShortFrame() {
	s.update(func(c *Counters) {
		c.TotalFrames++
		c.ShortFrames++
	})
}

// RecordRejection counts a rejected frame.
func (s *Statistics) RecordRejection(r Reason) {
	s.update(func(c *Counters) {
		if r != ReasonShortFrames {
			c.TotalFrames++
		}
		switch r {
		case ReasonInvalidHeader:
			c.InvalidHeaders++
		case ReasonLengthMismatch:
			c.LengthMismatches++
		case ReasonMissingTerminator:
			c.MissingTerminators++
		case ReasonInvalidBodyLength:
			c.InvalidBodyLengths++
		case ReasonCRCMismatch:
			c.CRCErrors++
		case ReasonShortFrames:
			c.ShortFrameRuns++
		}
	})
}

// RecordResync counts one resynchronization and the bytes it skipped.
func (s *Statistics) RecordResync(skipped int) {
	s.update(func(c *Counters) {
		c.Resyncs++
		c.SkippedBytes += uint64(skipped)
	})
}

// RecordConnect counts a successful connect to the gateway.
func (s *Statistics) RecordConnect() {
	s.update(func(c *Counters) { c.Connects++ })
}

// Snapshot returns a copy of the counters with the rates calculated.
func (s *Statistics) Snapshot() Counters {
	if s == nil {
		return Counters{}
	}
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.TelegramRate = float64(c.Telegrams) / elapsed
		c.ErrorRate = float64(c.Rejections()) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var validPercent, rejectPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.Telegrams) * 100.0 / float64(c.TotalFrames)
		rejectPercent = float64(c.Rejections()) * 100.0 / float64(c.TotalFrames)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", c.TotalFrames)
	result += fmt.Sprintf("Telegrams:       %8d (%.1f%%)\n", c.Telegrams, validPercent)
	if c.ShortFrames > 0 {
		result += fmt.Sprintf("Short Frames:    %8d\n", c.ShortFrames)
	}
	if rejections := c.Rejections(); rejections > 0 {
		result += fmt.Sprintf("Rejected:        %8d (%.1f%%)\n", rejections, rejectPercent)
		if c.InvalidHeaders > 0 {
			result += fmt.Sprintf("  Invalid Header:   %5d\n", c.InvalidHeaders)
		}
		if c.LengthMismatches > 0 {
			result += fmt.Sprintf("  Length Mismatch:  %5d\n", c.LengthMismatches)
		}
		if c.MissingTerminators > 0 {
			result += fmt.Sprintf("  No Terminator:    %5d\n", c.MissingTerminators)
		}
		if c.InvalidBodyLengths > 0 {
			result += fmt.Sprintf("  Bad Body Length:  %5d\n", c.InvalidBodyLengths)
		}
		if c.CRCErrors > 0 {
			result += fmt.Sprintf("  CRC Errors:       %5d\n", c.CRCErrors)
		}
	}
	if c.Resyncs > 0 {
		result += fmt.Sprintf("Resyncs:         %8d (%d bytes skipped)\n", c.Resyncs, c.SkippedBytes)
	}
	if c.Connects > 1 {
		result += fmt.Sprintf("Reconnects:      %8d\n", c.Connects-1)
	}

	result += fmt.Sprintf("Telegram Rate:   %8.1f tgs/sec\n", c.TelegramRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.mu.Lock()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
	s.mu.Unlock()
}
