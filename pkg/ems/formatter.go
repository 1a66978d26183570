// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

import (
	"fmt"
	"strings"
)

// HexDump renders b as upper case hex bytes separated by spaces.
func HexDump(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

// FormatFrame renders a frame for the log collector: the header summary, the
// raw header bytes and the payload bytes.
func FormatFrame(f *Frame) string {
	return fmt.Sprintf("%s %s|%s", f.Header, HexDump(f.RawHeader), HexDump(f.Payload))
}

// FormatTelegram formats a telegram into a human-readable line
func FormatTelegram(t *Telegram) string {
	timestamp := t.ReceivedAt.Format("15:04:05.000")
	return fmt.Sprintf("[%s] %s len=%d crc=%02X: %s",
		timestamp, t.Header, len(t.Body), t.CRC, HexDump(t.Body))
}

// FormatRejection formats a rejected frame into a human-readable line
func FormatRejection(e *FrameError) string {
	if e.Reason == ReasonShortFrames {
		return e.Error()
	}
	return fmt.Sprintf("%s\n  %s", e.Error(), FormatFrame(&e.Frame))
}
