// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/emslink/pkg/ems"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{59000, "59 seconds"},
		{60000, "1 minute"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{3661000, "1 hour, 1 minute, and 1 second"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
		{172800000, "2 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.ms), "ms=%d", tt.ms)
	}
}

func update(t *testing.T, m model, msg interface{}) model {
	t.Helper()
	next, _ := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm
}

func TestModelTracksLink(t *testing.T) {
	m := initialModel("gw:23", 1, false, ems.NewStatistics())
	assert.Contains(t, m.View(), "Connecting...")

	m = update(t, m, linkMsg{connected: true, addr: "gw:23"})
	assert.True(t, m.connected)
	assert.False(t, m.synchronized)
	assert.Contains(t, m.View(), "Waiting for first telegram")

	tg := &ems.Telegram{Body: []byte{0x08, 0x00, 0x18}, CRC: 0x42}
	m = update(t, m, telegramMsg{telegram: tg})
	assert.True(t, m.synchronized)
	assert.Same(t, tg, m.lastTelegram)
	view := m.View()
	assert.Contains(t, view, "Synchronized")
	assert.Contains(t, view, "08 00 18")

	m = update(t, m, linkMsg{connected: false, cause: errors.New("closed by gateway")})
	assert.False(t, m.connected)
	assert.False(t, m.synchronized)
	last := m.eventLog[len(m.eventLog)-1]
	assert.True(t, last.isError)
	assert.Equal(t, "Connection lost: closed by gateway", last.message)
}

func TestModelLogsRejections(t *testing.T) {
	m := initialModel("gw:23", 1, false, ems.NewStatistics())

	m = update(t, m, rejectionMsg{err: &ems.FrameError{Reason: ems.ReasonCRCMismatch, Want: 0x00, Got: 0x55}})
	require.Len(t, m.eventLog, 1)
	assert.True(t, m.eventLog[0].isError)
	assert.Equal(t, "CRC mismatch: 00 vs 55", m.eventLog[0].message)

	m = update(t, m, rejectionMsg{err: &ems.FrameError{Reason: ems.ReasonShortFrames, Got: 64}})
	require.Len(t, m.eventLog, 2)
	assert.False(t, m.eventLog[1].isError)
}

func TestModelEventLogIsBounded(t *testing.T) {
	m := initialModel("gw:23", 1, true, ems.NewStatistics())
	tg := &ems.Telegram{Body: []byte{0x01, 0x02, 0x03}}
	for i := 0; i < 150; i++ {
		m = update(t, m, telegramMsg{telegram: tg})
	}
	assert.Len(t, m.eventLog, m.maxLogEntries)
}
