// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/pkg/ems"
	"github.com/Thermoquad/emslink/pkg/gateway"
)

type recorder struct {
	mu         sync.Mutex
	telegrams  chan []byte
	rejections []ems.Reason
	connects   []string
	drops      []error
}

func newRecorder() *recorder {
	return &recorder{telegrams: make(chan []byte, 16)}
}

func (r *recorder) HandleTelegram(tg *ems.Telegram) error {
	r.telegrams <- tg.Body
	return nil
}

func (r *recorder) HandleRejection(fe *ems.FrameError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, fe.Reason)
}

func (r *recorder) Connected(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects = append(r.connects, addr)
}

func (r *recorder) Disconnected(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drops = append(r.drops, cause)
}

func (r *recorder) next(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-r.telegrams:
		return b
	case <-time.After(3 * time.Second):
		t.Fatal("no telegram")
		return nil
	}
}

func frame(t *testing.T, body ...byte) []byte {
	t.Helper()
	f, err := ems.EncodeFrame(ems.Header{Timestamp: 1700000000}, body)
	require.NoError(t, err)
	return f
}

func TestMonitorRecoversFromRejectionAndTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	corrupt := frame(t, 0x08, 0x00, 0x18, 0x00)
	corrupt[ems.HeaderSize] ^= 0x01
	first, second, third := frame(t, 0x10, 0x00, 0x06), frame(t, 0x10, 0x00, 0x07), frame(t, 0x10, 0x00, 0x08)

	go func() {
		// First session: good, corrupt, good, then silence
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.Write(first)
		c.Write(corrupt)
		c.Write(second)

		// Second session after the read timeout
		c2, err := ln.Accept()
		if err != nil {
			return
		}
		defer c2.Close()
		c2.Write(third)
		time.Sleep(5 * time.Second)
	}()

	l, hook := test.NewNullLogger()
	log := emslog.New(l)
	mgr := gateway.NewManager(&gateway.TCPDialer{Address: ln.Addr().String()},
		gateway.Config{ReadTimeout: 200 * time.Millisecond}, log)
	rec := newRecorder()
	m := New(mgr, Config{LogTelegrams: true, RetryMin: 10 * time.Millisecond}, log, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Equal(t, []byte{0x10, 0x00, 0x06}, rec.next(t))
	assert.Equal(t, []byte{0x10, 0x00, 0x07}, rec.next(t))
	assert.Equal(t, []byte{0x10, 0x00, 0x08}, rec.next(t))
	assert.Less(t, mgr.ByteCount(), uint64(20), "counter restarted with the new session")

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, mgr.IsConnected())

	rec.mu.Lock()
	assert.Equal(t, []ems.Reason{ems.ReasonCRCMismatch}, rec.rejections)
	assert.Len(t, rec.connects, 2)
	assert.Len(t, rec.drops, 1)
	rec.mu.Unlock()

	c := m.Statistics().Snapshot()
	assert.Equal(t, uint64(3), c.Telegrams)
	assert.Equal(t, uint64(1), c.CRCErrors)
	assert.Equal(t, uint64(2), c.Connects)

	var sawTeardown, sawDump, sawBody bool
	for _, e := range hook.AllEntries() {
		switch {
		case emslog.SeverityOf(e) == emslog.SeverityEmergency && strings.Contains(e.Message, "connection closed"):
			sawTeardown = true
		case e.Level == logrus.ErrorLevel && strings.Contains(e.Message, "|"):
			sawDump = true
		case e.Level == logrus.InfoLevel && e.Message == "10 00 06":
			sawBody = true
		}
	}
	assert.True(t, sawTeardown, "teardown logged at emergency")
	assert.True(t, sawDump, "rejected frame dumped at error")
	assert.True(t, sawBody, "telegram body logged at info")
}

func TestMonitorRetriesConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	l, hook := test.NewNullLogger()
	log := emslog.New(l)
	mgr := gateway.NewManager(&gateway.TCPDialer{Address: addr}, gateway.Config{}, log)
	m := New(mgr, Config{RetryMin: 5 * time.Millisecond, RetryMax: 20 * time.Millisecond}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err = m.Run(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)

	failures := 0
	for _, e := range hook.AllEntries() {
		if emslog.SeverityOf(e) == emslog.SeverityEmergency && strings.Contains(e.Message, "connect "+addr) {
			failures++
		}
	}
	assert.GreaterOrEqual(t, failures, 2)
	assert.Zero(t, m.Statistics().Snapshot().Connects)
}

func TestMonitorVerbosityDecay(t *testing.T) {
	l, hook := test.NewNullLogger()
	mgr := gateway.NewManager(&gateway.TCPDialer{Address: "127.0.0.1:1"}, gateway.Config{}, emslog.New(l))
	m := New(mgr, Config{Verbosity: ems.VerbosityFrames, VerboseWarmup: 10 * time.Second}, emslog.New(l))

	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }
	m.started = now

	now = now.Add(9 * time.Second)
	m.decayVerbosity()
	assert.Equal(t, ems.VerbosityFrames, m.Verbosity())

	now = now.Add(time.Second)
	m.decayVerbosity()
	assert.Equal(t, ems.VerbosityQuiet, m.Verbosity())
	assert.Equal(t, emslog.SeverityNotice, emslog.SeverityOf(hook.LastEntry()))

	hook.Reset()
	m.decayVerbosity()
	assert.Empty(t, hook.AllEntries())
}

func TestMonitorDecayRestoresLogLevel(t *testing.T) {
	l, _ := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	log := emslog.New(l)
	mgr := gateway.NewManager(&gateway.TCPDialer{Address: "127.0.0.1:1"}, gateway.Config{}, log)
	m := New(mgr, Config{
		Verbosity:     ems.VerbosityFrames,
		VerboseWarmup: time.Second,
		QuietLevel:    logrus.InfoLevel,
	}, log)

	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }
	m.started = now

	m.decayVerbosity()
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	now = now.Add(time.Second)
	m.decayVerbosity()
	assert.Equal(t, ems.VerbosityQuiet, m.Verbosity())
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.False(t, log.Logger.IsLevelEnabled(logrus.DebugLevel))
}

func TestMonitorDecayKeepsLevelWithoutQuietLevel(t *testing.T) {
	l, _ := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	log := emslog.New(l)
	mgr := gateway.NewManager(&gateway.TCPDialer{Address: "127.0.0.1:1"}, gateway.Config{}, log)
	m := New(mgr, Config{Verbosity: ems.VerbosityCRC, VerboseWarmup: time.Second}, log)
	m.started = time.Unix(0, 0)

	m.decayVerbosity()
	assert.Equal(t, ems.VerbosityQuiet, m.Verbosity())
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestMonitorPacesEmptySessions(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Accept and hang up at once, forever
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	l, hook := test.NewNullLogger()
	log := emslog.New(l)
	mgr := gateway.NewManager(&gateway.TCPDialer{Address: ln.Addr().String()}, gateway.Config{}, log)
	m := New(mgr, Config{RetryMin: 50 * time.Millisecond, RetryMax: 50 * time.Millisecond}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, m.Run(ctx))

	connects := m.Statistics().Snapshot().Connects
	assert.GreaterOrEqual(t, connects, uint64(2))
	assert.LessOrEqual(t, connects, uint64(10))

	waits := 0
	for _, e := range hook.AllEntries() {
		if emslog.SeverityOf(e) == emslog.SeverityNotice && strings.HasPrefix(e.Message, "no data from") {
			waits++
		}
	}
	assert.GreaterOrEqual(t, waits, 1)
}

func TestMonitorNoDecayWithoutWarmup(t *testing.T) {
	l, _ := test.NewNullLogger()
	mgr := gateway.NewManager(&gateway.TCPDialer{Address: "127.0.0.1:1"}, gateway.Config{}, emslog.New(l))
	m := New(mgr, Config{Verbosity: ems.VerbosityCRC}, emslog.New(l))
	m.started = time.Unix(0, 0)
	m.decayVerbosity()
	assert.Equal(t, ems.VerbosityCRC, m.Verbosity())
}
