// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor runs the never ending gateway session loop: connect,
// decode, hand telegrams to the sinks, tear down and reconnect on failure.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/pkg/ems"
	"github.com/Thermoquad/emslink/pkg/gateway"
)

// Config tunes the loop.
type Config struct {
	// Verbosity is the starting decoder verbosity. It drops to quiet once
	// VerboseWarmup has passed; zero warm-up keeps it.
	Verbosity     int
	VerboseWarmup time.Duration

	// QuietLevel is the log level restored when verbosity decays. Zero
	// leaves the logger alone.
	QuietLevel logrus.Level

	// LogTelegrams writes every accepted body at info level.
	LogTelegrams bool

	MinTelegramSize int
	MaxShortFrames  int

	// Delay between failed connects and after sessions that delivered no
	// data
	RetryMin time.Duration
	RetryMax time.Duration
}

// Monitor drives one gateway.
type Monitor struct {
	mgr   *gateway.Manager
	cfg   Config
	log   *emslog.Logger
	stats *ems.Statistics
	sinks []Sink

	verbosity atomic.Int32
	started   time.Time
	retry     *backoff.Backoff
	now       func() time.Time
}

// New creates a monitor reading from mgr.
func New(mgr *gateway.Manager, cfg Config, log *emslog.Logger, sinks ...Sink) *Monitor {
	if cfg.MinTelegramSize <= 0 {
		cfg.MinTelegramSize = ems.DefaultMinTelegramSize
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = time.Second
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = cfg.RetryMin
	}
	m := &Monitor{
		mgr:   mgr,
		cfg:   cfg,
		log:   log,
		stats: ems.NewStatistics(),
		sinks: sinks,
		retry: &backoff.Backoff{
			Min:    cfg.RetryMin,
			Max:    cfg.RetryMax,
			Factor: 2,
			Jitter: true,
		},
		now: time.Now,
	}
	m.verbosity.Store(int32(cfg.Verbosity))
	return m
}

// Statistics returns the counters shared by every session.
func (m *Monitor) Statistics() *ems.Statistics {
	return m.stats
}

// Verbosity returns the current decoder verbosity.
func (m *Monitor) Verbosity() int {
	return int(m.verbosity.Load())
}

// Run loops until ctx is done and returns ctx.Err(). Stream and connect
// failures are logged and retried.
func (m *Monitor) Run(ctx context.Context) error {
	m.started = m.now()
	stop := context.AfterFunc(ctx, func() { _ = m.mgr.Close() })
	defer stop()
	defer m.mgr.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.decayVerbosity()

		if err := m.mgr.EnsureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := m.retry.Duration()
			m.log.Emergencyf("%v, retry in %s", err, delay.Round(time.Millisecond))
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.stats.RecordConnect()
		m.notifyConnected()

		err := m.session()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delivered := m.mgr.ByteCount()
		m.mgr.Teardown(err)
		m.notifyDisconnected(err)

		if delivered > 0 {
			m.retry.Reset()
			continue
		}
		delay := m.retry.Duration()
		m.log.Noticef("no data from %s, retry in %s", m.mgr.Addr(), delay.Round(time.Millisecond))
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// session decodes until the stream fails and returns the failure.
func (m *Monitor) session() error {
	dec := ems.NewDecoder(m.mgr,
		ems.WithLogger(m.log.Entry),
		ems.WithStatistics(m.stats),
		ems.WithMinTelegramSize(m.cfg.MinTelegramSize),
		ems.WithMaxShortFrames(m.cfg.MaxShortFrames),
		ems.WithVerbosity(m.Verbosity),
		ems.WithClock(m.now),
	)
	for {
		m.decayVerbosity()
		tg, err := dec.Next()
		if err == nil {
			m.emit(tg)
			continue
		}
		if fe, ok := ems.AsFrameError(err); ok {
			m.reject(fe)
			continue
		}
		return err
	}
}

func (m *Monitor) emit(tg *ems.Telegram) {
	if m.cfg.LogTelegrams {
		m.log.Info(ems.HexDump(tg.Body))
	}
	for _, s := range m.sinks {
		if err := s.HandleTelegram(tg); err != nil {
			m.log.Warnf("telegram handler: %v", err)
		}
	}
}

func (m *Monitor) reject(fe *ems.FrameError) {
	if fe.Reason == ems.ReasonShortFrames {
		m.log.Warnf("%v", fe)
	} else {
		m.log.Errorf("%v", fe)
		m.log.Error(ems.FormatFrame(&fe.Frame))
	}
	for _, s := range m.sinks {
		s.HandleRejection(fe)
	}
}

func (m *Monitor) decayVerbosity() {
	if m.cfg.VerboseWarmup <= 0 || m.verbosity.Load() == ems.VerbosityQuiet {
		return
	}
	if m.now().Sub(m.started) >= m.cfg.VerboseWarmup {
		m.verbosity.Store(ems.VerbosityQuiet)
		m.log.Noticef("decreasing verbosity to %d", ems.VerbosityQuiet)
		if m.cfg.QuietLevel != 0 && m.log.Logger.GetLevel() > m.cfg.QuietLevel {
			m.log.Logger.SetLevel(m.cfg.QuietLevel)
		}
	}
}

func (m *Monitor) notifyConnected() {
	for _, s := range m.sinks {
		if o, ok := s.(SessionObserver); ok {
			o.Connected(m.mgr.Addr())
		}
	}
}

func (m *Monitor) notifyDisconnected(cause error) {
	for _, s := range m.sinks {
		if o, ok := s.(SessionObserver); ok {
			o.Disconnected(cause)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
