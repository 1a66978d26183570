// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "github.com/Thermoquad/emslink/pkg/ems"

// Sink receives the outcome of every decode cycle.
type Sink interface {
	HandleTelegram(tg *ems.Telegram) error
	HandleRejection(fe *ems.FrameError)
}

// SessionObserver is implemented by sinks that track the gateway link.
type SessionObserver interface {
	Connected(addr string)
	Disconnected(cause error)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnTelegram  func(tg *ems.Telegram) error
	OnRejection func(fe *ems.FrameError)
}

// HandleTelegram implements Sink
func (s SinkFuncs) HandleTelegram(tg *ems.Telegram) error {
	if s.OnTelegram == nil {
		return nil
	}
	return s.OnTelegram(tg)
}

// HandleRejection implements Sink
func (s SinkFuncs) HandleRejection(fe *ems.FrameError) {
	if s.OnRejection != nil {
		s.OnRejection(fe)
	}
}
