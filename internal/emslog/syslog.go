// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emslog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Syslog defaults
const (
	DefaultSyslogPort = "514"
	DefaultSyslogTag  = "EMSLink"
)

// syslogWriter is the part of *syslog.Writer the hook uses.
type syslogWriter interface {
	Emerg(m string) error
	Err(m string) error
	Warning(m string) error
	Notice(m string) error
	Info(m string) error
	Debug(m string) error
	Close() error
}

// SyslogHook forwards log entries to a syslog collector.
type SyslogHook struct {
	mu sync.Mutex
	w  syslogWriter
}

func newSyslogHook(w syslogWriter) *SyslogHook {
	return &SyslogHook{w: w}
}

// Levels implements logrus.Hook
func (h *SyslogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (h *SyslogHook) Fire(e *logrus.Entry) error {
	line := formatEntry(e)

	h.mu.Lock()
	defer h.mu.Unlock()
	switch SeverityOf(e) {
	case SeverityEmergency:
		return h.w.Emerg(line)
	case SeverityError:
		return h.w.Err(line)
	case SeverityWarning:
		return h.w.Warning(line)
	case SeverityNotice:
		return h.w.Notice(line)
	case SeverityInfo:
		return h.w.Info(line)
	default:
		return h.w.Debug(line)
	}
}

// Close releases the connection to the collector.
func (h *SyslogHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.w.Close()
}

// formatEntry renders the message followed by the sorted fields. The
// severity field is carried by the priority.
func formatEntry(e *logrus.Entry) string {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k != SeverityField {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return e.Message
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Data[k])
	}
	return sb.String()
}
