// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package emslog wraps logrus with the syslog severities the service uses
// and forwards records to a remote syslog collector.
package emslog

import (
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// SeverityField carries a syslog severity that has no logrus level.
const SeverityField = "severity"

// Severity is a syslog severity.
type Severity int

const (
	SeverityEmergency Severity = 0
	SeverityError     Severity = 3
	SeverityWarning   Severity = 4
	SeverityNotice    Severity = 5
	SeverityInfo      Severity = 6
	SeverityDebug     Severity = 7
)

func (s Severity) String() string {
	switch s {
	case SeverityEmergency:
		return "emerg"
	case SeverityError:
		return "err"
	case SeverityWarning:
		return "warning"
	case SeverityNotice:
		return "notice"
	case SeverityInfo:
		return "info"
	default:
		return "debug"
	}
}

// SeverityOf maps an entry to its syslog severity. An explicit severity
// field wins over the logrus level.
func SeverityOf(e *logrus.Entry) Severity {
	switch e.Data[SeverityField] {
	case "emerg":
		return SeverityEmergency
	case "notice":
		return SeverityNotice
	}
	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return SeverityEmergency
	case logrus.ErrorLevel:
		return SeverityError
	case logrus.WarnLevel:
		return SeverityWarning
	case logrus.InfoLevel:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

// Logger is a logrus entry with Emergency and Notice added.
type Logger struct {
	*logrus.Entry
}

// New wraps l.
func New(l *logrus.Logger) *Logger {
	return &Logger{Entry: logrus.NewEntry(l)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l)
}

// Options configures the process logger.
type Options struct {
	Level  string
	Output io.Writer
}

// NewRoot builds the process logger writing text records to opts.Output,
// stderr by default.
func NewRoot(opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stderr)
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	}
	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, errors.NotValidf("log level %q", opts.Level)
		}
		l.SetLevel(level)
	}
	return l, nil
}

// WithField returns a derived logger with one more field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithFields returns a derived logger with more fields.
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(fields)}
}

// Emergency logs at error level with emergency severity.
func (l *Logger) Emergency(args ...interface{}) {
	l.Entry.WithField(SeverityField, "emerg").Error(args...)
}

// Emergencyf logs at error level with emergency severity.
func (l *Logger) Emergencyf(format string, args ...interface{}) {
	l.Entry.WithField(SeverityField, "emerg").Errorf(format, args...)
}

// Notice logs at info level with notice severity.
func (l *Logger) Notice(args ...interface{}) {
	l.Entry.WithField(SeverityField, "notice").Info(args...)
}

// Noticef logs at info level with notice severity.
func (l *Logger) Noticef(format string, args ...interface{}) {
	l.Entry.WithField(SeverityField, "notice").Infof(format, args...)
}
