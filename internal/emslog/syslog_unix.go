// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !windows && !plan9

package emslog

import (
	"log/syslog"
	"net"

	"github.com/juju/errors"
)

// DialSyslog connects a hook to the collector at addr over UDP. A missing
// port defaults to 514.
func DialSyslog(addr, tag string) (*SyslogHook, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultSyslogPort)
	}
	if tag == "" {
		tag = DefaultSyslogTag
	}
	w, err := syslog.Dial("udp", addr, syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
	if err != nil {
		return nil, errors.Annotatef(err, "syslog dial %s", addr)
	}
	return newSyslogHook(w), nil
}
