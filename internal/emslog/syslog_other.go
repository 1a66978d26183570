// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build windows || plan9

package emslog

import "github.com/juju/errors"

// DialSyslog is not available on this platform.
func DialSyslog(addr, tag string) (*SyslogHook, error) {
	return nil, errors.NotSupportedf("syslog forwarding")
}
