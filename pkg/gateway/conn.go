// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gateway manages the byte stream session to an EMS bus gateway.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Conn is an open link to a gateway.
type Conn interface {
	io.ReadCloser

	// SetReadTimeout bounds every following Read. A Read that sees no data
	// for d fails with an error satisfying errors.IsTimeout. Zero disables
	// the bound.
	SetReadTimeout(d time.Duration) error
}

// Dialer opens links to one gateway.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// ConnectError reports a failed connect attempt.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectError reports whether err is a *ConnectError.
func IsConnectError(err error) bool {
	_, ok := err.(*ConnectError)
	return ok
}

func isNetTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
