// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate of a gateway UART link
const DefaultBaudRate = 115200

// SerialDialer opens a gateway wired to a local serial port.
type SerialDialer struct {
	Port     string
	BaudRate int
}

func (d *SerialDialer) String() string {
	return fmt.Sprintf("%s@%d", d.Port, d.BaudRate)
}

// Dial implements Dialer. Opening a port does not block, so ctx is only
// checked up front.
func (d *SerialDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.Port, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "open serial port %s", d.Port)
	}
	return &serialConn{port: port, name: d.Port}, nil
}

type serialConn struct {
	port    serial.Port
	name    string
	timeout time.Duration
}

func (s *serialConn) SetReadTimeout(d time.Duration) error {
	s.timeout = d
	if d <= 0 {
		return errors.Trace(s.port.SetReadTimeout(serial.NoTimeout))
	}
	return errors.Trace(s.port.SetReadTimeout(d))
}

// Read returns a timeout error when the port reports no data within the
// configured timeout.
func (s *serialConn) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err == nil && n == 0 && s.timeout > 0 {
		return 0, errors.Timeoutf("read from %s after %s", s.name, s.timeout)
	}
	return n, err
}

func (s *serialConn) Close() error {
	return s.port.Close()
}
