// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"context"
	"net"
	"time"

	"github.com/juju/errors"
)

// TCPDialer connects to a gateway exposing the stream on a raw TCP socket.
type TCPDialer struct {
	Address string
}

func (d *TCPDialer) String() string {
	return d.Address
}

// Dial implements Dialer
func (d *TCPDialer) Dial(ctx context.Context) (Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(30 * time.Second)
	}
	return &netConn{conn: c}, nil
}

type netConn struct {
	conn    net.Conn
	timeout time.Duration
}

func (c *netConn) SetReadTimeout(d time.Duration) error {
	c.timeout = d
	if d <= 0 {
		return errors.Trace(c.conn.SetReadDeadline(time.Time{}))
	}
	return nil
}

func (c *netConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, errors.Annotate(err, "set read deadline")
		}
	}
	n, err := c.conn.Read(p)
	if err != nil && isNetTimeout(err) {
		return n, errors.Timeoutf("read from %s after %s", c.conn.RemoteAddr(), c.timeout)
	}
	return n, err
}

func (c *netConn) Close() error {
	return c.conn.Close()
}
