// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// DefaultPort is the gateway's raw stream port.
const DefaultPort = "23"

// ParseAddress builds a Dialer from a gateway address:
//
//	host, host:port            raw TCP, port 23 by default
//	tcp://host[:port]          raw TCP
//	serial:///dev/ttyUSB0      serial port, ?baud=N (115200 by default)
//	ws://host/path, wss://...  WebSocket bridge, user info for basic auth
func ParseAddress(addr string) (Dialer, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.NotValidf("empty gateway address")
	}
	if !strings.Contains(addr, "://") {
		return &TCPDialer{Address: withDefaultPort(addr)}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, errors.NotValidf("gateway address %q", addr)
	}

	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return nil, errors.NotValidf("gateway address %q without host", addr)
		}
		return &TCPDialer{Address: withDefaultPort(u.Host)}, nil

	case "serial":
		port := u.Path
		if port == "" {
			port = u.Host // serial://COM3
		}
		if port == "" {
			return nil, errors.NotValidf("gateway address %q without port", addr)
		}
		baud := DefaultBaudRate
		if v := u.Query().Get("baud"); v != "" {
			baud, err = strconv.Atoi(v)
			if err != nil || baud <= 0 {
				return nil, errors.NotValidf("baud rate %q", v)
			}
		}
		return &SerialDialer{Port: port, BaudRate: baud}, nil

	case "ws", "wss":
		d := &WebSocketDialer{}
		if u.User != nil {
			d.Username = u.User.Username()
			d.Password, _ = u.User.Password()
			u.User = nil
		}
		d.URL = u.String()
		return d, nil

	default:
		return nil, errors.NotValidf("gateway address scheme %q", u.Scheme)
	}
}

func withDefaultPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(strings.Trim(hostport, "[]"), DefaultPort)
}
