// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"

	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/pkg/ems"
)

// Timeouts
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

const readBufferSize = 512

// ErrNotConnected is returned by reads while no session is open.
var ErrNotConnected = errors.New("not connected to gateway")

// Config holds the session timeouts.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Manager owns the session to one gateway: the link, the buffered stream
// cursor and the count of bytes consumed since the last connect. Reads come
// from a single goroutine; Close may be called from any.
type Manager struct {
	dialer Dialer
	cfg    Config
	log    *emslog.Logger

	mu   sync.Mutex
	conn Conn
	br   *bufio.Reader

	count atomic.Uint64
}

// NewManager creates a disconnected manager. Zero timeouts take the defaults.
func NewManager(d Dialer, cfg Config, log *emslog.Logger) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if log == nil {
		log = emslog.Discard()
	}
	return &Manager{dialer: d, cfg: cfg, log: log}
}

// Addr describes the gateway.
func (m *Manager) Addr() string {
	return m.dialer.String()
}

// EnsureConnected opens the session unless one is already open.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}

	m.log.Noticef("connecting to %s", m.dialer)
	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(dctx)
	if err != nil {
		return &ConnectError{Addr: m.dialer.String(), Err: err}
	}
	if err := conn.SetReadTimeout(m.cfg.ReadTimeout); err != nil {
		_ = conn.Close()
		return &ConnectError{Addr: m.dialer.String(), Err: errors.Annotate(err, "set read timeout")}
	}

	m.mu.Lock()
	m.conn = conn
	m.br = bufio.NewReaderSize(conn, readBufferSize)
	m.mu.Unlock()
	m.count.Store(0)

	m.log.Infof("connected to %s", m.dialer)
	return nil
}

// IsConnected reports whether a session is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// ByteCount returns the bytes consumed since the last connect.
func (m *Manager) ByteCount() uint64 {
	return m.count.Load()
}

func (m *Manager) reader() *bufio.Reader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.br
}

// Read implements io.Reader over the session stream.
func (m *Manager) Read(p []byte) (int, error) {
	br := m.reader()
	if br == nil {
		return 0, ErrNotConnected
	}
	n, err := br.Read(p)
	m.count.Add(uint64(n))
	return n, err
}

// ReadByte implements io.ByteReader over the session stream.
func (m *Manager) ReadByte() (byte, error) {
	br := m.reader()
	if br == nil {
		return 0, ErrNotConnected
	}
	b, err := br.ReadByte()
	if err == nil {
		m.count.Add(1)
	}
	return b, err
}

// Close releases the session. It is safe to call repeatedly and from another
// goroutine to unblock a pending read.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn, m.br = nil, nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return errors.Annotate(conn.Close(), "close gateway connection")
}

// Teardown closes the session after a stream failure and logs it with the
// number of bytes the session delivered.
func (m *Manager) Teardown(cause error) {
	count := m.ByteCount()
	if err := m.Close(); err != nil {
		m.log.Debugf("%v", err)
	}
	m.count.Store(0)
	m.log.Emergencyf("connection closed: %s after %d bytes", describe(cause), count)
}

func describe(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.IsTimeout(err):
		return errors.Cause(err).Error()
	case ems.IsStreamClosed(err), errors.Cause(err) == io.EOF:
		return "closed by gateway"
	default:
		return err.Error()
	}
}
