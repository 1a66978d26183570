// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/emslink/internal/config"
	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/pkg/gateway"
)

// startSimulator serves synthetic frames on a loopback port until the test ends.
func startSimulator(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sim := &simulator{interval: 10 * time.Millisecond, polls: 1, log: emslog.Discard()}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sim.serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func newTestManager(addr string) *gateway.Manager {
	return gateway.NewManager(&gateway.TCPDialer{Address: addr}, gateway.Config{
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
	}, nil)
}

func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("bad flag")))
	assert.Equal(t, 2, ExitCode(&exitError{code: 2, err: errors.New("refused")}))
	assert.Equal(t, 1, ExitCode(fmt.Errorf("check: %w", &exitError{code: 1, err: errors.New("timeout")})))
}

func TestWaitForTelegram(t *testing.T) {
	mgr := newTestManager(startSimulator(t))
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var out bytes.Buffer
	tg, _, err := waitForTelegram(ctx, mgr, config.Default(), emslog.Discard(), &out)
	require.NoError(t, err)
	assert.Contains(t, sampleTelegrams, tg.Body)
	assert.Empty(t, out.String())
}

func TestWaitForTelegramTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Accept and stay silent
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = io.Copy(io.Discard, c)
	}()

	mgr := newTestManager(ln.Addr().String())
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, _, err = waitForTelegram(ctx, mgr, config.Default(), emslog.Discard(), io.Discard)
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestWaitForTelegramConnectError(t *testing.T) {
	mgr := newTestManager(closedPort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, _, err := waitForTelegram(ctx, mgr, config.Default(), emslog.Discard(), io.Discard)
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestCheckLinkStable(t *testing.T) {
	mgr := newTestManager(startSimulator(t))
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	res, err := checkLink(ctx, mgr, &out, 50*time.Millisecond)
	require.NoError(t, err)
	assert.NoError(t, res.cause)
	assert.NotZero(t, res.bytes)
	assert.NotZero(t, res.chunks)
	assert.Contains(t, out.String(), "bytes: ")
	assert.Contains(t, res.String(), "PASSED")
}

func TestCheckLinkDropped(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = c.Write([]byte{0x01, 0x02, 0x03, 0xE5, 0x1A})
		c.Close()
	}()

	mgr := newTestManager(ln.Addr().String())
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	res, err := checkLink(ctx, mgr, io.Discard, time.Second)
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, uint64(5), res.bytes)
	assert.Contains(t, res.String(), "FAILED")
}

func TestCheckLinkConnectError(t *testing.T) {
	mgr := newTestManager(closedPort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := checkLink(ctx, mgr, io.Discard, time.Second)
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestMonitorConfigQuietLevel(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, logrus.InfoLevel, monitorConfig(cfg).QuietLevel)

	cfg.LogLevel = "warning"
	assert.Equal(t, logrus.WarnLevel, monitorConfig(cfg).QuietLevel)
}
