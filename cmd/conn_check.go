// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/emslink/pkg/gateway"
)

var connCheckCmd = &cobra.Command{
	Use:   "conn_check",
	Short: "Test raw gateway connection stability",
	Long: `Hold the gateway link open for a fixed time without decoding frames.

Every chunk read is printed as hex together with a periodic status line.
The check passes when the link survives the whole duration.

Exit codes:
  0 - Link stayed up
  1 - Link dropped or timed out
  2 - Connection error`,
	RunE: runConnCheck,
}

var connCheckDuration time.Duration

func init() {
	rootCmd.AddCommand(connCheckCmd)
	connCheckCmd.Flags().DurationVar(&connCheckDuration, "duration", 30*time.Second, "How long to hold the link")
}

func runConnCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	mgr, err := newManager(cfg, log)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer mgr.Close()

	fmt.Printf("EMSLink - Connection Check\n")
	fmt.Printf("Gateway: %s\n", mgr.Addr())
	fmt.Printf("Duration: %s\n\n", connCheckDuration)

	ctx, cancel := context.WithTimeout(context.Background(), connCheckDuration)
	defer cancel()

	res, err := checkLink(ctx, mgr, os.Stdout, time.Second)
	fmt.Printf("\n%s\n", res)
	return err
}

// linkReport sums up one connection check.
type linkReport struct {
	elapsed time.Duration
	chunks  int
	bytes   uint64
	cause   error
}

func (r linkReport) String() string {
	result := "PASSED (link stable)"
	if r.cause != nil {
		result = fmt.Sprintf("FAILED (%v)", r.cause)
	}
	return fmt.Sprintf("held %s, %d reads, %d bytes: %s",
		r.elapsed.Round(time.Millisecond), r.chunks, r.bytes, result)
}

// checkLink reads raw bytes from mgr until ctx is done. Reaching the
// deadline is success; a failed connect has exit code 2, a dropped link 1.
func checkLink(ctx context.Context, mgr *gateway.Manager, out io.Writer, every time.Duration) (linkReport, error) {
	var res linkReport
	if err := mgr.EnsureConnected(ctx); err != nil {
		res.cause = err
		return res, &exitError{code: 2, err: err}
	}

	start := time.Now()
	stop := context.AfterFunc(ctx, func() { _ = mgr.Close() })
	defer stop()

	var mu sync.Mutex
	printf := func(format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	var total atomic.Uint64
	status := make(chan struct{})
	defer close(status)
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-status:
				return
			case now := <-t.C:
				printf("[%s] up %s, %d bytes\n",
					now.Format("15:04:05.000"), now.Sub(start).Round(time.Second), total.Load())
			}
		}
	}()

	buf := make([]byte, 256)
	for {
		n, err := mgr.Read(buf)
		if n > 0 {
			res.chunks++
			total.Add(uint64(n))
			printf("[%s] %3d bytes: % X\n", time.Now().Format("15:04:05.000"), n, buf[:n])
		}
		if err == nil {
			continue
		}

		res.elapsed = time.Since(start)
		res.bytes = total.Load()
		if ctx.Err() != nil {
			return res, nil
		}
		res.cause = err
		return res, &exitError{code: 1, err: errors.Annotatef(err, "link to %s dropped", mgr.Addr())}
	}
}
