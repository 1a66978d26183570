// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/emslink/internal/config"
	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/pkg/ems"
	"github.com/Thermoquad/emslink/pkg/gateway"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid EMS telegram",
	Long: `Wait for a valid EMS telegram on the gateway until timeout.

This command connects to the gateway and waits for any telegram that passes
header, terminator and CRC checks. Rejected frames are reported and skipped.

Exit codes:
  0 - Telegram received before timeout
  1 - Timeout reached without receiving a valid telegram
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a telegram")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Verbosity = 0

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

	fmt.Printf("EMSLink - Packet Test\n")
	fmt.Printf("Gateway: %s\n", mgr.Addr())
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid EMS telegram...\n\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	tg, skipped, err := waitForTelegram(ctx, mgr, cfg, log, os.Stdout)
	if err != nil {
		return err
	}
	if skipped > 0 {
		fmt.Printf("(skipped %d bytes before sync)\n", skipped)
	}
	fmt.Printf("SUCCESS: Received valid telegram\n")
	fmt.Printf("  Header: %s\n", tg.Header)
	fmt.Printf("  Length: %d bytes\n", tg.Len())
	fmt.Printf("  CRC: 0x%02X\n", tg.CRC)
	fmt.Printf("  Body: %s\n", ems.HexDump(tg.Body))
	return nil
}

// waitForTelegram connects and decodes until the first accepted telegram,
// printing rejections to out. It also returns the bytes skipped while
// resynchronizing. Failures carry exit code 1 for a timeout and 2 for a
// connection problem.
func waitForTelegram(ctx context.Context, mgr *gateway.Manager, cfg config.Config, log *emslog.Logger, out io.Writer) (*ems.Telegram, uint64, error) {
	if err := mgr.EnsureConnected(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, 0, &exitError{code: 1, err: errors.Timeoutf("no connection to %s within deadline", mgr.Addr())}
		}
		return nil, 0, &exitError{code: 2, err: err}
	}

	stop := context.AfterFunc(ctx, func() { _ = mgr.Close() })
	defer stop()

	stats := ems.NewStatistics()
	dec := ems.NewDecoder(mgr,
		ems.WithLogger(log.Entry),
		ems.WithStatistics(stats),
		ems.WithMinTelegramSize(cfg.Decoder.MinTelegramSize),
		ems.WithMaxShortFrames(cfg.Decoder.MaxShortFrames),
	)

	for {
		tg, err := dec.Next()
		if err == nil {
			return tg, stats.Snapshot().SkippedBytes, nil
		}
		if fe, ok := ems.AsFrameError(err); ok {
			fmt.Fprintln(out, ems.FormatRejection(fe))
			continue
		}
		if ctx.Err() != nil {
			return nil, 0, &exitError{code: 1, err: errors.Timeoutf("no valid telegram from %s", mgr.Addr())}
		}
		return nil, 0, &exitError{code: 2, err: errors.Annotate(err, "read")}
	}
}
