// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/emslink/internal/monitor"
	"github.com/Thermoquad/emslink/pkg/ems"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display telegrams in human-readable format",
	Long: `Continuously decode and display EMS telegrams as they arrive.

Each accepted telegram is printed with its gateway timestamp, tick counter,
CRC and body bytes. Rejected frames are printed with the reason and a hex
dump. The connection is re-established after timeouts or connection loss.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.LogTelegrams = false
	if !cmd.Flags().Changed("verbosity") {
		cfg.Verbosity = 0
	}
	if !cmd.Flags().Changed("log-level") {
		cfg.LogLevel = "warning"
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	mgr, err := newManager(cfg, log)
	if err != nil {
		return err
	}

	fmt.Printf("EMSLink - Raw Telegram Log\n")
	fmt.Printf("Gateway: %s\n", mgr.Addr())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	printer := monitor.SinkFuncs{
		OnTelegram: func(tg *ems.Telegram) error {
			fmt.Println(ems.FormatTelegram(tg))
			return nil
		},
		OnRejection: func(fe *ems.FrameError) {
			fmt.Printf("[ERROR] %s\n", ems.FormatRejection(fe))
		},
	}

	ctx, stop := signalContext()
	defer stop()

	err = monitor.New(mgr, monitorConfig(cfg), log, printer).Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
