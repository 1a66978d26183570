// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/emslink/internal/config"
	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/internal/monitor"
	"github.com/Thermoquad/emslink/pkg/ems"
	"github.com/Thermoquad/emslink/pkg/gateway"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze rejected frames and link errors",
	Long: `Track rejected frames and connection problems with statistics.

Every frame is validated and rejections are counted by reason:
  - Invalid headers (declared length outside 2..128)
  - Length mismatches (payload cut short)
  - Missing end of frame terminator
  - CRC mismatches
  - Runs of frames too short to be telegrams

Resynchronization (bytes skipped to the next frame boundary), reconnects,
telegram rate and error rate are tracked as well.

By default, only errors are displayed. Use --show-all to display valid telegrams too.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all telegrams (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.LogTelegrams = false
	if !cmd.Flags().Changed("verbosity") {
		cfg.Verbosity = 0
	}

	var root *emslog.Logger
	var closeLog func()
	if useTUI {
		// The terminal belongs to the UI; records only go to syslog
		cfg.LogLevel = "error"
		root, closeLog, err = newLogger(cfg)
		if err == nil {
			root.Entry.Logger.SetOutput(io.Discard)
		}
	} else {
		root, closeLog, err = newLogger(cfg)
	}
	if err != nil {
		return err
	}
	defer closeLog()

	mgr, err := newManager(cfg, root)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if useTUI {
		return runTUIMode(ctx, cfg, mgr, root)
	}
	return runTextMode(ctx, cfg, mgr, root)
}

// printRejection prints a rejected frame in highlighted format
func printRejection(fe *ems.FrameError) {
	timestamp := time.Now().Format("15:04:05.000")
	if fe.Reason == ems.ReasonShortFrames {
		fmt.Printf("[%s] \033[1;33mWARNING:\033[0m %v\n\n", timestamp, fe)
		return
	}
	fmt.Printf("[%s] \033[1;31m%s:\033[0m %v\n", timestamp, fe.Reason, fe)
	fmt.Printf("  %s\n", ems.FormatFrame(&fe.Frame))
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// textSink prints outcomes as they arrive
type textSink struct{}

func (textSink) HandleTelegram(tg *ems.Telegram) error {
	if showAll {
		fmt.Println(ems.FormatTelegram(tg))
	}
	return nil
}

func (textSink) HandleRejection(fe *ems.FrameError) {
	printRejection(fe)
}

func (textSink) Connected(addr string) {
	fmt.Printf("[%s] \033[1;32mCONNECTED:\033[0m %s\n\n", time.Now().Format("15:04:05.000"), addr)
}

func (textSink) Disconnected(cause error) {
	fmt.Printf("[%s] \033[1;31mDISCONNECTED:\033[0m %v\n\n", time.Now().Format("15:04:05.000"), cause)
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, cfg config.Config, mgr *gateway.Manager, log *emslog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := &tuiSink{}
	mon := monitor.New(mgr, monitorConfig(cfg), log, sink)

	m := initialModel(mgr.Addr(), statsInterval, showAll, mon.Statistics())
	p := tea.NewProgram(m, tea.WithContext(ctx))
	sink.p = p

	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	cancel()
	if err := <-done; err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context, cfg config.Config, mgr *gateway.Manager, log *emslog.Logger) error {
	fmt.Printf("EMSLink - Error Detection Mode\n")
	fmt.Printf("Gateway: %s\n", mgr.Addr())
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All telegrams\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	mon := monitor.New(mgr, monitorConfig(cfg), log, textSink{})

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	for {
		select {
		case err := <-done:
			fmt.Println()
			fmt.Print(mon.Statistics().String())
			if err == context.Canceled {
				return nil
			}
			return err

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(mon.Statistics().String())
			fmt.Println()
		}
	}
}
