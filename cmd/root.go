// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	// Gateway connection flags
	gatewayAddr   string
	wsUsername    string
	wsNoSSLVerify bool

	// Service flags
	configPath string
	syslogAddr string
	logLevel   string
	verbosity  int
)

var rootCmd = &cobra.Command{
	Use:   "emslink",
	Short: "EMS bus gateway client",
	Long: `EMSLink - A client for the telegram stream of an EMS heating bus gateway.

Connects to the gateway, frames and validates every telegram (length,
terminator, CRC) and forwards accepted telegrams to a syslog collector.
Corrupted frames are reported and the stream is resynchronized on the next
frame boundary.

Gateway addresses:
  TCP:       192.168.254.115, gateway.local:23, tcp://host:port
  Serial:    serial:///dev/ttyUSB0?baud=115200
  WebSocket: ws://host/path, wss://host/path [--username user]

For WebSocket authentication, the password is read from the EMSLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&gatewayAddr, "gateway", "g", "", "Gateway address")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth (WebSocket only)")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&syslogAddr, "syslog", "", "Syslog collector address (host[:port], UDP)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Console log level (debug, info, warning, error)")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "Decoder verbosity: 0 quiet, 1 CRC, 2 frame dumps")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// exitError carries the process exit status of a failed check command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// ExitCode is the process status for an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
