// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/emslink/internal/config"
	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/internal/monitor"
	"github.com/Thermoquad/emslink/pkg/gateway"
)

// loadConfig reads the configuration file, if any, and applies the flags the
// user set on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("gateway") {
		cfg.Gateway.Address = gatewayAddr
	}
	if flags.Changed("username") {
		cfg.Gateway.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Gateway.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("syslog") {
		cfg.Syslog.Address = syslogAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("verbosity") {
		cfg.Verbosity = verbosity
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("EMSLINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", errors.Annotate(err, "read password")
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// openDialer builds the dialer for the configured gateway, asking for the
// WebSocket password when a username is set without one.
func openDialer(cfg config.Config) (gateway.Dialer, error) {
	d, err := gateway.ParseAddress(cfg.Gateway.Address)
	if err != nil {
		return nil, err
	}
	if ws, ok := d.(*gateway.WebSocketDialer); ok {
		ws.SkipSSLVerify = cfg.Gateway.NoSSLVerify
		if ws.Username == "" {
			ws.Username = cfg.Gateway.Username
		}
		if ws.Username != "" && ws.Password == "" {
			if ws.Password, err = GetPassword(); err != nil {
				return nil, err
			}
		}
	}
	return d, nil
}

// newLogger builds the process logger and attaches the syslog collector when
// one is configured. The returned func releases the collector.
func newLogger(cfg config.Config) (*emslog.Logger, func(), error) {
	root, err := emslog.NewRoot(emslog.Options{Level: cfg.LogLevel})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Verbosity > 0 && root.GetLevel() < logrus.DebugLevel {
		root.SetLevel(logrus.DebugLevel)
	}

	closer := func() {}
	if cfg.Syslog.Address != "" {
		hook, err := emslog.DialSyslog(cfg.Syslog.Address, cfg.Syslog.Tag)
		if err != nil {
			return nil, nil, err
		}
		root.AddHook(hook)
		closer = func() { _ = hook.Close() }
	}
	return emslog.New(root), closer, nil
}

// newManager connects the configured gateway to a session manager.
func newManager(cfg config.Config, log *emslog.Logger) (*gateway.Manager, error) {
	d, err := openDialer(cfg)
	if err != nil {
		return nil, err
	}
	return gateway.NewManager(d, gateway.Config{
		ConnectTimeout: cfg.Gateway.ConnectTimeout.Duration,
		ReadTimeout:    cfg.Gateway.ReadTimeout.Duration,
	}, log.WithField("gateway", d.String())), nil
}

// monitorConfig maps the file configuration onto the session loop.
// Once verbosity decays the logger drops back to the configured level.
func monitorConfig(cfg config.Config) monitor.Config {
	quiet, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		quiet = logrus.InfoLevel
	}
	return monitor.Config{
		Verbosity:       cfg.Verbosity,
		VerboseWarmup:   cfg.VerboseWarmup.Duration,
		QuietLevel:      quiet,
		LogTelegrams:    cfg.LogTelegrams,
		MinTelegramSize: cfg.Decoder.MinTelegramSize,
		MaxShortFrames:  cfg.Decoder.MaxShortFrames,
		RetryMin:        cfg.Gateway.RetryMin.Duration,
		RetryMax:        cfg.Gateway.RetryMax.Duration,
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
