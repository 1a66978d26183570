// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/emslink/internal/monitor"
	"github.com/Thermoquad/emslink/internal/publish"
)

var (
	mqttBroker string
	mqttTopic  string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the gateway client service",
	Long: `Connect to the gateway and forward every accepted telegram to the log
collector, reconnecting forever on timeouts and connection loss.

Rejected frames are logged at error severity with a hex dump of header and
payload; connection loss is logged at emergency severity. Set --syslog (or
[syslog] address in the config file) to forward records over UDP.

With --mqtt-broker every accepted telegram body is also published to the
configured topic.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL (tcp://host:1883)")
	monitorCmd.Flags().StringVar(&mqttTopic, "mqtt-topic", "", "MQTT topic for telegram bodies")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("mqtt-broker") {
		cfg.MQTT.Broker = mqttBroker
	}
	if cmd.Flags().Changed("mqtt-topic") {
		cfg.MQTT.Topic = mqttTopic
	}
	if err := cfg.Validate(); err != nil {
		return err
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

	var sinks []monitor.Sink
	if cfg.MQTT.Broker != "" {
		pub, err := publish.New(publish.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Timeout:  cfg.MQTT.Timeout.Duration,
		}, log)
		if err != nil {
			return err
		}
		if err := pub.Connect(); err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	ctx, stop := signalContext()
	defer stop()

	log.Noticef("EMSLink %s monitoring %s", rootCmd.Version, mgr.Addr())
	err = monitor.New(mgr, monitorConfig(cfg), log, sinks...).Run(ctx)
	if err == context.Canceled {
		log.Notice("shutting down")
		return nil
	}
	return err
}
