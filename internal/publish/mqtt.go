// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish forwards accepted telegrams to an MQTT broker.
package publish

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/pkg/ems"
)

// Config selects the broker and topic.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Timeout  time.Duration
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends every telegram body to one topic, QoS 0, not retained.
type Publisher struct {
	c       client
	topic   string
	timeout time.Duration
	log     *emslog.Logger
}

// New creates a publisher for cfg. Call Connect before use.
func New(cfg Config, log *emslog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.NotValidf("empty mqtt broker")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	mqttLog := log.WithField("component", "mqtt").Entry
	mqtt.ERROR = mqttLog
	mqtt.CRITICAL = mqttLog
	mqtt.WARN = mqttLog

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetKeepAlive(30 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOrderMatters(true).
		SetWriteTimeout(cfg.Timeout)
	return newPublisher(mqtt.NewClient(opts), cfg, log), nil
}

func newPublisher(c client, cfg Config, log *emslog.Logger) *Publisher {
	return &Publisher{c: c, topic: cfg.Topic, timeout: cfg.Timeout, log: log}
}

// Connect opens the broker session.
func (p *Publisher) Connect() error {
	return p.tokenWait(p.c.Connect(), "connect")
}

// HandleTelegram publishes the raw body.
func (p *Publisher) HandleTelegram(tg *ems.Telegram) error {
	return p.tokenWait(p.c.Publish(p.topic, 0, false, tg.Body), "publish "+p.topic)
}

// HandleRejection is a no-op; only accepted telegrams are forwarded.
func (p *Publisher) HandleRejection(*ems.FrameError) {}

// Close disconnects, allowing in-flight messages a moment to drain.
func (p *Publisher) Close() {
	p.c.Disconnect(250)
}

func (p *Publisher) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(p.timeout) {
		return errors.Timeoutf("mqtt %s", tag)
	}
	if err := t.Error(); err != nil {
		return errors.Annotatef(err, "mqtt %s", tag)
	}
	return nil
}
