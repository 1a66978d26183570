// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the emslink TOML configuration.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"

	"github.com/Thermoquad/emslink/pkg/ems"
	"github.com/Thermoquad/emslink/pkg/gateway"
)

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Annotatef(err, "duration %q", text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete service configuration.
type Config struct {
	LogLevel      string   `toml:"log_level"`
	Verbosity     int      `toml:"verbosity"`
	VerboseWarmup Duration `toml:"verbose_warmup"`
	LogTelegrams  bool     `toml:"log_telegrams"`

	Gateway Gateway `toml:"gateway"`
	Syslog  Syslog  `toml:"syslog"`
	MQTT    MQTT    `toml:"mqtt"`
	Decoder Decoder `toml:"decoder"`
}

// Gateway configures the link to the bus gateway.
type Gateway struct {
	Address        string   `toml:"address"`
	ConnectTimeout Duration `toml:"connect_timeout"`
	ReadTimeout    Duration `toml:"read_timeout"`
	RetryMin       Duration `toml:"retry_min"`
	RetryMax       Duration `toml:"retry_max"`
	Username       string   `toml:"username"`
	NoSSLVerify    bool     `toml:"no_ssl_verify"`
}

// Syslog configures the remote log collector. An empty address disables it.
type Syslog struct {
	Address string `toml:"address"`
	Tag     string `toml:"tag"`
}

// MQTT configures telegram forwarding. An empty broker disables it.
type MQTT struct {
	Broker   string   `toml:"broker"`
	Topic    string   `toml:"topic"`
	ClientID string   `toml:"client_id"`
	Timeout  Duration `toml:"timeout"`
}

// Decoder tunes frame acceptance.
type Decoder struct {
	MinTelegramSize int `toml:"min_telegram_size"`
	MaxShortFrames  int `toml:"max_short_frames"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:      "info",
		Verbosity:     ems.VerbosityFrames,
		VerboseWarmup: Duration{10 * time.Second},
		LogTelegrams:  true,
		Gateway: Gateway{
			ConnectTimeout: Duration{gateway.DefaultConnectTimeout},
			ReadTimeout:    Duration{gateway.DefaultReadTimeout},
			RetryMin:       Duration{time.Second},
			RetryMax:       Duration{30 * time.Second},
		},
		Syslog: Syslog{
			Tag: "EMSLink",
		},
		MQTT: MQTT{
			Topic:    "ems/telegram",
			ClientID: "emslink",
			Timeout:  Duration{5 * time.Second},
		},
		Decoder: Decoder{
			MinTelegramSize: ems.DefaultMinTelegramSize,
			MaxShortFrames:  ems.DefaultMaxShortFrames,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Annotatef(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.NotValidf("config keys %s", strings.Join(keys, ", "))
	}
	cfg.Gateway.Address = strings.TrimSpace(cfg.Gateway.Address)
	return cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if c.Gateway.Address == "" {
		return errors.NotValidf("empty gateway address")
	}
	if c.Gateway.ConnectTimeout.Duration <= 0 {
		return errors.NotValidf("gateway connect_timeout %s", c.Gateway.ConnectTimeout)
	}
	if c.Gateway.ReadTimeout.Duration <= 0 {
		return errors.NotValidf("gateway read_timeout %s", c.Gateway.ReadTimeout)
	}
	if c.Gateway.RetryMin.Duration <= 0 || c.Gateway.RetryMax.Duration < c.Gateway.RetryMin.Duration {
		return errors.NotValidf("gateway retry range %s..%s", c.Gateway.RetryMin, c.Gateway.RetryMax)
	}
	if c.Verbosity < ems.VerbosityQuiet || c.Verbosity > ems.VerbosityFrames {
		return errors.NotValidf("verbosity %d", c.Verbosity)
	}
	if c.VerboseWarmup.Duration < 0 {
		return errors.NotValidf("verbose_warmup %s", c.VerboseWarmup)
	}
	if c.Decoder.MinTelegramSize < 1 || c.Decoder.MinTelegramSize > ems.MaxBodySize {
		return errors.NotValidf("decoder min_telegram_size %d", c.Decoder.MinTelegramSize)
	}
	if c.Decoder.MaxShortFrames < 0 {
		return errors.NotValidf("decoder max_short_frames %d", c.Decoder.MaxShortFrames)
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.Topic == "" {
			return errors.NotValidf("empty mqtt topic")
		}
		if c.MQTT.Timeout.Duration <= 0 {
			return errors.NotValidf("mqtt timeout %s", c.MQTT.Timeout)
		}
	}
	return nil
}
