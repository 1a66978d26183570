// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emslink.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
verbosity = 1
log_telegrams = false

[gateway]
address = " 192.168.254.115 "
read_timeout = "45s"

[syslog]
address = "logs.local"

[decoder]
min_telegram_size = 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1, cfg.Verbosity)
	assert.False(t, cfg.LogTelegrams)
	assert.Equal(t, "192.168.254.115", cfg.Gateway.Address)
	assert.Equal(t, 45*time.Second, cfg.Gateway.ReadTimeout.Duration)
	assert.Equal(t, 5*time.Second, cfg.Gateway.ConnectTimeout.Duration, "default kept")
	assert.Equal(t, "logs.local", cfg.Syslog.Address)
	assert.Equal(t, "EMSLink", cfg.Syslog.Tag)
	assert.Equal(t, 2, cfg.Decoder.MinTelegramSize)
	assert.Equal(t, 64, cfg.Decoder.MaxShortFrames)
	assert.Equal(t, 10*time.Second, cfg.VerboseWarmup.Duration)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[gateway]
adress = "gw"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))
	assert.Contains(t, err.Error(), "gateway.adress")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[gateway]
connect_timeout = "soon"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no gateway", func(c *Config) { c.Gateway.Address = "" }},
		{"zero connect timeout", func(c *Config) { c.Gateway.ConnectTimeout.Duration = 0 }},
		{"negative read timeout", func(c *Config) { c.Gateway.ReadTimeout.Duration = -time.Second }},
		{"retry range", func(c *Config) { c.Gateway.RetryMax.Duration = time.Millisecond }},
		{"verbosity", func(c *Config) { c.Verbosity = 3 }},
		{"min telegram size", func(c *Config) { c.Decoder.MinTelegramSize = 125 }},
		{"max short frames", func(c *Config) { c.Decoder.MaxShortFrames = -1 }},
		{"mqtt topic", func(c *Config) { c.MQTT.Broker = "tcp://broker:1883"; c.MQTT.Topic = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Gateway.Address = "gw"
			require.NoError(t, cfg.Validate())
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsNotValid(err))
		})
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
}
