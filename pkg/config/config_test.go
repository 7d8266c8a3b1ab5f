// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartaudio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{EnvConfig, EnvPort, EnvBaud, EnvMQTT} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serial", cfg.Link.Backend)
	assert.Equal(t, 4800, cfg.Link.Baud)
	assert.Equal(t, smartaudio.DefaultAutobaudConfig(), cfg.AutobaudConfig())
	assert.Equal(t, smartaudio.DefaultTiming(), cfg.EngineTiming())
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval())
	assert.Len(t, cfg.EngineOptions(), 3)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverlay(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
link:
  backend: tarm
  port: /dev/ttyUSB1
  baud: 4900
autobaud:
  max: 5000
vtx:
  opModel: pit
  pitFMode: out-range
mqtt:
  broker: mqtt://broker.local:1883/quad1/
  statistics: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tarm", cfg.Link.Backend)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Link.Port)
	assert.Equal(t, 4900, cfg.Link.Baud)
	assert.Equal(t, 5000, cfg.Autobaud.Max)
	assert.Equal(t, 4800, cfg.Autobaud.Min, "unset fields keep defaults")
	assert.True(t, cfg.MQTT.Statistics)

	sel := cfg.Selection()
	assert.Equal(t, smartaudio.OpModelPit, sel.OpModel)
	assert.Equal(t, smartaudio.PitFModeOutRange, sel.PitFMode)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfig, writeConfig(t, "link:\n  port: /dev/ttyS3\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS3", cfg.Link.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "link:\n  port: /dev/ttyS3\n")
	t.Setenv(EnvPort, "/dev/ttyACM0")
	t.Setenv(EnvBaud, "4850")
	t.Setenv(EnvMQTT, "tcp://localhost:1883")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Link.Port)
	assert.Equal(t, 4850, cfg.Link.Baud)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "link: [not, a, map]"))
	assert.Error(t, err)

	t.Setenv(EnvBaud, "fast")
	_, err = Load("")
	assert.ErrorContains(t, err, EnvBaud)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Link.Backend = "i2c" }},
		{"inverted autobaud range", func(c *Config) { c.Autobaud.Min, c.Autobaud.Max = 4950, 4800 }},
		{"zero step", func(c *Config) { c.Autobaud.Step = 0 }},
		{"ratio above 100", func(c *Config) { c.Autobaud.HealthyRatio = 150 }},
		{"baud outside range", func(c *Config) { c.Link.Baud = 9600 }},
		{"zero tick", func(c *Config) { c.Timing.TickMs = 0 }},
		{"timeout below tick", func(c *Config) { c.Timing.CommandTimeoutMs = 5 }},
		{"heartbeat below timeout", func(c *Config) { c.Timing.HeartbeatMs = 100 }},
		{"bad op model", func(c *Config) { c.VTX.OpModel = "race" }},
		{"bad pit mode", func(c *Config) { c.VTX.PitFMode = "sideways" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
