// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the smartaudio tool configuration: built-in
// defaults, overlaid by an optional YAML file, overlaid by environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"gopkg.in/yaml.v2"
)

// Environment variables
const (
	EnvConfig = "SMARTAUDIO_CONFIG"
	EnvPort   = "SMARTAUDIO_PORT"
	EnvBaud   = "SMARTAUDIO_BAUD"
	EnvMQTT   = "SMARTAUDIO_MQTT"
)

// Config represents the complete tool configuration
type Config struct {
	Link     LinkConfig     `yaml:"link"`
	Timing   TimingConfig   `yaml:"timing"`
	Autobaud AutobaudConfig `yaml:"autobaud"`
	VTX      VTXConfig      `yaml:"vtx"`
	Capture  string         `yaml:"capture"` // CBOR capture file, empty to disable
	LogFile  string         `yaml:"logFile"` // rotated text log, empty for stdout only
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

// LinkConfig selects the transport
type LinkConfig struct {
	Backend     string `yaml:"backend"` // serial, tarm or websocket
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"` // initial baud rate
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"noSslVerify"`
}

// TimingConfig holds engine timing in milliseconds
type TimingConfig struct {
	TickMs           int `yaml:"tickMs"`
	CommandTimeoutMs int `yaml:"commandTimeoutMs"`
	HeartbeatMs      int `yaml:"heartbeatMs"`
}

// AutobaudConfig bounds the baud rate search
type AutobaudConfig struct {
	Min          int `yaml:"min"`
	Max          int `yaml:"max"`
	Step         int `yaml:"step"`
	MinSamples   int `yaml:"minSamples"`
	HealthyRatio int `yaml:"healthyRatio"` // percent
}

// VTXConfig holds the power-up policy applied from the control UIs
type VTXConfig struct {
	OpModel  string `yaml:"opModel"`  // free or pit
	PitFMode string `yaml:"pitFMode"` // in-range or out-range
}

// MQTTConfig holds status publishing settings
type MQTTConfig struct {
	Broker     string `yaml:"broker"` // mqtt://[user:pass@]host:port/topic-prefix
	Statistics bool   `yaml:"statistics"`
}

// Load builds the configuration. path overrides SMARTAUDIO_CONFIG; with
// neither set only defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Link: LinkConfig{
			Backend: "serial",
			Baud:    smartaudio.DefaultBaudMin,
		},
		Timing: TimingConfig{
			TickMs:           10,
			CommandTimeoutMs: int(smartaudio.DefaultCommandTimeout / time.Millisecond),
			HeartbeatMs:      int(smartaudio.DefaultHeartbeatInterval / time.Millisecond),
		},
		Autobaud: AutobaudConfig{
			Min:          smartaudio.DefaultBaudMin,
			Max:          smartaudio.DefaultBaudMax,
			Step:         smartaudio.DefaultBaudStep,
			MinSamples:   smartaudio.DefaultAutobaudSamples,
			HealthyRatio: smartaudio.DefaultHealthyRatio,
		},
		VTX: VTXConfig{
			OpModel:  "free",
			PitFMode: "in-range",
		},
	}
}

// loadFromFile overlays a YAML file onto cfg
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) error {
	if port := os.Getenv(EnvPort); port != "" {
		cfg.Link.Port = port
	}

	if baud := os.Getenv(EnvBaud); baud != "" {
		b, err := strconv.Atoi(baud)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvBaud, baud, err)
		}
		cfg.Link.Baud = b
	}

	if broker := os.Getenv(EnvMQTT); broker != "" {
		cfg.MQTT.Broker = broker
	}

	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch c.Link.Backend {
	case "serial", "tarm", "websocket":
	default:
		return fmt.Errorf("invalid backend %q, must be one of: serial, tarm, websocket", c.Link.Backend)
	}

	if err := c.AutobaudConfig().Validate(); err != nil {
		return err
	}

	if c.Link.Baud < c.Autobaud.Min || c.Link.Baud > c.Autobaud.Max {
		return fmt.Errorf("initial baud %d outside autobaud range %d-%d", c.Link.Baud, c.Autobaud.Min, c.Autobaud.Max)
	}

	if c.Timing.TickMs <= 0 {
		return fmt.Errorf("tick interval %dms must be positive", c.Timing.TickMs)
	}
	if c.Timing.CommandTimeoutMs <= c.Timing.TickMs {
		return fmt.Errorf("command timeout %dms must exceed the tick interval %dms", c.Timing.CommandTimeoutMs, c.Timing.TickMs)
	}
	if c.Timing.HeartbeatMs <= c.Timing.CommandTimeoutMs {
		return fmt.Errorf("heartbeat %dms must exceed the command timeout %dms", c.Timing.HeartbeatMs, c.Timing.CommandTimeoutMs)
	}

	if _, err := smartaudio.ParseOpModel(c.VTX.OpModel); err != nil {
		return err
	}
	if _, err := smartaudio.ParsePitFMode(c.VTX.PitFMode); err != nil {
		return err
	}

	return nil
}

// AutobaudConfig returns the engine autobaud configuration
func (c *Config) AutobaudConfig() smartaudio.AutobaudConfig {
	return smartaudio.AutobaudConfig{
		Min:          c.Autobaud.Min,
		Max:          c.Autobaud.Max,
		Step:         c.Autobaud.Step,
		MinSamples:   c.Autobaud.MinSamples,
		HealthyRatio: c.Autobaud.HealthyRatio,
	}
}

// EngineTiming returns the engine timing configuration
func (c *Config) EngineTiming() smartaudio.Timing {
	return smartaudio.Timing{
		CommandTimeout:    time.Duration(c.Timing.CommandTimeoutMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(c.Timing.HeartbeatMs) * time.Millisecond,
	}
}

// TickInterval returns the engine tick period
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timing.TickMs) * time.Millisecond
}

// EngineOptions returns the engine options the configuration implies
func (c *Config) EngineOptions() []smartaudio.Option {
	return []smartaudio.Option{
		smartaudio.WithTiming(c.EngineTiming()),
		smartaudio.WithAutobaud(c.AutobaudConfig()),
		smartaudio.WithInitialBaud(c.Link.Baud),
	}
}

// Selection returns an empty selection carrying the configured power-up
// policy
func (c *Config) Selection() smartaudio.Selection {
	// both validated in Load
	opModel, _ := smartaudio.ParseOpModel(c.VTX.OpModel)
	pitFMode, _ := smartaudio.ParsePitFMode(c.VTX.PitFMode)
	return smartaudio.Selection{OpModel: opModel, PitFMode: pitFMode}
}
