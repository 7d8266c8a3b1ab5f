// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"flag"
	"fmt"

	"github.com/Thermoquad/smartaudio/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int
	backend  string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Recording and publishing
	capturePath string
	mqttBroker  string
)

var rootCmd = &cobra.Command{
	Use:   "smartaudio",
	Short: "SmartAudio VTX control and protocol analyzer",
	Long: `smartaudio - drive and diagnose SmartAudio video transmitters.

Talks to a VTX over a single-wire half-duplex UART at ~4800 baud, hunting
for the baud rate the transmitter actually decodes, and provides commands
for interactive control, passive line monitoring, frame logging and
capture replay.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 4800] [--backend serial|tarm]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a YAML file (--config or SMARTAUDIO_CONFIG).
Flags override the file.

For WebSocket authentication, the password is read from the SMARTAUDIO_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// glog reads its flags from the go flag set, already filled in by pflag
		flag.CommandLine.Parse(nil)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 4800, "Initial baud rate (autobaud adjusts it)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "serial", "Serial driver: serial or tarm")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Record all line traffic to a CBOR capture file")
	rootCmd.PersistentFlags().StringVar(&mqttBroker, "mqtt", "", "Publish VTX status to an MQTT broker (mqtt://host:port/prefix)")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

// loadConfig reads the configuration file and applies any connection flags
// set on the command line
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Link.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Link.Baud = baudRate
	}
	if flags.Changed("backend") {
		cfg.Link.Backend = backend
	}
	if flags.Changed("url") {
		cfg.Link.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Link.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("capture") {
		cfg.Capture = capturePath
	}
	if flags.Changed("mqtt") {
		cfg.MQTT.Broker = mqttBroker
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
