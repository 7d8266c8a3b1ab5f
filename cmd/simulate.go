// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/Thermoquad/smartaudio/pkg/vtxsim"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var (
	simVersion int
	simBand    int
	simChannel int
	simPower   int
	simPitFreq int
	simPitMode bool
	simUnlock  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Act as a SmartAudio VTX on a serial port",
	Long: `Answer SmartAudio commands on a serial port like a video transmitter.

Useful for testing a flight controller or this tool against a second
USB-serial adapter without a transmitter. Settings changed by the host are
kept for the lifetime of the process and printed as they change.

Only serial ports are supported.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simVersion, "protocol", 2, "Protocol version to report (1 or 2)")
	simulateCmd.Flags().IntVar(&simBand, "band", 1, "Initial band (1-5)")
	simulateCmd.Flags().IntVar(&simChannel, "channel", 1, "Initial channel (1-8)")
	simulateCmd.Flags().IntVar(&simPower, "power", 1, "Initial power index (1-4)")
	simulateCmd.Flags().IntVar(&simPitFreq, "pit", 5584, "Pit frequency in MHz")
	simulateCmd.Flags().BoolVar(&simPitMode, "pit-mode", false, "Start in in-range pit mode")
	simulateCmd.Flags().BoolVar(&simUnlock, "unlocked", true, "Report the device as unlocked")
}

// simConfig builds the device configuration from the command flags
func simConfig() (vtxsim.Config, error) {
	cfg := vtxsim.DefaultConfig()

	switch simVersion {
	case 1:
		cfg.Version = smartaudio.Version1
	case 2:
		cfg.Version = smartaudio.Version2
	default:
		return cfg, fmt.Errorf("invalid version %d (use 1 or 2)", simVersion)
	}

	if simBand < 1 || simBand > smartaudio.BandCount {
		return cfg, fmt.Errorf("invalid band %d", simBand)
	}
	if simChannel < 1 || simChannel > 8 {
		return cfg, fmt.Errorf("invalid channel %d", simChannel)
	}
	cfg.Channel = uint8((simBand-1)*8 + simChannel - 1)

	if simPower < 1 || simPower > len(smartaudio.PowerTable) {
		return cfg, fmt.Errorf("invalid power index %d", simPower)
	}
	if cfg.Version == smartaudio.Version1 {
		cfg.Power = smartaudio.PowerTable[simPower-1].ValueV1
	} else {
		cfg.Power = smartaudio.PowerTable[simPower-1].ValueV2
	}

	if simPitFreq < 0 || simPitFreq > 0x3FFF {
		return cfg, fmt.Errorf("invalid pit frequency %d", simPitFreq)
	}
	cfg.PitFrequency = uint16(simPitFreq)

	if simPitMode {
		cfg.OpMode |= smartaudio.ModeGetPitMode | smartaudio.ModeGetInRangePitMode
	}
	if simUnlock {
		cfg.OpMode |= smartaudio.ModeGetUnlock
	}
	return cfg, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Link.Port == "" {
		return errors.New("simulate needs a serial port (--port)")
	}
	devCfg, err := simConfig()
	if err != nil {
		return err
	}

	mode := serial.Mode{
		BaudRate: cfg.Link.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Link.Port, &mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", cfg.Link.Port, err)
	}
	defer port.Close()
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	dev := vtxsim.NewDevice(devCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("smartaudio - VTX Simulator\n")
	fmt.Printf("Port: %s @ %d baud\n", cfg.Link.Port, cfg.Link.Baud)
	fmt.Printf("Settings: %s", smartaudio.FormatSettings(dev.Settings()))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	go reportSimulator(ctx, dev)

	err = dev.Serve(ctx, port)
	stats := dev.Stats()
	fmt.Printf("\n%d commands, %d responses, %d receive errors\n", stats.Commands, stats.Responses, stats.Errors)
	if err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("simulate: %v", err)
		return err
	}
	return nil
}

// reportSimulator prints the device settings whenever the host changes them
func reportSimulator(ctx context.Context, dev *vtxsim.Device) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	last := dev.Settings()
	lastPit := dev.PitFrequency()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s, pit := dev.Settings(), dev.PitFrequency()
			if s != last || pit != lastPit {
				fmt.Printf("[%s] Settings: %s", now.Format("15:04:05.000"), smartaudio.FormatSettings(s))
				if pit != lastPit {
					fmt.Printf("  Pit frequency: %d MHz\n", pit)
				}
				last, lastPit = s, pit
			}
		}
	}
}
