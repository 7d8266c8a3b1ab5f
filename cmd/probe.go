// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/spf13/cobra"
)

var (
	probeTimeout int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the link by reading the VTX settings",
	Long: `Query the VTX settings and wait for a valid response until timeout.

The engine runs as it would in the control UI: it queues a settings and a
pit frequency query, retransmits every 120ms without an answer and, once
enough commands went unanswered, steps the baud rate through the autobaud
range. Echoes of our own commands on the half-duplex line are ignored.

Exit codes:
  0 - VTX answered before timeout
  1 - Timeout reached without a valid response
  2 - Connection error

Useful for checking wiring and finding the baud rate a transmitter decodes.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a response")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := linkOptions(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	conn, err := openConnection(context.Background(), cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("smartaudio - Probe\n")
	fmt.Printf("Connection: %s\n", conn)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for VTX settings...\n\n")

	var pitSeen bool
	e := smartaudio.NewEngine(conn.Transport(), append(cfg.EngineOptions(),
		smartaudio.WithFrameHandler(func(f smartaudio.Frame) {
			if f.Code() == smartaudio.CmdSetFrequency {
				pitSeen = true
			}
		}))...)

	code := probe(e, conn, cfg.TickInterval(), time.Duration(probeTimeout)*time.Second, &pitSeen)
	conn.Close()
	os.Exit(code)
	return nil
}

// probe ticks the engine until the VTX answered or the timeout expires and
// returns the exit code
func probe(e *smartaudio.Engine, conn *connection, interval, timeout time.Duration, pitSeen *bool) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	deadline := start.Add(timeout)
	var online time.Time

	for now := range ticker.C {
		e.Tick(now.Sub(start))

		if err := conn.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			return 2
		}

		st := e.Status()
		if st.Version != smartaudio.VersionUnknown && online.IsZero() {
			online = now
		}
		// give a V2 device a moment to answer the pit frequency query
		if !online.IsZero() && (st.Version != smartaudio.Version2 || *pitSeen || now.Sub(online) > time.Second) {
			printProbeResult(e)
			return 0
		}
		if now.After(deadline) {
			stats := e.Statistics()
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid response within %d seconds\n", probeTimeout)
			fmt.Fprintf(os.Stderr, "  Sent %d frames, %d retransmits, %d echoes, %d errors; last baud %d\n",
				stats.TotalSent, stats.Retransmits, stats.Echoes, stats.Errors(), e.BaudRate())
			return 1
		}
	}
	return 1
}

func printProbeResult(e *smartaudio.Engine) {
	st := e.Status()
	stats := e.Statistics()

	fmt.Printf("SUCCESS: VTX answered\n")
	fmt.Printf("  Protocol: SmartAudio %s\n", st.Version)
	fmt.Printf("  Baud rate: %d\n", e.BaudRate())
	fmt.Printf("  Settings: %s", smartaudio.FormatSettings(e.Settings()))
	fmt.Printf("  Band: %c (%s)  Channel: %d  Frequency: %d MHz\n", st.BandLetter(), bandName(st.Band), st.Channel, st.Frequency)
	fmt.Printf("  Power: %d mW (index %d)\n", st.MilliWatts(), st.PowerIndex)
	fmt.Printf("  TX mode: %s\n", st.TxMode)
	if st.Version == smartaudio.Version2 {
		fmt.Printf("  Pit frequency: %d MHz\n", st.PitFrequency)
	}
	fmt.Printf("  OSD: %q\n", smartaudio.StatusString(st))
	fmt.Printf("  Link: %d sent, %d received, %d retransmits, %d echoes\n",
		stats.TotalSent, stats.TotalReceived, stats.Retransmits, stats.Echoes)
}

// bandName returns the long name of a 1-based band
func bandName(band int) string {
	if band < 1 || band > smartaudio.BandCount {
		return "unknown"
	}
	return smartaudio.BandNames[band-1]
}
