// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/sniffer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Passively decode the line and detect errors",
	Long: `Listen on the SmartAudio line without transmitting and track traffic in both
directions with statistics.

Host commands and VTX responses are told apart by which checksum they pass.
This command detects:
  - Framing errors (bad preamble, oversize length)
  - CRC errors on responses and on commands
  - Anomalous responses (channel out of range, power index out of range,
    frequency not matching the channel, short payloads)
  - Retransmissions and unanswered commands

By default, only errors are displayed. Use --show-all to display valid frames too.

Wire the adapter's RX to the VTX audio pad alongside the flight controller,
or use the WebSocket bridge.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := linkOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, err := openConnection(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runMonitorTUI(ctx, conn)
	}
	return runMonitorText(ctx, conn)
}

// runMonitorTUI runs the monitor in TUI mode
func runMonitorTUI(ctx context.Context, conn *connection) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialMonitorModel(conn.String(), statsInterval, showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	decoder := sniffer.NewDecoder()
	synchronized := false

	go func() {
		err := pumpLine(ctx, conn, func(at time.Time, data []byte) {
			var batch monitorBatchMsg
			for _, it := range decoder.Decode(at, data) {
				if !synchronized {
					synchronized = true
					batch.sync = &monitorSyncMsg{invalid: decoder.Skipped()}
				}
				batch.items = append(batch.items, it)
			}
			if batch.sync != nil || len(batch.items) > 0 {
				p.Send(batch)
			}
		})
		if err != nil {
			p.Send(monitorLinkErrMsg{err: err})
		}
	}()

	if _, err := p.Run(); err != nil && err != tea.ErrProgramKilled {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runMonitorText runs the monitor in text mode
func runMonitorText(ctx context.Context, conn *connection) error {
	fmt.Printf("smartaudio - Line Monitor\n")
	fmt.Printf("Connection: %s\n", conn)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := sniffer.NewDecoder()
	stats := sniffer.NewStatistics()
	synchronized := false
	lastStats := time.Now()

	err := pumpLine(ctx, conn, func(at time.Time, data []byte) {
		for _, it := range decoder.Decode(at, data) {
			if !synchronized {
				synchronized = true
				if n := decoder.Skipped(); n > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d errors\n\n", n)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			stats.Update(it)

			switch {
			case it.IsError():
				fmt.Print(formatItem(it))
			case len(it.Anomalies) > 0:
				printValidationErrors(it)
			case showAll:
				fmt.Print(formatItem(it))
			}
		}

		if time.Since(lastStats) >= time.Duration(statsInterval)*time.Second {
			lastStats = time.Now()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	})

	fmt.Println()
	fmt.Print(stats.String())
	return err
}
