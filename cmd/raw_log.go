// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/sniffer"
	"github.com/charmbracelet/x/ansi"
	"github.com/golang/glog"
	"github.com/natefinch/lumberjack"
	"github.com/spf13/cobra"
)

var (
	logFile       string
	logMaxSizeMB  int
	logMaxBackups int
	logMaxAgeDays int
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display SmartAudio frames as they cross the line.

Each frame is shown with timestamp, direction (TX for host commands, RX for
VTX responses), command name and decoded payload. Line errors are shown
inline.

With --log-file the same output is also written to a size-rotated log file.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&logFile, "log-file", "", "Also write the log to this file, rotated by size")
	rawLogCmd.Flags().IntVar(&logMaxSizeMB, "log-max-size", 10, "Maximum log file size in megabytes before rotation")
	rawLogCmd.Flags().IntVar(&logMaxBackups, "log-max-backups", 5, "Rotated log files to keep")
	rawLogCmd.Flags().IntVar(&logMaxAgeDays, "log-max-age", 28, "Days to keep rotated log files")
}

// plainWriter strips terminal escape sequences from file output
type plainWriter struct {
	w io.Writer
}

func (p plainWriter) Write(b []byte) (int, error) {
	if _, err := io.WriteString(p.w, ansi.Strip(string(b))); err != nil {
		return 0, err
	}
	return len(b), nil
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = logFile
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

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		defer rotated.Close()
		out = io.MultiWriter(os.Stdout, plainWriter{rotated})
	}

	fmt.Fprintf(out, "smartaudio - Raw Frame Log\n")
	fmt.Fprintf(out, "Connection: %s\n", conn)
	if cfg.LogFile != "" {
		fmt.Fprintf(out, "Log file: %s\n", cfg.LogFile)
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	decoder := sniffer.NewDecoder()
	err = pumpLine(ctx, conn, func(at time.Time, data []byte) {
		for _, it := range decoder.Decode(at, data) {
			fmt.Fprint(out, formatItem(it))
		}
	})
	if err != nil {
		glog.Errorf("raw_log: %v", err)
		fmt.Fprintf(out, "Connection closed: %v\n", err)
	}
	return nil
}
