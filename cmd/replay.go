// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/smartaudio/pkg/capture"
	"github.com/Thermoquad/smartaudio/pkg/sniffer"
	"github.com/spf13/cobra"
)

var (
	replayHex    bool
	replayErrors bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a recorded capture file",
	Long: `Decode a capture recorded with --capture and print it like raw_log.

Records are decoded in order with the same passive decoder the monitor
uses, so host commands and VTX responses are told apart by their framing
rather than by the recorded direction. A statistics summary is printed at
the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayHex, "hex", false, "Print the raw bytes of every record")
	replayCmd.Flags().BoolVar(&replayErrors, "errors-only", false, "Print only line errors and anomalous frames")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	stats, records, err := replay(f, os.Stdout, replayHex, replayErrors)
	if err != nil {
		return fmt.Errorf("%s: record %d: %w", args[0], records+1, err)
	}

	fmt.Printf("\n%d records\n", records)
	fmt.Print(stats.String())
	return nil
}

// replay decodes every record from r, printing items to out, and returns
// the line statistics and the number of records read
func replay(r io.Reader, out io.Writer, hex, errorsOnly bool) (*sniffer.Statistics, int, error) {
	reader := capture.NewReader(r)
	decoder := sniffer.NewDecoder()
	stats := sniffer.NewStatistics()

	records := 0
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, records, nil
		}
		if err != nil {
			return stats, records, err
		}
		records++

		if hex {
			fmt.Fprintf(out, "[%s] %s % X\n", rec.At.Format("15:04:05.000"), rec.Dir, rec.Data)
		}
		for _, it := range decoder.Decode(rec.At, rec.Data) {
			stats.Update(it)
			if errorsOnly && !it.IsError() && len(it.Anomalies) == 0 {
				continue
			}
			fmt.Fprint(out, formatItem(it))
		}
	}
}
