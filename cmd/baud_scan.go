// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/spf13/cobra"
)

var (
	scanAttempts int
)

var baudScanCmd = &cobra.Command{
	Use:   "baud_scan",
	Short: "Measure the VTX response ratio at every baud rate in the autobaud range",
	Long: `Send settings queries at each baud rate from the autobaud minimum to maximum
and report how many the VTX answered.

SmartAudio transmitters are clocked loosely and often only decode a narrow
band around the nominal 4800 baud. The scan shows that band directly, where
the engine's autobaud would hunt for it.

Each query waits for one command timeout (120ms by default). Echoes of the
query on the half-duplex line are ignored.

Exit codes:
  0 - At least one baud rate got a response
  1 - No responses at any rate
  2 - Connection error`,
	RunE: runBaudScan,
}

func init() {
	rootCmd.AddCommand(baudScanCmd)
	baudScanCmd.Flags().IntVar(&scanAttempts, "attempts", 10, "Queries per baud rate")
}

// scanResult is the outcome at one baud rate
type scanResult struct {
	baud      int
	answered  int
	echoes    int
	errors    int
	sent      int
	lastReply smartaudio.Frame
}

func (r scanResult) ratio() float64 {
	if r.sent == 0 {
		return 0
	}
	return float64(r.answered) * 100.0 / float64(r.sent)
}

func runBaudScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := linkOptions(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, err := openConnection(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	ab := cfg.AutobaudConfig()
	timeout := cfg.EngineTiming().CommandTimeout

	fmt.Printf("smartaudio - Baud Scan\n")
	fmt.Printf("Connection: %s\n", conn)
	fmt.Printf("Range: %d-%d step %d, %d queries each\n\n", ab.Min, ab.Max, ab.Step, scanAttempts)

	var results []scanResult
	for baud := ab.Min; baud <= ab.Max; baud += ab.Step {
		if err := conn.Transport().SetBaudRate(baud); err != nil {
			fmt.Fprintf(os.Stderr, "SET BAUD FAILED: %v\n", err)
			os.Exit(2)
		}

		res, err := scanBaud(ctx, conn, baud, scanAttempts, timeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "READ FAILED: %v\n", err)
			os.Exit(2)
		}
		results = append(results, res)
		fmt.Printf("%5d baud: %2d/%d answered (%5.1f%%)  echoes=%d errors=%d\n",
			res.baud, res.answered, res.sent, res.ratio(), res.echoes, res.errors)
	}

	// Summary
	fmt.Printf("\n--- Scan summary ---\n")
	best := -1
	for i, r := range results {
		if r.answered > 0 && (best < 0 || r.answered > results[best].answered) {
			best = i
		}
	}
	if best < 0 {
		fmt.Printf("No responses. Check wiring, VTX power and that the line is pulled up.\n")
		os.Exit(1)
	}

	fmt.Printf("Best rate: %d baud (%.1f%% answered)\n", results[best].baud, results[best].ratio())
	fmt.Printf("Last reply: %s", smartaudio.FormatFrame(time.Now(), results[best].lastReply))
	return nil
}

// scanBaud sends attempts GetSettings queries at the current rate, waiting
// up to timeout for each answer
func scanBaud(ctx context.Context, conn *connection, baud, attempts int, timeout time.Duration) (scanResult, error) {
	t := conn.Transport()
	res := scanResult{baud: baud}
	query := smartaudio.NewGetSettings()
	line := append(append([]byte{0x00}, query.Bytes()...), 0x00)
	receiver := smartaudio.NewReceiver()

	for i := 0; i < attempts; i++ {
		if _, err := t.Write(line); err != nil {
			return res, err
		}
		res.sent++

		deadline := time.Now().Add(timeout)
	wait:
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(linePollInterval):
			}
			for t.Buffered() > 0 {
				b, err := t.ReadByte()
				if err != nil {
					break
				}
				ev, f := receiver.Feed(b)
				switch ev {
				case smartaudio.EventFrame:
					res.answered++
					res.lastReply = f
					break wait
				case smartaudio.EventEcho:
					res.echoes++
				case smartaudio.EventBadPreamble, smartaudio.EventBadLength, smartaudio.EventCRCError:
					res.errors++
				}
			}
			if err := conn.Err(); err != nil {
				return res, err
			}
		}
		receiver.Reset()
	}
	return res, nil
}
