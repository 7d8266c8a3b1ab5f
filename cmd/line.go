// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/Thermoquad/smartaudio/pkg/sniffer"
)

const linePollInterval = 5 * time.Millisecond

// pumpLine passes received bytes to fn until ctx is done or the link fails.
// Nothing is transmitted.
func pumpLine(ctx context.Context, conn *connection, fn func(at time.Time, data []byte)) error {
	t := conn.Transport()
	ticker := time.NewTicker(linePollInterval)
	defer ticker.Stop()

	buf := make([]byte, 0, 64)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		buf = buf[:0]
		for n := t.Buffered(); n > 0; n-- {
			b, err := t.ReadByte()
			if err != nil {
				break
			}
			buf = append(buf, b)
		}
		if len(buf) > 0 {
			fn(time.Now(), buf)
		}

		if err := conn.Err(); err != nil {
			return err
		}
	}
}

// formatItem renders a decoded line item the way raw_log prints it
func formatItem(it sniffer.Item) string {
	if it.IsError() {
		dir := "RX"
		if it.Command {
			dir = "TX"
		}
		return fmt.Sprintf("[%s] %s \033[1;31m%s\033[0m\n", it.At.Format("15:04:05.000"), dir, strings.ToUpper(it.Event.String()))
	}
	if it.Command {
		return smartaudio.FormatCommandFrame(it.At, it.Frame)
	}
	return smartaudio.FormatFrame(it.At, it.Frame)
}

// itemName returns the command name of a decoded frame
func itemName(it sniffer.Item) string {
	if it.Command {
		return smartaudio.FormatCommandName(it.Frame.Code() >> 1)
	}
	return smartaudio.FormatCommandName(it.Frame.Code())
}

// printValidationErrors prints payload anomalies for a response
func printValidationErrors(it sniffer.Item) {
	timestamp := it.At.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, itemName(it), it.Frame.Code())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range it.Anomalies {
		switch err.Type {
		case smartaudio.AnomalyLengthMismatch, smartaudio.AnomalyChannelRange:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
		case smartaudio.AnomalyPowerRange, smartaudio.AnomalyFrequencyMismatch:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}
	fmt.Printf("  Payload: % X\n", it.Frame.Payload())
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}
