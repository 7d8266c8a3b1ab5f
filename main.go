// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// smartaudio - SmartAudio VTX Control and Line Analyzer
//
// A CLI tool for controlling SmartAudio video transmitters and decoding
// SmartAudio traffic in human-readable format.

package main

import (
	"os"

	"github.com/Thermoquad/smartaudio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
