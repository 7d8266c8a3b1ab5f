// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package smartaudio implements the host side of the SmartAudio VTX control
// protocol.
//
// SmartAudio is a half-duplex, single-wire serial protocol used by flight
// controllers to query and command video transmitters. This package provides
// frame reassembly, CRC validation, command encoding, response processing,
// a single-outstanding-command transport with retransmission, and an
// autobauding controller, all driven from one periodic Tick.
package smartaudio

import "time"

// Frame preamble bytes
const (
	Preamble1 = 0xAA
	Preamble2 = 0x55
)

// Frame size limits
const (
	MaxReceiveLength = 11                   // code + length + payload
	MaxPayloadSize   = MaxReceiveLength - 2 // 9
	frameHeaderSize  = 4                    // preamble1, preamble2, code, length
	MaxFrameSize     = frameHeaderSize + MaxPayloadSize + 1
)

// CRC8 configuration
const crcPolynomial = 0xD5

// Command and response codes (raw, before the command tag is applied)
const (
	CmdNone          = 0x00
	CmdGetSettings   = 0x01
	CmdSetPower      = 0x02
	CmdSetChannel    = 0x03
	CmdSetFrequency  = 0x04
	CmdSetMode       = 0x05
	CmdGetSettingsV2 = 0x09 // response only
)

// CommandByte tags a raw command code for transmission. Commands always carry
// the low bit set, which distinguishes them from responses on the shared line.
func CommandByte(cmd uint8) uint8 {
	return cmd<<1 | 1
}

// Op mode flags, GET side (reported in GetSettings responses)
const (
	ModeGetFreqByFreq      = 0x01
	ModeGetPitMode         = 0x02
	ModeGetInRangePitMode  = 0x04
	ModeGetOutRangePitMode = 0x08
	ModeGetUnlock          = 0x10
)

// Op mode flags, SET side (sent with SetMode)
const (
	ModeSetInRangePitMode  ModeFlags = 0x01
	ModeSetOutRangePitMode ModeFlags = 0x02
	ModeSetPitMode         ModeFlags = 0x04
	ModeClearPitMode       ModeFlags = 0x04
	ModeSetUnlock          ModeFlags = 0x08
	ModeSetLock            ModeFlags = 0x00

	modeSetMask = 0x1F
)

// SetFrequency flag bits for pit mode frequency manipulation
const (
	FreqGetPit  = 1 << 14
	FreqSetPit  = 1 << 15
	freqPitMask = FreqGetPit | FreqSetPit
)

// Command queue capacity: one heartbeat, two commands and one slack slot
const QueueSize = 4

// Default transport timing
const (
	DefaultCommandTimeout    = 120 * time.Millisecond
	DefaultHeartbeatInterval = 1000 * time.Millisecond
)

// Autobaud defaults, tuned to the baud tolerance of SmartAudio devices
const (
	DefaultBaudMin         = 4800
	DefaultBaudMax         = 4950
	DefaultBaudStep        = 50
	DefaultAutobaudSamples = 10
	DefaultHealthyRatio    = 70
)

// Bands and channels
const (
	BandCount       = 5
	ChannelsPerBand = 8
	ChannelCount    = BandCount * ChannelsPerBand
)
