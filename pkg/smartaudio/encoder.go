// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

// Command builder functions create fully encoded command frames.
// Every frame is [0xAA, 0x55, cmd<<1|1, len, payload..., crc] with the CRC
// computed over all preceding bytes.

// NewGetSettings creates a GET_SETTINGS command (0x01)
func NewGetSettings() Command {
	return newCommand(CmdGetSettings)
}

// NewSetPower creates a SET_POWER command (0x02) for a 0-based power table
// index. The raw value depends on the negotiated version, so encoding fails
// while the version is unknown.
func NewSetPower(version Version, index int) (Command, error) {
	raw, err := version.EncodePower(index)
	if err != nil {
		return Command{}, err
	}
	return newCommand(CmdSetPower, raw), nil
}

// NewSetChannel creates a SET_CHANNEL command (0x03).
// band is 0-4, channel is 0-7.
func NewSetChannel(band, channel int) (Command, error) {
	if band < 0 || band >= BandCount {
		return Command{}, ErrInvalidBand
	}
	if channel < 0 || channel >= ChannelsPerBand {
		return Command{}, ErrInvalidChannel
	}
	return newCommand(CmdSetChannel, uint8(band*ChannelsPerBand+channel)), nil
}

// NewSetFrequency creates a SET_FREQUENCY command (0x04) carrying the raw
// 16-bit frequency field, big-endian. The two top bits select the pit
// frequency operations; use NewGetPitFrequency and NewSetPitFrequency for
// those.
func NewSetFrequency(freq uint16) Command {
	return newCommand(CmdSetFrequency, uint8(freq>>8), uint8(freq))
}

// NewGetPitFrequency creates a SET_FREQUENCY command requesting the pit
// mode frequency
func NewGetPitFrequency() Command {
	return NewSetFrequency(FreqGetPit)
}

// NewSetPitFrequency creates a SET_FREQUENCY command that sets the pit mode
// frequency
func NewSetPitFrequency(freq uint16) (Command, error) {
	if freq&freqPitMask != 0 {
		return Command{}, ErrInvalidFrequency
	}
	return NewSetFrequency(freq | FreqSetPit), nil
}

// NewSetMode creates a SET_MODE command (0x05). Only the low five bits of
// mode are sent.
func NewSetMode(mode ModeFlags) Command {
	return newCommand(CmdSetMode, uint8(mode)&modeSetMask)
}
