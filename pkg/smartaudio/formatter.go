// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"fmt"
	"strings"
	"time"
)

// StatusStringEmpty is the display string before the first settings response
const StatusStringEmpty = "- - ---- --- ---- -"

// FormatCommandName returns the human-readable name for a raw command or
// response code
func FormatCommandName(code uint8) string {
	switch code {
	case CmdNone:
		return "NONE"
	case CmdGetSettings:
		return "GET_SETTINGS"
	case CmdSetPower:
		return "SET_POWER"
	case CmdSetChannel:
		return "SET_CHANNEL"
	case CmdSetFrequency:
		return "SET_FREQUENCY"
	case CmdSetMode:
		return "SET_MODE"
	case CmdGetSettingsV2:
		return "GET_SETTINGS_V2"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame formats a response frame into a human-readable string
func FormatFrame(at time.Time, f Frame) string {
	result := fmt.Sprintf("[%s] RX %s (0x%02X) len=%d\n",
		at.Format("15:04:05.000"), FormatCommandName(f.Code()), f.Code(), f.Length())
	return result + formatPayload(f.Code(), f.Payload())
}

// FormatCommandFrame formats a frame decoded by a command receiver. The
// frame code carries the command tag.
func FormatCommandFrame(at time.Time, f Frame) string {
	code := f.Code() >> 1
	result := fmt.Sprintf("[%s] TX %s (0x%02X) len=%d\n",
		at.Format("15:04:05.000"), FormatCommandName(code), f.Code(), f.Length())
	return result + formatCommandPayload(code, f.Payload())
}

func formatPayload(code uint8, payload []byte) string {
	switch code {
	case CmdGetSettings, CmdGetSettingsV2:
		if len(payload) >= settingsPayloadLen {
			return "  " + FormatSettings(parseSettings(code, payload))
		}

	case CmdSetFrequency:
		if len(payload) >= 2 {
			freq := uint16(payload[0])<<8 | uint16(payload[1])
			switch {
			case freq&FreqGetPit != 0:
				return fmt.Sprintf("  Pit frequency: %d MHz\n", freq&^FreqGetPit)
			case freq&FreqSetPit != 0:
				return fmt.Sprintf("  Pit frequency set: %d MHz\n", freq&^FreqSetPit)
			default:
				return fmt.Sprintf("  Frequency: %d MHz\n", freq)
			}
		}

	case CmdSetPower, CmdSetChannel, CmdSetMode:
		if len(payload) >= 1 {
			return fmt.Sprintf("  Value: %d (0x%02X)\n", payload[0], payload[0])
		}
	}

	return hexDump(payload)
}

func formatCommandPayload(code uint8, payload []byte) string {
	switch code {
	case CmdGetSettings:
		return "  (no payload)\n"

	case CmdSetChannel:
		if len(payload) >= 1 {
			ch := int(payload[0])
			if freq, ok := ChannelFrequency(ch); ok {
				return fmt.Sprintf("  Band: %c Channel: %d (%d MHz)\n",
					BandLetters[ch/ChannelsPerBand], ch%ChannelsPerBand+1, freq)
			}
			return fmt.Sprintf("  Channel: %d (out of range)\n", ch)
		}

	case CmdSetFrequency:
		if len(payload) >= 2 {
			freq := uint16(payload[0])<<8 | uint16(payload[1])
			switch {
			case freq&FreqGetPit != 0:
				return "  Get pit frequency\n"
			case freq&FreqSetPit != 0:
				return fmt.Sprintf("  Set pit frequency: %d MHz\n", freq&^FreqSetPit)
			default:
				return fmt.Sprintf("  Frequency: %d MHz\n", freq)
			}
		}

	case CmdSetPower:
		if len(payload) >= 1 {
			return fmt.Sprintf("  Power value: %d\n", payload[0])
		}

	case CmdSetMode:
		if len(payload) >= 1 {
			return "  Mode: " + FormatModeFlags(ModeFlags(payload[0])) + "\n"
		}
	}

	return hexDump(payload)
}

func hexDump(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	result := "  Payload: "
	for _, b := range payload {
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// FormatModeFlags formats SET-side mode flags
func FormatModeFlags(m ModeFlags) string {
	var parts []string
	if m&ModeSetInRangePitMode != 0 {
		parts = append(parts, "in-range-pit")
	}
	if m&ModeSetOutRangePitMode != 0 {
		parts = append(parts, "out-range-pit")
	}
	if m&ModeClearPitMode != 0 {
		parts = append(parts, "pit-toggle")
	}
	if m&ModeSetUnlock != 0 {
		parts = append(parts, "unlock")
	} else {
		parts = append(parts, "lock")
	}
	return strings.Join(parts, " ")
}

// FormatSettings formats a settings snapshot with decoded mode flags
func FormatSettings(s Settings) string {
	onOff := func(b bool) string {
		if b {
			return "on "
		}
		return "off"
	}
	vtx := "chan"
	if s.OpMode.FrequencyMode() {
		vtx = "freq"
	}
	lock := "locked"
	if s.OpMode.Unlocked() {
		lock = "unlocked"
	}
	return fmt.Sprintf("version=%s mode(0x%x): vtx=%s pit=%s inb=%s outb=%s lock=%s chan=%d freq=%d power=%d\n",
		s.Version, uint8(s.OpMode), vtx,
		onOff(s.OpMode.PitMode()), onOff(s.OpMode.InRangePitMode()), onOff(s.OpMode.OutRangePitMode()),
		lock, s.Channel, s.Frequency, s.Power)
}

// StatusString renders the compact on-screen display line: band letter,
// channel, frequency, reference power in mW and the pit frequency (V2 only)
func StatusString(s Status) string {
	if s.Version == VersionUnknown {
		return StatusStringEmpty
	}
	result := fmt.Sprintf("%c %d %4d %3d ", s.BandLetter(), s.Channel, s.Frequency, s.MilliWatts())
	if s.Version == Version2 {
		return result + fmt.Sprintf("%4d", s.PitFrequency)
	}
	return result + "----"
}
