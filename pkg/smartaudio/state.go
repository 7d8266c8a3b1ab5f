// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// Version is the negotiated protocol dialect
type Version int

// Protocol versions
const (
	VersionUnknown Version = iota
	Version1
	Version2
)

func (v Version) String() string {
	switch v {
	case Version1:
		return "V1"
	case Version2:
		return "V2"
	default:
		return "unknown"
	}
}

// powerEncoding converts between power table indices and the raw power
// value a device of a given version reports and accepts
type powerEncoding interface {
	encode(index int) uint8
	index(raw uint8) int
}

type dacPower struct{}

func (dacPower) encode(index int) uint8 { return PowerTable[index].ValueV1 }
func (dacPower) index(raw uint8) int    { return DacToPowerIndex(int(raw)) }

type indexPower struct{}

func (indexPower) encode(index int) uint8 { return PowerTable[index].ValueV2 }
func (indexPower) index(raw uint8) int    { return int(raw) }

// power returns the power encoding of the version, or nil when unknown
func (v Version) power() powerEncoding {
	switch v {
	case Version1:
		return dacPower{}
	case Version2:
		return indexPower{}
	default:
		return nil
	}
}

// EncodePower returns the raw power value for a 0-based power table index
func (v Version) EncodePower(index int) (uint8, error) {
	enc := v.power()
	if enc == nil {
		return 0, ErrVersionUnknown
	}
	if index < 0 || index >= len(PowerTable) {
		return 0, ErrInvalidPowerIndex
	}
	return enc.encode(index), nil
}

// PowerIndex returns the 0-based power table index of a raw power value,
// or -1 when the version is unknown
func (v Version) PowerIndex(raw uint8) int {
	enc := v.power()
	if enc == nil {
		return -1
	}
	return enc.index(raw)
}

// OpMode is the GET-side op mode bitfield reported by the device
type OpMode uint8

// FrequencyMode reports whether the device is tuned by frequency rather
// than by channel
func (m OpMode) FrequencyMode() bool { return m&ModeGetFreqByFreq != 0 }

// PitMode reports whether pit mode is active
func (m OpMode) PitMode() bool { return m&ModeGetPitMode != 0 }

// InRangePitMode reports the in-range pit mode flag
func (m OpMode) InRangePitMode() bool { return m&ModeGetInRangePitMode != 0 }

// OutRangePitMode reports the out-range pit mode flag
func (m OpMode) OutRangePitMode() bool { return m&ModeGetOutRangePitMode != 0 }

// Unlocked reports whether the device is unlocked
func (m OpMode) Unlocked() bool { return m&ModeGetUnlock != 0 }

// ModeFlags is the SET-side mode bitfield sent with SetMode
type ModeFlags uint8

// TxMode classifies the transmit state of the device
type TxMode int

// Transmit modes
const (
	TxModeUndefined TxMode = iota
	TxModePitOutRange
	TxModePitInRange
	TxModeActive
)

func (m TxMode) String() string {
	switch m {
	case TxModePitOutRange:
		return "PIT (out-range)"
	case TxModePitInRange:
		return "PIT (in-range)"
	case TxModeActive:
		return "ACTIVE"
	default:
		return "undefined"
	}
}

// txModeOf derives the transmit mode from GET-side op mode flags
func txModeOf(m OpMode) TxMode {
	switch {
	case !m.PitMode():
		return TxModeActive
	case m.InRangePitMode():
		return TxModePitInRange
	default:
		return TxModePitOutRange
	}
}

// Settings is the device snapshot carried by one GetSettings response.
// All fields come from the same frame.
type Settings struct {
	Version   Version
	Channel   int // band*8 + channel, -1 before the first response
	Power     int // raw power value, meaning depends on Version
	OpMode    OpMode
	Frequency uint16
}

// unknownSettings is the snapshot before any response has arrived
var unknownSettings = Settings{Version: VersionUnknown, Channel: -1, Power: -1}

// Known reports whether the snapshot came from a device response
func (s Settings) Known() bool {
	return s.Version != VersionUnknown
}

// Status is the device state exposed to display and UI callers.
// Band, Channel and PowerIndex are 1-based with 0 meaning unknown.
type Status struct {
	Version      Version
	Band         int
	Channel      int
	Frequency    uint16
	PowerIndex   int
	TxMode       TxMode
	PitFrequency uint16
	OpMode       OpMode
}

// MilliWatts returns the reference output power of the current power
// index, or 0 when unknown
func (s Status) MilliWatts() int {
	if s.PowerIndex < 1 || s.PowerIndex > len(PowerTable) {
		return 0
	}
	return PowerTable[s.PowerIndex-1].MilliWatts
}

// BandLetter returns the display letter of the band, or '-' when unknown
func (s Status) BandLetter() byte {
	if s.Band < 1 || s.Band > BandCount {
		return '-'
	}
	return BandLetters[s.Band-1]
}

func (s Status) String() string {
	return fmt.Sprintf("version=%s band=%c chan=%d freq=%d power=%d tx=%s pit=%d",
		s.Version, s.BandLetter(), s.Channel, s.Frequency, s.PowerIndex, s.TxMode, s.PitFrequency)
}
