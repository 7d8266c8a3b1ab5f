// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// OpModel selects how the VTX powers up
type OpModel int

const (
	OpModelFree OpModel = iota // power up transmitting
	OpModelPit                 // power up in pit mode
)

func (m OpModel) String() string {
	if m == OpModelPit {
		return "pit"
	}
	return "free"
}

// ParseOpModel parses "free" or "pit"
func ParseOpModel(s string) (OpModel, error) {
	switch s {
	case "free", "":
		return OpModelFree, nil
	case "pit":
		return OpModelPit, nil
	}
	return OpModelFree, fmt.Errorf("invalid op model %q (use free or pit)", s)
}

// PitFMode selects which pit mode variant is used
type PitFMode int

const (
	PitFModeInRange PitFMode = iota
	PitFModeOutRange
)

func (m PitFMode) String() string {
	if m == PitFModeOutRange {
		return "out-range"
	}
	return "in-range"
}

// ParsePitFMode parses "in-range" or "out-range"
func ParsePitFMode(s string) (PitFMode, error) {
	switch s {
	case "in-range", "":
		return PitFModeInRange, nil
	case "out-range":
		return PitFModeOutRange, nil
	}
	return PitFModeInRange, fmt.Errorf("invalid pit mode %q (use in-range or out-range)", s)
}

// Commander is the command surface a Selection drives. *Engine implements it.
type Commander interface {
	Status() Status
	Settings() Settings
	SetBandChannel(band, channel int) error
	SetPowerByIndex(index int) error
	SetMode(mode ModeFlags)
}

// Selection holds the values a user is editing in a menu and turns them
// into commands. Band, Channel and Power are 1-based; 0 means unknown and
// can only be left, never re-entered. After an Apply call the fields may
// have bounced back, and the UI should redisplay them.
type Selection struct {
	Band     int
	Channel  int
	Power    int
	TxMode   TxMode
	OpModel  OpModel
	PitFMode PitFMode
}

// Sync copies the device state into the selection
func (s *Selection) Sync(st Status) {
	s.Band = st.Band
	s.Channel = st.Channel
	s.Power = st.PowerIndex
	s.TxMode = st.TxMode
}

func (s *Selection) applyBandChannel(c Commander) error {
	ch := s.Channel
	if ch == 0 {
		ch = 1
		s.Channel = ch
	}
	return c.SetBandChannel(s.Band-1, ch-1)
}

// ApplyBand commands the selected band
func (s *Selection) ApplyBand(c Commander) error {
	if c.Status().Version == VersionUnknown {
		// not online yet
		s.Band = 0
		return nil
	}
	if s.Band == 0 {
		s.Band = 1
		return nil
	}
	return s.applyBandChannel(c)
}

// ApplyChannel commands the selected channel
func (s *Selection) ApplyChannel(c Commander) error {
	if c.Status().Version == VersionUnknown {
		s.Channel = 0
		return nil
	}
	if s.Channel == 0 {
		s.Channel = 1
		return nil
	}
	if s.Band == 0 {
		s.Band = 1
	}
	return s.applyBandChannel(c)
}

// ApplyPower commands the selected power level
func (s *Selection) ApplyPower(c Commander) error {
	if c.Status().Version == VersionUnknown {
		s.Power = 0
		return nil
	}
	if s.Power == 0 {
		s.Power = 1
		return nil
	}
	return c.SetPowerByIndex(s.Power - 1)
}

// ApplyTxMode switches between active and pit mode. Only V2 devices support
// it, and a device that left pit mode cannot be put back until power cycle.
func (s *Selection) ApplyTxMode(c Commander) {
	if c.Status().Version != Version2 {
		s.TxMode = TxModeUndefined
		return
	}
	if s.TxMode == TxModeUndefined {
		s.TxMode++
		return
	}

	if s.TxMode == TxModeActive {
		if s.OpModel == OpModelFree {
			c.SetMode(ModeClearPitMode)
		} else {
			c.SetMode(ModeClearPitMode | s.pitRangeFlag())
		}
		return
	}

	if !c.Settings().OpMode.PitMode() {
		s.TxMode = TxModeActive
	}
}

// ApplyOpModel commands the power-up behaviour
func (s *Selection) ApplyOpModel(c Commander) {
	if s.OpModel == OpModelFree {
		// clear the in-range and out-range bits
		c.SetMode(0)
		return
	}
	s.ApplyPitFMode(c)
}

// ApplyPitFMode commands the pit mode variant
func (s *Selection) ApplyPitFMode(c Commander) {
	c.SetMode(s.pitRangeFlag())
}

func (s *Selection) pitRangeFlag() ModeFlags {
	if s.PitFMode == PitFModeOutRange {
		return ModeSetOutRangePitMode
	}
	return ModeSetInRangePitMode
}
