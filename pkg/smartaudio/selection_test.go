// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelCall struct{ band, channel int }

type fakeCommander struct {
	status   Status
	settings Settings
	channels []channelCall
	powers   []int
	modes    []ModeFlags
}

func (f *fakeCommander) Status() Status     { return f.status }
func (f *fakeCommander) Settings() Settings { return f.settings }

func (f *fakeCommander) SetBandChannel(band, channel int) error {
	f.channels = append(f.channels, channelCall{band, channel})
	return nil
}

func (f *fakeCommander) SetPowerByIndex(index int) error {
	f.powers = append(f.powers, index)
	return nil
}

func (f *fakeCommander) SetMode(mode ModeFlags) {
	f.modes = append(f.modes, mode)
}

func onlineCommander(v Version) *fakeCommander {
	return &fakeCommander{
		status:   Status{Version: v, Band: 2, Channel: 3, PowerIndex: 2, TxMode: TxModeActive},
		settings: Settings{Version: v, Channel: 10},
	}
}

func TestSelection_Sync(t *testing.T) {
	c := onlineCommander(Version2)
	var s Selection
	s.Sync(c.Status())

	assert.Equal(t, 2, s.Band)
	assert.Equal(t, 3, s.Channel)
	assert.Equal(t, 2, s.Power)
	assert.Equal(t, TxModeActive, s.TxMode)
}

func TestSelection_Offline(t *testing.T) {
	c := &fakeCommander{}
	s := Selection{Band: 3, Channel: 4, Power: 2, TxMode: TxModeActive}

	require.NoError(t, s.ApplyBand(c))
	require.NoError(t, s.ApplyChannel(c))
	require.NoError(t, s.ApplyPower(c))
	s.ApplyTxMode(c)

	assert.Equal(t, Selection{}, s, "everything bounces back to unknown")
	assert.Empty(t, c.channels)
	assert.Empty(t, c.powers)
	assert.Empty(t, c.modes)
}

func TestSelection_UnknownFieldsCannotBeReentered(t *testing.T) {
	c := onlineCommander(Version2)
	var s Selection

	require.NoError(t, s.ApplyBand(c))
	assert.Equal(t, 1, s.Band)
	require.NoError(t, s.ApplyPower(c))
	assert.Equal(t, 1, s.Power)
	assert.Empty(t, c.channels)
	assert.Empty(t, c.powers)
}

func TestSelection_BandChannel(t *testing.T) {
	c := onlineCommander(Version1)

	s := Selection{Band: 5}
	require.NoError(t, s.ApplyBand(c))
	assert.Equal(t, 1, s.Channel, "unknown channel defaults to 1")
	require.NoError(t, s.ApplyChannel(c))

	s = Selection{Channel: 8}
	require.NoError(t, s.ApplyChannel(c))
	assert.Equal(t, 1, s.Band, "unknown band defaults to 1")

	assert.Equal(t, []channelCall{{4, 0}, {4, 0}, {0, 7}}, c.channels)
}

func TestSelection_Power(t *testing.T) {
	c := onlineCommander(Version1)
	s := Selection{Power: 4}
	require.NoError(t, s.ApplyPower(c))
	assert.Equal(t, []int{3}, c.powers)
}

func TestSelection_TxMode(t *testing.T) {
	t.Run("V1 has no pit mode", func(t *testing.T) {
		c := onlineCommander(Version1)
		s := Selection{TxMode: TxModeActive}
		s.ApplyTxMode(c)
		assert.Equal(t, TxModeUndefined, s.TxMode)
		assert.Empty(t, c.modes)
	})

	t.Run("undefined steps forward", func(t *testing.T) {
		c := onlineCommander(Version2)
		s := Selection{}
		s.ApplyTxMode(c)
		assert.Equal(t, TxModePitOutRange, s.TxMode)
		assert.Empty(t, c.modes)
	})

	t.Run("active with free model clears pit", func(t *testing.T) {
		c := onlineCommander(Version2)
		s := Selection{TxMode: TxModeActive}
		s.ApplyTxMode(c)
		assert.Equal(t, []ModeFlags{ModeClearPitMode}, c.modes)
	})

	t.Run("active with pit model keeps range flag", func(t *testing.T) {
		c := onlineCommander(Version2)
		s := Selection{TxMode: TxModeActive, OpModel: OpModelPit, PitFMode: PitFModeOutRange}
		s.ApplyTxMode(c)
		assert.Equal(t, []ModeFlags{ModeClearPitMode | ModeSetOutRangePitMode}, c.modes)
	})

	t.Run("pit cannot be re-entered", func(t *testing.T) {
		c := onlineCommander(Version2)
		s := Selection{TxMode: TxModePitInRange}
		s.ApplyTxMode(c)
		assert.Equal(t, TxModeActive, s.TxMode)
		assert.Empty(t, c.modes)
	})

	t.Run("pit kept while device is in pit", func(t *testing.T) {
		c := onlineCommander(Version2)
		c.settings.OpMode = ModeGetPitMode
		s := Selection{TxMode: TxModePitInRange}
		s.ApplyTxMode(c)
		assert.Equal(t, TxModePitInRange, s.TxMode)
	})
}

func TestSelection_OpModel(t *testing.T) {
	c := onlineCommander(Version2)

	s := Selection{OpModel: OpModelFree}
	s.ApplyOpModel(c)
	s = Selection{OpModel: OpModelPit, PitFMode: PitFModeInRange}
	s.ApplyOpModel(c)
	s.PitFMode = PitFModeOutRange
	s.ApplyPitFMode(c)

	assert.Equal(t, []ModeFlags{0, ModeSetInRangePitMode, ModeSetOutRangePitMode}, c.modes)
}

func TestParseModels(t *testing.T) {
	m, err := ParseOpModel("pit")
	require.NoError(t, err)
	assert.Equal(t, OpModelPit, m)
	_, err = ParseOpModel("race")
	assert.Error(t, err)

	p, err := ParsePitFMode("out-range")
	require.NoError(t, err)
	assert.Equal(t, PitFModeOutRange, p)
	assert.Equal(t, "out-range", p.String())
	_, err = ParsePitFMode("sideways")
	assert.Error(t, err)
}

func TestEngineIsCommander(t *testing.T) {
	var _ Commander = NewEngine(&fakeTransport{})
}
