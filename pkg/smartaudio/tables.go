// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

// FrequencyTable maps band and channel index to frequency in MHz
var FrequencyTable = [BandCount][ChannelsPerBand]uint16{
	{5865, 5845, 5825, 5805, 5785, 5765, 5745, 5725}, // Boscam A
	{5733, 5752, 5771, 5790, 5809, 5828, 5847, 5866}, // Boscam B
	{5705, 5685, 5665, 5645, 5885, 5905, 5925, 5945}, // Boscam E
	{5740, 5760, 5780, 5800, 5820, 5840, 5860, 5880}, // FatShark
	{5658, 5695, 5732, 5769, 5806, 5843, 5880, 5917}, // RaceBand
}

// BandLetters holds the single-letter band names used on the display
const BandLetters = "ABEFR"

// BandNames holds the long band names
var BandNames = [BandCount]string{"Boscam A", "Boscam B", "Boscam E", "FatShark", "RaceBand"}

// PowerLevel is one entry of the power table
type PowerLevel struct {
	MilliWatts int   // reference output power
	ValueV1    uint8 // DAC value sent to V1 devices
	ValueV2    uint8 // table index sent to V2 devices
}

// PowerTable lists the four selectable power levels
var PowerTable = [4]PowerLevel{
	{MilliWatts: 25, ValueV1: 7, ValueV2: 0},
	{MilliWatts: 200, ValueV1: 16, ValueV2: 1},
	{MilliWatts: 500, ValueV1: 25, ValueV2: 2},
	{MilliWatts: 800, ValueV1: 40, ValueV2: 3},
}

// ChannelFrequency returns the frequency of a raw channel value
// (band*8 + channel). ok is false when the channel is out of range.
func ChannelFrequency(channel int) (freq uint16, ok bool) {
	if channel < 0 || channel >= ChannelCount {
		return 0, false
	}
	return FrequencyTable[channel/ChannelsPerBand][channel%ChannelsPerBand], true
}

// DacToPowerIndex converts a V1 DAC value to a 0-based power table index.
// It returns the first level whose DAC value does not exceed dac, or the
// last index when none matches.
func DacToPowerIndex(dac int) int {
	for idx := range PowerTable {
		if int(PowerTable[idx].ValueV1) <= dac {
			return idx
		}
	}
	return len(PowerTable) - 1
}
