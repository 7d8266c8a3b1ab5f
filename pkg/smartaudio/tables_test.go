// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "testing"

func TestChannelFrequency(t *testing.T) {
	tests := []struct {
		channel int
		freq    uint16
		ok      bool
	}{
		{0, 5865, true},
		{10, 5771, true},
		{39, 5917, true},
		{-1, 0, false},
		{40, 0, false},
	}

	for _, tt := range tests {
		freq, ok := ChannelFrequency(tt.channel)
		if freq != tt.freq || ok != tt.ok {
			t.Errorf("ChannelFrequency(%d) = %d, %v; want %d, %v", tt.channel, freq, ok, tt.freq, tt.ok)
		}
	}
}

func TestDacToPowerIndex(t *testing.T) {
	// First table entry whose DAC value does not exceed the input
	tests := []struct{ dac, index int }{
		{0, 3},
		{6, 3},
		{7, 0},
		{40, 0},
		{255, 0},
	}
	for _, tt := range tests {
		if got := DacToPowerIndex(tt.dac); got != tt.index {
			t.Errorf("DacToPowerIndex(%d) = %d, want %d", tt.dac, got, tt.index)
		}
	}
}

func TestVersionPowerIndex(t *testing.T) {
	if idx := VersionUnknown.PowerIndex(2); idx != -1 {
		t.Errorf("unknown version index %d, want -1", idx)
	}
	if idx := Version2.PowerIndex(2); idx != 2 {
		t.Errorf("V2 index %d, want 2", idx)
	}
	if idx := Version1.PowerIndex(40); idx != DacToPowerIndex(40) {
		t.Errorf("V1 index %d", idx)
	}
}

func TestStatusDisplayHelpers(t *testing.T) {
	st := Status{Band: 5, PowerIndex: 2}
	if st.BandLetter() != 'R' {
		t.Errorf("band letter %c", st.BandLetter())
	}
	if st.MilliWatts() != 200 {
		t.Errorf("milliwatts %d", st.MilliWatts())
	}
	if (Status{PowerIndex: 0}).MilliWatts() != 0 {
		t.Error("unknown power should report 0 mW")
	}
}
