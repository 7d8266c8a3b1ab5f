// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "github.com/golang/glog"

// Minimum payload lengths per response kind
const (
	settingsPayloadLen  = 5 // channel, power, opmode, frequency (2)
	frequencyPayloadLen = 3 // frequency (2), reserved
)

// processResponse resolves the outstanding command and applies a validated
// response frame to the device state
func (e *Engine) processResponse(f Frame) {
	resp := f.Code()

	switch {
	case resp == e.outstanding:
		// also matches a 0x00 response with nothing outstanding, which is
		// neither cleared nor counted
		e.outstanding = CmdNone
	case resp == CmdGetSettingsV2 && e.outstanding == CmdGetSettings:
		// V2 devices answer a V1 GetSettings with the V2 response
		e.outstanding = CmdNone
	default:
		e.stats.OutOfOrder++
		glog.V(1).Infof("smartaudio: outstanding %s got %s",
			FormatCommandName(e.outstanding), FormatCommandName(resp))
	}

	payload := f.Payload()

	switch resp {
	case CmdGetSettings, CmdGetSettingsV2:
		if len(payload) < settingsPayloadLen {
			return
		}
		e.applySettings(parseSettings(resp, payload))

	case CmdSetFrequency:
		if len(payload) < frequencyPayloadLen {
			return
		}
		freq := uint16(payload[0])<<8 | uint16(payload[1])
		switch {
		case freq&FreqGetPit != 0:
			e.status.PitFrequency = freq &^ FreqGetPit
			glog.V(2).Infof("smartaudio: pit frequency %d", e.status.PitFrequency)
			e.notify()
		case freq&FreqSetPit != 0:
			glog.V(2).Infof("smartaudio: set pit frequency ack %d", freq&^FreqSetPit)
		default:
			glog.V(2).Infof("smartaudio: frequency ack %d", freq)
		}

	case CmdSetPower, CmdSetChannel:
		// acknowledgement only

	case CmdSetMode:
		if len(payload) > 0 {
			glog.V(2).Infof("smartaudio: set mode ack 0x%02X", payload[0])
		}
	}
}

// parseSettings extracts a settings snapshot from a GetSettings payload
func parseSettings(resp uint8, payload []byte) Settings {
	s := Settings{
		Version:   Version1,
		Channel:   int(payload[0]),
		Power:     int(payload[1]),
		OpMode:    OpMode(payload[2]),
		Frequency: uint16(payload[3])<<8 | uint16(payload[4]),
	}
	if resp == CmdGetSettingsV2 {
		s.Version = Version2
	}
	return s
}

// applySettings commits a snapshot unless it equals the previous one
func (e *Engine) applySettings(s Settings) {
	e.settings = s
	if s == e.previous {
		return
	}

	glog.V(2).Info(FormatSettings(s))

	st := e.status
	st.Version = s.Version
	st.OpMode = s.OpMode
	if freq, ok := ChannelFrequency(s.Channel); ok {
		st.Band = s.Channel/ChannelsPerBand + 1
		st.Channel = s.Channel%ChannelsPerBand + 1
		st.Frequency = freq
	} else {
		st.Band, st.Channel, st.Frequency = 0, 0, 0
	}
	st.TxMode = txModeOf(s.OpMode)
	st.PowerIndex = s.Version.PowerIndex(uint8(s.Power)) + 1
	e.status = st

	e.previous = s
	e.notify()
}

func (e *Engine) notify() {
	if e.onStateChanged != nil {
		e.onStateChanged(e.status)
	}
}
