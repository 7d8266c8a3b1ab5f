// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vtxsim simulates a SmartAudio video transmitter.
//
// A Device decodes host commands with a command receiver, applies them to
// its settings and answers with response frames. Link connects a Device to
// a SmartAudio engine in memory, optionally echoing host bytes the way a
// single-wire half-duplex line does and garbling traffic sent at a baud
// rate outside the device's tolerance window.
package vtxsim

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/golang/glog"
)

// Config describes the simulated device
type Config struct {
	Version      smartaudio.Version
	Channel      uint8 // band*8 + channel
	Power        uint8 // raw power value: DAC for V1, index for V2
	OpMode       smartaudio.OpMode
	PitFrequency uint16

	// Baud rates the device decodes correctly
	BaudMin int
	BaudMax int
}

// DefaultConfig returns a V2 device on A1 at 25mW that accepts the whole
// autobaud range
func DefaultConfig() Config {
	return Config{
		Version:      smartaudio.Version2,
		Channel:      0,
		Power:        0,
		PitFrequency: 5584,
		BaudMin:      smartaudio.DefaultBaudMin,
		BaudMax:      smartaudio.DefaultBaudMax,
	}
}

// Stats counts device activity
type Stats struct {
	Commands  uint64 // decoded commands
	Responses uint64 // responses sent
	Garbled   uint64 // writes lost to a baud mismatch
	Errors    uint64 // receiver errors
}

// Device is a simulated VTX. It is safe for concurrent use.
type Device struct {
	mu       sync.Mutex
	cfg      Config
	freq     uint16
	receiver *smartaudio.Receiver
	stats    Stats
}

// NewDevice creates a device
func NewDevice(cfg Config) *Device {
	d := &Device{cfg: cfg, receiver: smartaudio.NewCommandReceiver()}
	d.freq, _ = smartaudio.ChannelFrequency(int(cfg.Channel))
	return d
}

// Settings returns the device settings as a host would read them
func (d *Device) Settings() smartaudio.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return smartaudio.Settings{
		Version:   d.cfg.Version,
		Channel:   int(d.cfg.Channel),
		Power:     int(d.cfg.Power),
		OpMode:    d.cfg.OpMode,
		Frequency: d.freq,
	}
}

// PitFrequency returns the pit mode frequency
func (d *Device) PitFrequency() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.PitFrequency
}

// Stats returns a copy of the device counters
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Accepts reports whether the device decodes traffic at the given baud rate
func (d *Device) Accepts(baud int) bool {
	return baud >= d.cfg.BaudMin && baud <= d.cfg.BaudMax
}

// Handle feeds host bytes to the device and returns the wire bytes of any
// responses
func (d *Device) Handle(p []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []byte
	for _, b := range p {
		ev, f := d.receiver.Feed(b)
		switch ev {
		case smartaudio.EventFrame:
			d.stats.Commands++
			if resp, ok := d.execute(f); ok {
				d.stats.Responses++
				out = append(out, resp.Encode()...)
			}
		case smartaudio.EventBadPreamble, smartaudio.EventBadLength, smartaudio.EventCRCError:
			d.stats.Errors++
		}
	}
	return out
}

// garble records a write the device could not decode
func (d *Device) garble() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Garbled++
	d.receiver.Reset()
}

// execute applies one command and builds its response
func (d *Device) execute(f smartaudio.Frame) (smartaudio.Frame, bool) {
	cmd := f.Code() >> 1
	p := f.Payload()
	glog.V(2).Infof("vtxsim: %s % X", smartaudio.FormatCommandName(cmd), p)

	var resp []byte
	code := cmd

	switch cmd {
	case smartaudio.CmdGetSettings:
		if d.cfg.Version == smartaudio.Version2 {
			code = smartaudio.CmdGetSettingsV2
		}
		resp = []byte{d.cfg.Channel, d.cfg.Power, uint8(d.cfg.OpMode), uint8(d.freq >> 8), uint8(d.freq)}

	case smartaudio.CmdSetPower:
		if len(p) < 1 {
			return smartaudio.Frame{}, false
		}
		d.cfg.Power = p[0]
		resp = []byte{p[0], 0x01}

	case smartaudio.CmdSetChannel:
		if len(p) < 1 {
			return smartaudio.Frame{}, false
		}
		freq, ok := smartaudio.ChannelFrequency(int(p[0]))
		if !ok {
			return smartaudio.Frame{}, false
		}
		d.cfg.Channel = p[0]
		d.freq = freq
		d.cfg.OpMode &^= smartaudio.ModeGetFreqByFreq
		resp = []byte{p[0], 0x01}

	case smartaudio.CmdSetFrequency:
		if len(p) < 2 {
			return smartaudio.Frame{}, false
		}
		field := uint16(p[0])<<8 | uint16(p[1])
		switch {
		case field&smartaudio.FreqGetPit != 0:
			field = d.cfg.PitFrequency | smartaudio.FreqGetPit
		case field&smartaudio.FreqSetPit != 0:
			d.cfg.PitFrequency = field &^ smartaudio.FreqSetPit
		default:
			d.freq = field
			d.cfg.OpMode |= smartaudio.ModeGetFreqByFreq
		}
		resp = []byte{uint8(field >> 8), uint8(field), 0x01}

	case smartaudio.CmdSetMode:
		if len(p) < 1 {
			return smartaudio.Frame{}, false
		}
		d.setMode(smartaudio.ModeFlags(p[0]))
		resp = []byte{p[0]}

	default:
		return smartaudio.Frame{}, false
	}

	frame, err := smartaudio.NewFrame(code, resp)
	if err != nil {
		return smartaudio.Frame{}, false
	}
	return frame, true
}

// setMode applies SET-side mode flags to the GET-side op mode
func (d *Device) setMode(m smartaudio.ModeFlags) {
	op := d.cfg.OpMode & (smartaudio.ModeGetFreqByFreq | smartaudio.ModeGetPitMode | smartaudio.ModeGetUnlock)
	if m&smartaudio.ModeSetInRangePitMode != 0 {
		op |= smartaudio.ModeGetInRangePitMode
	}
	if m&smartaudio.ModeSetOutRangePitMode != 0 {
		op |= smartaudio.ModeGetOutRangePitMode
	}
	if m&smartaudio.ModeClearPitMode != 0 {
		op &^= smartaudio.ModeGetPitMode
	}
	if m&smartaudio.ModeSetUnlock != 0 {
		op |= smartaudio.ModeGetUnlock
	} else {
		op &^= smartaudio.ModeGetUnlock
	}
	d.cfg.OpMode = op
}

// Serve answers commands arriving on rw until ctx is done or rw fails.
// Baud rate tolerance is left to the real line.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := rw.Read(buf)
		if n > 0 {
			if resp := d.Handle(buf[:n]); len(resp) > 0 {
				if _, werr := rw.Write(resp); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
