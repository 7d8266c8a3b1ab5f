// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sniffer decodes both directions of a SmartAudio line.
//
// A passive tap on the single-wire line sees host commands and VTX
// responses interleaved. Decoder runs a response receiver and a command
// receiver side by side over the same bytes; each frame validates in
// exactly one of them, which tells the two directions apart.
package sniffer

import (
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// Item is one decoded frame or line error
type Item struct {
	At      time.Time
	Command bool // host to VTX
	Event   smartaudio.Event
	Frame   smartaudio.Frame // valid when Event is EventFrame

	// Anomalies holds response payload problems
	Anomalies []smartaudio.ValidationError
}

// IsError reports whether the item is a line error
func (it Item) IsError() bool {
	return it.Event != smartaudio.EventFrame
}

// Decoder implements the two-receiver line decoder
type Decoder struct {
	responses *smartaudio.Receiver
	commands  *smartaudio.Receiver

	synchronized bool
	skipped      int
}

// NewDecoder creates a new line decoder
func NewDecoder() *Decoder {
	return &Decoder{
		responses: smartaudio.NewReceiver(),
		commands:  smartaudio.NewCommandReceiver(),
	}
}

// Synchronized reports whether a valid frame has been seen
func (d *Decoder) Synchronized() bool {
	return d.synchronized
}

// Skipped returns the number of errors discarded before synchronization
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Reset returns both receivers to their idle state
func (d *Decoder) Reset() {
	d.responses.Reset()
	d.commands.Reset()
}

// DecodeByte processes a single byte. It returns an item when the byte
// completes a frame or ends one in error. Errors before the first valid
// frame are counted in Skipped and not returned.
func (d *Decoder) DecodeByte(at time.Time, b byte) (Item, bool) {
	respEv, respFrame := d.responses.Feed(b)
	cmdEv, cmdFrame := d.commands.Feed(b)

	var it Item
	switch {
	case respEv == smartaudio.EventFrame:
		it = Item{At: at, Event: respEv, Frame: respFrame, Anomalies: smartaudio.ValidateFrame(respFrame)}

	case cmdEv == smartaudio.EventFrame:
		it = Item{At: at, Command: true, Event: cmdEv, Frame: cmdFrame}

	case respEv == smartaudio.EventBadPreamble, respEv == smartaudio.EventBadLength, respEv == smartaudio.EventCRCError:
		it = Item{At: at, Event: respEv}

	case respEv == smartaudio.EventEcho && cmdEv == smartaudio.EventCRCError:
		// command-tagged code, bad in both directions
		it = Item{At: at, Command: true, Event: cmdEv}

	default:
		return Item{}, false
	}

	if it.IsError() && !d.synchronized {
		d.skipped++
		return Item{}, false
	}
	d.synchronized = true
	return it, true
}

// Decode processes a buffer and returns the items it completes
func (d *Decoder) Decode(at time.Time, data []byte) []Item {
	var items []Item
	for _, b := range data {
		if it, ok := d.DecodeByte(at, b); ok {
			items = append(items, it)
		}
	}
	return items
}
