// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

// ReceiverState is a state of the frame reassembly state machine
type ReceiverState int

// Receiver states
const (
	StateWaitPreamble1 ReceiverState = iota
	StateWaitPreamble2
	StateWaitCode
	StateWaitLength
	StateData
	StateWaitCRC
)

func (s ReceiverState) String() string {
	switch s {
	case StateWaitPreamble1:
		return "WAIT_PREAMBLE1"
	case StateWaitPreamble2:
		return "WAIT_PREAMBLE2"
	case StateWaitCode:
		return "WAIT_CODE"
	case StateWaitLength:
		return "WAIT_LENGTH"
	case StateData:
		return "DATA"
	case StateWaitCRC:
		return "WAIT_CRC"
	default:
		return "UNKNOWN"
	}
}

// Event is the outcome of feeding one byte to the Receiver
type Event int

// Receiver events
const (
	EventNone        Event = iota // byte consumed, nothing to report
	EventFrame                    // a complete, CRC-valid frame is available
	EventBadPreamble              // second preamble byte mismatch
	EventBadLength                // length byte exceeds MaxPayloadSize
	EventCRCError                 // CRC mismatch
	EventEcho                     // CRC mismatch attributed to half-duplex echo
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventFrame:
		return "frame"
	case EventBadPreamble:
		return "bad preamble"
	case EventBadLength:
		return "bad length"
	case EventCRCError:
		return "CRC error"
	case EventEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// Receiver reassembles frames from a byte stream one byte at a time.
//
// A response receiver validates the CRC over code, length and payload, and
// treats CRC mismatches on codes with the low bit set as echoes of our own
// commands. A command receiver (NewCommandReceiver) validates the CRC from
// the preamble on, as devices do, and treats low-bit-clear mismatches as
// echoes of responses.
type Receiver struct {
	state    ReceiverState
	buf      [MaxReceiveLength]byte
	length   int
	count    int
	seed     byte
	commands bool
	frame    Frame
}

// NewReceiver creates a receiver for device responses
func NewReceiver() *Receiver {
	return &Receiver{}
}

// NewCommandReceiver creates a receiver for host commands
func NewCommandReceiver() *Receiver {
	return &Receiver{seed: preambleCRC, commands: true}
}

// State returns the current state
func (r *Receiver) State() ReceiverState {
	return r.state
}

// Reset returns the receiver to StateWaitPreamble1
func (r *Receiver) Reset() {
	r.state = StateWaitPreamble1
	r.length = 0
	r.count = 0
}

// Feed processes a single byte. When the returned event is EventFrame the
// returned frame holds the reassembled frame.
func (r *Receiver) Feed(b byte) (Event, Frame) {
	var ev Event
	r.state, ev = r.step(r.state, b)
	if ev == EventFrame {
		return ev, r.frame
	}
	return ev, Frame{}
}

// step is the transition function of the state machine
func (r *Receiver) step(s ReceiverState, b byte) (ReceiverState, Event) {
	switch s {
	case StateWaitPreamble1:
		if b == Preamble1 {
			return StateWaitPreamble2, EventNone
		}
		return StateWaitPreamble1, EventNone

	case StateWaitPreamble2:
		if b == Preamble2 {
			return StateWaitCode, EventNone
		}
		return StateWaitPreamble1, EventBadPreamble

	case StateWaitCode:
		r.buf[0] = b
		return StateWaitLength, EventNone

	case StateWaitLength:
		r.buf[1] = b
		r.length = int(b)
		if r.length > MaxPayloadSize {
			return StateWaitPreamble1, EventBadLength
		}
		if r.length == 0 {
			return StateWaitCRC, EventNone
		}
		r.count = 0
		return StateData, EventNone

	case StateData:
		// length was bounds-checked in StateWaitLength
		r.buf[2+r.count] = b
		r.count++
		if r.count == r.length {
			return StateWaitCRC, EventNone
		}
		return StateData, EventNone

	case StateWaitCRC:
		if updateCRC(r.seed, r.buf[:2+r.length]) == b {
			r.frame = Frame{code: r.buf[0], length: uint8(r.length)}
			copy(r.frame.payload[:], r.buf[2:2+r.length])
			return StateWaitPreamble1, EventFrame
		}
		if r.isEcho(r.buf[0]) {
			return StateWaitPreamble1, EventEcho
		}
		return StateWaitPreamble1, EventCRCError
	}

	return StateWaitPreamble1, EventNone
}

// isEcho applies the echo heuristic. It can hide genuine corruption of
// frames whose code happens to match the echo pattern.
func (r *Receiver) isEcho(code byte) bool {
	if r.commands {
		return code&1 == 0
	}
	return code&1 != 0
}
