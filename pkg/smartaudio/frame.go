// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// Frame is a validated frame reassembled by the Receiver
type Frame struct {
	code    uint8
	length  uint8
	payload [MaxPayloadSize]byte
}

// NewFrame creates a frame with the given code and payload
func NewFrame(code uint8, payload []byte) (Frame, error) {
	if len(payload) > MaxPayloadSize {
		return Frame{}, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}
	f := Frame{code: code, length: uint8(len(payload))}
	copy(f.payload[:], payload)
	return f, nil
}

// Code returns the frame's response (or tagged command) code
func (f Frame) Code() uint8 {
	return f.code
}

// Length returns the payload length
func (f Frame) Length() uint8 {
	return f.length
}

// Payload returns the frame payload
func (f Frame) Payload() []byte {
	return f.payload[:f.length]
}

// Encode renders the frame as a response on the wire: preamble, code,
// length, payload and a CRC over code through payload.
func (f Frame) Encode() []byte {
	out := make([]byte, 0, frameHeaderSize+int(f.length)+1)
	out = append(out, Preamble1, Preamble2, f.code, f.length)
	out = append(out, f.Payload()...)
	return append(out, CalculateCRC(out[2:]))
}

// Command is a fully encoded outbound command frame, CRC included.
// It is stored by value in the queue and in the outstanding slot.
type Command struct {
	buf [MaxFrameSize]byte
	n   int
}

func newCommand(cmd uint8, payload ...byte) Command {
	var c Command
	c.buf[0] = Preamble1
	c.buf[1] = Preamble2
	c.buf[2] = CommandByte(cmd)
	c.buf[3] = uint8(len(payload))
	c.n = frameHeaderSize + copy(c.buf[frameHeaderSize:], payload)
	c.buf[c.n] = CalculateCRC(c.buf[:c.n])
	c.n++
	return c
}

// Bytes returns the wire bytes of the command
func (c *Command) Bytes() []byte {
	return c.buf[:c.n]
}

// Len returns the wire length of the command
func (c *Command) Len() int {
	return c.n
}

// Code returns the raw command code, undoing the command tag
func (c *Command) Code() uint8 {
	if c.n < frameHeaderSize {
		return CmdNone
	}
	return c.buf[2] >> 1
}

// Payload returns the command payload bytes
func (c *Command) Payload() []byte {
	if c.n <= frameHeaderSize {
		return nil
	}
	return c.buf[frameHeaderSize : c.n-1]
}

// IsZero reports whether the command holds no frame
func (c *Command) IsZero() bool {
	return c.n == 0
}
