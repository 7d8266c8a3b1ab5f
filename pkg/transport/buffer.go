// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte-level links a SmartAudio engine talks
// over: native serial ports, a WebSocket serial bridge, and a capture tap.
//
// Every transport drains its underlying reader on a background goroutine
// into a buffer, so Buffered and ReadByte never block the engine tick.
package transport

import (
	"errors"
	"io"
	"sync"
)

// maxBuffered bounds unread receive data. A stalled engine loses the
// oldest bytes, which the frame receiver resynchronizes from.
const maxBuffered = 4096

// ErrClosed is returned by operations on a closed transport
var ErrClosed = errors.New("transport closed")

// rxBuffer collects bytes from a reader goroutine
type rxBuffer struct {
	mu   sync.Mutex
	data []byte
	err  error
	gen  int
}

// start begins draining r. Any previous pump is detached and its
// remaining reads are discarded.
func (b *rxBuffer) start(r io.Reader) {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.err = nil
	b.mu.Unlock()

	go b.pump(r, gen)
}

// detach stops accepting data from the current pump
func (b *rxBuffer) detach() {
	b.mu.Lock()
	b.gen++
	b.mu.Unlock()
}

func (b *rxBuffer) pump(r io.Reader, gen int) {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)

		b.mu.Lock()
		if b.gen != gen {
			b.mu.Unlock()
			return
		}
		if n > 0 {
			b.data = append(b.data, buf[:n]...)
			if over := len(b.data) - maxBuffered; over > 0 {
				b.data = append(b.data[:0], b.data[over:]...)
			}
		}
		if err != nil {
			b.err = err
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}
}

// Buffered returns the number of unread bytes
func (b *rxBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// ReadByte returns the next unread byte without blocking. Once the buffer
// is empty it returns the error that stopped the pump, or io.EOF.
func (b *rxBuffer) ReadByte() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	c := b.data[0]
	b.data = b.data[1:]
	return c, nil
}

// Err returns the error that stopped the reader, if any
func (b *rxBuffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
