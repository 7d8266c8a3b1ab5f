// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vtxsim

import (
	"io"
	"sync"
)

// Link is an in-memory host-side transport wired to a Device. Responses
// are available as soon as Write returns.
type Link struct {
	mu     sync.Mutex
	dev    *Device
	baud   int
	echo   bool
	rx     []byte
	bauds  []int
	writes int
}

// NewLink connects a host at the given baud rate to dev. With echo set the
// host reads back everything it writes, ahead of the response.
func NewLink(dev *Device, baud int, echo bool) *Link {
	return &Link{dev: dev, baud: baud, echo: echo}
}

// Write delivers host bytes to the device
func (l *Link) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writes++
	if l.echo {
		l.rx = append(l.rx, p...)
	}
	if !l.dev.Accepts(l.baud) {
		l.dev.garble()
		return len(p), nil
	}
	l.rx = append(l.rx, l.dev.Handle(p)...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting for the host
func (l *Link) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rx)
}

// ReadByte returns the next byte for the host
func (l *Link) ReadByte() (byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rx) == 0 {
		return 0, io.EOF
	}
	b := l.rx[0]
	l.rx = l.rx[1:]
	return b, nil
}

// SetBaudRate changes the host baud rate
func (l *Link) SetBaudRate(baud int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.baud = baud
	l.bauds = append(l.bauds, baud)
	return nil
}

// BaudRate returns the host baud rate
func (l *Link) BaudRate() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baud
}

// BaudChanges returns every baud rate the host switched to, in order
func (l *Link) BaudChanges() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.bauds...)
}

// Writes returns the number of host writes
func (l *Link) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}
