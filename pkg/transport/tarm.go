// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"
	"github.com/tarm/serial"
)

// Tarm is a serial port backed by github.com/tarm/serial, for platforms
// where go.bug.st/serial cannot open the device. tarm/serial has no way to
// change the speed of an open port, so SetBaudRate reopens it.
type Tarm struct {
	rxBuffer

	mu     sync.Mutex
	port   *serial.Port
	cfg    serial.Config
	closed bool
}

// OpenTarm opens a serial port at the given baud rate
func OpenTarm(name string, baud int) (*Tarm, error) {
	t := &Tarm{cfg: serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
	}}
	if err := t.open(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tarm) open() error {
	cfg := t.cfg
	port, err := serial.OpenPort(&cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", t.cfg.Name, err)
	}
	t.port = port
	t.start(tarmReader{port})
	return nil
}

// tarmReader turns the io.EOF tarm/serial reports on read timeout into an
// empty read
type tarmReader struct {
	port *serial.Port
}

func (r tarmReader) Read(p []byte) (int, error) {
	n, err := r.port.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// Write transmits bytes on the line
func (t *Tarm) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	return t.port.Write(p)
}

// SetBaudRate closes the port and reopens it at the new speed. Bytes in
// flight during the reopen are lost.
func (t *Tarm) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	t.detach()
	if err := t.port.Close(); err != nil {
		glog.Warningf("transport: close %s for baud change: %v", t.cfg.Name, err)
	}
	t.cfg.Baud = baud
	if err := t.open(); err != nil {
		t.closed = true
		return err
	}
	glog.V(2).Infof("transport: %s reopened at %d baud", t.cfg.Name, baud)
	return nil
}

// BaudRate returns the configured baud rate
func (t *Tarm) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Baud
}

// Close closes the port and stops the reader
func (t *Tarm) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.detach()
	return t.port.Close()
}

func (t *Tarm) String() string {
	return fmt.Sprintf("Serial (tarm): %s @ %d baud", t.cfg.Name, t.BaudRate())
}
