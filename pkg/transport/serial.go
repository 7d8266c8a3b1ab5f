// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// readTimeout lets the reader goroutine notice Close
const readTimeout = 50 * time.Millisecond

// Serial is a native serial port. Baud rate changes are applied in place.
type Serial struct {
	rxBuffer

	mu     sync.Mutex
	port   serial.Port
	name   string
	mode   serial.Mode
	closed bool
}

// serialMode returns the 8N1 line settings SmartAudio runs at
func serialMode(baud int) serial.Mode {
	return serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenSerial opens a serial port at the given baud rate
func OpenSerial(name string, baud int) (*Serial, error) {
	mode := serialMode(baud)
	port, err := serial.Open(name, &mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}

	s := &Serial{port: port, name: name, mode: mode}
	// Reads return 0, nil on timeout; the pump loops on them
	s.start(port)
	return s, nil
}

// Write transmits bytes on the line
func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.port.Write(p)
}

// SetBaudRate reconfigures the port speed
func (s *Serial) SetBaudRate(baud int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.mode.BaudRate = baud
	if err := s.port.SetMode(&s.mode); err != nil {
		return fmt.Errorf("set %s to %d baud: %w", s.name, baud, err)
	}
	glog.V(2).Infof("transport: %s now at %d baud", s.name, baud)
	return nil
}

// BaudRate returns the configured baud rate
func (s *Serial) BaudRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode.BaudRate
}

// Close closes the port and stops the reader
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.detach()
	return s.port.Close()
}

func (s *Serial) String() string {
	return fmt.Sprintf("Serial: %s @ %d baud", s.name, s.BaudRate())
}
