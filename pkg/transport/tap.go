// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"time"

	"github.com/Thermoquad/smartaudio/pkg/capture"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/golang/glog"
)

// Tap records all traffic of a transport to a capture stream. Received
// bytes are grouped into one record per drained burst.
type Tap struct {
	smartaudio.Transport

	w       *capture.Writer
	now     func() time.Time
	pending []byte
	at      time.Time
}

// NewTap wraps t, recording to w
func NewTap(t smartaudio.Transport, w *capture.Writer) *Tap {
	return &Tap{Transport: t, w: w, now: time.Now}
}

// Write records and forwards transmitted bytes
func (t *Tap) Write(p []byte) (int, error) {
	t.flushRX()
	t.record(capture.Record{Dir: capture.TX, At: t.now(), Data: append([]byte(nil), p...)})
	return t.Transport.Write(p)
}

// Buffered forwards to the wrapped transport, closing the current receive
// record when it runs dry
func (t *Tap) Buffered() int {
	n := t.Transport.Buffered()
	if n == 0 {
		t.flushRX()
	}
	return n
}

// ReadByte forwards to the wrapped transport and records the byte
func (t *Tap) ReadByte() (byte, error) {
	b, err := t.Transport.ReadByte()
	if err != nil {
		return b, err
	}
	if len(t.pending) == 0 {
		t.at = t.now()
	}
	t.pending = append(t.pending, b)
	return b, nil
}

// Flush records pending receive bytes and flushes the capture writer
func (t *Tap) Flush() error {
	t.flushRX()
	return t.w.Flush()
}

func (t *Tap) flushRX() {
	if len(t.pending) == 0 {
		return
	}
	t.record(capture.Record{Dir: capture.RX, At: t.at, Data: t.pending})
	t.pending = nil
}

func (t *Tap) record(r capture.Record) {
	if err := t.w.Write(r); err != nil {
		glog.Warningf("transport: capture: %v", err)
	}
}
