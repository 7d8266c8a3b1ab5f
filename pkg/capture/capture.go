// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture stores SmartAudio line traffic as a stream of CBOR
// records, one per chunk of bytes written to or read from the line.
//
// Each record is encoded as a CBOR array: [direction, unix_nanos, bytes].
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction tells which side of the line a record was observed on
type Direction uint8

const (
	// TX is traffic written by the host
	TX Direction = 1
	// RX is traffic read from the line
	RX Direction = 2
)

func (d Direction) String() string {
	switch d {
	case TX:
		return "TX"
	case RX:
		return "RX"
	default:
		return fmt.Sprintf("DIR(%d)", uint8(d))
	}
}

// Record is one captured chunk of line traffic
type Record struct {
	Dir  Direction
	At   time.Time
	Data []byte
}

// wireRecord is the on-disk layout of a Record
type wireRecord struct {
	_    struct{} `cbor:",toarray"`
	Dir  uint8
	At   int64
	Data []byte
}

// ErrInvalidRecord is returned for records that decode but make no sense
var ErrInvalidRecord = errors.New("invalid capture record")

// Writer appends records to an underlying stream. It is safe for
// concurrent use.
type Writer struct {
	mu  sync.Mutex
	bw  *bufio.Writer
	enc *cbor.Encoder
	n   int
}

// NewWriter creates a capture writer
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{bw: bw, enc: cbor.NewEncoder(bw)}
}

// Write appends one record. Empty data is ignored.
func (w *Writer) Write(r Record) error {
	if len(r.Data) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	wr := wireRecord{Dir: uint8(r.Dir), At: r.At.UnixNano(), Data: r.Data}
	if err := w.enc.Encode(wr); err != nil {
		return fmt.Errorf("encode capture record: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Flush writes buffered records to the underlying stream
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bw.Flush()
}

// Reader decodes records from a capture stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a capture reader
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(bufio.NewReader(r))}
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (Record, error) {
	var wr wireRecord
	if err := r.dec.Decode(&wr); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("decode capture record: %w", err)
	}

	dir := Direction(wr.Dir)
	if dir != TX && dir != RX {
		return Record{}, fmt.Errorf("%w: direction %d", ErrInvalidRecord, wr.Dir)
	}

	return Record{Dir: dir, At: time.Unix(0, wr.At), Data: wr.Data}, nil
}

// ReadAll decodes every remaining record
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
