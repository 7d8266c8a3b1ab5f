// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// Statistics tracks link traffic and error counters
type Statistics struct {
	// Autobaud sample window, reset after every autobaud evaluation
	Sent     uint32
	Received uint32

	// Lifetime counters, never reset
	TotalSent       uint64
	TotalReceived   uint64
	BadPreamble     uint64
	BadLength       uint64
	CRCErrors       uint64
	OutOfOrder      uint64
	Echoes          uint64
	Retransmits     uint64
	DroppedCommands uint64
	TransportErrors uint64
	BaudChanges     uint64
}

// record accounts for a receiver event
func (s *Statistics) record(ev Event) {
	switch ev {
	case EventFrame:
		s.Received++
		s.TotalReceived++
	case EventBadPreamble:
		s.BadPreamble++
	case EventBadLength:
		s.BadLength++
	case EventCRCError:
		s.CRCErrors++
	case EventEcho:
		s.Echoes++
	}
}

// countSent accounts for one frame put on the wire
func (s *Statistics) countSent() {
	s.Sent++
	s.TotalSent++
}

// resetWindow clears the autobaud sample window
func (s *Statistics) resetWindow() {
	s.Sent = 0
	s.Received = 0
}

// Errors returns the total of framing, integrity and sequencing errors
func (s *Statistics) Errors() uint64 {
	return s.BadPreamble + s.BadLength + s.CRCErrors + s.OutOfOrder
}

// ResponseRatio returns the lifetime percentage of sent frames that were
// answered, or 0 before anything was sent
func (s *Statistics) ResponseRatio() float64 {
	if s.TotalSent == 0 {
		return 0
	}
	return float64(s.TotalReceived) * 100.0 / float64(s.TotalSent)
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	result := "=== Link Statistics ===\n"
	result += fmt.Sprintf("Sent:            %8d\n", s.TotalSent)
	result += fmt.Sprintf("Received:        %8d (%.1f%%)\n", s.TotalReceived, s.ResponseRatio())
	if s.Retransmits > 0 {
		result += fmt.Sprintf("Retransmits:     %8d\n", s.Retransmits)
	}
	if s.Errors() > 0 {
		result += fmt.Sprintf("Errors:          %8d\n", s.Errors())
		if s.BadPreamble > 0 {
			result += fmt.Sprintf("  Bad Preamble:     %5d\n", s.BadPreamble)
		}
		if s.BadLength > 0 {
			result += fmt.Sprintf("  Bad Length:       %5d\n", s.BadLength)
		}
		if s.CRCErrors > 0 {
			result += fmt.Sprintf("  CRC Errors:       %5d\n", s.CRCErrors)
		}
		if s.OutOfOrder > 0 {
			result += fmt.Sprintf("  Out of Order:     %5d\n", s.OutOfOrder)
		}
	}
	if s.Echoes > 0 {
		result += fmt.Sprintf("Echoes:          %8d\n", s.Echoes)
	}
	if s.DroppedCommands > 0 {
		result += fmt.Sprintf("Dropped Cmds:    %8d\n", s.DroppedCommands)
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errs:  %8d\n", s.TransportErrors)
	}
	result += fmt.Sprintf("Baud Changes:    %8d\n", s.BaudChanges)
	result += "=======================\n"
	return result
}
