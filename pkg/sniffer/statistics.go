// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sniffer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// Statistics tracks line traffic and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames   uint64
	Commands      uint64
	Responses     uint64
	ValidFrames   uint64
	Retransmits   uint64 // command repeated with no response in between
	Unanswered    uint64 // command followed by another command
	BadPreamble   uint64
	BadLength     uint64
	CRCErrors     uint64
	CommandErrors uint64 // CRC errors on command-tagged frames

	// Response payload anomalies
	Anomalies         uint64
	LengthMismatches  uint64
	ChannelRange      uint64
	PowerRange        uint64
	FrequencyMismatch uint64
	UnknownCodes      uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec

	lastCommand []byte
	answered    bool
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		answered:       true,
	}
}

// Update updates statistics with a decoded item
func (s *Statistics) Update(it Item) {
	s.LastUpdateTime = time.Now()

	switch it.Event {
	case smartaudio.EventBadPreamble:
		s.BadPreamble++
		return
	case smartaudio.EventBadLength:
		s.BadLength++
		return
	case smartaudio.EventCRCError:
		if it.Command {
			s.CommandErrors++
		} else {
			s.CRCErrors++
		}
		return
	case smartaudio.EventFrame:
	default:
		return
	}

	s.TotalFrames++
	if it.Command {
		s.Commands++
		encoded := it.Frame.Encode()
		if !s.answered {
			s.Unanswered++
			if bytes.Equal(encoded, s.lastCommand) {
				s.Retransmits++
			}
		}
		s.lastCommand = encoded
		s.answered = false
		s.ValidFrames++
		return
	}

	s.Responses++
	s.answered = true
	if len(it.Anomalies) == 0 {
		s.ValidFrames++
		return
	}
	for _, a := range it.Anomalies {
		s.Anomalies++
		switch a.Type {
		case smartaudio.AnomalyLengthMismatch:
			s.LengthMismatches++
		case smartaudio.AnomalyChannelRange:
			s.ChannelRange++
		case smartaudio.AnomalyPowerRange:
			s.PowerRange++
		case smartaudio.AnomalyFrequencyMismatch:
			s.FrequencyMismatch++
		case smartaudio.AnomalyUnknownCode:
			s.UnknownCodes++
		}
	}
}

// Errors returns the number of line errors
func (s *Statistics) Errors() uint64 {
	return s.BadPreamble + s.BadLength + s.CRCErrors + s.CommandErrors
}

// ResponseRatio returns the percentage of commands that were answered
func (s *Statistics) ResponseRatio() float64 {
	if s.Commands == 0 {
		return 0
	}
	return float64(s.Responses) * 100.0 / float64(s.Commands)
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()+s.Anomalies) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		total := s.TotalFrames + s.Errors()
		if total == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(total)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Line Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("  Commands:      %8d\n", s.Commands)
	result += fmt.Sprintf("  Responses:     %8d (%.1f%% answered)\n", s.Responses, s.ResponseRatio())
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))

	if s.Retransmits > 0 {
		result += fmt.Sprintf("Retransmits:     %8d\n", s.Retransmits)
	}
	if s.Unanswered > 0 {
		result += fmt.Sprintf("Unanswered:      %8d\n", s.Unanswered)
	}
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.CommandErrors > 0 {
		result += fmt.Sprintf("Command Errors:  %8d (%.1f%%)\n", s.CommandErrors, percent(s.CommandErrors))
	}
	if framing := s.BadPreamble + s.BadLength; framing > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", framing, percent(framing))
		if s.BadPreamble > 0 {
			result += fmt.Sprintf("  Bad Preamble:     %5d\n", s.BadPreamble)
		}
		if s.BadLength > 0 {
			result += fmt.Sprintf("  Bad Length:       %5d\n", s.BadLength)
		}
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
		if s.LengthMismatches > 0 {
			result += fmt.Sprintf("  Short Payload:    %5d\n", s.LengthMismatches)
		}
		if s.ChannelRange > 0 {
			result += fmt.Sprintf("  Channel Range:    %5d\n", s.ChannelRange)
		}
		if s.PowerRange > 0 {
			result += fmt.Sprintf("  Power Range:      %5d\n", s.PowerRange)
		}
		if s.FrequencyMismatch > 0 {
			result += fmt.Sprintf("  Freq Mismatch:    %5d\n", s.FrequencyMismatch)
		}
		if s.UnknownCodes > 0 {
			result += fmt.Sprintf("  Unknown Code:     %5d\n", s.UnknownCodes)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
