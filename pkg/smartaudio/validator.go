// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyChannelRange
	AnomalyPowerRange
	AnomalyFrequencyMismatch
	AnomalyUnknownCode
)

// ValidationError represents a response that decoded but carries
// suspicious content
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a response frame for anomalies.
// Returns a slice of validation errors (empty if the frame is plausible).
func ValidateFrame(f Frame) []ValidationError {
	switch f.Code() {
	case CmdGetSettings, CmdGetSettingsV2:
		return validateSettings(f)
	case CmdSetFrequency:
		if int(f.Length()) < frequencyPayloadLen {
			return []ValidationError{lengthError(f, frequencyPayloadLen)}
		}
	case CmdSetPower, CmdSetChannel, CmdSetMode:
		if f.Length() < 1 {
			return []ValidationError{lengthError(f, 1)}
		}
	default:
		return []ValidationError{{
			Type:    AnomalyUnknownCode,
			Message: fmt.Sprintf("Unknown response code 0x%02X", f.Code()),
			Details: map[string]interface{}{"code": f.Code()},
		}}
	}
	return nil
}

func lengthError(f Frame, expected int) ValidationError {
	return ValidationError{
		Type: AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s payload too short (expected %d bytes, got %d)",
			FormatCommandName(f.Code()), expected, f.Length()),
		Details: map[string]interface{}{"length": int(f.Length()), "expected": expected},
	}
}

// validateSettings validates a GET_SETTINGS response
func validateSettings(f Frame) []ValidationError {
	if int(f.Length()) < settingsPayloadLen {
		return []ValidationError{lengthError(f, settingsPayloadLen)}
	}

	var errors []ValidationError
	s := parseSettings(f.Code(), f.Payload())

	freq, ok := ChannelFrequency(s.Channel)
	if !ok {
		errors = append(errors, ValidationError{
			Type:    AnomalyChannelRange,
			Message: fmt.Sprintf("Channel %d out of range (max %d)", s.Channel, ChannelCount-1),
			Details: map[string]interface{}{"channel": s.Channel, "max": ChannelCount - 1},
		})
	} else if !s.OpMode.FrequencyMode() && s.Frequency != 0 && s.Frequency != freq {
		errors = append(errors, ValidationError{
			Type:    AnomalyFrequencyMismatch,
			Message: fmt.Sprintf("Frequency %d does not match channel %d (%d MHz)", s.Frequency, s.Channel, freq),
			Details: map[string]interface{}{"frequency": s.Frequency, "expected": freq},
		})
	}

	if s.Version == Version2 && s.Power >= len(PowerTable) {
		errors = append(errors, ValidationError{
			Type:    AnomalyPowerRange,
			Message: fmt.Sprintf("Power index %d out of range (max %d)", s.Power, len(PowerTable)-1),
			Details: map[string]interface{}{"power": s.Power, "max": len(PowerTable) - 1},
		})
	}

	return errors
}
