// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidLevel
	AnomalyInvalidSource
	AnomalyInvalidWaitMode
	AnomalyInvalidVoltage
	AnomalyUnknownStatus
	AnomalyCRCError
)

// Plausible supply voltage range for 12 V and 24 V heaters
const (
	minVoltage = 8.0
	maxVoltage = 32.0
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a frame for implausible content.
// Returns a slice of validation errors (empty if the frame looks sane).
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	if !f.Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyCRCError,
			Message: "CRC mismatch",
			Details: map[string]interface{}{"crc": f.crc},
		})
		return errors
	}

	switch f.command {
	case CmdStatus:
		errors = append(errors, validateStatus(f)...)
	case CmdStart, CmdSettings:
		errors = append(errors, validateSettings(f)...)
	case CmdFanOnly:
		errors = append(errors, validateFanOnly(f)...)
	}

	return errors
}

// validateStatus validates a status report
func validateStatus(f *Frame) []ValidationError {
	// Requests carry no payload
	if len(f.payload) == 0 {
		return nil
	}
	status, ok := ParseStatus(f)
	if !ok {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("status report too short (%d bytes, expected %d)", f.Size(), minStatusFrame),
			Details: map[string]interface{}{"size": f.Size(), "expected": minStatusFrame},
		}}
	}

	errors := []ValidationError{}
	if _, known := statusText[status.Code]; !known {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownStatus,
			Message: fmt.Sprintf("unmapped status code 0x%04X", status.Code),
			Details: map[string]interface{}{"code": status.Code},
		})
	}
	if status.Voltage < minVoltage || status.Voltage > maxVoltage {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidVoltage,
			Message: fmt.Sprintf("supply voltage %.1fV outside %.0f-%.0fV", status.Voltage, minVoltage, maxVoltage),
			Details: map[string]interface{}{"voltage": status.Voltage},
		})
	}
	return errors
}

// validateSettings validates settings reports and mode commands
func validateSettings(f *Frame) []ValidationError {
	if len(f.payload) == 0 {
		return nil
	}
	s, ok := ParseModeCommand(f)
	if !ok {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("settings payload too short (%d bytes, expected %d)", len(f.payload), SettingsPayloadSize),
			Details: map[string]interface{}{"length": len(f.payload), "expected": SettingsPayloadSize},
		}}
	}

	errors := []ValidationError{}
	if s.PowerLevel != Unchanged && s.PowerLevel > MaxPowerLevel {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidLevel,
			Message: fmt.Sprintf("power level %d (max %d)", s.PowerLevel, MaxPowerLevel),
			Details: map[string]interface{}{"level": s.PowerLevel},
		})
	}
	if uint8(s.TemperatureSource) != Unchanged && !s.TemperatureSource.Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidSource,
			Message: fmt.Sprintf("temperature source %d not in 1-4", s.TemperatureSource),
			Details: map[string]interface{}{"source": uint8(s.TemperatureSource)},
		})
	}
	if s.WaitMode != Unchanged && s.WaitMode > WaitModeTempHold {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidWaitMode,
			Message: fmt.Sprintf("wait mode %d (max %d)", s.WaitMode, WaitModeTempHold),
			Details: map[string]interface{}{"wait_mode": s.WaitMode},
		})
	}
	return errors
}

// validateFanOnly validates a ventilation command
func validateFanOnly(f *Frame) []ValidationError {
	if len(f.payload) < 3 {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("fan-only payload too short (%d bytes, expected 4)", len(f.payload)),
			Details: map[string]interface{}{"length": len(f.payload), "expected": 4},
		}}
	}
	if level := f.payload[2]; level > MaxPowerLevel {
		return []ValidationError{{
			Type:    AnomalyInvalidLevel,
			Message: fmt.Sprintf("fan level %d (max %d)", level, MaxPowerLevel),
			Details: map[string]interface{}{"level": level},
		}}
	}
	return nil
}
