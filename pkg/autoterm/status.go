// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "fmt"

// Status payload offsets
const (
	statusHigh        = 0
	statusLow         = 1
	statusInternal    = 3
	statusExternal    = 4
	statusVoltage     = 6
	statusHeaterTemp  = 8
	statusFanSet      = 11
	statusFanActual   = 12
	statusPumpFreq    = 14
	heaterTempOffset  = 15
	fanLevelToRPM     = 60
	statusCodeDivisor = 10.0
)

// Status codes reported by the heater
const (
	StatusStandby            uint16 = 0x0001
	StatusCoolingFlameSensor uint16 = 0x0100
	StatusVentilation        uint16 = 0x0101
	StatusPrepareHeating     uint16 = 0x0200
	StatusHeatingGlowPlug    uint16 = 0x0201
	StatusIgnition1          uint16 = 0x0202
	StatusIgnition2          uint16 = 0x0203
	StatusHeatingChamber     uint16 = 0x0204
	StatusHeating            uint16 = 0x0300
	StatusOnlyFan            uint16 = 0x0323
	StatusCoolingDown        uint16 = 0x0304
	StatusIdleVentilation    uint16 = 0x0305
	StatusShuttingDown       uint16 = 0x0400
)

var statusText = map[uint16]string{
	StatusStandby:            "standby",
	StatusCoolingFlameSensor: "cooling flame sensor",
	StatusVentilation:        "ventilation",
	StatusPrepareHeating:     "prepare heating",
	StatusHeatingGlowPlug:    "heating glow plug",
	StatusIgnition1:          "ignition 1",
	StatusIgnition2:          "ignition 2",
	StatusHeatingChamber:     "heating combustion chamber",
	StatusHeating:            "heating",
	StatusOnlyFan:            "only fan",
	StatusCoolingDown:        "cooling down",
	StatusIdleVentilation:    "idle ventilation",
	StatusShuttingDown:       "shutting down",
}

// StatusText returns the human readable name of a status code
func StatusText(code uint16) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown (0x%04X)", code)
}

// Status is a decoded heater status report
type Status struct {
	Code  uint16
	Value float64 // high + low/10, as shown on the panel
	Text  string

	InternalTemperature float64 // °C
	ExternalTemperature float64 // °C
	Voltage             float64 // V
	HeaterTemperature   float64 // °C
	FanSetRPM           int
	FanActualRPM        int
	PumpFrequency       float64 // Hz
}

// ParseStatus decodes a status report (command 0x0F, at least 24 bytes on
// the wire). Status requests with an empty payload are rejected.
func ParseStatus(f *Frame) (Status, bool) {
	if f.command != CmdStatus || f.Size() < minStatusFrame {
		return Status{}, false
	}
	p := f.payload

	code := uint16(p[statusHigh])<<8 | uint16(p[statusLow])
	return Status{
		Code:                code,
		Value:               float64(p[statusHigh]) + float64(p[statusLow])/statusCodeDivisor,
		Text:                StatusText(code),
		InternalTemperature: SignedTemperature(p[statusInternal]),
		ExternalTemperature: SignedTemperature(p[statusExternal]),
		Voltage:             float64(p[statusVoltage]) / 10.0,
		HeaterTemperature:   float64(int(p[statusHeaterTemp]) - heaterTempOffset),
		FanSetRPM:           int(p[statusFanSet]) * fanLevelToRPM,
		FanActualRPM:        int(p[statusFanActual]) * fanLevelToRPM,
		PumpFrequency:       float64(p[statusPumpFreq]) / 100.0,
	}, true
}

// SignedTemperature decodes the heater's temperature byte, where values
// above 127 are negative (raw - 255).
func SignedTemperature(raw uint8) float64 {
	if raw > 127 {
		return float64(int(raw) - 255)
	}
	return float64(raw)
}

// ParsePanelTemperature decodes a panel temperature report (command 0x11)
// from either origin. The byte is an unsigned temperature in °C.
func ParsePanelTemperature(f *Frame) (float64, bool) {
	if f.command != CmdPanelTemperature || f.Size() < minPanelFrame {
		return 0, false
	}
	if f.origin != OriginController && f.origin != OriginHeater {
		return 0, false
	}
	return float64(f.payload[0]), true
}

// IsPanelTemperature reports whether f is a panel temperature report
func IsPanelTemperature(f *Frame) bool {
	_, ok := ParsePanelTemperature(f)
	return ok
}
