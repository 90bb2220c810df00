// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "math"

// Command builder functions create controller-origin frames ready to be
// written to the heater. Level and temperature inputs are clamped.

// NewSettingsRequest creates an empty settings frame (0x02), which asks the
// heater to report its settings.
func NewSettingsRequest() *Frame {
	return controllerFrame(CmdSettings, nil)
}

// NewStatusRequest creates an empty status frame (0x0F)
func NewStatusRequest() *Frame {
	return controllerFrame(CmdStatus, nil)
}

// NewStandby creates a standby frame (0x03)
func NewStandby() *Frame {
	return controllerFrame(CmdStandby, nil)
}

// NewPowerOff creates the power off frame. The heater treats it as standby.
func NewPowerOff() *Frame {
	return NewStandby()
}

// NewPowerLevel creates a power mode frame running at a fixed level.
// start selects the start command (0x01) over the update command (0x02).
func NewPowerLevel(start bool, level int) *Frame {
	payload := []byte{Unchanged, Unchanged, uint8(SourceNone), Unchanged, WaitModeTempHold, ClampLevel(level)}
	return controllerFrame(modeCommand(start), payload)
}

// NewTemperatureHold creates a frame that regulates towards temp using
// source, modulating power once the target is reached.
func NewTemperatureHold(start bool, source uint8, temp float64) *Frame {
	payload := []byte{Unchanged, Unchanged, source, ClampTemperature(temp), WaitModeTempHold, Unchanged}
	return controllerFrame(modeCommand(start), payload)
}

// NewTemperatureToFan creates a frame that regulates towards temp using
// source and drops to ventilation once the target is reached.
func NewTemperatureToFan(start bool, source uint8, temp float64) *Frame {
	payload := []byte{Unchanged, Unchanged, source, ClampTemperature(temp), WaitModeTempToFan, Unchanged}
	return controllerFrame(modeCommand(start), payload)
}

// NewFanOnly creates a ventilation frame (0x23) at the given fan level
func NewFanOnly(level int) *Frame {
	return controllerFrame(CmdFanOnly, []byte{Unchanged, Unchanged, ClampLevel(level), Unchanged})
}

// NewPowerOn creates a start frame (0x01) carrying a complete settings block
func NewPowerOn(s Settings) *Frame {
	return controllerFrame(CmdStart, s.Bytes())
}

// NewSettingsUpdate creates a settings frame (0x02) carrying a complete
// settings block
func NewSettingsUpdate(s Settings) *Frame {
	return controllerFrame(CmdSettings, s.Bytes())
}

// NewPanelTemperature creates a panel temperature report (0x11) as the
// wired panel would send it.
func NewPanelTemperature(raw uint8) *Frame {
	return controllerFrame(CmdPanelTemperature, []byte{raw})
}

// ClampLevel limits a power or fan level to 0..9
func ClampLevel(level int) uint8 {
	if level < 0 {
		return 0
	}
	if level > MaxPowerLevel {
		return MaxPowerLevel
	}
	return uint8(level)
}

// ClampTemperature rounds a target temperature and limits it to 0..30 °C.
// NaN maps to 0.
func ClampTemperature(celsius float64) uint8 {
	if math.IsNaN(celsius) || celsius < 0 {
		return 0
	}
	r := math.Round(celsius)
	if r > MaxTargetTemp {
		return MaxTargetTemp
	}
	return uint8(r)
}

// PanelTemperatureRaw converts a temperature to the panel report byte.
// The value is clamped to -40..215 °C before rounding, and the rounded value
// is clamped to 0..255. It returns the clamped temperature alongside the raw
// byte, and ok=false for non-finite input.
func PanelTemperatureRaw(celsius float64) (raw uint8, clamped float64, ok bool) {
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return 0, 0, false
	}
	clamped = math.Max(PanelTempMinCelsius, math.Min(PanelTempMaxCelsius, celsius))
	r := math.Round(clamped)
	if r < 0 {
		r = 0
	}
	if r > 255 {
		r = 255
	}
	return uint8(r), clamped, true
}

func modeCommand(start bool) uint8 {
	if start {
		return CmdStart
	}
	return CmdSettings
}

// controllerFrame builds a frame whose payload is known to fit
func controllerFrame(command uint8, payload []byte) *Frame {
	return frameFromRaw(MustEncode(OriginController, command, payload))
}
