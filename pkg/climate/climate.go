// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package climate derives a thermostat style operating state from Autoterm
// settings and status reports, and plans the frames needed to move the
// heater to a requested state.
package climate

import (
	"errors"
	"fmt"
	"math"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/vishalkuo/bimap"
)

// ErrUnknownValue is returned when a mode, preset or action name is not known
var ErrUnknownValue = errors.New("unknown climate value")

// Mode is the requested operating mode
type Mode uint8

const (
	ModeOff Mode = iota
	ModeHeat
	ModeAuto
	ModeFanOnly
)

// Preset selects how the heater regulates while heating
type Preset uint8

const (
	PresetPower      Preset = iota // fixed power level, no regulation
	PresetTempHold                 // regulate and keep burning at low power
	PresetTempToFan                // regulate and ventilate once warm
	PresetThermostat               // plain settings without a wait mode
)

// Action is what the heater is currently doing
type Action uint8

const (
	ActionOff Action = iota
	ActionIdle
	ActionHeating
	ActionFan
)

var (
	modeNames = bimap.NewBiMapFromMap(map[Mode]string{
		ModeOff:     "off",
		ModeHeat:    "heat",
		ModeAuto:    "auto",
		ModeFanOnly: "fan_only",
	})
	presetNames = bimap.NewBiMapFromMap(map[Preset]string{
		PresetPower:      "power",
		PresetTempHold:   "temp_hold",
		PresetTempToFan:  "temp_to_fan",
		PresetThermostat: "thermostat",
	})
	actionNames = bimap.NewBiMapFromMap(map[Action]string{
		ActionOff:     "off",
		ActionIdle:    "idle",
		ActionHeating: "heating",
		ActionFan:     "fan",
	})
)

func (m Mode) String() string {
	if s, ok := modeNames.Get(m); ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func (p Preset) String() string {
	if s, ok := presetNames.Get(p); ok {
		return s
	}
	return fmt.Sprintf("preset(%d)", uint8(p))
}

func (a Action) String() string {
	if s, ok := actionNames.Get(a); ok {
		return s
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// ParseMode maps a mode name such as "heat" to its Mode
func ParseMode(name string) (Mode, error) {
	if m, ok := modeNames.GetInverse(name); ok {
		return m, nil
	}
	return ModeOff, fmt.Errorf("%w: mode %q", ErrUnknownValue, name)
}

// ParsePreset maps a preset name such as "temp_hold" to its Preset
func ParsePreset(name string) (Preset, error) {
	if p, ok := presetNames.GetInverse(name); ok {
		return p, nil
	}
	return PresetPower, fmt.Errorf("%w: preset %q", ErrUnknownValue, name)
}

// State is the derived operating state
type State struct {
	Mode               Mode
	Preset             Preset
	FanLevel           uint8
	TargetTemperature  float64 // °C, 0..30
	CurrentTemperature float64 // °C, NaN while unknown
	Action             Action
}

// DefaultState returns the state assumed before anything was observed
func DefaultState() State {
	d := autoterm.DefaultSettings()
	return State{
		Mode:               ModeOff,
		Preset:             PresetPower,
		FanLevel:           d.PowerLevel,
		TargetTemperature:  float64(d.SetTemperature),
		CurrentTemperature: math.NaN(),
		Action:             ActionOff,
	}
}

func (s State) String() string {
	return fmt.Sprintf("mode=%s preset=%s fan=%d target=%.0f°C current=%.1f°C action=%s",
		s.Mode, s.Preset, s.FanLevel, s.TargetTemperature, s.CurrentTemperature, s.Action)
}

// FromSettings re-derives mode, preset, fan level and target temperature
// from a settings block. Action and current temperature are kept from prev.
func FromSettings(prev State, s autoterm.Settings) State {
	next := prev
	next.FanLevel = autoterm.ClampLevel(int(s.PowerLevel))
	next.TargetTemperature = float64(autoterm.ClampTemperature(float64(s.SetTemperature)))

	switch {
	case s.TemperatureSource == autoterm.SourceNone:
		next.Mode, next.Preset = ModeHeat, PresetPower
	case s.WaitMode == autoterm.WaitModeTempToFan:
		next.Mode, next.Preset = ModeAuto, PresetTempToFan
	case s.WaitMode == autoterm.WaitModeTempHold:
		next.Mode, next.Preset = ModeHeat, PresetTempHold
	case s.PowerLevel == 0 && s.WaitMode == autoterm.WaitModeNone:
		next.Mode = ModeOff
	default:
		next.Mode, next.Preset = ModeHeat, PresetThermostat
	}
	return next
}

// ActionForStatus derives the heater action from a status code. Unmapped
// codes keep the current action.
func ActionForStatus(code uint16, mode Mode, current Action) Action {
	switch code {
	case autoterm.StatusStandby, autoterm.StatusShuttingDown:
		if mode == ModeOff {
			return ActionOff
		}
		return ActionIdle
	case autoterm.StatusCoolingFlameSensor, autoterm.StatusCoolingDown:
		return ActionIdle
	case autoterm.StatusPrepareHeating,
		autoterm.StatusHeatingGlowPlug,
		autoterm.StatusIgnition1,
		autoterm.StatusIgnition2,
		autoterm.StatusHeatingChamber,
		autoterm.StatusHeating:
		return ActionHeating
	case autoterm.StatusVentilation, autoterm.StatusOnlyFan, autoterm.StatusIdleVentilation:
		return ActionFan
	}
	return current
}
