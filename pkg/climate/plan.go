// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package climate

import (
	"math"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
)

// Call is a local control request. Nil fields keep their current value.
type Call struct {
	Mode              *Mode
	Preset            *Preset
	FanLevel          *int
	TargetTemperature *float64
}

// Plan computes the state requested by call and the frames that move the
// heater there. The returned state is meant to be applied immediately,
// before the heater confirms it.
//
// A standby frame is sent first when leaving fan-only or when starting from
// off. source is the wire source id used by temperature regulated presets.
func Plan(prev State, call Call, source uint8) (State, []*autoterm.Frame) {
	next := prev
	if call.FanLevel != nil {
		next.FanLevel = autoterm.ClampLevel(*call.FanLevel)
	}
	if call.TargetTemperature != nil {
		next.TargetTemperature = float64(autoterm.ClampTemperature(*call.TargetTemperature))
	}
	if call.Preset != nil {
		next.Preset = *call.Preset
		if call.Mode == nil && (prev.Mode == ModeHeat || prev.Mode == ModeAuto) {
			next.Mode = modeForPreset(next.Preset)
		}
	}
	if call.Mode != nil {
		next.Mode = *call.Mode
		switch {
		case next.Mode == ModeAuto:
			next.Preset = PresetTempToFan
		case next.Mode == ModeHeat && next.Preset == PresetTempToFan:
			next.Preset = PresetTempHold
		}
	}

	var frames []*autoterm.Frame
	switch next.Mode {
	case ModeOff:
		// Adjusting presets while off only updates the stored state
		if prev.Mode == ModeOff && call.Mode == nil {
			return next, nil
		}
		frames = append(frames, autoterm.NewStandby())
		next.Action = ActionOff

	case ModeFanOnly:
		frames = append(frames, autoterm.NewFanOnly(int(next.FanLevel)))

	default:
		start := prev.Mode == ModeOff || prev.Mode == ModeFanOnly
		if start {
			frames = append(frames, autoterm.NewStandby())
		}
		frames = append(frames, modeFrame(next, start, source))
	}

	return next, frames
}

func modeForPreset(p Preset) Mode {
	if p == PresetTempToFan {
		return ModeAuto
	}
	return ModeHeat
}

func modeFrame(s State, start bool, source uint8) *autoterm.Frame {
	switch s.Preset {
	case PresetPower:
		return autoterm.NewPowerLevel(start, int(s.FanLevel))
	case PresetTempToFan:
		return autoterm.NewTemperatureToFan(start, source, s.TargetTemperature)
	default:
		// thermostat has no dedicated wait mode and is sent as temp hold
		return autoterm.NewTemperatureHold(start, source, s.TargetTemperature)
	}
}

// EffectiveSource picks the temperature source in use: a forced source
// first, then the source reported in valid settings, then the internal
// sensor.
func EffectiveSource(forced autoterm.Source, settings autoterm.Settings, valid bool) autoterm.Source {
	if forced.Valid() {
		return forced
	}
	if valid && settings.TemperatureSource.Valid() {
		return settings.TemperatureSource
	}
	return autoterm.SourceInternal
}

// RegulationSource returns the wire source id for temperature regulated
// mode frames. A heater without automatic temperature control is pointed at
// its internal sensor.
func RegulationSource(forced autoterm.Source, settings autoterm.Settings, valid bool) uint8 {
	if forced.Valid() {
		return forced.Wire()
	}
	src := EffectiveSource(forced, settings, valid)
	if src == autoterm.SourceNone {
		return uint8(autoterm.SourceInternal)
	}
	return uint8(src)
}

// Readings holds the latest temperature of every source, NaN when unknown
type Readings struct {
	Internal float64
	External float64
	Panel    float64
	Virtual  float64
}

// NewReadings returns readings with every source unknown
func NewReadings() Readings {
	nan := math.NaN()
	return Readings{Internal: nan, External: nan, Panel: nan, Virtual: nan}
}

func (r Readings) of(src autoterm.Source) float64 {
	switch src {
	case autoterm.SourceInternal:
		return r.Internal
	case autoterm.SourceExternal:
		return r.External
	case autoterm.SourcePanel:
		return r.Panel
	case autoterm.SourceNone:
		if isFinite(r.Virtual) {
			return r.Virtual
		}
		return r.Panel
	}
	return math.NaN()
}

// CurrentTemperature resolves the current temperature from the primary
// source, falling back to the panel, external and internal sensors. It
// returns NaN when nothing has been read yet.
func CurrentTemperature(primary autoterm.Source, r Readings) float64 {
	order := []autoterm.Source{primary, autoterm.SourcePanel, autoterm.SourceExternal, autoterm.SourceInternal}
	for _, src := range order {
		if v := r.of(src); isFinite(v) {
			return v
		}
	}
	return math.NaN()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
