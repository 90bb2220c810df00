// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"math"
	"time"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
)

// decode publishes the content of a valid frame as it was forwarded.
// Unknown commands are ignored.
func (b *Bridge) decode(now time.Time, f *autoterm.Frame) {
	switch f.Command() {
	case autoterm.CmdStatus:
		if status, ok := autoterm.ParseStatus(f); ok {
			b.handleStatus(status)
		}

	case autoterm.CmdSettings:
		if settings, ok := autoterm.ParseSettings(f); ok {
			b.handleSettings(f.Origin(), settings)
		}

	case autoterm.CmdPanelTemperature:
		if celsius, ok := autoterm.ParsePanelTemperature(f); ok {
			b.readings.Panel = celsius
			b.log.Debug().Float64("celsius", celsius).Str("origin", f.Origin().String()).Msg("Panel temperature")
			b.sink.PublishPanelTemperature(celsius)
			b.refreshCurrentTemperature()
		}
	}
}

func (b *Bridge) handleStatus(status autoterm.Status) {
	b.log.Info().
		Str("status", status.Text).
		Float64("internal", status.InternalTemperature).
		Float64("external", status.ExternalTemperature).
		Float64("heater", status.HeaterTemperature).
		Float64("voltage", status.Voltage).
		Int("fan_rpm", status.FanActualRPM).
		Float64("pump_hz", status.PumpFrequency).
		Msg("Status")

	b.readings.Internal = status.InternalTemperature
	b.readings.External = status.ExternalTemperature
	b.sink.PublishStatus(status)

	b.state.Action = climate.ActionForStatus(status.Code, b.state.Mode, b.state.Action)
	b.state.CurrentTemperature = b.currentTemperature()
	b.sink.PublishClimate(b.state)
}

// handleSettings stores sniffed settings. Heater reports replace the stored
// block; panel frames only update the fields they carry.
func (b *Bridge) handleSettings(origin autoterm.Origin, s autoterm.Settings) {
	if origin == autoterm.OriginHeater {
		b.settings = s
		b.settingsValid = true
	} else {
		b.settings = b.settings.Merge(s)
	}
	b.log.Info().Str("origin", origin.String()).Stringer("settings", b.settings).Msg("Settings")

	b.sink.PublishSettings(b.settings)
	b.state = climate.FromSettings(b.state, b.settings)
	b.state.CurrentTemperature = b.currentTemperature()
	b.sink.PublishClimate(b.state)
}

func (b *Bridge) currentTemperature() float64 {
	src := climate.EffectiveSource(b.override.forced, b.settings, b.settingsValid)
	return climate.CurrentTemperature(src, b.readings)
}

// refreshCurrentTemperature republishes the climate state when the
// effective temperature changed
func (b *Bridge) refreshCurrentTemperature() {
	t := b.currentTemperature()
	prev := b.state.CurrentTemperature
	if t == prev || (math.IsNaN(t) && math.IsNaN(prev)) {
		return
	}
	b.state.CurrentTemperature = t
	b.sink.PublishClimate(b.state)
}
