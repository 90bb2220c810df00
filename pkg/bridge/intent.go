// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
)

var (
	// ErrInvalidValue is returned for out of range intent values
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnknownIntent is returned for intents of an unknown kind
	ErrUnknownIntent = errors.New("unknown intent")
)

// IntentKind selects the operation an Intent performs
type IntentKind uint8

const (
	IntentPowerOn IntentKind = iota + 1
	IntentPowerOff
	IntentFanMode
	IntentSetFanLevel
	IntentSetTemperature
	IntentSetWorkTime
	IntentSetPowerLevel
	IntentSetUseWorkTime
	IntentSetWaitMode
	IntentSetTemperatureSource
	IntentForceSource
	IntentVirtualPanelEnabled
	IntentVirtualPanelTemperature
	IntentClimate
	IntentRequestSettings
	IntentRequestStatus
)

var intentNames = map[IntentKind]string{
	IntentPowerOn:                 "power_on",
	IntentPowerOff:                "power_off",
	IntentFanMode:                 "fan_mode",
	IntentSetFanLevel:             "fan_level",
	IntentSetTemperature:          "set_temperature",
	IntentSetWorkTime:             "work_time",
	IntentSetPowerLevel:           "power_level",
	IntentSetUseWorkTime:          "use_work_time",
	IntentSetWaitMode:             "wait_mode",
	IntentSetTemperatureSource:    "temperature_source",
	IntentForceSource:             "force_source",
	IntentVirtualPanelEnabled:     "virtual_panel_override",
	IntentVirtualPanelTemperature: "virtual_panel_temperature",
	IntentClimate:                 "climate",
	IntentRequestSettings:         "request_settings",
	IntentRequestStatus:           "request_status",
}

func (k IntentKind) String() string {
	if s, ok := intentNames[k]; ok {
		return s
	}
	return fmt.Sprintf("intent(%d)", uint8(k))
}

// Intent is a control request from a presentation layer. Only the fields
// relevant to Kind are read.
type Intent struct {
	Kind    IntentKind
	Value   float64         // levels, temperatures, minutes
	On      bool            // switches
	Name    string          // temperature source option name
	Source  autoterm.Source // forced source, SourceUnset to release
	Climate climate.Call

	// Reply, when set, receives the result of Apply from Run
	Reply chan<- error
}

// Intent constructors

func PowerOn() Intent                   { return Intent{Kind: IntentPowerOn} }
func PowerOff() Intent                  { return Intent{Kind: IntentPowerOff} }
func FanMode() Intent                   { return Intent{Kind: IntentFanMode} }
func SetFanLevel(level int) Intent      { return Intent{Kind: IntentSetFanLevel, Value: float64(level)} }
func SetTemperature(celsius int) Intent { return Intent{Kind: IntentSetTemperature, Value: float64(celsius)} }
func SetWorkTime(minutes int) Intent    { return Intent{Kind: IntentSetWorkTime, Value: float64(minutes)} }
func SetPowerLevel(level int) Intent    { return Intent{Kind: IntentSetPowerLevel, Value: float64(level)} }
func SetUseWorkTime(use bool) Intent    { return Intent{Kind: IntentSetUseWorkTime, On: use} }
func SetWaitMode(on bool) Intent        { return Intent{Kind: IntentSetWaitMode, On: on} }
func RequestSettings() Intent           { return Intent{Kind: IntentRequestSettings} }
func RequestStatus() Intent             { return Intent{Kind: IntentRequestStatus} }

func SetTemperatureSource(name string) Intent {
	return Intent{Kind: IntentSetTemperatureSource, Name: name}
}

func ForceSource(s autoterm.Source) Intent {
	return Intent{Kind: IntentForceSource, Source: s}
}

func VirtualPanelEnabled(on bool) Intent {
	return Intent{Kind: IntentVirtualPanelEnabled, On: on}
}

func VirtualPanelTemperature(celsius float64) Intent {
	return Intent{Kind: IntentVirtualPanelTemperature, Value: celsius}
}

func ClimateCall(call climate.Call) Intent {
	return Intent{Kind: IntentClimate, Climate: call}
}

// Apply performs a control intent at time now. A rejected intent leaves all
// state untouched.
func (b *Bridge) Apply(now time.Time, in Intent) error {
	switch in.Kind {
	case IntentPowerOn:
		return b.send(now, autoterm.NewPowerOn(b.baseSettings()))

	case IntentPowerOff:
		return b.send(now, autoterm.NewPowerOff())

	case IntentFanMode:
		return b.send(now, autoterm.NewFanOnly(int(b.fanLevel)))

	case IntentSetFanLevel:
		level, err := byteValue(in.Value, autoterm.MaxPowerLevel)
		if err != nil {
			return fmt.Errorf("fan level: %w", err)
		}
		b.fanLevel = level
		b.sink.PublishFanLevel(level)
		return nil

	case IntentSetTemperature:
		v, err := byteValue(in.Value, 255)
		if err != nil {
			return fmt.Errorf("set temperature: %w", err)
		}
		return b.updateSettings(now, func(s *autoterm.Settings) { s.SetTemperature = v })

	case IntentSetWorkTime:
		v, err := byteValue(in.Value, 255)
		if err != nil {
			return fmt.Errorf("work time: %w", err)
		}
		return b.updateSettings(now, func(s *autoterm.Settings) { s.WorkTime = v })

	case IntentSetPowerLevel:
		v, err := byteValue(in.Value, autoterm.MaxPowerLevel)
		if err != nil {
			return fmt.Errorf("power level: %w", err)
		}
		return b.updateSettings(now, func(s *autoterm.Settings) { s.PowerLevel = v })

	case IntentSetUseWorkTime:
		v := autoterm.UseWorkTimeByte(in.On)
		return b.updateSettings(now, func(s *autoterm.Settings) { s.UseWorkTime = v })

	case IntentSetWaitMode:
		v := autoterm.WaitModeByte(in.On)
		return b.updateSettings(now, func(s *autoterm.Settings) { s.WaitMode = v })

	case IntentSetTemperatureSource:
		src, err := autoterm.ParseSource(in.Name)
		if err != nil {
			b.log.Warn().Str("option", in.Name).Msg("Unknown temperature source option")
			return err
		}
		return b.updateSettings(now, func(s *autoterm.Settings) { s.TemperatureSource = src })

	case IntentForceSource:
		return b.ForceSource(now, in.Source)

	case IntentVirtualPanelEnabled:
		b.SetVirtualPanelEnabled(now, in.On)
		return nil

	case IntentVirtualPanelTemperature:
		return b.SetVirtualPanelTemperature(in.Value)

	case IntentClimate:
		return b.applyClimate(now, in.Climate)

	case IntentRequestSettings:
		return b.send(now, autoterm.NewSettingsRequest())

	case IntentRequestStatus:
		return b.send(now, autoterm.NewStatusRequest())
	}
	return fmt.Errorf("%w: %s", ErrUnknownIntent, in.Kind)
}

// baseSettings returns the heater's settings, or the defaults when the
// heater has not reported yet
func (b *Bridge) baseSettings() autoterm.Settings {
	if b.settingsValid {
		return b.settings
	}
	return autoterm.DefaultSettings()
}

// updateSettings pushes a modified settings block to the heater and stores
// it once sent
func (b *Bridge) updateSettings(now time.Time, update func(*autoterm.Settings)) error {
	s := b.baseSettings()
	update(&s)

	if err := b.send(now, autoterm.NewSettingsUpdate(s)); err != nil {
		return err
	}
	b.settings = s
	b.settingsValid = true
	b.sink.PublishSettings(s)
	return nil
}

func (b *Bridge) applyClimate(now time.Time, call climate.Call) error {
	source := climate.RegulationSource(b.override.forced, b.settings, b.settingsValid)
	next, frames := climate.Plan(b.state, call, source)

	for _, f := range frames {
		if err := b.send(now, f); err != nil {
			return fmt.Errorf("climate %s: %w", autoterm.FormatCommand(f.Command()), err)
		}
	}
	b.state = next
	b.sink.PublishClimate(b.state)
	return nil
}

// byteValue validates an integral value in 0..max
func byteValue(v float64, max uint8) (uint8, error) {
	if math.IsNaN(v) || v < 0 || v > float64(max) || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %v not in 0..%d", ErrInvalidValue, v, max)
	}
	return uint8(v), nil
}
