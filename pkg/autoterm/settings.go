// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "fmt"

// Settings is the heater's configuration block as carried by settings frames
type Settings struct {
	UseWorkTime       uint8 // inverted: 0 = work time enabled
	WorkTime          uint8 // minutes
	TemperatureSource Source
	SetTemperature    uint8 // °C
	WaitMode          uint8
	PowerLevel        uint8
}

// DefaultSettings returns the values assumed before the heater has reported
// its own. They must not be presented as heater state.
func DefaultSettings() Settings {
	return Settings{
		UseWorkTime:       1,
		WorkTime:          0,
		TemperatureSource: SourceNone,
		SetTemperature:    16,
		WaitMode:          WaitModeNone,
		PowerLevel:        DefaultFanLevel,
	}
}

// ParseSettings decodes a settings frame (command 0x02, at least 13 bytes
// on the wire). Settings requests with an empty payload are rejected.
func ParseSettings(f *Frame) (Settings, bool) {
	if f.command != CmdSettings || f.Size() < minSettingsFrame {
		return Settings{}, false
	}
	return settingsFromPayload(f.payload), true
}

// ParseModeCommand decodes the settings block carried by a controller start
// or update frame (0x01, 0x02).
func ParseModeCommand(f *Frame) (Settings, bool) {
	if f.command != CmdStart && f.command != CmdSettings {
		return Settings{}, false
	}
	if f.Size() < minSettingsFrame {
		return Settings{}, false
	}
	return settingsFromPayload(f.payload), true
}

func settingsFromPayload(p []byte) Settings {
	return Settings{
		UseWorkTime:       p[settingsUseWorkTime],
		WorkTime:          p[settingsWorkTime],
		TemperatureSource: Source(p[settingsTemperatureSource]),
		SetTemperature:    p[settingsSetTemperature],
		WaitMode:          p[settingsWaitMode],
		PowerLevel:        p[settingsPowerLevel],
	}
}

// Bytes returns the 6-byte wire form
func (s Settings) Bytes() []byte {
	return []byte{
		s.UseWorkTime,
		s.WorkTime,
		uint8(s.TemperatureSource),
		s.SetTemperature,
		s.WaitMode,
		s.PowerLevel,
	}
}

// Merge returns s with every field of update applied, except fields holding
// the 0xFF placeholder used by mode commands.
func (s Settings) Merge(update Settings) Settings {
	pick := func(cur, next uint8) uint8 {
		if next == Unchanged {
			return cur
		}
		return next
	}
	return Settings{
		UseWorkTime:       pick(s.UseWorkTime, update.UseWorkTime),
		WorkTime:          pick(s.WorkTime, update.WorkTime),
		TemperatureSource: Source(pick(uint8(s.TemperatureSource), uint8(update.TemperatureSource))),
		SetTemperature:    pick(s.SetTemperature, update.SetTemperature),
		WaitMode:          pick(s.WaitMode, update.WaitMode),
		PowerLevel:        pick(s.PowerLevel, update.PowerLevel),
	}
}

// WorkTimeEnabled reports whether the heater stops after WorkTime minutes
func (s Settings) WorkTimeEnabled() bool {
	return s.UseWorkTime == 0
}

func (s Settings) String() string {
	return fmt.Sprintf("use_work_time=%d work_time=%d source=%s set_temp=%d wait_mode=%d power=%d",
		s.UseWorkTime, s.WorkTime, s.TemperatureSource, s.SetTemperature, s.WaitMode, s.PowerLevel)
}

// UseWorkTimeByte returns the wire value of the use-work-time flag
func UseWorkTimeByte(enabled bool) uint8 {
	if enabled {
		return 0
	}
	return 1
}

// WaitModeByte returns the wire value of the wait mode switch
func WaitModeByte(on bool) uint8 {
	if on {
		return WaitModeTempToFan
	}
	return WaitModeTempHold
}
