// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package autoterm implements the serial protocol spoken between Autoterm
// diesel air heaters and their wired control panels.
//
// A frame on the wire is laid out as
//
//	AA <origin> <len> 00 <command> <payload...> <crc_hi> <crc_lo>
//
// where the CRC is CRC-16/Modbus over every byte that precedes it. This
// package provides frame parsing and encoding, command builders, decoders
// for the status, settings and panel-temperature reports, and formatting
// helpers for diagnostics.
package autoterm

// Framing
const (
	Preamble = 0xAA

	HeaderSize = 5 // preamble, origin, length, reserved, command
	CRCSize    = 2

	MaxPayloadSize = 255
	MaxFrameSize   = HeaderSize + MaxPayloadSize + CRCSize

	// Bytes allowed to accumulate without a preamble at position 0 before
	// the accumulator is considered lost and flushed.
	MaxUnsyncedBytes = 64
)

// Header byte offsets
const (
	offsetPreamble = 0
	offsetOrigin   = 1
	offsetLength   = 2
	offsetReserved = 3
	offsetCommand  = 4
)

// Origin identifies which side of the link issued a frame.
type Origin uint8

const (
	OriginController Origin = 0x03 // panel, or this bridge acting as one
	OriginHeater     Origin = 0x04
)

// Command identifiers (byte 4)
const (
	CmdReserved         = 0x00
	CmdStart            = 0x01
	CmdSettings         = 0x02 // set mode / settings report / settings request
	CmdStandby          = 0x03
	CmdStatus           = 0x0F
	CmdPanelTemperature = 0x11
	CmdFanOnly          = 0x23
)

// Minimum total frame sizes for the decoded reports
const (
	minStatusFrame   = 24
	minSettingsFrame = 13
	minPanelFrame    = 8
)

// Settings payload layout
const (
	SettingsPayloadSize = 6

	settingsUseWorkTime       = 0
	settingsWorkTime          = 1
	settingsTemperatureSource = 2
	settingsSetTemperature    = 3
	settingsWaitMode          = 4
	settingsPowerLevel        = 5
)

// Placeholder byte used by mode commands for fields they leave untouched.
const Unchanged = 0xFF

// Source is the heater's temperature source setting.
type Source uint8

const (
	SourceUnset    Source = 0
	SourceInternal Source = 1
	SourcePanel    Source = 2
	SourceExternal Source = 3
	// SourceNone disables automatic temperature control on the heater. When
	// used as a forced source it stands for a virtual sensor fed by the
	// bridge, which the heater only understands as a panel sensor.
	SourceNone Source = 4
)

// Wire returns the source id transmitted to the heater when this source is
// forced by the bridge.
func (s Source) Wire() uint8 {
	if s == SourceNone {
		return uint8(SourcePanel)
	}
	return uint8(s)
}

// Valid reports whether s is one of the four known sources.
func (s Source) Valid() bool {
	return s >= SourceInternal && s <= SourceNone
}

// Wait modes
const (
	WaitModeNone      = 0
	WaitModeTempToFan = 1 // drop to ventilation once the target is reached
	WaitModeTempHold  = 2 // hold the target by modulating power
)

// Value ranges
const (
	MaxPowerLevel   = 9
	MaxTargetTemp   = 30
	DefaultFanLevel = 8

	PanelTempMinCelsius = -40
	PanelTempMaxCelsius = 215
)
