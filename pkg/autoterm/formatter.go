// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	name := FormatCommand(f.command)

	result := fmt.Sprintf("[%s] %s (0x%02X) from=%s len=%d crc=%04X\n",
		timestamp, name, f.command, f.origin, len(f.payload), f.crc)
	result += FormatPayload(f)

	return result
}

// FormatCommand returns the human-readable name for a command identifier
func FormatCommand(command uint8) string {
	switch command {
	case CmdReserved:
		return "RESERVED"
	case CmdStart:
		return "START"
	case CmdSettings:
		return "SETTINGS"
	case CmdStandby:
		return "STANDBY"
	case CmdStatus:
		return "STATUS"
	case CmdPanelTemperature:
		return "PANEL_TEMPERATURE"
	case CmdFanOnly:
		return "FAN_ONLY"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats the decoded payload based on the command
func FormatPayload(f *Frame) string {
	if len(f.payload) == 0 {
		if f.command == CmdSettings || f.command == CmdStatus {
			return "  (request)\n"
		}
		return "  (no payload)\n"
	}

	switch f.command {
	case CmdStatus:
		s, ok := ParseStatus(f)
		if !ok {
			break
		}
		return fmt.Sprintf("  Status: %s (%.1f)\n"+
			"  Temperatures: internal=%.0f°C external=%.0f°C heater=%.0f°C\n"+
			"  Voltage: %.1fV  Fan: %d/%d RPM  Pump: %.2fHz\n",
			s.Text, s.Value,
			s.InternalTemperature, s.ExternalTemperature, s.HeaterTemperature,
			s.Voltage, s.FanActualRPM, s.FanSetRPM, s.PumpFrequency)

	case CmdStart, CmdSettings:
		s, ok := ParseModeCommand(f)
		if !ok {
			break
		}
		return fmt.Sprintf("  Source: %s  Set: %s  Wait: %s  Power: %s  Work time: %s (%s)\n",
			formatSettingByte(uint8(s.TemperatureSource), s.TemperatureSource.String()),
			formatSettingByte(s.SetTemperature, fmt.Sprintf("%d°C", s.SetTemperature)),
			formatSettingByte(s.WaitMode, WaitModeName(s.WaitMode)),
			formatSettingByte(s.PowerLevel, fmt.Sprintf("%d", s.PowerLevel)),
			formatSettingByte(s.WorkTime, fmt.Sprintf("%d min", s.WorkTime)),
			formatSettingByte(s.UseWorkTime, fmt.Sprintf("enabled=%t", s.WorkTimeEnabled())))

	case CmdPanelTemperature:
		if t, ok := ParsePanelTemperature(f); ok {
			return fmt.Sprintf("  Panel temperature: %.0f°C\n", t)
		}

	case CmdFanOnly:
		if len(f.payload) >= 3 {
			return fmt.Sprintf("  Fan level: %d\n", f.payload[2])
		}
	}

	return "  Payload: " + FormatHex(f.payload) + "\n"
}

func formatSettingByte(b uint8, text string) string {
	if b == Unchanged {
		return "-"
	}
	return text
}

// FormatHex formats bytes as space separated hex
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
