// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
)

// ForceSourceOff is the force_source value that releases the override
const ForceSourceOff = "off"

// ErrUnknownCommand is returned for command topics without a handler
var ErrUnknownCommand = errors.New("unknown command")

// CommandName extracts the command from <prefix>/<name>/set. Climate
// commands keep their "climate/" prefix.
func CommandName(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/set")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// ParseCommand converts a command topic payload into a bridge intent
func ParseCommand(name, payload string) (bridge.Intent, error) {
	payload = strings.TrimSpace(payload)

	switch name {
	case "power":
		on, err := parseSwitch(payload)
		if err != nil {
			return bridge.Intent{}, err
		}
		if on {
			return bridge.PowerOn(), nil
		}
		return bridge.PowerOff(), nil

	case "fan_mode":
		return bridge.FanMode(), nil

	case "fan_level":
		return intCommand(payload, bridge.SetFanLevel)
	case "set_temperature":
		return intCommand(payload, bridge.SetTemperature)
	case "work_time":
		return intCommand(payload, bridge.SetWorkTime)
	case "power_level":
		return intCommand(payload, bridge.SetPowerLevel)

	case "use_work_time":
		return switchCommand(payload, bridge.SetUseWorkTime)
	case "wait_mode":
		return switchCommand(payload, bridge.SetWaitMode)
	case "virtual_panel_override":
		return switchCommand(payload, bridge.VirtualPanelEnabled)

	case "temperature_source":
		return bridge.SetTemperatureSource(payload), nil

	case "force_source":
		if strings.EqualFold(payload, ForceSourceOff) || payload == "" {
			return bridge.ForceSource(autoterm.SourceUnset), nil
		}
		src, err := autoterm.ParseSource(payload)
		if err != nil {
			return bridge.Intent{}, err
		}
		return bridge.ForceSource(src), nil

	case "virtual_panel_temperature":
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return bridge.Intent{}, fmt.Errorf("%w: %q", bridge.ErrInvalidValue, payload)
		}
		return bridge.VirtualPanelTemperature(v), nil

	case "request":
		switch strings.ToLower(payload) {
		case "settings":
			return bridge.RequestSettings(), nil
		case "status":
			return bridge.RequestStatus(), nil
		}
		return bridge.Intent{}, fmt.Errorf("%w: request %q", bridge.ErrInvalidValue, payload)

	case "climate/mode":
		m, err := climate.ParseMode(payload)
		if err != nil {
			return bridge.Intent{}, err
		}
		return bridge.ClimateCall(climate.Call{Mode: &m}), nil

	case "climate/preset":
		p, err := climate.ParsePreset(payload)
		if err != nil {
			return bridge.Intent{}, err
		}
		return bridge.ClimateCall(climate.Call{Preset: &p}), nil

	case "climate/fan_level":
		v, err := strconv.Atoi(payload)
		if err != nil {
			return bridge.Intent{}, fmt.Errorf("%w: %q", bridge.ErrInvalidValue, payload)
		}
		return bridge.ClimateCall(climate.Call{FanLevel: &v}), nil

	case "climate/target_temperature":
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return bridge.Intent{}, fmt.Errorf("%w: %q", bridge.ErrInvalidValue, payload)
		}
		return bridge.ClimateCall(climate.Call{TargetTemperature: &v}), nil
	}

	return bridge.Intent{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

func parseSwitch(payload string) (bool, error) {
	switch strings.ToUpper(payload) {
	case "ON", "TRUE", "1":
		return true, nil
	case "OFF", "FALSE", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not ON or OFF", bridge.ErrInvalidValue, payload)
}

func switchCommand(payload string, build func(bool) bridge.Intent) (bridge.Intent, error) {
	on, err := parseSwitch(payload)
	if err != nil {
		return bridge.Intent{}, err
	}
	return build(on), nil
}

func intCommand(payload string, build func(int) bridge.Intent) (bridge.Intent, error) {
	v, err := strconv.Atoi(payload)
	if err != nil {
		// Home Assistant number entities send "20.0"
		f, ferr := strconv.ParseFloat(payload, 64)
		if ferr != nil || f != float64(int(f)) {
			return bridge.Intent{}, fmt.Errorf("%w: %q", bridge.ErrInvalidValue, payload)
		}
		v = int(f)
	}
	return build(v), nil
}
