// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
)

// entity is one Home Assistant discovery record
type entity struct {
	component string
	id        string
	config    map[string]interface{}
}

func sensor(id, name, unit, class string) entity {
	cfg := map[string]interface{}{"name": name}
	if unit != "" {
		cfg["unit_of_measurement"] = unit
		cfg["state_class"] = "measurement"
	}
	if class != "" {
		cfg["device_class"] = class
	}
	return entity{component: "sensor", id: id, config: cfg}
}

func switchEntity(id, name string) entity {
	return entity{component: "switch", id: id, config: map[string]interface{}{
		"name":          name,
		"command_topic": "~/" + id + "/set",
	}}
}

func number(id, name string, min, max, step float64, unit string) entity {
	cfg := map[string]interface{}{
		"name":          name,
		"command_topic": "~/" + id + "/set",
		"min":           min,
		"max":           max,
		"step":          step,
	}
	if unit != "" {
		cfg["unit_of_measurement"] = unit
	}
	return entity{component: "number", id: id, config: cfg}
}

func selectEntity(id, name string, options []string) entity {
	return entity{component: "select", id: id, config: map[string]interface{}{
		"name":          name,
		"command_topic": "~/" + id + "/set",
		"options":       options,
	}}
}

func entities() []entity {
	force := append([]string{ForceSourceOff}, autoterm.SourceNames()...)

	list := []entity{
		sensor("status", "Status", "", ""),
		sensor("internal_temperature", "Internal temperature", "°C", "temperature"),
		sensor("external_temperature", "External temperature", "°C", "temperature"),
		sensor("heater_temperature", "Heater temperature", "°C", "temperature"),
		sensor("panel_temperature", "Panel temperature", "°C", "temperature"),
		sensor("voltage", "Voltage", "V", "voltage"),
		sensor("fan_rpm_actual", "Fan speed", "rpm", ""),
		sensor("pump_frequency", "Pump frequency", "Hz", "frequency"),
		{component: "binary_sensor", id: "controller_connected", config: map[string]interface{}{
			"name":         "Controller connected",
			"device_class": "connectivity",
		}},
		switchEntity("power", "Power"),
		switchEntity("use_work_time", "Use work time"),
		switchEntity("wait_mode", "Wait mode"),
		switchEntity("virtual_panel_override", "Virtual panel override"),
		number("set_temperature", "Set temperature", 0, autoterm.MaxTargetTemp, 1, "°C"),
		number("work_time", "Work time", 0, 255, 1, "min"),
		number("power_level", "Power level", 0, autoterm.MaxPowerLevel, 1, ""),
		number("fan_level", "Fan level", 0, autoterm.MaxPowerLevel, 1, ""),
		number("virtual_panel_temperature", "Virtual panel temperature",
			autoterm.PanelTempMinCelsius, autoterm.PanelTempMaxCelsius, 0.5, "°C"),
		selectEntity("temperature_source", "Temperature source", autoterm.SourceNames()),
		selectEntity("force_source", "Force temperature source", force),
		{component: "button", id: "fan_mode", config: map[string]interface{}{
			"name":          "Fan mode",
			"command_topic": "~/fan_mode/set",
		}},
		{component: "climate", id: "climate", config: map[string]interface{}{
			"name":                      "Heater",
			"modes":                     []string{"off", "heat", "auto", "fan_only"},
			"preset_modes":              []string{"power", "temp_hold", "temp_to_fan", "thermostat"},
			"fan_modes":                 []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"},
			"mode_state_topic":          "~/climate/mode",
			"mode_command_topic":        "~/climate/mode/set",
			"preset_mode_state_topic":   "~/climate/preset",
			"preset_mode_command_topic": "~/climate/preset/set",
			"fan_mode_state_topic":      "~/climate/fan_level",
			"fan_mode_command_topic":    "~/climate/fan_level/set",
			"temperature_state_topic":   "~/climate/target_temperature",
			"temperature_command_topic": "~/climate/target_temperature/set",
			"current_temperature_topic": "~/climate/current_temperature",
			"action_topic":              "~/climate/action",
			"min_temp":                  0,
			"max_temp":                  autoterm.MaxTargetTemp,
			"temp_step":                 1,
			"temperature_unit":          "C",
		}},
	}
	return list
}

// DiscoveryMessages builds the retained Home Assistant discovery configs,
// keyed by topic
func DiscoveryMessages(discoveryPrefix, prefix, deviceID string) (map[string][]byte, error) {
	device := map[string]interface{}{
		"identifiers":  []string{deviceID},
		"name":         "Autoterm heater",
		"manufacturer": "Autoterm",
	}

	out := map[string][]byte{}
	for _, e := range entities() {
		cfg := map[string]interface{}{
			"~":                  prefix,
			"unique_id":          deviceID + "_" + e.id,
			"availability_topic": "~/availability",
			"device":             device,
		}
		if e.component != "climate" && e.component != "button" {
			cfg["state_topic"] = "~/" + e.id
		}
		for k, v := range e.config {
			cfg[k] = v
		}

		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("discovery %s: %w", e.id, err)
		}
		topic := fmt.Sprintf("%s/%s/%s_%s/config", discoveryPrefix, e.component, deviceID, e.id)
		out[topic] = payload
	}
	return out, nil
}

// PublishDiscovery sends the discovery configs
func PublishDiscovery(pub Publisher, discoveryPrefix, prefix, deviceID string) {
	msgs, err := DiscoveryMessages(discoveryPrefix, prefix, deviceID)
	if err != nil {
		log.Warn().Err(err).Str("component", "mqtt").Msg("Discovery not published")
		return
	}
	for topic, payload := range msgs {
		pub.Publish(topic, 0, true, payload)
	}
}
