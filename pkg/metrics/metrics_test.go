// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func assertContains(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if !strings.Contains(body, line+"\n") {
			t.Errorf("metrics missing %q", line)
		}
	}
}

func TestStatusAndSettings(t *testing.T) {
	c := New()
	c.PublishStatus(autoterm.Status{
		Code:                0x0304,
		InternalTemperature: 21,
		ExternalTemperature: -5,
		HeaterTemperature:   80,
		Voltage:             12.6,
		FanSetRPM:           3000,
		FanActualRPM:        2940,
		PumpFrequency:       1.5,
	})
	c.PublishSettings(autoterm.Settings{UseWorkTime: 1, TemperatureSource: autoterm.SourcePanel, SetTemperature: 20, PowerLevel: 6})

	assertContains(t, scrape(t, c),
		"autoterm_status_code 772",
		"autoterm_internal_temperature_celsius 21",
		"autoterm_external_temperature_celsius -5",
		"autoterm_supply_voltage_volts 12.6",
		`autoterm_fan_rpm{kind="actual"} 2940`,
		`autoterm_fan_rpm{kind="set"} 3000`,
		"autoterm_set_temperature_celsius 20",
		"autoterm_power_level 6",
		"autoterm_temperature_source 2",
	)
}

func TestBridgeState(t *testing.T) {
	c := New()
	c.PublishPanelTemperature(22)
	c.PublishVirtualPanel(true, 18.5, true)
	c.PublishForcedSource(autoterm.SourceNone)
	c.PublishFanLevel(7)
	c.PublishConnected(true)

	state := climate.DefaultState()
	state.Mode = climate.ModeHeat
	state.Action = climate.ActionHeating
	state.TargetTemperature = 21
	state.CurrentTemperature = 19.5
	c.PublishClimate(state)

	assertContains(t, scrape(t, c),
		"autoterm_panel_temperature_celsius 22",
		"autoterm_virtual_panel_enabled 1",
		"autoterm_virtual_panel_temperature_celsius 18.5",
		"autoterm_forced_source 4",
		"autoterm_fan_level 7",
		"autoterm_controller_connected 1",
		`autoterm_climate_mode{mode="heat"} 1`,
		`autoterm_climate_mode{mode="off"} 0`,
		`autoterm_climate_action{action="heating"} 1`,
		"autoterm_climate_target_temperature_celsius 21",
		"autoterm_climate_current_temperature_celsius 19.5",
	)
}

func TestEventCounters(t *testing.T) {
	c := New()
	c.OnEvent(bridge.Event{Kind: bridge.EventFrame, Direction: bridge.ControllerToHeater})
	c.OnEvent(bridge.Event{Kind: bridge.EventFrame, Direction: bridge.ControllerToHeater})
	c.OnEvent(bridge.Event{Kind: bridge.EventCRCError, Direction: bridge.HeaterToController})

	assertContains(t, scrape(t, c),
		`autoterm_bridge_events_total{direction="to_heater",kind="frame"} 2`,
		`autoterm_bridge_events_total{direction="to_controller",kind="crc-error"} 1`,
	)
}
