// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
)

// ============================================================
// Test Helpers
// ============================================================

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	payload  string
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	var s string
	switch v := payload.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	}
	p.msgs = append(p.msgs, message{topic: topic, payload: s, retained: retained})
	return doneToken{}
}

func (p *fakePublisher) last(topic string) (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var value string
	var count int
	for _, m := range p.msgs {
		if m.topic == topic {
			value = m.payload
			count++
		}
	}
	return value, count
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func assertTopic(t *testing.T, p *fakePublisher, topic, want string) {
	t.Helper()
	got, n := p.last(topic)
	if n == 0 {
		t.Errorf("%s not published", topic)
		return
	}
	if got != want {
		t.Errorf("%s = %q, want %q", topic, got, want)
	}
}

// ============================================================
// Sink Tests
// ============================================================

func TestSinkStatus(t *testing.T) {
	p := &fakePublisher{}
	s := NewSink(p, "autoterm")

	s.PublishStatus(autoterm.Status{
		Code:                0x0304,
		Value:               3.4,
		Text:                "heating",
		InternalTemperature: 21,
		ExternalTemperature: -5,
		Voltage:             12.6,
		FanActualRPM:        2940,
		PumpFrequency:       1.5,
	})

	assertTopic(t, p, "autoterm/status", "heating")
	assertTopic(t, p, "autoterm/status_code", "3.4")
	assertTopic(t, p, "autoterm/external_temperature", "-5")
	assertTopic(t, p, "autoterm/voltage", "12.6")
	assertTopic(t, p, "autoterm/fan_rpm_actual", "2940")
	assertTopic(t, p, "autoterm/pump_frequency", "1.5")
}

func TestSinkSettings(t *testing.T) {
	p := &fakePublisher{}
	s := NewSink(p, "autoterm")

	s.PublishSettings(autoterm.Settings{
		UseWorkTime:       0,
		WorkTime:          90,
		TemperatureSource: autoterm.SourcePanel,
		SetTemperature:    20,
		WaitMode:          autoterm.WaitModeTempToFan,
		PowerLevel:        6,
	})

	assertTopic(t, p, "autoterm/use_work_time", "ON")
	assertTopic(t, p, "autoterm/work_time", "90")
	assertTopic(t, p, "autoterm/temperature_source", autoterm.SourceNamePanel)
	assertTopic(t, p, "autoterm/set_temperature", "20")
	assertTopic(t, p, "autoterm/wait_mode", "ON")
	assertTopic(t, p, "autoterm/power_level", "6")
}

func TestSinkSkipsUnchangedValues(t *testing.T) {
	p := &fakePublisher{}
	s := NewSink(p, "autoterm")

	s.PublishFanLevel(5)
	s.PublishFanLevel(5)
	s.PublishFanLevel(6)

	if v, n := p.last("autoterm/fan_level"); n != 2 || v != "6" {
		t.Errorf("fan_level published %d times, last %q", n, v)
	}

	s.Republish()
	if _, n := p.last("autoterm/fan_level"); n != 3 {
		t.Errorf("Republish did not resend fan_level")
	}
}

func TestSinkOverridesAndClimate(t *testing.T) {
	p := &fakePublisher{}
	s := NewSink(p, "heater")

	s.PublishForcedSource(autoterm.SourceUnset)
	assertTopic(t, p, "heater/force_source", ForceSourceOff)
	s.PublishForcedSource(autoterm.SourceNone)
	assertTopic(t, p, "heater/force_source", autoterm.SourceNameNone)

	s.PublishVirtualPanel(true, 18.5, true)
	assertTopic(t, p, "heater/virtual_panel_override", "ON")
	assertTopic(t, p, "heater/virtual_panel_temperature", "18.5")

	s.PublishConnected(false)
	assertTopic(t, p, "heater/controller_connected", "OFF")

	state := climate.DefaultState()
	state.Mode = climate.ModeAuto
	state.Preset = climate.PresetTempToFan
	state.CurrentTemperature = math.NaN()
	s.PublishClimate(state)

	assertTopic(t, p, "heater/climate/mode", "auto")
	assertTopic(t, p, "heater/climate/preset", "temp_to_fan")
	assertTopic(t, p, "heater/climate/fan_level", "8")
	if _, n := p.last("heater/climate/current_temperature"); n != 0 {
		t.Error("unknown current temperature was published")
	}
}

// ============================================================
// Command Tests
// ============================================================

func TestCommandName(t *testing.T) {
	tests := []struct {
		topic string
		name  string
		ok    bool
	}{
		{"autoterm/power/set", "power", true},
		{"autoterm/climate/mode/set", "climate/mode", true},
		{"autoterm/power", "", false},
		{"other/power/set", "", false},
		{"autoterm//set", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			name, ok := CommandName("autoterm", tt.topic)
			if name != tt.name || ok != tt.ok {
				t.Errorf("CommandName = %q, %v; want %q, %v", name, ok, tt.name, tt.ok)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    bridge.IntentKind
		check   func(bridge.Intent) bool
	}{
		{"power", "ON", bridge.IntentPowerOn, nil},
		{"power", "off", bridge.IntentPowerOff, nil},
		{"fan_mode", "PRESS", bridge.IntentFanMode, nil},
		{"fan_level", "4", bridge.IntentSetFanLevel, func(i bridge.Intent) bool { return i.Value == 4 }},
		{"set_temperature", "20.0", bridge.IntentSetTemperature, func(i bridge.Intent) bool { return i.Value == 20 }},
		{"work_time", "90", bridge.IntentSetWorkTime, nil},
		{"power_level", "3", bridge.IntentSetPowerLevel, nil},
		{"use_work_time", "ON", bridge.IntentSetUseWorkTime, func(i bridge.Intent) bool { return i.On }},
		{"wait_mode", "OFF", bridge.IntentSetWaitMode, func(i bridge.Intent) bool { return !i.On }},
		{"temperature_source", autoterm.SourceNameExternal, bridge.IntentSetTemperatureSource,
			func(i bridge.Intent) bool { return i.Name == autoterm.SourceNameExternal }},
		{"force_source", "off", bridge.IntentForceSource,
			func(i bridge.Intent) bool { return i.Source == autoterm.SourceUnset }},
		{"force_source", autoterm.SourceNameNone, bridge.IntentForceSource,
			func(i bridge.Intent) bool { return i.Source == autoterm.SourceNone }},
		{"virtual_panel_override", "ON", bridge.IntentVirtualPanelEnabled, func(i bridge.Intent) bool { return i.On }},
		{"virtual_panel_temperature", "-3.5", bridge.IntentVirtualPanelTemperature,
			func(i bridge.Intent) bool { return i.Value == -3.5 }},
		{"request", "status", bridge.IntentRequestStatus, nil},
		{"climate/mode", "fan_only", bridge.IntentClimate,
			func(i bridge.Intent) bool { return i.Climate.Mode != nil && *i.Climate.Mode == climate.ModeFanOnly }},
		{"climate/preset", "temp_hold", bridge.IntentClimate,
			func(i bridge.Intent) bool { return i.Climate.Preset != nil && *i.Climate.Preset == climate.PresetTempHold }},
		{"climate/fan_level", "7", bridge.IntentClimate,
			func(i bridge.Intent) bool { return i.Climate.FanLevel != nil && *i.Climate.FanLevel == 7 }},
		{"climate/target_temperature", "21.5", bridge.IntentClimate,
			func(i bridge.Intent) bool {
				return i.Climate.TargetTemperature != nil && *i.Climate.TargetTemperature == 21.5
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name+"="+tt.payload, func(t *testing.T) {
			in, err := ParseCommand(tt.name, tt.payload)
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			if in.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", in.Kind, tt.kind)
			}
			if tt.check != nil && !tt.check(in) {
				t.Errorf("unexpected intent %+v", in)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"power", "maybe", bridge.ErrInvalidValue},
		{"fan_level", "high", bridge.ErrInvalidValue},
		{"set_temperature", "20.5", bridge.ErrInvalidValue},
		{"request", "everything", bridge.ErrInvalidValue},
		{"force_source", "garage", autoterm.ErrUnknownTemperatureSource},
		{"climate/mode", "cool", climate.ErrUnknownValue},
		{"self_destruct", "ON", ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand(tt.name, tt.payload)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHandleMessageQueuesIntent(t *testing.T) {
	intents := make(chan bridge.Intent, 1)
	c := &Client{cfg: Config{}, intents: intents, log: zerolog.Nop()}

	c.handleMessage(nil, fakeMessage{topic: "autoterm/power/set", payload: []byte("ON")})
	select {
	case in := <-intents:
		if in.Kind != bridge.IntentPowerOn {
			t.Errorf("kind = %s", in.Kind)
		}
	default:
		t.Fatal("no intent queued")
	}

	// Invalid payloads and a full queue never block
	c.handleMessage(nil, fakeMessage{topic: "autoterm/power/set", payload: []byte("bogus")})
	c.handleMessage(nil, fakeMessage{topic: "autoterm/power/set", payload: []byte("OFF")})
	c.handleMessage(nil, fakeMessage{topic: "autoterm/power/set", payload: []byte("ON")})
	if len(intents) != 1 {
		t.Errorf("queued %d intents, want 1", len(intents))
	}
}

// ============================================================
// Discovery Tests
// ============================================================

func TestDiscoveryMessages(t *testing.T) {
	msgs, err := DiscoveryMessages("homeassistant", "autoterm", "autoterm_bridge")
	if err != nil {
		t.Fatal(err)
	}

	raw, ok := msgs["homeassistant/climate/autoterm_bridge_climate/config"]
	if !ok {
		t.Fatal("climate discovery missing")
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg["~"] != "autoterm" || cfg["mode_command_topic"] != "~/climate/mode/set" {
		t.Errorf("climate config = %v", cfg)
	}
	if _, ok := cfg["state_topic"]; ok {
		t.Error("climate config must not carry a state_topic")
	}

	raw = msgs["homeassistant/select/autoterm_bridge_temperature_source/config"]
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg["state_topic"] != "~/temperature_source" {
		t.Errorf("select state_topic = %v", cfg["state_topic"])
	}
}
