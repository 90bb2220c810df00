// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"math"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
)

// Sink publishes bridge state as retained messages, one value per topic.
// Unchanged values are not republished.
type Sink struct {
	pub    Publisher
	prefix string
	log    zerolog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewSink creates a sink publishing below prefix
func NewSink(pub Publisher, prefix string) *Sink {
	return &Sink{
		pub:    pub,
		prefix: prefix,
		log:    log.With().Str("component", "mqtt").Logger(),
		cache:  map[string]string{},
	}
}

func (s *Sink) publish(name, value string) {
	topic := s.prefix + "/" + name

	s.mu.Lock()
	if prev, ok := s.cache[topic]; ok && prev == value {
		s.mu.Unlock()
		return
	}
	s.cache[topic] = value
	s.mu.Unlock()

	s.send(topic, value)
}

func (s *Sink) send(topic, value string) {
	token := s.pub.Publish(topic, 0, true, value)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.log.Warn().Err(err).Str("topic", topic).Msg("Publish failed")
		}
	}()
}

// Republish sends every cached value again
func (s *Sink) Republish() {
	s.mu.Lock()
	snapshot := make(map[string]string, len(s.cache))
	for k, v := range s.cache {
		snapshot[k] = v
	}
	s.mu.Unlock()

	for topic, value := range snapshot {
		s.send(topic, value)
	}
}

func (s *Sink) publishFloat(name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	s.publish(name, strconv.FormatFloat(v, 'f', -1, 64))
}

func (s *Sink) publishInt(name string, v int) {
	s.publish(name, strconv.Itoa(v))
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func (s *Sink) PublishStatus(st autoterm.Status) {
	s.publish("status", st.Text)
	s.publishFloat("status_code", st.Value)
	s.publishFloat("internal_temperature", st.InternalTemperature)
	s.publishFloat("external_temperature", st.ExternalTemperature)
	s.publishFloat("heater_temperature", st.HeaterTemperature)
	s.publishFloat("voltage", st.Voltage)
	s.publishInt("fan_rpm_set", st.FanSetRPM)
	s.publishInt("fan_rpm_actual", st.FanActualRPM)
	s.publishFloat("pump_frequency", st.PumpFrequency)
}

func (s *Sink) PublishSettings(st autoterm.Settings) {
	s.publishInt("set_temperature", int(st.SetTemperature))
	s.publishInt("work_time", int(st.WorkTime))
	s.publishInt("power_level", int(st.PowerLevel))
	s.publish("use_work_time", onOff(st.WorkTimeEnabled()))
	s.publish("wait_mode", onOff(st.WaitMode == autoterm.WaitModeTempToFan))
	s.publish("temperature_source", st.TemperatureSource.String())
}

func (s *Sink) PublishPanelTemperature(celsius float64) {
	s.publishFloat("panel_temperature", celsius)
}

func (s *Sink) PublishVirtualPanel(enabled bool, celsius float64, valid bool) {
	s.publish("virtual_panel_override", onOff(enabled))
	if valid {
		s.publishFloat("virtual_panel_temperature", celsius)
	}
}

func (s *Sink) PublishForcedSource(src autoterm.Source) {
	if !src.Valid() {
		s.publish("force_source", ForceSourceOff)
		return
	}
	s.publish("force_source", src.String())
}

func (s *Sink) PublishFanLevel(level uint8) {
	s.publishInt("fan_level", int(level))
}

func (s *Sink) PublishConnected(connected bool) {
	s.publish("controller_connected", onOff(connected))
}

func (s *Sink) PublishClimate(st climate.State) {
	s.publish("climate/mode", st.Mode.String())
	s.publish("climate/preset", st.Preset.String())
	s.publish("climate/action", st.Action.String())
	s.publishInt("climate/fan_level", int(st.FanLevel))
	s.publishFloat("climate/target_temperature", st.TargetTemperature)
	s.publishFloat("climate/current_temperature", st.CurrentTemperature)
}

var _ bridge.Sink = (*Sink)(nil)
