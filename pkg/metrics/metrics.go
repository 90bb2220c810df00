// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports heater telemetry and bridge traffic counters in
// the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoterm"

// Collector is a bridge Sink and Observer backed by its own registry
type Collector struct {
	registry  *prometheus.Registry
	gauges    map[string]prometheus.Gauge
	gaugeVecs map[string]*prometheus.GaugeVec
	events    *prometheus.CounterVec
}

// New creates a collector with all metrics registered
func New() *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		gauges:    map[string]prometheus.Gauge{},
		gaugeVecs: map[string]*prometheus.GaugeVec{},
	}

	// Status
	c.addGauge("status_code", "Heater status code (high<<8 | low)")
	c.addGauge("internal_temperature_celsius", "Heater internal sensor temperature (°C)")
	c.addGauge("external_temperature_celsius", "External sensor temperature (°C)")
	c.addGauge("heater_temperature_celsius", "Heat exchanger temperature (°C)")
	c.addGauge("supply_voltage_volts", "Supply voltage (V)")
	c.addGauge("pump_frequency_hertz", "Fuel pump frequency (Hz)")
	c.addGaugeVec("fan_rpm", "Combustion fan speed (RPM)", "kind")

	// Settings
	c.addGauge("set_temperature_celsius", "Configured target temperature (°C)")
	c.addGauge("power_level", "Configured power level (0-9)")
	c.addGauge("work_time_minutes", "Configured work time (minutes)")
	c.addGauge("temperature_source", "Configured temperature source id")

	// Bridge
	c.addGauge("panel_temperature_celsius", "Panel reported temperature (°C)")
	c.addGauge("virtual_panel_enabled", "Virtual panel temperature override active")
	c.addGauge("virtual_panel_temperature_celsius", "Virtual panel temperature (°C)")
	c.addGauge("forced_source", "Forced temperature source id, 0 when inactive")
	c.addGauge("fan_level", "Fan level used for fan-only mode")
	c.addGauge("controller_connected", "Panel activity seen within the link timeout")

	// Climate
	c.addGaugeVec("climate_mode", "Current climate mode (1 for the active mode)", "mode")
	c.addGaugeVec("climate_action", "Current climate action (1 for the active action)", "action")
	c.addGauge("climate_target_temperature_celsius", "Climate target temperature (°C)")
	c.addGauge("climate_current_temperature_celsius", "Climate current temperature (°C)")

	c.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_events_total",
		Help:      "Bridge wire events by kind and direction",
	}, []string{"kind", "direction"})

	for _, g := range c.gauges {
		c.registry.MustRegister(g)
	}
	for _, gv := range c.gaugeVecs {
		c.registry.MustRegister(gv)
	}
	c.registry.MustRegister(c.events)
	return c
}

func (c *Collector) addGauge(name, help string) {
	c.gauges[name] = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

func (c *Collector) addGaugeVec(name, help, label string) {
	c.gaugeVecs[name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{label})
}

func (c *Collector) set(name string, v float64) {
	c.gauges[name].Set(v)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================
// bridge.Sink
// ============================================================

func (c *Collector) PublishStatus(s autoterm.Status) {
	c.set("status_code", float64(s.Code))
	c.set("internal_temperature_celsius", s.InternalTemperature)
	c.set("external_temperature_celsius", s.ExternalTemperature)
	c.set("heater_temperature_celsius", s.HeaterTemperature)
	c.set("supply_voltage_volts", s.Voltage)
	c.set("pump_frequency_hertz", s.PumpFrequency)
	c.gaugeVecs["fan_rpm"].WithLabelValues("set").Set(float64(s.FanSetRPM))
	c.gaugeVecs["fan_rpm"].WithLabelValues("actual").Set(float64(s.FanActualRPM))
}

func (c *Collector) PublishSettings(s autoterm.Settings) {
	c.set("set_temperature_celsius", float64(s.SetTemperature))
	c.set("power_level", float64(s.PowerLevel))
	c.set("work_time_minutes", float64(s.WorkTime))
	c.set("temperature_source", float64(s.TemperatureSource))
}

func (c *Collector) PublishPanelTemperature(celsius float64) {
	c.set("panel_temperature_celsius", celsius)
}

func (c *Collector) PublishVirtualPanel(enabled bool, celsius float64, valid bool) {
	c.set("virtual_panel_enabled", boolGauge(enabled))
	if valid {
		c.set("virtual_panel_temperature_celsius", celsius)
	}
}

func (c *Collector) PublishForcedSource(s autoterm.Source) {
	c.set("forced_source", float64(s))
}

func (c *Collector) PublishFanLevel(level uint8) {
	c.set("fan_level", float64(level))
}

func (c *Collector) PublishConnected(connected bool) {
	c.set("controller_connected", boolGauge(connected))
}

func (c *Collector) PublishClimate(s climate.State) {
	for _, m := range []climate.Mode{climate.ModeOff, climate.ModeHeat, climate.ModeAuto, climate.ModeFanOnly} {
		c.gaugeVecs["climate_mode"].WithLabelValues(m.String()).Set(boolGauge(m == s.Mode))
	}
	for _, a := range []climate.Action{climate.ActionOff, climate.ActionIdle, climate.ActionHeating, climate.ActionFan} {
		c.gaugeVecs["climate_action"].WithLabelValues(a.String()).Set(boolGauge(a == s.Action))
	}
	c.set("climate_target_temperature_celsius", s.TargetTemperature)
	c.set("climate_current_temperature_celsius", s.CurrentTemperature)
}

// ============================================================
// bridge.Observer
// ============================================================

func (c *Collector) OnEvent(e bridge.Event) {
	c.events.WithLabelValues(e.Kind.String(), directionLabel(e.Direction)).Inc()
}

func directionLabel(d bridge.Direction) string {
	if d == bridge.ControllerToHeater {
		return "to_heater"
	}
	return "to_controller"
}

var (
	_ bridge.Sink     = (*Collector)(nil)
	_ bridge.Observer = (*Collector)(nil)
)
