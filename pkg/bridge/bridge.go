// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge sits between an Autoterm heater and its control panel. It
// forwards every byte in both directions, decodes complete frames for
// telemetry, rewrites or injects frames for the temperature overrides, and
// polls the heater itself while no panel is attached.
//
// A Bridge is driven by calling Poll repeatedly from a single goroutine, or
// by Run which does so from a ticker. No method is safe for concurrent use.
package bridge

import (
	"errors"
	"io"
	"math"
	"time"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrHeaterUnavailable is returned when a frame must be sent but no heater
// transport is configured
var ErrHeaterUnavailable = errors.New("heater transport not available")

// Transport is a non-blocking duplex byte stream. ReadByte returns io.EOF
// when no byte is available right now.
type Transport interface {
	io.ByteReader
	io.Writer
	Available() int
	Flush() error
}

// Config holds the bridge timing
type Config struct {
	LinkTimeout          time.Duration // panel considered gone after this much silence
	StatusPollInterval   time.Duration // status requests while no panel is attached
	SettingsPollInterval time.Duration // settings requests while no panel is attached
	VirtualPanelInterval time.Duration // virtual panel temperature retransmission
	PollInterval         time.Duration // Run loop tick
}

// DefaultConfig returns the timing used by the stock panel
func DefaultConfig() Config {
	return Config{
		LinkTimeout:          5 * time.Second,
		StatusPollInterval:   2 * time.Second,
		SettingsPollInterval: 10 * time.Second,
		VirtualPanelInterval: 2 * time.Second,
		PollInterval:         5 * time.Millisecond,
	}
}

// Option configures a Bridge
type Option func(*Bridge)

// WithConfig overrides the default timing
func WithConfig(cfg Config) Option {
	return func(b *Bridge) { b.cfg = cfg }
}

// WithSink sets the state sink
func WithSink(s Sink) Option {
	return func(b *Bridge) { b.sink = s }
}

// WithObserver adds a wire event observer
func WithObserver(o Observer) Option {
	return func(b *Bridge) { b.observers = append(b.observers, o) }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// Bridge forwards and inspects traffic between a panel and a heater
type Bridge struct {
	cfg       Config
	log       zerolog.Logger
	sink      Sink
	observers []Observer

	controller Transport
	heater     Transport

	toHeater     *stream
	toController *stream

	// Settings as last reported by the heater
	settings      autoterm.Settings
	settingsValid bool
	fanLevel      uint8

	override overrideState

	state    climate.State
	readings climate.Readings

	// Link presence
	lastActivity        time.Time
	connected           bool
	lastStatusRequest   time.Time
	lastSettingsRequest time.Time
}

// New creates a bridge between a controller-side and a heater-side
// transport. Either may be nil: without a controller the bridge only polls,
// without a heater it only listens.
func New(controller, heater Transport, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:        DefaultConfig(),
		log:        log.With().Str("component", "bridge").Logger(),
		sink:       NopSink{},
		controller: controller,
		heater:     heater,
		settings:   autoterm.DefaultSettings(),
		fanLevel:   autoterm.DefaultFanLevel,
		state:      climate.DefaultState(),
		readings:   climate.NewReadings(),
	}
	b.override.virtualValue = math.NaN()
	for _, opt := range opts {
		opt(b)
	}
	b.toHeater = newStream(ControllerToHeater, controller, heater)
	b.toController = newStream(HeaterToController, heater, controller)
	return b
}

// Start publishes the initial link state and asks the heater for its
// settings. Call it once before the first Poll.
func (b *Bridge) Start(now time.Time) {
	b.sink.PublishConnected(false)
	b.sink.PublishFanLevel(b.fanLevel)
	b.lastStatusRequest = now
	b.lastSettingsRequest = now
	if err := b.send(now, autoterm.NewSettingsRequest()); err != nil {
		b.log.Warn().Err(err).Msg("Initial settings request failed")
	}
}

// Poll runs one bridge pass: drains both directions, retransmits the
// virtual panel temperature when due and evaluates link presence.
func (b *Bridge) Poll(now time.Time) {
	b.pump(b.toHeater, now)
	b.pump(b.toController, now)

	if b.virtualPanelDue(now) {
		b.transmitVirtualPanel(now)
	}

	b.updateLink(now)
}

// Settings returns the last known settings and whether the heater has
// reported them
func (b *Bridge) Settings() (autoterm.Settings, bool) {
	return b.settings, b.settingsValid
}

// State returns the derived operating state
func (b *Bridge) State() climate.State {
	return b.state
}

// Connected reports whether a panel is currently active
func (b *Bridge) Connected() bool {
	return b.connected
}

func (b *Bridge) updateLink(now time.Time) {
	connected := b.controller != nil && !b.lastActivity.IsZero() &&
		now.Sub(b.lastActivity) < b.cfg.LinkTimeout
	if connected != b.connected {
		b.connected = connected
		if connected {
			b.log.Info().Msg("Controller connection detected")
			b.lastStatusRequest = now
			b.lastSettingsRequest = now
		} else {
			b.log.Info().Msg("Controller connection lost, polling heater")
		}
		b.sink.PublishConnected(connected)
	}

	if connected {
		return
	}
	if now.Sub(b.lastStatusRequest) >= b.cfg.StatusPollInterval {
		b.lastStatusRequest = now
		if err := b.send(now, autoterm.NewStatusRequest()); err != nil {
			b.log.Debug().Err(err).Msg("Status poll failed")
		}
	}
	if now.Sub(b.lastSettingsRequest) >= b.cfg.SettingsPollInterval {
		b.lastSettingsRequest = now
		if err := b.send(now, autoterm.NewSettingsRequest()); err != nil {
			b.log.Debug().Err(err).Msg("Settings poll failed")
		}
	}
}

// send writes a locally built frame to the heater, bypassing the bridge
// streams
func (b *Bridge) send(now time.Time, f *autoterm.Frame) error {
	if b.heater == nil {
		return ErrHeaterUnavailable
	}
	if err := writeAll(b.heater, f.Bytes()); err != nil {
		b.emit(Event{Time: now, Kind: EventSendFailed, Direction: ControllerToHeater, Frame: f, Bytes: f.Bytes(), Err: err})
		return err
	}
	if err := b.heater.Flush(); err != nil {
		b.log.Debug().Err(err).Msg("Heater flush failed")
	}
	b.log.Debug().
		Str("command", autoterm.FormatCommand(f.Command())).
		Str("bytes", autoterm.FormatHex(f.Bytes())).
		Msg("Sent frame")
	b.emit(Event{Time: now, Kind: EventCommand, Direction: ControllerToHeater, Frame: f})
	return nil
}

func (b *Bridge) emit(e Event) {
	for _, o := range b.observers {
		o.OnEvent(e)
	}
}

// writeAll writes p in full, reporting a short write as an error
func writeAll(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n < len(p) {
		return io.ErrShortWrite
	}
	return nil
}
