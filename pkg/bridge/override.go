// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"time"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
)

// sourceByte is the payload offset of the temperature source in start and
// update frames
const sourceByte = 2

// overrideState is owned by the bridge and never persisted
type overrideState struct {
	virtualEnabled bool
	virtualValue   float64 // clamped °C
	virtualRaw     uint8
	virtualValid   bool
	lastSend       time.Time // zero forces an immediate send

	forced autoterm.Source // SourceUnset when inactive
}

// active reports whether controller frames must be held back for rewriting
func (o *overrideState) active() bool {
	return o.virtualEnabled || o.forced.Valid()
}

// applyOverrides decides what to forward for a valid controller frame
func (b *Bridge) applyOverrides(f *autoterm.Frame) (*autoterm.Frame, EventKind) {
	if b.override.virtualEnabled && autoterm.IsPanelTemperature(f) {
		b.log.Debug().Msg("Suppressing panel temperature frame while override active")
		return f, EventSuppressed
	}

	forced := b.override.forced
	if !forced.Valid() || f.Origin() != autoterm.OriginController {
		return f, EventFrame
	}
	if f.Command() != autoterm.CmdStart && f.Command() != autoterm.CmdSettings {
		return f, EventFrame
	}
	if len(f.Payload()) <= sourceByte || f.Payload()[sourceByte] == forced.Wire() {
		return f, EventFrame
	}

	out := f.Rewrite(sourceByte, forced.Wire())
	b.log.Debug().
		Uint8("from", f.Payload()[sourceByte]).
		Uint8("to", forced.Wire()).
		Msg("Rewrote temperature source")
	return out, EventRewritten
}

// SetVirtualPanelEnabled turns the virtual panel temperature override on or
// off. Enabling it schedules an immediate transmission.
func (b *Bridge) SetVirtualPanelEnabled(now time.Time, enabled bool) {
	if b.override.virtualEnabled == enabled {
		return
	}
	b.override.virtualEnabled = enabled
	b.log.Info().Bool("enabled", enabled).Msg("Virtual panel override")

	if enabled {
		b.override.lastSend = time.Time{}
	}
	// Anything held back was meant for the previous mode
	b.release(b.toHeater, now, len(b.toHeater.buf))
	b.setBuffered(b.toHeater, now, b.override.active())

	b.publishVirtualPanel()
}

// SetVirtualPanelTemperature stores the temperature reported to the heater
// while the override is enabled. The value is clamped to -40..215 °C.
func (b *Bridge) SetVirtualPanelTemperature(celsius float64) error {
	raw, clamped, ok := autoterm.PanelTemperatureRaw(celsius)
	if !ok {
		return fmt.Errorf("%w: virtual panel temperature %v", ErrInvalidValue, celsius)
	}
	b.override.virtualRaw = raw
	b.override.virtualValue = clamped
	b.override.virtualValid = true
	if b.override.virtualEnabled {
		b.override.lastSend = time.Time{}
	}
	b.readings.Virtual = clamped
	b.publishVirtualPanel()
	b.refreshCurrentTemperature()
	return nil
}

// ForceSource rewrites the temperature source of every start and update
// frame sent by the panel. SourceUnset disables forcing.
func (b *Bridge) ForceSource(now time.Time, source autoterm.Source) error {
	if source != autoterm.SourceUnset && !source.Valid() {
		return fmt.Errorf("%w: temperature source %d", ErrInvalidValue, source)
	}
	b.override.forced = source
	b.log.Info().Str("source", source.String()).Msg("Forced temperature source")
	b.setBuffered(b.toHeater, now, b.override.active())
	b.sink.PublishForcedSource(source)
	b.refreshCurrentTemperature()
	return nil
}

func (b *Bridge) virtualPanelDue(now time.Time) bool {
	o := &b.override
	if !o.virtualEnabled || !o.virtualValid {
		return false
	}
	return o.lastSend.IsZero() || now.Sub(o.lastSend) >= b.cfg.VirtualPanelInterval
}

// transmitVirtualPanel sends a synthetic panel temperature report. Delivery
// is best effort.
func (b *Bridge) transmitVirtualPanel(now time.Time) {
	b.override.lastSend = now
	if b.heater == nil {
		b.log.Warn().Msg("Cannot send virtual panel temperature without heater transport")
		return
	}

	f := autoterm.NewPanelTemperature(b.override.virtualRaw)
	if err := writeAll(b.heater, f.Bytes()); err != nil {
		b.log.Warn().Err(err).Msg("Virtual panel temperature send failed")
		b.emit(Event{Time: now, Kind: EventSendFailed, Direction: ControllerToHeater, Frame: f, Bytes: f.Bytes(), Err: err})
		return
	}
	if err := b.heater.Flush(); err != nil {
		b.log.Debug().Err(err).Msg("Heater flush failed")
	}

	b.log.Info().
		Float64("celsius", b.override.virtualValue).
		Uint8("raw", b.override.virtualRaw).
		Str("crc", fmt.Sprintf("%04X", f.CRC())).
		Msg("Sent virtual panel temperature")
	b.emit(Event{Time: now, Kind: EventInjected, Direction: ControllerToHeater, Frame: f})
}

func (b *Bridge) publishVirtualPanel() {
	o := &b.override
	b.sink.PublishVirtualPanel(o.virtualEnabled, o.virtualValue, o.virtualValid)
}
