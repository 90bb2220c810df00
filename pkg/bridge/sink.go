// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"time"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
)

// Sink receives decoded state. Implementations must tolerate being called
// again with an unchanged value.
type Sink interface {
	PublishStatus(autoterm.Status)
	PublishSettings(autoterm.Settings)
	PublishPanelTemperature(celsius float64)
	PublishVirtualPanel(enabled bool, celsius float64, valid bool)
	PublishForcedSource(autoterm.Source)
	PublishFanLevel(level uint8)
	PublishConnected(connected bool)
	PublishClimate(climate.State)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) PublishStatus(autoterm.Status)           {}
func (NopSink) PublishSettings(autoterm.Settings)       {}
func (NopSink) PublishPanelTemperature(float64)         {}
func (NopSink) PublishVirtualPanel(bool, float64, bool) {}
func (NopSink) PublishForcedSource(autoterm.Source)     {}
func (NopSink) PublishFanLevel(uint8)                   {}
func (NopSink) PublishConnected(bool)                   {}
func (NopSink) PublishClimate(climate.State)            {}

// MultiSink fans every publish out to several sinks in order
type MultiSink []Sink

func (m MultiSink) PublishStatus(s autoterm.Status) {
	for _, sink := range m {
		sink.PublishStatus(s)
	}
}

func (m MultiSink) PublishSettings(s autoterm.Settings) {
	for _, sink := range m {
		sink.PublishSettings(s)
	}
}

func (m MultiSink) PublishPanelTemperature(celsius float64) {
	for _, sink := range m {
		sink.PublishPanelTemperature(celsius)
	}
}

func (m MultiSink) PublishVirtualPanel(enabled bool, celsius float64, valid bool) {
	for _, sink := range m {
		sink.PublishVirtualPanel(enabled, celsius, valid)
	}
}

func (m MultiSink) PublishForcedSource(s autoterm.Source) {
	for _, sink := range m {
		sink.PublishForcedSource(s)
	}
}

func (m MultiSink) PublishFanLevel(level uint8) {
	for _, sink := range m {
		sink.PublishFanLevel(level)
	}
}

func (m MultiSink) PublishConnected(connected bool) {
	for _, sink := range m {
		sink.PublishConnected(connected)
	}
}

func (m MultiSink) PublishClimate(s climate.State) {
	for _, sink := range m {
		sink.PublishClimate(s)
	}
}

// Direction identifies one half of the bridge
type Direction uint8

const (
	ControllerToHeater Direction = iota
	HeaterToController
)

func (d Direction) String() string {
	if d == ControllerToHeater {
		return "controller→heater"
	}
	return "heater→controller"
}

// EventKind classifies bridge events
type EventKind uint8

const (
	EventFrame      EventKind = iota // valid frame forwarded and decoded
	EventCRCError                    // frame forwarded without decoding
	EventResync                      // unsynchronized bytes flushed
	EventSuppressed                  // panel temperature frame withheld from the heater
	EventRewritten                   // frame forwarded with a forced source
	EventInjected                    // virtual panel temperature frame sent
	EventCommand                     // locally issued frame sent
	EventSendFailed                  // write to a transport failed
)

func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventCRCError:
		return "crc-error"
	case EventResync:
		return "resync"
	case EventSuppressed:
		return "suppressed"
	case EventRewritten:
		return "rewritten"
	case EventInjected:
		return "injected"
	case EventCommand:
		return "command"
	case EventSendFailed:
		return "send-failed"
	default:
		return "unknown"
	}
}

// Event describes something that happened on the wire
type Event struct {
	Time      time.Time
	Kind      EventKind
	Direction Direction
	// Frame is the frame as forwarded or sent. For EventRewritten Original
	// holds the frame as received.
	Frame    *autoterm.Frame
	Original *autoterm.Frame
	// Bytes holds raw bytes for EventResync and EventSendFailed
	Bytes []byte
	Err   error
}

// Observer receives wire events
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
