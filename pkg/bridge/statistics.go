// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"time"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
)

// Statistics tracks bridge traffic and error rates. It is an Observer and is
// not safe for concurrent use.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	ControllerFrames uint64
	HeaterFrames     uint64
	CRCErrors        uint64
	ResyncFlushes    uint64
	ResyncBytes      uint64
	Suppressed       uint64
	Rewritten        uint64
	Injected         uint64
	Commands         uint64
	SendFailures     uint64
	Anomalies        uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// OnEvent updates the counters from a bridge event
func (s *Statistics) OnEvent(e Event) {
	switch e.Kind {
	case EventFrame, EventSuppressed, EventRewritten:
		if e.Direction == ControllerToHeater {
			s.ControllerFrames++
		} else {
			s.HeaterFrames++
		}
		if e.Frame != nil && len(autoterm.ValidateFrame(e.Frame)) > 0 {
			s.Anomalies++
		}
		switch e.Kind {
		case EventSuppressed:
			s.Suppressed++
		case EventRewritten:
			s.Rewritten++
		}
	case EventCRCError:
		s.CRCErrors++
	case EventResync:
		s.ResyncFlushes++
		s.ResyncBytes += uint64(len(e.Bytes))
	case EventInjected:
		s.Injected++
	case EventCommand:
		s.Commands++
	case EventSendFailed:
		s.SendFailures++
	}
	s.LastUpdateTime = e.Time
}

// TotalFrames returns the number of complete frames seen in both directions
func (s *Statistics) TotalFrames() uint64 {
	return s.ControllerFrames + s.HeaterFrames + s.CRCErrors
}

// Errors returns the number of error events
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.ResyncFlushes + s.SendFailures
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames()) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	total := s.TotalFrames()
	var crcPercent float64
	if total > 0 {
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(total)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Controller Frames: %8d\n", s.ControllerFrames)
	result += fmt.Sprintf("Heater Frames:     %8d\n", s.HeaterFrames)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:        %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.ResyncFlushes > 0 {
		result += fmt.Sprintf("Resync Flushes:    %8d (%d bytes)\n", s.ResyncFlushes, s.ResyncBytes)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalous Frames:  %8d\n", s.Anomalies)
	}
	if s.Suppressed > 0 || s.Injected > 0 {
		result += fmt.Sprintf("Panel Override:    %8d suppressed, %d injected\n", s.Suppressed, s.Injected)
	}
	if s.Rewritten > 0 {
		result += fmt.Sprintf("Source Rewrites:   %8d\n", s.Rewritten)
	}
	if s.Commands > 0 || s.SendFailures > 0 {
		result += fmt.Sprintf("Commands Sent:     %8d (%d failed)\n", s.Commands, s.SendFailures)
	}

	result += fmt.Sprintf("Frame Rate:        %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:        %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
