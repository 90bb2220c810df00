// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// buildStatusPayload creates a 19-byte status payload with the fields the
// decoder reads filled in
func buildStatusPayload(high, low, internal, external, voltage, heater, fanSet, fanActual, pump uint8) []byte {
	p := make([]byte, 19)
	p[statusHigh] = high
	p[statusLow] = low
	p[statusInternal] = internal
	p[statusExternal] = external
	p[statusVoltage] = voltage
	p[statusHeaterTemp] = heater
	p[statusFanSet] = fanSet
	p[statusFanActual] = fanActual
	p[statusPumpFreq] = pump
	return p
}

func mustFrame(t *testing.T, origin Origin, command uint8, payload []byte) *Frame {
	t.Helper()
	f, err := NewFrame(origin, command, payload)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return f
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != 0xFFFF {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x4B37, // CRC-16/Modbus check value
		},
		{
			name:     "settings request header",
			data:     []byte{0xAA, 0x03, 0x00, 0x00, 0x02},
			expected: 0x9DBD,
		},
		{
			name:     "status request header",
			data:     []byte{0xAA, 0x03, 0x00, 0x00, 0x0F},
			expected: 0x587C,
		},
		{
			name:     "heater panel temperature 22",
			data:     []byte{0xAA, 0x04, 0x01, 0x00, 0x11, 0x16},
			expected: 0xB365,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_Layout(t *testing.T) {
	data, err := Encode(OriginController, CmdFanOnly, []byte{0xFF, 0xFF, 0x08, 0xFF})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	expected := []byte{0xAA, 0x03, 0x04, 0x00, 0x23, 0xFF, 0xFF, 0x08, 0xFF, 0xE1, 0x0B}
	if !bytes.Equal(data, expected) {
		t.Errorf("Expected % X, got % X", expected, data)
	}
}

func TestEncode_EmptyPayload(t *testing.T) {
	data, err := Encode(OriginController, CmdSettings, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	expected := []byte{0xAA, 0x03, 0x00, 0x00, 0x02, 0x9D, 0xBD}
	if !bytes.Equal(data, expected) {
		t.Errorf("Expected % X, got % X", expected, data)
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := Encode(OriginController, CmdSettings, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncode_MaxPayload(t *testing.T) {
	data, err := Encode(OriginHeater, CmdStatus, make([]byte, MaxPayloadSize))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) != MaxFrameSize {
		t.Errorf("Expected %d bytes, got %d", MaxFrameSize, len(data))
	}
}

func TestMustEncode_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for oversized payload")
		}
	}()
	MustEncode(OriginController, CmdSettings, make([]byte, 300))
}

// ============================================================
// TryParse Tests
// ============================================================

func TestTryParse_Valid(t *testing.T) {
	data := []byte{0xAA, 0x04, 0x01, 0x00, 0x11, 0x16, 0xB3, 0x65}
	frame, n, err := TryParse(data)
	if err != nil {
		t.Fatalf("TryParse: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected %d consumed, got %d", len(data), n)
	}
	if frame.Origin() != OriginHeater {
		t.Errorf("Expected heater origin, got %s", frame.Origin())
	}
	if frame.Command() != CmdPanelTemperature {
		t.Errorf("Expected command 0x11, got 0x%02X", frame.Command())
	}
	if !bytes.Equal(frame.Payload(), []byte{0x16}) {
		t.Errorf("Unexpected payload % X", frame.Payload())
	}
	if frame.CRC() != 0xB365 {
		t.Errorf("Expected CRC 0xB365, got 0x%04X", frame.CRC())
	}
}

func TestTryParse_Incomplete(t *testing.T) {
	full := MustEncode(OriginHeater, CmdStatus, buildStatusPayload(3, 0, 20, 20, 124, 60, 4, 4, 150))
	for i := 0; i < len(full); i++ {
		_, n, err := TryParse(full[:i])
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("prefix %d: expected ErrIncomplete, got %v", i, err)
		}
		if n != 0 {
			t.Fatalf("prefix %d: expected nothing consumed, got %d", i, n)
		}
	}
}

func TestTryParse_NoPreamble(t *testing.T) {
	_, n, err := TryParse([]byte{0x55, 0xAA, 0x03})
	if !errors.Is(err, ErrNoPreamble) {
		t.Errorf("Expected ErrNoPreamble, got %v", err)
	}
	if n != 0 {
		t.Errorf("Expected nothing consumed, got %d", n)
	}
}

func TestTryParse_CRCMismatchStillConsumes(t *testing.T) {
	data := MustEncode(OriginController, CmdStandby, nil)
	data[len(data)-1] ^= 0xFF
	data = append(data, 0xAA) // start of the next frame

	frame, n, err := TryParse(data)
	var crcErr *CRCError
	if !errors.As(err, &crcErr) {
		t.Fatalf("Expected *CRCError, got %v", err)
	}
	if frame == nil {
		t.Fatal("Expected frame to be returned with CRC error")
	}
	if n != len(data)-1 {
		t.Errorf("Expected %d consumed, got %d", len(data)-1, n)
	}
	if crcErr.Expected == crcErr.Received {
		t.Error("CRCError should carry differing values")
	}
	if frame.Valid() {
		t.Error("Frame with corrupted CRC should not be valid")
	}
}

func TestTryParse_CRCIsBigEndian(t *testing.T) {
	data := MustEncode(OriginController, CmdStatus, nil)
	// Swap the CRC bytes: a little-endian reader would accept this
	data[5], data[6] = data[6], data[5]
	if _, _, err := TryParse(data); !IsCRCError(err) {
		t.Errorf("Expected CRC error for byte-swapped CRC, got %v", err)
	}
}

func TestTryParse_DoesNotAlias(t *testing.T) {
	data := MustEncode(OriginController, CmdPanelTemperature, []byte{20})
	frame, _, err := TryParse(data)
	if err != nil {
		t.Fatal(err)
	}
	data[5] = 99
	if frame.Payload()[0] != 20 {
		t.Error("Parsed frame should not alias the input buffer")
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_ByteAtATimeMatchesTryParse(t *testing.T) {
	wire := MustEncode(OriginHeater, CmdSettings, []byte{0, 0, 4, 16, 0, 8})
	whole, _, err := TryParse(wire)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecoder()
	var got *Frame
	for i, b := range wire {
		frame, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if frame != nil {
			if i != len(wire)-1 {
				t.Fatalf("Frame completed early at byte %d", i)
			}
			got = frame
		}
	}
	if got == nil {
		t.Fatal("Expected frame")
	}
	if !bytes.Equal(got.Bytes(), whole.Bytes()) {
		t.Errorf("Byte-wise decode % X differs from whole decode % X", got.Bytes(), whole.Bytes())
	}
}

func TestDecoder_SkipsNoise(t *testing.T) {
	noise := []byte{0x00, 0x13, 0x55, 0xFE, 0x01}
	wire := MustEncode(OriginHeater, CmdPanelTemperature, []byte{22})

	d := NewDecoder()
	frames := d.Decode(append(noise, wire...), nil)
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if d.Skipped() != len(noise) {
		t.Errorf("Expected %d skipped bytes, got %d", len(noise), d.Skipped())
	}
}

func TestDecoder_CRCErrorReported(t *testing.T) {
	bad := MustEncode(OriginController, CmdStandby, nil)
	bad[len(bad)-2] ^= 0x01
	good := MustEncode(OriginController, CmdStatus, nil)

	d := NewDecoder()
	var crcErrors int
	frames := d.Decode(append(bad, good...), func(f *Frame, err error) {
		if IsCRCError(err) && f != nil {
			crcErrors++
		}
	})
	if crcErrors != 1 {
		t.Errorf("Expected 1 CRC error, got %d", crcErrors)
	}
	if len(frames) != 1 || frames[0].Command() != CmdStatus {
		t.Errorf("Expected the valid status request after the bad frame, got %v", frames)
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(0xAA)
	d.DecodeByte(0x03)
	if len(d.GetRawBytes()) != 2 {
		t.Fatalf("Expected 2 buffered bytes, got %d", len(d.GetRawBytes()))
	}
	d.Reset()
	if len(d.GetRawBytes()) != 0 {
		t.Error("Reset should clear buffered bytes")
	}
}

// ============================================================
// Frame Tests
// ============================================================

func TestFrame_Rewrite(t *testing.T) {
	orig := NewTemperatureHold(true, uint8(SourceInternal), 20)
	rewritten := orig.Rewrite(settingsTemperatureSource, SourceNone.Wire())

	if rewritten.Payload()[settingsTemperatureSource] != uint8(SourcePanel) {
		t.Errorf("Expected source byte 2, got %d", rewritten.Payload()[settingsTemperatureSource])
	}
	if !rewritten.Valid() {
		t.Error("Rewritten frame should carry a valid CRC")
	}
	if _, _, err := TryParse(rewritten.Bytes()); err != nil {
		t.Errorf("Rewritten frame should parse: %v", err)
	}
	if orig.Payload()[settingsTemperatureSource] != uint8(SourceInternal) {
		t.Error("Rewrite must not modify the original frame")
	}
}

func TestFrame_RewriteOutOfRange(t *testing.T) {
	f := NewStandby()
	if f.Rewrite(2, 1) != f {
		t.Error("Rewrite outside the payload should return the frame unchanged")
	}
}

// ============================================================
// Semantics Tests
// ============================================================

func TestParseStatus(t *testing.T) {
	payload := buildStatusPayload(0x03, 0x00, 0xFB, 21, 125, 95, 40, 38, 165)
	f := mustFrame(t, OriginHeater, CmdStatus, payload)

	s, ok := ParseStatus(f)
	if !ok {
		t.Fatal("Expected status to decode")
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"value", s.Value, 3.0},
		{"internal", s.InternalTemperature, -4},
		{"external", s.ExternalTemperature, 21},
		{"voltage", s.Voltage, 12.5},
		{"heater", s.HeaterTemperature, 80},
		{"fan set", float64(s.FanSetRPM), 2400},
		{"fan actual", float64(s.FanActualRPM), 2280},
		{"pump", s.PumpFrequency, 1.65},
	}
	for _, c := range checks {
		if diff := c.got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
	if s.Code != 0x0300 || s.Text != "heating" {
		t.Errorf("Expected heating (0x0300), got %s (0x%04X)", s.Text, s.Code)
	}
}

func TestParseStatus_ValueWithLowByte(t *testing.T) {
	f := mustFrame(t, OriginHeater, CmdStatus, buildStatusPayload(0x02, 0x03, 0, 0, 120, 15, 0, 0, 0))
	s, _ := ParseStatus(f)
	if s.Value != 2.3 {
		t.Errorf("Expected status value 2.3, got %v", s.Value)
	}
	if s.Text != "ignition 2" {
		t.Errorf("Expected 'ignition 2', got %q", s.Text)
	}
}

func TestParseStatus_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{"request", NewStatusRequest()},
		{"short payload", mustFrame(t, OriginHeater, CmdStatus, make([]byte, 16))},
		{"wrong command", mustFrame(t, OriginHeater, CmdSettings, make([]byte, 19))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ParseStatus(tt.frame); ok {
				t.Error("Expected status decode to fail")
			}
		})
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		code uint16
		want string
	}{
		{0x0001, "standby"},
		{0x0100, "cooling flame sensor"},
		{0x0101, "ventilation"},
		{0x0200, "prepare heating"},
		{0x0201, "heating glow plug"},
		{0x0202, "ignition 1"},
		{0x0203, "ignition 2"},
		{0x0204, "heating combustion chamber"},
		{0x0300, "heating"},
		{0x0323, "only fan"},
		{0x0304, "cooling down"},
		{0x0305, "idle ventilation"},
		{0x0400, "shutting down"},
		{0x0517, "unknown (0x0517)"},
	}
	for _, tt := range tests {
		if got := StatusText(tt.code); got != tt.want {
			t.Errorf("StatusText(0x%04X) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestSignedTemperature(t *testing.T) {
	tests := []struct {
		raw  uint8
		want float64
	}{
		{0, 0},
		{25, 25},
		{127, 127},
		{128, -127},
		{250, -5},
		{255, 0},
	}
	for _, tt := range tests {
		if got := SignedTemperature(tt.raw); got != tt.want {
			t.Errorf("SignedTemperature(%d) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseSettings(t *testing.T) {
	f := mustFrame(t, OriginHeater, CmdSettings, []byte{0, 0, 4, 16, 0, 8})
	s, ok := ParseSettings(f)
	if !ok {
		t.Fatal("Expected settings to decode")
	}
	want := Settings{UseWorkTime: 0, WorkTime: 0, TemperatureSource: SourceNone, SetTemperature: 16, WaitMode: 0, PowerLevel: 8}
	if s != want {
		t.Errorf("Expected %+v, got %+v", want, s)
	}
	if !s.WorkTimeEnabled() {
		t.Error("use_work_time=0 means work time is enabled")
	}
}

func TestParseSettings_Rejects(t *testing.T) {
	if _, ok := ParseSettings(NewSettingsRequest()); ok {
		t.Error("Settings request should not decode as a report")
	}
	if _, ok := ParseSettings(NewPowerOn(DefaultSettings())); ok {
		t.Error("Start frame should not decode as a settings report")
	}
	if _, ok := ParseModeCommand(NewPowerOn(DefaultSettings())); !ok {
		t.Error("Start frame should decode as a mode command")
	}
}

func TestSettings_Merge(t *testing.T) {
	prev := Settings{UseWorkTime: 1, WorkTime: 30, TemperatureSource: SourceInternal, SetTemperature: 18, WaitMode: 2, PowerLevel: 5}
	update, _ := ParseModeCommand(NewPowerLevel(false, 7))
	merged := prev.Merge(update)

	want := Settings{UseWorkTime: 1, WorkTime: 30, TemperatureSource: SourceNone, SetTemperature: 18, WaitMode: 2, PowerLevel: 7}
	if merged != want {
		t.Errorf("Expected %+v, got %+v", want, merged)
	}
}

func TestParsePanelTemperature(t *testing.T) {
	f, _, err := TryParse([]byte{0xAA, 0x04, 0x01, 0x00, 0x11, 0x16, 0xB3, 0x65})
	if err != nil {
		t.Fatal(err)
	}
	temp, ok := ParsePanelTemperature(f)
	if !ok || temp != 22 {
		t.Errorf("Expected 22°C, got %v (ok=%t)", temp, ok)
	}

	temp, ok = ParsePanelTemperature(NewPanelTemperature(200))
	if !ok || temp != 200 {
		t.Errorf("Panel byte is unsigned, expected 200, got %v", temp)
	}

	if _, ok := ParsePanelTemperature(mustFrame(t, OriginController, CmdPanelTemperature, nil)); ok {
		t.Error("Empty panel temperature frame should not decode")
	}
	if _, ok := ParsePanelTemperature(mustFrame(t, Origin(0x07), CmdPanelTemperature, []byte{1})); ok {
		t.Error("Unknown origin should not decode")
	}
}

// ============================================================
// Names Tests
// ============================================================

func TestParseSource(t *testing.T) {
	for i, name := range SourceNames() {
		s, err := ParseSource(name)
		if err != nil {
			t.Fatalf("ParseSource(%q): %v", name, err)
		}
		if uint8(s) != uint8(i+1) {
			t.Errorf("ParseSource(%q) = %d, want %d", name, s, i+1)
		}
		if s.String() != name {
			t.Errorf("String() = %q, want %q", s.String(), name)
		}
	}

	_, err := ParseSource("outside sensor")
	if !errors.Is(err, ErrUnknownTemperatureSource) {
		t.Errorf("Expected ErrUnknownTemperatureSource, got %v", err)
	}
}

func TestSourceWire(t *testing.T) {
	tests := []struct {
		source Source
		want   uint8
	}{
		{SourceInternal, 1},
		{SourcePanel, 2},
		{SourceExternal, 3},
		{SourceNone, 2},
	}
	for _, tt := range tests {
		if got := tt.source.Wire(); got != tt.want {
			t.Errorf("%s.Wire() = %d, want %d", tt.source, got, tt.want)
		}
	}
}

// ============================================================
// Formatter and Validator Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	f := mustFrame(t, OriginHeater, CmdStatus, buildStatusPayload(0x00, 0x01, 20, 0, 126, 30, 0, 0, 0))
	out := FormatFrame(f)
	for _, want := range []string{"STATUS (0x0F)", "from=heater", "standby", "12.6V"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}

	out = FormatFrame(NewPowerLevel(true, 5))
	if !strings.Contains(out, "START") || !strings.Contains(out, "Power: 5") {
		t.Errorf("Unexpected power level formatting:\n%s", out)
	}

	if out := FormatFrame(NewSettingsRequest()); !strings.Contains(out, "(request)") {
		t.Errorf("Expected request marker:\n%s", out)
	}
}

func TestFormatCommand(t *testing.T) {
	if FormatCommand(CmdFanOnly) != "FAN_ONLY" {
		t.Errorf("Unexpected name %q", FormatCommand(CmdFanOnly))
	}
	if FormatCommand(0x77) != "UNKNOWN" {
		t.Errorf("Unexpected name %q", FormatCommand(0x77))
	}
}

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  []AnomalyType
	}{
		{"valid status", mustFrame(t, OriginHeater, CmdStatus, buildStatusPayload(3, 0, 20, 20, 124, 60, 4, 4, 150)), nil},
		{"low voltage", mustFrame(t, OriginHeater, CmdStatus, buildStatusPayload(3, 0, 20, 20, 50, 60, 4, 4, 150)), []AnomalyType{AnomalyInvalidVoltage}},
		{"unknown status", mustFrame(t, OriginHeater, CmdStatus, buildStatusPayload(9, 9, 20, 20, 124, 60, 4, 4, 150)), []AnomalyType{AnomalyUnknownStatus}},
		{"short status", mustFrame(t, OriginHeater, CmdStatus, []byte{1, 2}), []AnomalyType{AnomalyLengthMismatch}},
		{"power level", mustFrame(t, OriginHeater, CmdSettings, []byte{1, 0, 4, 16, 0, 12}), []AnomalyType{AnomalyInvalidLevel}},
		{"source", mustFrame(t, OriginHeater, CmdSettings, []byte{1, 0, 7, 16, 0, 5}), []AnomalyType{AnomalyInvalidSource}},
		{"wait mode", mustFrame(t, OriginHeater, CmdSettings, []byte{1, 0, 1, 16, 3, 5}), []AnomalyType{AnomalyInvalidWaitMode}},
		{"placeholders ok", NewTemperatureToFan(false, 1, 20), nil},
		{"fan level", mustFrame(t, OriginController, CmdFanOnly, []byte{0xFF, 0xFF, 10, 0xFF}), []AnomalyType{AnomalyInvalidLevel}},
		{"request", NewSettingsRequest(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateFrame(tt.frame)
			if len(errs) != len(tt.want) {
				t.Fatalf("Expected %d anomalies, got %v", len(tt.want), errs)
			}
			for i := range errs {
				if errs[i].Type != tt.want[i] {
					t.Errorf("anomaly %d: expected type %d, got %d (%s)", i, tt.want[i], errs[i].Type, errs[i].Message)
				}
			}
		})
	}
}
