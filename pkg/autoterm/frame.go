// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "time"

// Frame represents one Autoterm protocol frame, either parsed off the wire or
// built for transmission. Frames are immutable; Rewrite returns a copy.
type Frame struct {
	origin    Origin
	reserved  uint8
	command   uint8
	payload   []byte
	crc       uint16
	raw       []byte // complete wire form including header and CRC
	timestamp time.Time
}

// NewFrame builds a frame with a freshly computed CRC. The payload must not
// exceed MaxPayloadSize bytes.
func NewFrame(origin Origin, command uint8, payload []byte) (*Frame, error) {
	raw, err := Encode(origin, command, payload)
	if err != nil {
		return nil, err
	}
	return frameFromRaw(raw), nil
}

// frameFromRaw wraps a complete wire frame. raw must hold at least the
// header and CRC and is retained.
func frameFromRaw(raw []byte) *Frame {
	n := len(raw)
	return &Frame{
		origin:    Origin(raw[offsetOrigin]),
		reserved:  raw[offsetReserved],
		command:   raw[offsetCommand],
		payload:   raw[HeaderSize : n-CRCSize],
		crc:       uint16(raw[n-2])<<8 | uint16(raw[n-1]),
		raw:       raw,
		timestamp: time.Now(),
	}
}

// Origin returns who issued the frame
func (f *Frame) Origin() Origin {
	return f.origin
}

// Command returns the command identifier
func (f *Frame) Command() uint8 {
	return f.command
}

// Reserved returns header byte 3, which is echoed but never interpreted
func (f *Frame) Reserved() uint8 {
	return f.reserved
}

// Length returns the declared payload length
func (f *Frame) Length() uint8 {
	return uint8(len(f.payload))
}

// Payload returns the payload bytes. The slice aliases the frame and must
// not be modified.
func (f *Frame) Payload() []byte {
	return f.payload
}

// CRC returns the checksum carried by the frame
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Bytes returns the complete wire form. The slice aliases the frame and must
// not be modified.
func (f *Frame) Bytes() []byte {
	return f.raw
}

// Size returns the total wire length
func (f *Frame) Size() int {
	return len(f.raw)
}

// Timestamp returns when the frame was parsed or built
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Valid reports whether the carried CRC matches the frame contents
func (f *Frame) Valid() bool {
	return CalculateCRC(f.raw[:len(f.raw)-CRCSize]) == f.crc
}

// Rewrite returns a copy of the frame with payload[index] replaced by value
// and the trailing CRC recomputed. It returns the receiver unchanged when
// index is outside the payload.
func (f *Frame) Rewrite(index int, value byte) *Frame {
	if index < 0 || index >= len(f.payload) {
		return f
	}
	raw := make([]byte, len(f.raw))
	copy(raw, f.raw)
	raw[HeaderSize+index] = value
	raw = appendCRC(raw[:len(raw)-CRCSize])
	out := frameFromRaw(raw)
	out.timestamp = f.timestamp
	return out
}
