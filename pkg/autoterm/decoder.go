// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means the buffer holds the start of a frame but not all
	// of it yet. Nothing was consumed.
	ErrIncomplete = errors.New("incomplete frame")

	// ErrNoPreamble means the buffer does not start with 0xAA. The caller
	// must forward or discard leading bytes to resynchronize.
	ErrNoPreamble = errors.New("buffer does not start with preamble")
)

// CRCError reports a checksum mismatch on an otherwise complete frame
type CRCError struct {
	Expected uint16
	Received uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("CRC mismatch: expected 0x%04X, got 0x%04X", e.Expected, e.Received)
}

// IsCRCError reports whether err is a checksum mismatch
func IsCRCError(err error) bool {
	var crcErr *CRCError
	return errors.As(err, &crcErr)
}

// TryParse attempts to parse one frame from the start of buf.
//
// On success it returns the frame and the number of bytes it spans. When the
// checksum does not match, the frame and its span are still returned together
// with a *CRCError so the caller can consume the span and keep going. The
// returned frame does not alias buf.
func TryParse(buf []byte) (*Frame, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[offsetPreamble] != Preamble {
		return nil, 0, ErrNoPreamble
	}
	if len(buf) <= offsetLength {
		return nil, 0, ErrIncomplete
	}

	total := HeaderSize + int(buf[offsetLength]) + CRCSize
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}

	raw := make([]byte, total)
	copy(raw, buf[:total])
	frame := frameFromRaw(raw)

	expected := CalculateCRC(raw[:total-CRCSize])
	if expected != frame.crc {
		return frame, total, &CRCError{Expected: expected, Received: frame.crc}
	}
	return frame, total, nil
}

// NextPreamble returns the index of the first preamble byte in buf at or
// after position from, or -1.
func NextPreamble(buf []byte, from int) int {
	if from >= len(buf) {
		return -1
	}
	i := bytes.IndexByte(buf[from:], Preamble)
	if i < 0 {
		return -1
	}
	return from + i
}

// Decoder is a byte-at-a-time frame decoder for passive monitoring. It keeps
// its own accumulator and resynchronizes on the next preamble when the
// stream does not start with one.
type Decoder struct {
	buffer  []byte
	skipped int
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset discards any buffered bytes
func (d *Decoder) Reset() {
	d.buffer = d.buffer[:0]
	d.skipped = 0
}

// GetRawBytes returns the bytes buffered towards the next frame
func (d *Decoder) GetRawBytes() []byte {
	return d.buffer
}

// Skipped returns how many bytes have been discarded while searching for a
// preamble since the last Reset.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// DecodeByte feeds one byte to the decoder.
// Returns a completed frame, or nil if the frame is incomplete.
// On a checksum mismatch both the frame and a *CRCError are returned.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if len(d.buffer) == 0 && b != Preamble {
		d.skipped++
		return nil, nil
	}
	d.buffer = append(d.buffer, b)

	frame, n, err := TryParse(d.buffer)
	switch {
	case errors.Is(err, ErrIncomplete):
		return nil, nil
	case frame != nil:
		d.consume(n)
		return frame, err
	default:
		return nil, err
	}
}

// Decode feeds a chunk of bytes and returns every frame completed by it.
// Frames failing the checksum are reported through onError and left out of
// the result.
func (d *Decoder) Decode(data []byte, onError func(*Frame, error)) []*Frame {
	var frames []*Frame
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil {
			if onError != nil {
				onError(frame, err)
			}
			continue
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames
}

// consume drops n bytes and any garbage up to the next preamble
func (d *Decoder) consume(n int) {
	rest := d.buffer[n:]
	next := NextPreamble(rest, 0)
	if next < 0 {
		d.skipped += len(rest)
		d.buffer = d.buffer[:0]
		return
	}
	d.skipped += next
	d.buffer = append(d.buffer[:0], rest[next:]...)
}
