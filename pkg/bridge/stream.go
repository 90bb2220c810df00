// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"time"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
)

// stream is the accumulator for one direction. buf[:forwarded] has already
// been written to dst; the rest is held back.
type stream struct {
	dir       Direction
	src, dst  Transport
	buf       []byte
	forwarded int
	buffered  bool
}

func newStream(dir Direction, src, dst Transport) *stream {
	return &stream{
		dir: dir,
		src: src,
		dst: dst,
		buf: make([]byte, 0, autoterm.MaxFrameSize),
	}
}

// pending returns the bytes not yet written to dst
func (s *stream) pending() []byte {
	return s.buf[s.forwarded:]
}

// consume drops the first n bytes of the accumulator
func (s *stream) consume(n int) {
	s.buf = append(s.buf[:0], s.buf[n:]...)
	s.forwarded -= n
	if s.forwarded < 0 {
		s.forwarded = 0
	}
}

// pump drains every available byte from the stream's source. Without a
// destination the bytes are still decoded.
func (b *Bridge) pump(s *stream, now time.Time) {
	if s.src == nil {
		return
	}

	b.setBuffered(s, now, s.dir == ControllerToHeater && b.override.active())

	for s.src.Available() > 0 {
		c, err := s.src.ReadByte()
		if err != nil {
			break
		}
		if s.dir == ControllerToHeater {
			b.lastActivity = now
		}
		b.feed(s, now, c)
	}
}

// setBuffered switches a stream between byte-wise pass-through and whole
// frame buffering. Held back bytes are released when buffering stops.
func (b *Bridge) setBuffered(s *stream, now time.Time, buffered bool) {
	if s.buffered == buffered {
		return
	}
	s.buffered = buffered
	if !buffered {
		b.release(s, now, len(s.buf))
	}
}

func (b *Bridge) feed(s *stream, now time.Time, c byte) {
	if !s.buffered {
		b.write(s, now, []byte{c})
		s.buf = append(s.buf, c)
		s.forwarded = len(s.buf)
	} else {
		// Bytes ahead of a preamble can never be rewritten
		if len(s.buf) == 0 && c != autoterm.Preamble {
			b.write(s, now, []byte{c})
			return
		}
		s.buf = append(s.buf, c)
	}
	b.scan(s, now)
}

// scan extracts every complete frame from the accumulator
func (b *Bridge) scan(s *stream, now time.Time) {
	for len(s.buf) > 0 {
		frame, n, err := autoterm.TryParse(s.buf)
		switch {
		case errors.Is(err, autoterm.ErrIncomplete):
			return

		case errors.Is(err, autoterm.ErrNoPreamble):
			if next := autoterm.NextPreamble(s.buf, 1); next > 0 {
				b.release(s, now, next)
				continue
			}
			if len(s.buf) > autoterm.MaxUnsyncedBytes {
				b.resync(s, now)
			}
			return

		default:
			b.complete(s, now, frame, n, err)
		}
	}
}

// release forwards whatever is still held back among the first n bytes and
// drops them from the accumulator
func (b *Bridge) release(s *stream, now time.Time, n int) {
	if s.forwarded < n {
		b.write(s, now, s.buf[s.forwarded:n])
	}
	s.consume(n)
}

// resync flushes an accumulator that has lost frame sync
func (b *Bridge) resync(s *stream, now time.Time) {
	flushed := make([]byte, len(s.buf))
	copy(flushed, s.buf)
	b.release(s, now, len(s.buf))

	b.log.Warn().
		Str("direction", s.dir.String()).
		Int("bytes", len(flushed)).
		Msg("Lost frame sync, flushed accumulator")
	b.emit(Event{Time: now, Kind: EventResync, Direction: s.dir, Bytes: flushed})
}

// complete handles one frame-sized span at the start of the accumulator
func (b *Bridge) complete(s *stream, now time.Time, frame *autoterm.Frame, n int, parseErr error) {
	held := s.forwarded == 0

	if parseErr != nil {
		// Corrupt frames are forwarded untouched and never decoded
		b.release(s, now, n)
		b.log.Warn().
			Err(parseErr).
			Str("direction", s.dir.String()).
			Str("bytes", autoterm.FormatHex(frame.Bytes())).
			Msg("Malformed frame")
		b.emit(Event{Time: now, Kind: EventCRCError, Direction: s.dir, Frame: frame, Err: parseErr})
		return
	}

	out, kind := frame, EventFrame
	if held && s.dir == ControllerToHeater {
		out, kind = b.applyOverrides(frame)
	}

	switch {
	case kind == EventSuppressed:
		s.consume(n)
	case held:
		b.write(s, now, out.Bytes())
		s.consume(n)
	default:
		b.release(s, now, n)
	}

	b.log.Debug().
		Str("direction", s.dir.String()).
		Str("bytes", autoterm.FormatHex(out.Bytes())).
		Msg("Frame")
	b.emit(Event{Time: now, Kind: kind, Direction: s.dir, Frame: out, Original: originalIf(kind, frame)})

	b.decode(now, out)
}

func originalIf(kind EventKind, f *autoterm.Frame) *autoterm.Frame {
	if kind == EventRewritten {
		return f
	}
	return nil
}

// write forwards bytes to the stream's destination. Failures are reported
// and otherwise ignored so forwarding continues.
func (b *Bridge) write(s *stream, now time.Time, p []byte) {
	if s.dst == nil {
		return
	}
	if err := writeAll(s.dst, p); err != nil {
		b.log.Warn().Err(err).Str("direction", s.dir.String()).Msg("Forwarding failed")
		lost := make([]byte, len(p))
		copy(lost, p)
		b.emit(Event{Time: now, Kind: EventSendFailed, Direction: s.dir, Bytes: lost, Err: err})
	}
}
