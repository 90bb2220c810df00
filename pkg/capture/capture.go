// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records bridge wire events to a CBOR stream and reads
// them back for replay.
//
// A capture is a header followed by one record per event, each encoded as
// a CBOR array:
//
//	header: ["autoterm-capture", version, start_unix_nanos]
//	record: [unix_nanos, kind, direction, bytes, original, error]
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
)

const (
	Magic   = "autoterm-capture"
	Version = 1
)

// ErrNotCapture is returned when a stream does not start with a capture header
var ErrNotCapture = errors.New("not an autoterm capture")

// Header opens every capture
type Header struct {
	_       struct{} `cbor:",toarray"`
	Magic   string
	Version uint8
	Started int64
}

// Record is one captured event
type Record struct {
	_         struct{} `cbor:",toarray"`
	Time      int64
	Kind      uint8
	Direction uint8
	Bytes     []byte
	Original  []byte
	Err       string
}

// NewRecord converts an event. Frames are stored as their wire bytes.
func NewRecord(e bridge.Event) Record {
	r := Record{
		Time:      e.Time.UnixNano(),
		Kind:      uint8(e.Kind),
		Direction: uint8(e.Direction),
		Bytes:     e.Bytes,
	}
	if e.Frame != nil {
		r.Bytes = e.Frame.Bytes()
	}
	if e.Original != nil {
		r.Original = e.Original.Bytes()
	}
	if e.Err != nil {
		r.Err = e.Err.Error()
	}
	return r
}

// Event rebuilds the bridge event. Frame fields are re-parsed from the
// stored bytes; resync records keep raw bytes only.
func (r Record) Event() bridge.Event {
	e := bridge.Event{
		Time:      time.Unix(0, r.Time),
		Kind:      bridge.EventKind(r.Kind),
		Direction: bridge.Direction(r.Direction),
	}
	if r.Err != "" {
		e.Err = errors.New(r.Err)
	}

	if e.Kind != bridge.EventResync {
		if f, _, _ := autoterm.TryParse(r.Bytes); f != nil {
			e.Frame = f
		}
	}
	if e.Frame == nil {
		e.Bytes = r.Bytes
	}
	if len(r.Original) > 0 {
		e.Original, _, _ = autoterm.TryParse(r.Original)
	}
	return e
}

// Recorder is a bridge Observer writing every event to a capture stream.
// The first write error stops recording and is reported by Err.
type Recorder struct {
	mu    sync.Mutex
	w     io.Writer
	enc   *cbor.Encoder
	count int
	err   error
}

// NewRecorder writes the capture header to w
func NewRecorder(w io.Writer, started time.Time) (*Recorder, error) {
	enc := cbor.NewEncoder(w)
	if err := enc.Encode(Header{Magic: Magic, Version: Version, Started: started.UnixNano()}); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return &Recorder{w: w, enc: enc}, nil
}

func (r *Recorder) OnEvent(e bridge.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(NewRecord(e)); err != nil {
		r.err = fmt.Errorf("capture write failed: %w", err)
		return
	}
	r.count++
}

// Count returns the number of records written
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the error that stopped recording
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the underlying writer when it is a Closer
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Reader reads records back from a capture stream
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader validates the capture header
func NewReader(rd io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(rd)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCapture, err)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrNotCapture, h.Magic)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("unsupported capture version %d", h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Started returns the capture start time
func (r *Reader) Started() time.Time {
	return time.Unix(0, r.header.Started)
}

// Next returns the next record, or io.EOF at the end of the capture
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("corrupt capture record: %w", err)
	}
	return rec, nil
}

var _ bridge.Observer = (*Recorder)(nil)
